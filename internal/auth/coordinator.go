// Package auth — координатор access-токена консоли: хранит Session и
// выполняет single-flight refresh. N запросов, одновременно получивших 401,
// не должны породить N вызовов refresh: сервер ротирует refresh-cookie, и
// параллельные попытки инвалидируют друг друга. Коалесценция — требование
// корректности, а не оптимизация.
package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/adminconsole/internal/logger"
	"github.com/adminconsole/internal/model"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"
)

// Notifier получает ровно один сигнал session-expired на неудачный эпизод
// refresh (не по одному на каждый ожидавший запрос). Реализуется слоем
// уведомлений консоли.
type Notifier interface {
	SessionExpired(reason string)
}

// Coordinator владеет текущей Session и единственной in-flight операцией
// refresh. Остальные компоненты не мутируют Session напрямую.
type Coordinator struct {
	mu      sync.RWMutex
	session model.Session

	flight     singleflight.Group
	client     *http.Client
	refreshURL string
	timeout    time.Duration
	notifier   Notifier
}

const flightKey = "refresh"

// New создаёт координатор. client должен нести cookie jar — refresh-cookie
// ходит только в куках. notifier может быть nil.
func New(refreshURL string, client *http.Client, timeout time.Duration, notifier Notifier) *Coordinator {
	if client == nil {
		client = &http.Client{}
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Coordinator{
		client:     client,
		refreshURL: refreshURL,
		timeout:    timeout,
		notifier:   notifier,
	}
}

// Token — неблокирующее чтение текущего access-токена ("" — нет сессии).
func (c *Coordinator) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session.AccessToken
}

// SetToken целиком заменяет Session (вызывается login-флоу и самим refresh).
func (c *Coordinator) SetToken(token string) {
	c.mu.Lock()
	c.session = model.Session{AccessToken: token}
	c.mu.Unlock()
}

// Clear сбрасывает Session (logout или невосстановимый refresh).
func (c *Coordinator) Clear() {
	c.mu.Lock()
	c.session = model.Session{}
	c.mu.Unlock()
}

// refreshResponse — ответ refresh-эндпоинта. Успех только при
// role=="admin" и непустом accessToken; любая другая форма — отказ.
type refreshResponse struct {
	Data struct {
		Role        string `json:"role"`
		AccessToken string `json:"accessToken"`
	} `json:"data"`
}

// Refresh выполняет refresh, коалесцируя параллельных вызывающих: пока
// операция в полёте, все получают её общий результат, новый сетевой вызов
// не издаётся. После завершения (успех или отказ) операция забывается, и
// следующий вызывающий запускает новую попытку. Ошибки не пробрасываются —
// сетевой сбой и потеря роли дают false.
func (c *Coordinator) Refresh(ctx context.Context) bool {
	v, _, shared := c.flight.Do(flightKey, func() (any, error) {
		return c.doRefresh(), nil
	})
	ok := v.(bool)
	logger.Debugf("auth refresh settled ok=%v shared=%v", ok, shared)
	return ok
}

// doRefresh — одна сетевая попытка. Выполняется до конца независимо от
// отмены вызывающих (начатый refresh прерывать нельзя: cookie уже могла
// ротироваться на сервере).
func (c *Coordinator) doRefresh() bool {
	defer logger.DeferLogDuration("auth.Refresh", time.Now())()

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.refreshURL, nil)
	if err != nil {
		return c.fail("refresh request: " + err.Error())
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return c.fail("refresh call failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.fail("refresh rejected")
	}

	var body refreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return c.fail("refresh malformed response")
	}
	if body.Data.Role != model.RoleAdmin || body.Data.AccessToken == "" {
		return c.fail("admin role lost")
	}

	c.SetToken(body.Data.AccessToken)
	return true
}

// fail очищает сессию и шлёт единственный session-expired сигнал эпизода.
// Сигнал уходит отсюда (изнутри общего полёта), а не от каждого ожидающего.
func (c *Coordinator) fail(reason string) bool {
	logger.Errorf("auth: %s", reason)
	c.Clear()
	if c.notifier != nil {
		c.notifier.SessionExpired(reason)
	}
	return false
}

// TokenExpiry возвращает exp текущего токена без проверки подписи
// (для диагностики в логах; проверяет сервер).
func (c *Coordinator) TokenExpiry() (time.Time, bool) {
	tok := c.Token()
	if tok == "" {
		return time.Time{}, false
	}
	parsed, _, err := jwt.NewParser().ParseUnverified(tok, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, false
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
