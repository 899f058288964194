// Package gateway — единая точка исходящих запросов консоли к admin API.
// Прицепляет bearer-токен и куки, разбирает ответ по content-type и
// восстанавливает просроченную аутентификацию: на первый 401 — общий
// refresh через координатор и ровно один повтор; на 401 при повторе —
// терминальный отказ без нового refresh (иначе бесконечный цикл, если
// сервер отвергает даже свежие токены).
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/adminconsole/internal/auth"
	"github.com/adminconsole/internal/logger"
)

// APIError — не-2xx ответ сервера: статус и сообщение как есть.
// Никогда не ретраится на этом уровне (кроме 401-пути).
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d %s", e.Status, e.Message)
}

// Options — параметры одного запроса.
type Options struct {
	Method string // по умолчанию GET; с Body — POST
	Body   any    // сериализуется в JSON
	Query  url.Values
	Header http.Header
}

// Gateway — клиент admin API. Токеном владеет координатор; Gateway его
// только читает.
type Gateway struct {
	baseURL string
	client  *http.Client
	coord   *auth.Coordinator
}

// New создаёт Gateway. client должен использовать тот же cookie jar, что и
// координатор — refresh-cookie выставляется ответами login/refresh.
func New(baseURL string, client *http.Client, coord *auth.Coordinator) *Gateway {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Gateway{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  client,
		coord:   coord,
	}
}

// Send выполняет запрос и возвращает тело 2xx-ответа.
func (g *Gateway) Send(ctx context.Context, path string, opts Options) ([]byte, error) {
	defer logger.DeferLogDuration("gateway.Send "+path, time.Now())()

	var payload []byte
	if opts.Body != nil {
		b, err := json.Marshal(opts.Body)
		if err != nil {
			return nil, fmt.Errorf("gateway: marshal body: %w", err)
		}
		payload = b
	}
	return g.send(ctx, path, opts, payload, false)
}

// JSON выполняет запрос и декодирует JSON-ответ в out (out может быть nil).
func (g *Gateway) JSON(ctx context.Context, path string, opts Options, out any) error {
	body, err := g.Send(ctx, path, opts)
	if err != nil {
		return err
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("gateway: decode response: %w", err)
	}
	return nil
}

// send — один проход конечного автомата запроса:
// Sending → (2xx: Done) | (401, первая попытка: Refreshing → Retrying) |
// (401 при повторе: Failed) | (другой не-2xx: Failed).
func (g *Gateway) send(ctx context.Context, path string, opts Options, payload []byte, isRetry bool) ([]byte, error) {
	method := opts.Method
	if method == "" {
		method = http.MethodGet
		if payload != nil {
			method = http.MethodPost
		}
	}

	u := g.baseURL + path
	if len(opts.Query) > 0 {
		u += "?" + opts.Query.Encode()
	}

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return nil, fmt.Errorf("gateway: build request: %w", err)
	}
	for k, vs := range opts.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if payload != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if tok := g.coord.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("gateway: read response: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return raw, nil
	}

	apiErr := &APIError{
		Status:  resp.StatusCode,
		Message: errorMessage(resp.Header.Get("Content-Type"), raw, resp.Status),
	}

	if resp.StatusCode != http.StatusUnauthorized || isRetry {
		return nil, apiErr
	}

	// Первый 401: общий refresh. При отказе сигнал session-expired уже
	// отправлен из единственного полёта координатора — здесь только отказ.
	if !g.coord.Refresh(ctx) {
		return nil, apiErr
	}
	return g.send(ctx, path, opts, payload, true)
}

// errorMessage достаёт серверное сообщение из тела ошибки по content-type.
func errorMessage(contentType string, raw []byte, fallback string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err == nil && mt == "application/json" && len(raw) > 0 {
		var body struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if json.Unmarshal(raw, &body) == nil {
			if body.Error != "" {
				return body.Error
			}
			if body.Message != "" {
				return body.Message
			}
		}
	}
	if len(raw) > 0 && len(raw) <= 200 && mt == "text/plain" {
		return strings.TrimSpace(string(raw))
	}
	return fallback
}
