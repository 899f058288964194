// Package notice — транзиентные уведомления консоли (баннер session-expired
// и т.п.) с автоскрытием через TimedTask.
package notice

import (
	"sort"
	"sync"
	"time"

	"github.com/adminconsole/internal/logger"
	"github.com/adminconsole/internal/timer"
)

type Kind string

const (
	KindInfo           Kind = "info"
	KindError          Kind = "error"
	KindSessionExpired Kind = "session_expired"
)

type Notice struct {
	ID        int64     `json:"id"`
	Kind      Kind      `json:"kind"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

const defaultTTL = 6 * time.Second

// Center хранит активные уведомления; каждое само исчезает по TTL.
type Center struct {
	mu     sync.Mutex
	ttl    time.Duration
	nextID int64
	active map[int64]Notice
	expiry map[int64]*timer.Task
}

func NewCenter(ttl time.Duration) *Center {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Center{
		ttl:    ttl,
		active: make(map[int64]Notice),
		expiry: make(map[int64]*timer.Task),
	}
}

// Push добавляет уведомление и взводит его таймер скрытия.
func (c *Center) Push(kind Kind, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	id := c.nextID
	c.active[id] = Notice{ID: id, Kind: kind, Text: text, CreatedAt: time.Now().UTC()}
	c.expiry[id] = timer.After(c.ttl, func() {
		c.mu.Lock()
		delete(c.active, id)
		delete(c.expiry, id)
		c.mu.Unlock()
	})
}

// Dismiss скрывает уведомление руками раньше TTL.
func (c *Center) Dismiss(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if task, ok := c.expiry[id]; ok {
		task.Cancel()
	}
	delete(c.active, id)
	delete(c.expiry, id)
}

// Snapshot возвращает активные уведомления (старые первыми).
func (c *Center) Snapshot() []Notice {
	c.mu.Lock()
	out := make([]Notice, 0, len(c.active))
	for _, n := range c.active {
		out = append(out, n)
	}
	c.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SessionExpired реализует auth.Notifier: один сигнал эпизода — один баннер.
func (c *Center) SessionExpired(reason string) {
	logger.Infof("notice: session expired (%s)", reason)
	c.Push(KindSessionExpired, "Сессия истекла, войдите заново")
}
