package store

import (
	"context"
	"sync"
	"time"
)

type item struct {
	val string
	exp time.Time
}

// Memory — in-memory реализация Store для -dev и тестов.
type Memory struct {
	mu     sync.RWMutex
	tokens map[string]item
}

func NewMemory() *Memory {
	return &Memory{tokens: make(map[string]item)}
}

func (m *Memory) Close() error { return nil }

func (m *Memory) SetRefreshToken(ctx context.Context, sessionID, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[sessionID] = item{val: token, exp: time.Now().Add(RefreshTokenTTL)}
	return nil
}

func (m *Memory) GetRefreshToken(ctx context.Context, sessionID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.tokens[sessionID]
	if !ok || time.Now().After(v.exp) {
		return "", nil
	}
	return v.val, nil
}

func (m *Memory) DeleteRefreshToken(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, sessionID)
	return nil
}
