// Package store — хранилище текущих refresh-токенов стенда.
// Реализации: Redis (общий стенд) и память (-dev и тесты без Redis).
package store

import (
	"context"
	"time"
)

// TTL refresh-токена: сессия живёт, пока консоль обновляется хотя бы раз
// в этот срок.
const RefreshTokenTTL = 30 * 24 * time.Hour

// Store хранит единственный действующий refresh-токен на сессию.
// Ротация: Set перезаписывает, и предыдущее значение перестаёт совпадать.
type Store interface {
	SetRefreshToken(ctx context.Context, sessionID, token string) error
	GetRefreshToken(ctx context.Context, sessionID string) (string, error)
	DeleteRefreshToken(ctx context.Context, sessionID string) error
	Close() error
}
