package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Redis — реализация Store поверх Redis: общий стенд для нескольких
// инстансов консоли (токен ротируется одним, остальные видят сразу).
type Redis struct {
	cli *redis.Client
}

func NewRedis(ctx context.Context, url string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("redis ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Redis{cli: cli}, nil
}

func (r *Redis) Close() error {
	return r.cli.Close()
}

func (r *Redis) SetRefreshToken(ctx context.Context, sessionID, token string) error {
	return r.cli.Set(ctx, "refresh:"+sessionID, token, RefreshTokenTTL).Err()
}

func (r *Redis) GetRefreshToken(ctx context.Context, sessionID string) (string, error) {
	val, err := r.cli.Get(ctx, "refresh:"+sessionID).Result()
	if err == redis.Nil {
		return "", nil
	}
	return val, err
}

func (r *Redis) DeleteRefreshToken(ctx context.Context, sessionID string) error {
	return r.cli.Del(ctx, "refresh:"+sessionID).Err()
}
