package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Config struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// NewClient creates a redis client. It does not dial until the first command.
func NewClient(cfg Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// Connect creates a client and verifies it answers PING within timeout.
func Connect(ctx context.Context, cfg Config, timeout time.Duration) (*redis.Client, error) {
	client := NewClient(cfg)
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s:%s: %w", cfg.Host, cfg.Port, err)
	}
	return client, nil
}
