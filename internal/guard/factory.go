package guard

import (
	"fmt"

	"github.com/hyperjump/nikki/internal/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// New returns the Guard selected by cfg.Backend ("memory" or "redis").
func New(cfg *config.GuardConfig, logger *zap.Logger) (Guard, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemory(), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		return NewRedis(client, "", cfg.TTL, logger), nil
	default:
		return nil, fmt.Errorf("unknown guard backend: %s", cfg.Backend)
	}
}
