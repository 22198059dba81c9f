package app

import (
	"context"
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/KJJisBetter/scentmatch-sub009/internal/clients/redis"
	"github.com/KJJisBetter/scentmatch-sub009/internal/platform/envutil"
	"github.com/KJJisBetter/scentmatch-sub009/internal/platform/logger"
)

type Clients struct {
	// Redis is nil when REDIS_ADDR is unset; callers fall back to in-process stores.
	Redis *goredis.Client
}

func wireClients(ctx context.Context, log *logger.Logger) (Clients, error) {
	log.Info("Wiring clients...")

	if strings.TrimSpace(envutil.String("REDIS_ADDR", "")) == "" {
		log.Warn("REDIS_ADDR not set, using in-process draft store and database rate limiting")
		return Clients{}, nil
	}
	rdb, err := redis.NewClient(ctx)
	if err != nil {
		return Clients{}, fmt.Errorf("init redis: %w", err)
	}
	return Clients{Redis: rdb}, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
}
