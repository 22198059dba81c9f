package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// WindowCounter keeps one sorted set per key, scored by event time, so a trailing
// window can be counted without fixed bucket edges.
type WindowCounter struct {
	rdb    goredis.UniversalClient
	prefix string
}

func NewWindowCounter(rdb goredis.UniversalClient, prefix string) *WindowCounter {
	if prefix == "" {
		prefix = "quiz:origin:"
	}
	return &WindowCounter{rdb: rdb, prefix: prefix}
}

func (c *WindowCounter) Count(ctx context.Context, key string, since time.Time) (int64, error) {
	k := c.prefix + key
	pipe := c.rdb.Pipeline()
	pipe.ZRemRangeByScore(ctx, k, "-inf", "("+strconv.FormatInt(since.UnixMilli(), 10))
	card := pipe.ZCard(ctx, k)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("window count: %w", err)
	}
	return card.Val(), nil
}

func (c *WindowCounter) Add(ctx context.Context, key string, at time.Time, window time.Duration) error {
	k := c.prefix + key
	pipe := c.rdb.TxPipeline()
	pipe.ZAdd(ctx, k, goredis.Z{Score: float64(at.UnixMilli()), Member: uuid.NewString()})
	pipe.Expire(ctx, k, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("window add: %w", err)
	}
	return nil
}
