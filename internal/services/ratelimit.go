package services

import (
	"context"
	"time"

	"github.com/KJJisBetter/scentmatch-sub009/internal/data/repos"
	"github.com/KJJisBetter/scentmatch-sub009/internal/platform/dbctx"
)

// OriginCounter counts session creations per hashed origin over a trailing window.
// Counts may overshoot under concurrency; they never undershoot a committed creation.
type OriginCounter interface {
	Count(ctx context.Context, originHash string, since time.Time) (int64, error)
	Add(ctx context.Context, originHash string, at time.Time, window time.Duration) error
}

// storeOriginCounter counts the session rows themselves, so Add has nothing to do.
type storeOriginCounter struct {
	sessions repos.QuizSessionRepo
}

func NewStoreOriginCounter(sessions repos.QuizSessionRepo) OriginCounter {
	return &storeOriginCounter{sessions: sessions}
}

func (c *storeOriginCounter) Count(ctx context.Context, originHash string, since time.Time) (int64, error) {
	return c.sessions.CountByOriginSince(dbctx.Context{Ctx: ctx}, originHash, since)
}

func (c *storeOriginCounter) Add(context.Context, string, time.Time, time.Duration) error {
	return nil
}
