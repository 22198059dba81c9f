package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/KJJisBetter/scentmatch-sub009/internal/platform/logger"
	"github.com/KJJisBetter/scentmatch-sub009/internal/services"
)

// Purger drops expired entries from an in-process store.
type Purger interface {
	Purge() int
}

// Sweeper periodically deletes expired guest sessions and purges in-process stores.
type Sweeper struct {
	log      *logger.Logger
	sessions services.SessionService
	purgers  []Purger
	interval time.Duration
	timeout  time.Duration
}

func NewSweeper(baseLog *logger.Logger, sessions services.SessionService, interval time.Duration, purgers ...Purger) *Sweeper {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Sweeper{
		log:      baseLog.With("component", "ExpirySweeper"),
		sessions: sessions,
		purgers:  purgers,
		interval: interval,
		timeout:  interval / 2,
	}
}

// Start runs the sweep loop until ctx is done.
func (w *Sweeper) Start(ctx context.Context) {
	w.log.Info("Starting expiry sweeper", "interval", w.interval.String())
	go w.runLoop(ctx)
}

func (w *Sweeper) runLoop(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("Sweeper loop stopped")
			return
		case <-ticker.C:
			if _, err := w.RunOnce(ctx); err != nil {
				w.log.Warn("Expiry sweep failed", "error", err)
			}
		}
	}
}

// RunOnce performs a single bounded sweep.
func (w *Sweeper) RunOnce(ctx context.Context) (res services.SweepResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("Expiry sweep panic", "panic", r)
			err = fmt.Errorf("sweep panic: %v", r)
		}
	}()
	for _, p := range w.purgers {
		if n := p.Purge(); n > 0 {
			w.log.Debug("Purged expired entries", "entries", n)
		}
	}

	sweepCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	res, err = w.sessions.ExpireSweep(sweepCtx)
	if err != nil {
		return res, err
	}
	if res.Count > 0 {
		w.log.Info("Expired guest sessions swept",
			"sessions", res.Count,
			"reclaimed_estimate_bytes", res.ReclaimedEstimate,
		)
	}
	return res, nil
}
