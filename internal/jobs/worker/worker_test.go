package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/KJJisBetter/scentmatch-sub009/internal/data/repos/testutil"
	"github.com/KJJisBetter/scentmatch-sub009/internal/services"
)

type fakeSessions struct {
	services.SessionService
	calls  int
	result services.SweepResult
	err    error
	panic  bool
}

func (f *fakeSessions) ExpireSweep(ctx context.Context) (services.SweepResult, error) {
	f.calls++
	if f.panic {
		panic("boom")
	}
	if _, ok := ctx.Deadline(); !ok {
		return services.SweepResult{}, errors.New("sweep ran without a deadline")
	}
	return f.result, f.err
}

func TestRunOnce_ReturnsSweepResult(t *testing.T) {
	fake := &fakeSessions{result: services.SweepResult{Count: 3, ReclaimedEstimate: 1536}}
	w := NewSweeper(testutil.Logger(t), fake, time.Minute)

	res, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if res.Count != 3 || fake.calls != 1 {
		t.Fatalf("want count=3 calls=1 got count=%d calls=%d", res.Count, fake.calls)
	}
}

func TestRunOnce_RecoversFromPanic(t *testing.T) {
	fake := &fakeSessions{panic: true}
	w := NewSweeper(testutil.Logger(t), fake, time.Minute)

	if _, err := w.RunOnce(context.Background()); err == nil {
		t.Fatalf("want error after panic")
	}
}

func TestStart_SweepsOnTicker(t *testing.T) {
	fake := &fakeSessions{}
	done := make(chan struct{})
	w := NewSweeper(testutil.Logger(t), &signalSessions{fakeSessions: fake, done: done}, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w.Start(ctx)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("sweeper did not tick")
	}
}

type signalSessions struct {
	*fakeSessions
	done chan struct{}
	sent bool
}

func (s *signalSessions) ExpireSweep(ctx context.Context) (services.SweepResult, error) {
	res, err := s.fakeSessions.ExpireSweep(ctx)
	if !s.sent {
		s.sent = true
		close(s.done)
	}
	return res, err
}

type countingPurger struct {
	calls int
}

func (p *countingPurger) Purge() int {
	p.calls++
	return 2
}

func TestRunOnce_PurgesInProcessStores(t *testing.T) {
	fake := &fakeSessions{err: errors.New("db down")}
	purger := &countingPurger{}
	w := NewSweeper(testutil.Logger(t), fake, time.Minute, purger)

	if _, err := w.RunOnce(context.Background()); err == nil {
		t.Fatalf("want sweep error")
	}
	if purger.calls != 1 {
		t.Fatalf("purges want=1 got=%d", purger.calls)
	}
}

func TestRunOnce_PurgesMemoryDrafts(t *testing.T) {
	drafts := services.NewMemoryDraftStore(0)
	if err := drafts.Set(context.Background(), "tok", []byte(`{}`), time.Nanosecond); err != nil {
		t.Fatalf("Set: %v", err)
	}
	time.Sleep(time.Millisecond)
	w := NewSweeper(testutil.Logger(t), &fakeSessions{}, time.Minute, drafts)

	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if n := drafts.Len(); n != 0 {
		t.Fatalf("entries want=0 got=%d", n)
	}
}
