package testutil

import (
	"context"
	"sync"

	"github.com/KJJisBetter/scentmatch-sub009/internal/data/aggregates"
	"github.com/KJJisBetter/scentmatch-sub009/internal/platform/dbctx"
)

// InjectedTxRunner runs aggregate bodies without a database and records how each
// transaction ended. Fail* fields inject failures at the matching step.
type InjectedTxRunner struct {
	mu sync.Mutex

	FailBegin  error
	FailCommit error

	BeginCalls    int
	CommitCalls   int
	RollbackCalls int
}

var _ aggregates.TxRunner = (*InjectedTxRunner)(nil)

func (r *InjectedTxRunner) InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error {
	r.mu.Lock()
	r.BeginCalls++
	failBegin, failCommit := r.FailBegin, r.FailCommit
	r.mu.Unlock()

	if failBegin != nil {
		return failBegin
	}
	if fn != nil {
		if err := fn(dbctx.Context{Ctx: ctx}); err != nil {
			r.count(&r.RollbackCalls)
			return err
		}
	}
	if failCommit != nil {
		r.count(&r.RollbackCalls)
		return failCommit
	}
	r.count(&r.CommitCalls)
	return nil
}

func (r *InjectedTxRunner) count(n *int) {
	r.mu.Lock()
	*n++
	r.mu.Unlock()
}
