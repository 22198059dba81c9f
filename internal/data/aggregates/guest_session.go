package aggregates

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/KJJisBetter/scentmatch-sub009/internal/data/repos"
	types "github.com/KJJisBetter/scentmatch-sub009/internal/domain"
	"github.com/KJJisBetter/scentmatch-sub009/internal/domain/quiz"
	"github.com/KJJisBetter/scentmatch-sub009/internal/platform/dbctx"
	"github.com/KJJisBetter/scentmatch-sub009/internal/platform/logger"
)

const (
	opRecordProgress = "guest_session.record_progress"
	opTransfer       = "guest_session.transfer"
	opPurgeExpired   = "guest_session.purge_expired"
)

type RecordProgressInput struct {
	Token         string
	QuestionIndex int
	Responses     []*types.QuizResponse
	Now           time.Time
}

type ProgressRecord struct {
	SessionID       uuid.UUID
	CurrentQuestion int
	TotalQuestions  int
	Stored          int64
}

type TransferInput struct {
	Token  string
	UserID uuid.UUID
	Now    time.Time
}

type TransferRecord struct {
	SessionID          uuid.UUID
	UserID             uuid.UUID
	ResponsesMoved     int64
	ProfileMoved       bool
	AlreadyTransferred bool
}

type PurgeRecord struct {
	Sessions  int64
	Responses int64
	Profiles  int64
	Batches   int
}

// GuestSessionAggregate groups the multi-row writes on a guest session.
type GuestSessionAggregate interface {
	// RecordProgress stores answers and advances the question counter in one commit.
	RecordProgress(ctx context.Context, in RecordProgressInput) (ProgressRecord, error)
	// Transfer moves a guest session, its responses and profile to a user in one commit.
	Transfer(ctx context.Context, in TransferInput) (TransferRecord, error)
	// PurgeExpired deletes unclaimed sessions past expiry, one batch per commit.
	PurgeExpired(ctx context.Context, now time.Time, batchSize, maxBatches int) (PurgeRecord, error)
}

type GuestSessionAggregateDeps struct {
	Runner    TxRunner
	Sessions  repos.QuizSessionRepo
	Responses repos.QuizResponseRepo
	Profiles  repos.PersonalityProfileRepo
	Hooks     Hooks
}

type guestSessionAggregate struct {
	deps GuestSessionAggregateDeps
	log  *logger.Logger
}

func NewGuestSessionAggregate(deps GuestSessionAggregateDeps, baseLog *logger.Logger) GuestSessionAggregate {
	if deps.Hooks == nil {
		deps.Hooks = noopHooks{}
	}
	return &guestSessionAggregate{
		deps: deps,
		log:  baseLog.With("aggregate", "GuestSessionAggregate"),
	}
}

func (a *guestSessionAggregate) RecordProgress(ctx context.Context, in RecordProgressInput) (out ProgressRecord, err error) {
	start := time.Now()
	defer func() { a.observe(opRecordProgress, start, err, false) }()

	now := in.Now.UTC()
	if in.Now.IsZero() {
		now = time.Now().UTC()
	}

	err = a.deps.Runner.InTx(ctx, func(dbc dbctx.Context) error {
		s, err := a.loadWritable(dbc, in.Token, now)
		if err != nil {
			return err
		}

		rows := make([]*types.QuizResponse, 0, len(in.Responses))
		for _, r := range in.Responses {
			if r == nil || r.QuestionID == "" {
				continue
			}
			if r.ID == uuid.Nil {
				r.ID = uuid.New()
			}
			if r.CreatedAt.IsZero() {
				r.CreatedAt = now
			}
			r.SessionID = s.ID
			r.SessionToken = s.SessionToken
			rows = append(rows, r)
		}
		stored, err := a.deps.Responses.InsertIgnoringDuplicates(dbc, rows)
		if err != nil {
			return fmt.Errorf("insert responses: %w", err)
		}

		// Without an explicit index the counter advances by what was newly stored.
		current := s.CurrentQuestion
		if in.QuestionIndex <= 0 {
			current += int(stored)
		} else if in.QuestionIndex > current {
			current = in.QuestionIndex
		}
		if err := a.deps.Sessions.UpdateFields(dbc, s.ID, map[string]any{
			"current_question": current,
			"updated_at":       now,
		}); err != nil {
			return fmt.Errorf("update session progress: %w", err)
		}

		out = ProgressRecord{
			SessionID:       s.ID,
			CurrentQuestion: current,
			TotalQuestions:  s.TotalQuestions,
			Stored:          stored,
		}
		return nil
	})
	return out, err
}

func (a *guestSessionAggregate) Transfer(ctx context.Context, in TransferInput) (out TransferRecord, err error) {
	start := time.Now()
	idempotent := false
	defer func() { a.observe(opTransfer, start, err, idempotent) }()

	if in.UserID == uuid.Nil {
		return out, fmt.Errorf("transfer: user id required")
	}
	now := in.Now.UTC()
	if in.Now.IsZero() {
		now = time.Now().UTC()
	}

	err = a.deps.Runner.InTx(ctx, func(dbc dbctx.Context) error {
		s, err := a.deps.Sessions.GetByToken(dbc, in.Token)
		if err != nil {
			return fmt.Errorf("load session: %w", err)
		}
		if s == nil {
			return quiz.ErrSessionNotFound
		}
		if s.Claimed() {
			return a.alreadyClaimed(s, in.UserID, &out, &idempotent)
		}
		if s.ExpiredAsOf(now) {
			return quiz.ErrSessionExpired
		}

		claimed, err := a.deps.Sessions.ClaimForUser(dbc, in.Token, in.UserID, now)
		if err != nil {
			return fmt.Errorf("claim session: %w", err)
		}
		if !claimed {
			// A concurrent transfer committed between our read and the conditional update.
			a.deps.Hooks.IncConflict(opTransfer)
			s, err = a.deps.Sessions.GetByToken(dbc, in.Token)
			if err != nil {
				return fmt.Errorf("reload session: %w", err)
			}
			if s == nil {
				return quiz.ErrSessionNotFound
			}
			return a.alreadyClaimed(s, in.UserID, &out, &idempotent)
		}

		moved, err := a.deps.Responses.ReassignOwner(dbc, s.ID, in.UserID)
		if err != nil {
			return fmt.Errorf("reassign responses: %w", err)
		}
		profiles, err := a.deps.Profiles.ReassignOwner(dbc, s.ID, in.UserID)
		if err != nil {
			return fmt.Errorf("reassign profile: %w", err)
		}

		out = TransferRecord{
			SessionID:      s.ID,
			UserID:         in.UserID,
			ResponsesMoved: moved,
			ProfileMoved:   profiles > 0,
		}
		return nil
	})
	if err != nil {
		return TransferRecord{}, err
	}
	return out, nil
}

func (a *guestSessionAggregate) alreadyClaimed(s *types.QuizSession, userID uuid.UUID, out *TransferRecord, idempotent *bool) error {
	if s.UserID == nil || *s.UserID != userID {
		return quiz.ErrSessionClaimed
	}
	*idempotent = true
	*out = TransferRecord{
		SessionID:          s.ID,
		UserID:             userID,
		AlreadyTransferred: true,
	}
	return nil
}

func (a *guestSessionAggregate) PurgeExpired(ctx context.Context, now time.Time, batchSize, maxBatches int) (out PurgeRecord, err error) {
	start := time.Now()
	defer func() { a.observe(opPurgeExpired, start, err, false) }()

	if batchSize <= 0 {
		batchSize = 500
	}
	if maxBatches <= 0 {
		maxBatches = 1
	}
	now = now.UTC()

	for out.Batches < maxBatches {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		var listed int
		err = a.deps.Runner.InTx(ctx, func(dbc dbctx.Context) error {
			ids, err := a.deps.Sessions.ListExpiredGuestIDs(dbc, now, batchSize)
			if err != nil {
				return fmt.Errorf("list expired sessions: %w", err)
			}
			listed = len(ids)
			if listed == 0 {
				return nil
			}
			sessions, err := a.deps.Sessions.DeleteByIDs(dbc, ids)
			if err != nil {
				return fmt.Errorf("delete sessions: %w", err)
			}
			responses, err := a.deps.Responses.DeleteOrphansBySessionIDs(dbc, ids)
			if err != nil {
				return fmt.Errorf("delete responses: %w", err)
			}
			profiles, err := a.deps.Profiles.DeleteOrphansBySessionIDs(dbc, ids)
			if err != nil {
				return fmt.Errorf("delete profiles: %w", err)
			}
			out.Sessions += sessions
			out.Responses += responses
			out.Profiles += profiles
			return nil
		})
		if err != nil {
			return out, err
		}
		if listed == 0 {
			break
		}
		out.Batches++
		if listed < batchSize {
			break
		}
	}
	if out.Sessions > 0 {
		a.log.Info("purged expired guest sessions",
			"sessions", out.Sessions,
			"responses", out.Responses,
			"profiles", out.Profiles,
			"batches", out.Batches,
		)
	}
	return out, nil
}

// loadWritable returns the session if anonymous callers may still write to it at now.
func (a *guestSessionAggregate) loadWritable(dbc dbctx.Context, token string, now time.Time) (*types.QuizSession, error) {
	s, err := a.deps.Sessions.GetByToken(dbc, token)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if s == nil {
		return nil, quiz.ErrSessionNotFound
	}
	if s.Claimed() {
		return nil, quiz.ErrSessionClaimed
	}
	if s.ExpiredAsOf(now) {
		return nil, quiz.ErrSessionExpired
	}
	return s, nil
}

func (a *guestSessionAggregate) observe(op string, start time.Time, err error, idempotent bool) {
	status := "ok"
	switch {
	case err == nil && idempotent:
		status = "idempotent"
	case errors.Is(err, quiz.ErrSessionNotFound):
		status = "not_found"
	case errors.Is(err, quiz.ErrSessionExpired):
		status = "expired"
	case errors.Is(err, quiz.ErrSessionClaimed):
		status = "claimed"
	case err != nil:
		status = "error"
		if IsRetryable(err) {
			a.deps.Hooks.IncRetry(op)
		}
	}
	a.deps.Hooks.ObserveOperation(op, status, time.Since(start))
}
