package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/datatypes"

	"github.com/KJJisBetter/scentmatch-sub009/internal/data/aggregates"
	"github.com/KJJisBetter/scentmatch-sub009/internal/data/repos"
	types "github.com/KJJisBetter/scentmatch-sub009/internal/domain"
	"github.com/KJJisBetter/scentmatch-sub009/internal/observability"
	"github.com/KJJisBetter/scentmatch-sub009/internal/platform/dbctx"
	"github.com/KJJisBetter/scentmatch-sub009/internal/platform/logger"
)

// Rough per-row footprints used to report reclaimed storage after a sweep.
const (
	sessionRowBytes  = 512
	responseRowBytes = 256
	profileRowBytes  = 1024
)

type ResponseInput struct {
	QuestionID     string         `json:"question_id" validate:"required"`
	AnswerValue    string         `json:"answer_value"`
	ResponseTimeMS int            `json:"response_time_ms" validate:"min=0"`
	Metadata       datatypes.JSON `json:"metadata,omitempty"`
}

type progressRequest struct {
	SessionToken  string          `json:"session_token" validate:"required"`
	QuestionIndex int             `json:"question_index" validate:"min=0"`
	Responses     []ResponseInput `json:"responses" validate:"dive"`
}

type ProgressAck struct {
	SessionID       uuid.UUID `json:"session_id"`
	CurrentQuestion int       `json:"current_question"`
	TotalQuestions  int       `json:"total_questions"`
	Stored          int64     `json:"stored"`
}

type TransferResult struct {
	SessionID          uuid.UUID `json:"session_id"`
	UserID             uuid.UUID `json:"user_id"`
	ResponsesMoved     int64     `json:"responses_moved"`
	ProfileMoved       bool      `json:"profile_moved"`
	AlreadyTransferred bool      `json:"already_transferred"`
}

type SweepResult struct {
	Count             int64 `json:"count"`
	Responses         int64 `json:"responses"`
	Profiles          int64 `json:"profiles"`
	ReclaimedEstimate int64 `json:"reclaimed_estimate_bytes"`
}

type SessionService interface {
	CreateSession(ctx context.Context, origin OriginHints) (*types.QuizSession, error)
	// GetSession returns nil for unknown and expired sessions.
	GetSession(ctx context.Context, token string) (*types.QuizSession, error)
	// Lookup is GetSession with the miss reason as ErrSessionNotFound or ErrSessionExpired.
	Lookup(ctx context.Context, token string) (*types.QuizSession, error)
	SaveProgress(ctx context.Context, token string, questionIndex int, responses []ResponseInput) (ProgressAck, error)
	CompleteSession(ctx context.Context, token string) (*types.QuizSession, error)
	SetExperienceLevel(ctx context.Context, token, level string, totalQuestions int) (*types.QuizSession, error)
	TransferToUser(ctx context.Context, token string, userID uuid.UUID) (TransferResult, error)
	ExpireSweep(ctx context.Context) (SweepResult, error)
}

type SessionServiceDeps struct {
	Sessions  repos.QuizSessionRepo
	Aggregate aggregates.GuestSessionAggregate
	Counter   OriginCounter
	Hasher    *OriginHasher
	Events    EventEmitter
}

type sessionService struct {
	deps    SessionServiceDeps
	cfg     SessionConfig
	log     *logger.Logger
	metrics *observability.Metrics

	now    func() time.Time
	tokens func() (string, error)
	spawn  func(func())
}

func NewSessionService(deps SessionServiceDeps, cfg SessionConfig, baseLog *logger.Logger, metrics *observability.Metrics) SessionService {
	if deps.Events == nil {
		deps.Events = NopEmitter{}
	}
	if deps.Counter == nil {
		deps.Counter = NewStoreOriginCounter(deps.Sessions)
	}
	if deps.Hasher == nil {
		deps.Hasher = NewOriginHasher("")
	}
	s := &sessionService{
		deps:    deps,
		cfg:     cfg,
		log:     baseLog.With("service", "SessionService"),
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
		spawn:   func(f func()) { go f() },
	}
	s.tokens = func() (string, error) { return randomToken(cfg.TokenBytes) }
	return s
}

func randomToken(n int) (string, error) {
	if n <= 0 {
		n = 16
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func (s *sessionService) CreateSession(ctx context.Context, origin OriginHints) (*types.QuizSession, error) {
	ctx, span := observability.Tracer().Start(ctx, "quiz.session.create")
	defer span.End()

	now := s.now()
	ipHash := s.deps.Hasher.HashIP(origin.IP)
	uaHash := s.deps.Hasher.HashUserAgent(origin.UserAgent)

	if ipHash != "" && s.cfg.RateLimitQuota > 0 {
		n, err := s.deps.Counter.Count(ctx, ipHash, now.Add(-s.cfg.RateLimitWindow))
		if err != nil {
			return nil, fmt.Errorf("count origin sessions: %w", err)
		}
		if n >= int64(s.cfg.RateLimitQuota) {
			s.metrics.IncRateLimited()
			s.metrics.IncSessionCreated("rate_limited")
			span.SetAttributes(attribute.Bool("quiz.rate_limited", true))
			return nil, &RateLimitedError{RetryAfter: s.cfg.RateLimitWindow}
		}
	}

	attempts := s.cfg.TokenMaxAttempts
	if attempts <= 0 {
		attempts = 5
	}
	dbc := dbctx.Context{Ctx: ctx}
	for attempt := 1; attempt <= attempts; attempt++ {
		token, err := s.tokens()
		if err != nil {
			return nil, err
		}
		exists, err := s.deps.Sessions.TokenExists(dbc, token)
		if err != nil {
			return nil, fmt.Errorf("check token: %w", err)
		}
		if exists {
			s.log.Warn("session token collision", "attempt", attempt)
			continue
		}
		sess := &types.QuizSession{
			ID:             uuid.New(),
			SessionToken:   token,
			IsGuest:        true,
			TotalQuestions: s.cfg.DefaultTotalQuestions,
			IPHash:         ipHash,
			UserAgentHash:  uaHash,
			ExpiresAt:      now.Add(s.cfg.TTL),
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := s.deps.Sessions.Create(dbc, sess); err != nil {
			if aggregates.IsUniqueViolation(err) {
				s.log.Warn("session token lost insert race", "attempt", attempt)
				continue
			}
			return nil, fmt.Errorf("create session: %w", err)
		}

		if ipHash != "" {
			if err := s.deps.Counter.Add(ctx, ipHash, now, s.cfg.RateLimitWindow); err != nil {
				// The session exists already; an undercount only loosens the limit briefly.
				s.log.Warn("origin counter update failed", "error", err)
			}
		}
		s.metrics.IncSessionCreated("ok")
		s.deps.Events.Emit(ctx, EventSessionStarted, map[string]any{
			"session_id": sess.ID.String(),
			"expires_at": sess.ExpiresAt,
		})
		return sess, nil
	}

	s.metrics.IncSessionCreated("token_exhausted")
	s.log.Error("session token generation exhausted", "attempts", attempts)
	return nil, ErrTokenGenerationExhausted
}

func (s *sessionService) GetSession(ctx context.Context, token string) (*types.QuizSession, error) {
	sess, err := s.Lookup(ctx, token)
	if errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrSessionExpired) {
		return nil, nil
	}
	return sess, err
}

func (s *sessionService) Lookup(ctx context.Context, token string) (*types.QuizSession, error) {
	sess, err := s.deps.Sessions.GetByToken(dbctx.Context{Ctx: ctx}, token)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if sess == nil {
		return nil, ErrSessionNotFound
	}
	now := s.now()
	if sess.ExpiredAsOf(now) {
		if sess.ExpiredAt == nil && !sess.Claimed() {
			s.markExpired(token, now)
		}
		return nil, ErrSessionExpired
	}
	return sess, nil
}

// markExpired stamps expired_at off the request path. Failures are only logged.
func (s *sessionService) markExpired(token string, now time.Time) {
	s.spawn(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.deps.Sessions.MarkExpired(dbctx.Context{Ctx: ctx}, token, now); err != nil {
			s.log.Warn("lazy expiry failed", "session_token", token, "error", err)
		}
	})
}

func (s *sessionService) SaveProgress(ctx context.Context, token string, questionIndex int, responses []ResponseInput) (ProgressAck, error) {
	if err := validateStruct(progressRequest{
		SessionToken:  token,
		QuestionIndex: questionIndex,
		Responses:     responses,
	}); err != nil {
		return ProgressAck{}, err
	}
	rows := make([]*types.QuizResponse, 0, len(responses))
	for _, r := range responses {
		rows = append(rows, &types.QuizResponse{
			QuestionID:     r.QuestionID,
			AnswerValue:    r.AnswerValue,
			AnswerMetadata: r.Metadata,
			ResponseTimeMS: r.ResponseTimeMS,
		})
	}

	rec, err := s.deps.Aggregate.RecordProgress(ctx, aggregates.RecordProgressInput{
		Token:         token,
		QuestionIndex: questionIndex,
		Responses:     rows,
		Now:           s.now(),
	})
	if err != nil {
		return ProgressAck{}, err
	}
	return ProgressAck{
		SessionID:       rec.SessionID,
		CurrentQuestion: rec.CurrentQuestion,
		TotalQuestions:  rec.TotalQuestions,
		Stored:          rec.Stored,
	}, nil
}

func (s *sessionService) CompleteSession(ctx context.Context, token string) (*types.QuizSession, error) {
	sess, err := s.writable(ctx, token)
	if err != nil {
		return nil, err
	}
	if sess.IsCompleted {
		return sess, nil
	}
	now := s.now()
	if err := s.deps.Sessions.UpdateFields(dbctx.Context{Ctx: ctx}, sess.ID, map[string]any{
		"is_completed": true,
		"completed_at": now,
		"updated_at":   now,
	}); err != nil {
		return nil, fmt.Errorf("complete session: %w", err)
	}
	sess.IsCompleted = true
	sess.CompletedAt = &now
	sess.UpdatedAt = now
	return sess, nil
}

type experienceLevelRequest struct {
	Level string `json:"experience_level" validate:"experience_level"`
}

func (s *sessionService) SetExperienceLevel(ctx context.Context, token, level string, totalQuestions int) (*types.QuizSession, error) {
	if err := validateStruct(experienceLevelRequest{Level: level}); err != nil {
		return nil, err
	}
	sess, err := s.writable(ctx, token)
	if err != nil {
		return nil, err
	}
	if sess.ExperienceLevel == level && (totalQuestions <= 0 || sess.TotalQuestions == totalQuestions) {
		return sess, nil
	}
	updates := map[string]any{"experience_level": level}
	if totalQuestions > 0 {
		updates["total_questions"] = totalQuestions
		sess.TotalQuestions = totalQuestions
	}
	if err := s.deps.Sessions.UpdateFields(dbctx.Context{Ctx: ctx}, sess.ID, updates); err != nil {
		return nil, fmt.Errorf("set experience level: %w", err)
	}
	sess.ExperienceLevel = level
	return sess, nil
}

// writable resolves a session that anonymous callers may still change.
func (s *sessionService) writable(ctx context.Context, token string) (*types.QuizSession, error) {
	sess, err := s.Lookup(ctx, token)
	if err != nil {
		return nil, err
	}
	if sess.Claimed() {
		return nil, ErrSessionClaimed
	}
	return sess, nil
}

func (s *sessionService) TransferToUser(ctx context.Context, token string, userID uuid.UUID) (TransferResult, error) {
	ctx, span := observability.Tracer().Start(ctx, "quiz.session.transfer")
	defer span.End()

	if userID == uuid.Nil {
		return TransferResult{}, ErrUnauthorized
	}
	rec, err := s.deps.Aggregate.Transfer(ctx, aggregates.TransferInput{
		Token:  token,
		UserID: userID,
		Now:    s.now(),
	})
	if err != nil {
		s.metrics.IncTransfer(transferOutcome(err))
		return TransferResult{}, err
	}
	out := TransferResult{
		SessionID:          rec.SessionID,
		UserID:             rec.UserID,
		ResponsesMoved:     rec.ResponsesMoved,
		ProfileMoved:       rec.ProfileMoved,
		AlreadyTransferred: rec.AlreadyTransferred,
	}
	if out.AlreadyTransferred {
		s.metrics.IncTransfer("idempotent")
		return out, nil
	}
	s.metrics.IncTransfer("ok")
	s.log.Info("guest session transferred", "session_id", out.SessionID, "user_id", userID, "responses", out.ResponsesMoved)
	s.deps.Events.Emit(ctx, EventSessionTransferred, map[string]any{
		"session_id":      out.SessionID.String(),
		"responses_moved": out.ResponsesMoved,
		"profile_moved":   out.ProfileMoved,
	})
	return out, nil
}

func transferOutcome(err error) string {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return "not_found"
	case errors.Is(err, ErrSessionExpired):
		return "expired"
	case errors.Is(err, ErrSessionClaimed):
		return "claimed"
	default:
		return "error"
	}
}

func (s *sessionService) ExpireSweep(ctx context.Context) (SweepResult, error) {
	rec, err := s.deps.Aggregate.PurgeExpired(ctx, s.now(), s.cfg.SweepBatchSize, s.cfg.SweepMaxBatches)
	out := SweepResult{
		Count:     rec.Sessions,
		Responses: rec.Responses,
		Profiles:  rec.Profiles,
		ReclaimedEstimate: rec.Sessions*sessionRowBytes +
			rec.Responses*responseRowBytes +
			rec.Profiles*profileRowBytes,
	}
	s.metrics.ObserveSweep(out.Count, out.ReclaimedEstimate)
	if err != nil {
		return out, fmt.Errorf("expire sweep: %w", err)
	}
	return out, nil
}
