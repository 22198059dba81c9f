package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/KJJisBetter/scentmatch-sub009/internal/observability"
	"github.com/KJJisBetter/scentmatch-sub009/internal/platform/logger"
)

const (
	EventSessionStarted           = "quiz_session_started"
	EventAnswerSubmitted          = "quiz_answer_submitted"
	EventBotBlocked               = "quiz_bot_blocked"
	EventAnalyzed                 = "quiz_analyzed"
	EventSessionTransferred       = "quiz_session_transferred"
	EventRecommendationTierFailed = "recommendation_tier_failed"
)

// EventEmitter records analytics. Emit never blocks on delivery and never reports failure.
type EventEmitter interface {
	Emit(ctx context.Context, name string, payload map[string]any)
}

// EventPublisher delivers an encoded event to an external bus.
type EventPublisher interface {
	Publish(ctx context.Context, name string, payload []byte, at time.Time) error
}

type NopEmitter struct{}

func (NopEmitter) Emit(context.Context, string, map[string]any) {}

type eventEmitter struct {
	log       *logger.Logger
	metrics   *observability.Metrics
	publisher EventPublisher
	timeout   time.Duration
	now       func() time.Time
}

// NewEventEmitter logs every event and, when publisher is non-nil, forwards it in the background.
func NewEventEmitter(baseLog *logger.Logger, metrics *observability.Metrics, publisher EventPublisher) EventEmitter {
	return &eventEmitter{
		log:       baseLog.With("service", "EventEmitter"),
		metrics:   metrics,
		publisher: publisher,
		timeout:   2 * time.Second,
		now:       time.Now,
	}
}

func (e *eventEmitter) Emit(ctx context.Context, name string, payload map[string]any) {
	e.log.Debug("analytics event", "event", name, "payload", payload)
	if e.publisher == nil {
		e.metrics.IncEvent(name, "logged")
		return
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		e.metrics.IncEvent(name, "encode_failed")
		e.log.Warn("analytics event encode failed", "event", name, "error", err)
		return
	}
	at := e.now()
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.timeout)
	go func() {
		defer cancel()
		if err := e.publisher.Publish(pubCtx, name, raw, at); err != nil {
			e.metrics.IncEvent(name, "publish_failed")
			e.log.Warn("analytics event publish failed", "event", name, "error", err)
			return
		}
		e.metrics.IncEvent(name, "published")
	}()
}
