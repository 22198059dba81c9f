package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/KJJisBetter/scentmatch-sub009/internal/platform/logger"
)

type eventEnvelope struct {
	Name       string          `json:"name"`
	Payload    json.RawMessage `json:"payload"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// EventBus publishes analytics events on a pub/sub channel.
type EventBus struct {
	log     *logger.Logger
	rdb     goredis.UniversalClient
	channel string
}

func NewEventBus(rdb goredis.UniversalClient, channel string, log *logger.Logger) (*EventBus, error) {
	if rdb == nil {
		return nil, fmt.Errorf("redis client required")
	}
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if channel == "" {
		channel = "quiz-events"
	}
	return &EventBus{
		log:     log.With("client", "RedisEventBus"),
		rdb:     rdb,
		channel: channel,
	}, nil
}

func (b *EventBus) Publish(ctx context.Context, name string, payload []byte, at time.Time) error {
	raw, err := json.Marshal(eventEnvelope{Name: name, Payload: payload, OccurredAt: at.UTC()})
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, raw).Err()
}

// Subscribe forwards decoded events to onEvent until ctx is done.
func (b *EventBus) Subscribe(ctx context.Context, onEvent func(name string, payload []byte)) error {
	sub := b.rdb.Subscribe(ctx, b.channel)

	// ensures subscription actually started
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				var env eventEnvelope
				if err := json.Unmarshal([]byte(m.Payload), &env); err != nil {
					b.log.Warn("bad redis event payload", "error", err)
					continue
				}
				onEvent(env.Name, env.Payload)
			}
		}
	}()
	return nil
}
