package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

type chanPublisher struct {
	got chan string
	err error
}

func (p *chanPublisher) Publish(_ context.Context, name string, payload []byte, _ time.Time) error {
	var decoded map[string]any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return err
	}
	p.got <- name
	return p.err
}

func TestEventEmitter_PublishesInBackground(t *testing.T) {
	pub := &chanPublisher{got: make(chan string, 1)}
	e := NewEventEmitter(testLogger(t), nil, pub)

	e.Emit(context.Background(), EventAnalyzed, map[string]any{"recommendations": 3})

	select {
	case name := <-pub.got:
		if name != EventAnalyzed {
			t.Fatalf("want=%s got=%s", EventAnalyzed, name)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("event was not published")
	}
}

func TestEventEmitter_PublishFailureIsSwallowed(t *testing.T) {
	pub := &chanPublisher{got: make(chan string, 1), err: errors.New("bus down")}
	e := NewEventEmitter(testLogger(t), nil, pub)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e.Emit(ctx, EventBotBlocked, map[string]any{"confidence": 0.9})

	select {
	case <-pub.got:
	case <-time.After(2 * time.Second):
		t.Fatalf("publish should still be attempted after the request context ends")
	}
}

func TestEventEmitter_WithoutPublisher(t *testing.T) {
	e := NewEventEmitter(testLogger(t), nil, nil)
	e.Emit(context.Background(), EventSessionStarted, nil)
}
