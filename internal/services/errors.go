package services

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/KJJisBetter/scentmatch-sub009/internal/domain/quiz"
)

var (
	ErrSessionNotFound = quiz.ErrSessionNotFound
	ErrSessionExpired  = quiz.ErrSessionExpired
	ErrSessionClaimed  = quiz.ErrSessionClaimed

	// ErrTokenGenerationExhausted means every attempt to allocate a unique token collided.
	ErrTokenGenerationExhausted = errors.New("could not allocate a unique session token")
	ErrUnauthorized             = errors.New("unauthorized")
)

// RateLimitedError rejects a session creation. It never says which bucket was exhausted.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("too many quiz sessions, retry after %s", e.RetryAfter.Round(time.Second))
}

// RetryAfterSeconds rounds up so clients never retry early.
func (e *RateLimitedError) RetryAfterSeconds() int {
	if e == nil || e.RetryAfter <= 0 {
		return 1
	}
	secs := int(e.RetryAfter / time.Second)
	if e.RetryAfter%time.Second != 0 {
		secs++
	}
	return secs
}

// ValidationError lists malformed or missing request fields.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return "validation failed"
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = map[string]string{}
	}
	if _, ok := e.Fields[field]; !ok {
		e.Fields[field] = msg
	}
}

func (e *ValidationError) orNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

func IsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

func IsRateLimited(err error) (*RateLimitedError, bool) {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return rl, true
	}
	return nil, false
}
