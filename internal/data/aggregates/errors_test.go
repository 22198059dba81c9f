package aggregates

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

func TestIsUniqueViolation(t *testing.T) {
	if !IsUniqueViolation(fmt.Errorf("create: %w", gorm.ErrDuplicatedKey)) {
		t.Fatalf("expected wrapped gorm duplicate to match")
	}
	if !IsUniqueViolation(&pgconn.PgError{Code: "23505"}) {
		t.Fatalf("expected pg 23505 to match")
	}
	if !IsUniqueViolation(errors.New("UNIQUE constraint failed: quiz_sessions.session_token")) {
		t.Fatalf("expected sqlite message to match")
	}
	if IsUniqueViolation(&pgconn.PgError{Code: "23503"}) {
		t.Fatalf("foreign key violation is not a unique violation")
	}
	if IsUniqueViolation(nil) {
		t.Fatalf("nil is not a violation")
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(context.DeadlineExceeded) {
		t.Fatalf("deadline should be retryable")
	}
	if !IsRetryable(&pgconn.PgError{Code: "40P01"}) {
		t.Fatalf("deadlock should be retryable")
	}
	if IsRetryable(errors.New("syntax error")) {
		t.Fatalf("syntax error is not retryable")
	}
}
