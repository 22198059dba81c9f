package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/KJJisBetter/scentmatch-sub009/internal/platform/ctxutil"
)

func TestTokenVerifier_AcceptsSignedToken(t *testing.T) {
	userID := uuid.New()
	tok, err := SignAccessToken("secret", userID, time.Minute)
	if err != nil {
		t.Fatalf("SignAccessToken: %v", err)
	}
	ctx, err := NewTokenVerifier("secret").SetContextFromToken(context.Background(), tok)
	if err != nil {
		t.Fatalf("SetContextFromToken: %v", err)
	}
	rd := ctxutil.GetRequestData(ctx)
	if rd == nil || rd.UserID != userID {
		t.Fatalf("want user %s in context got %+v", userID, rd)
	}
}

func TestTokenVerifier_Rejects(t *testing.T) {
	v := NewTokenVerifier("secret")
	wrongKey, _ := SignAccessToken("other", uuid.New(), time.Minute)
	expired, _ := SignAccessToken("secret", uuid.New(), -time.Minute)

	for name, tok := range map[string]string{"empty": "", "garbage": "abc.def.ghi", "wrong key": wrongKey, "expired": expired} {
		if _, err := v.SetContextFromToken(context.Background(), tok); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("%s: want ErrUnauthorized got %v", name, err)
		}
	}
}
