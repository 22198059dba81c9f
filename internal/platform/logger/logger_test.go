package logger

import (
	"strings"
	"testing"
)

func TestSanitizeKVs_HashesIdentifiersAndRedactsSecrets(t *testing.T) {
	if !redactionOn() {
		t.Skip("LOG_REDACTION_ENABLED is off")
	}
	out := sanitizeKVs([]interface{}{
		"session_token", "abc123",
		"ip", "203.0.113.9",
		"user_agent", "curl/8.0",
		"question_id", "style",
	})
	if len(out) != 8 {
		t.Fatalf("len: want=8 got=%d", len(out))
	}
	if s, _ := out[1].(string); !strings.HasPrefix(s, "hash:") || strings.Contains(s, "abc123") {
		t.Fatalf("session_token: want hash got=%v", out[1])
	}
	if out[3] != "[REDACTED]" || out[5] != "[REDACTED]" {
		t.Fatalf("origin fields: want redacted got=%v %v", out[3], out[5])
	}
	if out[7] != "style" {
		t.Fatalf("question_id: want=%q got=%v", "style", out[7])
	}
}

func TestSanitizeKVs_HashIsStable(t *testing.T) {
	if !redactionOn() {
		t.Skip("LOG_REDACTION_ENABLED is off")
	}
	a := sanitizeKVs([]interface{}{"session_id", "s-1"})
	b := sanitizeKVs([]interface{}{"session_id", "s-1"})
	if a[1] != b[1] {
		t.Fatalf("hash: want stable got=%v and %v", a[1], b[1])
	}
}

func TestSanitizeKVs_RedactsJWTLookingValues(t *testing.T) {
	if !redactionOn() {
		t.Skip("LOG_REDACTION_ENABLED is off")
	}
	jwt := "eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiIxMjM0NTY3ODkwIn0.sig"
	out := sanitizeKVs([]interface{}{"note", jwt})
	if out[1] != "[REDACTED]" {
		t.Fatalf("jwt: want redacted got=%v", out[1])
	}
}
