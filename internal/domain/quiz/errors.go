package quiz

import "errors"

var (
	ErrSessionNotFound = errors.New("quiz session not found")
	ErrSessionExpired  = errors.New("quiz session expired")
	// ErrSessionClaimed means the session belongs to an account and is closed to anonymous writes.
	ErrSessionClaimed = errors.New("quiz session already claimed")
)
