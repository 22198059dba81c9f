package quiz

import (
	"time"

	"github.com/google/uuid"
)

const (
	ExperienceBeginner   = "beginner"
	ExperienceEnthusiast = "enthusiast"
	ExperienceCollector  = "collector"
)

// ValidExperienceLevel reports whether level is one of the three known tiers.
func ValidExperienceLevel(level string) bool {
	switch level {
	case ExperienceBeginner, ExperienceEnthusiast, ExperienceCollector:
		return true
	default:
		return false
	}
}

// QuizSession is an anonymous, time-boxed quiz run. Origin identifiers are only kept
// as salted hashes and are used for rate-limit bucketing alone.
type QuizSession struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	SessionToken string    `gorm:"column:session_token;type:varchar(64);not null;uniqueIndex" json:"session_token"`

	// Ownership. UserID stays nil until the guest converts; IsGuest flips in the same write.
	UserID        *uuid.UUID `gorm:"type:uuid;column:user_id;index" json:"user_id,omitempty"`
	IsGuest       bool       `gorm:"column:is_guest;not null" json:"is_guest"`
	TransferredAt *time.Time `gorm:"column:transferred_at" json:"transferred_at,omitempty"`

	ExperienceLevel string `gorm:"column:experience_level;type:varchar(16)" json:"experience_level,omitempty"`
	CurrentQuestion int    `gorm:"column:current_question;not null" json:"current_question"`
	TotalQuestions  int    `gorm:"column:total_questions;not null" json:"total_questions"`

	IsCompleted bool       `gorm:"column:is_completed;not null" json:"is_completed"`
	CompletedAt *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`

	IPHash        string `gorm:"column:ip_hash;type:varchar(64);index" json:"-"`
	UserAgentHash string `gorm:"column:user_agent_hash;type:varchar(64)" json:"-"`

	ExpiresAt time.Time  `gorm:"column:expires_at;not null;index" json:"expires_at"`
	ExpiredAt *time.Time `gorm:"column:expired_at" json:"expired_at,omitempty"`
	CreatedAt time.Time  `gorm:"column:created_at;not null;index" json:"created_at"`
	UpdatedAt time.Time  `gorm:"column:updated_at;not null" json:"updated_at"`
}

func (QuizSession) TableName() string { return "quiz_sessions" }

// ExpiredAsOf reports whether the session is past its expiry at now.
func (s *QuizSession) ExpiredAsOf(now time.Time) bool {
	if s == nil {
		return true
	}
	return !now.Before(s.ExpiresAt)
}

// Claimed reports whether the session has been transferred to a user.
func (s *QuizSession) Claimed() bool {
	return s != nil && s.UserID != nil
}
