package quiz

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// QuizResponse is one answer in a session. There is at most one row per
// (session, question) and it is never rewritten.
type QuizResponse struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID    uuid.UUID `gorm:"type:uuid;column:session_id;not null;uniqueIndex:ux_quiz_response_session_question,priority:1" json:"session_id"`
	SessionToken string    `gorm:"column:session_token;type:varchar(64);not null;index" json:"session_token"`
	QuestionID   string    `gorm:"column:question_id;type:varchar(128);not null;uniqueIndex:ux_quiz_response_session_question,priority:2" json:"question_id"`

	AnswerValue    string         `gorm:"column:answer_value;type:text;not null" json:"answer_value"`
	AnswerMetadata datatypes.JSON `gorm:"column:answer_metadata;type:jsonb" json:"answer_metadata,omitempty"`
	ResponseTimeMS int            `gorm:"column:response_time_ms;not null" json:"response_time_ms"`

	UserID    *uuid.UUID `gorm:"type:uuid;column:user_id;index" json:"user_id,omitempty"`
	CreatedAt time.Time  `gorm:"column:created_at;not null" json:"created_at"`
}

func (QuizResponse) TableName() string { return "quiz_responses" }
