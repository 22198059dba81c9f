package quiz

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// PersonalityProfile is derived from a session's responses. It is recomputed and
// replaced as a whole, never patched.
type PersonalityProfile struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID    uuid.UUID  `gorm:"type:uuid;column:session_id;not null;uniqueIndex" json:"session_id"`
	SessionToken string     `gorm:"column:session_token;type:varchar(64);not null;index" json:"session_token"`
	UserID       *uuid.UUID `gorm:"type:uuid;column:user_id;index" json:"user_id,omitempty"`

	Fresh    float64 `gorm:"column:dimension_fresh;not null" json:"fresh"`
	Floral   float64 `gorm:"column:dimension_floral;not null" json:"floral"`
	Oriental float64 `gorm:"column:dimension_oriental;not null" json:"oriental"`
	Woody    float64 `gorm:"column:dimension_woody;not null" json:"woody"`
	Fruity   float64 `gorm:"column:dimension_fruity;not null" json:"fruity"`
	Gourmand float64 `gorm:"column:dimension_gourmand;not null" json:"gourmand"`

	Intensity       float64 `gorm:"column:intensity;not null" json:"intensity"`
	PrimaryType     string  `gorm:"column:primary_type;type:varchar(64);not null" json:"primary_type"`
	SecondaryType   *string `gorm:"column:secondary_type;type:varchar(64)" json:"secondary_type,omitempty"`
	ConfidenceScore float64 `gorm:"column:confidence_score;not null" json:"confidence_score"`
	ExperienceLevel string  `gorm:"column:experience_level;type:varchar(16)" json:"experience_level"`

	LifestylePreferences datatypes.JSON `gorm:"column:lifestyle_preferences;type:jsonb" json:"lifestyle_preferences,omitempty"`
	OccasionPreferences  datatypes.JSON `gorm:"column:occasion_preferences;type:jsonb" json:"occasion_preferences,omitempty"`
	BrandPreferences     datatypes.JSON `gorm:"column:brand_preferences;type:jsonb" json:"brand_preferences,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at;not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null" json:"updated_at"`
}

func (PersonalityProfile) TableName() string { return "quiz_personality_profiles" }
