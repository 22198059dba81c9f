package quiz

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/KJJisBetter/scentmatch-sub009/internal/domain"
	"github.com/KJJisBetter/scentmatch-sub009/internal/platform/dbctx"
	"github.com/KJJisBetter/scentmatch-sub009/internal/platform/logger"
)

type ProfileRepo interface {
	// Replace writes the profile for its session, overwriting any earlier computation.
	Replace(dbc dbctx.Context, p *types.PersonalityProfile) error
	GetBySessionID(dbc dbctx.Context, sessionID uuid.UUID) (*types.PersonalityProfile, error)
	ReassignOwner(dbc dbctx.Context, sessionID, userID uuid.UUID) (int64, error)
	// DeleteOrphansBySessionIDs removes rows of the given sessions once the session row itself is gone.
	DeleteOrphansBySessionIDs(dbc dbctx.Context, sessionIDs []uuid.UUID) (int64, error)
}

type profileRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProfileRepo(db *gorm.DB, baseLog *logger.Logger) ProfileRepo {
	return &profileRepo{
		db:  db,
		log: baseLog.With("repo", "PersonalityProfileRepo"),
	}
}

var profileRecomputedColumns = []string{
	"dimension_fresh",
	"dimension_floral",
	"dimension_oriental",
	"dimension_woody",
	"dimension_fruity",
	"dimension_gourmand",
	"intensity",
	"primary_type",
	"secondary_type",
	"confidence_score",
	"experience_level",
	"lifestyle_preferences",
	"occasion_preferences",
	"brand_preferences",
	"updated_at",
}

func (r *profileRepo) Replace(dbc dbctx.Context, p *types.PersonalityProfile) error {
	if p == nil {
		return nil
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return dbc.DB(r.db).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "session_id"}},
			DoUpdates: clause.AssignmentColumns(profileRecomputedColumns),
		}).
		Create(p).Error
}

func (r *profileRepo) GetBySessionID(dbc dbctx.Context, sessionID uuid.UUID) (*types.PersonalityProfile, error) {
	if sessionID == uuid.Nil {
		return nil, nil
	}
	var row types.PersonalityProfile
	if err := dbc.DB(r.db).
		Where("session_id = ?", sessionID).
		Limit(1).
		Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *profileRepo) ReassignOwner(dbc dbctx.Context, sessionID, userID uuid.UUID) (int64, error) {
	if sessionID == uuid.Nil || userID == uuid.Nil {
		return 0, nil
	}
	res := dbc.DB(r.db).
		Model(&types.PersonalityProfile{}).
		Where("session_id = ?", sessionID).
		Update("user_id", userID)
	return res.RowsAffected, res.Error
}

func (r *profileRepo) DeleteOrphansBySessionIDs(dbc dbctx.Context, sessionIDs []uuid.UUID) (int64, error) {
	if len(sessionIDs) == 0 {
		return 0, nil
	}
	res := dbc.DB(r.db).
		Where("session_id IN ?", sessionIDs).
		Where("NOT EXISTS (SELECT 1 FROM quiz_sessions s WHERE s.id = quiz_personality_profiles.session_id)").
		Delete(&types.PersonalityProfile{})
	return res.RowsAffected, res.Error
}
