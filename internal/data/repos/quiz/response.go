package quiz

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/KJJisBetter/scentmatch-sub009/internal/domain"
	"github.com/KJJisBetter/scentmatch-sub009/internal/platform/dbctx"
	"github.com/KJJisBetter/scentmatch-sub009/internal/platform/logger"
)

type ResponseRepo interface {
	// InsertIgnoringDuplicates stores rows, leaving any existing (session, question) row untouched.
	InsertIgnoringDuplicates(dbc dbctx.Context, rows []*types.QuizResponse) (int64, error)
	ListBySessionToken(dbc dbctx.Context, token string) ([]*types.QuizResponse, error)
	ReassignOwner(dbc dbctx.Context, sessionID, userID uuid.UUID) (int64, error)
	// DeleteOrphansBySessionIDs removes rows of the given sessions once the session row itself is gone.
	DeleteOrphansBySessionIDs(dbc dbctx.Context, sessionIDs []uuid.UUID) (int64, error)
}

type responseRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewResponseRepo(db *gorm.DB, baseLog *logger.Logger) ResponseRepo {
	return &responseRepo{
		db:  db,
		log: baseLog.With("repo", "QuizResponseRepo"),
	}
}

func (r *responseRepo) InsertIgnoringDuplicates(dbc dbctx.Context, rows []*types.QuizResponse) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	res := dbc.DB(r.db).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "session_id"}, {Name: "question_id"}},
			DoNothing: true,
		}).
		Create(&rows)
	return res.RowsAffected, res.Error
}

func (r *responseRepo) ListBySessionToken(dbc dbctx.Context, token string) ([]*types.QuizResponse, error) {
	var out []*types.QuizResponse
	if token == "" {
		return out, nil
	}
	if err := dbc.DB(r.db).
		Where("session_token = ?", token).
		Order("created_at ASC, question_id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *responseRepo) ReassignOwner(dbc dbctx.Context, sessionID, userID uuid.UUID) (int64, error) {
	if sessionID == uuid.Nil || userID == uuid.Nil {
		return 0, nil
	}
	res := dbc.DB(r.db).
		Model(&types.QuizResponse{}).
		Where("session_id = ?", sessionID).
		Update("user_id", userID)
	return res.RowsAffected, res.Error
}

func (r *responseRepo) DeleteOrphansBySessionIDs(dbc dbctx.Context, sessionIDs []uuid.UUID) (int64, error) {
	if len(sessionIDs) == 0 {
		return 0, nil
	}
	res := dbc.DB(r.db).
		Where("session_id IN ?", sessionIDs).
		Where("NOT EXISTS (SELECT 1 FROM quiz_sessions s WHERE s.id = quiz_responses.session_id)").
		Delete(&types.QuizResponse{})
	return res.RowsAffected, res.Error
}
