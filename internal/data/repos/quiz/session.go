package quiz

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/KJJisBetter/scentmatch-sub009/internal/domain"
	"github.com/KJJisBetter/scentmatch-sub009/internal/platform/dbctx"
	"github.com/KJJisBetter/scentmatch-sub009/internal/platform/logger"
)

type SessionRepo interface {
	Create(dbc dbctx.Context, s *types.QuizSession) error
	TokenExists(dbc dbctx.Context, token string) (bool, error)
	GetByToken(dbc dbctx.Context, token string) (*types.QuizSession, error)
	CountByOriginSince(dbc dbctx.Context, ipHash string, since time.Time) (int64, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]any) error
	MarkExpired(dbc dbctx.Context, token string, now time.Time) error
	// ClaimForUser sets the owner only if the session is still unclaimed. It reports
	// whether this call performed the claim.
	ClaimForUser(dbc dbctx.Context, token string, userID uuid.UUID, now time.Time) (bool, error)
	ListExpiredGuestIDs(dbc dbctx.Context, now time.Time, limit int) ([]uuid.UUID, error)
	DeleteByIDs(dbc dbctx.Context, ids []uuid.UUID) (int64, error)
}

type sessionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSessionRepo(db *gorm.DB, baseLog *logger.Logger) SessionRepo {
	return &sessionRepo{
		db:  db,
		log: baseLog.With("repo", "QuizSessionRepo"),
	}
}

func (r *sessionRepo) Create(dbc dbctx.Context, s *types.QuizSession) error {
	if s == nil {
		return nil
	}
	return dbc.DB(r.db).Create(s).Error
}

func (r *sessionRepo) TokenExists(dbc dbctx.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	var n int64
	if err := dbc.DB(r.db).
		Model(&types.QuizSession{}).
		Where("session_token = ?", token).
		Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *sessionRepo) GetByToken(dbc dbctx.Context, token string) (*types.QuizSession, error) {
	if token == "" {
		return nil, nil
	}
	var row types.QuizSession
	if err := dbc.DB(r.db).
		Where("session_token = ?", token).
		Limit(1).
		Find(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, nil
	}
	return &row, nil
}

func (r *sessionRepo) CountByOriginSince(dbc dbctx.Context, ipHash string, since time.Time) (int64, error) {
	if ipHash == "" {
		return 0, nil
	}
	var n int64
	if err := dbc.DB(r.db).
		Model(&types.QuizSession{}).
		Where("ip_hash = ? AND created_at >= ?", ipHash, since).
		Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

func (r *sessionRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]any) error {
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return dbc.DB(r.db).
		Model(&types.QuizSession{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *sessionRepo) MarkExpired(dbc dbctx.Context, token string, now time.Time) error {
	if token == "" {
		return nil
	}
	return dbc.DB(r.db).
		Model(&types.QuizSession{}).
		Where("session_token = ? AND expires_at <= ? AND expired_at IS NULL", token, now).
		Updates(map[string]any{"expired_at": now, "updated_at": now}).Error
}

func (r *sessionRepo) ClaimForUser(dbc dbctx.Context, token string, userID uuid.UUID, now time.Time) (bool, error) {
	if token == "" || userID == uuid.Nil {
		return false, nil
	}
	res := dbc.DB(r.db).
		Model(&types.QuizSession{}).
		Where("session_token = ? AND user_id IS NULL", token).
		Updates(map[string]any{
			"user_id":        userID,
			"is_guest":       false,
			"transferred_at": now,
			"updated_at":     now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *sessionRepo) ListExpiredGuestIDs(dbc dbctx.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	if limit <= 0 {
		limit = 500
	}
	var ids []uuid.UUID
	if err := dbc.DB(r.db).
		Model(&types.QuizSession{}).
		Where("expires_at <= ? AND user_id IS NULL", now).
		Order("expires_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *sessionRepo) DeleteByIDs(dbc dbctx.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := dbc.DB(r.db).
		Where("id IN ? AND user_id IS NULL", ids).
		Delete(&types.QuizSession{})
	return res.RowsAffected, res.Error
}
