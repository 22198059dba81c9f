package catalog

import (
	"encoding/json"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/KJJisBetter/scentmatch-sub009/internal/domain"
	"github.com/KJJisBetter/scentmatch-sub009/internal/platform/dbctx"
	"github.com/KJJisBetter/scentmatch-sub009/internal/platform/logger"
)

// ComputedRecommendation is one row of get_quiz_recommendations.
type ComputedRecommendation struct {
	FragranceID     string  `gorm:"column:fragrance_id"`
	Name            string  `gorm:"column:name"`
	BrandName       string  `gorm:"column:brand_name"`
	MatchScore      float64 `gorm:"column:match_score"`
	Reasoning       string  `gorm:"column:reasoning"`
	SampleAvailable bool    `gorm:"column:sample_available"`
	SamplePriceUSD  float64 `gorm:"column:sample_price_usd"`
}

type ManualMatchFilter struct {
	Genders []string
	Limit   int
}

type FragranceRepo interface {
	// ComputeQuizRecommendations calls the storage-side recommendation procedure.
	ComputeQuizRecommendations(dbc dbctx.Context, level string, dimensions map[string]float64, max int) ([]ComputedRecommendation, error)
	ListForManualMatch(dbc dbctx.Context, f ManualMatchFilter) ([]*types.Fragrance, error)
	ListPopularSamples(dbc dbctx.Context, limit int) ([]*types.Fragrance, error)
	Upsert(dbc dbctx.Context, rows []*types.Fragrance) error
}

type fragranceRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewFragranceRepo(db *gorm.DB, baseLog *logger.Logger) FragranceRepo {
	return &fragranceRepo{
		db:  db,
		log: baseLog.With("repo", "FragranceRepo"),
	}
}

func (r *fragranceRepo) ComputeQuizRecommendations(dbc dbctx.Context, level string, dimensions map[string]float64, max int) ([]ComputedRecommendation, error) {
	if max <= 0 {
		return nil, nil
	}
	dims, err := json.Marshal(dimensions)
	if err != nil {
		return nil, fmt.Errorf("encode dimensions: %w", err)
	}
	var out []ComputedRecommendation
	if err := dbc.DB(r.db).
		Raw(`SELECT fragrance_id, name, brand_name, match_score, reasoning, sample_available, sample_price_usd
			FROM get_quiz_recommendations(?, ?::jsonb, ?)`, level, string(dims), max).
		Scan(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *fragranceRepo) ListForManualMatch(dbc dbctx.Context, f ManualMatchFilter) ([]*types.Fragrance, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	q := dbc.DB(r.db).
		Model(&types.Fragrance{}).
		Where("sample_available = ?", true)
	if len(f.Genders) > 0 {
		q = q.Where("gender IN ?", f.Genders)
	}
	var out []*types.Fragrance
	if err := q.
		Order("rating_value DESC").
		Order("id ASC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *fragranceRepo) ListPopularSamples(dbc dbctx.Context, limit int) ([]*types.Fragrance, error) {
	if limit <= 0 {
		return nil, nil
	}
	var out []*types.Fragrance
	if err := dbc.DB(r.db).
		Where("sample_available = ?", true).
		Order("rating_value DESC").
		Order("popularity_score DESC").
		Order("id ASC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *fragranceRepo) Upsert(dbc dbctx.Context, rows []*types.Fragrance) error {
	if len(rows) == 0 {
		return nil
	}
	return dbc.DB(r.db).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"name", "brand_name", "gender", "accords", "rating_value", "rating_count",
				"popularity_score", "sample_available", "sample_price_usd",
			}),
		}).
		Create(&rows).Error
}
