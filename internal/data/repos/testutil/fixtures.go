package testutil

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/KJJisBetter/scentmatch-sub009/internal/domain"
)

func SeedSession(tb testing.TB, ctx context.Context, tx *gorm.DB, token string, expiresAt time.Time) *types.QuizSession {
	tb.Helper()
	now := time.Now().UTC()
	created := now
	if !expiresAt.After(created) {
		created = expiresAt.Add(-24 * time.Hour)
	}
	s := &types.QuizSession{
		ID:             uuid.New(),
		SessionToken:   token,
		IsGuest:        true,
		TotalQuestions: 5,
		IPHash:         "iphash",
		ExpiresAt:      expiresAt.UTC(),
		CreatedAt:      created,
		UpdatedAt:      created,
	}
	if err := tx.WithContext(ctx).Create(s).Error; err != nil {
		tb.Fatalf("seed session: %v", err)
	}
	return s
}

func SeedResponse(tb testing.TB, ctx context.Context, tx *gorm.DB, s *types.QuizSession, questionID, answer string) *types.QuizResponse {
	tb.Helper()
	r := &types.QuizResponse{
		ID:             uuid.New(),
		SessionID:      s.ID,
		SessionToken:   s.SessionToken,
		QuestionID:     questionID,
		AnswerValue:    answer,
		ResponseTimeMS: 1500,
		CreatedAt:      time.Now().UTC(),
	}
	if err := tx.WithContext(ctx).Create(r).Error; err != nil {
		tb.Fatalf("seed response: %v", err)
	}
	return r
}

func SeedProfile(tb testing.TB, ctx context.Context, tx *gorm.DB, s *types.QuizSession) *types.PersonalityProfile {
	tb.Helper()
	now := time.Now().UTC()
	p := &types.PersonalityProfile{
		ID:              uuid.New(),
		SessionID:       s.ID,
		SessionToken:    s.SessionToken,
		Fresh:           0.3,
		PrimaryType:     "fresh",
		ConfidenceScore: 0.2,
		ExperienceLevel: types.ExperienceBeginner,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := tx.WithContext(ctx).Create(p).Error; err != nil {
		tb.Fatalf("seed profile: %v", err)
	}
	return p
}

func SeedFragrance(tb testing.TB, ctx context.Context, tx *gorm.DB, id, brand, gender string, rating float64, accords ...string) *types.Fragrance {
	tb.Helper()
	raw, _ := json.Marshal(accords)
	f := &types.Fragrance{
		ID:              id,
		Name:            "Fragrance " + id,
		BrandName:       brand,
		Gender:          gender,
		Accords:         raw,
		RatingValue:     rating,
		RatingCount:     100,
		SampleAvailable: true,
		SamplePriceUSD:  4.5,
	}
	if err := tx.WithContext(ctx).Create(f).Error; err != nil {
		tb.Fatalf("seed fragrance: %v", err)
	}
	return f
}
