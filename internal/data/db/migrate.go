package db

import (
	"fmt"

	"gorm.io/gorm"

	types "github.com/KJJisBetter/scentmatch-sub009/internal/domain"
)

// Migrate creates tables and, on postgres, the quiz indexes and stored procedures.
func Migrate(db *gorm.DB) error {
	if err := AutoMigrateAll(db); err != nil {
		return err
	}
	if db.Dialector.Name() != "postgres" {
		return nil
	}
	if err := EnsureQuizIndexes(db); err != nil {
		return err
	}
	return EnsureRecommendationProcedure(db)
}

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		// =========================
		// Guest quiz
		// =========================
		&types.QuizSession{},
		&types.QuizResponse{},
		&types.PersonalityProfile{},

		// =========================
		// Catalog
		// =========================
		&types.Fragrance{},
	)
}

func EnsureQuizIndexes(db *gorm.DB) error {
	// Sweep scans only unclaimed sessions.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_quiz_sessions_guest_expiry
		ON quiz_sessions (expires_at)
		WHERE user_id IS NULL;
	`).Error; err != nil {
		return fmt.Errorf("create idx_quiz_sessions_guest_expiry: %w", err)
	}
	// Rate-limit window counts.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_quiz_sessions_origin_window
		ON quiz_sessions (ip_hash, created_at DESC);
	`).Error; err != nil {
		return fmt.Errorf("create idx_quiz_sessions_origin_window: %w", err)
	}
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_fragrances_samples_by_rating
		ON fragrances (rating_value DESC)
		WHERE sample_available;
	`).Error; err != nil {
		return fmt.Errorf("create idx_fragrances_samples_by_rating: %w", err)
	}
	return nil
}

// EnsureRecommendationProcedure installs get_quiz_recommendations. A fragrance matches a
// dimension when any of its accords belongs to that dimension's family; match_score is the
// matched share of the caller's total dimension weight.
func EnsureRecommendationProcedure(db *gorm.DB) error {
	if err := db.Exec(`
		CREATE OR REPLACE FUNCTION get_quiz_recommendations(
			p_experience_level text,
			p_dimensions jsonb,
			p_max_results integer
		)
		RETURNS TABLE (
			fragrance_id varchar,
			name text,
			brand_name text,
			match_score double precision,
			reasoning text,
			sample_available boolean,
			sample_price_usd double precision
		)
		LANGUAGE sql STABLE AS $$
			WITH dims AS (
				SELECT d.key AS dimension, GREATEST(d.value::double precision, 0) AS weight
				FROM jsonb_each_text(p_dimensions) AS d
			),
			total AS (
				SELECT GREATEST(COALESCE(SUM(weight), 0), 0.000001) AS w FROM dims
			),
			family_accords (dimension, accord) AS (
				VALUES
					('fresh', 'citrus'), ('fresh', 'aquatic'), ('fresh', 'green'), ('fresh', 'fresh'),
					('floral', 'floral'), ('floral', 'rose'), ('floral', 'jasmine'), ('floral', 'white floral'),
					('oriental', 'amber'), ('oriental', 'spicy'), ('oriental', 'oud'), ('oriental', 'warm spicy'),
					('woody', 'woody'), ('woody', 'sandalwood'), ('woody', 'cedar'), ('woody', 'vetiver'),
					('fruity', 'fruity'), ('fruity', 'berry'), ('fruity', 'apple'), ('fruity', 'tropical'),
					('gourmand', 'vanilla'), ('gourmand', 'sweet'), ('gourmand', 'caramel'), ('gourmand', 'chocolate')
			),
			scored AS (
				SELECT
					f.id,
					f.name,
					f.brand_name,
					f.rating_value,
					f.sample_available,
					f.sample_price_usd,
					(
						SELECT COALESCE(SUM(dims.weight), 0)
						FROM dims
						WHERE EXISTS (
							SELECT 1
							FROM family_accords fa
							JOIN jsonb_array_elements_text(COALESCE(f.accords, '[]'::jsonb)) AS a(accord)
								ON lower(a.accord) = fa.accord
							WHERE fa.dimension = dims.dimension
						)
					) / (SELECT w FROM total) AS match
				FROM fragrances f
				WHERE f.sample_available
			)
			SELECT
				s.id::varchar,
				s.name::text,
				s.brand_name::text,
				LEAST(s.match, 1)::double precision,
				format('%s%% alignment with your %s scent profile', round((LEAST(s.match, 1) * 100)::numeric), p_experience_level),
				s.sample_available,
				s.sample_price_usd::double precision
			FROM scored s
			WHERE s.match > 0
			ORDER BY s.match DESC, s.rating_value DESC, s.id ASC
			LIMIT GREATEST(p_max_results, 0);
		$$;
	`).Error; err != nil {
		return fmt.Errorf("create get_quiz_recommendations: %w", err)
	}
	return nil
}
