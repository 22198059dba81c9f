package services

import (
	"time"

	types "github.com/KJJisBetter/scentmatch-sub009/internal/domain"
)

type SessionConfig struct {
	TTL              time.Duration
	RateLimitQuota   int
	RateLimitWindow  time.Duration
	TokenMaxAttempts int
	// TokenBytes is the number of random bytes behind each hex token.
	TokenBytes      int
	SweepBatchSize  int
	SweepMaxBatches int
	SweepInterval   time.Duration
	// DefaultTotalQuestions applies until an experience level picks a question plan.
	DefaultTotalQuestions int
	DraftTTL              time.Duration
	// DraftMaxEntries caps the in-process draft store.
	DraftMaxEntries int
}

func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		TTL:              24 * time.Hour,
		RateLimitQuota:   10,
		RateLimitWindow:  time.Hour,
		TokenMaxAttempts: 5,
		TokenBytes:       16,
		SweepBatchSize:   500,
		SweepMaxBatches:  20,
		SweepInterval:    15 * time.Minute,
		DraftTTL:         24 * time.Hour,
		DraftMaxEntries:  10000,
	}
}

type IntegrityConfig struct {
	MinLatency          time.Duration
	UniformStdDevMS     float64
	MinBatch            int
	FastResponseWeight  float64
	UniformTimingWeight float64
	FirstOptionWeight   float64
	NoHesitationWeight  float64
	PatternFloor        float64
	BotThreshold        float64
	CaptchaThreshold    float64
	// DefaultFirstOption identifies the first option when an answer carries no index.
	DefaultFirstOption string
}

func DefaultIntegrityConfig() IntegrityConfig {
	return IntegrityConfig{
		MinLatency:          50 * time.Millisecond,
		UniformStdDevMS:     15,
		MinBatch:            3,
		FastResponseWeight:  0.3,
		UniformTimingWeight: 0.4,
		FirstOptionWeight:   0.3,
		NoHesitationWeight:  0.2,
		PatternFloor:        0.91,
		BotThreshold:        0.75,
		CaptchaThreshold:    0.85,
		DefaultFirstOption:  "option1",
	}
}

type RecommendationConfig struct {
	MaxResults  int
	LevelSizes  map[string]int
	TierTimeout time.Duration

	ManualBaseScore      float64
	AccordMatchBonus     float64
	TopRatingBonus       float64
	GoodRatingBonus      float64
	PrestigeBonus        float64
	PrestigeBrands       []string
	ManualTopN           int
	ManualCandidateLimit int

	PopularStartPercent float64
	PopularStepPercent  float64

	BreakerFailures uint32
	BreakerCooldown time.Duration

	CacheTTL        time.Duration
	CacheMaxEntries int
}

func DefaultRecommendationConfig() RecommendationConfig {
	return RecommendationConfig{
		MaxResults: 8,
		LevelSizes: map[string]int{
			types.ExperienceBeginner:   8,
			types.ExperienceEnthusiast: 10,
			types.ExperienceCollector:  12,
		},
		TierTimeout:          2 * time.Second,
		ManualBaseScore:      50,
		AccordMatchBonus:     20,
		TopRatingBonus:       15,
		GoodRatingBonus:      10,
		PrestigeBonus:        10,
		PrestigeBrands:       []string{"chanel", "dior", "tom ford", "creed", "guerlain"},
		ManualTopN:           3,
		ManualCandidateLimit: 50,
		PopularStartPercent:  85,
		PopularStepPercent:   5,
		BreakerFailures:      5,
		BreakerCooldown:      30 * time.Second,
		CacheTTL:             10 * time.Minute,
		CacheMaxEntries:      1000,
	}
}

func (c RecommendationConfig) sizeFor(level string) int {
	if n, ok := c.LevelSizes[level]; ok && n > 0 {
		return n
	}
	if c.MaxResults > 0 {
		return c.MaxResults
	}
	return 8
}
