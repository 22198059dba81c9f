package app

import (
	"strings"
	"time"

	"github.com/KJJisBetter/scentmatch-sub009/internal/platform/envutil"
	"github.com/KJJisBetter/scentmatch-sub009/internal/platform/logger"
	"github.com/KJJisBetter/scentmatch-sub009/internal/services"
)

type Config struct {
	Port           string
	ServiceName    string
	Environment    string
	Version        string
	AllowedOrigins []string

	JWTSecretKey string
	OriginSalt   string

	EventsChannel   string
	EventsLogTail   bool
	RedisKeyPrefix  string
	ShutdownTimeout time.Duration

	Session        services.SessionConfig
	Integrity      services.IntegrityConfig
	Recommendation services.RecommendationConfig
}

func LoadConfig(log *logger.Logger) Config {
	session := services.DefaultSessionConfig()
	session.TTL = envutil.Seconds("QUIZ_SESSION_TTL_SECONDS", session.TTL)
	session.RateLimitQuota = envutil.Int("QUIZ_RATE_LIMIT_QUOTA", session.RateLimitQuota)
	session.RateLimitWindow = envutil.Seconds("QUIZ_RATE_LIMIT_WINDOW_SECONDS", session.RateLimitWindow)
	session.TokenMaxAttempts = envutil.Int("QUIZ_TOKEN_MAX_ATTEMPTS", session.TokenMaxAttempts)
	session.SweepInterval = envutil.Seconds("QUIZ_SWEEP_INTERVAL_SECONDS", session.SweepInterval)
	session.SweepBatchSize = envutil.Int("QUIZ_SWEEP_BATCH_SIZE", session.SweepBatchSize)
	session.DefaultTotalQuestions = envutil.Int("QUIZ_DEFAULT_TOTAL_QUESTIONS", session.DefaultTotalQuestions)
	session.DraftTTL = envutil.Seconds("QUIZ_DRAFT_TTL_SECONDS", session.DraftTTL)
	session.DraftMaxEntries = envutil.Int("QUIZ_DRAFT_MAX_ENTRIES", session.DraftMaxEntries)

	integrity := services.DefaultIntegrityConfig()
	integrity.MinLatency = envutil.Millis("QUIZ_BOT_MIN_LATENCY_MS", integrity.MinLatency)
	integrity.UniformStdDevMS = envutil.Float("QUIZ_BOT_UNIFORM_STDDEV_MS", integrity.UniformStdDevMS)
	integrity.BotThreshold = envutil.Float("QUIZ_BOT_THRESHOLD", integrity.BotThreshold)
	integrity.CaptchaThreshold = envutil.Float("QUIZ_BOT_CAPTCHA_THRESHOLD", integrity.CaptchaThreshold)
	integrity.MinBatch = envutil.Int("QUIZ_BOT_MIN_BATCH", integrity.MinBatch)
	integrity.FastResponseWeight = envutil.Float("QUIZ_BOT_FAST_RESPONSE_WEIGHT", integrity.FastResponseWeight)
	integrity.UniformTimingWeight = envutil.Float("QUIZ_BOT_UNIFORM_TIMING_WEIGHT", integrity.UniformTimingWeight)
	integrity.FirstOptionWeight = envutil.Float("QUIZ_BOT_FIRST_OPTION_WEIGHT", integrity.FirstOptionWeight)
	integrity.NoHesitationWeight = envutil.Float("QUIZ_BOT_NO_HESITATION_WEIGHT", integrity.NoHesitationWeight)
	integrity.PatternFloor = envutil.Float("QUIZ_BOT_PATTERN_FLOOR", integrity.PatternFloor)
	integrity.DefaultFirstOption = envutil.String("QUIZ_BOT_DEFAULT_FIRST_OPTION", integrity.DefaultFirstOption)

	rec := services.DefaultRecommendationConfig()
	rec.MaxResults = envutil.Int("QUIZ_MAX_RECOMMENDATIONS", rec.MaxResults)
	rec.TierTimeout = envutil.Millis("QUIZ_TIER_TIMEOUT_MS", rec.TierTimeout)
	rec.AccordMatchBonus = envutil.Float("QUIZ_ACCORD_MATCH_BONUS", rec.AccordMatchBonus)
	rec.CacheTTL = envutil.Seconds("QUIZ_RECOMMENDATION_CACHE_TTL_SECONDS", rec.CacheTTL)
	rec.CacheMaxEntries = envutil.Int("QUIZ_RECOMMENDATION_CACHE_MAX_ENTRIES", rec.CacheMaxEntries)
	rec.BreakerCooldown = envutil.Seconds("QUIZ_BREAKER_COOLDOWN_SECONDS", rec.BreakerCooldown)
	if n := envutil.Int("QUIZ_BREAKER_FAILURES", int(rec.BreakerFailures)); n > 0 {
		rec.BreakerFailures = uint32(n)
	}

	cfg := Config{
		Port:            envutil.String("PORT", "8080"),
		ServiceName:     envutil.String("OTEL_SERVICE_NAME", "scentmatch-quiz"),
		Environment:     envutil.String("APP_ENV", "development"),
		Version:         envutil.String("APP_VERSION", "dev"),
		AllowedOrigins:  splitList(envutil.String("CORS_ALLOWED_ORIGINS", "")),
		JWTSecretKey:    envutil.String("JWT_SECRET_KEY", "defaultsecret"),
		OriginSalt:      envutil.String("QUIZ_ORIGIN_SALT", ""),
		EventsChannel:   envutil.String("QUIZ_EVENTS_CHANNEL", "quiz-events"),
		EventsLogTail:   envutil.Bool("QUIZ_EVENTS_LOG_TAIL", false),
		RedisKeyPrefix:  envutil.String("QUIZ_REDIS_KEY_PREFIX", "scentmatch:quiz"),
		ShutdownTimeout: envutil.Seconds("SHUTDOWN_TIMEOUT_SECONDS", 15*time.Second),
		Session:         session,
		Integrity:       integrity,
		Recommendation:  rec,
	}
	if log != nil {
		if cfg.JWTSecretKey == "defaultsecret" {
			log.Warn("JWT_SECRET_KEY not set, using development default")
		}
		if cfg.OriginSalt == "" {
			log.Warn("QUIZ_ORIGIN_SALT not set, origin hashes are unkeyed")
		}
	}
	return cfg
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}
