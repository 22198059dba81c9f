package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/KJJisBetter/scentmatch-sub009/internal/data/repos"
	types "github.com/KJJisBetter/scentmatch-sub009/internal/domain"
	"github.com/KJJisBetter/scentmatch-sub009/internal/observability"
	"github.com/KJJisBetter/scentmatch-sub009/internal/platform/dbctx"
	"github.com/KJJisBetter/scentmatch-sub009/internal/platform/logger"
)

const (
	TierPrimary = "primary"
	TierManual  = "manual"
	TierPopular = "popular"

	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceGood   = "good"
)

var errTierEmpty = errors.New("tier produced no rows")

type Recommendation struct {
	FragranceID     string  `json:"fragrance_id"`
	Name            string  `json:"name"`
	Brand           string  `json:"brand"`
	MatchScore      float64 `json:"match_score"`
	MatchPercentage float64 `json:"match_percentage"`
	Confidence      float64 `json:"confidence"`
	ConfidenceTier  string  `json:"confidence_tier"`
	ComplexityLabel string  `json:"complexity_label,omitempty"`
	Reasoning       string  `json:"reasoning"`
	SampleAvailable bool    `json:"sample_available"`
	SamplePriceUSD  float64 `json:"sample_price_usd"`
	Source          string  `json:"source"`
}

type ResolveInput struct {
	Profile      Profile
	Level        string
	Favorites    []Favorite
	SessionToken string
}

type RecommendationResolver interface {
	// Resolve walks the tiers in order and returns the first non-empty result. It never
	// fails: total exhaustion yields an empty slice.
	Resolve(ctx context.Context, in ResolveInput) []Recommendation
}

var levelConfidenceMultiplier = map[string]float64{
	types.ExperienceBeginner:   0.9,
	types.ExperienceEnthusiast: 1.0,
	types.ExperienceCollector:  1.1,
}

var levelComplexityLabel = map[string]string{
	types.ExperienceBeginner:   "Simple & Elegant",
	types.ExperienceEnthusiast: "Balanced Complexity",
	types.ExperienceCollector:  "Sophisticated Artistry",
}

// accordKeywords expands answer tokens into catalog accord keywords.
var accordKeywords = map[string][]string{
	"fresh":    {"citrus", "fresh", "aquatic", "green"},
	"citrus":   {"citrus"},
	"clean":    {"fresh", "aquatic"},
	"floral":   {"floral", "rose", "jasmine"},
	"romantic": {"floral", "rose"},
	"woody":    {"woody", "sandalwood", "cedar"},
	"earthy":   {"woody", "vetiver"},
	"warm":     {"amber", "warm spicy"},
	"spicy":    {"spicy"},
	"oriental": {"amber", "oud"},
	"fruity":   {"fruity", "berry"},
	"sweet":    {"sweet", "vanilla"},
	"gourmand": {"vanilla", "sweet", "caramel"},
	"vanilla":  {"vanilla"},
}

var genderFilters = map[string][]string{
	"women":     {"women", "unisex"},
	"feminine":  {"women", "unisex"},
	"men":       {"men", "unisex"},
	"masculine": {"men", "unisex"},
}

type recommendationResolver struct {
	fragrances repos.FragranceRepo
	responses  repos.QuizResponseRepo
	cache      *RecommendationCache
	events     EventEmitter
	breaker    *gobreaker.CircuitBreaker[[]repos.ComputedRecommendation]
	cfg        RecommendationConfig
	log        *logger.Logger
	metrics    *observability.Metrics
}

type RecommendationDeps struct {
	Fragrances repos.FragranceRepo
	Responses  repos.QuizResponseRepo
	// Cache is optional.
	Cache  *RecommendationCache
	Events EventEmitter
}

func NewRecommendationResolver(deps RecommendationDeps, cfg RecommendationConfig, baseLog *logger.Logger, metrics *observability.Metrics) RecommendationResolver {
	log := baseLog.With("service", "RecommendationResolver")
	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	breaker := gobreaker.NewCircuitBreaker[[]repos.ComputedRecommendation](gobreaker.Settings{
		Name:        "quiz-recommendation-procedure",
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	events := deps.Events
	if events == nil {
		events = NopEmitter{}
	}
	return &recommendationResolver{
		fragrances: deps.Fragrances,
		responses:  deps.Responses,
		cache:      deps.Cache,
		events:     events,
		breaker:    breaker,
		cfg:        cfg,
		log:        log,
		metrics:    metrics,
	}
}

func (r *recommendationResolver) Resolve(ctx context.Context, in ResolveInput) []Recommendation {
	if !types.ValidExperienceLevel(in.Level) {
		in.Level = types.ExperienceBeginner
	}
	if r.cache == nil {
		return r.resolve(ctx, in)
	}
	key := CacheKey(in.Level, in.Profile.PrimaryType, in.SessionToken)
	return r.cache.GetOrLoad(key, func() []Recommendation {
		// Shared by every waiter on this key, so the first caller's cancellation must not leak in.
		return r.resolve(context.WithoutCancel(ctx), in)
	})
}

type tierFunc func(ctx context.Context, in ResolveInput, size int) ([]Recommendation, error)

func (r *recommendationResolver) resolve(ctx context.Context, in ResolveInput) []Recommendation {
	ctx, span := observability.Tracer().Start(ctx, "quiz.recommendations.resolve")
	defer span.End()

	size := r.cfg.sizeFor(in.Level)
	tiers := []struct {
		name string
		run  tierFunc
	}{
		{TierPrimary, r.primaryTier},
		{TierManual, r.manualTier},
		{TierPopular, r.popularTier},
	}
	for _, tier := range tiers {
		recs, err := r.runTier(ctx, tier.name, tier.run, in, size)
		if err != nil {
			continue
		}
		sortForLevel(recs, in.Level)
		if limit := r.finalLimit(size); len(recs) > limit {
			recs = recs[:limit]
		}
		span.SetAttributes(attribute.String("quiz.recommendations.tier", tier.name), attribute.Int("quiz.recommendations.count", len(recs)))
		return recs
	}
	span.SetStatus(codes.Error, "all recommendation tiers exhausted")
	r.log.Error("all recommendation tiers exhausted", "experience_level", in.Level)
	return []Recommendation{}
}

func (r *recommendationResolver) runTier(ctx context.Context, name string, run tierFunc, in ResolveInput, size int) ([]Recommendation, error) {
	ctx, span := observability.Tracer().Start(ctx, "quiz.recommendations."+name)
	defer span.End()

	if r.cfg.TierTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.TierTimeout)
		defer cancel()
	}
	start := time.Now()
	recs, err := run(ctx, in, size)
	if err == nil && len(recs) == 0 {
		err = errTierEmpty
	}
	if err != nil {
		outcome := "error"
		if errors.Is(err, errTierEmpty) {
			outcome = "empty"
		}
		r.metrics.ObserveRecommendationTier(name, outcome, time.Since(start))
		span.RecordError(err)
		r.log.Warn("recommendation tier failed", "tier", name, "outcome", outcome, "error", err)
		r.events.Emit(ctx, EventRecommendationTierFailed, map[string]any{
			"tier":             name,
			"outcome":          outcome,
			"experience_level": in.Level,
		})
		return nil, err
	}
	r.metrics.ObserveRecommendationTier(name, "ok", time.Since(start))
	return recs, nil
}

func (r *recommendationResolver) finalLimit(size int) int {
	limit := size
	if r.cfg.MaxResults > 0 && r.cfg.MaxResults < limit {
		limit = r.cfg.MaxResults
	}
	return limit
}

func (r *recommendationResolver) primaryTier(ctx context.Context, in ResolveInput, size int) ([]Recommendation, error) {
	rows, err := r.breaker.Execute(func() ([]repos.ComputedRecommendation, error) {
		return r.fragrances.ComputeQuizRecommendations(dbctx.Context{Ctx: ctx}, in.Level, in.Profile.Dimensions.Map(), size)
	})
	if err != nil {
		return nil, fmt.Errorf("recommendation procedure: %w", err)
	}
	mult := levelConfidenceMultiplier[in.Level]
	label := levelComplexityLabel[in.Level]
	out := make([]Recommendation, 0, len(rows))
	for _, row := range rows {
		match := clamp01(row.MatchScore)
		confidence := clamp01(match * mult)
		out = append(out, Recommendation{
			FragranceID:     row.FragranceID,
			Name:            row.Name,
			Brand:           row.BrandName,
			MatchScore:      match,
			MatchPercentage: math.Round(match * 100),
			Confidence:      confidence,
			ConfidenceTier:  confidenceTier(match),
			ComplexityLabel: label,
			Reasoning:       row.Reasoning,
			SampleAvailable: row.SampleAvailable,
			SamplePriceUSD:  row.SamplePriceUSD,
			Source:          TierPrimary,
		})
	}
	return out, nil
}

type manualCandidate struct {
	f       *types.Fragrance
	score   float64
	matched []string
}

func (r *recommendationResolver) manualTier(ctx context.Context, in ResolveInput, _ int) ([]Recommendation, error) {
	dbc := dbctx.Context{Ctx: ctx}
	stored, err := r.responses.ListBySessionToken(dbc, in.SessionToken)
	if err != nil {
		return nil, fmt.Errorf("load responses: %w", err)
	}
	genders, keywords := manualPreferences(stored)

	rows, err := r.fragrances.ListForManualMatch(dbc, repos.ManualMatchFilter{
		Genders: genders,
		Limit:   r.cfg.ManualCandidateLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("catalog query: %w", err)
	}

	prestige := make(map[string]struct{}, len(r.cfg.PrestigeBrands))
	for _, b := range r.cfg.PrestigeBrands {
		prestige[strings.ToLower(strings.TrimSpace(b))] = struct{}{}
	}

	candidates := make([]manualCandidate, 0, len(rows))
	for _, f := range rows {
		c := manualCandidate{f: f, score: r.cfg.ManualBaseScore}
		accords := f.AccordList()
		for _, kw := range keywords {
			if accordMatches(accords, kw) {
				c.score += r.cfg.AccordMatchBonus
				c.matched = append(c.matched, kw)
			}
		}
		switch {
		case f.RatingValue >= 4.5:
			c.score += r.cfg.TopRatingBonus
		case f.RatingValue >= 4.0:
			c.score += r.cfg.GoodRatingBonus
		}
		if _, ok := prestige[strings.ToLower(strings.TrimSpace(f.BrandName))]; ok {
			c.score += r.cfg.PrestigeBonus
		}
		candidates = append(candidates, c)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	topN := r.cfg.ManualTopN
	if topN <= 0 {
		topN = 3
	}
	if len(candidates) > topN {
		candidates = candidates[:topN]
	}

	out := make([]Recommendation, 0, len(candidates))
	for _, c := range candidates {
		match := math.Min(c.score, 100) / 100
		reason := "Highly rated and available as a sample"
		if len(c.matched) > 0 {
			reason = "Matches your preference for " + strings.Join(c.matched, ", ")
		}
		out = append(out, Recommendation{
			FragranceID:     c.f.ID,
			Name:            c.f.Name,
			Brand:           c.f.BrandName,
			MatchScore:      match,
			MatchPercentage: c.score,
			Confidence:      match,
			ConfidenceTier:  confidenceTier(match),
			ComplexityLabel: levelComplexityLabel[in.Level],
			Reasoning:       reason,
			SampleAvailable: c.f.SampleAvailable,
			SamplePriceUSD:  c.f.SamplePriceUSD,
			Source:          TierManual,
		})
	}
	return out, nil
}

func (r *recommendationResolver) popularTier(ctx context.Context, in ResolveInput, size int) ([]Recommendation, error) {
	rows, err := r.fragrances.ListPopularSamples(dbctx.Context{Ctx: ctx}, size)
	if err != nil {
		return nil, fmt.Errorf("popular samples: %w", err)
	}
	out := make([]Recommendation, 0, len(rows))
	for i, f := range rows {
		pct := math.Max(r.cfg.PopularStartPercent-float64(i)*r.cfg.PopularStepPercent, 0)
		match := pct / 100
		out = append(out, Recommendation{
			FragranceID:     f.ID,
			Name:            f.Name,
			Brand:           f.BrandName,
			MatchScore:      match,
			MatchPercentage: pct,
			Confidence:      match,
			ConfidenceTier:  confidenceTier(match),
			ComplexityLabel: levelComplexityLabel[in.Level],
			Reasoning:       "Popular with new explorers",
			SampleAvailable: f.SampleAvailable,
			SamplePriceUSD:  f.SamplePriceUSD,
			Source:          TierPopular,
		})
	}
	return out, nil
}

// manualPreferences re-derives a gender filter and accord keywords from raw answers.
func manualPreferences(stored []*types.QuizResponse) (genders []string, keywords []string) {
	seen := map[string]struct{}{}
	for _, resp := range stored {
		if resp == nil {
			continue
		}
		isGender := strings.Contains(strings.ToLower(resp.QuestionID), "gender")
		for _, value := range splitAnswer(resp.AnswerValue) {
			if isGender {
				if g, ok := genderFilters[value]; ok {
					genders = g
				}
				continue
			}
			for _, token := range strings.Split(value, "_") {
				for _, kw := range accordKeywords[token] {
					if _, dup := seen[kw]; dup {
						continue
					}
					seen[kw] = struct{}{}
					keywords = append(keywords, kw)
				}
			}
		}
	}
	sort.Strings(keywords)
	return genders, keywords
}

func accordMatches(accords []string, keyword string) bool {
	for _, a := range accords {
		if a == keyword || strings.Contains(a, keyword) {
			return true
		}
	}
	return false
}

func confidenceTier(match float64) string {
	switch {
	case match >= 0.85:
		return ConfidenceHigh
	case match >= 0.7:
		return ConfidenceMedium
	default:
		return ConfidenceGood
	}
}

func sortForLevel(recs []Recommendation, level string) {
	var key func(Recommendation) float64
	switch level {
	case types.ExperienceEnthusiast:
		key = func(r Recommendation) float64 { return r.MatchScore + r.Confidence }
	case types.ExperienceCollector:
		key = func(r Recommendation) float64 { return r.MatchScore }
	default:
		key = func(r Recommendation) float64 { return r.Confidence }
	}
	sort.SliceStable(recs, func(i, j int) bool {
		return key(recs[i]) > key(recs[j])
	})
}
