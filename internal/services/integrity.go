package services

import (
	"math"
	"time"

	"github.com/KJJisBetter/scentmatch-sub009/internal/observability"
	"github.com/KJJisBetter/scentmatch-sub009/internal/platform/logger"
)

const (
	ReasonFastResponse      = "fast_response"
	ReasonUniformTiming     = "uniform_timing"
	ReasonAlwaysFirstOption = "always_first_option"
	ReasonNoHesitation      = "no_human_hesitation"
	ReasonPatternDetected   = "pattern_detected"
)

// AnswerEvent is a single answer as observed by the client.
type AnswerEvent struct {
	QuestionID     string
	AnswerValue    string
	ResponseTimeMS int
	// OptionIndex is the zero-based position of the chosen option, when the client sent it.
	OptionIndex *int
	// FirstOption is the value of the first presented option, when the client sent it.
	FirstOption     string
	PatternDetected bool
}

type RecentAnswer struct {
	AnswerValue    string
	ResponseTimeMS int
	OptionIndex    *int
	FirstOption    string
}

type Classification struct {
	IsBot           bool     `json:"is_bot"`
	RequiresCaptcha bool     `json:"requires_captcha"`
	Confidence      float64  `json:"confidence"`
	Reasons         []string `json:"reasons"`
}

type IntegrityGuard interface {
	// Classify screens an answer, plus the client's recent batch when present, for automation.
	Classify(ev AnswerEvent, recent []RecentAnswer) Classification
}

type integrityGuard struct {
	cfg     IntegrityConfig
	log     *logger.Logger
	metrics *observability.Metrics
}

func NewIntegrityGuard(cfg IntegrityConfig, baseLog *logger.Logger, metrics *observability.Metrics) IntegrityGuard {
	return &integrityGuard{
		cfg:     cfg,
		log:     baseLog.With("service", "IntegrityGuard"),
		metrics: metrics,
	}
}

func (g *integrityGuard) Classify(ev AnswerEvent, recent []RecentAnswer) Classification {
	var (
		confidence float64
		reasons    = []string{}
	)

	if time.Duration(ev.ResponseTimeMS)*time.Millisecond < g.cfg.MinLatency {
		confidence += g.cfg.FastResponseWeight
		reasons = append(reasons, ReasonFastResponse)
	}

	minBatch := g.cfg.MinBatch
	if minBatch < 1 {
		minBatch = 1
	}
	if len(recent) >= minBatch {
		uniform := populationStdDev(recent) <= g.cfg.UniformStdDevMS
		if uniform {
			confidence += g.cfg.UniformTimingWeight
			reasons = append(reasons, ReasonUniformTiming)
		}
		firstOnly := true
		for _, a := range recent {
			if !g.isFirstOption(a) {
				firstOnly = false
				break
			}
		}
		if firstOnly {
			confidence += g.cfg.FirstOptionWeight
			reasons = append(reasons, ReasonAlwaysFirstOption)
		}
		if uniform && firstOnly {
			confidence += g.cfg.NoHesitationWeight
			reasons = append(reasons, ReasonNoHesitation)
		}
	}

	if ev.PatternDetected {
		confidence = math.Max(confidence, g.cfg.PatternFloor)
		reasons = append(reasons, ReasonPatternDetected)
	}

	confidence = math.Round(clamp01(confidence)*100) / 100
	out := Classification{
		IsBot:           confidence >= g.cfg.BotThreshold,
		RequiresCaptcha: confidence >= g.cfg.CaptchaThreshold,
		Confidence:      confidence,
		Reasons:         reasons,
	}
	g.metrics.ObserveIntegrity(out.IsBot, out.Confidence)
	if out.IsBot {
		g.log.Warn("automated answer pattern", "question_id", ev.QuestionID, "confidence", out.Confidence, "reasons", out.Reasons)
	}
	return out
}

func (g *integrityGuard) isFirstOption(a RecentAnswer) bool {
	if a.OptionIndex != nil {
		return *a.OptionIndex == 0
	}
	if a.FirstOption != "" {
		return a.AnswerValue == a.FirstOption
	}
	return g.cfg.DefaultFirstOption != "" && a.AnswerValue == g.cfg.DefaultFirstOption
}

func populationStdDev(batch []RecentAnswer) float64 {
	if len(batch) == 0 {
		return 0
	}
	var sum float64
	for _, a := range batch {
		sum += float64(a.ResponseTimeMS)
	}
	mean := sum / float64(len(batch))
	var sq float64
	for _, a := range batch {
		d := float64(a.ResponseTimeMS) - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(batch)))
}

func clamp01(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
