package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/datatypes"

	"github.com/KJJisBetter/scentmatch-sub009/internal/data/repos"
	types "github.com/KJJisBetter/scentmatch-sub009/internal/domain"
	"github.com/KJJisBetter/scentmatch-sub009/internal/observability"
	"github.com/KJJisBetter/scentmatch-sub009/internal/platform/dbctx"
	"github.com/KJJisBetter/scentmatch-sub009/internal/platform/logger"
)

type SubmitOutcome string

const (
	SubmitProcessed  SubmitOutcome = "processed"
	SubmitDuplicate  SubmitOutcome = "duplicate"
	SubmitBotBlocked SubmitOutcome = "bot_blocked"
)

type SubmitAnswerInput struct {
	SessionToken    string         `json:"session_token" validate:"required"`
	QuestionID      string         `json:"question_id" validate:"required"`
	AnswerValue     string         `json:"answer_value" validate:"required"`
	ResponseTimeMS  int            `json:"response_time_ms" validate:"min=0"`
	QuestionIndex   int            `json:"question_index" validate:"min=0"`
	OptionIndex     *int           `json:"option_index"`
	FirstOption     string         `json:"-"`
	PatternDetected bool           `json:"pattern_detected"`
	RecentAnswers   []RecentAnswer `json:"-"`
	Metadata        datatypes.JSON `json:"-"`
}

type SubmitResult struct {
	Outcome        SubmitOutcome
	Progress       ProgressAck
	Classification Classification
}

type AnalyzeInput struct {
	SessionToken    string          `json:"session_token" validate:"required"`
	ExperienceLevel string          `json:"experience_level" validate:"omitempty,experience_level"`
	Responses       []ResponseInput `json:"responses" validate:"dive"`
	Favorites       []Favorite      `json:"-"`
}

type PersonalityAnalysis struct {
	PrimaryType     string             `json:"personality_type"`
	SecondaryType   *string            `json:"secondary_type,omitempty"`
	Dimensions      map[string]float64 `json:"dimensions"`
	Intensity       float64            `json:"intensity"`
	Confidence      float64            `json:"confidence"`
	ExperienceLevel string             `json:"experience_level"`
	Lifestyle       []string           `json:"lifestyle_preferences"`
	Occasions       []string           `json:"occasion_preferences"`
	Brands          []string           `json:"brand_preferences"`
	ResponseCount   int                `json:"response_count"`
}

type AnalyzeResult struct {
	SessionID       uuid.UUID                 `json:"session_id"`
	Analysis        PersonalityAnalysis       `json:"personality_analysis"`
	Recommendations []Recommendation          `json:"recommendations"`
	Profile         *types.PersonalityProfile `json:"profile"`
	// Blocked is set when the submitted batch was classified as automated. Nothing was written.
	Blocked        bool           `json:"-"`
	Classification Classification `json:"-"`
}

type ExperienceLevelResult struct {
	Session *types.QuizSession `json:"-"`
	Plan    *QuestionPlan      `json:"question_plan"`
	UIMode  string             `json:"ui_mode"`
}

// QuizPipeline runs a request through the integrity guard, session manager, scoring and
// recommendation stages in that order.
type QuizPipeline interface {
	SubmitAnswer(ctx context.Context, in SubmitAnswerInput) (SubmitResult, error)
	Analyze(ctx context.Context, in AnalyzeInput) (AnalyzeResult, error)
	SubmitExperienceLevel(ctx context.Context, token, level string) (ExperienceLevelResult, error)
}

type QuizPipelineDeps struct {
	Sessions  SessionService
	Integrity IntegrityGuard
	Scoring   ScoringEngine
	Resolver  RecommendationResolver
	Responses repos.QuizResponseRepo
	Profiles  repos.PersonalityProfileRepo
	Plans     *QuestionPlans
	Cache     *RecommendationCache
	Events    EventEmitter
}

type quizPipeline struct {
	deps QuizPipelineDeps
	log  *logger.Logger
	now  func() time.Time
}

func NewQuizPipeline(deps QuizPipelineDeps, baseLog *logger.Logger) QuizPipeline {
	if deps.Events == nil {
		deps.Events = NopEmitter{}
	}
	return &quizPipeline{
		deps: deps,
		log:  baseLog.With("service", "QuizPipeline"),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (p *quizPipeline) SubmitAnswer(ctx context.Context, in SubmitAnswerInput) (SubmitResult, error) {
	ctx, span := observability.Tracer().Start(ctx, "quiz.submit_answer")
	defer span.End()

	firstOption := in.FirstOption
	if firstOption == "" && p.deps.Plans != nil {
		firstOption, _ = p.deps.Plans.FirstOption("", in.QuestionID)
	}
	class := p.deps.Integrity.Classify(AnswerEvent{
		QuestionID:      in.QuestionID,
		AnswerValue:     in.AnswerValue,
		ResponseTimeMS:  in.ResponseTimeMS,
		OptionIndex:     in.OptionIndex,
		FirstOption:     firstOption,
		PatternDetected: in.PatternDetected,
	}, in.RecentAnswers)
	span.SetAttributes(attribute.Float64("quiz.bot_confidence", class.Confidence))
	if class.IsBot {
		p.emitBotBlocked(ctx, class)
		return SubmitResult{Outcome: SubmitBotBlocked, Classification: class}, nil
	}

	in.SessionToken = strings.TrimSpace(in.SessionToken)
	in.QuestionID = strings.TrimSpace(in.QuestionID)
	in.AnswerValue = strings.TrimSpace(in.AnswerValue)
	if err := validateStruct(in); err != nil {
		return SubmitResult{}, err
	}

	ack, err := p.deps.Sessions.SaveProgress(ctx, in.SessionToken, in.QuestionIndex, []ResponseInput{{
		QuestionID:     in.QuestionID,
		AnswerValue:    in.AnswerValue,
		ResponseTimeMS: in.ResponseTimeMS,
		Metadata:       in.Metadata,
	}})
	if err != nil {
		return SubmitResult{}, err
	}
	outcome := SubmitProcessed
	if ack.Stored == 0 {
		outcome = SubmitDuplicate
	} else {
		p.deps.Cache.InvalidateSession(in.SessionToken)
	}
	p.deps.Events.Emit(ctx, EventAnswerSubmitted, map[string]any{
		"session_id":       ack.SessionID.String(),
		"question_id":      in.QuestionID,
		"current_question": ack.CurrentQuestion,
		"duplicate":        outcome == SubmitDuplicate,
	})
	return SubmitResult{Outcome: outcome, Progress: ack, Classification: class}, nil
}

func (p *quizPipeline) Analyze(ctx context.Context, in AnalyzeInput) (AnalyzeResult, error) {
	ctx, span := observability.Tracer().Start(ctx, "quiz.analyze")
	defer span.End()

	if len(in.Responses) > 0 {
		class := p.classifyBatch(in.ExperienceLevel, in.Responses)
		span.SetAttributes(attribute.Float64("quiz.bot_confidence", class.Confidence))
		if class.IsBot {
			p.emitBotBlocked(ctx, class)
			return AnalyzeResult{Blocked: true, Classification: class}, nil
		}
	}

	in.SessionToken = strings.TrimSpace(in.SessionToken)
	if err := validateStruct(in); err != nil {
		return AnalyzeResult{}, err
	}

	sess, err := p.deps.Sessions.Lookup(ctx, in.SessionToken)
	if err != nil {
		return AnalyzeResult{}, err
	}
	if sess.Claimed() {
		return AnalyzeResult{}, ErrSessionClaimed
	}
	level := in.ExperienceLevel
	if level == "" {
		level = sess.ExperienceLevel
	}
	if level == "" {
		level = types.ExperienceBeginner
	}

	if len(in.Responses) > 0 {
		ack, err := p.deps.Sessions.SaveProgress(ctx, in.SessionToken, 0, in.Responses)
		if err != nil {
			return AnalyzeResult{}, err
		}
		if ack.Stored > 0 {
			p.deps.Cache.InvalidateSession(in.SessionToken)
		}
	}

	stored, err := p.deps.Responses.ListBySessionToken(dbctx.Context{Ctx: ctx}, in.SessionToken)
	if err != nil {
		return AnalyzeResult{}, fmt.Errorf("load responses: %w", err)
	}
	if len(stored) == 0 {
		verr := &ValidationError{}
		verr.add("responses", "at least one answer is required")
		return AnalyzeResult{}, verr
	}
	answers := make([]Answer, 0, len(stored))
	for _, r := range stored {
		answers = append(answers, Answer{QuestionID: r.QuestionID, AnswerValue: r.AnswerValue})
	}

	profile := p.deps.Scoring.Score(answers, level, in.Favorites)
	row, err := p.saveProfile(ctx, sess, profile)
	if err != nil {
		return AnalyzeResult{}, err
	}
	if _, err := p.deps.Sessions.SetExperienceLevel(ctx, in.SessionToken, level, 0); err != nil {
		return AnalyzeResult{}, err
	}
	if _, err := p.deps.Sessions.CompleteSession(ctx, in.SessionToken); err != nil {
		return AnalyzeResult{}, err
	}

	recs := p.deps.Resolver.Resolve(ctx, ResolveInput{
		Profile:      profile,
		Level:        level,
		Favorites:    in.Favorites,
		SessionToken: in.SessionToken,
	})
	span.SetAttributes(
		attribute.String("quiz.personality_type", profile.PrimaryType),
		attribute.Int("quiz.recommendations", len(recs)),
	)
	p.deps.Events.Emit(ctx, EventAnalyzed, map[string]any{
		"session_id":       sess.ID.String(),
		"personality_type": profile.PrimaryType,
		"experience_level": level,
		"recommendations":  len(recs),
	})
	return AnalyzeResult{
		SessionID:       sess.ID,
		Analysis:        analysisFrom(profile),
		Recommendations: recs,
		Profile:         row,
	}, nil
}

// classifyBatch screens an analyze batch the way submit-answer screens one answer: the last
// response is the event and the whole batch is the recent window.
func (p *quizPipeline) classifyBatch(level string, responses []ResponseInput) Classification {
	recent := make([]RecentAnswer, 0, len(responses))
	for _, r := range responses {
		a := RecentAnswer{AnswerValue: r.AnswerValue, ResponseTimeMS: r.ResponseTimeMS}
		if p.deps.Plans != nil {
			a.FirstOption, _ = p.deps.Plans.FirstOption(level, r.QuestionID)
		}
		recent = append(recent, a)
	}
	last := responses[len(responses)-1]
	return p.deps.Integrity.Classify(AnswerEvent{
		QuestionID:     last.QuestionID,
		AnswerValue:    last.AnswerValue,
		ResponseTimeMS: last.ResponseTimeMS,
		FirstOption:    recent[len(recent)-1].FirstOption,
	}, recent)
}

func (p *quizPipeline) emitBotBlocked(ctx context.Context, class Classification) {
	p.log.Warn("answer blocked as automated", "confidence", class.Confidence, "reasons", class.Reasons)
	p.deps.Events.Emit(ctx, EventBotBlocked, map[string]any{
		"confidence":       class.Confidence,
		"reasons":          class.Reasons,
		"requires_captcha": class.RequiresCaptcha,
	})
}

func (p *quizPipeline) saveProfile(ctx context.Context, sess *types.QuizSession, profile Profile) (*types.PersonalityProfile, error) {
	now := p.now()
	row := &types.PersonalityProfile{
		ID:                   uuid.New(),
		SessionID:            sess.ID,
		SessionToken:         sess.SessionToken,
		Fresh:                profile.Dimensions[DimFresh],
		Floral:               profile.Dimensions[DimFloral],
		Oriental:             profile.Dimensions[DimOriental],
		Woody:                profile.Dimensions[DimWoody],
		Fruity:               profile.Dimensions[DimFruity],
		Gourmand:             profile.Dimensions[DimGourmand],
		Intensity:            profile.Intensity,
		PrimaryType:          profile.PrimaryType,
		SecondaryType:        profile.SecondaryType,
		ConfidenceScore:      profile.Confidence,
		ExperienceLevel:      profile.ExperienceLevel,
		LifestylePreferences: jsonList(profile.Lifestyle),
		OccasionPreferences:  jsonList(profile.Occasions),
		BrandPreferences:     jsonList(profile.Brands),
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := p.deps.Profiles.Replace(dbctx.Context{Ctx: ctx}, row); err != nil {
		return nil, fmt.Errorf("save profile: %w", err)
	}
	return row, nil
}

func (p *quizPipeline) SubmitExperienceLevel(ctx context.Context, token, level string) (ExperienceLevelResult, error) {
	plan := p.deps.Plans.For(level)
	sess, err := p.deps.Sessions.SetExperienceLevel(ctx, token, level, len(plan.Questions))
	if err != nil {
		return ExperienceLevelResult{}, err
	}
	return ExperienceLevelResult{Session: sess, Plan: plan, UIMode: plan.UIMode}, nil
}

func analysisFrom(p Profile) PersonalityAnalysis {
	return PersonalityAnalysis{
		PrimaryType:     p.PrimaryType,
		SecondaryType:   p.SecondaryType,
		Dimensions:      p.Dimensions.Map(),
		Intensity:       p.Intensity,
		Confidence:      p.Confidence,
		ExperienceLevel: p.ExperienceLevel,
		Lifestyle:       nonNil(p.Lifestyle),
		Occasions:       nonNil(p.Occasions),
		Brands:          nonNil(p.Brands),
		ResponseCount:   p.ResponseCount,
	}
}

func jsonList(values []string) datatypes.JSON {
	raw, _ := json.Marshal(nonNil(values))
	return datatypes.JSON(raw)
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
