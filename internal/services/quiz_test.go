package services

import (
	"context"
	"errors"
	"testing"
	"time"

	types "github.com/KJJisBetter/scentmatch-sub009/internal/domain"
	"github.com/KJJisBetter/scentmatch-sub009/internal/platform/dbctx"
)

type pipelineFixture struct {
	*sessionFixture
	frags    *fakeFragrances
	pipeline QuizPipeline
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()
	sf := newSessionFixture(t, DefaultSessionConfig())
	log := testLogger(t)
	plans, err := LoadQuestionPlans()
	if err != nil {
		t.Fatalf("LoadQuestionPlans: %v", err)
	}
	frags := &fakeFragrances{computeErr: errProcedure}
	cfg := DefaultRecommendationConfig()
	cfg.TierTimeout = time.Second
	cache := NewRecommendationCache(time.Minute, 10, nil)
	resolver := NewRecommendationResolver(RecommendationDeps{
		Fragrances: frags,
		Responses:  sf.responses,
		Cache:      cache,
		Events:     sf.events,
	}, cfg, log, nil)
	p := NewQuizPipeline(QuizPipelineDeps{
		Sessions:  sf.svc,
		Integrity: NewIntegrityGuard(DefaultIntegrityConfig(), log, nil),
		Scoring:   NewScoringEngine(log, nil),
		Resolver:  resolver,
		Responses: sf.responses,
		Profiles:  sf.profiles,
		Plans:     plans,
		Cache:     cache,
		Events:    sf.events,
	}, log)
	return &pipelineFixture{sessionFixture: sf, frags: frags, pipeline: p}
}

func (f *pipelineFixture) newSession(t *testing.T) *types.QuizSession {
	t.Helper()
	s, err := f.svc.CreateSession(context.Background(), OriginHints{})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	return s
}

func (f *pipelineFixture) stored(t *testing.T, token string) []*types.QuizResponse {
	t.Helper()
	rows, err := f.responses.ListBySessionToken(dbctx.Context{Ctx: context.Background()}, token)
	if err != nil {
		t.Fatalf("ListBySessionToken: %v", err)
	}
	return rows
}

func TestSubmitAnswer_BotShortCircuitsBeforeAnyWrite(t *testing.T) {
	f := newPipelineFixture(t)
	s := f.newSession(t)

	res, err := f.pipeline.SubmitAnswer(context.Background(), SubmitAnswerInput{
		SessionToken:   s.SessionToken,
		QuestionID:     "style_personality",
		AnswerValue:    "option1",
		ResponseTimeMS: 900,
		RecentAnswers: []RecentAnswer{
			{AnswerValue: "option1", ResponseTimeMS: 10},
			{AnswerValue: "option1", ResponseTimeMS: 12},
			{AnswerValue: "option1", ResponseTimeMS: 11},
		},
	})
	if err != nil {
		t.Fatalf("SubmitAnswer: %v", err)
	}
	if res.Outcome != SubmitBotBlocked || res.Classification.Confidence != 0.9 {
		t.Fatalf("want bot_blocked at 0.9 got %+v", res)
	}
	if rows := f.stored(t, s.SessionToken); len(rows) != 0 {
		t.Fatalf("bot answer must not be stored, got %d rows", len(rows))
	}
	if n := len(f.events.named(EventBotBlocked)); n != 1 {
		t.Fatalf("bot events want=1 got=%d", n)
	}
}

func TestSubmitAnswer_BotOutranksValidation(t *testing.T) {
	f := newPipelineFixture(t)
	res, err := f.pipeline.SubmitAnswer(context.Background(), SubmitAnswerInput{PatternDetected: true})
	if err != nil {
		t.Fatalf("SubmitAnswer: %v", err)
	}
	if res.Outcome != SubmitBotBlocked || !res.Classification.RequiresCaptcha {
		t.Fatalf("want bot_blocked with captcha got %+v", res)
	}
}

func TestSubmitAnswer_ProcessedThenDuplicate(t *testing.T) {
	f := newPipelineFixture(t)
	s := f.newSession(t)
	in := SubmitAnswerInput{
		SessionToken:   s.SessionToken,
		QuestionID:     "style_personality",
		AnswerValue:    "casual_relaxed",
		ResponseTimeMS: 1800,
		QuestionIndex:  1,
	}

	first, err := f.pipeline.SubmitAnswer(context.Background(), in)
	if err != nil {
		t.Fatalf("SubmitAnswer: %v", err)
	}
	if first.Outcome != SubmitProcessed || first.Progress.CurrentQuestion != 1 {
		t.Fatalf("unexpected first result: %+v", first)
	}
	in.AnswerValue = "bold_confident"
	second, err := f.pipeline.SubmitAnswer(context.Background(), in)
	if err != nil {
		t.Fatalf("repeat SubmitAnswer: %v", err)
	}
	if second.Outcome != SubmitDuplicate {
		t.Fatalf("want duplicate got %s", second.Outcome)
	}
	rows := f.stored(t, s.SessionToken)
	if len(rows) != 1 || rows[0].AnswerValue != "casual_relaxed" {
		t.Fatalf("stored answer must be immutable: %+v", rows)
	}
}

func TestSubmitAnswer_ValidationAndSessionErrors(t *testing.T) {
	f := newPipelineFixture(t)
	_, err := f.pipeline.SubmitAnswer(context.Background(), SubmitAnswerInput{
		SessionToken:   "tok",
		ResponseTimeMS: 1500,
	})
	verr, ok := IsValidation(err)
	if !ok {
		t.Fatalf("want ValidationError got %v", err)
	}
	if _, ok := verr.Fields["question_id"]; !ok {
		t.Fatalf("missing question_id error: %v", verr.Fields)
	}

	_, err = f.pipeline.SubmitAnswer(context.Background(), SubmitAnswerInput{
		SessionToken:   "unknown",
		QuestionID:     "style_personality",
		AnswerValue:    "casual_relaxed",
		ResponseTimeMS: 1500,
	})
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("want ErrSessionNotFound got %v", err)
	}
}

func TestAnalyze_ScoresStoredAnswersAndUsesManualTier(t *testing.T) {
	f := newPipelineFixture(t)
	f.frags.manual = []*types.Fragrance{
		fragrance("citrus-1", "Creed", 4.7, "citrus", "fresh"),
		fragrance("amber-1", "Indie", 4.2, "amber"),
	}
	s := f.newSession(t)
	ctx := context.Background()
	if _, err := f.pipeline.SubmitAnswer(ctx, SubmitAnswerInput{
		SessionToken: s.SessionToken, QuestionID: "style_personality", AnswerValue: "casual_relaxed", ResponseTimeMS: 2100,
	}); err != nil {
		t.Fatalf("SubmitAnswer: %v", err)
	}

	res, err := f.pipeline.Analyze(ctx, AnalyzeInput{
		SessionToken:    s.SessionToken,
		ExperienceLevel: types.ExperienceBeginner,
		Responses: []ResponseInput{
			{QuestionID: "scent_family_preference", AnswerValue: "fresh_clean", ResponseTimeMS: 2400},
		},
	})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if res.SessionID != s.ID {
		t.Fatalf("session id want=%s got=%s", s.ID, res.SessionID)
	}
	a := res.Analysis
	if a.PrimaryType != "fresh" || a.SecondaryType == nil || *a.SecondaryType != "fruity" {
		t.Fatalf("want fresh/fruity got %s/%v", a.PrimaryType, a.SecondaryType)
	}
	if a.ResponseCount != 2 || a.Confidence != 0.4 {
		t.Fatalf("want 2 responses at confidence 0.4 got %d/%v", a.ResponseCount, a.Confidence)
	}
	if len(res.Recommendations) != 2 || res.Recommendations[0].FragranceID != "citrus-1" || res.Recommendations[0].Source != TierManual {
		t.Fatalf("unexpected recommendations: %+v", res.Recommendations)
	}

	row, err := f.profiles.GetBySessionID(dbctx.Context{Ctx: ctx}, s.ID)
	if err != nil || row == nil {
		t.Fatalf("profile not stored: %v", err)
	}
	if row.PrimaryType != "fresh" {
		t.Fatalf("stored profile want=fresh got=%s", row.PrimaryType)
	}
	sess, err := f.sessions.GetByToken(dbctx.Context{Ctx: ctx}, s.SessionToken)
	if err != nil {
		t.Fatalf("GetByToken: %v", err)
	}
	if !sess.IsCompleted || sess.ExperienceLevel != types.ExperienceBeginner {
		t.Fatalf("session must be completed at beginner: %+v", sess)
	}
}

func TestAnalyze_ExhaustedTiersStillSucceed(t *testing.T) {
	f := newPipelineFixture(t)
	f.frags.manualErr = errors.New("catalog down")
	f.frags.popularErr = errors.New("catalog down")
	s := f.newSession(t)

	res, err := f.pipeline.Analyze(context.Background(), AnalyzeInput{
		SessionToken: s.SessionToken,
		Responses:    []ResponseInput{{QuestionID: "style_personality", AnswerValue: "bold_confident", ResponseTimeMS: 1000}},
	})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if res.Recommendations == nil || len(res.Recommendations) != 0 {
		t.Fatalf("want empty recommendations got %#v", res.Recommendations)
	}
	if res.Analysis.PrimaryType != "oriental" {
		t.Fatalf("want oriental got %s", res.Analysis.PrimaryType)
	}
}

func TestAnalyze_RequiresAnswers(t *testing.T) {
	f := newPipelineFixture(t)
	s := f.newSession(t)
	_, err := f.pipeline.Analyze(context.Background(), AnalyzeInput{SessionToken: s.SessionToken})
	if _, ok := IsValidation(err); !ok {
		t.Fatalf("want ValidationError got %v", err)
	}
}

func TestSubmitExperienceLevel_ReturnsPlan(t *testing.T) {
	f := newPipelineFixture(t)
	s := f.newSession(t)

	res, err := f.pipeline.SubmitExperienceLevel(context.Background(), s.SessionToken, types.ExperienceCollector)
	if err != nil {
		t.Fatalf("SubmitExperienceLevel: %v", err)
	}
	if res.UIMode != "advanced" || res.Plan.Level != types.ExperienceCollector {
		t.Fatalf("unexpected plan: %+v", res)
	}
	if res.Session.TotalQuestions != len(res.Plan.Questions) {
		t.Fatalf("total questions want=%d got=%d", len(res.Plan.Questions), res.Session.TotalQuestions)
	}
}

func TestAnalyze_BotBatchBlockedBeforeAnyWrite(t *testing.T) {
	f := newPipelineFixture(t)
	s := f.newSession(t)

	res, err := f.pipeline.Analyze(context.Background(), AnalyzeInput{
		SessionToken: s.SessionToken,
		Responses: []ResponseInput{
			{QuestionID: "q1", AnswerValue: "option1", ResponseTimeMS: 10},
			{QuestionID: "q2", AnswerValue: "option1", ResponseTimeMS: 12},
			{QuestionID: "q3", AnswerValue: "option1", ResponseTimeMS: 11},
		},
	})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if !res.Blocked || !res.Classification.IsBot || res.Classification.Confidence != 1 {
		t.Fatalf("want blocked at 1.0 got %+v", res)
	}
	if rows := f.stored(t, s.SessionToken); len(rows) != 0 {
		t.Fatalf("bot batch must not be stored, got %d rows", len(rows))
	}
	row, err := f.profiles.GetBySessionID(dbctx.Context{Ctx: context.Background()}, s.ID)
	if err != nil {
		t.Fatalf("GetBySessionID: %v", err)
	}
	if row != nil {
		t.Fatalf("bot batch must not produce a profile: %+v", row)
	}
	if n := len(f.events.named(EventBotBlocked)); n != 1 {
		t.Fatalf("bot events want=1 got=%d", n)
	}
}

func TestAnalyze_ValidatesBatchFields(t *testing.T) {
	f := newPipelineFixture(t)
	s := f.newSession(t)

	_, err := f.pipeline.Analyze(context.Background(), AnalyzeInput{
		SessionToken:    s.SessionToken,
		ExperienceLevel: "expert",
		Responses:       []ResponseInput{{AnswerValue: "fresh_clean", ResponseTimeMS: 2000}},
	})
	verr, ok := IsValidation(err)
	if !ok {
		t.Fatalf("want ValidationError got %v", err)
	}
	for _, field := range []string{"experience_level", "responses[0].question_id"} {
		if _, ok := verr.Fields[field]; !ok {
			t.Fatalf("missing field %s in %v", field, verr.Fields)
		}
	}
}
