package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	types "github.com/KJJisBetter/scentmatch-sub009/internal/domain"
	"github.com/KJJisBetter/scentmatch-sub009/internal/platform/ctxutil"
	"github.com/KJJisBetter/scentmatch-sub009/internal/platform/logger"
	"github.com/KJJisBetter/scentmatch-sub009/internal/services"
)

type fakeSessions struct {
	services.SessionService
	createErr   error
	created     *types.QuizSession
	origin      services.OriginHints
	transferErr error
	transferred uuid.UUID
}

func (f *fakeSessions) CreateSession(_ context.Context, origin services.OriginHints) (*types.QuizSession, error) {
	f.origin = origin
	if f.createErr != nil {
		return nil, f.createErr
	}
	return f.created, nil
}

func (f *fakeSessions) GetSession(_ context.Context, token string) (*types.QuizSession, error) {
	if f.created != nil && f.created.SessionToken == token {
		return f.created, nil
	}
	return nil, nil
}

func (f *fakeSessions) TransferToUser(_ context.Context, token string, userID uuid.UUID) (services.TransferResult, error) {
	if f.transferErr != nil {
		return services.TransferResult{}, f.transferErr
	}
	f.transferred = userID
	return services.TransferResult{UserID: userID, ResponsesMoved: 3}, nil
}

type fakePipeline struct {
	submit     services.SubmitResult
	submitErr  error
	submitted  services.SubmitAnswerInput
	analyze    services.AnalyzeResult
	analyzeErr error
	analyzed   services.AnalyzeInput
}

func (f *fakePipeline) SubmitAnswer(_ context.Context, in services.SubmitAnswerInput) (services.SubmitResult, error) {
	f.submitted = in
	return f.submit, f.submitErr
}

func (f *fakePipeline) Analyze(_ context.Context, in services.AnalyzeInput) (services.AnalyzeResult, error) {
	f.analyzed = in
	return f.analyze, f.analyzeErr
}

func (f *fakePipeline) SubmitExperienceLevel(_ context.Context, token, level string) (services.ExperienceLevelResult, error) {
	plan := &services.QuestionPlan{Level: level, UIMode: "advanced"}
	return services.ExperienceLevelResult{
		Session: &types.QuizSession{SessionToken: token, TotalQuestions: 8},
		Plan:    plan,
		UIMode:  plan.UIMode,
	}, nil
}

type fakeDrafts struct {
	stored map[string]json.RawMessage
	err    error
}

func (f *fakeDrafts) Get(_ context.Context, token string) (json.RawMessage, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.stored[token], nil
}

func (f *fakeDrafts) Put(_ context.Context, token string, draft json.RawMessage) error {
	if f.err != nil {
		return f.err
	}
	f.stored[token] = draft
	return nil
}

func (f *fakeDrafts) Clear(_ context.Context, token string) error {
	delete(f.stored, token)
	return nil
}

type handlerFixture struct {
	sessions *fakeSessions
	pipeline *fakePipeline
	drafts   *fakeDrafts
	router   *gin.Engine
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	f := &handlerFixture{
		sessions: &fakeSessions{},
		pipeline: &fakePipeline{},
		drafts:   &fakeDrafts{stored: map[string]json.RawMessage{}},
	}
	h := NewQuizHandler(log, f.sessions, f.pipeline, f.drafts)
	r := gin.New()
	r.POST("/api/quiz/sessions", h.CreateSession)
	r.GET("/api/quiz/sessions/:token", h.GetSession)
	r.POST("/api/quiz/submit-answer", h.SubmitAnswer)
	r.POST("/api/quiz/analyze", h.Analyze)
	r.POST("/api/quiz/submit-experience-level", h.SubmitExperienceLevel)
	r.GET("/api/quiz/sessions/:token/draft", h.GetDraft)
	r.PUT("/api/quiz/sessions/:token/draft", h.PutDraft)
	r.POST("/api/quiz/sessions/:token/transfer", func(c *gin.Context) {
		if raw := c.GetHeader("X-Test-User"); raw != "" {
			ctx := ctxutil.WithRequestData(c.Request.Context(), &ctxutil.RequestData{UserID: uuid.MustParse(raw)})
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}, h.TransferSession)
	f.router = r
	return f
}

func (f *handlerFixture) do(method, path, body string, headers ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func errorCode(t *testing.T, body map[string]any) string {
	t.Helper()
	env, ok := body["error"].(map[string]any)
	if !ok {
		t.Fatalf("missing error envelope: %v", body)
	}
	code, _ := env["code"].(string)
	return code
}

func TestCreateSession_ReturnsCreatedWithToken(t *testing.T) {
	f := newHandlerFixture(t)
	f.sessions.created = &types.QuizSession{
		ID:           uuid.New(),
		SessionToken: "tok-1",
		IsGuest:      true,
		ExpiresAt:    time.Now().Add(24 * time.Hour),
	}

	rec := f.do(http.MethodPost, "/api/quiz/sessions", "", "User-Agent", "agent/1.0")
	if rec.Code != http.StatusCreated {
		t.Fatalf("status: want=%d got=%d", http.StatusCreated, rec.Code)
	}
	body := decode(t, rec)
	if body["session_token"] != "tok-1" {
		t.Fatalf("session_token: want=%q got=%v", "tok-1", body["session_token"])
	}
	if f.sessions.origin.UserAgent != "agent/1.0" {
		t.Fatalf("user agent: want=%q got=%q", "agent/1.0", f.sessions.origin.UserAgent)
	}
}

func TestCreateSession_RateLimitedSetsRetryAfter(t *testing.T) {
	f := newHandlerFixture(t)
	f.sessions.createErr = fmt.Errorf("create: %w", &services.RateLimitedError{RetryAfter: 90*time.Second + time.Millisecond})

	rec := f.do(http.MethodPost, "/api/quiz/sessions", "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status: want=%d got=%d", http.StatusTooManyRequests, rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "91" {
		t.Fatalf("Retry-After: want=%q got=%q", "91", got)
	}
	if code := errorCode(t, decode(t, rec)); code != "rate_limited" {
		t.Fatalf("code: want=%q got=%q", "rate_limited", code)
	}
}

func TestGetSession_UnknownIs404(t *testing.T) {
	f := newHandlerFixture(t)
	rec := f.do(http.MethodGet, "/api/quiz/sessions/missing", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status: want=%d got=%d", http.StatusNotFound, rec.Code)
	}
	if code := errorCode(t, decode(t, rec)); code != "session_not_found" {
		t.Fatalf("code: want=%q got=%q", "session_not_found", code)
	}
}

func TestSubmitAnswer_ProcessedPassesRecentAnswers(t *testing.T) {
	f := newHandlerFixture(t)
	f.pipeline.submit = services.SubmitResult{Outcome: services.SubmitProcessed}

	rec := f.do(http.MethodPost, "/api/quiz/submit-answer", `{
		"session_token":"tok","question_id":"style","answer_value":"fresh",
		"response_time_ms":2300,
		"recent_answers":[{"answer_value":"a","response_time_ms":1800},{"answer_value":"b","response_time_ms":2600}]
	}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: want=%d got=%d body=%s", http.StatusOK, rec.Code, rec.Body.String())
	}
	if body := decode(t, rec); body["processed"] != true {
		t.Fatalf("processed: want=true got=%v", body["processed"])
	}
	if got := len(f.pipeline.submitted.RecentAnswers); got != 2 {
		t.Fatalf("recent answers: want=2 got=%d", got)
	}
	if f.pipeline.submitted.ResponseTimeMS != 2300 {
		t.Fatalf("response time: want=2300 got=%d", f.pipeline.submitted.ResponseTimeMS)
	}
}

func TestSubmitAnswer_BotIs403WithReasons(t *testing.T) {
	f := newHandlerFixture(t)
	f.pipeline.submit = services.SubmitResult{
		Outcome: services.SubmitBotBlocked,
		Classification: services.Classification{
			IsBot:           true,
			RequiresCaptcha: true,
			Confidence:      0.9,
			Reasons:         []string{"uniform_timing", "first_option_pattern"},
		},
	}

	rec := f.do(http.MethodPost, "/api/quiz/submit-answer", `{"session_token":"tok","question_id":"q","answer_value":"option1","response_time_ms":10}`)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status: want=%d got=%d", http.StatusForbidden, rec.Code)
	}
	body := decode(t, rec)
	if body["bot_detected"] != true || body["requires_captcha"] != true {
		t.Fatalf("bot fields: got=%v", body)
	}
	if body["confidence"] != 0.9 {
		t.Fatalf("confidence: want=0.9 got=%v", body["confidence"])
	}
	if reasons, _ := body["reasons"].([]any); len(reasons) != 2 {
		t.Fatalf("reasons: want=2 got=%v", body["reasons"])
	}
}

func TestSubmitAnswer_ErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{&services.ValidationError{Fields: map[string]string{"question_id": "is required"}}, http.StatusBadRequest, "validation_failed"},
		{fmt.Errorf("save: %w", services.ErrSessionNotFound), http.StatusNotFound, "session_not_found"},
		{services.ErrSessionExpired, http.StatusGone, "session_expired"},
		{services.ErrSessionClaimed, http.StatusConflict, "session_claimed"},
		{errors.New("connection reset by peer"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		f := newHandlerFixture(t)
		f.pipeline.submitErr = tc.err
		rec := f.do(http.MethodPost, "/api/quiz/submit-answer", `{"session_token":"tok"}`)
		if rec.Code != tc.status {
			t.Fatalf("%v: status want=%d got=%d", tc.err, tc.status, rec.Code)
		}
		body := decode(t, rec)
		if code := errorCode(t, body); code != tc.code {
			t.Fatalf("%v: code want=%q got=%q", tc.err, tc.code, code)
		}
		if tc.status == http.StatusInternalServerError && strings.Contains(rec.Body.String(), "connection reset") {
			t.Fatalf("internal error text leaked: %s", rec.Body.String())
		}
		if tc.status == http.StatusBadRequest {
			if ve, _ := body["validation_errors"].(map[string]any); ve["question_id"] != "is required" {
				t.Fatalf("validation_errors: got=%v", body["validation_errors"])
			}
		}
	}
}

func TestSubmitAnswer_MalformedBodyIs400(t *testing.T) {
	f := newHandlerFixture(t)
	rec := f.do(http.MethodPost, "/api/quiz/submit-answer", `{"session_token":`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: want=%d got=%d", http.StatusBadRequest, rec.Code)
	}
}

func TestAnalyze_MapsBodyAndReturnsResult(t *testing.T) {
	f := newHandlerFixture(t)
	sessionID := uuid.New()
	f.pipeline.analyze = services.AnalyzeResult{
		SessionID:       sessionID,
		Analysis:        services.PersonalityAnalysis{PrimaryType: "fresh"},
		Recommendations: []services.Recommendation{},
	}

	rec := f.do(http.MethodPost, "/api/quiz/analyze", `{
		"session_token":"tok","experience_level":" Collector ",
		"responses":[{"question_id":"style","answer_value":"fresh"}],
		"selected_favorites":[{"id":"f1","name":"Aventus","brand":"Creed"}]
	}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: want=%d got=%d body=%s", http.StatusOK, rec.Code, rec.Body.String())
	}
	if f.pipeline.analyzed.ExperienceLevel != "collector" {
		t.Fatalf("level: want=%q got=%q", "collector", f.pipeline.analyzed.ExperienceLevel)
	}
	if len(f.pipeline.analyzed.Responses) != 1 || len(f.pipeline.analyzed.Favorites) != 1 {
		t.Fatalf("inputs: got=%+v", f.pipeline.analyzed)
	}
	body := decode(t, rec)
	if body["session_id"] != sessionID.String() {
		t.Fatalf("session_id: want=%s got=%v", sessionID, body["session_id"])
	}
	recs, ok := body["recommendations"].([]any)
	if !ok || len(recs) != 0 {
		t.Fatalf("recommendations: want=[] got=%v", body["recommendations"])
	}
	analysis, _ := body["personality_analysis"].(map[string]any)
	if analysis["personality_type"] != "fresh" {
		t.Fatalf("personality_type: got=%v", analysis)
	}
}

func TestSubmitExperienceLevel_ReturnsPlanAndMode(t *testing.T) {
	f := newHandlerFixture(t)
	rec := f.do(http.MethodPost, "/api/quiz/submit-experience-level", `{"session_token":"tok","experience_level":"collector"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: want=%d got=%d", http.StatusOK, rec.Code)
	}
	body := decode(t, rec)
	if body["ui_mode"] != "advanced" || body["experience_level"] != "collector" {
		t.Fatalf("body: got=%v", body)
	}
}

func TestTransferSession_RequiresUser(t *testing.T) {
	f := newHandlerFixture(t)
	rec := f.do(http.MethodPost, "/api/quiz/sessions/tok/transfer", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status: want=%d got=%d", http.StatusUnauthorized, rec.Code)
	}

	userID := uuid.New()
	rec = f.do(http.MethodPost, "/api/quiz/sessions/tok/transfer", "", "X-Test-User", userID.String())
	if rec.Code != http.StatusOK {
		t.Fatalf("status: want=%d got=%d", http.StatusOK, rec.Code)
	}
	if f.sessions.transferred != userID {
		t.Fatalf("user: want=%s got=%s", userID, f.sessions.transferred)
	}
}

func TestDraft_PutThenGet(t *testing.T) {
	f := newHandlerFixture(t)
	rec := f.do(http.MethodPut, "/api/quiz/sessions/tok/draft", `{"step":3}`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("put status: want=%d got=%d", http.StatusNoContent, rec.Code)
	}
	rec = f.do(http.MethodGet, "/api/quiz/sessions/tok/draft", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get status: want=%d got=%d", http.StatusOK, rec.Code)
	}
	draft, _ := decode(t, rec)["draft"].(map[string]any)
	if draft["step"] != float64(3) {
		t.Fatalf("draft: got=%v", draft)
	}

	rec = f.do(http.MethodGet, "/api/quiz/sessions/other/draft", "")
	if body := decode(t, rec); body["draft"] != nil {
		t.Fatalf("missing draft: want=nil got=%v", body["draft"])
	}
}

func TestDraft_ExpiredSessionIs410(t *testing.T) {
	f := newHandlerFixture(t)
	f.drafts.err = services.ErrSessionExpired
	rec := f.do(http.MethodGet, "/api/quiz/sessions/tok/draft", "")
	if rec.Code != http.StatusGone {
		t.Fatalf("status: want=%d got=%d", http.StatusGone, rec.Code)
	}
}

func TestAnalyze_BlockedBatchIs403(t *testing.T) {
	f := newHandlerFixture(t)
	f.pipeline.analyze = services.AnalyzeResult{
		Blocked: true,
		Classification: services.Classification{
			IsBot:           true,
			RequiresCaptcha: true,
			Confidence:      1,
			Reasons:         []string{"fast_response", "uniform_timing", "always_first_option", "no_human_hesitation"},
		},
	}

	rec := f.do(http.MethodPost, "/api/quiz/analyze", `{
		"session_token":"tok",
		"responses":[
			{"question_id":"q1","answer_value":"option1","response_time_ms":10},
			{"question_id":"q2","answer_value":"option1","response_time_ms":12},
			{"question_id":"q3","answer_value":"option1","response_time_ms":11}
		]
	}`)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status: want=%d got=%d", http.StatusForbidden, rec.Code)
	}
	body := decode(t, rec)
	if code := errorCode(t, body); code != "bot_detected" {
		t.Fatalf("code: want=%q got=%q", "bot_detected", code)
	}
	if body["bot_detected"] != true || body["confidence"] != 1.0 {
		t.Fatalf("bot fields: got=%v", body)
	}
	if _, leaked := body["personality_analysis"]; leaked {
		t.Fatalf("blocked analyze must not return an analysis: %v", body)
	}
	if len(f.pipeline.analyzed.Responses) != 3 || f.pipeline.analyzed.Responses[0].ResponseTimeMS != 10 {
		t.Fatalf("timings not passed through: %+v", f.pipeline.analyzed.Responses)
	}
}
