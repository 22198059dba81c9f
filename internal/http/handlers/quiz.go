package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/KJJisBetter/scentmatch-sub009/internal/http/response"
	"github.com/KJJisBetter/scentmatch-sub009/internal/platform/apierr"
	"github.com/KJJisBetter/scentmatch-sub009/internal/platform/ctxutil"
	"github.com/KJJisBetter/scentmatch-sub009/internal/platform/logger"
	"github.com/KJJisBetter/scentmatch-sub009/internal/services"
)

const maxQuizBodyBytes = 256 << 10

type QuizHandler struct {
	log      *logger.Logger
	sessions services.SessionService
	pipeline services.QuizPipeline
	drafts   services.DraftService
}

func NewQuizHandler(log *logger.Logger, sessions services.SessionService, pipeline services.QuizPipeline, drafts services.DraftService) *QuizHandler {
	return &QuizHandler{
		log:      log.With("handler", "QuizHandler"),
		sessions: sessions,
		pipeline: pipeline,
		drafts:   drafts,
	}
}

// POST /api/quiz/sessions
func (h *QuizHandler) CreateSession(c *gin.Context) {
	sess, err := h.sessions.CreateSession(c.Request.Context(), services.OriginHints{
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	response.RespondCreated(c, gin.H{
		"session_token":    sess.SessionToken,
		"session_id":       sess.ID,
		"expires_at":       sess.ExpiresAt,
		"current_question": sess.CurrentQuestion,
		"total_questions":  sess.TotalQuestions,
		"is_guest":         sess.IsGuest,
	})
}

// GET /api/quiz/sessions/:token
func (h *QuizHandler) GetSession(c *gin.Context) {
	sess, err := h.sessions.GetSession(c.Request.Context(), c.Param("token"))
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	if sess == nil {
		response.RespondError(c, http.StatusNotFound, "session_not_found", services.ErrSessionNotFound)
		return
	}
	response.RespondOK(c, gin.H{"session": sess})
}

type recentAnswerRequest struct {
	AnswerValue    string `json:"answer_value"`
	ResponseTimeMS int    `json:"response_time_ms"`
	OptionIndex    *int   `json:"option_index,omitempty"`
}

type submitAnswerRequest struct {
	SessionToken    string                `json:"session_token"`
	QuestionID      string                `json:"question_id"`
	AnswerValue     string                `json:"answer_value"`
	ResponseTimeMS  int                   `json:"response_time_ms"`
	QuestionIndex   int                   `json:"question_index"`
	OptionIndex     *int                  `json:"option_index,omitempty"`
	PatternDetected bool                  `json:"pattern_detected"`
	RecentAnswers   []recentAnswerRequest `json:"recent_answers"`
	Metadata        json.RawMessage       `json:"metadata,omitempty"`
}

// POST /api/quiz/submit-answer
func (h *QuizHandler) SubmitAnswer(c *gin.Context) {
	var req submitAnswerRequest
	if !h.bindJSON(c, &req) {
		return
	}
	recent := make([]services.RecentAnswer, 0, len(req.RecentAnswers))
	for _, r := range req.RecentAnswers {
		recent = append(recent, services.RecentAnswer{
			AnswerValue:    r.AnswerValue,
			ResponseTimeMS: r.ResponseTimeMS,
			OptionIndex:    r.OptionIndex,
		})
	}
	in := services.SubmitAnswerInput{
		SessionToken:    req.SessionToken,
		QuestionID:      req.QuestionID,
		AnswerValue:     req.AnswerValue,
		ResponseTimeMS:  req.ResponseTimeMS,
		QuestionIndex:   req.QuestionIndex,
		OptionIndex:     req.OptionIndex,
		PatternDetected: req.PatternDetected,
		RecentAnswers:   recent,
	}
	if len(req.Metadata) > 0 && string(req.Metadata) != "null" {
		in.Metadata = datatypes.JSON(req.Metadata)
	}

	res, err := h.pipeline.SubmitAnswer(c.Request.Context(), in)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	if res.Outcome == services.SubmitBotBlocked {
		respondBotBlocked(c, res.Classification)
		return
	}
	response.RespondOK(c, gin.H{
		"processed":        true,
		"duplicate":        res.Outcome == services.SubmitDuplicate,
		"session_id":       res.Progress.SessionID,
		"current_question": res.Progress.CurrentQuestion,
		"total_questions":  res.Progress.TotalQuestions,
	})
}

type analyzeResponseRequest struct {
	QuestionID     string          `json:"question_id"`
	AnswerValue    string          `json:"answer_value"`
	ResponseTimeMS int             `json:"response_time_ms"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
}

type analyzeRequest struct {
	SessionToken      string                   `json:"session_token"`
	ExperienceLevel   string                   `json:"experience_level"`
	Responses         []analyzeResponseRequest `json:"responses"`
	SelectedFavorites []services.Favorite      `json:"selected_favorites"`
}

// POST /api/quiz/analyze
func (h *QuizHandler) Analyze(c *gin.Context) {
	var req analyzeRequest
	if !h.bindJSON(c, &req) {
		return
	}
	responses := make([]services.ResponseInput, 0, len(req.Responses))
	for _, r := range req.Responses {
		in := services.ResponseInput{
			QuestionID:     r.QuestionID,
			AnswerValue:    r.AnswerValue,
			ResponseTimeMS: r.ResponseTimeMS,
		}
		if len(r.Metadata) > 0 && string(r.Metadata) != "null" {
			in.Metadata = datatypes.JSON(r.Metadata)
		}
		responses = append(responses, in)
	}
	res, err := h.pipeline.Analyze(c.Request.Context(), services.AnalyzeInput{
		SessionToken:    req.SessionToken,
		ExperienceLevel: strings.ToLower(strings.TrimSpace(req.ExperienceLevel)),
		Responses:       responses,
		Favorites:       req.SelectedFavorites,
	})
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	if res.Blocked {
		respondBotBlocked(c, res.Classification)
		return
	}
	response.RespondOK(c, res)
}

type experienceLevelRequest struct {
	SessionToken    string `json:"session_token"`
	ExperienceLevel string `json:"experience_level"`
}

// POST /api/quiz/submit-experience-level
func (h *QuizHandler) SubmitExperienceLevel(c *gin.Context) {
	var req experienceLevelRequest
	if !h.bindJSON(c, &req) {
		return
	}
	res, err := h.pipeline.SubmitExperienceLevel(c.Request.Context(), req.SessionToken, strings.ToLower(strings.TrimSpace(req.ExperienceLevel)))
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{
		"experience_level": res.Plan.Level,
		"ui_mode":          res.UIMode,
		"question_plan":    res.Plan,
		"total_questions":  res.Session.TotalQuestions,
	})
}

// POST /api/quiz/sessions/:token/transfer
func (h *QuizHandler) TransferSession(c *gin.Context) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", services.ErrUnauthorized)
		return
	}
	res, err := h.sessions.TransferToUser(c.Request.Context(), c.Param("token"), rd.UserID)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	response.RespondOK(c, res)
}

// GET /api/quiz/sessions/:token/draft
func (h *QuizHandler) GetDraft(c *gin.Context) {
	raw, err := h.drafts.Get(c.Request.Context(), c.Param("token"))
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	if raw == nil {
		raw = json.RawMessage("null")
	}
	response.RespondOK(c, gin.H{"draft": raw})
}

// PUT /api/quiz/sessions/:token/draft
func (h *QuizHandler) PutDraft(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxQuizBodyBytes)
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	if err := h.drafts.Put(c.Request.Context(), c.Param("token"), json.RawMessage(raw)); err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// DELETE /api/quiz/sessions/:token/draft
func (h *QuizHandler) ClearDraft(c *gin.Context) {
	if err := h.drafts.Clear(c.Request.Context(), c.Param("token")); err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *QuizHandler) bindJSON(c *gin.Context, dst any) bool {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxQuizBodyBytes)
	if err := c.ShouldBindJSON(dst); err != nil {
		response.RespondErrorWithDetails(c, http.StatusBadRequest, "invalid_body", err, map[string]any{
			"validation_errors": map[string]string{"body": "must be a JSON object"},
		})
		return false
	}
	return true
}

func respondBotBlocked(c *gin.Context, class services.Classification) {
	response.RespondErrorWithDetails(c, http.StatusForbidden, "bot_detected", errors.New("automated answering detected"), map[string]any{
		"bot_detected":     true,
		"confidence":       class.Confidence,
		"reasons":          class.Reasons,
		"requires_captcha": class.RequiresCaptcha,
	})
}

// respondServiceError maps service errors onto status codes. Unknown errors never leak their text.
func (h *QuizHandler) respondServiceError(c *gin.Context, err error) {
	ae := serviceError(err)
	if ae.Status == http.StatusTooManyRequests {
		if rl, ok := services.IsRateLimited(err); ok {
			c.Header("Retry-After", strconv.Itoa(rl.RetryAfterSeconds()))
		}
	}
	if ae.Status >= http.StatusInternalServerError {
		h.log.Error("quiz request failed", "path", c.FullPath(), "error", err)
	}
	response.RespondErrorWithDetails(c, ae.Status, ae.Code, ae.Err, ae.Details)
}

func serviceError(err error) *apierr.Error {
	if ae, ok := apierr.From(err); ok {
		return ae
	}
	if ve, ok := services.IsValidation(err); ok {
		return apierr.New(http.StatusBadRequest, "validation_failed", ve).WithDetails(map[string]any{
			"validation_errors": ve.Fields,
		})
	}
	if rl, ok := services.IsRateLimited(err); ok {
		return apierr.New(http.StatusTooManyRequests, "rate_limited", rl)
	}
	switch {
	case errors.Is(err, services.ErrSessionNotFound):
		return apierr.New(http.StatusNotFound, "session_not_found", services.ErrSessionNotFound)
	case errors.Is(err, services.ErrSessionExpired):
		return apierr.New(http.StatusGone, "session_expired", services.ErrSessionExpired)
	case errors.Is(err, services.ErrSessionClaimed):
		return apierr.New(http.StatusConflict, "session_claimed", services.ErrSessionClaimed)
	case errors.Is(err, services.ErrUnauthorized):
		return apierr.New(http.StatusUnauthorized, "unauthorized", services.ErrUnauthorized)
	default:
		return apierr.New(http.StatusInternalServerError, "internal_error", errors.New("internal error"))
	}
}
