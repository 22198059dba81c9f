package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/KJJisBetter/scentmatch-sub009/internal/http/handlers"
	httpMW "github.com/KJJisBetter/scentmatch-sub009/internal/http/middleware"
	"github.com/KJJisBetter/scentmatch-sub009/internal/observability"
	"github.com/KJJisBetter/scentmatch-sub009/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	Metrics        *observability.Metrics
	ServiceName    string
	AllowedOrigins []string

	AuthMiddleware *httpMW.AuthMiddleware
	QuizHandler    *httpH.QuizHandler
	HealthHandler  *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.AllowedOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	quiz := r.Group("/api/quiz")
	if cfg.QuizHandler != nil {
		// Guest (public)
		quiz.POST("/sessions", cfg.QuizHandler.CreateSession)
		quiz.GET("/sessions/:token", cfg.QuizHandler.GetSession)
		quiz.POST("/submit-answer", cfg.QuizHandler.SubmitAnswer)
		quiz.POST("/analyze", cfg.QuizHandler.Analyze)
		quiz.POST("/submit-experience-level", cfg.QuizHandler.SubmitExperienceLevel)

		// Draft buffer
		quiz.GET("/sessions/:token/draft", cfg.QuizHandler.GetDraft)
		quiz.PUT("/sessions/:token/draft", cfg.QuizHandler.PutDraft)
		quiz.DELETE("/sessions/:token/draft", cfg.QuizHandler.ClearDraft)

		// Account conversion (protected)
		if cfg.AuthMiddleware != nil {
			quiz.POST("/sessions/:token/transfer", cfg.AuthMiddleware.RequireAuth(), cfg.QuizHandler.TransferSession)
		}
	}

	return r
}
