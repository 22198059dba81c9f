package app

import (
	"context"

	"gorm.io/gorm"

	"github.com/KJJisBetter/scentmatch-sub009/internal/http"
	httpH "github.com/KJJisBetter/scentmatch-sub009/internal/http/handlers"
	httpMW "github.com/KJJisBetter/scentmatch-sub009/internal/http/middleware"
	"github.com/KJJisBetter/scentmatch-sub009/internal/observability"
	"github.com/KJJisBetter/scentmatch-sub009/internal/platform/logger"
)

type Middleware struct {
	Auth *httpMW.AuthMiddleware
}

type Handlers struct {
	Health *httpH.HealthHandler
	Quiz   *httpH.QuizHandler
}

func wireHandlers(log *logger.Logger, db *gorm.DB, services Services) Handlers {
	log.Info("Wiring handlers...")
	ping := func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}
	return Handlers{
		Health: httpH.NewHealthHandler(ping),
		Quiz:   httpH.NewQuizHandler(log, services.Sessions, services.Quiz, services.Drafts),
	}
}

func wireMiddleware(log *logger.Logger, services Services) Middleware {
	log.Info("Wiring middleware...")
	return Middleware{
		Auth: httpMW.NewAuthMiddleware(log, services.Tokens),
	}
}

func wireServer(log *logger.Logger, cfg Config, metrics *observability.Metrics, handlers Handlers, middleware Middleware) *http.Server {
	return http.NewServer(http.RouterConfig{
		Log:            log,
		Metrics:        metrics,
		ServiceName:    cfg.ServiceName,
		AllowedOrigins: cfg.AllowedOrigins,
		AuthMiddleware: middleware.Auth,
		QuizHandler:    handlers.Quiz,
		HealthHandler:  handlers.Health,
	})
}
