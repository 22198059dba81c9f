package app

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/KJJisBetter/scentmatch-sub009/internal/clients/redis"
	"github.com/KJJisBetter/scentmatch-sub009/internal/data/aggregates"
	"github.com/KJJisBetter/scentmatch-sub009/internal/jobs/worker"
	"github.com/KJJisBetter/scentmatch-sub009/internal/observability"
	"github.com/KJJisBetter/scentmatch-sub009/internal/platform/logger"
	"github.com/KJJisBetter/scentmatch-sub009/internal/services"
)

type Services struct {
	// Core
	Events    services.EventEmitter
	EventBus  *redis.EventBus
	Hasher    *services.OriginHasher
	Plans     *services.QuestionPlans
	RecsCache *services.RecommendationCache

	// Pipeline stages
	Sessions  services.SessionService
	Integrity services.IntegrityGuard
	Scoring   services.ScoringEngine
	Resolver  services.RecommendationResolver
	Quiz      services.QuizPipeline
	Drafts    services.DraftService

	// Auth
	Tokens services.TokenVerifier

	// Background
	Sweeper *worker.Sweeper
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, reposet Repos, clients Clients, metrics *observability.Metrics) (Services, error) {
	log.Info("Wiring services...")

	plans, err := services.LoadQuestionPlans()
	if err != nil {
		return Services{}, fmt.Errorf("load question plans: %w", err)
	}

	var (
		publisher services.EventPublisher
		bus       *redis.EventBus
		counter   services.OriginCounter
		drafts    services.DraftStore
		purgers   []worker.Purger
	)
	if clients.Redis != nil {
		bus, err = redis.NewEventBus(clients.Redis, cfg.EventsChannel, log)
		if err != nil {
			return Services{}, fmt.Errorf("init event bus: %w", err)
		}
		publisher = bus
		counter = redis.NewWindowCounter(clients.Redis, cfg.RedisKeyPrefix+":origin")
		drafts = redis.NewDraftStore(clients.Redis, cfg.RedisKeyPrefix+":draft")
	} else {
		counter = services.NewStoreOriginCounter(reposet.QuizSession)
		memDrafts := services.NewMemoryDraftStore(cfg.Session.DraftMaxEntries)
		drafts = memDrafts
		purgers = append(purgers, memDrafts)
	}
	events := services.NewEventEmitter(log, metrics, publisher)

	aggregate := aggregates.NewGuestSessionAggregate(aggregates.GuestSessionAggregateDeps{
		Runner:    aggregates.NewGormTxRunner(db),
		Sessions:  reposet.QuizSession,
		Responses: reposet.QuizResponse,
		Profiles:  reposet.PersonalityProfile,
		Hooks:     aggregates.NewObservabilityHooks(metrics),
	}, log)

	hasher := services.NewOriginHasher(cfg.OriginSalt)
	sessions := services.NewSessionService(services.SessionServiceDeps{
		Sessions:  reposet.QuizSession,
		Aggregate: aggregate,
		Counter:   counter,
		Hasher:    hasher,
		Events:    events,
	}, cfg.Session, log, metrics)

	cache := services.NewRecommendationCache(cfg.Recommendation.CacheTTL, cfg.Recommendation.CacheMaxEntries, metrics)
	integrity := services.NewIntegrityGuard(cfg.Integrity, log, metrics)
	scoring := services.NewScoringEngine(log, metrics)
	resolver := services.NewRecommendationResolver(services.RecommendationDeps{
		Fragrances: reposet.Fragrance,
		Responses:  reposet.QuizResponse,
		Cache:      cache,
		Events:     events,
	}, cfg.Recommendation, log, metrics)

	quiz := services.NewQuizPipeline(services.QuizPipelineDeps{
		Sessions:  sessions,
		Integrity: integrity,
		Scoring:   scoring,
		Resolver:  resolver,
		Responses: reposet.QuizResponse,
		Profiles:  reposet.PersonalityProfile,
		Plans:     plans,
		Cache:     cache,
		Events:    events,
	}, log)

	return Services{
		Events:    events,
		EventBus:  bus,
		Hasher:    hasher,
		Plans:     plans,
		RecsCache: cache,
		Sessions:  sessions,
		Integrity: integrity,
		Scoring:   scoring,
		Resolver:  resolver,
		Quiz:      quiz,
		Drafts:    services.NewDraftService(drafts, sessions, cfg.Session.DraftTTL, log),
		Tokens:    services.NewTokenVerifier(cfg.JWTSecretKey),
		Sweeper:   worker.NewSweeper(log, sessions, cfg.Session.SweepInterval, purgers...),
	}, nil
}
