package observability

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/KJJisBetter/scentmatch-sub009/internal/platform/envutil"
	"github.com/KJJisBetter/scentmatch-sub009/internal/platform/logger"
)

// Metrics holds the service's prometheus collectors. All methods are safe on a nil
// receiver so callers never need to check whether metrics are enabled.
type Metrics struct {
	registry *prometheus.Registry

	apiRequests *prometheus.CounterVec
	apiLatency  *prometheus.HistogramVec
	apiInflight prometheus.Gauge

	aggregateOps       *prometheus.CounterVec
	aggregateLatency   *prometheus.HistogramVec
	aggregateConflicts *prometheus.CounterVec
	aggregateRetries   *prometheus.CounterVec

	sessionsCreated  *prometheus.CounterVec
	rateLimited      prometheus.Counter
	botClassified    *prometheus.CounterVec
	botConfidence    prometheus.Histogram
	profilesScored   *prometheus.CounterVec
	tierOutcomes     *prometheus.CounterVec
	tierLatency      *prometheus.HistogramVec
	recCache         *prometheus.CounterVec
	sweptSessions    prometheus.Counter
	sweepReclaimed   prometheus.Counter
	eventsEmitted    *prometheus.CounterVec
	transfersOutcome *prometheus.CounterVec

	pgStats   *prometheus.GaugeVec
	redisUp   prometheus.Gauge
	redisPing prometheus.Gauge
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	return envutil.Bool("METRICS_ENABLED", false)
}

func Current() *Metrics {
	return instance
}

func scrapeInterval() time.Duration {
	return envutil.Seconds("METRICS_SCRAPE_INTERVAL_SECONDS", 10*time.Second)
}

// Init builds the process-wide metrics once. It returns nil when METRICS_ENABLED is off.
func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		instance = New()
		if log != nil {
			log.Info("metrics enabled")
		}
	})
	return instance
}

// New builds a Metrics bound to its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		apiRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "scentmatch_api_requests_total",
			Help: "Total API requests by method/route/status.",
		}, []string{"method", "route", "status"}),
		apiLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scentmatch_api_request_duration_seconds",
			Help:    "API request latency in seconds by method/route/status.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"method", "route", "status"}),
		apiInflight: f.NewGauge(prometheus.GaugeOpts{
			Name: "scentmatch_api_inflight_requests",
			Help: "In-flight API requests.",
		}),

		aggregateOps: f.NewCounterVec(prometheus.CounterOpts{
			Name: "scentmatch_aggregate_operations_total",
			Help: "Aggregate write operations by name/status.",
		}, []string{"operation", "status"}),
		aggregateLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scentmatch_aggregate_operation_duration_seconds",
			Help:    "Aggregate write latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		aggregateConflicts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "scentmatch_aggregate_conflicts_total",
			Help: "Aggregate writes that lost a race.",
		}, []string{"operation"}),
		aggregateRetries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "scentmatch_aggregate_retries_total",
			Help: "Aggregate write retries.",
		}, []string{"operation"}),

		sessionsCreated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "scentmatch_quiz_sessions_created_total",
			Help: "Guest quiz session creation attempts by outcome.",
		}, []string{"outcome"}),
		rateLimited: f.NewCounter(prometheus.CounterOpts{
			Name: "scentmatch_quiz_rate_limited_total",
			Help: "Session creations rejected by the origin quota.",
		}),
		botClassified: f.NewCounterVec(prometheus.CounterOpts{
			Name: "scentmatch_quiz_integrity_classifications_total",
			Help: "Answer integrity classifications by verdict.",
		}, []string{"verdict"}),
		botConfidence: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "scentmatch_quiz_integrity_confidence",
			Help:    "Distribution of automated-response confidence.",
			Buckets: []float64{0, 0.1, 0.3, 0.5, 0.75, 0.85, 0.91, 1},
		}),
		profilesScored: f.NewCounterVec(prometheus.CounterOpts{
			Name: "scentmatch_quiz_profiles_scored_total",
			Help: "Personality profiles computed by experience level.",
		}, []string{"experience_level"}),
		tierOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "scentmatch_recommendation_tier_total",
			Help: "Recommendation tier attempts by tier/outcome.",
		}, []string{"tier", "outcome"}),
		tierLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scentmatch_recommendation_tier_duration_seconds",
			Help:    "Recommendation tier latency in seconds.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"tier"}),
		recCache: f.NewCounterVec(prometheus.CounterOpts{
			Name: "scentmatch_recommendation_cache_total",
			Help: "Recommendation cache lookups by result.",
		}, []string{"result"}),
		sweptSessions: f.NewCounter(prometheus.CounterOpts{
			Name: "scentmatch_quiz_sessions_swept_total",
			Help: "Expired guest sessions deleted by the sweep.",
		}),
		sweepReclaimed: f.NewCounter(prometheus.CounterOpts{
			Name: "scentmatch_quiz_sweep_reclaimed_bytes_total",
			Help: "Estimated bytes reclaimed by the sweep.",
		}),
		eventsEmitted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "scentmatch_events_emitted_total",
			Help: "Analytics events by name/outcome.",
		}, []string{"event", "outcome"}),
		transfersOutcome: f.NewCounterVec(prometheus.CounterOpts{
			Name: "scentmatch_quiz_transfers_total",
			Help: "Guest session transfers by outcome.",
		}, []string{"outcome"}),

		pgStats: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "scentmatch_postgres_pool",
			Help: "Postgres connection pool stats.",
		}, []string{"stat"}),
		redisUp: f.NewGauge(prometheus.GaugeOpts{
			Name: "scentmatch_redis_up",
			Help: "Whether the last redis ping succeeded.",
		}),
		redisPing: f.NewGauge(prometheus.GaugeOpts{
			Name: "scentmatch_redis_ping_seconds",
			Help: "Latency of the last redis ping.",
		}),
	}
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "UNKNOWN"
	}
	if route == "" {
		route = "unknown"
	}
	if status == "" {
		status = "0"
	}
	m.apiRequests.WithLabelValues(method, route, status).Inc()
	m.apiLatency.WithLabelValues(method, route, status).Observe(dur.Seconds())
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

func (m *Metrics) ObserveAggregateOperation(name, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.aggregateOps.WithLabelValues(name, status).Inc()
	m.aggregateLatency.WithLabelValues(name).Observe(dur.Seconds())
}

func (m *Metrics) IncAggregateConflict(name string) {
	if m == nil {
		return
	}
	m.aggregateConflicts.WithLabelValues(name).Inc()
}

func (m *Metrics) IncAggregateRetry(name string) {
	if m == nil {
		return
	}
	m.aggregateRetries.WithLabelValues(name).Inc()
}

func (m *Metrics) IncSessionCreated(outcome string) {
	if m == nil {
		return
	}
	m.sessionsCreated.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncRateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}

func (m *Metrics) ObserveIntegrity(isBot bool, confidence float64) {
	if m == nil {
		return
	}
	verdict := "human"
	if isBot {
		verdict = "bot"
	}
	m.botClassified.WithLabelValues(verdict).Inc()
	m.botConfidence.Observe(confidence)
}

func (m *Metrics) IncProfileScored(level string) {
	if m == nil {
		return
	}
	m.profilesScored.WithLabelValues(level).Inc()
}

func (m *Metrics) ObserveRecommendationTier(tier, outcome string, dur time.Duration) {
	if m == nil {
		return
	}
	m.tierOutcomes.WithLabelValues(tier, outcome).Inc()
	m.tierLatency.WithLabelValues(tier).Observe(dur.Seconds())
}

func (m *Metrics) IncRecommendationCache(hit bool) {
	if m == nil {
		return
	}
	m.recCache.WithLabelValues(strconv.FormatBool(hit)).Inc()
}

func (m *Metrics) ObserveSweep(sessions int64, reclaimedBytes int64) {
	if m == nil {
		return
	}
	m.sweptSessions.Add(float64(sessions))
	m.sweepReclaimed.Add(float64(reclaimedBytes))
}

func (m *Metrics) IncEvent(name, outcome string) {
	if m == nil {
		return
	}
	m.eventsEmitted.WithLabelValues(name, outcome).Inc()
}

func (m *Metrics) IncTransfer(outcome string) {
	if m == nil {
		return
	}
	m.transfersOutcome.WithLabelValues(outcome).Inc()
}

func (m *Metrics) StartPostgresCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sqlDB, err := db.DB()
				if err != nil {
					if log != nil {
						log.Warn("metrics: postgres stats unavailable", "error", err)
					}
					continue
				}
				stats := sqlDB.Stats()
				m.pgStats.WithLabelValues("open_connections").Set(float64(stats.OpenConnections))
				m.pgStats.WithLabelValues("in_use").Set(float64(stats.InUse))
				m.pgStats.WithLabelValues("idle").Set(float64(stats.Idle))
				m.pgStats.WithLabelValues("wait_count").Set(float64(stats.WaitCount))
				m.pgStats.WithLabelValues("wait_duration_seconds").Set(stats.WaitDuration.Seconds())
				m.pgStats.WithLabelValues("max_open_connections").Set(float64(stats.MaxOpenConnections))
			}
		}
	}()
}

// StartRedisCollector pings rdb on the scrape interval. The client is owned by the caller.
func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, rdb redis.UniversalClient) {
	if m == nil || rdb == nil {
		return
	}
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				start := time.Now()
				if err := rdb.Ping(ctx).Err(); err != nil {
					m.redisUp.Set(0)
					if log != nil {
						log.Warn("metrics: redis ping failed", "error", err)
					}
					continue
				}
				m.redisUp.Set(1)
				m.redisPing.Set(time.Since(start).Seconds())
			}
		}
	}()
}
