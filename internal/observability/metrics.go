package observability

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yungbote/roomforge-backend/internal/platform/envutil"
	"github.com/yungbote/roomforge-backend/internal/platform/logger"
)

const namespace = "roomforge"

type Metrics struct {
	registry *prometheus.Registry

	apiRequests *prometheus.CounterVec
	apiLatency  *prometheus.HistogramVec
	apiInflight prometheus.Gauge

	signals        *prometheus.CounterVec
	activityTime   *prometheus.HistogramVec
	providerCalls  *prometheus.CounterVec
	providerTime   *prometheus.HistogramVec
	purgedBlobs    prometheus.Counter
	projectsByStep *prometheus.GaugeVec

	redisUp   prometheus.Gauge
	redisPing prometheus.Gauge
	pgOpen    prometheus.Gauge
	pgInUse   prometheus.Gauge
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	return envutil.Bool("METRICS_ENABLED", false)
}

// Current returns the process metrics, or nil when Init has not enabled them. Every
// method is safe on a nil receiver.
func Current() *Metrics {
	return instance
}

func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		instance = NewMetrics()
		if log != nil {
			log.Info("metrics enabled", "namespace", namespace)
		}
	})
	return instance
}

// NewMetrics builds an unshared metrics set on its own registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "api_requests_total",
			Help: "API requests by method/route/status.",
		}, []string{"method", "route", "status"}),
		apiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "api_request_duration_seconds",
			Help:    "API request latency in seconds.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"method", "route", "status"}),
		apiInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "api_inflight_requests",
			Help: "In-flight API requests.",
		}),
		signals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "project_signals_total",
			Help: "Project signals by type and how they were received.",
		}, []string{"signal", "outcome"}),
		activityTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "activity_duration_seconds",
			Help:    "Project activity duration in seconds.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}, []string{"activity", "status"}),
		providerCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "provider_requests_total",
			Help: "AI provider calls by operation/status.",
		}, []string{"operation", "status"}),
		providerTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "provider_request_duration_seconds",
			Help:    "AI provider call latency in seconds.",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"operation"}),
		purgedBlobs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "purged_blobs_total",
			Help: "Blobs deleted by project purges.",
		}),
		projectsByStep: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "projects",
			Help: "Indexed projects by step.",
		}, []string{"step"}),
		redisUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "redis_up", Help: "1 when the last redis ping succeeded.",
		}),
		redisPing: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "redis_ping_seconds", Help: "Latency of the last redis ping.",
		}),
		pgOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "postgres_open_connections", Help: "Open postgres connections.",
		}),
		pgInUse: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "postgres_in_use_connections", Help: "Postgres connections in use.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.signals, m.activityTime, m.providerCalls, m.providerTime, m.purgedBlobs, m.projectsByStep,
		m.redisUp, m.redisPing, m.pgOpen, m.pgInUse,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Gather exposes the registry for tests.
func (m *Metrics) Gather() (prometheus.Gatherer, bool) {
	if m == nil {
		return nil, false
	}
	return m.registry, true
}

func (m *Metrics) ObserveAPI(method, route string, status int, dur time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "UNKNOWN"
	}
	if route == "" {
		route = "unknown"
	}
	code := strconv.Itoa(status)
	m.apiRequests.WithLabelValues(method, route, code).Inc()
	m.apiLatency.WithLabelValues(method, route, code).Observe(dur.Seconds())
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

func (m *Metrics) IncSignal(signal, outcome string) {
	if m == nil {
		return
	}
	m.signals.WithLabelValues(signal, outcome).Inc()
}

func (m *Metrics) ObserveActivity(activityName, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if status == "" {
		status = "unknown"
	}
	m.activityTime.WithLabelValues(activityName, status).Observe(dur.Seconds())
}

func (m *Metrics) ObserveProviderRequest(operation, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.providerCalls.WithLabelValues(operation, status).Inc()
	m.providerTime.WithLabelValues(operation).Observe(dur.Seconds())
}

func (m *Metrics) AddPurgedBlobs(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.purgedBlobs.Add(float64(n))
}

func (m *Metrics) SetProjectsByStep(counts map[string]int64) {
	if m == nil {
		return
	}
	m.projectsByStep.Reset()
	for step, n := range counts {
		m.projectsByStep.WithLabelValues(step).Set(float64(n))
	}
}

func scrapeInterval() time.Duration {
	return envutil.Seconds("METRICS_SCRAPE_INTERVAL_SECONDS", 15)
}

func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, rdb *goredis.Client) {
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

func (m *Metrics) StartPostgresCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	sqlDB, err := db.DB()
	if err != nil {
		if log != nil {
			log.Warn("metrics: postgres stats unavailable", "error", err)
		}
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
				stats := sqlDB.Stats()
				m.pgOpen.Set(float64(stats.OpenConnections))
				m.pgInUse.Set(float64(stats.InUse))
			}
		}
	}()
}
