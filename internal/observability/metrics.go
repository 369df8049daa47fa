package observability

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yungbote/teamchat-backend/internal/platform/envutil"
	"github.com/yungbote/teamchat-backend/internal/platform/logger"
)

// Metrics owns a private registry so tests can build as many as they like.
// Every method is safe on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec
	httpInflight prometheus.Gauge

	messagesAppended *prometheus.CounterVec
	messagesEdited   prometheus.Counter
	messagesDeleted  prometheus.Counter
	roomsCreated     *prometheus.CounterVec

	envelopesPublished prometheus.Counter
	envelopesDropped   *prometheus.CounterVec
	subscribers        prometheus.Gauge
	busErrors          *prometheus.CounterVec

	pgStats   *prometheus.GaugeVec
	redisUp   prometheus.Gauge
	redisPing prometheus.Gauge
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	return envutil.Bool("METRICS_ENABLED", true)
}

func Current() *Metrics {
	return instance
}

// Init builds the process-wide instance. Returns nil when METRICS_ENABLED is false.
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

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by method/route/status.",
		}, []string{"method", "route", "status"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds by method/route.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"method", "route"}),
		httpInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "In-flight HTTP requests.",
		}),
		messagesAppended: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_messages_appended_total",
			Help: "Messages persisted by room kind.",
		}, []string{"room_kind"}),
		messagesEdited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chat_messages_edited_total",
			Help: "Messages edited.",
		}),
		messagesDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chat_messages_deleted_total",
			Help: "Messages soft-deleted.",
		}),
		roomsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_rooms_created_total",
			Help: "Rooms created by kind.",
		}, []string{"room_kind"}),
		envelopesPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "realtime_envelopes_published_total",
			Help: "Envelopes fanned out by the local hub.",
		}),
		envelopesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "realtime_envelopes_dropped_total",
			Help: "Envelopes dropped for a subscriber whose buffer was full.",
		}, []string{"transport"}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "realtime_subscribers",
			Help: "Live hub subscribers.",
		}),
		busErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "realtime_bus_errors_total",
			Help: "Redis bus publish/decode failures.",
		}, []string{"op"}),
		pgStats: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "db_pool_stats",
			Help: "database/sql pool stats.",
		}, []string{"metric"}),
		redisUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "redis_up",
			Help: "Redis connectivity (1=up, 0=down).",
		}),
		redisPing: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "redis_ping_seconds",
			Help: "Last redis ping latency.",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests, m.httpLatency, m.httpInflight,
		m.messagesAppended, m.messagesEdited, m.messagesDeleted, m.roomsCreated,
		m.envelopesPublished, m.envelopesDropped, m.subscribers, m.busErrors,
		m.pgStats, m.redisUp, m.redisPing,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

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
	m.httpRequests.WithLabelValues(method, route, status).Inc()
	m.httpLatency.WithLabelValues(method, route).Observe(dur.Seconds())
}

func (m *Metrics) APIInflightInc() {
	if m == nil {
		return
	}
	m.httpInflight.Inc()
}

func (m *Metrics) APIInflightDec() {
	if m == nil {
		return
	}
	m.httpInflight.Dec()
}

func (m *Metrics) IncMessageAppended(roomKind string) {
	if m == nil {
		return
	}
	m.messagesAppended.WithLabelValues(labelOr(roomKind)).Inc()
}

func (m *Metrics) IncMessageEdited() {
	if m == nil {
		return
	}
	m.messagesEdited.Inc()
}

func (m *Metrics) IncMessageDeleted() {
	if m == nil {
		return
	}
	m.messagesDeleted.Inc()
}

func (m *Metrics) IncRoomCreated(roomKind string) {
	if m == nil {
		return
	}
	m.roomsCreated.WithLabelValues(labelOr(roomKind)).Inc()
}

func (m *Metrics) IncEnvelopePublished() {
	if m == nil {
		return
	}
	m.envelopesPublished.Inc()
}

func (m *Metrics) IncEnvelopeDropped(transport string) {
	if m == nil {
		return
	}
	m.envelopesDropped.WithLabelValues(labelOr(transport)).Inc()
}

func (m *Metrics) SubscriberAdded() {
	if m == nil {
		return
	}
	m.subscribers.Inc()
}

func (m *Metrics) SubscriberRemoved() {
	if m == nil {
		return
	}
	m.subscribers.Dec()
}

func (m *Metrics) IncBusError(op string) {
	if m == nil {
		return
	}
	m.busErrors.WithLabelValues(labelOr(op)).Inc()
}

func labelOr(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "unknown"
	}
	return v
}

func scrapeInterval() time.Duration {
	return envutil.Duration("METRICS_SCRAPE_INTERVAL_SECONDS", 10*time.Second)
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
						log.Warn("metrics: db stats unavailable", "error", err)
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

func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, rdb *redis.Client) {
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
