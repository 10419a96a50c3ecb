package metrics

import (
	"context"
	"database/sql"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the research terminal.
type Metrics struct {
	// Ticker fan-out
	Sinks              prometheus.Gauge
	ActiveSymbols      prometheus.Gauge
	UpstreamState      prometheus.Gauge // 0=disconnected, 1=connecting, 2=connected
	UpstreamReconnects prometheus.Counter
	ControlMessages    *prometheus.CounterVec // labels: action
	EventsBroadcast    prometheus.Counter
	SinkDrops          *prometheus.CounterVec // labels: reason=closed|busy
	MalformedFrames    prometheus.Counter

	// Indicator engine
	IndicatorComputeDur *prometheus.HistogramVec // labels: kind

	// History loader
	HistoryLookups   *prometheus.CounterVec // labels: source=cache|store|remote, result=hit|miss|error
	HistoryLoadDur   prometheus.Histogram
	RemoteRateWaited prometheus.Counter

	// Circuit breaker on the Redis bar cache
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter
}

// NewMetrics creates all metrics and registers them with reg.
// A nil reg registers with the process-wide default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		Sinks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "terminal_stream_sinks",
			Help: "Connected SSE sinks",
		}),
		ActiveSymbols: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "terminal_stream_active_symbols",
			Help: "Symbols with at least one interested sink",
		}),
		UpstreamState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "terminal_upstream_state",
			Help: "Upstream connection state (0=disconnected, 1=connecting, 2=connected)",
		}),
		UpstreamReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "terminal_upstream_reconnects_total",
			Help: "Total upstream reconnection attempts",
		}),
		ControlMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "terminal_upstream_control_messages_total",
			Help: "Control messages queued to the upstream feed",
		}, []string{"action"}),
		EventsBroadcast: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "terminal_stream_events_total",
			Help: "Upstream events fanned out to sinks",
		}),
		SinkDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "terminal_stream_sink_drops_total",
			Help: "Events not delivered to a sink",
		}, []string{"reason"}),
		MalformedFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "terminal_upstream_malformed_frames_total",
			Help: "Upstream frames that could not be decoded",
		}),
		IndicatorComputeDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "terminal_indicator_compute_seconds",
			Help:    "Time to compute one indicator series",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		}, []string{"kind"}),
		HistoryLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "terminal_history_lookups_total",
			Help: "Historical bar lookups by tier and outcome",
		}, []string{"source", "result"}),
		HistoryLoadDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "terminal_history_load_seconds",
			Help:    "End-to-end historical bar load latency",
			Buckets: prometheus.DefBuckets,
		}),
		RemoteRateWaited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "terminal_history_remote_requests_total",
			Help: "Rate-limited requests issued to the remote bar source",
		}),
		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "terminal_redis_circuit_breaker_state",
			Help: "Bar cache circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "terminal_redis_circuit_breaker_trips_total",
			Help: "Times the bar cache circuit breaker opened",
		}),
	}

	reg.MustRegister(
		m.Sinks,
		m.ActiveSymbols,
		m.UpstreamState,
		m.UpstreamReconnects,
		m.ControlMessages,
		m.EventsBroadcast,
		m.SinkDrops,
		m.MalformedFrames,
		m.IndicatorComputeDur,
		m.HistoryLookups,
		m.HistoryLoadDur,
		m.RemoteRateWaited,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
	)

	return m
}

// HealthStatus tracks dependency liveness for the /health endpoint.
type HealthStatus struct {
	mu sync.RWMutex

	RedisConfigured  bool
	RedisConnected   bool
	SQLiteConfigured bool
	SQLiteOK         bool
	RedisLatencyMs   float64
	SQLiteLatencyMs  float64
	LastEventTime    time.Time
	LastCheckAt      time.Time
	StartedAt        time.Time
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetLastEventTime(t time.Time) {
	h.mu.Lock()
	h.LastEventTime = t
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConfigured = true
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the bar store and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteConfigured = true
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks until ctx is done.
// Either dependency may be nil.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	probe := func() {
		probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if rdb != nil {
			h.CheckRedis(probeCtx, rdb)
		}
		if sqlDB != nil {
			h.CheckSQLite(probeCtx, sqlDB)
		}
	}

	go func() {
		probe()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probe()
			}
		}
	}()
}

// HealthSnapshot is the JSON view of HealthStatus.
type HealthSnapshot struct {
	Status          string  `json:"status"`
	Uptime          string  `json:"uptime"`
	LastEventTime   string  `json:"last_event_time,omitempty"`
	EventAge        string  `json:"event_age,omitempty"`
	RedisConnected  bool    `json:"redis_connected"`
	RedisLatencyMs  float64 `json:"redis_latency_ms"`
	SQLiteOK        bool    `json:"sqlite_ok"`
	SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
	LastCheckAt     string  `json:"last_check_at,omitempty"`
}

// Snapshot returns the current status. A configured dependency that is down
// makes the status "degraded"; the cache and store both down is "unhealthy".
func (h *HealthStatus) Snapshot() HealthSnapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()

	redisDown := h.RedisConfigured && !h.RedisConnected
	sqliteDown := h.SQLiteConfigured && !h.SQLiteOK

	status := "healthy"
	if redisDown || sqliteDown {
		status = "degraded"
	}
	if redisDown && sqliteDown {
		status = "unhealthy"
	}

	s := HealthSnapshot{
		Status:          status,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
	}
	if !h.LastEventTime.IsZero() {
		s.LastEventTime = h.LastEventTime.Format(time.RFC3339)
		s.EventAge = time.Since(h.LastEventTime).Round(time.Millisecond).String()
	}
	if !h.LastCheckAt.IsZero() {
		s.LastCheckAt = h.LastCheckAt.Format(time.RFC3339)
	}
	return s
}
