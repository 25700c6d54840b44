package metrics

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the trend engine.
type Metrics struct {
	CandlesTotal   *prometheus.CounterVec // labels: tf
	StaleCandles   prometheus.Counter
	ReportsTotal   *prometheus.CounterVec // labels: tf, config
	SegmentsPerRun prometheus.Histogram
	AnalysisDur    prometheus.Histogram
	ErrorsTotal    *prometheus.CounterVec // labels: kind
	Windows        prometheus.Gauge

	// PEL reclaim
	PELMessagesReclaimed prometheus.Counter

	// Redis write breaker
	RedisBreakerState prometheus.Gauge // 0=closed, 1=half-open, 2=open
	RedisBreakerTrips prometheus.Counter

	// Websocket fan-out
	WSClients prometheus.Gauge
	WSDrops   prometheus.Counter

	ConfigReloads *prometheus.CounterVec // labels: source=http|pubsub
	AlertsTotal   *prometheus.CounterVec // labels: level
}

// NewMetrics creates every metric and registers it on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CandlesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trendengine_candles_total",
			Help: "Closed TF candles accepted into rolling windows",
		}, []string{"tf"}),
		StaleCandles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trendengine_stale_candles_total",
			Help: "Candles rejected because they were not newer than the window",
		}),
		ReportsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trendengine_reports_total",
			Help: "Trend reports produced",
		}, []string{"tf", "config"}),
		SegmentsPerRun: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "trendengine_segments_per_report",
			Help:    "Number of trend segments in each report",
			Buckets: []float64{1, 2, 3, 5, 8, 13, 21, 34},
		}),
		AnalysisDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "trendengine_analysis_duration_seconds",
			Help:    "Time to analyze one rolling window",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}),
		ErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trendengine_errors_total",
			Help: "Errors by kind",
		}, []string{"kind"}),
		Windows: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trendengine_windows",
			Help: "Rolling windows held in memory",
		}),
		PELMessagesReclaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trendengine_pel_messages_reclaimed_total",
			Help: "Stale PEL entries reclaimed from dead consumers",
		}),
		RedisBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trendengine_redis_breaker_state",
			Help: "Redis write circuit breaker state (0=closed, 1=half-open, 2=open)",
		}),
		RedisBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trendengine_redis_breaker_trips_total",
			Help: "Times the Redis write breaker opened",
		}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trendengine_ws_clients",
			Help: "Connected websocket clients",
		}),
		WSDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trendengine_ws_drops_total",
			Help: "Reports dropped for slow websocket clients",
		}),
		ConfigReloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trendengine_config_reloads_total",
			Help: "Threshold reloads applied",
		}, []string{"source"}),
		AlertsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trendengine_alerts_total",
			Help: "Trend reversal alerts raised",
		}, []string{"level"}),
	}

	reg.MustRegister(
		m.CandlesTotal,
		m.StaleCandles,
		m.ReportsTotal,
		m.SegmentsPerRun,
		m.AnalysisDur,
		m.ErrorsTotal,
		m.Windows,
		m.PELMessagesReclaimed,
		m.RedisBreakerState,
		m.RedisBreakerTrips,
		m.WSClients,
		m.WSDrops,
		m.ConfigReloads,
		m.AlertsTotal,
	)
	return m
}

// HealthStatus represents the service health.
type HealthStatus struct {
	mu sync.RWMutex

	RedisConnected bool      `json:"redis_connected"`
	SQLiteOK       bool      `json:"sqlite_ok"`
	LastCandleTime time.Time `json:"last_candle_time"`
	LastReportTime time.Time `json:"last_report_time"`
	Config         string    `json:"config"`
	EnabledTFs     []int     `json:"enabled_tfs"`

	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{StartedAt: time.Now()}
}

func (h *HealthStatus) SetLastCandleTime(t time.Time) {
	h.mu.Lock()
	h.LastCandleTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastReportTime(t time.Time) {
	h.mu.Lock()
	h.LastReportTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetConfig(name string) {
	h.mu.Lock()
	h.Config = name
	h.mu.Unlock()
}

func (h *HealthStatus) SetEnabledTFs(tfs []int) {
	h.mu.Lock()
	h.EnabledTFs = tfs
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedisConnected(v bool) {
	h.mu.Lock()
	h.RedisConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSQLiteOK(v bool) {
	h.mu.Lock()
	h.SQLiteOK = v
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb goredis.UniversalClient) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the archive and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sqlx.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks. Either dependency may
// be nil when the service runs without it.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb goredis.UniversalClient, db *sqlx.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if db != nil {
					h.CheckSQLite(probeCtx, db)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint. Redis is required; a missing
// archive only degrades the service.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK
	switch {
	case !h.RedisConnected:
		overallStatus = "unhealthy"
		httpCode = http.StatusServiceUnavailable
	case !h.SQLiteOK:
		overallStatus = "degraded"
	}

	candleAge := ""
	if !h.LastCandleTime.IsZero() {
		candleAge = time.Since(h.LastCandleTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		Config          string  `json:"config"`
		CandleAge       string  `json:"candle_age"`
		LastReportTime  string  `json:"last_report_time"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		EnabledTFs      []int   `json:"enabled_tfs"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		Config:          h.Config,
		CandleAge:       candleAge,
		LastReportTime:  h.LastReportTime.Format(time.RFC3339),
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		EnabledTFs:      h.EnabledTFs,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpCode)
	if err := json.NewEncoder(w).Encode(status); err != nil {
		slog.Warn("health encode failed", slog.Any("error", err))
	}
}
