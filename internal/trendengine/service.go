// Package trendengine is the trend engine service: it consumes closed TF
// candles from Redis Streams, keeps a rolling window per instrument, decomposes
// each due window into trend segments and publishes the reports to Redis,
// SQLite and websocket clients.
package trendengine

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"trendsys/internal/analyzer"
	"trendsys/internal/metrics"
	"trendsys/internal/model"
	"trendsys/internal/notification"
	redisstore "trendsys/internal/store/redis"
	sqlitestore "trendsys/internal/store/sqlite"

	goredis "github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sony/gobreaker"
)

const candleBuffer = 5000

// Service is the top-level orchestrator for the trend engine.
// It wires all dependencies, manages lifecycle, and coordinates goroutines.
type Service struct {
	cfg Config

	engine      *analyzer.Engine
	redisReader *redisstore.Reader
	redisWriter *redisstore.Writer
	store       *sqlitestore.Store

	// Ports used on the hot path; nil when the backing store is unavailable.
	writer    model.ReportWriter
	archive   model.ReportArchive
	snapshots model.SnapshotStore

	registry *prometheus.Registry
	prom     *metrics.Metrics
	health   *metrics.HealthStatus
	hub      *Hub
	httpSrv  *http.Server

	reversals *notification.ReversalDetector
	notifier  notification.Notifier

	streams    []string
	tfCandleCh chan model.TFCandle
	archiveCh  chan model.TFCandle
	restoredID string // stream ID of the snapshot the engine was restored from
}

// newService builds the parts that do not touch the network.
func newService(cfg Config) *Service {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	svc := &Service{
		cfg:        cfg,
		registry:   reg,
		prom:       metrics.NewMetrics(reg),
		health:     metrics.NewHealthStatus(),
		hub:        NewHub(),
		reversals:  notification.NewReversalDetector(),
		notifier:   notification.NewLogNotifier(),
		tfCandleCh: make(chan model.TFCandle, candleBuffer),
		archiveCh:  make(chan model.TFCandle, candleBuffer),
	}
	svc.hub.OnClients = func(n int) { svc.prom.WSClients.Set(float64(n)) }
	svc.hub.OnDrop = func() { svc.prom.WSDrops.Inc() }
	svc.health.SetEnabledTFs(cfg.EnabledTFs)
	svc.health.SetConfig(cfg.Engine.Options.Config.String())
	if cfg.AlertWebhookURL != "" {
		perMin := cfg.AlertsPerMinute
		if perMin <= 0 {
			perMin = 30
		}
		svc.notifier = notification.NewRateLimited(notification.NewWebhookNotifier(cfg.AlertWebhookURL), float64(perMin), 5)
	}
	return svc
}

// New creates a new Service from the given Config.
// It connects to Redis and SQLite; the engine is restored in Run.
func New(cfg Config) (*Service, error) {
	svc := newService(cfg)

	var err error
	svc.redisReader, err = redisstore.NewReader(redisstore.ReaderConfig{
		Addr:          cfg.RedisAddr,
		Password:      cfg.RedisPassword,
		ConsumerGroup: cfg.ConsumerGroup,
		ConsumerName:  cfg.ConsumerName,
	})
	if err != nil {
		return nil, err
	}

	svc.redisWriter, err = redisstore.New(redisstore.WriterConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		Breaker: redisstore.BreakerConfig{
			Name:          "trendengine-redis",
			MaxFailures:   cfg.BreakerFailures,
			Timeout:       cfg.BreakerTimeout,
			OnStateChange: svc.onBreakerChange,
		},
	})
	if err != nil {
		svc.redisReader.Close()
		return nil, err
	}
	svc.writer = svc.redisWriter
	svc.health.SetRedisConnected(true)

	if dir := filepath.Dir(cfg.SQLitePath); dir != "" {
		os.MkdirAll(dir, 0o755)
	}
	svc.store, err = sqlitestore.Open(cfg.SQLitePath)
	if err != nil {
		slog.Warn("sqlite init failed, continuing without archive", slog.String("error", err.Error()))
	} else {
		svc.archive = svc.store
		svc.snapshots = svc.store
		svc.health.SetSQLiteOK(true)
	}

	return svc, nil
}

func (svc *Service) onBreakerChange(from, to gobreaker.State) {
	svc.prom.RedisBreakerState.Set(float64(to))
	if to == gobreaker.StateOpen {
		svc.prom.RedisBreakerTrips.Inc()
	}
	slog.Warn("redis breaker state changed", slog.String("from", from.String()), slog.String("to", to.String()))
}

// Run starts all subsystems and blocks until ctx is cancelled.
func (svc *Service) Run(ctx context.Context) error {
	slog.Info("starting trend engine",
		slog.Any("tfs", svc.cfg.EnabledTFs),
		slog.String("trend_config", svc.cfg.Engine.Options.Config.String()))

	if err := svc.restoreEngine(ctx); err != nil {
		return err
	}

	svc.streams = svc.buildStreams(ctx)
	slog.Info("consuming TF candle streams", slog.Int("count", len(svc.streams)), slog.Any("streams", svc.streams))

	svc.replayStreams(ctx)

	go svc.processLoop(ctx)
	if svc.store != nil {
		go svc.store.RunTFCandles(ctx, svc.archiveCh)
	}

	if len(svc.streams) > 0 {
		if err := svc.redisReader.EnsureConsumerGroup(ctx, svc.streams); err != nil {
			slog.Warn("consumer group setup failed", slog.String("error", err.Error()))
		}
		if err := svc.redisReader.RecoverPending(ctx, svc.streams, svc.tfCandleCh); err != nil {
			slog.Warn("pending recovery failed", slog.String("error", err.Error()))
		}
	}

	svc.startPELReclaimer(ctx)
	svc.startConsumer(ctx)
	go svc.snapshotLoop(ctx)
	svc.startLiveness(ctx)
	svc.startHTTP(ctx)
	svc.startConfigSubscriber(ctx)

	slog.Info("trend engine running",
		slog.Int("snapshot_interval_s", svc.cfg.SnapshotIntervalS),
		slog.String("http_addr", svc.cfg.HTTPAddr))

	<-ctx.Done()
	svc.shutdown()
	return nil
}

// shutdown saves a final snapshot and closes connections.
func (svc *Service) shutdown() {
	slog.Info("shutdown signal received, saving final snapshot")

	shutCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if svc.httpSrv != nil {
		svc.httpSrv.Shutdown(shutCtx)
	}
	svc.saveSnapshot(shutCtx)

	if svc.store != nil {
		svc.store.Close()
	}
	if svc.redisWriter != nil {
		svc.redisWriter.Close()
	}
	if svc.redisReader != nil {
		svc.redisReader.Close()
	}
	slog.Info("shutdown complete")
}

// restoreEngine restores the engine from the Redis snapshot, falling back to
// SQLite, then cold start; then warms windows from the SQLite candle archive.
func (svc *Service) restoreEngine(ctx context.Context) error {
	restorer := analyzer.NewRestorer(svc.cfg.Engine)

	snap, err := svc.redisReader.ReadSnapshot(ctx, svc.cfg.SnapshotKey)
	if err != nil {
		slog.Warn("redis snapshot read failed", slog.String("error", err.Error()))
	}
	if snap == nil && svc.snapshots != nil {
		snap = svc.readArchivedSnapshot()
	}

	svc.engine, err = restorer.RestoreFromSnap(snap)
	if err != nil {
		return err
	}
	if snap != nil {
		svc.restoredID = snap.StreamID
	}

	if svc.store != nil {
		n := restorer.BackfillFromArchive(svc.engine, svc.store, func(r *model.TrendReport) {
			svc.publish(ctx, r)
		})
		if n > 0 {
			slog.Info("warmed windows from archive", slog.Int("candles", n))
		}
	}
	svc.prom.Windows.Set(float64(len(svc.engine.Keys())))
	return nil
}

func (svc *Service) readArchivedSnapshot() *analyzer.EngineSnapshot {
	data, err := svc.snapshots.ReadLatestSnapshotJSON()
	if err != nil || data == nil {
		if err != nil {
			slog.Warn("sqlite snapshot read failed", slog.String("error", err.Error()))
		}
		return nil
	}
	var snap analyzer.EngineSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		slog.Warn("sqlite snapshot decode failed", slog.String("error", err.Error()))
		return nil
	}
	return &snap
}

// buildStreams constructs the stream names from SUBSCRIBE_TOKENS, or discovers
// existing ones when no tokens are configured.
func (svc *Service) buildStreams(ctx context.Context) []string {
	if len(svc.cfg.SubscribeTokenKeys) == 0 {
		return svc.redisReader.DiscoverTFStreams(ctx, svc.cfg.EnabledTFs, nil)
	}
	return streamNames(svc.cfg.EnabledTFs, svc.cfg.SubscribeTokenKeys)
}

func streamNames(tfs []int, tokenKeys []string) []string {
	streams := make([]string, 0, len(tfs)*len(tokenKeys))
	for _, tf := range tfs {
		for _, tk := range tokenKeys {
			streams = append(streams, "candle:"+strconv.Itoa(tf)+"s:"+tk)
		}
	}
	return streams
}

// replayStreams feeds the retained stream history through the engine: from
// the snapshot's stream ID after a restore, from the beginning on a cold
// start. Candles already in a window are rejected as stale.
func (svc *Service) replayStreams(ctx context.Context) {
	from := "0"
	if svc.restoredID != "" {
		from = svc.restoredID
	}

	ch := make(chan model.TFCandle, candleBuffer)
	go func() {
		defer close(ch)
		for _, stream := range svc.streams {
			if _, err := svc.redisReader.ReplayFromID(ctx, stream, from, ch); err != nil {
				slog.Warn("stream replay failed", slog.String("stream", stream), slog.String("error", err.Error()))
			}
		}
	}()

	n := 0
	for tfc := range ch {
		if svc.handleCandle(ctx, tfc) {
			n++
		}
	}
	slog.Info("replayed stream history", slog.String("from", from), slog.Int("candles", n))
}

// startLiveness runs periodic Redis and SQLite probes for /healthz.
func (svc *Service) startLiveness(ctx context.Context) {
	var rdb goredis.UniversalClient
	if svc.redisWriter != nil {
		rdb = svc.redisWriter.Client()
	}
	var db *sqlx.DB
	if svc.store != nil {
		db = svc.store.DB()
	}
	svc.health.StartLivenessChecker(ctx, rdb, db, 10*time.Second)
}
