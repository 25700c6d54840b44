package trendengine

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"trendsys/internal/analyzer"
	"trendsys/internal/logger"
	"trendsys/internal/model"
	"trendsys/internal/trend"
)

// startConsumer starts the XREADGROUP consumer in a goroutine.
func (svc *Service) startConsumer(ctx context.Context) {
	if len(svc.streams) == 0 {
		return
	}
	go func() {
		if err := svc.redisReader.ConsumeTFCandles(ctx, svc.streams, svc.tfCandleCh); err != nil && ctx.Err() == nil {
			slog.Error("stream consumer stopped", slog.String("error", err.Error()))
		}
	}()
}

// startPELReclaimer starts periodic reclamation of stale PEL messages.
func (svc *Service) startPELReclaimer(ctx context.Context) {
	if len(svc.streams) == 0 {
		return
	}
	go svc.redisReader.StartPELReclaimer(ctx, svc.streams,
		time.Duration(svc.cfg.PELIntervalS)*time.Second,
		svc.cfg.PELMinIdleMs, svc.tfCandleCh,
		func(count int) {
			svc.prom.PELMessagesReclaimed.Add(float64(count))
			slog.Info("reclaimed stale PEL messages", slog.Int("count", count))
		})
	slog.Info("PEL reclaimer started",
		slog.Int("interval_s", svc.cfg.PELIntervalS),
		slog.Int64("min_idle_ms", svc.cfg.PELMinIdleMs))
}

// processLoop feeds consumed candles to the engine until ctx is cancelled.
func (svc *Service) processLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case tfc, ok := <-svc.tfCandleCh:
			if !ok {
				return
			}
			svc.handleCandle(ctx, tfc)
		}
	}
}

// handleCandle runs one closed candle through the engine, archives it and
// publishes any report it produced. Reports whether the candle was accepted.
func (svc *Service) handleCandle(ctx context.Context, tfc model.TFCandle) bool {
	if tfc.Forming {
		return false
	}

	start := time.Now()
	rep, err := svc.engine.Process(tfc)
	if errors.Is(err, analyzer.ErrStaleCandle) {
		svc.prom.StaleCandles.Inc()
		return false
	}
	if !svc.tfEnabled(tfc.TF) {
		return false
	}

	svc.health.SetLastCandleTime(time.Now())
	svc.prom.CandlesTotal.WithLabelValues(strconv.Itoa(tfc.TF)).Inc()
	svc.prom.Windows.Set(float64(len(svc.engine.Keys())))
	svc.archiveCandle(tfc)

	if err != nil {
		svc.prom.ErrorsTotal.WithLabelValues(errorKind(err)).Inc()
		slog.Warn("analysis failed", slog.String("series", tfc.SeriesKey()), slog.String("error", err.Error()))
		return true
	}
	if rep != nil {
		svc.prom.AnalysisDur.Observe(time.Since(start).Seconds())
		svc.publish(ctx, rep)
	}
	return true
}

func (svc *Service) tfEnabled(tf int) bool {
	for _, t := range svc.cfg.EnabledTFs {
		if t == tf {
			return true
		}
	}
	return false
}

// archiveCandle queues a candle for the SQLite archive without blocking the
// hot path; a full queue drops the candle.
func (svc *Service) archiveCandle(tfc model.TFCandle) {
	if svc.store == nil {
		return
	}
	select {
	case svc.archiveCh <- tfc:
	default:
		svc.prom.ErrorsTotal.WithLabelValues("archive_queue_full").Inc()
	}
}

// publish fans a report out to Redis, the SQLite archive and websocket clients.
// The report ID is the trace ID of every log line about it.
func (svc *Service) publish(ctx context.Context, rep *model.TrendReport) {
	ctx = logger.WithTraceID(ctx, rep.ID)

	svc.prom.ReportsTotal.WithLabelValues(strconv.Itoa(rep.TF), rep.Config).Inc()
	svc.prom.SegmentsPerRun.Observe(float64(len(rep.Segments)))
	svc.health.SetLastReportTime(time.Now())

	if svc.writer != nil {
		if err := svc.writer.WriteReport(ctx, rep); err != nil {
			svc.prom.ErrorsTotal.WithLabelValues("redis_write").Inc()
			slog.Warn("report publish failed",
				append(logger.LogWithTrace(ctx), slog.String("error", err.Error()))...)
		}
	}
	if svc.archive != nil {
		if err := svc.archive.SaveReport(rep); err != nil {
			svc.prom.ErrorsTotal.WithLabelValues("sqlite_write").Inc()
			slog.Warn("report archive failed",
				append(logger.LogWithTrace(ctx), slog.String("error", err.Error()))...)
		}
	}
	svc.hub.Broadcast(rep.PubSubChannel(), rep.JSON())
	svc.checkReversal(ctx, rep)

	attrs := append(logger.LogWithTrace(ctx),
		slog.String("series", rep.SeriesKey()),
		slog.Int("points", rep.Points),
		slog.Int("segments", len(rep.Segments)))
	if cur, ok := rep.CurrentSegment(); ok {
		attrs = append(attrs, slog.String("direction", string(cur.Direction())), slog.Float64("slope", cur.Slope))
	}
	slog.Debug("trend report published", attrs...)
}

// checkReversal raises an alert when rep flips its series' current trend.
// Delivery runs in the background so a slow endpoint never stalls the loop.
func (svc *Service) checkReversal(ctx context.Context, rep *model.TrendReport) {
	alert, ok := svc.reversals.Observe(rep)
	if !ok {
		return
	}
	svc.prom.AlertsTotal.WithLabelValues(string(alert.Level)).Inc()
	go func() {
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := svc.notifier.Send(sendCtx, alert); err != nil {
			svc.prom.ErrorsTotal.WithLabelValues("alert_send").Inc()
			slog.Warn("alert delivery failed",
				append(logger.LogWithTrace(ctx), slog.String("error", err.Error()))...)
		}
	}()
}

// errorKind labels an error for the errors_total metric.
func errorKind(err error) string {
	switch {
	case errors.Is(err, trend.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, trend.ErrInsufficientData):
		return "insufficient_data"
	case errors.Is(err, trend.ErrInvalidConfiguration):
		return "invalid_configuration"
	case errors.Is(err, trend.ErrDegenerateFit):
		return "degenerate_fit"
	default:
		return "internal"
	}
}
