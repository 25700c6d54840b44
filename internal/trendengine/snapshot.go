package trendengine

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"trendsys/internal/analyzer"
)

// snapshotLoop periodically saves engine state to Redis and SQLite.
func (svc *Service) snapshotLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(svc.cfg.SnapshotIntervalS) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			svc.saveSnapshot(ctx)
			if svc.store != nil && svc.cfg.ReportsKeep > 0 {
				if n, err := svc.store.PruneReports(svc.cfg.ReportsKeep); err != nil {
					slog.Warn("report prune failed", slog.String("error", err.Error()))
				} else if n > 0 {
					slog.Debug("pruned archived reports", slog.Int64("count", n))
				}
			}
		}
	}
}

// saveSnapshot checkpoints the engine to Redis and SQLite.
func (svc *Service) saveSnapshot(ctx context.Context) *analyzer.EngineSnapshot {
	if svc.engine == nil {
		return nil
	}
	snap := analyzer.SnapshotEngine(svc.engine, streamIDAt(time.Now()))

	if svc.redisReader != nil {
		if err := svc.redisReader.WriteSnapshot(ctx, svc.cfg.SnapshotKey, snap); err != nil {
			svc.prom.ErrorsTotal.WithLabelValues("snapshot_write").Inc()
			slog.Warn("redis snapshot write failed", slog.String("error", err.Error()))
		}
	}
	if svc.snapshots != nil {
		data, err := json.Marshal(snap)
		if err == nil {
			err = svc.snapshots.SaveSnapshotJSON(data)
		}
		if err != nil {
			svc.prom.ErrorsTotal.WithLabelValues("snapshot_write").Inc()
			slog.Warn("sqlite snapshot write failed", slog.String("error", err.Error()))
		}
	}

	slog.Info("checkpoint saved", slog.Int("windows", len(snap.Windows)), slog.String("stream_id", snap.StreamID))
	return snap
}

// streamIDAt returns a time-based stream ID marker: entries added after t
// have larger IDs.
func streamIDAt(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10) + "-0"
}
