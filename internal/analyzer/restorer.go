package analyzer

import (
	"errors"
	"log/slog"

	"trendsys/internal/model"
)

// Restorer rebuilds the engine on startup. It follows a priority chain:
// Redis snapshot → SQLite snapshot → cold start, then warms windows from the
// candle archive.
type Restorer struct {
	cfg EngineConfig
}

// NewRestorer creates a Restorer for the given engine config.
func NewRestorer(cfg EngineConfig) *Restorer {
	return &Restorer{cfg: cfg}
}

// RestoreFromSnap restores an engine from snap, or cold starts when snap is
// nil or unusable.
func (r *Restorer) RestoreFromSnap(snap *EngineSnapshot) (*Engine, error) {
	if snap == nil {
		slog.Info("no snapshot found, cold starting trend engine")
		return NewEngine(r.cfg)
	}

	slog.Info("restoring trend engine from snapshot",
		slog.Int("version", snap.Version),
		slog.String("stream_id", snap.StreamID),
		slog.Int("windows", len(snap.Windows)))

	if snap.Version != snapshotVersion {
		slog.Warn("snapshot version mismatch, cold starting",
			slog.Int("got", snap.Version), slog.Int("want", snapshotVersion))
		return NewEngine(r.cfg)
	}
	return RestoreEngine(r.cfg, snap)
}

// Replay feeds candles into the engine in order and hands every report to
// onReport. Stale candles are skipped. Returns the number of candles accepted.
func (r *Restorer) Replay(e *Engine, candles []model.TFCandle, onReport func(*model.TrendReport)) int {
	fed := 0
	for _, tfc := range candles {
		if tfc.Forming {
			continue
		}
		rep, err := e.Process(tfc)
		if errors.Is(err, ErrStaleCandle) {
			continue
		}
		if err != nil {
			slog.Warn("replay analysis failed", slog.String("series", tfc.SeriesKey()), slog.Any("error", err))
			continue
		}
		fed++
		if rep != nil && onReport != nil {
			onReport(rep)
		}
	}
	return fed
}

// BackfillFromArchive reads archived TF candles and warms every window with
// up to WindowSize of its newest bars. Call it after restore and before the
// live consumer starts.
func (r *Restorer) BackfillFromArchive(e *Engine, reader model.CandleReader, onReport func(*model.TrendReport)) int {
	if reader == nil {
		return 0
	}

	total := 0
	for _, tf := range r.cfg.TFs {
		candles, err := reader.ReadAllTFCandles(tf, 0)
		if err != nil {
			slog.Warn("archive read failed", slog.Int("tf", tf), slog.Any("error", err))
			continue
		}
		fed := r.Replay(e, newestPerSeries(candles, r.cfg.WindowSize), onReport)
		if fed > 0 {
			slog.Info("backfilled candles from archive", slog.Int("tf", tf), slog.Int("candles", fed))
		}
		total += fed
	}
	return total
}

// newestPerSeries keeps the last n candles of each series, preserving order.
func newestPerSeries(candles []model.TFCandle, n int) []model.TFCandle {
	counts := make(map[string]int)
	for i := range candles {
		counts[candles[i].SeriesKey()]++
	}
	out := make([]model.TFCandle, 0, len(candles))
	seen := make(map[string]int)
	for _, c := range candles {
		k := c.SeriesKey()
		seen[k]++
		if counts[k]-seen[k] < n {
			out = append(out, c)
		}
	}
	return out
}
