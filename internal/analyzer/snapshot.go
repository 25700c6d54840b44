package analyzer

import (
	"log/slog"
	"sort"

	"trendsys/internal/model"
	"trendsys/internal/ringbuf"
)

// snapshotVersion is bumped on incompatible schema changes.
const snapshotVersion = 1

// WindowSnapshot holds the bars of one window.
type WindowSnapshot struct {
	Exchange  string      `json:"exchange"`
	Token     string      `json:"token"`
	TF        int         `json:"tf"`
	SinceLast int         `json:"since_last"`
	Bars      []model.Bar `json:"bars"`
}

// EngineSnapshot holds the full state of the engine.
type EngineSnapshot struct {
	StreamID string           `json:"stream_id"` // Redis Stream ID at checkpoint time
	Version  int              `json:"version"`
	Windows  []WindowSnapshot `json:"windows"`
}

// SnapshotEngine captures every window of e, ordered by key.
func SnapshotEngine(e *Engine, streamID string) *EngineSnapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	snap := &EngineSnapshot{
		StreamID: streamID,
		Version:  snapshotVersion,
		Windows:  make([]WindowSnapshot, 0, len(e.windows)),
	}
	for _, w := range e.windows {
		snap.Windows = append(snap.Windows, WindowSnapshot{
			Exchange:  w.exchange,
			Token:     w.token,
			TF:        w.tf,
			SinceLast: w.sinceLast,
			Bars:      w.bars.Slice(),
		})
	}
	sort.Slice(snap.Windows, func(i, j int) bool {
		a, b := snap.Windows[i], snap.Windows[j]
		return model.SeriesKey(a.Exchange, a.Token, a.TF) < model.SeriesKey(b.Exchange, b.Token, b.TF)
	})
	return snap
}

// RestoreEngine rebuilds an engine from a snapshot. It is tolerant of config
// changes: windows on TFs no longer enabled are skipped, and a smaller window
// size keeps only the newest bars.
func RestoreEngine(cfg EngineConfig, snap *EngineSnapshot) (*Engine, error) {
	e, err := NewEngine(cfg)
	if err != nil {
		return nil, err
	}

	skipped := 0
	for _, ws := range snap.Windows {
		if !e.tfs[ws.TF] {
			skipped++
			continue
		}
		ring := ringbuf.New(cfg.WindowSize)
		for _, b := range ws.Bars {
			ring.Push(b)
		}
		e.windows[model.SeriesKey(ws.Exchange, ws.Token, ws.TF)] = &window{
			exchange:  ws.Exchange,
			token:     ws.Token,
			tf:        ws.TF,
			bars:      ring,
			sinceLast: ws.SinceLast,
		}
	}
	if skipped > 0 {
		slog.Warn("snapshot windows skipped for disabled timeframes", slog.Int("count", skipped))
	}
	return e, nil
}
