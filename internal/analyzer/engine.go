package analyzer

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"trendsys/internal/model"
	"trendsys/internal/ringbuf"
	"trendsys/internal/trend"
)

// ErrStaleCandle is returned by Process for a candle that is not newer than
// the window's last bar (replays and redeliveries).
var ErrStaleCandle = errors.New("analyzer: candle not newer than window")

// EngineConfig sizes the rolling windows and sets the analysis cadence.
type EngineConfig struct {
	TFs          []int // timeframes in seconds; candles on other TFs are ignored
	WindowSize   int   // bars kept per window
	MinPoints    int   // bars required before the first report
	AnalyzeEvery int   // closed candles between reports
	Options      Options
}

// Validate checks the sizing and the analysis options.
func (c EngineConfig) Validate() error {
	if len(c.TFs) == 0 {
		return fmt.Errorf("%w: no timeframes enabled", trend.ErrInvalidConfiguration)
	}
	for _, tf := range c.TFs {
		if tf <= 0 {
			return fmt.Errorf("%w: invalid TF=%d", trend.ErrInvalidConfiguration, tf)
		}
	}
	if c.WindowSize < 1 || c.MinPoints < 1 || c.AnalyzeEvery < 1 {
		return fmt.Errorf("%w: window size, min points and analyze-every must be positive", trend.ErrInvalidConfiguration)
	}
	if c.MinPoints > c.WindowSize {
		return fmt.Errorf("%w: min points %d exceeds window size %d", trend.ErrInvalidConfiguration, c.MinPoints, c.WindowSize)
	}
	return c.Options.Validate()
}

// window is the rolling state of one exchange:token:tf series.
type window struct {
	exchange  string
	token     string
	tf        int
	bars      *ringbuf.Ring
	sinceLast int
	latest    *model.TrendReport
}

// Engine keeps rolling windows and produces a report every AnalyzeEvery closed
// candles once MinPoints bars exist. It is safe for concurrent use: the stream
// consumer writes while HTTP handlers read.
type Engine struct {
	mu      sync.RWMutex
	cfg     EngineConfig
	tfs     map[int]bool
	windows map[string]*window
}

// NewEngine creates an engine with empty windows.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	tfs := make(map[int]bool, len(cfg.TFs))
	for _, tf := range cfg.TFs {
		tfs[tf] = true
	}
	return &Engine{
		cfg:     cfg,
		tfs:     tfs,
		windows: make(map[string]*window, 64),
	}, nil
}

// Config returns the engine configuration in effect.
func (e *Engine) Config() EngineConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg
}

// Process appends a closed candle to its window and returns a report when the
// window is due, or nil otherwise. Forming candles and unconfigured TFs are
// ignored.
func (e *Engine) Process(tfc model.TFCandle) (*model.TrendReport, error) {
	if tfc.Forming {
		return nil, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.tfs[tfc.TF] {
		return nil, nil
	}

	key := tfc.SeriesKey()
	w, exists := e.windows[key]
	if !exists {
		w = &window{
			exchange: tfc.Exchange,
			token:    tfc.Token,
			tf:       tfc.TF,
			bars:     ringbuf.New(e.cfg.WindowSize),
		}
		e.windows[key] = w
	}

	if last, ok := w.bars.Last(); ok && !tfc.TS.After(last.TS) {
		return nil, ErrStaleCandle
	}
	w.bars.Push(tfc.Bar())
	w.sinceLast++

	if w.bars.Len() < e.cfg.MinPoints || w.sinceLast < e.cfg.AnalyzeEvery {
		return nil, nil
	}
	return e.analyzeLocked(w)
}

// AnalyzeNow analyzes a window immediately, regardless of cadence.
func (e *Engine) AnalyzeNow(exchange, token string, tf int) (*model.TrendReport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	w, ok := e.windows[model.SeriesKey(exchange, token, tf)]
	if !ok || w.bars.Len() == 0 {
		return nil, fmt.Errorf("%w: no bars for %s", trend.ErrInsufficientData, model.SeriesKey(exchange, token, tf))
	}
	return e.analyzeLocked(w)
}

func (e *Engine) analyzeLocked(w *window) (*model.TrendReport, error) {
	bars := w.bars.Slice()
	res, err := Analyze(SeriesFromBars(bars), e.cfg.Options)
	if err != nil {
		return nil, fmt.Errorf("analyze %s: %w", model.SeriesKey(w.exchange, w.token, w.tf), err)
	}
	w.sinceLast = 0

	r := &model.TrendReport{
		ID:           uuid.NewString(),
		Exchange:     w.exchange,
		Token:        w.token,
		TF:           w.tf,
		TS:           bars[len(bars)-1].TS,
		Points:       len(bars),
		Config:       e.cfg.Options.Config.String(),
		Segments:     res.Segments,
		Peaks:        res.Peaks,
		Valleys:      res.Valleys,
		PeakTrend:    res.PeakTrend,
		ValleyTrend:  res.ValleyTrend,
		OverallTrend: res.OverallTrend,
	}
	w.latest = r
	return r, nil
}

// Latest returns the most recent report for a window.
func (e *Engine) Latest(exchange, token string, tf int) (*model.TrendReport, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	w, ok := e.windows[model.SeriesKey(exchange, token, tf)]
	if !ok || w.latest == nil {
		return nil, false
	}
	return w.latest, true
}

// Bars returns a copy of a window's bars, oldest first.
func (e *Engine) Bars(exchange, token string, tf int) []model.Bar {
	e.mu.RLock()
	defer e.mu.RUnlock()
	w, ok := e.windows[model.SeriesKey(exchange, token, tf)]
	if !ok {
		return nil
	}
	return w.bars.Slice()
}

// Keys lists every window key, sorted.
func (e *Engine) Keys() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	keys := make([]string, 0, len(e.windows))
	for k := range e.windows {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Reload swaps the analysis options. Windows and their bars are preserved, so
// the next due report uses the new thresholds without a warm-up.
func (e *Engine) Reload(opts Options) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	prev := e.cfg.Options.Config.String()
	e.cfg.Options = opts
	n := len(e.windows)
	e.mu.Unlock()

	slog.Info("analysis options reloaded",
		slog.String("from", prev),
		slog.String("to", opts.Config.String()),
		slog.Int("extrema_period", opts.ExtremaPeriod),
		slog.Int("extrema_neighbor", opts.ExtremaNeighbor),
		slog.Int("windows", n))
	return nil
}
