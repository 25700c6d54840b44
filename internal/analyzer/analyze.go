// Package analyzer turns price windows into trend reports. Analyze is the pure
// entry point; Engine keeps a rolling window per instrument and timeframe and
// decides when a window is due for analysis.
package analyzer

import (
	"errors"
	"fmt"
	"math"

	"trendsys/internal/model"
	"trendsys/internal/trend"
)

// Series is a price window split into the columns each analysis reads:
// closes drive segmentation and the overall line, highs the peaks and lows the
// valleys. High and Low may be nil, in which case closes are used.
type Series struct {
	Close []float64 `json:"close"`
	High  []float64 `json:"high,omitempty"`
	Low   []float64 `json:"low,omitempty"`
}

// SeriesFromBars splits bars into columns.
func SeriesFromBars(bars []model.Bar) Series {
	s := Series{
		Close: make([]float64, len(bars)),
		High:  make([]float64, len(bars)),
		Low:   make([]float64, len(bars)),
	}
	for i, b := range bars {
		s.Close[i] = b.Close
		s.High[i] = b.High
		s.Low[i] = b.Low
	}
	return s
}

func (s Series) highs() []float64 {
	if s.High == nil {
		return s.Close
	}
	return s.High
}

func (s Series) lows() []float64 {
	if s.Low == nil {
		return s.Close
	}
	return s.Low
}

// checkFinite names the first NaN or infinite value in any column.
func (s Series) checkFinite() error {
	cols := []struct {
		name string
		vals []float64
	}{{"close", s.Close}, {"high", s.High}, {"low", s.Low}}
	for _, c := range cols {
		for i, v := range c.vals {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: %s at index %d is %v", trend.ErrInvalidInput, c.name, i, v)
			}
		}
	}
	return nil
}

// Options control a single analysis.
type Options struct {
	Config          trend.Config
	ExtremaPeriod   int
	ExtremaNeighbor int
}

// DefaultOptions uses the default preset with a 5-bar extremum window.
func DefaultOptions() Options {
	return Options{Config: trend.PresetConfig(trend.PresetDefault), ExtremaPeriod: 5, ExtremaNeighbor: 5}
}

// Validate checks the thresholds and extremum parameters.
func (o Options) Validate() error {
	if _, err := o.Config.Resolve(); err != nil {
		return err
	}
	if o.ExtremaPeriod <= 0 {
		return fmt.Errorf("%w: extrema period must be positive, got %d", trend.ErrInvalidConfiguration, o.ExtremaPeriod)
	}
	if o.ExtremaNeighbor < 0 {
		return fmt.Errorf("%w: extrema neighbor must not be negative, got %d", trend.ErrInvalidConfiguration, o.ExtremaNeighbor)
	}
	return nil
}

// Result is the full decomposition of one series.
type Result struct {
	Segments []trend.Segment  `json:"segments"`
	Peaks    []trend.Extremum `json:"peaks"`
	Valleys  []trend.Extremum `json:"valleys"`

	PeakTrend    *trend.TrendLine `json:"peak_trend,omitempty"`
	ValleyTrend  *trend.TrendLine `json:"valley_trend,omitempty"`
	OverallTrend *trend.TrendLine `json:"overall_trend,omitempty"`
}

// Analyze runs every trend operation over s. Summary lines that cannot be fit
// for lack of data are left nil rather than failing the whole analysis.
func Analyze(s Series, opt Options) (Result, error) {
	n := len(s.Close)
	if n == 0 {
		return Result{}, fmt.Errorf("%w: empty price series", trend.ErrInvalidInput)
	}
	if (s.High != nil && len(s.High) != n) || (s.Low != nil && len(s.Low) != n) {
		return Result{}, fmt.Errorf("%w: high/low/close lengths differ (%d/%d/%d)",
			trend.ErrInvalidInput, len(s.High), len(s.Low), n)
	}
	if err := s.checkFinite(); err != nil {
		return Result{}, err
	}
	if err := opt.Validate(); err != nil {
		return Result{}, err
	}

	var (
		res Result
		err error
	)
	if res.Segments, err = trend.BreakDownTrends(s.Close, opt.Config); err != nil {
		return Result{}, err
	}
	if res.Peaks, err = trend.Peaks(s.highs(), opt.ExtremaPeriod, opt.ExtremaNeighbor); err != nil {
		return Result{}, err
	}
	if res.Valleys, err = trend.Valleys(s.lows(), opt.ExtremaPeriod, opt.ExtremaNeighbor); err != nil {
		return Result{}, err
	}

	if res.PeakTrend, err = optionalLine(trend.PeakTrend(s.highs(), opt.ExtremaPeriod)); err != nil {
		return Result{}, err
	}
	if res.ValleyTrend, err = optionalLine(trend.ValleyTrend(s.lows(), opt.ExtremaPeriod)); err != nil {
		return Result{}, err
	}
	if res.OverallTrend, err = optionalLine(trend.OverallTrend(s.Close)); err != nil {
		return Result{}, err
	}
	return res, nil
}

func optionalLine(line trend.TrendLine, err error) (*trend.TrendLine, error) {
	switch {
	case err == nil:
		return &line, nil
	case errors.Is(err, trend.ErrInsufficientData):
		return nil, nil
	default:
		return nil, err
	}
}
