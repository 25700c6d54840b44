package trend

import "fmt"

// minTestablePoints is the smallest segment whose fit can be classified;
// adjusted R² is undefined below it.
const minTestablePoints = 3

// minResidualPoints is the segment length from which the RMSE and
// Durbin-Watson checks apply. Shorter fits are judged on adjusted R² alone.
const minResidualPoints = 20

// Segment is one linear regime of a decomposed series, covering prices
// Start..End inclusive.
type Segment struct {
	Start     int     `json:"start_index"`
	End       int     `json:"end_index"`
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`

	AdjustedRSquared float64 `json:"adjusted_r_squared"`
	RMSE             float64 `json:"rmse"`
	DurbinWatson     float64 `json:"durbin_watson"`

	// Reliable is false for segments of one or two points, where
	// AdjustedRSquared is undefined and reported as 0.
	Reliable bool `json:"reliable"`
}

// Len returns the number of prices covered.
func (s Segment) Len() int { return s.End - s.Start + 1 }

// Line returns the segment's trend line.
func (s Segment) Line() TrendLine { return TrendLine{Slope: s.Slope, Intercept: s.Intercept} }

// Direction classifies the slope.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
	DirectionFlat Direction = "flat"
)

// Direction reports whether the segment rises, falls or is flat. The slope is
// compared against the segment's own RMSE spread over its length so rounding
// noise on a flat run is not read as a trend.
func (s Segment) Direction() Direction {
	floor := exactFitTolerance
	if s.Len() > 1 {
		floor += s.RMSE / float64(s.Len()-1)
	}
	switch {
	case s.Slope > floor:
		return DirectionUp
	case s.Slope < -floor:
		return DirectionDown
	default:
		return DirectionFlat
	}
}

// verdict is the per-point classification of a growing segment.
type verdict int

const (
	conforming verdict = iota
	softViolation
	hardViolation
)

func (v verdict) String() string {
	switch v {
	case conforming:
		return "conforming"
	case softViolation:
		return "soft"
	case hardViolation:
		return "hard"
	default:
		return "unknown"
	}
}

// reference is the RMSE of the segment at its last conforming point.
type reference struct {
	rmse float64
	ok   bool
}

// classify decides whether a refit segment still holds. tol is the absolute
// RMSE floor for the segment's values. RMSE and Durbin-Watson are only
// consulted once the fit covers minResidualPoints.
func classify(q FitQuality, ref reference, tol float64, t Thresholds) verdict {
	if !q.Reliable {
		return hardViolation
	}
	armed := q.N >= minResidualPoints
	rmseAbove := func(mult float64) bool {
		return armed && ref.ok && q.RMSE > ref.rmse*mult+tol
	}
	outside := func(lo, hi float64) bool {
		return armed && (q.DurbinWatson < lo || q.DurbinWatson > hi)
	}

	if q.AdjustedRSquared < t.HardAdjRSquaredMin ||
		rmseAbove(t.HardRMSEMultiplier) ||
		outside(t.HardDurbinWatsonMin, t.HardDurbinWatsonMax) {
		return hardViolation
	}
	if q.AdjustedRSquared < t.SoftAdjRSquaredMin ||
		rmseAbove(t.SoftRMSEMultiplier) ||
		outside(t.SoftDurbinWatsonMin, t.SoftDurbinWatsonMax) {
		return softViolation
	}
	return conforming
}

// BreakDownTrends decomposes prices into contiguous linear segments that
// together cover every index exactly once.
//
// Points are appended to the current segment one at a time and the segment is
// refit after each. A hard violation closes the segment just before the
// offending point, or before the outlier run in progress. Soft violations are
// tolerated while at most MaxOutliers of them occur in a row; one more closes
// the segment before the run began. Points after a break are re-examined as
// the start of the next segment.
//
// The reference RMSE follows the last conforming fit, including fits too
// short for the RMSE check to apply.
func BreakDownTrends(prices []float64, cfg Config) ([]Segment, error) {
	if len(prices) == 0 {
		return nil, fmt.Errorf("%w: empty price series", ErrInvalidInput)
	}
	if err := checkFinite(prices); err != nil {
		return nil, err
	}
	t, err := cfg.Resolve()
	if err != nil {
		return nil, err
	}

	var (
		segments []Segment
		start    int
		outliers int
		runStart int
		ref      reference
	)
	closeAt := func(end int) {
		segments = append(segments, fitSegment(prices, start, end))
		start = end + 1
		outliers = 0
		ref = reference{}
	}

	for i := 0; i < len(prices); {
		if i-start+1 < minTestablePoints {
			i++
			continue
		}

		pts := seriesPoints(prices, start, i)
		line, err := Fit(pts)
		if err != nil {
			return nil, err
		}
		q := Evaluate(line, pts)

		switch classify(q, ref, fitTolerance(pts), t) {
		case conforming:
			outliers = 0
			ref = reference{rmse: q.RMSE, ok: true}
			i++
		case softViolation:
			if outliers == 0 {
				runStart = i
			}
			outliers++
			if outliers <= t.MaxOutliers {
				i++
				continue
			}
			closeAt(runStart - 1)
			i = start
		case hardViolation:
			breakAt := i
			if outliers > 0 {
				breakAt = runStart
			}
			closeAt(breakAt - 1)
			i = start
		}
	}
	closeAt(len(prices) - 1)
	return segments, nil
}

// fitSegment fits prices[start..end]; one-point segments get a horizontal line.
func fitSegment(prices []float64, start, end int) Segment {
	pts := seriesPoints(prices, start, end)
	// indices are distinct and non-empty, so Fit cannot fail here
	line, _ := Fit(pts)
	q := Evaluate(line, pts)
	return Segment{
		Start:            start,
		End:              end,
		Slope:            line.Slope,
		Intercept:        line.Intercept,
		AdjustedRSquared: q.AdjustedRSquared,
		RMSE:             q.RMSE,
		DurbinWatson:     q.DurbinWatson,
		Reliable:         q.Reliable,
	}
}
