// Package trend locates peaks and valleys in a price series, fits trend lines
// and decomposes a series into contiguous linear trend segments.
//
// Every function is pure: inputs are never modified and nothing is shared
// between calls, so concurrent use on independent series needs no locking.
package trend

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// Point is a regression input. Indices need not be contiguous.
type Point struct {
	Index int     `json:"index"`
	Value float64 `json:"value"`
}

// TrendLine describes value ≈ Slope*index + Intercept.
type TrendLine struct {
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`
}

// At evaluates the line at index.
func (l TrendLine) At(index int) float64 {
	return l.Slope*float64(index) + l.Intercept
}

// Fit computes the ordinary-least-squares line through points.
// A single point yields a horizontal line through it.
func Fit(points []Point) (TrendLine, error) {
	switch len(points) {
	case 0:
		return TrendLine{}, fmt.Errorf("%w: cannot fit a line to zero points", ErrInvalidInput)
	case 1:
		if !finite(points[0].Value) {
			return TrendLine{}, fmt.Errorf("%w: point 0 (index %d) has value %v", ErrInvalidInput, points[0].Index, points[0].Value)
		}
		return TrendLine{Slope: 0, Intercept: points[0].Value}, nil
	}

	xs := make([]float64, len(points))
	ys := make([]float64, len(points))
	distinct := false
	for i, p := range points {
		if !finite(p.Value) {
			return TrendLine{}, fmt.Errorf("%w: point %d (index %d) has value %v", ErrInvalidInput, i, p.Index, p.Value)
		}
		xs[i] = float64(p.Index)
		ys[i] = p.Value
		if p.Index != points[0].Index {
			distinct = true
		}
	}
	if !distinct {
		return TrendLine{}, fmt.Errorf("%w: all %d points share index %d", ErrDegenerateFit, len(points), points[0].Index)
	}

	// gonum returns (alpha, beta) for y = alpha + beta*x.
	intercept, slope := stat.LinearRegression(xs, ys, nil, false)
	return TrendLine{Slope: slope, Intercept: intercept}, nil
}

// seriesPoints converts prices[from..to] (inclusive) into regression points.
func seriesPoints(prices []float64, from, to int) []Point {
	pts := make([]Point, 0, to-from+1)
	for i := from; i <= to; i++ {
		pts = append(pts, Point{Index: i, Value: prices[i]})
	}
	return pts
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// checkFinite rejects NaN and infinite prices.
func checkFinite(prices []float64) error {
	for i, v := range prices {
		if !finite(v) {
			return fmt.Errorf("%w: price at index %d is %v", ErrInvalidInput, i, v)
		}
	}
	return nil
}
