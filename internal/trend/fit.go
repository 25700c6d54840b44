package trend

import "math"

// exactFitTolerance scales the RMSE floor below which a fit counts as exact.
const exactFitTolerance = 1e-9

// FitQuality holds the goodness-of-fit statistics of a line over its points.
type FitQuality struct {
	N                int     `json:"n"`
	RSquared         float64 `json:"r_squared"`
	AdjustedRSquared float64 `json:"adjusted_r_squared"`
	RMSE             float64 `json:"rmse"`
	DurbinWatson     float64 `json:"durbin_watson"`

	// Reliable is false when there are too few points (n ≤ 2) for adjusted R²
	// to be defined. AdjustedRSquared is 0 in that case.
	Reliable bool `json:"reliable"`

	// Exact is set when the residuals are indistinguishable from rounding noise.
	Exact bool `json:"exact"`
}

// Evaluate computes adjusted R², RMSE and the Durbin-Watson statistic of line
// over points. Points must be in index order for Durbin-Watson to be meaningful.
func Evaluate(line TrendLine, points []Point) FitQuality {
	q := FitQuality{N: len(points)}
	if len(points) == 0 {
		return q
	}

	n := float64(len(points))
	var mean float64
	for _, p := range points {
		mean += p.Value
	}
	mean /= n

	var sse, sst, dwNum, prev float64
	for i, p := range points {
		e := p.Value - line.At(p.Index)
		sse += e * e
		d := p.Value - mean
		sst += d * d
		if i > 0 {
			de := e - prev
			dwNum += de * de
		}
		prev = e
	}

	q.RMSE = math.Sqrt(sse / n)
	q.Exact = q.RMSE <= fitTolerance(points)

	switch {
	case q.Exact:
		q.RSquared = 1
		q.DurbinWatson = 2
	case sst == 0:
		// flat data with a non-flat residual pattern explains nothing
		q.RSquared = 0
		q.DurbinWatson = dwNum / sse
	default:
		q.RSquared = 1 - sse/sst
		q.DurbinWatson = dwNum / sse
	}

	// one predictor
	dof := n - 2
	if dof > 0 {
		q.AdjustedRSquared = 1 - (1-q.RSquared)*(n-1)/dof
		q.Reliable = true
	}
	return q
}

// fitTolerance is the absolute RMSE floor for a set of points.
func fitTolerance(points []Point) float64 {
	scale := 1.0
	for _, p := range points {
		if a := math.Abs(p.Value); a > scale {
			scale = a
		}
	}
	return exactFitTolerance * scale
}
