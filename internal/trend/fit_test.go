package trend

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate_HandCalculated(t *testing.T) {
	// residuals -0.3, 0.9, -0.9, 0.3: SSE 1.8, SST 5
	pts := []Point{{0, 1}, {1, 3}, {2, 2}, {3, 4}}
	line, err := Fit(pts)
	require.NoError(t, err)

	q := Evaluate(line, pts)
	assert.Equal(t, 4, q.N)
	assert.True(t, q.Reliable)
	assert.False(t, q.Exact)
	assert.InDelta(t, 0.64, q.RSquared, 1e-9)
	assert.InDelta(t, 0.46, q.AdjustedRSquared, 1e-9)
	assert.InDelta(t, math.Sqrt(0.45), q.RMSE, 1e-9)
	assert.InDelta(t, 3.4, q.DurbinWatson, 1e-9)
}

func TestEvaluate_ExactFit(t *testing.T) {
	pts := seriesPoints([]float64{10, 12, 14, 16, 18}, 0, 4)
	line, err := Fit(pts)
	require.NoError(t, err)

	q := Evaluate(line, pts)
	assert.True(t, q.Exact)
	assert.Equal(t, 1.0, q.RSquared)
	assert.Equal(t, 1.0, q.AdjustedRSquared)
	assert.Equal(t, 2.0, q.DurbinWatson)
	assert.Less(t, q.RMSE, 1e-9)
}

func TestEvaluate_FlatSeriesIsExact(t *testing.T) {
	pts := seriesPoints([]float64{5, 5, 5, 5}, 0, 3)
	line, err := Fit(pts)
	require.NoError(t, err)

	q := Evaluate(line, pts)
	assert.True(t, q.Exact)
	assert.Equal(t, 1.0, q.AdjustedRSquared)
}

func TestEvaluate_TwoPointsUnreliable(t *testing.T) {
	pts := []Point{{0, 1}, {1, 4}}
	line, err := Fit(pts)
	require.NoError(t, err)

	q := Evaluate(line, pts)
	assert.False(t, q.Reliable)
	assert.Equal(t, 0.0, q.AdjustedRSquared)
}

func TestEvaluate_Empty(t *testing.T) {
	q := Evaluate(TrendLine{}, nil)
	assert.Equal(t, 0, q.N)
	assert.False(t, q.Reliable)
}

func TestEvaluate_NoNaN(t *testing.T) {
	prices := []float64{1, 1, 1, 4, 1, 1, 1}
	pts := seriesPoints(prices, 0, len(prices)-1)
	line, err := Fit(pts)
	require.NoError(t, err)

	q := Evaluate(line, pts)
	for _, v := range []float64{q.RSquared, q.AdjustedRSquared, q.RMSE, q.DurbinWatson} {
		assert.False(t, math.IsNaN(v))
		assert.False(t, math.IsInf(v, 0))
	}
}
