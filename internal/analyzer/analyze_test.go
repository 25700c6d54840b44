package analyzer

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trendsys/internal/model"
	"trendsys/internal/trend"
)

func TestAnalyze_LinearCloses(t *testing.T) {
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 100 + 2*float64(i)
	}
	res, err := Analyze(Series{Close: closes}, DefaultOptions())
	require.NoError(t, err)

	require.Len(t, res.Segments, 1)
	assert.InDelta(t, 2.0, res.Segments[0].Slope, 1e-9)
	require.NotNil(t, res.OverallTrend)
	assert.InDelta(t, 100.0, res.OverallTrend.Intercept, 1e-9)
	assert.Empty(t, res.Peaks)
	assert.Empty(t, res.Valleys)
	assert.Nil(t, res.PeakTrend, "no peaks on a monotonic series")
	assert.Nil(t, res.ValleyTrend)
}

func TestAnalyze_UsesHighsAndLows(t *testing.T) {
	// closes are flat; highs carry peaks at 1 and 4, lows valleys at 2 and 5
	s := Series{
		Close: []float64{10, 10, 10, 10, 10, 10, 10},
		High:  []float64{11, 15, 11, 11, 16, 11, 11},
		Low:   []float64{9, 9, 5, 9, 9, 4, 9},
	}
	opts := Options{Config: trend.PresetConfig(trend.PresetDefault), ExtremaPeriod: 1, ExtremaNeighbor: 1}
	res, err := Analyze(s, opts)
	require.NoError(t, err)

	assert.Equal(t, []trend.Extremum{{Value: 15, Index: 1}, {Value: 16, Index: 4}}, res.Peaks)
	assert.Equal(t, []trend.Extremum{{Value: 5, Index: 2}, {Value: 4, Index: 5}}, res.Valleys)
	require.NotNil(t, res.PeakTrend)
	assert.InDelta(t, 1.0/3.0, res.PeakTrend.Slope, 1e-9)
	require.NotNil(t, res.ValleyTrend)
	assert.InDelta(t, -1.0/3.0, res.ValleyTrend.Slope, 1e-9)
	require.NotNil(t, res.OverallTrend)
	assert.InDelta(t, 0.0, res.OverallTrend.Slope, 1e-12)
}

func TestAnalyze_SinglePoint(t *testing.T) {
	res, err := Analyze(Series{Close: []float64{42}}, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, res.Segments, 1)
	assert.Nil(t, res.OverallTrend, "one price cannot define an overall line")
}

func TestAnalyze_Errors(t *testing.T) {
	_, err := Analyze(Series{}, DefaultOptions())
	assert.ErrorIs(t, err, trend.ErrInvalidInput)

	_, err = Analyze(Series{Close: []float64{1, 2, 3}, High: []float64{1, 2}}, DefaultOptions())
	assert.ErrorIs(t, err, trend.ErrInvalidInput)

	_, err = Analyze(Series{Close: []float64{1, 2, 3}, Low: []float64{1, 2, 3, 4}}, DefaultOptions())
	assert.ErrorIs(t, err, trend.ErrInvalidInput)

	_, err = Analyze(Series{Close: []float64{1, 2, 3}, High: []float64{1, math.Inf(1), 3}}, DefaultOptions())
	assert.ErrorIs(t, err, trend.ErrInvalidInput)
	assert.Contains(t, err.Error(), "high at index 1")

	_, err = Analyze(Series{Close: []float64{1, 2, 3}, Low: []float64{math.NaN(), 2, 3}}, DefaultOptions())
	assert.ErrorIs(t, err, trend.ErrInvalidInput)
	assert.Contains(t, err.Error(), "low at index 0")

	_, err = Analyze(Series{Close: []float64{1, 2, math.NaN()}}, DefaultOptions())
	assert.ErrorIs(t, err, trend.ErrInvalidInput)

	bad := DefaultOptions()
	bad.ExtremaPeriod = 0
	_, err = Analyze(Series{Close: []float64{1, 2, 3}}, bad)
	assert.ErrorIs(t, err, trend.ErrInvalidConfiguration)

	bad = DefaultOptions()
	bad.ExtremaNeighbor = -1
	assert.ErrorIs(t, bad.Validate(), trend.ErrInvalidConfiguration)
}

func TestSeriesFromBars(t *testing.T) {
	s := SeriesFromBars([]model.Bar{{High: 3, Low: 1, Close: 2}, {High: 5, Low: 2, Close: 4}})
	assert.Equal(t, []float64{2, 4}, s.Close)
	assert.Equal(t, []float64{3, 5}, s.High)
	assert.Equal(t, []float64{1, 2}, s.Low)
}
