package trend

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var zigzag = []float64{1, 3, 1, 4, 1, 5, 1}

func TestPeaks_NoMerge(t *testing.T) {
	peaks, err := Peaks(zigzag, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, []Extremum{{3, 1}, {4, 3}, {5, 5}}, peaks)
}

func TestPeaks_MergeKeepsGlobalMax(t *testing.T) {
	peaks, err := Peaks(zigzag, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, []Extremum{{5, 5}}, peaks)
}

func TestValleys_NoMerge(t *testing.T) {
	valleys, err := Valleys([]float64{5, 2, 6, 1, 7, 3, 8}, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, []Extremum{{2, 1}, {1, 3}, {3, 5}}, valleys)
}

func TestValleys_MergeKeepsLowest(t *testing.T) {
	valleys, err := Valleys([]float64{5, 2, 6, 1, 7, 3, 8}, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, []Extremum{{1, 3}}, valleys)
}

func TestPeaks_MergeKeepsEarlierOnTie(t *testing.T) {
	peaks, err := Peaks([]float64{0, 5, 0, 5, 0}, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, []Extremum{{5, 1}}, peaks)
}

func TestPeaks_PlateauReportsLeftmostIndex(t *testing.T) {
	peaks, err := Peaks([]float64{1, 2, 4, 4, 4, 2, 1}, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, []Extremum{{4, 2}}, peaks)

	valleys, err := Valleys([]float64{5, 3, 1, 1, 3, 5}, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, []Extremum{{1, 2}}, valleys)
}

func TestPeaks_FlatSeriesHasNone(t *testing.T) {
	peaks, err := Peaks([]float64{2, 2, 2, 2, 2}, 1, 0)
	require.NoError(t, err)
	assert.Empty(t, peaks)
}

func TestPeaks_WiderWindow(t *testing.T) {
	// with period 2 the local bump at index 3 is shadowed by index 5
	prices := []float64{0, 1, 2, 3, 2, 6, 2, 1, 0}
	peaks, err := Peaks(prices, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, []Extremum{{6, 5}}, peaks)
}

func TestPeaks_TooShortIsEmpty(t *testing.T) {
	peaks, err := Peaks([]float64{1, 3}, 1, 0)
	require.NoError(t, err)
	assert.NotNil(t, peaks)
	assert.Empty(t, peaks)

	valleys, err := Valleys([]float64{3, 1, 3, 1}, 5, 0)
	require.NoError(t, err)
	assert.Empty(t, valleys)
}

func TestExtrema_InvalidInput(t *testing.T) {
	_, err := Peaks(nil, 1, 0)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = Peaks(zigzag, 0, 0)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = Valleys(zigzag, -2, 0)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = Valleys(zigzag, 1, -1)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestExtrema_SeparationInvariant(t *testing.T) {
	prices := make([]float64, 200)
	for i := range prices {
		x := float64(i)
		prices[i] = math.Sin(x/3) + 0.5*math.Sin(x/1.3)
	}

	for _, cn := range []int{1, 2, 3, 5, 8, 13} {
		peaks, err := Peaks(prices, 1, cn)
		require.NoError(t, err)
		for i := 1; i < len(peaks); i++ {
			assert.GreaterOrEqual(t, peaks[i].Index-peaks[i-1].Index, cn, "peaks closest_neighbor=%d", cn)
		}

		valleys, err := Valleys(prices, 1, cn)
		require.NoError(t, err)
		for i := 1; i < len(valleys); i++ {
			assert.GreaterOrEqual(t, valleys[i].Index-valleys[i-1].Index, cn, "valleys closest_neighbor=%d", cn)
		}
	}
}

func TestExtrema_ZeroNeighborKeepsEveryCandidate(t *testing.T) {
	prices := []float64{1, 3, 1, 4, 1, 5, 1, 2, 1, 6, 1}
	none, err := Peaks(prices, 1, 0)
	require.NoError(t, err)
	one, err := Peaks(prices, 1, 1)
	require.NoError(t, err)
	assert.Len(t, none, 5)
	assert.Equal(t, none, one)
}

func TestExtrema_MonotonicPruning(t *testing.T) {
	prices := []float64{1, 3, 1, 4, 1, 5, 1, 2, 1, 6, 1, 3, 1, 2, 1, 7, 1}
	prev := math.MaxInt
	for cn := 0; cn <= 12; cn++ {
		peaks, err := Peaks(prices, 1, cn)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(peaks), prev, "closest_neighbor=%d", cn)
		prev = len(peaks)
	}
}
