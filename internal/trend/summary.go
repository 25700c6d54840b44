package trend

import "fmt"

// PeakTrend fits a line through the peaks of prices. Peaks closer than period
// to each other are merged before fitting.
func PeakTrend(prices []float64, period int) (TrendLine, error) {
	peaks, err := Peaks(prices, period, period)
	if err != nil {
		return TrendLine{}, err
	}
	return extremaTrend(peaks, "peaks")
}

// ValleyTrend fits a line through the valleys of prices.
func ValleyTrend(prices []float64, period int) (TrendLine, error) {
	valleys, err := Valleys(prices, period, period)
	if err != nil {
		return TrendLine{}, err
	}
	return extremaTrend(valleys, "valleys")
}

// OverallTrend fits a line through every price.
func OverallTrend(prices []float64) (TrendLine, error) {
	if len(prices) == 0 {
		return TrendLine{}, fmt.Errorf("%w: empty price series", ErrInvalidInput)
	}
	if err := checkFinite(prices); err != nil {
		return TrendLine{}, err
	}
	if len(prices) == 1 {
		return TrendLine{}, fmt.Errorf("%w: need at least 2 prices, got 1", ErrInsufficientData)
	}
	return Fit(seriesPoints(prices, 0, len(prices)-1))
}

func extremaTrend(ext []Extremum, kind string) (TrendLine, error) {
	if len(ext) < 2 {
		return TrendLine{}, fmt.Errorf("%w: need at least 2 %s, found %d", ErrInsufficientData, kind, len(ext))
	}
	pts := make([]Point, len(ext))
	for i, e := range ext {
		pts[i] = Point{Index: e.Index, Value: e.Value}
	}
	return Fit(pts)
}
