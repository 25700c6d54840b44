package trend

import "fmt"

// Extremum is a detected peak or valley.
type Extremum struct {
	Value float64 `json:"value"`
	Index int     `json:"index"`
}

// Peaks returns the local maxima of prices.
//
// Index i is a candidate when a full centered window [i-period, i+period] fits
// in the series and prices[i] is the window maximum. On a plateau the leftmost
// index wins: a candidate must be strictly above every earlier value in its
// window. Candidates closer than closestNeighbor to the previously kept peak
// replace it only when strictly higher; closestNeighbor 0 keeps every candidate.
func Peaks(prices []float64, period, closestNeighbor int) ([]Extremum, error) {
	return extrema(prices, period, closestNeighbor, func(a, b float64) bool { return a > b })
}

// Valleys mirrors Peaks for local minima.
func Valleys(prices []float64, period, closestNeighbor int) ([]Extremum, error) {
	return extrema(prices, period, closestNeighbor, func(a, b float64) bool { return a < b })
}

// extrema runs candidate detection and the separation merge. beats(a, b)
// reports whether a is strictly more extreme than b.
func extrema(prices []float64, period, closestNeighbor int, beats func(a, b float64) bool) ([]Extremum, error) {
	if len(prices) == 0 {
		return nil, fmt.Errorf("%w: empty price series", ErrInvalidInput)
	}
	if period <= 0 {
		return nil, fmt.Errorf("%w: period must be positive, got %d", ErrInvalidInput, period)
	}
	if closestNeighbor < 0 {
		return nil, fmt.Errorf("%w: closest neighbor must not be negative, got %d", ErrInvalidInput, closestNeighbor)
	}
	if err := checkFinite(prices); err != nil {
		return nil, err
	}

	out := []Extremum{}
	for i := period; i+period < len(prices); i++ {
		if !isExtremum(prices, i, period, beats) {
			continue
		}
		cand := Extremum{Value: prices[i], Index: i}

		if closestNeighbor == 0 || len(out) == 0 {
			out = append(out, cand)
			continue
		}
		last := &out[len(out)-1]
		if cand.Index-last.Index >= closestNeighbor {
			out = append(out, cand)
			continue
		}
		// Too close: the earlier one stays unless the new one is strictly more extreme.
		// Replacing moves the kept index right, so earlier spacing still holds.
		if beats(cand.Value, last.Value) {
			*last = cand
		}
	}
	return out, nil
}

func isExtremum(prices []float64, i, period int, beats func(a, b float64) bool) bool {
	v := prices[i]
	for j := i - period; j < i; j++ {
		if !beats(v, prices[j]) {
			return false
		}
	}
	for j := i + 1; j <= i+period; j++ {
		if beats(prices[j], v) {
			return false
		}
	}
	return true
}
