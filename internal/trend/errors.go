package trend

import "errors"

// Failure kinds reported by every entry point. Callers match them with errors.Is;
// the wrapped message carries the detail.
var (
	// ErrInvalidInput covers empty series, NaN or infinite prices, mismatched
	// parallel series and non-positive windows.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInsufficientData means there were not enough points (or extrema) to fit a line.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrInvalidConfiguration covers unknown presets, partial or mixed custom
	// thresholds and violated soft/hard ordering.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrDegenerateFit is returned when every point shares the same index.
	ErrDegenerateFit = errors.New("degenerate fit")
)
