package notification

import (
	"fmt"
	"sync"

	"trendsys/internal/model"
	"trendsys/internal/trend"
)

// ReversalDetector remembers the direction of each series' current segment
// and reports when a new report changes it.
type ReversalDetector struct {
	mu   sync.Mutex
	last map[string]trend.Direction
}

// NewReversalDetector creates an empty detector.
func NewReversalDetector() *ReversalDetector {
	return &ReversalDetector{last: make(map[string]trend.Direction)}
}

// Observe records rep and returns an alert when the current segment's
// direction differs from the previous report of the same series. The first
// report of a series only sets the baseline.
func (d *ReversalDetector) Observe(rep *model.TrendReport) (Alert, bool) {
	cur, ok := rep.CurrentSegment()
	if !ok {
		return Alert{}, false
	}
	dir := cur.Direction()
	key := rep.SeriesKey()

	d.mu.Lock()
	prev, seen := d.last[key]
	d.last[key] = dir
	d.mu.Unlock()

	if !seen || prev == dir {
		return Alert{}, false
	}

	level := AlertInfo
	if (prev == trend.DirectionUp && dir == trend.DirectionDown) || (prev == trend.DirectionDown && dir == trend.DirectionUp) {
		level = AlertWarning
	}
	return Alert{
		Level:    level,
		Title:    fmt.Sprintf("%s turned %s", key, dir),
		Message:  fmt.Sprintf("trend changed from %s to %s at index %d (slope %.4f)", prev, dir, cur.Start, cur.Slope),
		Series:   key,
		ReportID: rep.ID,
		From:     string(prev),
		To:       string(dir),
		Slope:    cur.Slope,
		Start:    cur.Start,
	}, true
}
