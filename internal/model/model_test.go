package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"trendsys/internal/trend"
)

func TestTFCandle_Keys(t *testing.T) {
	c := TFCandle{Exchange: "NSE", Token: "2885", TF: 300}
	assert.Equal(t, "NSE:2885", c.Key())
	assert.Equal(t, "NSE:2885:300", c.SeriesKey())
	assert.Equal(t, "candle:300s:NSE:2885", c.StreamKey())
}

func TestTFCandle_BarConvertsPaise(t *testing.T) {
	ts := time.Date(2024, 3, 1, 9, 15, 0, 0, time.UTC)
	c := TFCandle{TS: ts, Open: 245050, High: 246000, Low: 244925, Close: 245575, Volume: 1200}
	b := c.Bar()
	assert.Equal(t, ts, b.TS)
	assert.InDelta(t, 2450.50, b.Open, 1e-9)
	assert.InDelta(t, 2460.00, b.High, 1e-9)
	assert.InDelta(t, 2449.25, b.Low, 1e-9)
	assert.InDelta(t, 2455.75, b.Close, 1e-9)
	assert.Equal(t, int64(1200), b.Volume)
}

func TestTrendReport_Keys(t *testing.T) {
	r := TrendReport{Exchange: "NSE", Token: "99926000", TF: 60}
	assert.Equal(t, "trend:latest:60s:NSE:99926000", r.LatestKey())
	assert.Equal(t, "trend:60s:NSE:99926000", r.StreamKey())
	assert.Equal(t, "pub:trend:60s:NSE:99926000", r.PubSubChannel())
	assert.Equal(t, LatestReportKey("NSE", "99926000", 60), r.LatestKey())
}

func TestTrendReport_CurrentSegment(t *testing.T) {
	var r TrendReport
	_, ok := r.CurrentSegment()
	assert.False(t, ok)

	r.Segments = []trend.Segment{{Start: 0, End: 9}, {Start: 10, End: 19, Slope: -0.5}}
	seg, ok := r.CurrentSegment()
	assert.True(t, ok)
	assert.Equal(t, 10, seg.Start)
}
