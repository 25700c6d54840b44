package model

import (
	"encoding/json"
	"strconv"
	"time"

	"trendsys/internal/trend"
)

// TrendReport is one decomposition of an instrument's rolling window.
type TrendReport struct {
	ID       string    `json:"id"`
	Exchange string    `json:"exchange"`
	Token    string    `json:"token"`
	TF       int       `json:"tf"`
	TS       time.Time `json:"ts"` // timestamp of the newest bar analyzed
	Points   int       `json:"points"`
	Config   string    `json:"config"` // preset name or "custom"

	Segments []trend.Segment  `json:"segments"`
	Peaks    []trend.Extremum `json:"peaks"`
	Valleys  []trend.Extremum `json:"valleys"`

	// Nil when the window holds too few extrema or prices for a fit.
	PeakTrend    *trend.TrendLine `json:"peak_trend,omitempty"`
	ValleyTrend  *trend.TrendLine `json:"valley_trend,omitempty"`
	OverallTrend *trend.TrendLine `json:"overall_trend,omitempty"`
}

// Key returns "exchange:token".
func (r *TrendReport) Key() string {
	return r.Exchange + ":" + r.Token
}

// SeriesKey returns "exchange:token:tf".
func (r *TrendReport) SeriesKey() string {
	return SeriesKey(r.Exchange, r.Token, r.TF)
}

// LatestKey returns the Redis key holding the newest report:
// "trend:latest:{TF}s:{exchange}:{token}".
func (r *TrendReport) LatestKey() string {
	return LatestReportKey(r.Exchange, r.Token, r.TF)
}

// StreamKey returns the Redis stream key: "trend:{TF}s:{exchange}:{token}".
func (r *TrendReport) StreamKey() string {
	return "trend:" + strconv.Itoa(r.TF) + "s:" + r.Exchange + ":" + r.Token
}

// PubSubChannel returns "pub:trend:{TF}s:{exchange}:{token}".
func (r *TrendReport) PubSubChannel() string {
	return "pub:trend:" + strconv.Itoa(r.TF) + "s:" + r.Exchange + ":" + r.Token
}

// CurrentSegment returns the trailing segment, the regime the price is in now.
func (r *TrendReport) CurrentSegment() (trend.Segment, bool) {
	if len(r.Segments) == 0 {
		return trend.Segment{}, false
	}
	return r.Segments[len(r.Segments)-1], true
}

// JSON returns the JSON-encoded report.
func (r *TrendReport) JSON() []byte {
	b, _ := json.Marshal(r)
	return b
}

// LatestReportKey builds the latest-report key for an instrument and TF.
func LatestReportKey(exchange, token string, tf int) string {
	return "trend:latest:" + strconv.Itoa(tf) + "s:" + exchange + ":" + token
}
