package model

import (
	"encoding/json"
	"strconv"
	"time"
)

// TFCandle is a closed (or forming) OHLC candle for one timeframe, as written
// by the candle builder to "candle:{TF}s:{exchange}:{token}".
// All prices are in paise (int64) to avoid floating-point drift.
type TFCandle struct {
	Token    string    `json:"token"`
	Exchange string    `json:"exchange"`
	TF       int       `json:"tf"`      // timeframe in seconds
	TS       time.Time `json:"ts"`      // bucket start time (UTC, TF-aligned)
	Open     int64     `json:"open"`    // paise
	High     int64     `json:"high"`    // paise
	Low      int64     `json:"low"`     // paise
	Close    int64     `json:"close"`   // paise
	Volume   int64     `json:"volume"`  // cumulative quantity
	Count    int       `json:"count"`   // number of 1s candles merged
	Forming  bool      `json:"forming"` // true if bucket is still open
}

// Key returns "exchange:token".
func (c *TFCandle) Key() string {
	return c.Exchange + ":" + c.Token
}

// SeriesKey returns "exchange:token:tf", the identity of one rolling window.
func (c *TFCandle) SeriesKey() string {
	return SeriesKey(c.Exchange, c.Token, c.TF)
}

// StreamKey returns the Redis stream key: "candle:{TF}s:{exchange}:{token}".
func (c *TFCandle) StreamKey() string {
	return "candle:" + strconv.Itoa(c.TF) + "s:" + c.Exchange + ":" + c.Token
}

// Bar converts the candle to rupee prices.
func (c *TFCandle) Bar() Bar {
	return Bar{
		TS:     c.TS,
		Open:   PaiseToRupees(c.Open),
		High:   PaiseToRupees(c.High),
		Low:    PaiseToRupees(c.Low),
		Close:  PaiseToRupees(c.Close),
		Volume: c.Volume,
	}
}

// JSON returns the JSON-encoded TF candle.
func (c *TFCandle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}

// Bar is one OHLC observation in rupees.
type Bar struct {
	TS     time.Time `json:"ts"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// SeriesKey builds "exchange:token:tf".
func SeriesKey(exchange, token string, tf int) string {
	return exchange + ":" + token + ":" + strconv.Itoa(tf)
}

// PaiseToRupees converts an integer paise price to rupees.
func PaiseToRupees(p int64) float64 {
	return float64(p) / 100.0
}
