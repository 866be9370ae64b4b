// Package models provides domain models for the harmonic pattern scanner.
package models

import (
	"time"
)

// Timeframe identifies a candle interval such as "5m" or "1h".
type Timeframe string

const (
	Timeframe1m  Timeframe = "1m"
	Timeframe5m  Timeframe = "5m"
	Timeframe15m Timeframe = "15m"
	Timeframe30m Timeframe = "30m"
	Timeframe1h  Timeframe = "1h"
	Timeframe4h  Timeframe = "4h"
	Timeframe1d  Timeframe = "1d"
	Timeframe1w  Timeframe = "1w"
)

var timeframeDurations = map[Timeframe]time.Duration{
	Timeframe1m:  time.Minute,
	Timeframe5m:  5 * time.Minute,
	Timeframe15m: 15 * time.Minute,
	Timeframe30m: 30 * time.Minute,
	Timeframe1h:  time.Hour,
	Timeframe4h:  4 * time.Hour,
	Timeframe1d:  24 * time.Hour,
	Timeframe1w:  7 * 24 * time.Hour,
}

// Duration returns the bar length of the timeframe, or 0 when unknown.
func (t Timeframe) Duration() time.Duration {
	return timeframeDurations[t]
}

// Valid reports whether the timeframe is one of the supported intervals.
func (t Timeframe) Valid() bool {
	_, ok := timeframeDurations[t]
	return ok
}

// Candle represents OHLCV data for one bar of a (symbol, timeframe) stream.
// Times are epoch milliseconds.
type Candle struct {
	Symbol    string
	Timeframe Timeframe
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	OpenTime  int64
	CloseTime int64
}

// OpenAt returns the open time as a time.Time in UTC.
func (c Candle) OpenAt() time.Time {
	return time.UnixMilli(c.OpenTime).UTC()
}

// SwingLabel marks a swing point as a local high or low.
type SwingLabel string

const (
	SwingHigh SwingLabel = "HIGH"
	SwingLow  SwingLabel = "LOW"
)

// Opposite returns the other label.
func (l SwingLabel) Opposite() SwingLabel {
	if l == SwingHigh {
		return SwingLow
	}
	return SwingHigh
}

// SwingPoint is a local extremum in a candle sequence.
type SwingPoint struct {
	Index     int // position in the source candle slice
	Price     float64
	Timestamp int64 // epoch millis
	Label     SwingLabel
}

// Pair identifies one candle stream.
type Pair struct {
	Symbol    string    `mapstructure:"symbol" json:"symbol"`
	Timeframe Timeframe `mapstructure:"timeframe" json:"timeframe"`
}

func (p Pair) String() string {
	return p.Symbol + "@" + string(p.Timeframe)
}
