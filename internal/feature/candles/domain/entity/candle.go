// Package entity defines the domain models for the candles feature.
package entity

import "time"

// Candle represents one OHLCV bar of an instrument for a timeframe.
// (Symbol, Interval, Time) is the natural key; Time is the bar open in UTC.
type Candle struct {
	Symbol   string    // Instrument symbol (e.g., "EUR/USD", "XAU/USD")
	Interval string    // Timeframe key (e.g., "1h", "4h", "1day")
	Time     time.Time // Bar open time, UTC
	Open     float64   // Opening price
	High     float64   // Highest price during this bar
	Low      float64   // Lowest price during this bar
	Close    float64   // Closing price
	Volume   int64     // Volume; zero when the provider does not report it (most FX pairs)
}

// TimeSeries is the typed result of one provider call: accepted bars in
// ascending time order plus the rows that failed validation.
type TimeSeries struct {
	Candles  []Candle
	Rejected []MalformedRow
}

// MalformedRow is a provider row that failed schema validation. It is
// logged and skipped, never fatal for the chunk.
type MalformedRow struct {
	Index  int    // position in the provider payload
	Raw    string // raw JSON of the row
	Reason string
}

// SeriesStats summarizes what the store holds for one (symbol, interval) series.
type SeriesStats struct {
	Symbol   string
	Interval string
	Count    int64
	MinTime  time.Time
	MaxTime  time.Time
}
