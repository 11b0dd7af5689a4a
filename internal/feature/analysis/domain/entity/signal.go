// Package entity defines the domain models for the analysis feature.
package entity

import "time"

// Direction is the side of a breakout signal.
type Direction string

const (
	Long  Direction = "long"
	Short Direction = "short"
)

// Signal is a breakout detected at the close of bar Index.
// For Long: Stop < Entry < Target. For Short: Target < Entry < Stop.
type Signal struct {
	Index     int       // position of the evaluation bar in the scanned series
	Direction Direction
	EntryTime time.Time // open time of the evaluation bar
	Entry     float64   // close of the evaluation bar
	Stop      float64
	Target    float64
	PriorHigh float64 // highest high of the N bars before the evaluation bar
	PriorLow  float64 // lowest low of the N bars before the evaluation bar
}

// Risk is the entry-to-stop distance.
func (s Signal) Risk() float64 {
	if s.Direction == Long {
		return s.Entry - s.Stop
	}
	return s.Stop - s.Entry
}

// Outcome is how a historical signal played out within the lookahead.
type Outcome string

const (
	OutcomeTarget    Outcome = "target"
	OutcomeStopLoss  Outcome = "stop_loss"
	OutcomeTimeLimit Outcome = "time_limit" // lookahead exhausted without a touch
	OutcomePending   Outcome = "pending"    // not enough bars after the signal yet
)

// SignalResult is a historical signal with its outcome.
type SignalResult struct {
	Signal
	Outcome Outcome
}

// TimeRange is the span of bars an analysis covered.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Stats summarizes one analysis window.
type Stats struct {
	Bullish   int // bars closing above their open
	Bearish   int
	Signals   int
	Wins      int
	Losses    int
	TimeLimit int
	Pending   int
	WinRate   float64 // percent of wins among resolved (win or loss) signals
	RR        float64
}

// Report is the result of analyzing the most recent bars of one series.
type Report struct {
	Symbol    string
	Interval  string
	Count     int
	Lookback  int
	TimeRange TimeRange
	Latest    *Signal // signal at the most recent bar, nil when none fires
	Signals   []SignalResult
	Stats     Stats
}
