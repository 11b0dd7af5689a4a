// Package entity defines the domain models for the backtest feature.
package entity

import (
	"slices"
	"time"

	analysis "forex_backend/internal/feature/analysis/domain/entity"
)

// JobStatus is the lifecycle state of a backtest job.
// queued -> running -> succeeded | failed. Terminal states never change.
type JobStatus string

const (
	StatusQueued    JobStatus = "queued"
	StatusRunning   JobStatus = "running"
	StatusSucceeded JobStatus = "succeeded"
	StatusFailed    JobStatus = "failed"
)

// Finished reports whether s is terminal.
func (s JobStatus) Finished() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Params describes one backtest run over [Start, End).
type Params struct {
	Symbol   string    `json:"symbol" validate:"required"`
	Interval string    `json:"interval" validate:"required"`
	Start    time.Time `json:"start" validate:"required"`
	End      time.Time `json:"end" validate:"required,gtfield=Start"`
	Lookback int       `json:"lookback" validate:"gte=1,lte=500"`
	RR       float64   `json:"rr" validate:"gte=0.5,lte=5"`
}

// ExitReason is why a trade closed.
type ExitReason string

const (
	ExitStop   ExitReason = "stop"
	ExitTarget ExitReason = "target"
)

// Trade is one simulated position. ExitTime, ExitPrice, ExitReason and R are
// zero for a position still open at the end of the run.
type Trade struct {
	Direction  analysis.Direction `json:"direction"`
	EntryTime  time.Time          `json:"entry_time"`
	EntryPrice float64            `json:"entry_price"`
	Stop       float64            `json:"stop"`
	Target     float64            `json:"target"`
	ExitTime   time.Time          `json:"exit_time,omitzero"`
	ExitPrice  float64            `json:"exit_price,omitempty"`
	ExitReason ExitReason         `json:"exit_reason,omitempty"`
	R          float64            `json:"r"`
}

// Metrics aggregates closed trades. R values are multiples of the initial risk.
type Metrics struct {
	TotalTrades   int     `json:"total_trades"`
	Wins          int     `json:"wins"`
	Losses        int     `json:"losses"`
	WinRate       float64 `json:"win_rate"` // percent
	Expectancy    float64 `json:"expectancy"`
	TotalR        float64 `json:"total_r"`
	ProfitFactor  float64 `json:"profit_factor"`
	MaxDrawdown   float64 `json:"max_drawdown"` // on the cumulative R curve
	Signals       int     `json:"signals"`
	BarsProcessed int     `json:"bars_processed"`
}

// TradeLog is the result of a backtest run.
type TradeLog struct {
	Trades       []Trade `json:"trades"`
	Metrics      Metrics `json:"metrics"`
	OpenPosition *Trade  `json:"open_position"`
}

// Job is a backtest request tracked through its lifecycle.
type Job struct {
	ID         string     `json:"id"`
	Status     JobStatus  `json:"status"`
	Params     Params     `json:"params"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"`
	Result     *TradeLog  `json:"result"`
	Error      string     `json:"error,omitempty"`
}

// Clone returns a deep copy safe to hand out of the owning goroutine.
func (j Job) Clone() Job {
	out := j
	if j.StartedAt != nil {
		t := *j.StartedAt
		out.StartedAt = &t
	}
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		out.FinishedAt = &t
	}
	if j.Result != nil {
		r := *j.Result
		r.Trades = slices.Clone(j.Result.Trades)
		if j.Result.OpenPosition != nil {
			p := *j.Result.OpenPosition
			r.OpenPosition = &p
		}
		out.Result = &r
	}
	return out
}
