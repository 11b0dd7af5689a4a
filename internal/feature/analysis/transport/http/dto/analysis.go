// Package dto はanalysisフィーチャーのリクエスト/レスポンスDTOを定義します。
package dto

import (
	"time"

	"forex_backend/internal/feature/analysis/domain/entity"
)

// AnalyzeRequest は POST /api/analyze のボディです。省略した項目はデフォルト値になります。
type AnalyzeRequest struct {
	Symbol   string  `json:"symbol" binding:"required"`
	Interval string  `json:"interval"`
	Count    int     `json:"count"`
	Lookback int     `json:"lookback"`
	RR       float64 `json:"rr"`
}

type SignalResponse struct {
	Direction string    `json:"direction"`
	EntryTime time.Time `json:"entry_time"`
	Entry     float64   `json:"entry"`
	Stop      float64   `json:"stop"`
	Target    float64   `json:"target"`
	PriorHigh float64   `json:"prior_high"`
	PriorLow  float64   `json:"prior_low"`
	Outcome   string    `json:"outcome,omitempty"`
}

type StatsResponse struct {
	Bullish   int     `json:"bullish"`
	Bearish   int     `json:"bearish"`
	Signals   int     `json:"signals"`
	Wins      int     `json:"wins"`
	Losses    int     `json:"losses"`
	TimeLimit int     `json:"time_limit"`
	Pending   int     `json:"pending"`
	WinRate   float64 `json:"win_rate"`
	RR        float64 `json:"rr"`
}

type TimeRangeResponse struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// AnalyzeResponse は分析結果です。latest は最新バーでシグナルが出ていなければ null です。
type AnalyzeResponse struct {
	Symbol    string            `json:"symbol"`
	Interval  string            `json:"interval"`
	Count     int               `json:"count"`
	Lookback  int               `json:"lookback"`
	TimeRange TimeRangeResponse `json:"time_range"`
	Latest    *SignalResponse   `json:"latest"`
	Signals   []SignalResponse  `json:"signals"`
	Stats     StatsResponse     `json:"stats"`
}

func newSignal(s entity.Signal, outcome entity.Outcome) SignalResponse {
	return SignalResponse{
		Direction: string(s.Direction),
		EntryTime: s.EntryTime,
		Entry:     s.Entry,
		Stop:      s.Stop,
		Target:    s.Target,
		PriorHigh: s.PriorHigh,
		PriorLow:  s.PriorLow,
		Outcome:   string(outcome),
	}
}

// NewAnalyzeResponse はReportをレスポンスに変換します。
func NewAnalyzeResponse(r entity.Report) AnalyzeResponse {
	res := AnalyzeResponse{
		Symbol:    r.Symbol,
		Interval:  r.Interval,
		Count:     r.Count,
		Lookback:  r.Lookback,
		TimeRange: TimeRangeResponse{Start: r.TimeRange.Start, End: r.TimeRange.End},
		Signals:   make([]SignalResponse, 0, len(r.Signals)),
		Stats: StatsResponse{
			Bullish:   r.Stats.Bullish,
			Bearish:   r.Stats.Bearish,
			Signals:   r.Stats.Signals,
			Wins:      r.Stats.Wins,
			Losses:    r.Stats.Losses,
			TimeLimit: r.Stats.TimeLimit,
			Pending:   r.Stats.Pending,
			WinRate:   r.Stats.WinRate,
			RR:        r.Stats.RR,
		},
	}
	if r.Latest != nil {
		l := newSignal(*r.Latest, "")
		res.Latest = &l
	}
	for _, s := range r.Signals {
		res.Signals = append(res.Signals, newSignal(s.Signal, s.Outcome))
	}
	return res
}
