// Package dto はbacktest APIのリクエスト/レスポンスDTOを定義します。
package dto

import (
	"fmt"
	"time"

	"forex_backend/internal/feature/backtest/domain/entity"
)

// SubmitRequest は POST /api/backtests のボディです。
// start/end は "2006-01-02" または RFC3339 で、end は含みません。
type SubmitRequest struct {
	Symbol   string  `json:"symbol" binding:"required"`
	Interval string  `json:"interval" binding:"required"`
	Start    string  `json:"start" binding:"required"`
	End      string  `json:"end" binding:"required"`
	Lookback int     `json:"lookback"`
	RR       float64 `json:"rr"`
}

// Params はリクエストをジョブパラメータに変換します。
func (r SubmitRequest) Params() (entity.Params, error) {
	start, err := parseDate(r.Start)
	if err != nil {
		return entity.Params{}, fmt.Errorf("start: %w", err)
	}
	end, err := parseDate(r.End)
	if err != nil {
		return entity.Params{}, fmt.Errorf("end: %w", err)
	}
	return entity.Params{
		Symbol:   r.Symbol,
		Interval: r.Interval,
		Start:    start,
		End:      end,
		Lookback: r.Lookback,
		RR:       r.RR,
	}, nil
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.ParseInLocation(time.DateOnly, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	return t, nil
}

// JobResponse はジョブのスナップショットです。result は succeeded のときだけ入ります。
type JobResponse struct {
	ID         string           `json:"id"`
	Status     entity.JobStatus `json:"status"`
	Params     entity.Params    `json:"params"`
	CreatedAt  time.Time        `json:"created_at"`
	StartedAt  *time.Time       `json:"started_at"`
	FinishedAt *time.Time       `json:"finished_at"`
	Result     *entity.TradeLog `json:"result,omitempty"`
	Error      string           `json:"error,omitempty"`
}

// JobSummary は一覧表示用で、結果本体を含みません。
type JobSummary struct {
	ID         string           `json:"id"`
	Status     entity.JobStatus `json:"status"`
	Symbol     string           `json:"symbol"`
	Interval   string           `json:"interval"`
	CreatedAt  time.Time        `json:"created_at"`
	FinishedAt *time.Time       `json:"finished_at"`
	Metrics    *entity.Metrics  `json:"metrics,omitempty"`
	Error      string           `json:"error,omitempty"`
}

func NewJobResponse(j entity.Job) JobResponse {
	return JobResponse{
		ID:         j.ID,
		Status:     j.Status,
		Params:     j.Params,
		CreatedAt:  j.CreatedAt,
		StartedAt:  j.StartedAt,
		FinishedAt: j.FinishedAt,
		Result:     j.Result,
		Error:      j.Error,
	}
}

func NewJobSummary(j entity.Job) JobSummary {
	s := JobSummary{
		ID:         j.ID,
		Status:     j.Status,
		Symbol:     j.Params.Symbol,
		Interval:   j.Params.Interval,
		CreatedAt:  j.CreatedAt,
		FinishedAt: j.FinishedAt,
		Error:      j.Error,
	}
	if j.Result != nil {
		m := j.Result.Metrics
		s.Metrics = &m
	}
	return s
}
