package dto

import (
	"time"

	"forex_backend/internal/feature/candles/domain/entity"
	"forex_backend/internal/feature/candles/usecase"
	"forex_backend/internal/shared/jobqueue"
)

// DownloadRequest は POST /api/downloads のボディです。省略した項目はデフォルト値になります。
type DownloadRequest struct {
	Symbol    string  `json:"symbol" binding:"required"`
	Interval  string  `json:"interval"`
	Days      int     `json:"days"`
	ChunkDays float64 `json:"chunk_days"`
}

func (r DownloadRequest) Params() entity.DownloadParams {
	return entity.DownloadParams{Symbol: r.Symbol, Interval: r.Interval, Days: r.Days, ChunkDays: r.ChunkDays}
}

// ChunkFailureResponse は失敗したチャンク1つです。
type ChunkFailureResponse struct {
	Index int       `json:"index"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Error string    `json:"error"`
}

// IngestSummaryResponse は取り込み結果です。
type IngestSummaryResponse struct {
	Symbol         string                 `json:"symbol"`
	Interval       string                 `json:"interval"`
	ChunksTotal    int                    `json:"chunks_total"`
	ChunksDone     int                    `json:"chunks_done"`
	CandlesWritten int                    `json:"candles_written"`
	Rejected       int                    `json:"rejected"`
	Failures       []ChunkFailureResponse `json:"failures"`
}

// DownloadJobResponse はダウンロードジョブのスナップショットです。result は succeeded のときだけ入ります。
type DownloadJobResponse struct {
	ID         string                 `json:"id"`
	Status     jobqueue.Status        `json:"status"`
	Params     entity.DownloadParams  `json:"params"`
	CreatedAt  time.Time              `json:"created_at"`
	StartedAt  *time.Time             `json:"started_at"`
	FinishedAt *time.Time             `json:"finished_at"`
	Result     *IngestSummaryResponse `json:"result,omitempty"`
	Error      string                 `json:"error,omitempty"`
}

func NewDownloadJobResponse(j usecase.DownloadJob) DownloadJobResponse {
	res := DownloadJobResponse{
		ID:         j.ID,
		Status:     j.Status,
		Params:     j.Params,
		CreatedAt:  j.CreatedAt,
		StartedAt:  j.StartedAt,
		FinishedAt: j.FinishedAt,
		Error:      j.Error,
	}
	if j.Result != nil {
		s := NewIngestSummaryResponse(*j.Result)
		res.Result = &s
	}
	return res
}

func NewIngestSummaryResponse(s usecase.IngestSummary) IngestSummaryResponse {
	out := IngestSummaryResponse{
		Symbol:         s.Symbol,
		Interval:       s.Interval,
		ChunksTotal:    s.ChunksTotal,
		ChunksDone:     s.ChunksDone,
		CandlesWritten: s.CandlesWritten,
		Rejected:       s.Rejected,
		Failures:       make([]ChunkFailureResponse, 0, len(s.Failures)),
	}
	for _, f := range s.Failures {
		msg := ""
		if f.Err != nil {
			msg = f.Err.Error()
		}
		out.Failures = append(out.Failures, ChunkFailureResponse{Index: f.Chunk.Index, Start: f.Chunk.Start, End: f.Chunk.End, Error: msg})
	}
	return out
}
