// Package handler はbacktestフィーチャーのHTTPハンドラーを提供します。
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"forex_backend/internal/feature/backtest/domain/entity"
	"forex_backend/internal/feature/backtest/transport/http/dto"
	"forex_backend/internal/feature/backtest/usecase"
	candle "forex_backend/internal/feature/candles/domain/entity"
)

// JobService はバックテストジョブの受付と参照を行います。
type JobService interface {
	Submit(p entity.Params) (entity.Job, error)
	Get(id string) (entity.Job, error)
	List() []entity.Job
	Cancel(id string) (entity.Job, error)
}

// BacktestHandler はバックテストジョブのHTTPリクエストを処理します。
type BacktestHandler struct {
	jobs JobService
}

func NewBacktestHandler(jobs JobService) *BacktestHandler {
	return &BacktestHandler{jobs: jobs}
}

// Submit はジョブを登録して 202 とジョブIDを返します。実行完了は待ちません。
//
// POST /api/backtests
// {"symbol":"EUR/USD","interval":"4h","start":"2020-01-01","end":"2020-03-01","lookback":20,"rr":2}
func (h *BacktestHandler) Submit(c *gin.Context) {
	var req dto.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	params, err := req.Params()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job, err := h.jobs.Submit(params)
	if err != nil {
		if errors.Is(err, usecase.ErrQueueFull) {
			c.Header("Retry-After", "5")
		}
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.Header("Location", "/api/backtests/"+job.ID)
	c.JSON(http.StatusAccepted, dto.NewJobResponse(job))
}

// Get はジョブの現在の状態を返します。
//
// GET /api/backtests/:id
func (h *BacktestHandler) Get(c *gin.Context) {
	job, err := h.jobs.Get(c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, dto.NewJobResponse(job))
}

// List は全ジョブの概要を登録順に返します。
//
// GET /api/backtests
func (h *BacktestHandler) List(c *gin.Context) {
	jobs := h.jobs.List()
	out := make([]dto.JobSummary, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, dto.NewJobSummary(j))
	}
	c.JSON(http.StatusOK, out)
}

// Cancel はジョブにキャンセルを要求します。状態が failed になるのは非同期です。
//
// DELETE /api/backtests/:id
func (h *BacktestHandler) Cancel(c *gin.Context) {
	job, err := h.jobs.Cancel(c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, dto.NewJobResponse(job))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, usecase.ErrInvalidParams), errors.Is(err, candle.ErrUnknownTimeframe):
		return http.StatusBadRequest
	case errors.Is(err, usecase.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, usecase.ErrJobFinished):
		return http.StatusConflict
	case errors.Is(err, usecase.ErrQueueFull), errors.Is(err, usecase.ErrShuttingDown):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
