// Package handler はanalysisフィーチャーのHTTPハンドラーを提供します。
package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"forex_backend/internal/feature/analysis/domain/entity"
	"forex_backend/internal/feature/analysis/transport/http/dto"
	"forex_backend/internal/feature/analysis/usecase"
	candle "forex_backend/internal/feature/candles/domain/entity"
)

// AnalysisUsecase は分析ユースケースのインターフェースです。
type AnalysisUsecase interface {
	Analyze(ctx context.Context, req usecase.AnalyzeRequest) (entity.Report, error)
}

// AnalysisHandler は分析リクエストを処理します。
type AnalysisHandler struct {
	uc AnalysisUsecase
}

// NewAnalysisHandler は新しい AnalysisHandler を作成します。
func NewAnalysisHandler(uc AnalysisUsecase) *AnalysisHandler {
	return &AnalysisHandler{uc: uc}
}

// Analyze は保存済みの直近バーでブレイクアウトを評価します。
//
// POST /api/analyze
// {"symbol":"EUR/USD","interval":"4h","count":500,"lookback":20,"rr":2}
func (h *AnalysisHandler) Analyze(c *gin.Context) {
	var req dto.AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rep, err := h.uc.Analyze(c.Request.Context(), usecase.AnalyzeRequest{
		Symbol:   req.Symbol,
		Interval: req.Interval,
		Count:    req.Count,
		Lookback: req.Lookback,
		RR:       req.RR,
	})
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, dto.NewAnalyzeResponse(rep))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, usecase.ErrInvalidParams), errors.Is(err, candle.ErrUnknownTimeframe):
		return http.StatusBadRequest
	case errors.Is(err, usecase.ErrNoData):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
