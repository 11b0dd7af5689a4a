// Package handler はcandlesフィーチャーのHTTPハンドラーを提供します。
package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"forex_backend/internal/feature/candles/domain/entity"
	"forex_backend/internal/feature/candles/transport/http/dto"
	"forex_backend/internal/feature/candles/usecase"
)

// CandlesUsecase はローソク足データ参照のユースケースインターフェースを定義します。
// Goの慣例に従い、インターフェースは利用者（handler）側で定義します。
type CandlesUsecase interface {
	GetCandles(ctx context.Context, symbol, interval string, outputsize int) ([]entity.Candle, error)
	GetStats(ctx context.Context, symbol, interval string) (entity.SeriesStats, error)
	GetSummary(ctx context.Context) ([]entity.SeriesStats, error)
}

// CandlesHandler はローソク足データのHTTPリクエストを処理します。
type CandlesHandler struct {
	uc CandlesUsecase
}

// NewCandlesHandler は指定されたusecaseでCandlesHandlerの新しいインスタンスを生成します。
func NewCandlesHandler(uc CandlesUsecase) *CandlesHandler {
	return &CandlesHandler{uc: uc}
}

// GetCandlesHandler は保存済みのローソク足を時刻の昇順で返します。
//
// エンドポイント例:
// GET /api/candles?symbol=EUR/USD&interval=4h&outputsize=200
func (h *CandlesHandler) GetCandlesHandler(c *gin.Context) {
	symbol := c.Query("symbol")
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol is required"})
		return
	}
	interval := c.DefaultQuery("interval", usecase.DefaultInterval)
	// 不正な値は usecase 側でデフォルトに丸める
	outputsize, _ := strconv.Atoi(c.Query("outputsize"))

	candles, err := h.uc.GetCandles(c.Request.Context(), symbol, interval, outputsize)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, dto.NewCandlesResponse(symbol, interval, candles))
}

// GetStatsHandler は1シリーズ、または symbol 未指定なら全シリーズの統計を返します。
//
// エンドポイント例:
// GET /api/candles/stats?symbol=EUR/USD&interval=1h
func (h *CandlesHandler) GetStatsHandler(c *gin.Context) {
	symbol := c.Query("symbol")
	if symbol == "" {
		all, err := h.uc.GetSummary(c.Request.Context())
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		out := make([]dto.SeriesStatsResponse, 0, len(all))
		for _, s := range all {
			out = append(out, dto.NewSeriesStatsResponse(s))
		}
		c.JSON(http.StatusOK, out)
		return
	}

	st, err := h.uc.GetStats(c.Request.Context(), symbol, c.DefaultQuery("interval", usecase.DefaultInterval))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, dto.NewSeriesStatsResponse(st))
}

func statusFor(err error) int {
	if errors.Is(err, entity.ErrUnknownTimeframe) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
