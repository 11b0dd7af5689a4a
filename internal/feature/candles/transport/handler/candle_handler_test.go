package handler_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"forex_backend/internal/feature/candles/domain/entity"
	"forex_backend/internal/feature/candles/transport/handler"
)

// mockCandlesUsecase はCandlesUsecaseインターフェースのモック実装です。
type mockCandlesUsecase struct {
	GetCandlesFunc func(ctx context.Context, symbol, interval string, outputsize int) ([]entity.Candle, error)
	GetStatsFunc   func(ctx context.Context, symbol, interval string) (entity.SeriesStats, error)
	GetSummaryFunc func(ctx context.Context) ([]entity.SeriesStats, error)
}

func (m *mockCandlesUsecase) GetCandles(ctx context.Context, symbol, interval string, outputsize int) ([]entity.Candle, error) {
	return m.GetCandlesFunc(ctx, symbol, interval, outputsize)
}

func (m *mockCandlesUsecase) GetStats(ctx context.Context, symbol, interval string) (entity.SeriesStats, error) {
	return m.GetStatsFunc(ctx, symbol, interval)
}

func (m *mockCandlesUsecase) GetSummary(ctx context.Context) ([]entity.SeriesStats, error) {
	return m.GetSummaryFunc(ctx)
}

func newRouter(uc handler.CandlesUsecase) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := handler.NewCandlesHandler(uc)
	r := gin.New()
	r.GET("/api/candles", h.GetCandlesHandler)
	r.GET("/api/candles/stats", h.GetStatsHandler)
	return r
}

// TestCandlesHandler_GetCandlesHandler はGetCandlesHandlerのHTTPリクエスト/レスポンス処理をテストします。
func TestCandlesHandler_GetCandlesHandler(t *testing.T) {
	t.Parallel()

	testTime := time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)
	eurusd := url.QueryEscape("EUR/USD")

	tests := []struct {
		name           string
		url            string
		mockGetCandles func(ctx context.Context, symbol, interval string, outputsize int) ([]entity.Candle, error)
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "success: all parameters specified",
			url:  "/api/candles?symbol=" + eurusd + "&interval=4h&outputsize=10",
			mockGetCandles: func(ctx context.Context, symbol, interval string, outputsize int) ([]entity.Candle, error) {
				assert.Equal(t, "EUR/USD", symbol)
				assert.Equal(t, "4h", interval)
				assert.Equal(t, 10, outputsize)
				return []entity.Candle{
					{Symbol: "EUR/USD", Interval: "4h", Time: testTime, Open: 1.085, High: 1.09, Low: 1.08, Close: 1.088},
				}, nil
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `{"symbol":"EUR/USD","interval":"4h","candles":[{"time":"2024-03-04T08:00:00Z","open":1.085,"high":1.09,"low":1.08,"close":1.088,"volume":0}]}`,
		},
		{
			name: "success: default interval, outputsize left to usecase",
			url:  "/api/candles?symbol=" + eurusd,
			mockGetCandles: func(ctx context.Context, symbol, interval string, outputsize int) ([]entity.Candle, error) {
				assert.Equal(t, "1h", interval)
				assert.Equal(t, 0, outputsize)
				return []entity.Candle{}, nil
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `{"symbol":"EUR/USD","interval":"1h","candles":[]}`,
		},
		{
			name: "edge case: invalid outputsize string is passed as zero",
			url:  "/api/candles?symbol=" + eurusd + "&outputsize=invalid",
			mockGetCandles: func(ctx context.Context, symbol, interval string, outputsize int) ([]entity.Candle, error) {
				assert.Equal(t, 0, outputsize)
				return nil, nil
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `{"symbol":"EUR/USD","interval":"1h","candles":[]}`,
		},
		{
			name:           "error: missing symbol",
			url:            "/api/candles?interval=1h",
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `{"error":"symbol is required"}`,
		},
		{
			name: "error: unknown timeframe",
			url:  "/api/candles?symbol=" + eurusd + "&interval=3h",
			mockGetCandles: func(ctx context.Context, symbol, interval string, outputsize int) ([]entity.Candle, error) {
				return nil, fmt.Errorf("%w: %q", entity.ErrUnknownTimeframe, interval)
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "error: store failure",
			url:  "/api/candles?symbol=" + eurusd,
			mockGetCandles: func(ctx context.Context, symbol, interval string, outputsize int) ([]entity.Candle, error) {
				return nil, errors.New("database is locked")
			},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `{"error":"database is locked"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			uc := &mockCandlesUsecase{GetCandlesFunc: tt.mockGetCandles}
			router := newRouter(uc)

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.url, nil))

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedBody != "" {
				assert.JSONEq(t, tt.expectedBody, w.Body.String())
			}
		})
	}
}

func TestCandlesHandler_GetStatsHandler(t *testing.T) {
	t.Parallel()

	first := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	last := time.Date(2020, 2, 28, 20, 0, 0, 0, time.UTC)

	t.Run("single series", func(t *testing.T) {
		t.Parallel()

		uc := &mockCandlesUsecase{
			GetStatsFunc: func(ctx context.Context, symbol, interval string) (entity.SeriesStats, error) {
				assert.Equal(t, "EUR/USD", symbol)
				assert.Equal(t, "4h", interval)
				return entity.SeriesStats{Symbol: symbol, Interval: interval, Count: 252, MinTime: first, MaxTime: last}, nil
			},
		}
		w := httptest.NewRecorder()
		newRouter(uc).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/candles/stats?symbol=EUR%2FUSD&interval=4h", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"symbol":"EUR/USD","interval":"4h","count":252,"first":"2020-01-01T00:00:00Z","last":"2020-02-28T20:00:00Z"}`, w.Body.String())
	})

	t.Run("empty series omits times", func(t *testing.T) {
		t.Parallel()

		uc := &mockCandlesUsecase{
			GetStatsFunc: func(ctx context.Context, symbol, interval string) (entity.SeriesStats, error) {
				return entity.SeriesStats{Symbol: symbol, Interval: interval}, nil
			},
		}
		w := httptest.NewRecorder()
		newRouter(uc).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/candles/stats?symbol=XAU%2FUSD", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"symbol":"XAU/USD","interval":"1h","count":0}`, w.Body.String())
	})

	t.Run("summary of all series", func(t *testing.T) {
		t.Parallel()

		uc := &mockCandlesUsecase{
			GetSummaryFunc: func(ctx context.Context) ([]entity.SeriesStats, error) {
				return []entity.SeriesStats{
					{Symbol: "EUR/USD", Interval: "1h", Count: 10, MinTime: first, MaxTime: first.Add(9 * time.Hour)},
					{Symbol: "EUR/USD", Interval: "4h", Count: 252, MinTime: first, MaxTime: last},
				}, nil
			},
		}
		w := httptest.NewRecorder()
		newRouter(uc).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/candles/stats", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"count":252`)
		assert.Contains(t, w.Body.String(), `"interval":"1h"`)
	})

	t.Run("summary failure", func(t *testing.T) {
		t.Parallel()

		uc := &mockCandlesUsecase{
			GetSummaryFunc: func(ctx context.Context) ([]entity.SeriesStats, error) {
				return nil, errors.New("boom")
			},
		}
		w := httptest.NewRecorder()
		newRouter(uc).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/candles/stats", nil))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}
