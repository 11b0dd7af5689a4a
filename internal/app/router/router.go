// Package router はHTTPルーティングを組み立てます。
package router

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	analysishandler "forex_backend/internal/feature/analysis/transport/handler"
	backtesthandler "forex_backend/internal/feature/backtest/transport/handler"
	candleshandler "forex_backend/internal/feature/candles/transport/handler"
	symbollisthandler "forex_backend/internal/feature/symbollist/transport/handler"
	platformhandler "forex_backend/internal/platform/http/handler"
	"forex_backend/internal/platform/http/middleware"
	jwtmw "forex_backend/internal/platform/jwt"
)

// Handlers はルーターに登録するフィーチャーごとのハンドラーです。
type Handlers struct {
	Candles   *candleshandler.CandlesHandler
	Symbols   *symbollisthandler.SymbolHandler
	Analysis  *analysishandler.AnalysisHandler
	Backtests *backtesthandler.BacktestHandler
	Downloads *candleshandler.DownloadHandler
	Health    []platformhandler.Check
}

// Options はミドルウェアの設定です。
type Options struct {
	Logger            *zap.Logger
	RequestsPerMinute int
	Burst             int
	// JWTSecret が空でなければ /api 配下に認証を掛けます。
	JWTSecret string
}

// NewRouter は /healthz と /api 配下のルートを登録した gin.Engine を返します。
// /api にはレート制限が掛かり、JWTSecret があれば認証も必要になります。
func NewRouter(h Handlers, opt Options) *gin.Engine {
	logger := opt.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(middleware.Recovery(logger), middleware.Logger(logger))

	// 認証不要
	// 導通確認用
	health := platformhandler.Health(h.Health...)
	r.GET("/healthz", health)
	r.HEAD("/healthz", health)
	r.OPTIONS("/healthz", health)

	api := r.Group("/api")
	api.Use(middleware.RateLimit(opt.RequestsPerMinute, opt.Burst))
	if opt.JWTSecret != "" {
		// リクエストヘッダーに JWT が必要になる
		api.Use(jwtmw.AuthRequired(opt.JWTSecret))
	}
	{
		api.GET("/candles", h.Candles.GetCandlesHandler)
		api.GET("/candles/stats", h.Candles.GetStatsHandler)
		api.GET("/symbols", h.Symbols.List)

		api.POST("/analyze", h.Analysis.Analyze)

		api.POST("/backtests", h.Backtests.Submit)
		api.GET("/backtests", h.Backtests.List)
		api.GET("/backtests/:id", h.Backtests.Get)
		api.DELETE("/backtests/:id", h.Backtests.Cancel)

		api.POST("/downloads", h.Downloads.Submit)
		api.GET("/downloads", h.Downloads.List)
		api.GET("/downloads/:id", h.Downloads.Get)
		api.DELETE("/downloads/:id", h.Downloads.Cancel)
	}

	return r
}
