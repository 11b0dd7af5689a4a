// Package di provides dependency injection factories for creating application components.
package di

import (
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	candlesusecase "forex_backend/internal/feature/candles/usecase"
	"forex_backend/internal/platform/config"
	"forex_backend/internal/platform/externalapi/twelvedata"
	infrahttp "forex_backend/internal/platform/http"
	"forex_backend/internal/shared/ratelimiter"
)

// NewMarket creates a fully configured TwelveDataMarket with HTTP client.
func NewMarket(cfg config.TwelveDataConfig, logger *zap.Logger) *twelvedata.TwelveDataMarket {
	tdCfg := twelvedata.Config{TwelveDataAPIKey: cfg.APIKey, BaseURL: cfg.BaseURL, Timeout: cfg.Timeout}
	httpClient := infrahttp.NewHTTPClient(cfg.Timeout)
	return twelvedata.NewTwelveDataMarket(tdCfg, httpClient, logger)
}

// NewIngestUsecase wires the process-wide rate limiter, the fetcher and the store into the ingestion pipeline.
func NewIngestUsecase(cfg *config.Config, store candlesusecase.CandleRepository, clock clockwork.Clock, logger *zap.Logger) *candlesusecase.IngestUsecase {
	limiter := ratelimiter.NewRateLimiter(ratelimiter.Config{
		PerMinute: cfg.RateLimit.PerMinute,
		PerDay:    cfg.RateLimit.PerDay,
	}, clock, logger)

	fetcher := candlesusecase.NewFetcher(NewMarket(cfg.TwelveData, logger), limiter, candlesusecase.FetchConfig{
		MaxAttempts:    cfg.Fetch.MaxAttempts,
		InitialBackoff: cfg.Fetch.InitialBackoff,
		MaxBackoff:     cfg.Fetch.MaxBackoff,
	}, logger)

	return candlesusecase.NewIngestUsecase(fetcher, store, candlesusecase.IngestConfig{
		MaxBarsPerCall: cfg.Ingest.MaxBarsPerCall,
	}, clock, logger)
}
