package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"forex_backend/internal/app/di"
	"forex_backend/internal/app/router"
	analysishandler "forex_backend/internal/feature/analysis/transport/handler"
	analysisusecase "forex_backend/internal/feature/analysis/usecase"
	backtesthandler "forex_backend/internal/feature/backtest/transport/handler"
	backtestusecase "forex_backend/internal/feature/backtest/usecase"
	candleshandler "forex_backend/internal/feature/candles/transport/handler"
	candlesusecase "forex_backend/internal/feature/candles/usecase"
	symbollistadapters "forex_backend/internal/feature/symbollist/adapters"
	symbollisthandler "forex_backend/internal/feature/symbollist/transport/handler"
	symbollistusecase "forex_backend/internal/feature/symbollist/usecase"
	"forex_backend/internal/platform/config"
	platformhandler "forex_backend/internal/platform/http/handler"
	"forex_backend/internal/platform/logger"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return err
	}
	lg, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer func() { _ = lg.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// db
	db, err := di.NewDatabase(cfg.DB, lg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	// Redis
	rdb := di.NewRedis(ctx, cfg.Redis, lg)
	if rdb != nil {
		defer func() {
			if err := rdb.Close(); err != nil {
				lg.Error("failed to close redis client", zap.Error(err))
			}
		}()
	}

	// Repository
	candleStore := di.NewCandleStore(db, rdb, cfg.Redis, lg)
	symbolRepo := symbollistadapters.NewSymbolRepository(db)

	// Usecase
	symbolUC := symbollistusecase.NewSymbolUsecase(symbolRepo)
	if err := symbolUC.EnsureSymbols(ctx, cfg.Ingest.Symbols); err != nil {
		lg.Warn("failed to seed symbols", zap.Error(err))
	}
	candlesUC := candlesusecase.NewCandlesUsecase(candleStore)
	analysisUC := analysisusecase.NewAnalysisUsecase(candleStore, lg)
	jobs := backtestusecase.NewJobManager(
		backtestusecase.NewRunner(candleStore, lg),
		backtestusecase.JobConfig{Workers: cfg.Jobs.Workers, QueueSize: cfg.Jobs.QueueSize, MaxJobs: cfg.Jobs.MaxJobs},
		clockwork.NewRealClock(),
		lg,
	)
	jobs.Start(ctx)
	// 取り込みジョブは呼び出し枠を共有するので1ワーカーで順に処理する
	downloads := candlesusecase.NewDownloadManager(
		di.NewIngestUsecase(cfg, candleStore, clockwork.NewRealClock(), lg),
		candlesusecase.DownloadConfig{QueueSize: cfg.Jobs.QueueSize, MaxJobs: cfg.Jobs.MaxJobs},
		clockwork.NewRealClock(),
		lg,
	)
	downloads.Start(ctx)

	// Handler
	checks := []platformhandler.Check{{Name: "db", Ping: func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}}}
	if rdb != nil {
		checks = append(checks, platformhandler.Check{Name: "redis", Ping: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}

	secret := ""
	if cfg.Auth.Enabled {
		secret = cfg.Auth.JWTSecret
	} else {
		lg.Warn("API authentication is disabled; set auth.enabled and JWT_SECRET in production")
	}

	// ルータ生成
	r := router.NewRouter(router.Handlers{
		Candles:   candleshandler.NewCandlesHandler(candlesUC),
		Symbols:   symbollisthandler.NewSymbolHandler(symbolUC),
		Analysis:  analysishandler.NewAnalysisHandler(analysisUC),
		Backtests: backtesthandler.NewBacktestHandler(jobs),
		Downloads: candleshandler.NewDownloadHandler(downloads),
		Health:    checks,
	}, router.Options{
		Logger:            lg,
		RequestsPerMinute: cfg.Server.RequestsPerMinute,
		Burst:             cfg.Server.Burst,
		JWTSecret:         secret,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		lg.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	lg.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Error("http shutdown failed", zap.Error(err))
	}
	if err := jobs.Shutdown(shutdownCtx); err != nil {
		lg.Error("job manager shutdown failed", zap.Error(err))
	}
	if err := downloads.Shutdown(shutdownCtx); err != nil {
		lg.Error("download manager shutdown failed", zap.Error(err))
	}
	return nil
}
