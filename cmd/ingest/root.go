package main

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"forex_backend/internal/app/di"
	candlesusecase "forex_backend/internal/feature/candles/usecase"
	symbollistadapters "forex_backend/internal/feature/symbollist/adapters"
	symbollistusecase "forex_backend/internal/feature/symbollist/usecase"
	"forex_backend/internal/platform/config"
	"forex_backend/internal/platform/logger"
)

// globalOptions は全サブコマンド共通のフラグです。
type globalOptions struct {
	configPath string
	symbols    []string
	active     bool
	timeframe  string
	timeframes []string
	all        bool
}

// app はCLIが使う依存関係です。
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	ingest  *candlesusecase.IngestUsecase
	store   candlesusecase.CandleRepository
	symbols *symbollistusecase.SymbolUsecase
	close   func()
}

func newRootCmd() *cobra.Command {
	g := &globalOptions{}
	ing := &ingestOptions{}

	root := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest Twelve Data FX candles into the store",
		Long: `Fetch historical FX candles from Twelve Data in rate-limited chunks and upsert them.

Examples:
  # EUR/USD 4h candles for a date range
  ingest --symbol EUR/USD --timeframe 4h --start-date 2020-01-01 --end-date 2020-03-01

  # every configured timeframe for a full year
  ingest --all --year 2023

  # 15min candles for the last 30 days in 3.5-day chunks
  ingest --timeframe 15min --last-days 30 --chunk-days 3.5

  # latest 500 bars of every active symbol
  ingest --active --timeframes 1h,4h --size 500`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd, g, ing)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&g.configPath, "config", "", "config file (yaml/json/toml); environment variables override it")
	pf.StringSliceVar(&g.symbols, "symbol", nil, "symbol(s) to process (default: ingest.symbols from config)")
	pf.BoolVar(&g.active, "active", false, "process every active symbol from the symbol list")
	pf.StringVar(&g.timeframe, "timeframe", "1h", "timeframe to process")
	pf.StringSliceVar(&g.timeframes, "timeframes", nil, "comma-separated timeframes, overrides --timeframe")
	pf.BoolVar(&g.all, "all", false, "process every timeframe in ingest.timeframes from config")

	ing.bind(root)
	root.AddCommand(newStatsCmd(g), newQualityCmd(g), newTokenCmd(g))
	return root
}

// loadApp は設定を読み込み、DB・パイプラインを組み立てます。
func loadApp(ctx context.Context, g *globalOptions) (*app, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, err
	}
	lg, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}

	db, err := di.NewDatabase(cfg.DB, lg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	rdb := di.NewRedis(ctx, cfg.Redis, lg)
	store := di.NewCandleStore(db, rdb, cfg.Redis, lg)

	symbolUC := symbollistusecase.NewSymbolUsecase(symbollistadapters.NewSymbolRepository(db))
	if err := symbolUC.EnsureSymbols(ctx, cfg.Ingest.Symbols); err != nil {
		lg.Warn("failed to seed symbols", zap.Error(err))
	}

	return &app{
		cfg:     cfg,
		logger:  lg,
		ingest:  di.NewIngestUsecase(cfg, store, clockwork.NewRealClock(), lg),
		store:   store,
		symbols: symbolUC,
		close: func() {
			if rdb != nil {
				_ = rdb.Close()
			}
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
			_ = lg.Sync()
		},
	}, nil
}

// resolveSymbols は --active, --symbol, 設定値の順に対象銘柄を決めます。
func (a *app) resolveSymbols(ctx context.Context, g *globalOptions) ([]string, error) {
	if g.active {
		codes, err := a.symbols.ListActiveCodes(ctx)
		if err != nil {
			return nil, fmt.Errorf("list active symbols: %w", err)
		}
		if len(codes) == 0 {
			return nil, fmt.Errorf("no active symbols registered")
		}
		return codes, nil
	}
	if len(g.symbols) > 0 {
		return g.symbols, nil
	}
	if len(a.cfg.Ingest.Symbols) == 0 {
		return nil, fmt.Errorf("no symbols: pass --symbol or set ingest.symbols")
	}
	return a.cfg.Ingest.Symbols, nil
}

// resolveTimeframes は --all, --timeframes, --timeframe の順に対象時間足を決めます。
func resolveTimeframes(g *globalOptions, configured []string) []string {
	switch {
	case g.all:
		return configured
	case len(g.timeframes) > 0:
		return g.timeframes
	default:
		return []string{g.timeframe}
	}
}
