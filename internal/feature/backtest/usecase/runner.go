// Package usecase はバックテストの実行と非同期ジョブ管理を実装します。
package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"forex_backend/internal/feature/backtest/domain/entity"
	candle "forex_backend/internal/feature/candles/domain/entity"
)

// CandleRangeReader はバックテストが読み取るストア操作です。
type CandleRangeReader interface {
	FindRange(ctx context.Context, symbol, interval string, from, to time.Time) ([]candle.Candle, error)
}

// Runner は保存済みローソク足を読み込んで Replay を実行します。
type Runner struct {
	candles CandleRangeReader
	logger  *zap.Logger
}

// NewRunner は新しい Runner を作成します。
func NewRunner(candles CandleRangeReader, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{candles: candles, logger: logger}
}

// Run は [p.Start, p.End) のバーでバックテストを実行します。
func (r *Runner) Run(ctx context.Context, p entity.Params) (entity.TradeLog, error) {
	tf, err := candle.ParseTimeframe(p.Interval)
	if err != nil {
		return entity.TradeLog{}, err
	}
	cs, err := r.candles.FindRange(ctx, p.Symbol, tf.Key, p.Start.UTC(), p.End.UTC())
	if err != nil {
		return entity.TradeLog{}, fmt.Errorf("find range: %w", err)
	}
	if len(cs) < p.Lookback+1 {
		return entity.TradeLog{}, fmt.Errorf("%w: %s %s has %d bars in range, need %d", ErrNoData, p.Symbol, tf.Key, len(cs), p.Lookback+1)
	}

	started := time.Now()
	log, err := Replay(ctx, cs, p.Lookback, p.RR)
	if err != nil {
		return entity.TradeLog{}, err
	}
	r.logger.Info("backtest replayed",
		zap.String("symbol", p.Symbol),
		zap.String("interval", tf.Key),
		zap.Int("bars", len(cs)),
		zap.Int("trades", log.Metrics.TotalTrades),
		zap.Float64("total_r", log.Metrics.TotalR),
		zap.Duration("elapsed", time.Since(started)),
	)
	return log, nil
}
