// Package usecase はローソク足データの取得・保存・参照のビジネスロジックを実装します。
package usecase

import (
	"context"
	"fmt"
	"time"

	"forex_backend/internal/feature/candles/domain/entity"
)

const (
	// DefaultInterval はローソク足クエリのデフォルト時間足です。
	DefaultInterval = "1h"
	// DefaultOutputSize はデフォルトのローソク足返却件数です。
	DefaultOutputSize = 200
	// MaxOutputSize はローソク足の最大返却件数です。1回のAPI呼び出し上限と同じ値です。
	MaxOutputSize = 5000
)

// CandleRepository はローソク足の永続化レイヤーを抽象化します。
// Goの慣例に従い、インターフェースは利用者（usecase）側で定義します。
type CandleRepository interface {
	// UpsertBatch は (symbol, interval, time) をキーに挿入または上書きします。冪等です。
	UpsertBatch(ctx context.Context, candles []entity.Candle) error
	// FindRecent は直近 count 本を時刻の昇順で返します。count <= 0 なら全件です。
	FindRecent(ctx context.Context, symbol, interval string, count int) ([]entity.Candle, error)
	// FindRange は [from, to) のバーを時刻の昇順で返します。
	FindRange(ctx context.Context, symbol, interval string, from, to time.Time) ([]entity.Candle, error)
	// Stats はシリーズの件数と最古・最新時刻を返します。
	Stats(ctx context.Context, symbol, interval string) (entity.SeriesStats, error)
	// Summary は保存済みの全シリーズの統計を返します。
	Summary(ctx context.Context) ([]entity.SeriesStats, error)
}

// candlesUsecase はローソク足データ参照のユースケースを定義します。
type candlesUsecase struct {
	candle CandleRepository
}

// NewCandlesUsecase はcandlesUsecaseの新しいインスタンスを生成します。
func NewCandlesUsecase(candle CandleRepository) *candlesUsecase {
	return &candlesUsecase{candle: candle}
}

// GetCandles は指定された銘柄と時間足の直近のローソク足を昇順で取得します。
func (cu *candlesUsecase) GetCandles(ctx context.Context, symbol, interval string, outputsize int) ([]entity.Candle, error) {
	if interval == "" {
		interval = DefaultInterval
	}
	if _, err := entity.ParseTimeframe(interval); err != nil {
		return nil, err
	}
	if outputsize <= 0 || outputsize > MaxOutputSize {
		outputsize = DefaultOutputSize
	}

	cs, err := cu.candle.FindRecent(ctx, symbol, interval, outputsize)
	if err != nil {
		return nil, fmt.Errorf("find recent candles: %w", err)
	}

	return cs, nil
}

// GetStats は1シリーズの統計を返します。
func (cu *candlesUsecase) GetStats(ctx context.Context, symbol, interval string) (entity.SeriesStats, error) {
	if _, err := entity.ParseTimeframe(interval); err != nil {
		return entity.SeriesStats{}, err
	}
	return cu.candle.Stats(ctx, symbol, interval)
}

// GetSummary は保存済み全シリーズの統計を返します。
func (cu *candlesUsecase) GetSummary(ctx context.Context) ([]entity.SeriesStats, error) {
	return cu.candle.Summary(ctx)
}
