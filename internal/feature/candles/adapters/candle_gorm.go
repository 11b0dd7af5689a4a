// Package adapters はcandlesフィーチャーの永続化実装を提供します。
package adapters

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"forex_backend/internal/feature/candles/domain/entity"
	"forex_backend/internal/feature/candles/usecase"
)

// upsertBatchSize は1文あたりの行数です。SQLite のプレースホルダ上限に収まる値にしています。
const upsertBatchSize = 500

type candleGorm struct {
	db *gorm.DB
}

var _ usecase.CandleRepository = (*candleGorm)(nil)

// NewCandleRepository は gorm で CandleRepository を実装したリポジトリを返します。
// MySQL / PostgreSQL / SQLite のいずれでも動作します。
func NewCandleRepository(db *gorm.DB) *candleGorm {
	return &candleGorm{db: db}
}

// CandleModel は candles テーブルの行です。(symbol, timeframe, open_time) が一意です。
type CandleModel struct {
	ID        uint      `gorm:"primaryKey"`
	Symbol    string    `gorm:"size:32;not null;uniqueIndex:candle_sym_tf_time,priority:1"`
	Timeframe string    `gorm:"column:timeframe;size:16;not null;uniqueIndex:candle_sym_tf_time,priority:2"`
	OpenTime  time.Time `gorm:"column:open_time;not null;uniqueIndex:candle_sym_tf_time,priority:3"`

	Open   float64 `gorm:"not null"`
	High   float64 `gorm:"not null"`
	Low    float64 `gorm:"not null"`
	Close  float64 `gorm:"not null"`
	Volume int64   `gorm:"not null;default:0"`
}

func (CandleModel) TableName() string {
	return "candles"
}

func toModel(e entity.Candle) CandleModel {
	return CandleModel{
		Symbol:    e.Symbol,
		Timeframe: e.Interval,
		OpenTime:  e.Time.UTC(),
		Open:      e.Open,
		High:      e.High,
		Low:       e.Low,
		Close:     e.Close,
		Volume:    e.Volume,
	}
}

func toEntity(m CandleModel) entity.Candle {
	return entity.Candle{
		Symbol:   m.Symbol,
		Interval: m.Timeframe,
		Time:     m.OpenTime.UTC(),
		Open:     m.Open,
		High:     m.High,
		Low:      m.Low,
		Close:    m.Close,
		Volume:   m.Volume,
	}
}

func toEntities(rows []CandleModel) []entity.Candle {
	out := make([]entity.Candle, 0, len(rows))
	for _, m := range rows {
		out = append(out, toEntity(m))
	}
	return out
}

// UpsertBatch は既存行を上書きしつつ一括挿入します。同じバッチを何度適用しても結果は同じです。
func (r *candleGorm) UpsertBatch(ctx context.Context, candles []entity.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	ms := make([]CandleModel, 0, len(candles))
	for _, e := range candles {
		ms = append(ms, toModel(e))
	}

	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "symbol"}, {Name: "timeframe"}, {Name: "open_time"}},
		DoUpdates: clause.AssignmentColumns([]string{"open", "high", "low", "close", "volume"}),
	}).CreateInBatches(&ms, upsertBatchSize).Error
}

// FindRecent は直近 count 本を取得し、時刻の昇順に並べ替えて返します。
func (r *candleGorm) FindRecent(ctx context.Context, symbol, interval string, count int) ([]entity.Candle, error) {
	var rows []CandleModel
	q := r.db.WithContext(ctx).
		Where("symbol = ? AND timeframe = ?", symbol, interval).
		Order("open_time DESC")
	if count > 0 {
		q = q.Limit(count)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return toEntities(rows), nil
}

// FindRange は [from, to) のバーを時刻の昇順で返します。
func (r *candleGorm) FindRange(ctx context.Context, symbol, interval string, from, to time.Time) ([]entity.Candle, error) {
	var rows []CandleModel
	if err := r.db.WithContext(ctx).
		Where("symbol = ? AND timeframe = ? AND open_time >= ? AND open_time < ?", symbol, interval, from.UTC(), to.UTC()).
		Order("open_time ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return toEntities(rows), nil
}

// Stats はシリーズの件数と最古・最新時刻を返します。
// MIN/MAX 集計は SQLite で文字列として返るため、並べ替えた先頭行から時刻を取ります。
func (r *candleGorm) Stats(ctx context.Context, symbol, interval string) (entity.SeriesStats, error) {
	st := entity.SeriesStats{Symbol: symbol, Interval: interval}
	base := func() *gorm.DB {
		return r.db.WithContext(ctx).Model(&CandleModel{}).Where("symbol = ? AND timeframe = ?", symbol, interval)
	}

	if err := base().Count(&st.Count).Error; err != nil {
		return st, err
	}
	if st.Count == 0 {
		return st, nil
	}

	var first, last CandleModel
	if err := base().Order("open_time ASC").Limit(1).Take(&first).Error; err != nil {
		return st, err
	}
	if err := base().Order("open_time DESC").Limit(1).Take(&last).Error; err != nil {
		return st, err
	}
	st.MinTime = first.OpenTime.UTC()
	st.MaxTime = last.OpenTime.UTC()
	return st, nil
}

// Summary は保存済みの全シリーズの統計を symbol, timeframe の順で返します。
func (r *candleGorm) Summary(ctx context.Context) ([]entity.SeriesStats, error) {
	type pair struct {
		Symbol    string
		Timeframe string
	}
	var pairs []pair
	if err := r.db.WithContext(ctx).
		Model(&CandleModel{}).
		Distinct("symbol", "timeframe").
		Order("symbol ASC, timeframe ASC").
		Scan(&pairs).Error; err != nil {
		return nil, err
	}

	out := make([]entity.SeriesStats, 0, len(pairs))
	for _, p := range pairs {
		st, err := r.Stats(ctx, p.Symbol, p.Timeframe)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}
