package usecase

import (
	"errors"
	"fmt"
	"time"

	"forex_backend/internal/feature/candles/domain/entity"
)

// DefaultMaxBarsPerCall は1回の time_series 呼び出しで取得できる最大バー数です。
const DefaultMaxBarsPerCall = 5000

var errNoChunkSpan = errors.New("chunk span must be positive")

// PlanChunks は [start, end) を API 呼び出し単位のチャンクに分割します。
//
// チャンク幅は override > 0 ならその値、そうでなければ maxBarsPerCall × 時間足の長さです。
// maxBarsPerCall > 0 のとき override もその幅で頭打ちになり、1チャンクの期待バー数は上限を超えません。
// 最後のチャンクは end で切り詰められます。チャンクは重複せず隙間もありません。
func PlanChunks(symbol, interval string, start, end time.Time, maxBarsPerCall int, override time.Duration) (entity.ChunkPlan, error) {
	tf, err := entity.ParseTimeframe(interval)
	if err != nil {
		return entity.ChunkPlan{}, err
	}
	start, end = start.UTC(), end.UTC()
	if !start.Before(end) {
		return entity.ChunkPlan{}, fmt.Errorf("%w: %s >= %s", entity.ErrInvalidRange,
			start.Format(time.RFC3339), end.Format(time.RFC3339))
	}

	span := override
	if maxBarsPerCall > 0 {
		capSpan := time.Duration(maxBarsPerCall) * tf.Duration
		if span <= 0 || span > capSpan {
			span = capSpan
		}
	}
	if span <= 0 {
		return entity.ChunkPlan{}, errNoChunkSpan
	}

	plan := entity.ChunkPlan{Symbol: symbol, Interval: tf.Key}
	for cur, i := start, 0; cur.Before(end); i++ {
		next := cur.Add(span)
		if next.After(end) {
			next = end
		}
		plan.Chunks = append(plan.Chunks, entity.Chunk{Index: i, Start: cur, End: next})
		cur = next
	}
	return plan, nil
}
