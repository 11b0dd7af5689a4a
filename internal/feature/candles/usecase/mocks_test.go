package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"forex_backend/internal/feature/candles/domain/entity"
)

// ErrDB はモックと期待値の間で共有されるセンチネルエラーです。
var ErrDB = errors.New("database error")

// mockCandleRepository はCandleRepositoryインターフェースのモック実装です。
type mockCandleRepository struct {
	UpsertBatchFunc func(ctx context.Context, candles []entity.Candle) error
	FindRecentFunc  func(ctx context.Context, symbol, interval string, count int) ([]entity.Candle, error)
	FindRangeFunc   func(ctx context.Context, symbol, interval string, from, to time.Time) ([]entity.Candle, error)
	StatsFunc       func(ctx context.Context, symbol, interval string) (entity.SeriesStats, error)
	SummaryFunc     func(ctx context.Context) ([]entity.SeriesStats, error)
	FindRecentCalls int
}

func (m *mockCandleRepository) UpsertBatch(ctx context.Context, candles []entity.Candle) error {
	if m.UpsertBatchFunc != nil {
		return m.UpsertBatchFunc(ctx, candles)
	}
	return errors.New("UpsertBatchFunc is not implemented")
}

func (m *mockCandleRepository) FindRecent(ctx context.Context, symbol, interval string, count int) ([]entity.Candle, error) {
	m.FindRecentCalls++
	if m.FindRecentFunc != nil {
		return m.FindRecentFunc(ctx, symbol, interval, count)
	}
	return nil, errors.New("FindRecentFunc is not implemented")
}

func (m *mockCandleRepository) FindRange(ctx context.Context, symbol, interval string, from, to time.Time) ([]entity.Candle, error) {
	if m.FindRangeFunc != nil {
		return m.FindRangeFunc(ctx, symbol, interval, from, to)
	}
	return nil, errors.New("FindRangeFunc is not implemented")
}

func (m *mockCandleRepository) Stats(ctx context.Context, symbol, interval string) (entity.SeriesStats, error) {
	if m.StatsFunc != nil {
		return m.StatsFunc(ctx, symbol, interval)
	}
	return entity.SeriesStats{}, errors.New("StatsFunc is not implemented")
}

func (m *mockCandleRepository) Summary(ctx context.Context) ([]entity.SeriesStats, error) {
	if m.SummaryFunc != nil {
		return m.SummaryFunc(ctx)
	}
	return nil, errors.New("SummaryFunc is not implemented")
}

// memCandleRepository は (symbol, interval, time) をキーに保持するインメモリのストアです。
type memCandleRepository struct {
	mu   sync.Mutex
	rows map[string]entity.Candle
}

func newMemCandleRepository() *memCandleRepository {
	return &memCandleRepository{rows: make(map[string]entity.Candle)}
}

func memKey(symbol, interval string, t time.Time) string {
	return symbol + "|" + interval + "|" + t.UTC().Format(time.RFC3339)
}

func (r *memCandleRepository) UpsertBatch(_ context.Context, candles []entity.Candle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range candles {
		r.rows[memKey(c.Symbol, c.Interval, c.Time)] = c
	}
	return nil
}

func (r *memCandleRepository) series(symbol, interval string) []entity.Candle {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []entity.Candle
	for _, c := range r.rows {
		if c.Symbol == symbol && c.Interval == interval {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out
}

func (r *memCandleRepository) FindRecent(_ context.Context, symbol, interval string, count int) ([]entity.Candle, error) {
	out := r.series(symbol, interval)
	if count > 0 && len(out) > count {
		out = out[len(out)-count:]
	}
	return out, nil
}

func (r *memCandleRepository) FindRange(_ context.Context, symbol, interval string, from, to time.Time) ([]entity.Candle, error) {
	var out []entity.Candle
	for _, c := range r.series(symbol, interval) {
		if !c.Time.Before(from) && c.Time.Before(to) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *memCandleRepository) Stats(_ context.Context, symbol, interval string) (entity.SeriesStats, error) {
	s := r.series(symbol, interval)
	st := entity.SeriesStats{Symbol: symbol, Interval: interval, Count: int64(len(s))}
	if len(s) > 0 {
		st.MinTime, st.MaxTime = s[0].Time, s[len(s)-1].Time
	}
	return st, nil
}

func (r *memCandleRepository) Summary(ctx context.Context) ([]entity.SeriesStats, error) {
	return nil, nil
}

// mockMarketRepository is a mock implementation of the MarketRepository interface.
type mockMarketRepository struct {
	mu                 sync.Mutex
	GetTimeSeriesFunc  func(ctx context.Context, q TimeSeriesQuery) (entity.TimeSeries, error)
	GetTimeSeriesCalls int
	Queries            []TimeSeriesQuery
}

func (m *mockMarketRepository) GetTimeSeries(ctx context.Context, q TimeSeriesQuery) (entity.TimeSeries, error) {
	m.mu.Lock()
	m.GetTimeSeriesCalls++
	m.Queries = append(m.Queries, q)
	m.mu.Unlock()
	if m.GetTimeSeriesFunc != nil {
		return m.GetTimeSeriesFunc(ctx, q)
	}
	return entity.TimeSeries{}, errors.New("GetTimeSeriesFunc is not implemented")
}

// mockRateLimiter is a mock implementation of the RateLimiterInterface.
type mockRateLimiter struct {
	AcquireFunc  func(ctx context.Context) error
	AcquireCalls int
}

func (m *mockRateLimiter) Acquire(ctx context.Context) error {
	m.AcquireCalls++
	if m.AcquireFunc != nil {
		return m.AcquireFunc(ctx)
	}
	// For testing purposes, return immediately without waiting
	return nil
}

// mockChunkFetcher is a mock implementation of the ChunkFetcher interface.
type mockChunkFetcher struct {
	FetchChunkFunc   func(ctx context.Context, symbol, interval string, chunk entity.Chunk) (FetchResult, error)
	FetchLatestFunc  func(ctx context.Context, symbol, interval string, outputsize int) (FetchResult, error)
	FetchChunkCalls  int
	FetchLatestCalls int
	Chunks           []entity.Chunk
}

func (m *mockChunkFetcher) FetchChunk(ctx context.Context, symbol, interval string, chunk entity.Chunk) (FetchResult, error) {
	m.FetchChunkCalls++
	m.Chunks = append(m.Chunks, chunk)
	if m.FetchChunkFunc != nil {
		return m.FetchChunkFunc(ctx, symbol, interval, chunk)
	}
	return FetchResult{}, errors.New("FetchChunkFunc is not implemented")
}

func (m *mockChunkFetcher) FetchLatest(ctx context.Context, symbol, interval string, outputsize int) (FetchResult, error) {
	m.FetchLatestCalls++
	if m.FetchLatestFunc != nil {
		return m.FetchLatestFunc(ctx, symbol, interval, outputsize)
	}
	return FetchResult{}, errors.New("FetchLatestFunc is not implemented")
}

// barsBetween は [start, end) の平日に step 間隔のバーを生成します。
func barsBetween(start, end time.Time, step time.Duration) []entity.Candle {
	var out []entity.Candle
	price := 1.1000
	for t := start; t.Before(end); t = t.Add(step) {
		if wd := t.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		out = append(out, entity.Candle{Time: t, Open: price, High: price + 0.0010, Low: price - 0.0010, Close: price + 0.0002})
		price += 0.0001
	}
	return out
}
