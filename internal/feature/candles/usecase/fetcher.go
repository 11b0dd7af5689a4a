package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"forex_backend/internal/feature/candles/domain"
	"forex_backend/internal/feature/candles/domain/entity"
	"forex_backend/internal/shared/ratelimiter"
)

// TimeSeriesQuery は time_series 呼び出しのパラメータです。
// Start/End が両方ゼロでなければ範囲取得、そうでなければ直近 OutputSize 本の取得です。
type TimeSeriesQuery struct {
	Symbol     string
	Interval   string
	Start      time.Time
	End        time.Time
	OutputSize int
}

// IsRange は範囲指定のクエリかどうかを返します。
func (q TimeSeriesQuery) IsRange() bool {
	return !q.Start.IsZero() && !q.End.IsZero()
}

// MarketRepository は外部の相場データAPIを抽象化します。
// 実装は1回のHTTP呼び出しを行い、行ごとのスキーマ検証結果を返します。
type MarketRepository interface {
	GetTimeSeries(ctx context.Context, q TimeSeriesQuery) (entity.TimeSeries, error)
}

// FetchConfig はリトライの設定です。
type FetchConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultFetchConfig は本番用のリトライ設定を返します。
func DefaultFetchConfig() FetchConfig {
	return FetchConfig{MaxAttempts: 3, InitialBackoff: 2 * time.Second, MaxBackoff: 30 * time.Second}
}

// FetchResult は1チャンク分の取得結果です。
type FetchResult struct {
	Candles  []entity.Candle
	Rejected []entity.MalformedRow
	Attempts int
}

// Fetcher はレートリミッターを通して1チャンクを取得し、一時的な障害をリトライします。
type Fetcher struct {
	market  MarketRepository
	limiter ratelimiter.RateLimiterInterface
	cfg     FetchConfig
	logger  *zap.Logger
}

// NewFetcher は新しい Fetcher を生成します。
func NewFetcher(market MarketRepository, limiter ratelimiter.RateLimiterInterface, cfg FetchConfig, logger *zap.Logger) *Fetcher {
	def := DefaultFetchConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{market: market, limiter: limiter, cfg: cfg, logger: logger}
}

// FetchChunk はチャンク [Start, End) のバーを取得します。
// 範囲外の行は捨て、時刻が単調増加しない行は MalformedRow として記録します。
func (f *Fetcher) FetchChunk(ctx context.Context, symbol, interval string, chunk entity.Chunk) (FetchResult, error) {
	q := TimeSeriesQuery{
		Symbol:     symbol,
		Interval:   interval,
		Start:      chunk.Start,
		End:        chunk.End,
		OutputSize: MaxOutputSize,
	}
	res, err := f.fetch(ctx, q)
	if err != nil {
		return res, fmt.Errorf("fetch %s %s chunk %d [%s, %s): %w", symbol, interval, chunk.Index,
			chunk.Start.Format(time.RFC3339), chunk.End.Format(time.RFC3339), err)
	}
	res.Candles = clip(res.Candles, chunk.Start, chunk.End)
	return res, nil
}

// FetchLatest は直近 outputsize 本を取得します。
func (f *Fetcher) FetchLatest(ctx context.Context, symbol, interval string, outputsize int) (FetchResult, error) {
	res, err := f.fetch(ctx, TimeSeriesQuery{Symbol: symbol, Interval: interval, OutputSize: outputsize})
	if err != nil {
		return res, fmt.Errorf("fetch latest %s %s: %w", symbol, interval, err)
	}
	return res, nil
}

func (f *Fetcher) fetch(ctx context.Context, q TimeSeriesQuery) (FetchResult, error) {
	var (
		res    FetchResult
		series entity.TimeSeries
	)

	op := func() error {
		res.Attempts++
		if err := f.limiter.Acquire(ctx); err != nil {
			return backoff.Permanent(err)
		}
		ts, err := f.market.GetTimeSeries(ctx, q)
		if err != nil {
			if isPermanent(ctx, err) {
				return backoff.Permanent(err)
			}
			return err
		}
		series = ts
		return nil
	}

	notify := func(err error, wait time.Duration) {
		f.logger.Warn("transient provider error, retrying",
			zap.String("symbol", q.Symbol),
			zap.String("interval", q.Interval),
			zap.Int("attempt", res.Attempts),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
	}

	if err := backoff.RetryNotify(op, f.newBackOff(ctx), notify); err != nil {
		return res, err
	}

	res.Candles, res.Rejected = normalize(q.Symbol, q.Interval, series)
	for _, r := range res.Rejected {
		f.logger.Warn("malformed row skipped",
			zap.String("symbol", q.Symbol),
			zap.String("interval", q.Interval),
			zap.Int("index", r.Index),
			zap.String("reason", r.Reason),
		)
	}
	return res, nil
}

func (f *Fetcher) newBackOff(ctx context.Context) backoff.BackOffContext {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = f.cfg.InitialBackoff
	bo.MaxInterval = f.cfg.MaxBackoff
	bo.MaxElapsedTime = 0
	bo.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(bo, uint64(f.cfg.MaxAttempts-1)), ctx)
}

// isPermanent はリトライしても結果が変わらないエラーかを判定します。
func isPermanent(ctx context.Context, err error) bool {
	switch {
	case errors.Is(err, domain.ErrPermanentProvider):
		return true
	case errors.Is(err, ratelimiter.ErrQuotaExceeded):
		return true
	case ctx.Err() != nil:
		return true
	}
	return false
}

// normalize は銘柄と時間足を付与し、時刻が単調増加しない行を除外します。
func normalize(symbol, interval string, ts entity.TimeSeries) ([]entity.Candle, []entity.MalformedRow) {
	rejected := append([]entity.MalformedRow(nil), ts.Rejected...)
	out := make([]entity.Candle, 0, len(ts.Candles))
	for i, c := range ts.Candles {
		c.Symbol = symbol
		c.Interval = interval
		c.Time = c.Time.UTC()
		if n := len(out); n > 0 && !c.Time.After(out[n-1].Time) {
			rejected = append(rejected, entity.MalformedRow{
				Index:  i,
				Raw:    c.Time.Format(time.RFC3339),
				Reason: "open_time not strictly increasing",
			})
			continue
		}
		out = append(out, c)
	}
	return out, rejected
}

func clip(cs []entity.Candle, start, end time.Time) []entity.Candle {
	out := cs[:0]
	for _, c := range cs {
		if c.Time.Before(start) || !c.Time.Before(end) {
			continue
		}
		out = append(out, c)
	}
	return out
}
