package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"forex_backend/internal/feature/candles/domain/entity"
	"forex_backend/internal/shared/ratelimiter"
)

// DefaultChunkDays は --last-days 取得時のデフォルトのチャンク幅(日)です。
const DefaultChunkDays = 3.5

// ChunkFetcher は1チャンク単位の取得を抽象化します。
type ChunkFetcher interface {
	FetchChunk(ctx context.Context, symbol, interval string, chunk entity.Chunk) (FetchResult, error)
	FetchLatest(ctx context.Context, symbol, interval string, outputsize int) (FetchResult, error)
}

// ProgressFunc はチャンク1つの処理が終わるたびに呼ばれます。
type ProgressFunc func(p Progress)

// Progress はランの進捗です。
type Progress struct {
	Symbol         string
	Interval       string
	ChunksDone     int
	ChunksTotal    int
	CandlesWritten int
}

// IngestSummary は1シリーズ分の取り込み結果です。
type IngestSummary struct {
	Symbol         string
	Interval       string
	ChunksTotal    int
	ChunksDone     int
	CandlesWritten int
	Rejected       int
	Failures       []entity.ChunkFailure
}

// OK は失敗したチャンクがないかどうかを返します。
func (s IngestSummary) OK() bool { return len(s.Failures) == 0 }

// RangeRequest は範囲取得のリクエストです。
type RangeRequest struct {
	Symbol   string
	Interval string
	Start    time.Time
	End      time.Time
	// ChunkSpan が正ならバー数上限の代わりにこの幅でチャンクを切ります。
	ChunkSpan time.Duration
	Progress  ProgressFunc
}

// IngestConfig はパイプラインの設定です。
type IngestConfig struct {
	MaxBarsPerCall int
}

// IngestUsecase は外部APIからデータを取得し、データベースに永続化するユースケースを定義します。
// チャンクは順番に処理し、失敗したチャンクは記録して次へ進みます。
// 日の呼び出し枠が尽きた場合だけランを打ち切ります。
type IngestUsecase struct {
	fetcher ChunkFetcher
	candle  CandleRepository
	cfg     IngestConfig
	clock   clockwork.Clock
	logger  *zap.Logger
}

// NewIngestUsecase は新しい IngestUsecase を作成します。
func NewIngestUsecase(fetcher ChunkFetcher, candle CandleRepository, cfg IngestConfig, clock clockwork.Clock, logger *zap.Logger) *IngestUsecase {
	if cfg.MaxBarsPerCall <= 0 {
		cfg.MaxBarsPerCall = DefaultMaxBarsPerCall
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IngestUsecase{fetcher: fetcher, candle: candle, cfg: cfg, clock: clock, logger: logger}
}

// IngestRange は [Start, End) をチャンクに分割して取得・保存します。
// 戻り値の error は計画の失敗か、呼び出し枠の枯渇の場合のみ非nilです。
func (iu *IngestUsecase) IngestRange(ctx context.Context, req RangeRequest) (IngestSummary, error) {
	sum := IngestSummary{Symbol: req.Symbol, Interval: req.Interval}

	plan, err := PlanChunks(req.Symbol, req.Interval, req.Start, req.End, iu.cfg.MaxBarsPerCall, req.ChunkSpan)
	if err != nil {
		return sum, err
	}
	sum.Interval = plan.Interval
	sum.ChunksTotal = len(plan.Chunks)

	log := iu.logger.With(zap.String("symbol", req.Symbol), zap.String("interval", plan.Interval))
	log.Info("ingest range started",
		zap.Time("start", req.Start.UTC()),
		zap.Time("end", req.End.UTC()),
		zap.Int("chunks", sum.ChunksTotal),
	)

	for i, chunk := range plan.Chunks {
		written, rejected, err := iu.ingestChunk(ctx, plan.Symbol, plan.Interval, chunk)
		sum.Rejected += rejected
		if err != nil {
			if errors.Is(err, ratelimiter.ErrQuotaExceeded) || ctx.Err() != nil {
				for _, rest := range plan.Chunks[i:] {
					sum.Failures = append(sum.Failures, entity.ChunkFailure{Chunk: rest, Err: err})
				}
				log.Error("ingest aborted", zap.Int("remaining_chunks", len(plan.Chunks)-i), zap.Error(err))
				return sum, err
			}
			// 1つのチャンクでエラーが発生しても処理を止めずにログに出力し、次のチャンクへ進む
			sum.Failures = append(sum.Failures, entity.ChunkFailure{Chunk: chunk, Err: err})
			log.Error("chunk failed", zap.Int("chunk", chunk.Index), zap.Error(err))
		} else {
			sum.CandlesWritten += written
		}
		sum.ChunksDone++

		p := Progress{
			Symbol:         plan.Symbol,
			Interval:       plan.Interval,
			ChunksDone:     sum.ChunksDone,
			ChunksTotal:    sum.ChunksTotal,
			CandlesWritten: sum.CandlesWritten,
		}
		if req.Progress != nil {
			req.Progress(p)
		}
		log.Debug("chunk done", zap.Int("done", p.ChunksDone), zap.Int("total", p.ChunksTotal), zap.Int("written", written))
	}

	log.Info("ingest range finished",
		zap.Int("written", sum.CandlesWritten),
		zap.Int("rejected", sum.Rejected),
		zap.Int("failed_chunks", len(sum.Failures)),
	)
	return sum, nil
}

func (iu *IngestUsecase) ingestChunk(ctx context.Context, symbol, interval string, chunk entity.Chunk) (int, int, error) {
	res, err := iu.fetcher.FetchChunk(ctx, symbol, interval, chunk)
	if err != nil {
		return 0, len(res.Rejected), err
	}
	if err := iu.candle.UpsertBatch(ctx, res.Candles); err != nil {
		return 0, len(res.Rejected), fmt.Errorf("store chunk %d: %w", chunk.Index, err)
	}
	return len(res.Candles), len(res.Rejected), nil
}

// IngestYear は指定年の1月1日から翌年1月1日までを取り込みます。
func (iu *IngestUsecase) IngestYear(ctx context.Context, symbol, interval string, year int, progress ProgressFunc) (IngestSummary, error) {
	start := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(1, 0, 0)
	if now := iu.clock.Now().UTC(); end.After(now) {
		end = now
	}
	return iu.IngestRange(ctx, RangeRequest{Symbol: symbol, Interval: interval, Start: start, End: end, Progress: progress})
}

// IngestFromYear は指定年の1月1日から現在までを取り込みます。
func (iu *IngestUsecase) IngestFromYear(ctx context.Context, symbol, interval string, fromYear int, progress ProgressFunc) (IngestSummary, error) {
	start := time.Date(fromYear, 1, 1, 0, 0, 0, 0, time.UTC)
	return iu.IngestRange(ctx, RangeRequest{
		Symbol:   symbol,
		Interval: interval,
		Start:    start,
		End:      iu.clock.Now().UTC(),
		Progress: progress,
	})
}

// IngestLastDays は直近 days 日を chunkDays 日ずつ取り込みます。
// chunkDays <= 0 のときは DefaultChunkDays を使います。
func (iu *IngestUsecase) IngestLastDays(ctx context.Context, symbol, interval string, days int, chunkDays float64, progress ProgressFunc) (IngestSummary, error) {
	if days <= 0 {
		return IngestSummary{Symbol: symbol, Interval: interval}, fmt.Errorf("%w: days must be positive", entity.ErrInvalidRange)
	}
	if chunkDays <= 0 {
		chunkDays = DefaultChunkDays
	}
	end := iu.clock.Now().UTC()
	return iu.IngestRange(ctx, RangeRequest{
		Symbol:    symbol,
		Interval:  interval,
		Start:     end.AddDate(0, 0, -days),
		End:       end,
		ChunkSpan: time.Duration(chunkDays * float64(24*time.Hour)),
		Progress:  progress,
	})
}

// IngestTimeframes は複数の銘柄 × 時間足について同じ範囲を順番に取り込みます。
// 呼び出し枠が尽きた場合は残りを処理せずに返します。
func (iu *IngestUsecase) IngestTimeframes(ctx context.Context, symbols, intervals []string, start, end time.Time, progress ProgressFunc) ([]IngestSummary, error) {
	var out []IngestSummary
	for _, s := range symbols {
		for _, interval := range intervals {
			sum, err := iu.IngestRange(ctx, RangeRequest{
				Symbol: s, Interval: interval, Start: start, End: end, Progress: progress,
			})
			out = append(out, sum)
			if err != nil {
				if errors.Is(err, ratelimiter.ErrQuotaExceeded) || ctx.Err() != nil {
					return out, err
				}
				iu.logger.Error("failed to ingest series", zap.String("symbol", s), zap.String("interval", interval), zap.Error(err))
			}
		}
	}
	return out, nil
}

// IngestLatest は全銘柄 × 時間足について直近 outputsize 本を取得し、永続化します。
// 1つの銘柄でエラーが発生しても処理を止めずに次へ進みます。
func (iu *IngestUsecase) IngestLatest(ctx context.Context, symbols, intervals []string, outputsize int) ([]IngestSummary, error) {
	if outputsize <= 0 || outputsize > MaxOutputSize {
		outputsize = DefaultOutputSize
	}
	var out []IngestSummary
	for _, s := range symbols {
		for _, interval := range intervals {
			sum := IngestSummary{Symbol: s, Interval: interval, ChunksTotal: 1}
			err := iu.ingestLatestOne(ctx, s, interval, outputsize, &sum)
			out = append(out, sum)
			if err == nil {
				continue
			}
			if errors.Is(err, ratelimiter.ErrQuotaExceeded) || ctx.Err() != nil {
				return out, err
			}
			iu.logger.Error("failed to ingest data", zap.String("symbol", s), zap.String("interval", interval), zap.Error(err))
		}
	}
	return out, nil
}

func (iu *IngestUsecase) ingestLatestOne(ctx context.Context, symbol, interval string, outputsize int, sum *IngestSummary) error {
	fail := func(err error) error {
		sum.Failures = append(sum.Failures, entity.ChunkFailure{Err: err})
		return err
	}
	if _, err := entity.ParseTimeframe(interval); err != nil {
		return fail(err)
	}
	res, err := iu.fetcher.FetchLatest(ctx, symbol, interval, outputsize)
	sum.Rejected = len(res.Rejected)
	if err != nil {
		return fail(err)
	}
	if err := iu.candle.UpsertBatch(ctx, res.Candles); err != nil {
		return fail(fmt.Errorf("store latest: %w", err))
	}
	sum.ChunksDone = 1
	sum.CandlesWritten = len(res.Candles)
	return nil
}
