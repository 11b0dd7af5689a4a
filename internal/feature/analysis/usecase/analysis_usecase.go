// Package usecase は保存済みローソク足に対するブレイクアウト分析を実装します。
package usecase

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"forex_backend/internal/feature/analysis/breakout"
	"forex_backend/internal/feature/analysis/domain/entity"
	candle "forex_backend/internal/feature/candles/domain/entity"
	"forex_backend/internal/shared/validation"
)

const (
	DefaultCount    = 1000
	DefaultLookback = 20
	DefaultRR       = 2.0
	DefaultInterval = "1h"
)

// CandleReader は分析に必要な読み取り専用のストア操作です。
type CandleReader interface {
	FindRecent(ctx context.Context, symbol, interval string, count int) ([]candle.Candle, error)
}

// AnalyzeRequest は1回の分析のパラメータです。ゼロ値の項目にはデフォルトが入ります。
type AnalyzeRequest struct {
	Symbol   string  `validate:"required"`
	Interval string  `validate:"required"`
	Count    int     `validate:"gte=50,lte=20000"`
	Lookback int     `validate:"gte=1,lte=500"`
	RR       float64 `validate:"gte=0.5,lte=5"`
}

func (r AnalyzeRequest) withDefaults() AnalyzeRequest {
	if r.Interval == "" {
		r.Interval = DefaultInterval
	}
	if r.Count == 0 {
		r.Count = DefaultCount
	}
	if r.Lookback == 0 {
		r.Lookback = DefaultLookback
	}
	if r.RR == 0 {
		r.RR = DefaultRR
	}
	return r
}

// AnalysisUsecase は直近のローソク足を読み込み、ブレイクアウトを評価します。
type AnalysisUsecase struct {
	candles  CandleReader
	validate *validator.Validate
	logger   *zap.Logger
}

// NewAnalysisUsecase はAnalysisUsecaseの新しいインスタンスを生成します。
func NewAnalysisUsecase(candles CandleReader, logger *zap.Logger) *AnalysisUsecase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnalysisUsecase{
		candles:  candles,
		validate: validation.New(),
		logger:   logger,
	}
}

// Analyze は直近 Count 本について、最新バーのシグナル、履歴シグナルとその結果、統計を返します。
func (au *AnalysisUsecase) Analyze(ctx context.Context, req AnalyzeRequest) (entity.Report, error) {
	req = req.withDefaults()
	if err := au.validate.Struct(req); err != nil {
		return entity.Report{}, fmt.Errorf("%w: %s", ErrInvalidParams, validation.Describe(err))
	}
	tf, err := candle.ParseTimeframe(req.Interval)
	if err != nil {
		return entity.Report{}, err
	}

	cs, err := au.candles.FindRecent(ctx, req.Symbol, tf.Key, req.Count)
	if err != nil {
		return entity.Report{}, fmt.Errorf("find recent candles: %w", err)
	}
	if len(cs) < req.Lookback+1 {
		return entity.Report{}, fmt.Errorf("%w: %s %s has %d bars, need %d", ErrNoData, req.Symbol, tf.Key, len(cs), req.Lookback+1)
	}

	rep, err := Build(cs, req.Lookback, req.RR, breakout.DefaultLookahead)
	if err != nil {
		return entity.Report{}, err
	}
	rep.Symbol, rep.Interval = req.Symbol, tf.Key

	au.logger.Debug("analysis completed",
		zap.String("symbol", rep.Symbol),
		zap.String("interval", rep.Interval),
		zap.Int("bars", rep.Count),
		zap.Int("signals", rep.Stats.Signals),
		zap.Bool("latest_signal", rep.Latest != nil),
	)
	return rep, nil
}

// Build は与えられた系列からレポートを組み立てます。入力が同じなら結果も同じです。
func Build(cs []candle.Candle, n int, rr float64, lookahead int) (entity.Report, error) {
	sigs, err := breakout.Scan(cs, n, rr)
	if err != nil {
		return entity.Report{}, err
	}

	rep := entity.Report{
		Count:    len(cs),
		Lookback: n,
		Signals:  make([]entity.SignalResult, 0, len(sigs)),
		Stats:    entity.Stats{RR: rr, Signals: len(sigs)},
	}
	if len(cs) > 0 {
		rep.TimeRange = entity.TimeRange{Start: cs[0].Time, End: cs[len(cs)-1].Time}
	}
	for _, c := range cs {
		switch {
		case c.Close > c.Open:
			rep.Stats.Bullish++
		case c.Close < c.Open:
			rep.Stats.Bearish++
		}
	}

	for _, s := range sigs {
		out := breakout.Resolve(cs, s, lookahead)
		rep.Signals = append(rep.Signals, entity.SignalResult{Signal: s, Outcome: out})
		switch out {
		case entity.OutcomeTarget:
			rep.Stats.Wins++
		case entity.OutcomeStopLoss:
			rep.Stats.Losses++
		case entity.OutcomeTimeLimit:
			rep.Stats.TimeLimit++
		default:
			rep.Stats.Pending++
		}
	}
	if resolved := rep.Stats.Wins + rep.Stats.Losses; resolved > 0 {
		rep.Stats.WinRate = float64(rep.Stats.Wins) / float64(resolved) * 100
	}

	if k := len(sigs); k > 0 && sigs[k-1].Index == len(cs)-1 {
		latest := sigs[k-1]
		rep.Latest = &latest
	}
	return rep, nil
}
