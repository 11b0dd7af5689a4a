package usecase

import (
	"context"

	"forex_backend/internal/feature/analysis/breakout"
	analysis "forex_backend/internal/feature/analysis/domain/entity"
	"forex_backend/internal/feature/backtest/domain/entity"
	candle "forex_backend/internal/feature/candles/domain/entity"
)

// cancelCheckEvery はコンテキストを確認する間隔(バー数)です。
const cancelCheckEvery = 256

// position は保有中のトレードと、それを開いたシグナルです。
type position struct {
	trade entity.Trade
	sig   analysis.Signal
}

// Replay はバーを1本ずつ再生してブレイクアウト戦略を検証します。
// 各バーでは先に保有ポジションの決済を判定し、その後にシグナルを評価します。
// エントリーはシグナルバーの終値で、決済判定は次のバーから行います。
// 同一入力に対して結果は常に同一です。
func Replay(ctx context.Context, cs []candle.Candle, lookback int, rr float64) (entity.TradeLog, error) {
	if err := breakout.Validate(lookback, rr); err != nil {
		return entity.TradeLog{}, err
	}

	log := entity.TradeLog{Trades: []entity.Trade{}}
	lv := breakout.PriorLevels(cs, lookback)
	var open *position

	for t := range cs {
		if t%cancelCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return entity.TradeLog{}, err
			}
		}

		if open != nil {
			if tr, closed := exit(cs[t], open); closed {
				log.Trades = append(log.Trades, tr)
				open = nil
			}
		}

		sig, ok := lv.At(cs, t, rr)
		if !ok {
			continue
		}
		log.Metrics.Signals++
		if open == nil {
			open = &position{
				sig: sig,
				trade: entity.Trade{
					Direction:  sig.Direction,
					EntryTime:  sig.EntryTime,
					EntryPrice: sig.Entry,
					Stop:       sig.Stop,
					Target:     sig.Target,
				},
			}
		}
	}

	if open != nil {
		tr := open.trade
		log.OpenPosition = &tr
	}
	log.Metrics = summarize(log.Trades, log.Metrics.Signals, len(cs))
	return log, nil
}

// exit はバー b で保有ポジションが決済されるかを判定します。
// ストップ側に窓を開けた場合は始値、それ以外はストップ/ターゲット価格で約定します。
func exit(b candle.Candle, p *position) (entity.Trade, bool) {
	hit, isTarget := breakout.Touch(b, p.sig)
	if !hit {
		return entity.Trade{}, false
	}
	tr := p.trade
	tr.ExitTime = b.Time
	switch {
	case isTarget:
		tr.ExitReason = entity.ExitTarget
		tr.ExitPrice = p.sig.Target
	case gappedThroughStop(b, p.sig):
		tr.ExitReason = entity.ExitStop
		tr.ExitPrice = b.Open
	default:
		tr.ExitReason = entity.ExitStop
		tr.ExitPrice = p.sig.Stop
	}
	tr.R = rMultiple(tr)
	return tr, true
}

func gappedThroughStop(b candle.Candle, sig analysis.Signal) bool {
	if sig.Direction == analysis.Long {
		return b.Open < sig.Stop
	}
	return b.Open > sig.Stop
}

func rMultiple(tr entity.Trade) float64 {
	risk := tr.EntryPrice - tr.Stop
	move := tr.ExitPrice - tr.EntryPrice
	if tr.Direction == analysis.Short {
		risk = tr.Stop - tr.EntryPrice
		move = tr.EntryPrice - tr.ExitPrice
	}
	if risk <= 0 {
		return 0
	}
	return move / risk
}

// summarize は決済済みトレードから集計値を計算します。
// 損失トレードがない場合のプロフィットファクターは総利益(R)です。
func summarize(trades []entity.Trade, signals, bars int) entity.Metrics {
	m := entity.Metrics{TotalTrades: len(trades), Signals: signals, BarsProcessed: bars}
	if len(trades) == 0 {
		return m
	}

	var grossProfit, grossLoss, cum, peak float64
	for _, tr := range trades {
		if tr.R > 0 {
			m.Wins++
			grossProfit += tr.R
		} else {
			m.Losses++
			grossLoss -= tr.R
		}
		cum += tr.R
		peak = max(peak, cum)
		m.MaxDrawdown = max(m.MaxDrawdown, peak-cum)
	}

	m.TotalR = cum
	m.Expectancy = cum / float64(len(trades))
	m.WinRate = float64(m.Wins) / float64(len(trades)) * 100
	if grossLoss > 0 {
		m.ProfitFactor = grossProfit / grossLoss
	} else {
		m.ProfitFactor = grossProfit
	}
	return m
}
