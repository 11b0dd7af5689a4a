// Package breakout detects N-bar breakouts. Everything here is a pure function of its inputs.
package breakout

import (
	"errors"
	"fmt"

	"github.com/markcheno/go-talib"

	"forex_backend/internal/feature/analysis/domain/entity"
	candle "forex_backend/internal/feature/candles/domain/entity"
)

// DefaultLookahead is how many bars after a signal Resolve inspects.
const DefaultLookahead = 50

var (
	ErrInvalidLookback = errors.New("lookback must be at least 1")
	ErrInvalidRR       = errors.New("risk:reward must be positive")
	ErrShortWindow     = errors.New("window shorter than lookback+1 bars")
)

// Validate checks the lookback and risk:reward parameters.
func Validate(n int, rr float64) error {
	if n < 1 {
		return ErrInvalidLookback
	}
	if !(rr > 0) {
		return ErrInvalidRR
	}
	return nil
}

// Levels holds, for each bar t, the highest high and lowest low of bars [t-n, t-1].
// Entries before index n are zero.
type Levels struct {
	N         int
	PriorHigh []float64
	PriorLow  []float64
}

// PriorLevels computes the rolling prior N-bar extremes for the whole series.
func PriorLevels(cs []candle.Candle, n int) Levels {
	lv := Levels{N: n, PriorHigh: make([]float64, len(cs)), PriorLow: make([]float64, len(cs))}
	if n < 1 || len(cs) <= n {
		return lv
	}
	if n == 1 {
		// talib.Max/Min は period < 2 を扱えない
		for t := 1; t < len(cs); t++ {
			lv.PriorHigh[t] = cs[t-1].High
			lv.PriorLow[t] = cs[t-1].Low
		}
		return lv
	}
	highs := make([]float64, len(cs))
	lows := make([]float64, len(cs))
	for i, c := range cs {
		highs[i], lows[i] = c.High, c.Low
	}
	// talib.Max(x, n)[i] is max(x[i-n+1..i]); shift by one bar to exclude the evaluation bar.
	maxH := talib.Max(highs, n)
	minL := talib.Min(lows, n)
	for t := n; t < len(cs); t++ {
		lv.PriorHigh[t] = maxH[t-1]
		lv.PriorLow[t] = minL[t-1]
	}
	return lv
}

// At evaluates bar t against the prior levels. t must be >= lv.N.
func (lv Levels) At(cs []candle.Candle, t int, rr float64) (entity.Signal, bool) {
	if t < lv.N || t >= len(cs) {
		return entity.Signal{}, false
	}
	c := cs[t]
	hi, lo := lv.PriorHigh[t], lv.PriorLow[t]
	sig := entity.Signal{Index: t, EntryTime: c.Time, Entry: c.Close, PriorHigh: hi, PriorLow: lo}
	switch {
	case c.Close > hi:
		sig.Direction = entity.Long
		sig.Stop = lo
		sig.Target = c.Close + rr*(c.Close-lo)
	case c.Close < lo:
		sig.Direction = entity.Short
		sig.Stop = hi
		sig.Target = c.Close - rr*(hi-c.Close)
	default:
		return entity.Signal{}, false
	}
	if sig.Risk() <= 0 {
		return entity.Signal{}, false
	}
	return sig, true
}

// Evaluate checks the most recent bar of window against the N bars before it.
// It returns nil when no breakout fires.
func Evaluate(window []candle.Candle, n int, rr float64) (*entity.Signal, error) {
	if err := Validate(n, rr); err != nil {
		return nil, err
	}
	if len(window) < n+1 {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrShortWindow, len(window), n+1)
	}
	tail := window[len(window)-n-1:]
	sig, ok := PriorLevels(tail, n).At(tail, n, rr)
	if !ok {
		return nil, nil
	}
	sig.Index = len(window) - 1
	return &sig, nil
}

// Scan evaluates every bar t >= n in order and returns the signals that fire.
func Scan(cs []candle.Candle, n int, rr float64) ([]entity.Signal, error) {
	if err := Validate(n, rr); err != nil {
		return nil, err
	}
	lv := PriorLevels(cs, n)
	var out []entity.Signal
	for t := n; t < len(cs); t++ {
		if sig, ok := lv.At(cs, t, rr); ok {
			out = append(out, sig)
		}
	}
	return out, nil
}

// Resolve looks at up to lookahead bars after the signal and reports which level was touched first.
// A bar touching both levels counts as a stop unless it opened at or beyond the target.
func Resolve(cs []candle.Candle, sig entity.Signal, lookahead int) entity.Outcome {
	if lookahead <= 0 {
		lookahead = DefaultLookahead
	}
	last := sig.Index + lookahead
	for j := sig.Index + 1; j <= last && j < len(cs); j++ {
		if hit, isTarget := Touch(cs[j], sig); hit {
			if isTarget {
				return entity.OutcomeTarget
			}
			return entity.OutcomeStopLoss
		}
	}
	if last < len(cs) {
		return entity.OutcomeTimeLimit
	}
	return entity.OutcomePending
}

// Touch reports whether bar b reaches the stop or target of sig, and if so whether the target wins.
func Touch(b candle.Candle, sig entity.Signal) (hit, isTarget bool) {
	var stopHit, targetHit, openedBeyondTarget bool
	if sig.Direction == entity.Long {
		stopHit = b.Low <= sig.Stop
		targetHit = b.High >= sig.Target
		openedBeyondTarget = b.Open >= sig.Target
	} else {
		stopHit = b.High >= sig.Stop
		targetHit = b.Low <= sig.Target
		openedBeyondTarget = b.Open <= sig.Target
	}
	switch {
	case openedBeyondTarget:
		return true, true
	case stopHit:
		return true, false
	case targetHit:
		return true, true
	}
	return false, false
}
