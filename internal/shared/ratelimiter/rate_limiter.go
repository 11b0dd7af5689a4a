package ratelimiter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const (
	// DefaultPerMinute は Twelve Data 無料プランの1分あたりの呼び出し上限です。
	DefaultPerMinute = 8
	// DefaultPerDay は Twelve Data 無料プランの1日あたりの呼び出し上限です。
	DefaultPerDay = 800
)

// ErrQuotaExceeded は当日の呼び出し枠を使い切ったことを表します。
// 待機しても当日中は回復しないため、Acquire はブロックせずに即座に返します。
var ErrQuotaExceeded = errors.New("daily quota exceeded")

// QuotaError は ErrQuotaExceeded にリセット時刻を付与したエラーです。
type QuotaError struct {
	ResetAt time.Time
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("%s (resets at %s)", ErrQuotaExceeded, e.ResetAt.UTC().Format(time.RFC3339))
}

func (e *QuotaError) Is(target error) bool { return target == ErrQuotaExceeded }

// RateLimiterInterface は外部API呼び出しの頻度を制限するインターフェースです。
type RateLimiterInterface interface {
	Acquire(ctx context.Context) error
}

// Config はレートリミッターの枠を表します。
type Config struct {
	PerMinute int
	PerDay    int
	// Interval は分単位ウィンドウの長さです。ゼロなら1分。
	Interval time.Duration
}

// State は残り枠のスナップショットです。
type State struct {
	MinuteRemaining int
	MinuteResetAt   time.Time
	DayRemaining    int
	DayResetAt      time.Time
}

// RateLimiter は分単位(スライディングログ)と日単位(UTC 0時リセット)の二重の枠で呼び出しを制限します。
// プロセス内で1つを共有し、すべての Fetcher から利用します。
type RateLimiter struct {
	clock  clockwork.Clock
	logger *zap.Logger

	perMinute int
	perDay    int
	interval  time.Duration

	// acquireMu は Acquire を直列化します。待機中も保持されます。
	acquireMu sync.Mutex

	mu         sync.Mutex
	grants     []time.Time
	dayCount   int
	dayResetAt time.Time
}

// NewRateLimiter は新しい RateLimiter を生成します。
func NewRateLimiter(cfg Config, clock clockwork.Clock, logger *zap.Logger) *RateLimiter {
	if cfg.PerMinute <= 0 {
		cfg.PerMinute = DefaultPerMinute
	}
	if cfg.PerDay <= 0 {
		cfg.PerDay = DefaultPerDay
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimiter{
		clock:      clock,
		logger:     logger,
		perMinute:  cfg.PerMinute,
		perDay:     cfg.PerDay,
		interval:   cfg.Interval,
		grants:     make([]time.Time, 0, cfg.PerMinute),
		dayResetAt: nextUTCMidnight(clock.Now()),
	}
}

// Acquire は両方の枠に空きがあれば即座にトークンを消費して返します。
// 分の枠が埋まっている場合は最古の付与が期限切れになるまで待機し、
// 日の枠が尽きている場合は待機せずに ErrQuotaExceeded を返します。
func (rl *RateLimiter) Acquire(ctx context.Context) error {
	rl.acquireMu.Lock()
	defer rl.acquireMu.Unlock()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		rl.mu.Lock()
		now := rl.clock.Now().UTC()
		rl.rollDay(now)
		if rl.dayCount >= rl.perDay {
			resetAt := rl.dayResetAt
			rl.mu.Unlock()
			return &QuotaError{ResetAt: resetAt}
		}
		rl.prune(now)
		if len(rl.grants) < rl.perMinute {
			rl.grants = append(rl.grants, now)
			rl.dayCount++
			rl.mu.Unlock()
			return nil
		}
		wait := rl.grants[0].Add(rl.interval).Sub(now)
		rl.mu.Unlock()

		if wait <= 0 {
			continue
		}
		rl.logger.Info("rate limit reached, waiting",
			zap.Int("per_minute", rl.perMinute),
			zap.Duration("wait", wait),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-rl.clock.After(wait):
		}
	}
}

// State は現在の残り枠を返します。
func (rl *RateLimiter) State() State {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock.Now().UTC()
	rl.rollDay(now)
	rl.prune(now)

	minuteResetAt := now
	if len(rl.grants) > 0 {
		minuteResetAt = rl.grants[0].Add(rl.interval)
	}
	return State{
		MinuteRemaining: rl.perMinute - len(rl.grants),
		MinuteResetAt:   minuteResetAt,
		DayRemaining:    rl.perDay - rl.dayCount,
		DayResetAt:      rl.dayResetAt,
	}
}

// prune は分ウィンドウから外れた付与を取り除きます。呼び出し側が mu を保持していること。
func (rl *RateLimiter) prune(now time.Time) {
	i := 0
	for i < len(rl.grants) && now.Sub(rl.grants[i]) >= rl.interval {
		i++
	}
	if i > 0 {
		rl.grants = append(rl.grants[:0], rl.grants[i:]...)
	}
}

// rollDay は UTC 0時を跨いでいれば日の枠をリセットします。呼び出し側が mu を保持していること。
func (rl *RateLimiter) rollDay(now time.Time) {
	if now.Before(rl.dayResetAt) {
		return
	}
	rl.dayCount = 0
	rl.dayResetAt = nextUTCMidnight(now)
}

func nextUTCMidnight(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
}
