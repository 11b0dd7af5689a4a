package ratelimiter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var t0 = time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)

func newTestLimiter(t *testing.T, cfg Config) (*RateLimiter, *clockwork.FakeClock) {
	t.Helper()
	fc := clockwork.NewFakeClockAt(t0)
	return NewRateLimiter(cfg, fc, zaptest.NewLogger(t)), fc
}

func TestNewRateLimiter_Defaults(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(Config{}, nil, nil)

	assert.Equal(t, DefaultPerMinute, rl.perMinute)
	assert.Equal(t, DefaultPerDay, rl.perDay)
	assert.Equal(t, time.Minute, rl.interval)
	assert.NotNil(t, rl.clock)
}

func TestRateLimiter_Acquire_NinthCallWaitsForOldestGrant(t *testing.T) {
	t.Parallel()

	rl, fc := newTestLimiter(t, Config{PerMinute: 8, PerDay: 800})
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		require.NoError(t, rl.Acquire(ctx), "acquire %d should not block", i+1)
	}

	done := make(chan error, 1)
	go func() { done <- rl.Acquire(ctx) }()

	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, fc.BlockUntilContext(waitCtx, 1), "9th acquire should be waiting on the clock")

	select {
	case <-done:
		t.Fatal("9th acquire returned before the window rolled")
	default:
	}

	fc.Advance(60 * time.Second)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("9th acquire did not return after the oldest grant aged out")
	}

	st := rl.State()
	assert.Equal(t, 7, st.MinuteRemaining, "grants at t0 have aged out, the 9th is alone in the window")
	assert.Equal(t, 800-9, st.DayRemaining)
}

func TestRateLimiter_Acquire_DayQuotaFailsFast(t *testing.T) {
	t.Parallel()

	rl, fc := newTestLimiter(t, Config{PerMinute: 10, PerDay: 3})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, rl.Acquire(ctx))
	}

	err := rl.Acquire(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrQuotaExceeded))

	var qe *QuotaError
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), qe.ResetAt)

	// UTC 0時を過ぎると日の枠は戻る
	fc.Advance(12 * time.Hour)
	require.NoError(t, rl.Acquire(ctx))
	assert.Equal(t, 2, rl.State().DayRemaining)
}

func TestRateLimiter_Acquire_ContextCanceledWhileWaiting(t *testing.T) {
	t.Parallel()

	rl, fc := newTestLimiter(t, Config{PerMinute: 1, PerDay: 10})
	require.NoError(t, rl.Acquire(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rl.Acquire(ctx) }()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()
	require.NoError(t, fc.BlockUntilContext(waitCtx, 1))

	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("acquire did not observe cancellation")
	}
	assert.Equal(t, 9, rl.State().DayRemaining, "a canceled acquire must not consume the day quota")
}

func TestRateLimiter_Acquire_CanceledContextBeforeCall(t *testing.T) {
	t.Parallel()

	rl, _ := newTestLimiter(t, Config{PerMinute: 8, PerDay: 800})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, rl.Acquire(ctx), context.Canceled)
	assert.Equal(t, 800, rl.State().DayRemaining)
}

func TestRateLimiter_SlidingWindowNeverExceedsQuota(t *testing.T) {
	t.Parallel()

	const perMinute = 8
	rl, fc := newTestLimiter(t, Config{PerMinute: perMinute, PerDay: 800})
	ctx := context.Background()

	cadence := []time.Duration{0, 1 * time.Second, 7 * time.Second, 13 * time.Second, 2 * time.Second, 29 * time.Second}
	var granted []time.Time
	for i := 0; i < 40; i++ {
		fc.Advance(cadence[i%len(cadence)])
		if st := rl.State(); st.MinuteRemaining == 0 {
			fc.Advance(st.MinuteResetAt.Sub(fc.Now()))
		}
		require.NoError(t, rl.Acquire(ctx))
		granted = append(granted, fc.Now())
	}

	for i := range granted {
		inWindow := 0
		for j := i; j < len(granted) && granted[j].Sub(granted[i]) < time.Minute; j++ {
			inWindow++
		}
		assert.LessOrEqual(t, inWindow, perMinute, "window starting at grant %d", i)
	}
}

func TestRateLimiter_State(t *testing.T) {
	t.Parallel()

	rl, fc := newTestLimiter(t, Config{PerMinute: 8, PerDay: 800})
	ctx := context.Background()

	st := rl.State()
	assert.Equal(t, 8, st.MinuteRemaining)
	assert.Equal(t, 800, st.DayRemaining)
	assert.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), st.DayResetAt)

	require.NoError(t, rl.Acquire(ctx))
	fc.Advance(10 * time.Second)
	require.NoError(t, rl.Acquire(ctx))

	st = rl.State()
	assert.Equal(t, 6, st.MinuteRemaining)
	assert.Equal(t, t0.Add(time.Minute), st.MinuteResetAt)
	assert.Equal(t, 798, st.DayRemaining)

	fc.Advance(50 * time.Second)
	st = rl.State()
	assert.Equal(t, 7, st.MinuteRemaining, "the first grant has aged out")
}

func TestQuotaError(t *testing.T) {
	t.Parallel()

	err := &QuotaError{ResetAt: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)}

	assert.ErrorIs(t, err, ErrQuotaExceeded)
	assert.Contains(t, err.Error(), "2024-03-05T00:00:00Z")
}
