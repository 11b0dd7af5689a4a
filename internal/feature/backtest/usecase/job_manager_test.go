package usecase

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"forex_backend/internal/feature/backtest/domain/entity"
	candle "forex_backend/internal/feature/candles/domain/entity"
)

type mockRunner struct {
	RunFunc func(ctx context.Context, p entity.Params) (entity.TradeLog, error)
	calls   atomic.Int32
}

func (m *mockRunner) Run(ctx context.Context, p entity.Params) (entity.TradeLog, error) {
	m.calls.Add(1)
	return m.RunFunc(ctx, p)
}

var (
	jobStart = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	jobEnd   = time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC)
)

func validParams() entity.Params {
	return entity.Params{Symbol: "EUR/USD", Interval: "4h", Start: jobStart, End: jobEnd, Lookback: 20, RR: 2}
}

func sampleLog() entity.TradeLog {
	return entity.TradeLog{
		Trades:  []entity.Trade{{Direction: "long", EntryPrice: 1.1, Stop: 1.09, Target: 1.12, ExitPrice: 1.12, ExitReason: entity.ExitTarget, R: 2}},
		Metrics: entity.Metrics{TotalTrades: 1, Wins: 1, WinRate: 100, Expectancy: 2, TotalR: 2, ProfitFactor: 2, Signals: 1, BarsProcessed: 354},
	}
}

func newManager(t *testing.T, runner BacktestRunner, cfg JobConfig, start bool) (*JobManager, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC))
	m := NewJobManager(runner, cfg, clock, zaptest.NewLogger(t))
	if start {
		m.Start(context.Background())
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.Shutdown(ctx)
	})
	return m, clock
}

func waitStatus(t *testing.T, m *JobManager, id string, want entity.JobStatus) entity.Job {
	t.Helper()
	var got entity.Job
	require.Eventually(t, func() bool {
		j, err := m.Get(id)
		if err != nil {
			return false
		}
		got = j
		return j.Status == want
	}, 5*time.Second, 5*time.Millisecond)
	return got
}

// TestJobManager_SubmitAndPoll は投入直後は queued/running、完了後は succeeded で結果が取れることを検証します。
func TestJobManager_SubmitAndPoll(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	runner := &mockRunner{RunFunc: func(ctx context.Context, p entity.Params) (entity.TradeLog, error) {
		assert.Equal(t, validParams(), p)
		select {
		case <-release:
			return sampleLog(), nil
		case <-ctx.Done():
			return entity.TradeLog{}, ctx.Err()
		}
	}}
	m, clock := newManager(t, runner, JobConfig{Workers: 1, QueueSize: 4}, true)

	job, err := m.Submit(validParams())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(job.ID, "bt_"))
	assert.Equal(t, entity.StatusQueued, job.Status)
	assert.Equal(t, clock.Now(), job.CreatedAt)
	assert.Nil(t, job.Result)

	polled, err := m.Get(job.ID)
	require.NoError(t, err)
	assert.Contains(t, []entity.JobStatus{entity.StatusQueued, entity.StatusRunning}, polled.Status)

	waitStatus(t, m, job.ID, entity.StatusRunning)
	close(release)
	done := waitStatus(t, m, job.ID, entity.StatusSucceeded)

	require.NotNil(t, done.Result)
	assert.Equal(t, sampleLog(), *done.Result)
	assert.NotNil(t, done.StartedAt)
	assert.NotNil(t, done.FinishedAt)
	assert.Empty(t, done.Error)

	again, err := m.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, done, again)
	assert.Equal(t, int32(1), runner.calls.Load())
}

func TestJobManager_Defaults(t *testing.T) {
	t.Parallel()

	m, _ := newManager(t, &mockRunner{}, JobConfig{}, false)

	p := validParams()
	p.Interval = "4H"
	p.Lookback, p.RR = 0, 0
	job, err := m.Submit(p)
	require.NoError(t, err)
	assert.Equal(t, "4h", job.Params.Interval)
	assert.Equal(t, DefaultLookback, job.Params.Lookback)
	assert.Equal(t, DefaultRR, job.Params.RR)
}

func TestJobManager_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		run     func(ctx context.Context, p entity.Params) (entity.TradeLog, error)
		wantErr string
	}{
		{
			name: "runner error",
			run: func(ctx context.Context, p entity.Params) (entity.TradeLog, error) {
				return entity.TradeLog{}, ErrNoData
			},
			wantErr: ErrNoData.Error(),
		},
		{
			name: "runner panic",
			run: func(ctx context.Context, p entity.Params) (entity.TradeLog, error) {
				panic("boom")
			},
			wantErr: "backtest panicked: boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			m, _ := newManager(t, &mockRunner{RunFunc: tt.run}, JobConfig{Workers: 1}, true)
			job, err := m.Submit(validParams())
			require.NoError(t, err)

			done := waitStatus(t, m, job.ID, entity.StatusFailed)
			assert.Equal(t, tt.wantErr, done.Error)
			assert.Nil(t, done.Result)
			assert.NotNil(t, done.FinishedAt)
		})
	}
}

// TestJobManager_WorkerSurvivesPanic はpanic後も同じワーカーが次のジョブを処理することを検証します。
func TestJobManager_WorkerSurvivesPanic(t *testing.T) {
	t.Parallel()

	var n atomic.Int32
	runner := &mockRunner{RunFunc: func(ctx context.Context, p entity.Params) (entity.TradeLog, error) {
		if n.Add(1) == 1 {
			panic("first")
		}
		return sampleLog(), nil
	}}
	m, _ := newManager(t, runner, JobConfig{Workers: 1}, true)

	first, err := m.Submit(validParams())
	require.NoError(t, err)
	second, err := m.Submit(validParams())
	require.NoError(t, err)

	waitStatus(t, m, first.ID, entity.StatusFailed)
	waitStatus(t, m, second.ID, entity.StatusSucceeded)
}

func TestJobManager_Submit_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(p *entity.Params)
		wantErr error
	}{
		{name: "missing symbol", mutate: func(p *entity.Params) { p.Symbol = "" }, wantErr: ErrInvalidParams},
		{name: "end before start", mutate: func(p *entity.Params) { p.End = p.Start.Add(-time.Hour) }, wantErr: ErrInvalidParams},
		{name: "end equals start", mutate: func(p *entity.Params) { p.End = p.Start }, wantErr: ErrInvalidParams},
		{name: "missing start", mutate: func(p *entity.Params) { p.Start = time.Time{} }, wantErr: ErrInvalidParams},
		{name: "negative lookback", mutate: func(p *entity.Params) { p.Lookback = -1 }, wantErr: ErrInvalidParams},
		{name: "rr too large", mutate: func(p *entity.Params) { p.RR = 9 }, wantErr: ErrInvalidParams},
		{name: "unknown interval", mutate: func(p *entity.Params) { p.Interval = "3h" }, wantErr: candle.ErrUnknownTimeframe},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			m, _ := newManager(t, &mockRunner{}, JobConfig{}, false)
			p := validParams()
			tt.mutate(&p)

			_, err := m.Submit(p)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, m.List())
		})
	}
}

func TestJobManager_QueueFull(t *testing.T) {
	t.Parallel()

	m, _ := newManager(t, &mockRunner{}, JobConfig{Workers: 1, QueueSize: 1}, false)

	first, err := m.Submit(validParams())
	require.NoError(t, err)
	_, err = m.Submit(validParams())
	assert.ErrorIs(t, err, ErrQueueFull)

	jobs := m.List()
	require.Len(t, jobs, 1)
	assert.Equal(t, first.ID, jobs[0].ID)
}

func TestJobManager_NotFound(t *testing.T) {
	t.Parallel()

	m, _ := newManager(t, &mockRunner{}, JobConfig{}, false)

	_, err := m.Get("bt_missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
	_, err = m.Cancel("bt_missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestJobManager_CancelQueued(t *testing.T) {
	t.Parallel()

	runner := &mockRunner{RunFunc: func(ctx context.Context, p entity.Params) (entity.TradeLog, error) {
		return sampleLog(), nil
	}}
	m, _ := newManager(t, runner, JobConfig{Workers: 1}, false)

	job, err := m.Submit(validParams())
	require.NoError(t, err)

	snap, err := m.Cancel(job.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusQueued, snap.Status)

	m.Start(context.Background())
	done := waitStatus(t, m, job.ID, entity.StatusFailed)
	assert.Equal(t, "canceled", done.Error)
	assert.Nil(t, done.StartedAt)
	assert.Zero(t, runner.calls.Load())
}

func TestJobManager_CancelRunning(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	runner := &mockRunner{RunFunc: func(ctx context.Context, p entity.Params) (entity.TradeLog, error) {
		close(started)
		<-ctx.Done()
		return entity.TradeLog{}, ctx.Err()
	}}
	m, _ := newManager(t, runner, JobConfig{Workers: 1}, true)

	job, err := m.Submit(validParams())
	require.NoError(t, err)
	<-started

	_, err = m.Cancel(job.ID)
	require.NoError(t, err)
	done := waitStatus(t, m, job.ID, entity.StatusFailed)
	assert.Equal(t, "canceled", done.Error)
	assert.NotNil(t, done.StartedAt)

	_, err = m.Cancel(job.ID)
	assert.ErrorIs(t, err, ErrJobFinished)
}

func TestJobManager_ListOrder(t *testing.T) {
	t.Parallel()

	m, clock := newManager(t, &mockRunner{}, JobConfig{QueueSize: 8}, false)

	var ids []string
	for _, sym := range []string{"EUR/USD", "USD/JPY", "XAU/USD"} {
		p := validParams()
		p.Symbol = sym
		job, err := m.Submit(p)
		require.NoError(t, err)
		ids = append(ids, job.ID)
		clock.Advance(time.Second)
	}

	jobs := m.List()
	require.Len(t, jobs, 3)
	for i, j := range jobs {
		assert.Equal(t, ids[i], j.ID)
	}
	assert.True(t, jobs[0].CreatedAt.Before(jobs[2].CreatedAt))
}

// TestJobManager_Shutdown は停止時に待ち行列に残ったジョブがワーカーによって failed になることを検証します。
func TestJobManager_Shutdown(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	runner := &mockRunner{RunFunc: func(ctx context.Context, p entity.Params) (entity.TradeLog, error) {
		close(started)
		<-ctx.Done()
		return entity.TradeLog{}, ctx.Err()
	}}
	m, _ := newManager(t, runner, JobConfig{Workers: 1}, true)

	running, err := m.Submit(validParams())
	require.NoError(t, err)
	<-started
	queued, err := m.Submit(validParams())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))

	got, err := m.Get(queued.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusFailed, got.Status)
	assert.Equal(t, "shutting down", got.Error)
	assert.Nil(t, got.StartedAt)
	require.NotNil(t, got.FinishedAt)

	got, err = m.Get(running.ID)
	require.NoError(t, err)
	assert.Equal(t, "canceled", got.Error)
	assert.EqualValues(t, 1, runner.calls.Load())

	_, err = m.Submit(validParams())
	assert.ErrorIs(t, err, ErrShuttingDown)
}

// TestJobManager_ShutdownBeforeStart はワーカーがいなければ状態を書き換えないことを検証します。
func TestJobManager_ShutdownBeforeStart(t *testing.T) {
	t.Parallel()

	m, _ := newManager(t, &mockRunner{}, JobConfig{}, false)

	job, err := m.Submit(validParams())
	require.NoError(t, err)
	require.NoError(t, m.Shutdown(context.Background()))

	got, err := m.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusQueued, got.Status)

	_, err = m.Submit(validParams())
	assert.ErrorIs(t, err, ErrShuttingDown)
}

func TestJobManager_ShutdownCancelsRunning(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	runner := &mockRunner{RunFunc: func(ctx context.Context, p entity.Params) (entity.TradeLog, error) {
		close(started)
		<-ctx.Done()
		return entity.TradeLog{}, ctx.Err()
	}}
	m, _ := newManager(t, runner, JobConfig{Workers: 1}, true)

	job, err := m.Submit(validParams())
	require.NoError(t, err)
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))

	got, err := m.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusFailed, got.Status)
	assert.Equal(t, "canceled", got.Error)
}

func TestJobManager_EvictsOldestFinished(t *testing.T) {
	t.Parallel()

	runner := &mockRunner{RunFunc: func(ctx context.Context, p entity.Params) (entity.TradeLog, error) {
		return sampleLog(), nil
	}}
	m, _ := newManager(t, runner, JobConfig{Workers: 1, MaxJobs: 2}, true)

	var ids []string
	for i := 0; i < 3; i++ {
		job, err := m.Submit(validParams())
		require.NoError(t, err)
		waitStatus(t, m, job.ID, entity.StatusSucceeded)
		ids = append(ids, job.ID)
	}

	_, err := m.Get(ids[0])
	assert.True(t, errors.Is(err, ErrJobNotFound))
	jobs := m.List()
	require.Len(t, jobs, 2)
	assert.Equal(t, ids[1], jobs[0].ID)
	assert.Equal(t, ids[2], jobs[1].ID)
}
