// Package jobqueue は非同期ジョブを有界の待ち行列と固定数のワーカーで実行します。
//
// ジョブの状態を queued から先へ遷移させるのは、そのジョブを待ち行列から取り出したワーカーだけです。
// Cancel はキャンセル要求を記録するだけで、遷移はワーカーが行います。
package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Status はジョブの状態です。queued -> running -> succeeded | failed。終了状態は変わりません。
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Finished は終了状態かどうかを返します。
func (s Status) Finished() bool {
	return s == StatusSucceeded || s == StatusFailed
}

const (
	// CanceledMessage はキャンセルされたジョブの Error です。
	CanceledMessage = "canceled"
	// ShuttingDownMessage は停止時に待ち行列に残っていたジョブの Error です。
	ShuttingDownMessage = "shutting down"
)

var (
	ErrNotFound     = errors.New("job not found")
	ErrFinished     = errors.New("job already finished")
	ErrQueueFull    = errors.New("job queue is full")
	ErrShuttingDown = errors.New("job manager is shutting down")

	errShuttingDown = errors.New(ShuttingDownMessage)
)

// Record はジョブ1件のスナップショットです。Result は終了後に書き換えられません。
type Record[P, R any] struct {
	ID         string
	Status     Status
	Params     P
	CreatedAt  time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time
	Result     *R
	Error      string
}

// RunFunc はジョブ1件を同期実行します。ctx は Cancel と停止処理で閉じられます。
type RunFunc[P, R any] func(ctx context.Context, p P) (R, error)

// Config はワーカープールの設定です。
type Config struct {
	Name      string // ログとパニック時のエラーに使う種別名
	IDPrefix  string
	Workers   int
	QueueSize int
	// MaxJobs を超えたら古い終了済みジョブから破棄します。0 なら無制限です。
	MaxJobs int
}

func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = "job"
	}
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 16
	}
	return c
}

type entry[P, R any] struct {
	rec       Record[P, R]
	cancel    context.CancelFunc // running 中のみ非nil
	cancelReq bool
}

// Manager はジョブを受け付け、固定数のワーカーで実行します。
type Manager[P, R any] struct {
	run    RunFunc[P, R]
	cfg    Config
	clock  clockwork.Clock
	logger *zap.Logger

	mu      sync.RWMutex
	jobs    map[string]*entry[P, R]
	order   []string
	closing bool

	queue chan string
	stop  context.CancelFunc
	group *errgroup.Group
}

// New は Manager を作成します。ワーカーは Start で起動します。
func New[P, R any](run RunFunc[P, R], cfg Config, clock clockwork.Clock, logger *zap.Logger) *Manager[P, R] {
	cfg = cfg.withDefaults()
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager[P, R]{
		run:    run,
		cfg:    cfg,
		clock:  clock,
		logger: logger.With(zap.String("kind", cfg.Name)),
		jobs:   make(map[string]*entry[P, R]),
		queue:  make(chan string, cfg.QueueSize),
	}
}

// Start はワーカーを起動します。ctx がキャンセルされるとワーカーは待ち行列を片付けて停止します。
func (m *Manager[P, R]) Start(ctx context.Context) {
	ctx, m.stop = context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < m.cfg.Workers; i++ {
		g.Go(func() error {
			m.work(gctx)
			return nil
		})
	}
	m.group = g
	m.logger.Info("workers started", zap.Int("workers", m.cfg.Workers), zap.Int("queue_size", m.cfg.QueueSize))
}

// Shutdown は新規受付を止め、実行中のジョブをキャンセルしてワーカーの終了を待ちます。
// 待ち行列に残ったジョブはワーカーが停止前に failed ("shutting down") にします。
// Start 前に呼ばれた場合、待ち行列のジョブは queued のまま残ります。
func (m *Manager[P, R]) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closing = true
	m.mu.Unlock()

	if m.stop != nil {
		m.stop()
	}
	if m.group == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		_ = m.group.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit はジョブを queued で登録し、すぐに返します。待ち行列が満杯なら記録せずに ErrQueueFull を返します。
func (m *Manager[P, R]) Submit(p P) (Record[P, R], error) {
	e := &entry[P, R]{rec: Record[P, R]{
		ID:        m.cfg.IDPrefix + uuid.NewString(),
		Status:    StatusQueued,
		Params:    p,
		CreatedAt: m.clock.Now().UTC(),
	}}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closing {
		return Record[P, R]{}, ErrShuttingDown
	}
	select {
	case m.queue <- e.rec.ID:
	default:
		return Record[P, R]{}, ErrQueueFull
	}
	m.jobs[e.rec.ID] = e
	m.order = append(m.order, e.rec.ID)
	m.evictLocked()

	m.logger.Info("job queued", zap.String("job_id", e.rec.ID))
	return e.rec, nil
}

// Get はジョブのスナップショットを返します。ブロックしません。
// MaxJobs を超えて破棄された終了済みジョブは ErrNotFound になります。
func (m *Manager[P, R]) Get(id string) (Record[P, R], error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.jobs[id]
	if !ok {
		return Record[P, R]{}, ErrNotFound
	}
	return e.rec, nil
}

// List は保持している全ジョブのスナップショットを登録順に返します。
func (m *Manager[P, R]) List() []Record[P, R] {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Record[P, R], 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.jobs[id].rec)
	}
	return out
}

// Cancel はジョブにキャンセルを要求します。状態の遷移は担当ワーカーが行います。
func (m *Manager[P, R]) Cancel(id string) (Record[P, R], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.jobs[id]
	if !ok {
		return Record[P, R]{}, ErrNotFound
	}
	if e.rec.Status.Finished() {
		return Record[P, R]{}, ErrFinished
	}
	e.cancelReq = true
	if e.cancel != nil {
		e.cancel()
	}
	return e.rec, nil
}

func (m *Manager[P, R]) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			m.drain()
			return
		case id := <-m.queue:
			if ctx.Err() != nil {
				m.drain(id)
				return
			}
			m.execute(ctx, id)
		}
	}
}

// drain は受付を閉じ、pending と待ち行列に残ったジョブを failed にします。
func (m *Manager[P, R]) drain(pending ...string) {
	m.mu.Lock()
	m.closing = true
	m.mu.Unlock()

	var zero R
	for _, id := range pending {
		m.finish(id, zero, errShuttingDown)
	}
	for {
		select {
		case id := <-m.queue:
			m.finish(id, zero, errShuttingDown)
		default:
			return
		}
	}
}

func (m *Manager[P, R]) execute(ctx context.Context, id string) {
	var zero R
	jctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m.mu.Lock()
	e, ok := m.jobs[id]
	if !ok || e.rec.Status != StatusQueued {
		m.mu.Unlock()
		return
	}
	if e.cancelReq {
		m.mu.Unlock()
		m.finish(id, zero, context.Canceled)
		return
	}
	now := m.clock.Now().UTC()
	e.rec.Status = StatusRunning
	e.rec.StartedAt = &now
	e.cancel = cancel
	params := e.rec.Params
	m.mu.Unlock()

	m.logger.Info("job started", zap.String("job_id", id))
	res, err := m.safeRun(jctx, params)
	m.finish(id, res, err)
}

// safeRun は run を呼び出し、panic をエラーに変換します。
func (m *Manager[P, R]) safeRun(ctx context.Context, p P) (res R, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s panicked: %v", m.cfg.Name, r)
		}
	}()
	return m.run(ctx, p)
}

func (m *Manager[P, R]) finish(id string, res R, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.jobs[id]
	if !ok || e.rec.Status.Finished() {
		return
	}
	now := m.clock.Now().UTC()
	e.rec.FinishedAt = &now
	e.cancel = nil

	switch {
	case err == nil:
		e.rec.Status = StatusSucceeded
		e.rec.Result = &res
	case e.cancelReq || errors.Is(err, context.Canceled):
		e.rec.Status = StatusFailed
		e.rec.Error = CanceledMessage
	default:
		e.rec.Status = StatusFailed
		e.rec.Error = err.Error()
	}

	fields := []zap.Field{zap.String("job_id", id), zap.String("status", string(e.rec.Status))}
	if e.rec.StartedAt != nil {
		fields = append(fields, zap.Duration("elapsed", now.Sub(*e.rec.StartedAt)))
	}
	if e.rec.Error != "" {
		m.logger.Warn("job failed", append(fields, zap.String("error", e.rec.Error))...)
	} else {
		m.logger.Info("job finished", fields...)
	}
	m.evictLocked()
}

// evictLocked は MaxJobs を超えた分の終了済みジョブを古い順に破棄します。
func (m *Manager[P, R]) evictLocked() {
	if m.cfg.MaxJobs <= 0 || len(m.jobs) <= m.cfg.MaxJobs {
		return
	}
	kept := m.order[:0]
	for _, id := range m.order {
		if len(m.jobs) > m.cfg.MaxJobs && m.jobs[id].rec.Status.Finished() {
			delete(m.jobs, id)
			continue
		}
		kept = append(kept, id)
	}
	m.order = kept
}
