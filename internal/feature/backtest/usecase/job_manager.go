package usecase

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"forex_backend/internal/feature/backtest/domain/entity"
	candle "forex_backend/internal/feature/candles/domain/entity"
	"forex_backend/internal/shared/jobqueue"
	"forex_backend/internal/shared/validation"
)

const (
	DefaultLookback = 20
	DefaultRR       = 2.0
	idPrefix        = "bt_"
)

// BacktestRunner は1件のバックテストを同期実行します。
type BacktestRunner interface {
	Run(ctx context.Context, p entity.Params) (entity.TradeLog, error)
}

// JobConfig はワーカープールの設定です。
type JobConfig struct {
	Workers   int
	QueueSize int
	// MaxJobs を超えたら古い終了済みジョブから破棄します。0 なら無制限です。
	MaxJobs int
}

// JobManager はバックテストジョブを受け付け、固定数のワーカーで実行します。
// ジョブの状態を遷移させるのはそのジョブを実行するワーカーだけです。
type JobManager struct {
	jobs     *jobqueue.Manager[entity.Params, entity.TradeLog]
	validate *validator.Validate
}

// NewJobManager は JobManager を作成します。ワーカーは Start で起動します。
func NewJobManager(runner BacktestRunner, cfg JobConfig, clock clockwork.Clock, logger *zap.Logger) *JobManager {
	return &JobManager{
		jobs: jobqueue.New[entity.Params, entity.TradeLog](runner.Run, jobqueue.Config{
			Name:      "backtest",
			IDPrefix:  idPrefix,
			Workers:   cfg.Workers,
			QueueSize: cfg.QueueSize,
			MaxJobs:   cfg.MaxJobs,
		}, clock, logger),
		validate: validation.New(),
	}
}

// Start はワーカーを起動します。ctx がキャンセルされるとワーカーは停止します。
func (m *JobManager) Start(ctx context.Context) { m.jobs.Start(ctx) }

// Shutdown は新規受付を止め、実行中のジョブをキャンセルしてワーカーの終了を待ちます。
// 待ち行列に残ったジョブはワーカーが failed にします。
func (m *JobManager) Shutdown(ctx context.Context) error { return m.jobs.Shutdown(ctx) }

// Submit はパラメータを検証してジョブを queued で登録し、すぐに返します。
func (m *JobManager) Submit(p entity.Params) (entity.Job, error) {
	if p.Lookback == 0 {
		p.Lookback = DefaultLookback
	}
	if p.RR == 0 {
		p.RR = DefaultRR
	}
	if err := m.validate.Struct(p); err != nil {
		return entity.Job{}, fmt.Errorf("%w: %s", ErrInvalidParams, validation.Describe(err))
	}
	tf, err := candle.ParseTimeframe(p.Interval)
	if err != nil {
		return entity.Job{}, err
	}
	p.Interval = tf.Key
	p.Start, p.End = p.Start.UTC(), p.End.UTC()

	rec, err := m.jobs.Submit(p)
	if err != nil {
		return entity.Job{}, err
	}
	return toJob(rec), nil
}

// Get はジョブのスナップショットを返します。ブロックしません。
// MaxJobs を超えて破棄された終了済みジョブは、完了後でも ErrJobNotFound になります。
func (m *JobManager) Get(id string) (entity.Job, error) {
	rec, err := m.jobs.Get(id)
	if err != nil {
		return entity.Job{}, err
	}
	return toJob(rec), nil
}

// List は全ジョブのスナップショットを登録順に返します。
func (m *JobManager) List() []entity.Job {
	recs := m.jobs.List()
	out := make([]entity.Job, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toJob(rec))
	}
	return out
}

// Cancel はジョブにキャンセルを要求します。状態の遷移は担当ワーカーが行います。
func (m *JobManager) Cancel(id string) (entity.Job, error) {
	rec, err := m.jobs.Cancel(id)
	if err != nil {
		return entity.Job{}, err
	}
	return toJob(rec), nil
}

func toJob(rec jobqueue.Record[entity.Params, entity.TradeLog]) entity.Job {
	return entity.Job{
		ID:         rec.ID,
		Status:     entity.JobStatus(rec.Status),
		Params:     rec.Params,
		CreatedAt:  rec.CreatedAt,
		StartedAt:  rec.StartedAt,
		FinishedAt: rec.FinishedAt,
		Result:     rec.Result,
		Error:      rec.Error,
	}.Clone()
}
