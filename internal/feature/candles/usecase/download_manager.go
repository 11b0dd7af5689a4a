package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"forex_backend/internal/feature/candles/domain/entity"
	"forex_backend/internal/shared/jobqueue"
	"forex_backend/internal/shared/validation"
)

const (
	DefaultDownloadInterval = "1min"
	DefaultDownloadDays     = 365
	downloadIDPrefix        = "dl_"
)

// ErrInvalidDownload はダウンロードジョブのパラメータが不正であることを表します。
var ErrInvalidDownload = errors.New("invalid download params")

// DownloadJob はダウンロードジョブのスナップショットです。Result は succeeded のときだけ入ります。
type DownloadJob = jobqueue.Record[entity.DownloadParams, IngestSummary]

// LastDaysIngester は直近 N 日の取り込みを行います。
type LastDaysIngester interface {
	IngestLastDays(ctx context.Context, symbol, interval string, days int, chunkDays float64, progress ProgressFunc) (IngestSummary, error)
}

// DownloadConfig はダウンロードジョブの待ち行列の設定です。
type DownloadConfig struct {
	QueueSize int
	MaxJobs   int
}

// DownloadManager は取り込みを非同期ジョブとして受け付けます。
// 呼び出し枠は全ジョブで共有なので、ワーカーは1つで順番に処理します。
type DownloadManager struct {
	jobs     *jobqueue.Manager[entity.DownloadParams, IngestSummary]
	validate *validator.Validate
}

// NewDownloadManager は DownloadManager を作成します。ワーカーは Start で起動します。
func NewDownloadManager(ingester LastDaysIngester, cfg DownloadConfig, clock clockwork.Clock, logger *zap.Logger) *DownloadManager {
	run := func(ctx context.Context, p entity.DownloadParams) (IngestSummary, error) {
		sum, err := ingester.IngestLastDays(ctx, p.Symbol, p.Interval, p.Days, p.ChunkDays, nil)
		if err != nil {
			return IngestSummary{}, fmt.Errorf("after %d/%d chunks: %w", sum.ChunksDone, sum.ChunksTotal, err)
		}
		return sum, nil
	}
	return &DownloadManager{
		jobs: jobqueue.New[entity.DownloadParams, IngestSummary](run, jobqueue.Config{
			Name:      "download",
			IDPrefix:  downloadIDPrefix,
			Workers:   1,
			QueueSize: cfg.QueueSize,
			MaxJobs:   cfg.MaxJobs,
		}, clock, logger),
		validate: validation.New(),
	}
}

// Start はワーカーを起動します。
func (m *DownloadManager) Start(ctx context.Context) { m.jobs.Start(ctx) }

// Shutdown は受付を止め、実行中の取り込みをキャンセルしてワーカーの終了を待ちます。
func (m *DownloadManager) Shutdown(ctx context.Context) error { return m.jobs.Shutdown(ctx) }

// Submit はパラメータを検証してジョブを queued で登録し、すぐに返します。
// チャンク単位の失敗はジョブを失敗させず、結果の Failures に残ります。
func (m *DownloadManager) Submit(p entity.DownloadParams) (DownloadJob, error) {
	if p.Interval == "" {
		p.Interval = DefaultDownloadInterval
	}
	if p.Days == 0 {
		p.Days = DefaultDownloadDays
	}
	if p.ChunkDays == 0 {
		p.ChunkDays = DefaultChunkDays
	}
	if err := m.validate.Struct(p); err != nil {
		return DownloadJob{}, fmt.Errorf("%w: %s", ErrInvalidDownload, validation.Describe(err))
	}
	tf, err := entity.ParseTimeframe(p.Interval)
	if err != nil {
		return DownloadJob{}, err
	}
	p.Interval = tf.Key
	return m.jobs.Submit(p)
}

// Get はジョブのスナップショットを返します。
// MaxJobs を超えて破棄された終了済みジョブは jobqueue.ErrNotFound になります。
func (m *DownloadManager) Get(id string) (DownloadJob, error) { return m.jobs.Get(id) }

// List は全ジョブのスナップショットを登録順に返します。
func (m *DownloadManager) List() []DownloadJob { return m.jobs.List() }

// Cancel は取り込みにキャンセルを要求します。処理済みのチャンクは保存されたまま残ります。
func (m *DownloadManager) Cancel(id string) (DownloadJob, error) { return m.jobs.Cancel(id) }
