package usecase

import (
	"errors"

	"forex_backend/internal/shared/jobqueue"
)

var (
	// ErrJobNotFound は指定されたIDのジョブが存在しないことを表します。
	ErrJobNotFound = jobqueue.ErrNotFound
	// ErrJobFinished は終了済みのジョブをキャンセルしようとしたことを表します。
	ErrJobFinished = jobqueue.ErrFinished
	// ErrQueueFull は待ち行列が満杯でジョブを受け付けられないことを表します。
	ErrQueueFull = jobqueue.ErrQueueFull
	// ErrShuttingDown は停止処理中のためジョブを受け付けないことを表します。
	ErrShuttingDown = jobqueue.ErrShuttingDown
	// ErrInvalidParams はバックテストのパラメータが不正であることを表します。
	ErrInvalidParams = errors.New("invalid backtest params")
	// ErrNoData は指定範囲に検証に足るローソク足がないことを表します。
	ErrNoData = errors.New("not enough stored candles in range")
)
