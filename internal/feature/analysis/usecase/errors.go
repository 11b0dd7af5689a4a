package usecase

import "errors"

var (
	// ErrInvalidParams は分析リクエストのパラメータが不正であることを表します。
	ErrInvalidParams = errors.New("invalid analysis params")
	// ErrNoData は分析に必要な本数のローソク足が保存されていないことを表します。
	ErrNoData = errors.New("not enough stored candles")
)
