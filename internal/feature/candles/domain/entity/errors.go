package entity

import "errors"

var (
	// ErrUnknownTimeframe は未対応の時間足キーが指定されたことを表します。
	ErrUnknownTimeframe = errors.New("unknown timeframe")
	// ErrInvalidRange は start >= end の範囲が指定されたことを表します。
	ErrInvalidRange = errors.New("invalid range: start must be before end")
)
