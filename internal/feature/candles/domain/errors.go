// Package domain はcandlesフィーチャー共通のエラーを定義します。
package domain

import "errors"

var (
	// ErrTransientProvider はリトライで回復し得るプロバイダ障害です(429, 5xx, タイムアウト)。
	ErrTransientProvider = errors.New("transient provider error")
	// ErrPermanentProvider はリトライしても回復しないプロバイダ障害です(認証エラー, 不正なシンボル)。
	ErrPermanentProvider = errors.New("permanent provider error")
)
