package entity

import "time"

// Chunk は1回のAPI呼び出しで取得する半開区間 [Start, End) です。
type Chunk struct {
	Index int
	Start time.Time
	End   time.Time
}

// ChunkPlan は範囲取得を分割したチャンクの並びです。
// チャンクは重複せず、連結すると要求範囲と一致します。
type ChunkPlan struct {
	Symbol   string
	Interval string
	Chunks   []Chunk
}

// ChunkFailure は取得に失敗したチャンクと原因です。
type ChunkFailure struct {
	Chunk Chunk
	Err   error
}
