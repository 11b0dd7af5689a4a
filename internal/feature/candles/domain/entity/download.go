package entity

// DownloadParams は直近 Days 日を ChunkDays 日ずつ取り込む非同期ジョブのパラメータです。
type DownloadParams struct {
	Symbol    string  `json:"symbol" validate:"required"`
	Interval  string  `json:"interval" validate:"required"`
	Days      int     `json:"days" validate:"gte=1,lte=3650"`
	ChunkDays float64 `json:"chunk_days" validate:"gte=0.1,lte=30"`
}
