// Package dto はcandles APIのレスポンスDTOを定義します。
package dto

import (
	"time"

	"forex_backend/internal/feature/candles/domain/entity"
)

// CandleResponse はロウソク足データのレスポンスDTOです。
type CandleResponse struct {
	Time   time.Time `json:"time"` // バー開始時刻(UTC, RFC3339)
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// CandlesResponse は GET /api/candles のレスポンスです。
type CandlesResponse struct {
	Symbol   string           `json:"symbol"`
	Interval string           `json:"interval"`
	Candles  []CandleResponse `json:"candles"`
}

// SeriesStatsResponse は1シリーズの統計です。空のシリーズでは時刻を省略します。
type SeriesStatsResponse struct {
	Symbol   string     `json:"symbol"`
	Interval string     `json:"interval"`
	Count    int64      `json:"count"`
	First    *time.Time `json:"first,omitempty"`
	Last     *time.Time `json:"last,omitempty"`
}

// NewCandlesResponse はエンティティからレスポンスを組み立てます。
func NewCandlesResponse(symbol, interval string, cs []entity.Candle) CandlesResponse {
	out := CandlesResponse{Symbol: symbol, Interval: interval, Candles: make([]CandleResponse, 0, len(cs))}
	for _, x := range cs {
		out.Candles = append(out.Candles, CandleResponse{
			Time:   x.Time.UTC(),
			Open:   x.Open,
			High:   x.High,
			Low:    x.Low,
			Close:  x.Close,
			Volume: x.Volume,
		})
	}
	return out
}

// NewSeriesStatsResponse はエンティティからレスポンスを組み立てます。
func NewSeriesStatsResponse(s entity.SeriesStats) SeriesStatsResponse {
	out := SeriesStatsResponse{Symbol: s.Symbol, Interval: s.Interval, Count: s.Count}
	if s.Count > 0 {
		first, last := s.MinTime.UTC(), s.MaxTime.UTC()
		out.First, out.Last = &first, &last
	}
	return out
}
