package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"forex_backend/internal/shared/ratelimiter"
)

const (
	// DefaultMinRecords は1営業日あたりに期待する最少バー数です。
	DefaultMinRecords = 70
	// SevereThreshold 未満の日は深刻な欠損として扱います。
	SevereThreshold = 40
)

// Severity は欠損の程度です。
type Severity string

const (
	SeveritySevere   Severity = "severe"
	SeverityModerate Severity = "moderate"
)

// DayCoverage は1営業日のバー数です。
type DayCoverage struct {
	Date     time.Time
	Count    int
	Severity Severity
}

// QualityReport は営業日ごとの欠損レポートです。
type QualityReport struct {
	Symbol     string
	Interval   string
	From       time.Time
	To         time.Time
	MinRecords int
	Days       []DayCoverage
}

// Severe は深刻な欠損日の数を返します。
func (r QualityReport) Severe() int {
	n := 0
	for _, d := range r.Days {
		if d.Severity == SeveritySevere {
			n++
		}
	}
	return n
}

// RepairResult は欠損修復の結果です。
type RepairResult struct {
	Repaired int
	Failed   int
	Written  int
}

// QualityReport は [from, to) の平日のうちバー数が minRecords 未満の日を列挙します。
// from/to がゼロのときは保存済みシリーズの範囲を使います。
func (iu *IngestUsecase) QualityReport(ctx context.Context, symbol, interval string, from, to time.Time, minRecords int) (QualityReport, error) {
	if minRecords <= 0 {
		minRecords = DefaultMinRecords
	}
	rep := QualityReport{Symbol: symbol, Interval: interval, MinRecords: minRecords}

	if from.IsZero() || to.IsZero() {
		st, err := iu.candle.Stats(ctx, symbol, interval)
		if err != nil {
			return rep, fmt.Errorf("series stats: %w", err)
		}
		if st.Count == 0 {
			return rep, nil
		}
		from = truncateDay(st.MinTime)
		to = truncateDay(st.MaxTime).AddDate(0, 0, 1)
	}
	rep.From, rep.To = from.UTC(), to.UTC()

	cs, err := iu.candle.FindRange(ctx, symbol, interval, rep.From, rep.To)
	if err != nil {
		return rep, fmt.Errorf("find range: %w", err)
	}
	counts := make(map[time.Time]int)
	for _, c := range cs {
		counts[truncateDay(c.Time)]++
	}

	for day := truncateDay(rep.From); day.Before(rep.To); day = day.AddDate(0, 0, 1) {
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		n := counts[day]
		if n >= minRecords {
			continue
		}
		sev := SeverityModerate
		if n < SevereThreshold {
			sev = SeveritySevere
		}
		rep.Days = append(rep.Days, DayCoverage{Date: day, Count: n, Severity: sev})
	}
	return rep, nil
}

// RepairDays は各日の前後1日を含む範囲を再取得します。
// 呼び出し枠が尽きた時点で打ち切ります。
func (iu *IngestUsecase) RepairDays(ctx context.Context, symbol, interval string, days []DayCoverage) (RepairResult, error) {
	var res RepairResult
	for i, d := range days {
		sum, err := iu.IngestRange(ctx, RangeRequest{
			Symbol:   symbol,
			Interval: interval,
			Start:    d.Date.AddDate(0, 0, -1),
			End:      d.Date.AddDate(0, 0, 2),
		})
		res.Written += sum.CandlesWritten
		if err != nil || !sum.OK() {
			res.Failed++
		} else {
			res.Repaired++
		}
		if err != nil && (errors.Is(err, ratelimiter.ErrQuotaExceeded) || ctx.Err() != nil) {
			res.Failed += len(days) - i - 1
			return res, err
		}
		iu.logger.Info("repair window processed",
			zap.String("symbol", symbol),
			zap.String("interval", interval),
			zap.String("date", d.Date.Format(time.DateOnly)),
			zap.Int("written", sum.CandlesWritten),
			zap.Int("done", i+1),
			zap.Int("total", len(days)),
		)
	}
	return res, nil
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
