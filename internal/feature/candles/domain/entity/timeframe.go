package entity

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Timeframe はバーの時間足を表します。Key は Twelve Data の interval 名と一致します。
type Timeframe struct {
	Key      string
	Duration time.Duration
}

var supportedTimeframes = map[string]Timeframe{
	"1min":  {Key: "1min", Duration: time.Minute},
	"5min":  {Key: "5min", Duration: 5 * time.Minute},
	"15min": {Key: "15min", Duration: 15 * time.Minute},
	"30min": {Key: "30min", Duration: 30 * time.Minute},
	"45min": {Key: "45min", Duration: 45 * time.Minute},
	"1h":    {Key: "1h", Duration: time.Hour},
	"2h":    {Key: "2h", Duration: 2 * time.Hour},
	"4h":    {Key: "4h", Duration: 4 * time.Hour},
	"1day":  {Key: "1day", Duration: 24 * time.Hour},
	"1week": {Key: "1week", Duration: 7 * 24 * time.Hour},
}

// ParseTimeframe は時間足キーを正規化して返します。
// 未対応のキーは ErrUnknownTimeframe をラップして返します。
func ParseTimeframe(input string) (Timeframe, error) {
	key := strings.ToLower(strings.TrimSpace(input))
	tf, ok := supportedTimeframes[key]
	if !ok {
		return Timeframe{}, fmt.Errorf("%w: %q", ErrUnknownTimeframe, input)
	}
	return tf, nil
}

// SupportedTimeframes は対応する時間足キーを期間の短い順に返します。
func SupportedTimeframes() []string {
	keys := make([]string, 0, len(supportedTimeframes))
	for k := range supportedTimeframes {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return supportedTimeframes[keys[i]].Duration < supportedTimeframes[keys[j]].Duration
	})
	return keys
}

// ExpectedBars は [start, end) に含まれるはずのバー数を返します(端数切り上げ)。
func (tf Timeframe) ExpectedBars(start, end time.Time) int {
	if !end.After(start) || tf.Duration <= 0 {
		return 0
	}
	span := end.Sub(start)
	n := span / tf.Duration
	if span%tf.Duration != 0 {
		n++
	}
	return int(n)
}
