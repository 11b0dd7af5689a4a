package cache

import (
	"time"
)

// TimeUntilNextBar は now を含むバーが閉じるまでの期間を返します。
// バーの境界は UNIX エポックからの step 刻みです(週足は木曜始まりになりますが TTL 用途では問題ありません)。
func TimeUntilNextBar(now time.Time, step time.Duration) time.Duration {
	if step <= 0 {
		return 0
	}
	elapsed := time.Duration(now.UnixNano()) % step
	return step - elapsed
}
