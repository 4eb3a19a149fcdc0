package cache

import (
	"time"
)

// TimeUntilNextDailyRefresh は次の指定時刻（中国標準時）までの期間を返します。
// ランキングなどの回答内容は日次でしか変わらないため、キャッシュの既定TTLに使います。
func TimeUntilNextDailyRefresh(hour int, now time.Time) time.Duration {
	loc, err := time.LoadLocation("Asia/Shanghai")
	if err != nil {
		loc = time.FixedZone("CST", 8*60*60)
	}
	now = now.In(loc)

	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, loc)

	// 本日の指定時刻を過ぎている場合は翌日
	if !now.Before(next) {
		next = next.Add(24 * time.Hour)
	}

	return next.Sub(now)
}
