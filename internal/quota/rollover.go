package quota

import "time"

const (
	dayLayout   = "2006-01-02"
	monthLayout = "2006-01"
)

// RolledOver returns stats with the daily and monthly counters zeroed when
// now falls on a different calendar day or month than the stored markers.
// now must already be in the tracker's location. The input is not modified.
func RolledOver(stats UsageStats, now time.Time) UsageStats {
	day := now.Format(dayLayout)
	month := now.Format(monthLayout)

	if stats.LastResetDate != day {
		stats.DailyCount = 0
		stats.LastResetDate = day
	}
	if stats.LastMonthlyResetDate != month {
		stats.MonthlyCount = 0
		stats.LastMonthlyResetDate = month
	}
	return stats
}

func freshStats(now time.Time) UsageStats {
	return UsageStats{
		LastResetDate:        now.Format(dayLayout),
		LastMonthlyResetDate: now.Format(monthLayout),
	}
}

// nextDay is 00:00 of the following calendar day in now's location.
func nextDay(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, now.Location())
}

// nextMonth is 00:00 on day 1 of the following month in now's location.
func nextMonth(now time.Time) time.Time {
	y, m, _ := now.Date()
	return time.Date(y, m+1, 1, 0, 0, 0, 0, now.Location())
}
