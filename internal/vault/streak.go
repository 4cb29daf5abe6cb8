package vault

import (
	"slices"
	"time"

	"github.com/samber/lo"
)

// CalculateStreak derives consecutive-day usage streaks from a tool's
// usage ledger. lastUsed is only consulted when history is empty, for
// tools that predate ledger tracking. Days are calendar days in now's
// location.
//
// The current streak counts back from today (or yesterday, when nothing
// was logged today) and is zero once the most recent use is older than
// yesterday. The longest streak is never below the current one.
func CalculateStreak(history []UsageEntry, lastUsed *time.Time, now time.Time) StreakInfo {
	loc := now.Location()

	var stamps []time.Time
	switch {
	case len(history) > 0:
		stamps = lo.Map(history, func(e UsageEntry, _ int) time.Time { return e.Timestamp })
	case lastUsed != nil:
		stamps = []time.Time{*lastUsed}
	}
	if len(stamps) == 0 {
		return StreakInfo{}
	}

	midnights := make(map[int64]time.Time, len(stamps))
	for _, ts := range stamps {
		n := dayNumber(ts, loc)
		if _, ok := midnights[n]; !ok {
			midnights[n] = startOfDay(ts, loc)
		}
	}
	days := lo.Keys(midnights)
	slices.SortFunc(days, func(a, b int64) int {
		switch {
		case a > b:
			return -1
		case a < b:
			return 1
		}
		return 0
	})

	today := dayNumber(now, loc)
	mostRecent := days[0]
	lastDate := midnights[mostRecent]

	info := StreakInfo{
		LastUsedDate:  &lastDate,
		IsActiveToday: mostRecent == today,
	}

	check := today
	if !info.IsActiveToday {
		check = today - 1
	}
	for {
		if _, ok := midnights[check]; !ok {
			break
		}
		info.CurrentStreak++
		check--
	}
	// Streak broken: last use was before yesterday.
	if today-mostRecent > 1 {
		info.CurrentStreak = 0
	}

	longest, run := 1, 1
	for i := 1; i < len(days); i++ {
		if days[i-1]-days[i] == 1 {
			run++
		} else {
			run = 1
		}
		longest = max(longest, run)
	}
	info.LongestStreak = max(longest, info.CurrentStreak)

	return info
}
