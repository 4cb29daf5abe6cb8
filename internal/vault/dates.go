package vault

import "time"

// startOfDay truncates t to local midnight in loc.
func startOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// dayNumber maps a calendar day to a sequential integer so that
// consecutive days differ by exactly one, independent of DST shifts.
func dayNumber(t time.Time, loc *time.Location) int64 {
	t = t.In(loc)
	utc := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return utc.Unix() / 86400
}

// weekStart returns the most recent Monday at local midnight.
func weekStart(now time.Time) time.Time {
	day := startOfDay(now, now.Location())
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

// monthStart returns the first of now's month at local midnight.
func monthStart(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
}
