package util

import "time"

// TradingDays returns the weekdays in [start, end] as UTC midnights.
// Exchange holidays are not modelled.
func TradingDays(start, end time.Time) []time.Time {
	start = midnight(start)
	end = midnight(end)
	var days []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if IsWeekday(d) {
			days = append(days, d)
		}
	}
	return days
}

// IsWeekday reports whether t falls Monday through Friday.
func IsWeekday(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// PreviousWeekday returns the latest weekday at or before t.
func PreviousWeekday(t time.Time) time.Time {
	t = midnight(t)
	for !IsWeekday(t) {
		t = t.AddDate(0, 0, -1)
	}
	return t
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
