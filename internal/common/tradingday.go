package common

import (
	"time"
)

// IsTradingDay reports whether the given instant falls on a weekday in the
// given timezone. Exchange holidays are not modelled; the broker rejects
// orders on those days and the executor records the failures.
func IsTradingDay(t time.Time, loc *time.Location) bool {
	wd := t.In(loc).Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// DateString formats an instant as an ISO date in the given timezone.
func DateString(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}

// ParseDate parses an ISO date string into midnight in the given timezone.
func ParseDate(date string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation("2006-01-02", date, loc)
}
