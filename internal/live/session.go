package live

import "time"

// InRegularHours reports whether ts falls inside the regular 09:30-16:00
// equity session, Monday through Friday, in the given exchange timezone.
// Bars outside the session are discarded before buffering.
func InRegularHours(ts time.Time, loc *time.Location) bool {
	local := ts.In(loc)
	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	open := time.Date(local.Year(), local.Month(), local.Day(), 9, 30, 0, 0, loc)
	close := time.Date(local.Year(), local.Month(), local.Day(), 16, 0, 0, 0, loc)
	return !local.Before(open) && !local.After(close)
}
