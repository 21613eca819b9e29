package surgery

import "time"

// RescheduleTime combines the calendar date of target with the clock time
// of current. This is the whole of a drag-to-reschedule: the day changes,
// the time of day does not. Applying it twice with the same target yields
// the same instant.
func RescheduleTime(current, target time.Time) time.Time {
	return time.Date(
		target.Year(), target.Month(), target.Day(),
		current.Hour(), current.Minute(), current.Second(), current.Nanosecond(),
		current.Location(),
	)
}
