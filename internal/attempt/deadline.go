package attempt

import (
	"fmt"
	"time"
)

// WarningThreshold is how close to the deadline the one-time warning fires.
const WarningThreshold = 5 * time.Minute

// Deadline is the absolute end of an attempt, derived from the session's
// server-assigned start time and the test duration. It holds no counter:
// every query recomputes from the start time, so reloads cannot drift.
type Deadline struct {
	start    time.Time
	duration time.Duration
}

// NewDeadline builds the deadline for a session started at start for a test
// lasting durationMinutes.
func NewDeadline(start time.Time, durationMinutes int) Deadline {
	return Deadline{start: start, duration: time.Duration(durationMinutes) * time.Minute}
}

// At returns the absolute deadline.
func (d Deadline) At() time.Time {
	return d.start.Add(d.duration)
}

// Remaining returns the whole seconds left at now, never negative. Partial
// seconds round up so that zero is only reported once the deadline has
// actually passed.
func (d Deadline) Remaining(now time.Time) int {
	left := d.At().Sub(now)
	if left <= 0 {
		return 0
	}
	secs := left / time.Second
	if left%time.Second != 0 {
		secs++
	}
	return int(secs)
}

// Expired reports whether the deadline has been reached at now.
func (d Deadline) Expired(now time.Time) bool {
	return d.Remaining(now) == 0
}

// FormatClock renders seconds as HH:MM:SS.
func FormatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d", seconds/3600, (seconds%3600)/60, seconds%60)
}
