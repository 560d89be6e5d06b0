package engine

import "time"

// Clock supplies wall time for the day roll and staleness checks.
type Clock interface {
	Now() time.Time
}

// SystemClock reads time.Now in Location (local time when nil).
type SystemClock struct {
	Location *time.Location
}

func (c SystemClock) Now() time.Time {
	now := time.Now()
	if c.Location != nil {
		return now.In(c.Location)
	}
	return now
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }
