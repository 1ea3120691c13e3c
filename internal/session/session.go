// Package session answers time-window questions for a single trading venue:
// whether the market is open right now, and whether a past event falls inside
// a trailing day window.
package session

import (
	"fmt"
	"time"
)

// TimeOfDay is a wall-clock time with no date attached, interpreted in the
// session's zone.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "15:04" formatted strings.
func ParseTimeOfDay(value string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("parse time of day %q: %w", value, err)
	}
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

func (t TimeOfDay) minuteOfDay() int {
	return t.Hour*60 + t.Minute
}

// Clock evaluates session windows against the current time in a fixed zone.
type Clock struct {
	loc   *time.Location
	nowFn func() time.Time
}

func NewClock(zone string) (*Clock, error) {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("load session zone %q: %w", zone, err)
	}
	return &Clock{loc: loc, nowFn: time.Now}, nil
}

// WithNow returns a copy of the clock using the supplied time source.
// Intended for tests.
func (c *Clock) WithNow(now func() time.Time) *Clock {
	return &Clock{loc: c.loc, nowFn: now}
}

// Now returns the current time in the session zone.
func (c *Clock) Now() time.Time {
	return c.nowFn().In(c.loc)
}

// InSession reports whether the current time of day lies inside [start, end]
// on a weekday. A window with start > end wraps midnight and matches when
// now >= start or now <= end.
func (c *Clock) InSession(start, end TimeOfDay) bool {
	now := c.Now()
	if now.Weekday() == time.Saturday || now.Weekday() == time.Sunday {
		return false
	}

	cur := now.Hour()*60 + now.Minute()
	s, e := start.minuteOfDay(), end.minuteOfDay()
	if s <= e {
		return s <= cur && cur <= e
	}
	return cur >= s || cur <= e
}

// WithinLookback reports whether ts falls inside the trailing window of the
// given number of days. A one-day window excludes anything a full day old,
// so a same-day check cannot match yesterday's trade; longer windows include
// the boundary day. A zero ts is never in range. Future timestamps count as
// in range (zero whole days elapsed).
func (c *Clock) WithinLookback(ts time.Time, days int) bool {
	if ts.IsZero() {
		return false
	}

	elapsedDays := int(c.Now().Sub(ts).Hours() / 24)
	if days == 1 && elapsedDays >= 1 {
		return false
	}
	return elapsedDays <= days
}
