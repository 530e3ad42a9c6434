// Package timeutil provides a clock abstraction and calendar boundaries
// computed in a configured location.
// No external dependencies - uses only standard library.
package timeutil

import (
	"sync"
	"time"
)

// Clock supplies the current time. Flows read it once and pass the value down.
type Clock interface {
	Now() time.Time
}

// SystemClock returns time.Now in UTC.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// FixedClock is a settable clock for tests and replays.
type FixedClock struct {
	mu sync.Mutex
	t  time.Time
}

// NewFixedClock creates a clock stopped at t.
func NewFixedClock(t time.Time) *FixedClock {
	return &FixedClock{t: t}
}

// Now implements Clock.
func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// Set moves the clock to t.
func (c *FixedClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

// Advance moves the clock forward by d.
func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// LoadLocation resolves a zone name, falling back to UTC.
func LoadLocation(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// StartOfDay returns midnight of t's date in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	l := t.In(loc)
	return time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, loc)
}

// EndOfDay returns the start of the following day in loc (exclusive bound).
func EndOfDay(t time.Time, loc *time.Location) time.Time {
	return StartOfDay(t, loc).AddDate(0, 0, 1)
}

// StartOfWeek returns Monday 00:00 of t's week in loc.
func StartOfWeek(t time.Time, loc *time.Location) time.Time {
	l := t.In(loc)
	weekday := int(l.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday
	}
	return StartOfDay(l.AddDate(0, 0, -(weekday - 1)), loc)
}

// EndOfWeek returns the next Monday 00:00 in loc (exclusive bound).
func EndOfWeek(t time.Time, loc *time.Location) time.Time {
	return StartOfWeek(t, loc).AddDate(0, 0, 7)
}

// InRange reports whether from <= t < to.
func InRange(t, from, to time.Time) bool {
	return !t.Before(from) && t.Before(to)
}
