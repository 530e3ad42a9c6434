// Package streak tracks consecutive activity per user and module.
//
// A streak counts activity sessions spaced at most one day apart, not
// calendar days: two activities on the same day both increment it.
package streak

import (
	"context"
	"time"
)

// Global is the module id of the module-less bucket.
const Global = ""

// Day is the length of one streak step.
const Day = 24 * time.Hour

// Streak is unique per (user, module-or-global).
// Longest >= Current always holds.
type Streak struct {
	UserID       string
	ModuleID     string
	Current      int
	Longest      int
	LastActivity time.Time
}

// IsGlobal reports whether this is the module-less bucket.
func (s Streak) IsGlobal() bool {
	return s.ModuleID == Global
}

// New returns an empty streak whose last activity is now, so the first
// Update counts as day one.
func New(userID, moduleID string, now time.Time) Streak {
	return Streak{
		UserID:       userID,
		ModuleID:     moduleID,
		LastActivity: now,
	}
}

// Result describes what an update did.
type Result struct {
	ElapsedDays int
	Reset       bool
}

// ElapsedDays returns floor((now-last)/24h).
func ElapsedDays(last, now time.Time) int {
	d := now.Sub(last)
	days := int(d / Day)
	if d < 0 && d%Day != 0 {
		days--
	}
	return days
}

// Update applies one activity at now: if at most one day has passed since the
// last activity the streak grows, otherwise it restarts at 1. A last activity
// in the future counts as no time passed. LastActivity is always moved to now.
func Update(s Streak, now time.Time) (Streak, Result) {
	res := Result{ElapsedDays: ElapsedDays(s.LastActivity, now)}
	if now.Sub(s.LastActivity) <= Day {
		s.Current++
	} else {
		s.Current = 1
		res.Reset = true
	}
	if s.Current > s.Longest {
		s.Longest = s.Current
	}
	s.LastActivity = now
	return s, res
}

// Repository stores streaks.
type Repository interface {
	// GetOrCreate returns the (user, module) streak, creating it if absent.
	// Use Global for the module-less bucket.
	GetOrCreate(ctx context.Context, userID, moduleID string, now time.Time) (Streak, error)

	// Find returns the streak if it exists.
	Find(ctx context.Context, userID, moduleID string) (Streak, bool, error)

	// ListByUser returns every streak of the user.
	ListByUser(ctx context.Context, userID string) ([]Streak, error)

	// Save persists a streak.
	Save(ctx context.Context, s Streak) error
}
