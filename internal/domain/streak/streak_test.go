package streak_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dividis/progress-engine/internal/domain/streak"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func TestUpdate_FirstActivityIsDayOne(t *testing.T) {
	s := streak.New("u1", streak.Global, t0)
	assert.True(t, s.IsGlobal())

	s, res := streak.Update(s, t0)
	assert.Equal(t, 1, s.Current)
	assert.Equal(t, 1, s.Longest)
	assert.False(t, res.Reset)
	assert.Equal(t, 0, res.ElapsedDays)
}

func TestUpdate_Gaps(t *testing.T) {
	tests := []struct {
		name    string
		gap     time.Duration
		current int
		reset   bool
		elapsed int
		longest int
	}{
		{"same moment", 0, 4, false, 0, 4},
		{"same day", 3 * time.Hour, 4, false, 0, 4},
		{"23h", 23 * time.Hour, 4, false, 0, 4},
		{"exactly 24h", 24 * time.Hour, 4, false, 1, 4},
		{"25h", 25 * time.Hour, 1, true, 1, 3},
		{"three days", 72 * time.Hour, 1, true, 3, 3},
		{"clock went back", -2 * time.Hour, 4, false, -1, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := streak.Streak{UserID: "u1", ModuleID: "vision", Current: 3, Longest: 3, LastActivity: t0}
			now := t0.Add(tt.gap)

			got, res := streak.Update(s, now)
			assert.Equal(t, tt.current, got.Current)
			assert.Equal(t, tt.longest, got.Longest)
			assert.Equal(t, tt.reset, res.Reset)
			assert.Equal(t, tt.elapsed, res.ElapsedDays)
			assert.Equal(t, now, got.LastActivity)
			assert.GreaterOrEqual(t, got.Longest, got.Current)
		})
	}
}

func TestUpdate_LongestSurvivesReset(t *testing.T) {
	s := streak.Streak{Current: 7, Longest: 9, LastActivity: t0}
	s, _ = streak.Update(s, t0.Add(48*time.Hour))
	assert.Equal(t, 1, s.Current)
	assert.Equal(t, 9, s.Longest)
}

func TestElapsedDays(t *testing.T) {
	assert.Equal(t, 0, streak.ElapsedDays(t0, t0.Add(23*time.Hour)))
	assert.Equal(t, 1, streak.ElapsedDays(t0, t0.Add(47*time.Hour)))
	assert.Equal(t, 2, streak.ElapsedDays(t0, t0.Add(48*time.Hour)))
	assert.Equal(t, -1, streak.ElapsedDays(t0, t0.Add(-time.Minute)))
}
