package progression

import (
	"fmt"

	"github.com/dividis/progress-engine/internal/domain/mission"
	"github.com/dividis/progress-engine/internal/domain/shared"
	"github.com/dividis/progress-engine/internal/domain/streak"
)

// TouchStreak records activity in a module's streak (streak.Global for the
// module-less bucket) and then completes any streak-day missions.
func (f *Flow) TouchStreak(moduleID string) (streak.Streak, error) {
	s, err := f.tx.Streaks().GetOrCreate(f.ctx, f.userID, moduleID, f.now)
	if err != nil {
		return streak.Streak{}, fmt.Errorf("progression: get streak: %w", err)
	}

	next, res := streak.Update(s, f.now)
	if err := f.tx.Streaks().Save(f.ctx, next); err != nil {
		return s, fmt.Errorf("progression: save streak: %w", err)
	}
	f.Emit(shared.NewStreakUpdatedEvent(f.userID, moduleID, next.Current, next.Longest, res.Reset, f.now))

	if err := f.completeStreakDayMissions(); err != nil {
		return next, err
	}
	return next, nil
}

// completeStreakDayMissions runs after every streak update. Completing such a
// mission touches the global streak again, which must not re-enter the hook.
func (f *Flow) completeStreakDayMissions() error {
	if f.inStreakHook {
		return nil
	}
	f.inStreakHook = true
	defer func() { f.inStreakHook = false }()

	missions, err := f.tx.Missions().ListByKind(f.ctx, mission.KindStreakDay)
	if err != nil {
		return fmt.Errorf("progression: list streak missions: %w", err)
	}
	for _, m := range missions {
		if _, _, err := f.CompleteMission(m, true); err != nil {
			return err
		}
	}
	return nil
}
