package progression

import (
	"fmt"

	"github.com/dividis/progress-engine/internal/domain/declaration"
	"github.com/dividis/progress-engine/internal/domain/mission"
	"github.com/dividis/progress-engine/internal/domain/module"
	"github.com/dividis/progress-engine/internal/domain/shared"
)

// XP sources reported in XPGainedEvent.
const (
	SourceDeclaration = "declaration"
	SourceMission     = "mission"
	SourceAchievement = "achievement"
)

// CompleteMission completes m for the flow's user, awards its XP and touches
// the matching streak.
//
// With automatic=false (a user request) a locked module or a too low level is
// PermissionDenied and a failed mission is InvalidTransition. With
// automatic=true (the evaluator or a streak hook) the same conditions skip the
// mission silently. Completing an already completed mission is a no-op either way.
func (f *Flow) CompleteMission(m mission.Mission, automatic bool) (mission.Progress, bool, error) {
	var modProgress module.Progress
	if !m.IsGlobal() {
		p, found, err := f.tx.ModuleProgress().Find(f.ctx, f.userID, m.ModuleID)
		if err != nil {
			return mission.Progress{}, false, fmt.Errorf("progression: find module progress: %w", err)
		}
		if !found || !p.IsAccessible() {
			if automatic {
				return mission.Progress{}, false, nil
			}
			return mission.Progress{}, false, shared.NewDomainError("mission", "Complete", shared.ErrPermissionDenied,
				fmt.Sprintf("module %q is locked", m.ModuleID))
		}
		modProgress = p
	}

	if m.RequiredLevel > f.profile.CurrentLevel {
		if automatic {
			return mission.Progress{}, false, nil
		}
		return mission.Progress{}, false, shared.NewDomainError("mission", "Complete", shared.ErrPermissionDenied,
			fmt.Sprintf("mission %q requires level %d (current %d)", m.ID, m.RequiredLevel, f.profile.CurrentLevel))
	}

	mp, err := f.tx.MissionProgress().GetOrCreate(f.ctx, f.userID, m.ID, f.now)
	if err != nil {
		return mission.Progress{}, false, fmt.Errorf("progression: get mission progress: %w", err)
	}
	next, changed, err := mission.Complete(mp, f.now)
	if err != nil {
		if automatic {
			return mp, false, nil
		}
		return mp, false, err
	}
	if !changed {
		return next, false, nil
	}

	if err := f.tx.MissionProgress().Save(f.ctx, next); err != nil {
		return mp, false, fmt.Errorf("progression: save mission progress: %w", err)
	}
	if !m.IsGlobal() {
		if err := f.tx.ModuleProgress().Save(f.ctx, module.Touch(modProgress, f.now)); err != nil {
			return mp, false, fmt.Errorf("progression: save module progress: %w", err)
		}
	}
	f.Emit(shared.NewMissionCompletedEvent(f.userID, m.ID, m.ModuleID, m.XPReward, automatic, f.now))

	if _, err := f.AwardXP(m.XPReward, SourceMission, m.ID); err != nil {
		return next, true, err
	}
	if _, err := f.TouchStreak(m.ModuleID); err != nil {
		return next, true, err
	}
	return next, true, nil
}

// EvaluateMissions completes every mission of mod whose requirements now hold.
// A mission completed during the walk satisfies requirements of the missions
// after it. The walk repeats with fresh facts while it completes anything, so
// a level reached through one mission's XP opens missions ordered before it.
// pillar, when set, is counted as declared even if the caller has not flushed
// it yet.
func (f *Flow) EvaluateMissions(mod module.Module, pillar declaration.Pillar) ([]mission.Progress, error) {
	missions, err := f.tx.Missions().ListByModule(f.ctx, mod.ID)
	if err != nil {
		return nil, fmt.Errorf("progression: list missions: %w", err)
	}
	if len(missions) == 0 {
		return nil, nil
	}

	var completed []mission.Progress
	for {
		facts, failed, err := f.missionFacts(mod.ID)
		if err != nil {
			return completed, err
		}
		if pillar != "" {
			facts.DeclaredPillars[pillar] = true
		}

		progressed := false
		for _, m := range mission.Candidates(missions, facts, failed) {
			p, changed, err := f.CompleteMission(m, true)
			if err != nil {
				return completed, err
			}
			if changed {
				completed = append(completed, p)
				progressed = true
			}
		}
		if !progressed {
			return completed, nil
		}
	}
}

func (f *Flow) missionFacts(moduleID string) (mission.Facts, map[string]bool, error) {
	progress, err := f.tx.MissionProgress().ListByUser(f.ctx, f.userID)
	if err != nil {
		return mission.Facts{}, nil, fmt.Errorf("progression: list mission progress: %w", err)
	}
	completed := make(map[string]bool, len(progress))
	failed := make(map[string]bool)
	for _, p := range progress {
		switch p.State {
		case mission.StateCompleted:
			completed[p.MissionID] = true
		case mission.StateFailed:
			failed[p.MissionID] = true
		}
	}

	modules, err := f.tx.ModuleProgress().ListByUser(f.ctx, f.userID)
	if err != nil {
		return mission.Facts{}, nil, fmt.Errorf("progression: list module progress: %w", err)
	}
	accessible := make(map[string]bool, len(modules))
	for _, p := range modules {
		if p.IsAccessible() {
			accessible[p.ModuleID] = true
		}
	}

	pillars, err := f.tx.Declarations().Pillars(f.ctx, f.userID, moduleID)
	if err != nil {
		return mission.Facts{}, nil, fmt.Errorf("progression: load declared pillars: %w", err)
	}
	if pillars == nil {
		pillars = make(map[declaration.Pillar]bool)
	}

	return mission.Facts{
		CompletedMissions: completed,
		AccessibleModules: accessible,
		DeclaredPillars:   pillars,
		Level:             f.profile.CurrentLevel,
	}, failed, nil
}
