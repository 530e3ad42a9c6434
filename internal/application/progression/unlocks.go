package progression

import (
	"fmt"

	"github.com/dividis/progress-engine/internal/domain/declaration"
	"github.com/dividis/progress-engine/internal/domain/module"
	"github.com/dividis/progress-engine/internal/domain/shared"
)

// Unlock triggers reported in ModuleUnlockedEvent.
const (
	TriggerRequest      = "request"
	TriggerSync         = "sync"
	TriggerPillars      = "pillars"
	TriggerRegistration = "registration"
)

// UnlockFacts collects what the unlock rules read.
func (f *Flow) UnlockFacts() (module.Facts, error) {
	completed, err := f.tx.MissionProgress().CompletedIDs(f.ctx, f.userID)
	if err != nil {
		return module.Facts{}, fmt.Errorf("progression: load completed missions: %w", err)
	}
	return module.Facts{
		XP:                f.profile.ExperiencePoints,
		CompletedMissions: completed,
	}, nil
}

func (f *Flow) unlock(p module.Progress, auto bool, trigger string) (module.Progress, bool, error) {
	next, changed, err := module.Unlock(p, auto, f.now)
	if err != nil || !changed {
		return next, changed, err
	}
	if err := f.tx.ModuleProgress().Save(f.ctx, next); err != nil {
		return p, false, fmt.Errorf("progression: save module progress: %w", err)
	}
	f.Emit(shared.NewModuleUnlockedEvent(f.userID, next.ModuleID, next.AutoUnlocked, trigger, f.now))
	return next, true, nil
}

// RequestUnlock is a user asking to open a module. An already unlocked module
// is returned as is. A denial leaves no rows behind.
func (f *Flow) RequestUnlock(mod module.Module) (module.Progress, bool, error) {
	existing, found, err := f.tx.ModuleProgress().Find(f.ctx, f.userID, mod.ID)
	if err != nil {
		return module.Progress{}, false, fmt.Errorf("progression: find module progress: %w", err)
	}
	if found && existing.State != module.StateLocked {
		// unlocked: no-op; completed: InvalidTransition
		return module.Unlock(existing, false, f.now)
	}

	facts, err := f.UnlockFacts()
	if err != nil {
		return module.Progress{}, false, err
	}
	if d := f.engine.rules.Evaluate(mod, facts); !d.Allowed {
		return existing, false, &module.DenialError{ModuleID: mod.ID, Decision: d}
	}

	p, err := f.tx.ModuleProgress().GetOrCreate(f.ctx, f.userID, mod.ID, f.now)
	if err != nil {
		return module.Progress{}, false, fmt.Errorf("progression: get module progress: %w", err)
	}
	return f.unlock(p, false, TriggerRequest)
}

// SyncUnlocks makes sure every module has a progress row and opens those
// whose rule passes. Running it again without new XP or missions changes nothing.
func (f *Flow) SyncUnlocks() ([]module.Progress, error) {
	mods, err := f.tx.Modules().List(f.ctx)
	if err != nil {
		return nil, fmt.Errorf("progression: list modules: %w", err)
	}
	facts, err := f.UnlockFacts()
	if err != nil {
		return nil, err
	}

	var opened []module.Progress
	for _, mod := range mods {
		p, err := f.tx.ModuleProgress().GetOrCreate(f.ctx, f.userID, mod.ID, f.now)
		if err != nil {
			return nil, fmt.Errorf("progression: get module progress: %w", err)
		}
		if p.State != module.StateLocked {
			continue
		}
		if !f.engine.rules.Evaluate(mod, facts).Allowed {
			continue
		}
		next, changed, err := f.unlock(p, true, TriggerSync)
		if err != nil {
			return nil, err
		}
		if changed {
			opened = append(opened, next)
		}
	}
	return opened, nil
}

// OpenFirstModule force-unlocks the lowest-order module for a new user.
// It returns false when the catalogue is empty or the module is already open.
func (f *Flow) OpenFirstModule() (module.Progress, bool, error) {
	mods, err := f.tx.Modules().List(f.ctx)
	if err != nil {
		return module.Progress{}, false, fmt.Errorf("progression: list modules: %w", err)
	}
	first, ok := module.First(mods)
	if !ok {
		return module.Progress{}, false, nil
	}

	p, err := f.tx.ModuleProgress().GetOrCreate(f.ctx, f.userID, first.ID, f.now)
	if err != nil {
		return module.Progress{}, false, fmt.Errorf("progression: get module progress: %w", err)
	}
	if p.State != module.StateLocked {
		return p, false, nil
	}

	next := module.ForceUnlock(p, f.now)
	if err := f.tx.ModuleProgress().Save(f.ctx, next); err != nil {
		return p, false, fmt.Errorf("progression: save module progress: %w", err)
	}
	f.Emit(shared.NewModuleUnlockedEvent(f.userID, next.ModuleID, true, TriggerRegistration, f.now))
	return next, true, nil
}

// UnlockNextIfPillarsComplete opens the next module by order, without any XP
// gate, once the user has declared every pillar of mod. It returns false when
// nothing changed.
func (f *Flow) UnlockNextIfPillarsComplete(mod module.Module) (module.Progress, bool, error) {
	declared, err := f.tx.Declarations().Pillars(f.ctx, f.userID, mod.ID)
	if err != nil {
		return module.Progress{}, false, fmt.Errorf("progression: load declared pillars: %w", err)
	}
	if !declaration.HasAll(declared) {
		return module.Progress{}, false, nil
	}

	mods, err := f.tx.Modules().List(f.ctx)
	if err != nil {
		return module.Progress{}, false, fmt.Errorf("progression: list modules: %w", err)
	}
	next, ok := module.Next(mods, mod)
	if !ok {
		return module.Progress{}, false, nil
	}

	p, err := f.tx.ModuleProgress().GetOrCreate(f.ctx, f.userID, next.ID, f.now)
	if err != nil {
		return module.Progress{}, false, fmt.Errorf("progression: get module progress: %w", err)
	}
	if p.State != module.StateLocked {
		return p, false, nil
	}
	return f.unlock(p, true, TriggerPillars)
}

// CompleteModule moves the user's progress in mod from unlocked to completed.
func (f *Flow) CompleteModule(mod module.Module) (module.Progress, error) {
	p, found, err := f.tx.ModuleProgress().Find(f.ctx, f.userID, mod.ID)
	if err != nil {
		return module.Progress{}, fmt.Errorf("progression: find module progress: %w", err)
	}
	if !found {
		p = module.NewProgress(f.userID, mod.ID, f.now)
	}

	next, err := module.Complete(p, f.now)
	if err != nil {
		return p, err
	}
	if err := f.tx.ModuleProgress().Save(f.ctx, next); err != nil {
		return p, fmt.Errorf("progression: save module progress: %w", err)
	}
	f.Emit(shared.NewModuleCompletedEvent(f.userID, mod.ID, f.now))
	return next, nil
}
