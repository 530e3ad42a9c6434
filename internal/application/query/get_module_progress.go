package query

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/dividis/progress-engine/internal/application/progression"
	"github.com/dividis/progress-engine/internal/domain/declaration"
	"github.com/dividis/progress-engine/internal/domain/mission"
	"github.com/dividis/progress-engine/internal/domain/module"
	"github.com/dividis/progress-engine/internal/domain/shared"
	"github.com/dividis/progress-engine/internal/domain/streak"
)

// GetModuleProgressQuery asks for one module as seen by one user.
type GetModuleProgressQuery struct {
	UserID   string
	ModuleID string
}

// Validate validates the query.
func (q GetModuleProgressQuery) Validate() error {
	if _, err := shared.NewUserID(q.UserID); err != nil {
		return err
	}
	if q.ModuleID == "" {
		return shared.Validation("query", "GetModuleProgress", "module_id is required")
	}
	return nil
}

// ModuleMission pairs a mission of the module with the user's state in it.
// State is "active" when the user has no row yet.
type ModuleMission struct {
	Mission  mission.Mission
	State    mission.State
	Progress *mission.Progress
}

// ModuleProgressView is the module page view-model.
type ModuleProgressView struct {
	Module   module.Module
	Progress module.Progress
	Missions []ModuleMission
	Streak   streak.Streak

	// DeclaredPillars lists the pillars the user has written in this module.
	DeclaredPillars []declaration.Pillar
}

// GetModuleProgressHandler handles the GetModuleProgressQuery.
type GetModuleProgressHandler struct {
	deps Deps
}

// NewGetModuleProgressHandler creates a new GetModuleProgressHandler.
func NewGetModuleProgressHandler(deps Deps) *GetModuleProgressHandler {
	return &GetModuleProgressHandler{deps: deps.withDefaults()}
}

// Handle executes the query. Missing progress and streak rows are created.
func (h *GetModuleProgressHandler) Handle(ctx context.Context, q GetModuleProgressQuery) (result *ModuleProgressView, err error) {
	ctx, span := startSpan(ctx, "get_module_progress", q.UserID, attribute.String("module.id", q.ModuleID))
	defer func() { endSpan(span, err) }()

	if err := q.Validate(); err != nil {
		return nil, err
	}

	err = h.deps.syncThen(ctx, q.UserID, func(f *progression.Flow) error {
		ctx, tx := f.Context(), f.Tx()

		mod, err := tx.Modules().Get(ctx, q.ModuleID)
		if err != nil {
			return err
		}
		view := &ModuleProgressView{Module: mod}

		if view.Progress, err = tx.ModuleProgress().GetOrCreate(ctx, q.UserID, mod.ID, f.Now()); err != nil {
			return fmt.Errorf("module progress: %w", err)
		}
		if view.Streak, err = tx.Streaks().GetOrCreate(ctx, q.UserID, mod.ID, f.Now()); err != nil {
			return fmt.Errorf("module progress: streak: %w", err)
		}

		missions, err := tx.Missions().ListByModule(ctx, mod.ID)
		if err != nil {
			return fmt.Errorf("module progress: list missions: %w", err)
		}
		for _, m := range missions {
			mm := ModuleMission{Mission: m, State: mission.StateActive}
			p, found, err := tx.MissionProgress().Find(ctx, q.UserID, m.ID)
			if err != nil {
				return fmt.Errorf("module progress: find mission progress: %w", err)
			}
			if found {
				mm.State = p.State
				mm.Progress = &p
			}
			view.Missions = append(view.Missions, mm)
		}

		declared, err := tx.Declarations().Pillars(ctx, q.UserID, mod.ID)
		if err != nil {
			return fmt.Errorf("module progress: pillars: %w", err)
		}
		for _, p := range declaration.Pillars {
			if declared[p] {
				view.DeclaredPillars = append(view.DeclaredPillars, p)
			}
		}

		result = view
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
