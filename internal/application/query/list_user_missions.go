package query

import (
	"context"
	"fmt"
	"time"

	"github.com/dividis/progress-engine/internal/application/uow"
	"github.com/dividis/progress-engine/internal/domain/mission"
	"github.com/dividis/progress-engine/internal/domain/module"
	"github.com/dividis/progress-engine/internal/domain/shared"
	"github.com/dividis/progress-engine/internal/domain/streak"
	"github.com/dividis/progress-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// LIST USER MISSIONS QUERY
// Every mission with a state computed for display. Global missions of a
// tracked kind carry a progress fraction; module missions in a closed module
// are shown as blocked.
// ══════════════════════════════════════════════════════════════════════════════

// Display states. Blocked exists only in views.
const (
	ViewActive    = "active"
	ViewCompleted = "completed"
	ViewFailed    = "failed"
	ViewBlocked   = "blocked"
)

// Mission scopes.
const (
	ScopeGlobal = "global"
	ScopeModule = "module"
)

// ListUserMissionsQuery contains the query parameters.
type ListUserMissionsQuery struct {
	UserID string
}

// Validate validates the query.
func (q ListUserMissionsQuery) Validate() error {
	_, err := shared.NewUserID(q.UserID)
	return err
}

// MissionView is one row of the mission list.
type MissionView struct {
	ID            string                `json:"id"`
	Title         string                `json:"title"`
	Description   string                `json:"description"`
	XPReward      int                   `json:"xp_reward"`
	RequiredLevel int                   `json:"required_level"`
	Frequency     mission.Frequency     `json:"frequency"`
	Kind          mission.Kind          `json:"kind"`
	Scope         string                `json:"scope"`
	ModuleID      string                `json:"module_id,omitempty"`
	Requirements  []mission.Requirement `json:"requirements,omitempty"`
	State         string                `json:"state"`
	Progress      *mission.Fraction     `json:"progress,omitempty"`
	CompletedAt   *time.Time            `json:"completed_at,omitempty"`
}

// ListUserMissionsHandler handles the ListUserMissionsQuery.
type ListUserMissionsHandler struct {
	deps Deps
}

// NewListUserMissionsHandler creates a new ListUserMissionsHandler.
func NewListUserMissionsHandler(deps Deps) *ListUserMissionsHandler {
	return &ListUserMissionsHandler{deps: deps.withDefaults()}
}

// Handle returns global missions first, then module missions, each in
// catalogue order.
func (h *ListUserMissionsHandler) Handle(ctx context.Context, q ListUserMissionsQuery) (result []MissionView, err error) {
	ctx, span := startSpan(ctx, "list_user_missions", q.UserID)
	defer func() { endSpan(span, err) }()

	if err := q.Validate(); err != nil {
		return nil, err
	}

	now := h.deps.Clock.Now()
	err = h.deps.Store.WithinTx(ctx, func(ctx context.Context, tx uow.Tx) error {
		if _, err := tx.Profiles().Get(ctx, q.UserID); err != nil {
			return err
		}

		missions, err := tx.Missions().List(ctx)
		if err != nil {
			return fmt.Errorf("list missions: %w", err)
		}
		progress, err := tx.MissionProgress().ListByUser(ctx, q.UserID)
		if err != nil {
			return fmt.Errorf("list missions: progress: %w", err)
		}
		byMission := make(map[string]mission.Progress, len(progress))
		for _, p := range progress {
			byMission[p.MissionID] = p
		}
		modules, err := tx.ModuleProgress().ListByUser(ctx, q.UserID)
		if err != nil {
			return fmt.Errorf("list missions: module progress: %w", err)
		}
		accessible := make(map[string]bool, len(modules))
		for _, mp := range modules {
			accessible[mp.ModuleID] = mp.IsAccessible()
		}

		stats, err := h.stats(ctx, tx, q.UserID, modules, now)
		if err != nil {
			return err
		}

		var globals, scoped []MissionView
		for _, m := range missions {
			v := newMissionView(m)
			p, found := byMission[m.ID]
			if found {
				v.State = string(p.State)
				v.CompletedAt = p.CompletedAt
			}

			if m.IsGlobal() {
				if frac, ok := mission.ProgressFraction(m.Kind, stats); ok {
					v.Progress = &frac
					if frac.Reached() && v.State == ViewActive {
						v.State = ViewCompleted
					}
				}
				globals = append(globals, v)
				continue
			}

			if !accessible[m.ModuleID] && v.State == ViewActive {
				v.State = ViewBlocked
			}
			scoped = append(scoped, v)
		}
		result = append(globals, scoped...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func newMissionView(m mission.Mission) MissionView {
	v := MissionView{
		ID:            m.ID,
		Title:         m.Title,
		Description:   m.Description,
		XPReward:      m.XPReward,
		RequiredLevel: m.RequiredLevel,
		Frequency:     m.Frequency,
		Kind:          m.Kind,
		Scope:         ScopeModule,
		ModuleID:      m.ModuleID,
		Requirements:  m.Requirements,
		State:         ViewActive,
	}
	if m.IsGlobal() {
		v.Scope = ScopeGlobal
	}
	return v
}

// stats gathers the counters behind the progress fractions. "Today" and
// "this week" (from Monday) are taken in the configured location.
func (h *ListUserMissionsHandler) stats(ctx context.Context, tx uow.Tx, userID string, modules []module.Progress, now time.Time) (mission.Stats, error) {
	loc := h.deps.Location

	today, err := tx.Declarations().CountBetween(ctx, userID,
		timeutil.StartOfDay(now, loc), timeutil.EndOfDay(now, loc))
	if err != nil {
		return mission.Stats{}, fmt.Errorf("list missions: declarations today: %w", err)
	}

	global := 0
	s, found, err := tx.Streaks().Find(ctx, userID, streak.Global)
	if err != nil {
		return mission.Stats{}, fmt.Errorf("list missions: global streak: %w", err)
	}
	if found {
		global = s.Current
	}

	weekStart, weekEnd := timeutil.StartOfWeek(now, loc), timeutil.EndOfWeek(now, loc)
	manual := 0
	for _, mp := range modules {
		if mp.AutoUnlocked || !mp.IsAccessible() || mp.UnlockedAt == nil {
			continue
		}
		if timeutil.InRange(*mp.UnlockedAt, weekStart, weekEnd) {
			manual++
		}
	}

	return mission.Stats{
		DeclarationsToday:     today,
		GlobalStreak:          global,
		ManualUnlocksThisWeek: manual,
		WeeklyStreakTarget:    h.deps.WeeklyStreakTarget,
	}, nil
}
