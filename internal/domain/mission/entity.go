// Package mission contains missions, per-user mission progress and the
// requirement evaluator that auto-completes module missions.
package mission

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dividis/progress-engine/internal/domain/declaration"
	"github.com/dividis/progress-engine/internal/domain/shared"
	"github.com/dividis/progress-engine/internal/domain/statemachine"
)

// ══════════════════════════════════════════════════════════════════════════════
// MISSION
// ══════════════════════════════════════════════════════════════════════════════

// Frequency is the mission's re-evaluation cadence tag.
type Frequency string

const (
	FrequencyNone   Frequency = "none"
	FrequencyGlobal Frequency = "global"
	FrequencyDaily  Frequency = "daily"
	FrequencyWeekly Frequency = "weekly"
)

// ParseFrequency accepts an empty value as FrequencyNone.
func ParseFrequency(s string) (Frequency, error) {
	switch f := Frequency(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FrequencyNone, nil
	case FrequencyNone, FrequencyGlobal, FrequencyDaily, FrequencyWeekly:
		return f, nil
	default:
		return "", shared.Validation("mission", "ParseFrequency", fmt.Sprintf("unknown frequency %q", s))
	}
}

// Kind selects special handling for a mission.
type Kind string

const (
	// KindStandard missions complete explicitly or through requirements.
	KindStandard Kind = "standard"
	// KindDailyDeclaration shows declarations written today out of 1.
	KindDailyDeclaration Kind = "daily_declaration"
	// KindWeeklyStreak shows the global streak out of the weekly target.
	KindWeeklyStreak Kind = "weekly_streak"
	// KindWeeklyUnlock shows user-requested unlocks this week out of 1.
	KindWeeklyUnlock Kind = "weekly_unlock"
	// KindStreakDay completes automatically as soon as any streak reaches one day.
	KindStreakDay Kind = "streak_day"
)

// ParseKind validates a kind tag. Empty means "not set".
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case "":
		return "", nil
	case KindStandard, KindDailyDeclaration, KindWeeklyStreak, KindWeeklyUnlock, KindStreakDay:
		return k, nil
	default:
		return "", shared.Validation("mission", "ParseKind", fmt.Sprintf("unknown mission kind %q", s))
	}
}

// RequirementType is what a requirement refers to.
type RequirementType string

const (
	RequirementMission RequirementType = "mission"
	RequirementModule  RequirementType = "module"
	RequirementPillar  RequirementType = "pillar"
)

// Requirement is one conjunct of a mission's requirement list.
type Requirement struct {
	Type RequirementType `json:"type" yaml:"type"`
	ID   string          `json:"id" yaml:"id"`
}

// Mission is a catalogue entry. An empty ModuleID makes it global.
type Mission struct {
	ID            string
	ModuleID      string
	Title         string
	Description   string
	XPReward      int
	RequiredLevel int
	Frequency     Frequency
	Kind          Kind
	Requirements  []Requirement
	CreatedAt     time.Time
}

// IsGlobal reports whether the mission is not tied to a module.
func (m Mission) IsGlobal() bool {
	return m.ModuleID == ""
}

// Validate checks fields and requirement syntax. References to other
// missions and modules are checked by the catalogue loader.
func (m Mission) Validate() error {
	if m.ID == "" {
		return shared.Validation("mission", "Validate", "mission id is required")
	}
	if m.XPReward < 0 {
		return shared.Validation("mission", "Validate", fmt.Sprintf("mission %q: xp_reward cannot be negative", m.ID))
	}
	if m.RequiredLevel < 1 {
		return shared.Validation("mission", "Validate", fmt.Sprintf("mission %q: required_level must be >= 1", m.ID))
	}
	for i, r := range m.Requirements {
		if r.ID == "" {
			return shared.Validation("mission", "Validate", fmt.Sprintf("mission %q: requirement %d has no id", m.ID, i))
		}
		switch r.Type {
		case RequirementMission, RequirementModule:
		case RequirementPillar:
			if _, err := declaration.ParsePillar(r.ID); err != nil {
				return shared.WrapError("mission", "Validate", shared.ErrValidation,
					fmt.Sprintf("mission %q: requirement %d", m.ID, i), err)
			}
		default:
			return shared.Validation("mission", "Validate",
				fmt.Sprintf("mission %q: requirement %d has unknown type %q", m.ID, i, r.Type))
		}
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

// State is the lifecycle state of a user's mission progress.
type State string

const (
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// ParseState parses a persisted state value.
func ParseState(s string) (State, error) {
	st := State(strings.ToLower(strings.TrimSpace(s)))
	if !Machine.Known(st) {
		return "", shared.Validation("mission", "ParseState", fmt.Sprintf("unknown mission state %q", s))
	}
	return st, nil
}

// Machine is the mission-progress transition table.
var Machine = statemachine.New("mission_progress", map[State][]State{
	StateActive:    {StateCompleted, StateFailed},
	StateCompleted: {},
	StateFailed:    {},
})

// Progress is one user's state in one mission. (UserID, MissionID) is unique.
type Progress struct {
	UserID      string
	MissionID   string
	State       State
	StartedAt   time.Time
	CompletedAt *time.Time
}

// NewProgress returns an active progress row.
func NewProgress(userID, missionID string, now time.Time) Progress {
	return Progress{
		UserID:    userID,
		MissionID: missionID,
		State:     StateActive,
		StartedAt: now,
	}
}

// Complete moves active→completed and stamps CompletedAt. An already completed
// progress is returned unchanged with changed=false.
func Complete(p Progress, now time.Time) (next Progress, changed bool, err error) {
	if p.State == StateCompleted {
		return p, false, nil
	}
	if err := Machine.Validate(p.State, StateCompleted); err != nil {
		return p, false, err
	}
	t := now
	p.State = StateCompleted
	p.CompletedAt = &t
	return p, true, nil
}

// Fail moves active→failed.
func Fail(p Progress) (Progress, error) {
	if err := Machine.Validate(p.State, StateFailed); err != nil {
		return p, err
	}
	p.State = StateFailed
	return p, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORIES
// ══════════════════════════════════════════════════════════════════════════════

// Repository is the mission catalogue store.
type Repository interface {
	// List returns all missions in catalogue order (created_at, id).
	List(ctx context.Context) ([]Mission, error)

	// ListByModule returns the missions of one module.
	ListByModule(ctx context.Context, moduleID string) ([]Mission, error)

	// ListByKind returns the global missions of a kind.
	ListByKind(ctx context.Context, kind Kind) ([]Mission, error)

	// Get returns a mission or a not-found error.
	Get(ctx context.Context, id string) (Mission, error)

	// Upsert inserts or replaces a catalogue entry.
	Upsert(ctx context.Context, m Mission) error
}

// ProgressRepository stores per-user mission progress.
type ProgressRepository interface {
	// GetOrCreate returns the (user, mission) row, creating it active if absent.
	// Inside a transaction the row is locked until commit.
	GetOrCreate(ctx context.Context, userID, missionID string, now time.Time) (Progress, error)

	// Find returns the row if it exists.
	Find(ctx context.Context, userID, missionID string) (Progress, bool, error)

	// ListByUser returns every mission progress of the user.
	ListByUser(ctx context.Context, userID string) ([]Progress, error)

	// CompletedIDs returns the ids of the user's completed missions.
	CompletedIDs(ctx context.Context, userID string) (map[string]bool, error)

	// Save persists a progress row.
	Save(ctx context.Context, p Progress) error
}
