// Package module contains sequential content modules, per-user module progress
// and the rules deciding when a user may unlock a module.
package module

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dividis/progress-engine/internal/domain/shared"
	"github.com/dividis/progress-engine/internal/domain/statemachine"
)

// State is the lifecycle state of a module or of a user's progress in it.
type State string

const (
	StateLocked    State = "locked"
	StateUnlocked  State = "unlocked"
	StateCompleted State = "completed"
)

// Machine is the module/module-progress transition table.
var Machine = statemachine.New("module_progress", map[State][]State{
	StateLocked:    {StateUnlocked},
	StateUnlocked:  {StateCompleted},
	StateCompleted: {},
})

// ParseState parses a persisted state value.
func ParseState(s string) (State, error) {
	st := State(strings.ToLower(strings.TrimSpace(s)))
	if !Machine.Known(st) {
		return "", shared.Validation("module", "ParseState", fmt.Sprintf("unknown module state %q", s))
	}
	return st, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// MODULE
// ══════════════════════════════════════════════════════════════════════════════

// Module is a catalogue entry. Order is unique across modules and defines the
// unlock sequence. State is the template's informational state only; per-user
// state lives in Progress.
type Module struct {
	ID          string
	Title       string
	Description string
	Order       int
	XPRequired  int
	State       State
}

// Validate checks a single catalogue entry.
func (m Module) Validate() error {
	if m.ID == "" {
		return shared.Validation("module", "Validate", "module id is required")
	}
	if m.Order < 1 {
		return shared.Validation("module", "Validate", fmt.Sprintf("module %q: order must be >= 1", m.ID))
	}
	if m.XPRequired < 0 {
		return shared.Validation("module", "Validate", fmt.Sprintf("module %q: xp_required cannot be negative", m.ID))
	}
	return nil
}

// SortByOrder sorts modules in place by ascending order.
func SortByOrder(mods []Module) {
	sort.SliceStable(mods, func(i, j int) bool { return mods[i].Order < mods[j].Order })
}

// ValidateCatalog checks every module and that order values are distinct.
func ValidateCatalog(mods []Module) error {
	seenOrder := make(map[int]string, len(mods))
	seenID := make(map[string]struct{}, len(mods))
	for _, m := range mods {
		if err := m.Validate(); err != nil {
			return err
		}
		if _, dup := seenID[m.ID]; dup {
			return shared.Validation("module", "ValidateCatalog", fmt.Sprintf("duplicate module id %q", m.ID))
		}
		seenID[m.ID] = struct{}{}
		if other, dup := seenOrder[m.Order]; dup {
			return shared.Validation("module", "ValidateCatalog",
				fmt.Sprintf("modules %q and %q share order %d", other, m.ID, m.Order))
		}
		seenOrder[m.Order] = m.ID
	}
	return nil
}

// First returns the module with the minimum order.
func First(mods []Module) (Module, bool) {
	if len(mods) == 0 {
		return Module{}, false
	}
	first := mods[0]
	for _, m := range mods[1:] {
		if m.Order < first.Order {
			first = m
		}
	}
	return first, true
}

// Next returns the module with the smallest order greater than current.Order.
func Next(mods []Module, current Module) (Module, bool) {
	var next Module
	found := false
	for _, m := range mods {
		if m.Order <= current.Order {
			continue
		}
		if !found || m.Order < next.Order {
			next = m
			found = true
		}
	}
	return next, found
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

// Progress is one user's state in one module. (UserID, ModuleID) is unique.
type Progress struct {
	UserID       string
	ModuleID     string
	State        State
	AutoUnlocked bool
	UnlockedAt   *time.Time
	CompletedAt  *time.Time
	LastActivity time.Time
}

// NewProgress returns the lazily created default: locked.
func NewProgress(userID, moduleID string, now time.Time) Progress {
	return Progress{
		UserID:       userID,
		ModuleID:     moduleID,
		State:        StateLocked,
		LastActivity: now,
	}
}

// IsAccessible reports whether the module's content is open to the user.
// Completed modules stay accessible.
func (p Progress) IsAccessible() bool {
	return p.State == StateUnlocked || p.State == StateCompleted
}

// Transition validates and applies a state change, stamping the matching timestamp.
func Transition(p Progress, to State, now time.Time) (Progress, error) {
	if err := Machine.Validate(p.State, to); err != nil {
		return p, err
	}
	p.State = to
	p.LastActivity = now
	switch to {
	case StateUnlocked:
		t := now
		p.UnlockedAt = &t
	case StateCompleted:
		t := now
		p.CompletedAt = &t
	}
	return p, nil
}

// Unlock moves locked→unlocked. An already unlocked progress is returned
// unchanged with changed=false; a completed one is an InvalidTransition.
func Unlock(p Progress, auto bool, now time.Time) (next Progress, changed bool, err error) {
	if p.State == StateUnlocked {
		return p, false, nil
	}
	next, err = Transition(p, StateUnlocked, now)
	if err != nil {
		return p, false, err
	}
	next.AutoUnlocked = auto
	return next, true, nil
}

// ForceUnlock sets the state to unlocked without consulting the table.
// Only for callers that have already established the preconditions, such as
// opening the first module at registration.
func ForceUnlock(p Progress, now time.Time) Progress {
	p.State = StateUnlocked
	p.AutoUnlocked = true
	p.LastActivity = now
	t := now
	p.UnlockedAt = &t
	p.CompletedAt = nil
	return p
}

// Complete moves unlocked→completed.
func Complete(p Progress, now time.Time) (Progress, error) {
	return Transition(p, StateCompleted, now)
}

// Touch records activity in the module without changing its state.
func Touch(p Progress, now time.Time) Progress {
	p.LastActivity = now
	return p
}

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORIES
// ══════════════════════════════════════════════════════════════════════════════

// Repository is the module catalogue store.
type Repository interface {
	// List returns all modules ordered by ascending order.
	List(ctx context.Context) ([]Module, error)

	// Get returns a module or a not-found error.
	Get(ctx context.Context, id string) (Module, error)

	// Upsert inserts or replaces a catalogue entry.
	Upsert(ctx context.Context, m Module) error
}

// ProgressRepository stores per-user module progress.
type ProgressRepository interface {
	// GetOrCreate returns the row for (user, module), creating it locked if absent.
	// Inside a transaction the row is locked until commit.
	GetOrCreate(ctx context.Context, userID, moduleID string, now time.Time) (Progress, error)

	// Find returns the row if it exists.
	Find(ctx context.Context, userID, moduleID string) (Progress, bool, error)

	// ListByUser returns every progress row of the user.
	ListByUser(ctx context.Context, userID string) ([]Progress, error)

	// Save persists a progress row.
	Save(ctx context.Context, p Progress) error
}
