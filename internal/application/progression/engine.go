// Package progression sequences the steps of every triggering flow: XP award,
// level recompute, streak update, requirement evaluation and cascading unlocks.
// Each step runs against the repositories of one transaction; commands and
// queries own the transaction boundary and publish the collected events after
// it commits.
package progression

import (
	"context"
	"fmt"
	"time"

	"github.com/dividis/progress-engine/internal/application/uow"
	"github.com/dividis/progress-engine/internal/domain/declaration"
	"github.com/dividis/progress-engine/internal/domain/module"
	"github.com/dividis/progress-engine/internal/domain/profile"
	"github.com/dividis/progress-engine/internal/domain/shared"
)

// Config holds the tunable rewards.
type Config struct {
	// DeclarationBaseXP is awarded for the first declaration of a pillar in module 1.
	DeclarationBaseXP int

	// DeclarationStepXP is added per module order step.
	DeclarationStepXP int
}

// DefaultConfig returns the production rewards.
func DefaultConfig() Config {
	return Config{
		DeclarationBaseXP: declaration.DefaultBaseXP,
		DeclarationStepXP: declaration.DefaultStepXP,
	}
}

// Engine holds the rule set shared by all flows.
type Engine struct {
	rules *module.Registry
	cfg   Config
}

// NewEngine creates an engine. A nil registry means "default XP rule only".
func NewEngine(rules *module.Registry, cfg Config) *Engine {
	if rules == nil {
		rules = module.NewRegistry()
	}
	if cfg.DeclarationBaseXP == 0 && cfg.DeclarationStepXP == 0 {
		cfg = DefaultConfig()
	}
	return &Engine{rules: rules, cfg: cfg}
}

// Rules returns the unlock rule registry.
func (e *Engine) Rules() *module.Registry {
	return e.rules
}

// DeclarationXP returns the reward for a first declaration in a module of the given order.
func (e *Engine) DeclarationXP(order int) int {
	return declaration.XPForModule(order, e.cfg.DeclarationBaseXP, e.cfg.DeclarationStepXP)
}

// Flow is one user's progression run inside one transaction.
// It is not safe for concurrent use.
type Flow struct {
	engine  *Engine
	ctx     context.Context
	tx      uow.Tx
	userID  string
	now     time.Time
	profile profile.Profile
	events  []shared.Event

	inStreakHook bool

	stamped int
	deleted bool
}

// Begin locks the user's profile and starts a flow. Every flow of the same
// user queues on that lock, so read-then-write sequences never interleave.
func (e *Engine) Begin(ctx context.Context, tx uow.Tx, userID string, now time.Time) (*Flow, error) {
	p, err := tx.Profiles().GetForUpdate(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Flow{
		engine:  e,
		ctx:     ctx,
		tx:      tx,
		userID:  userID,
		now:     now,
		profile: p,
	}, nil
}

// UserID returns the flow's user.
func (f *Flow) UserID() string { return f.userID }

// Now returns the flow's clock reading.
func (f *Flow) Now() time.Time { return f.now }

// Context returns the transaction's context.
func (f *Flow) Context() context.Context { return f.ctx }

// Tx returns the flow's repositories.
func (f *Flow) Tx() uow.Tx { return f.tx }

// Profile returns the profile as of the last step.
func (f *Flow) Profile() profile.Profile { return f.profile }

// Events returns the events collected so far.
func (f *Flow) Events() []shared.Event { return f.events }

// Emit appends an event to publish after commit.
func (f *Flow) Emit(e shared.Event) {
	f.events = append(f.events, e)
}

// MarkDeleted records that the flow removed the user's profile. Stamp is a
// no-op afterwards.
func (f *Flow) MarkDeleted() { f.deleted = true }

// Stamp moves the profile to a new revision when events were emitted since
// the last stamp. Every flow that changes state emits at least one event, so
// callers run it once before committing.
func (f *Flow) Stamp() error {
	if f.deleted || len(f.events) == f.stamped {
		return nil
	}
	next := f.profile
	next.Revision = profile.NextRevision(next.Revision, f.now)
	if err := f.tx.Profiles().Save(f.ctx, next); err != nil {
		return fmt.Errorf("progression: stamp revision: %w", err)
	}
	f.profile = next
	f.stamped = len(f.events)
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// XP
// ─────────────────────────────────────────────────────────────────────────────

// AwardXP credits XP and persists the recomputed level.
func (f *Flow) AwardXP(amount int, source, sourceID string) (profile.Award, error) {
	next, award, err := profile.AwardXP(f.profile, amount, f.now)
	if err != nil {
		return award, err
	}
	if amount == 0 {
		return award, nil
	}

	if err := f.tx.Profiles().Save(f.ctx, next); err != nil {
		return award, fmt.Errorf("progression: save profile: %w", err)
	}
	f.profile = next

	f.Emit(shared.NewXPGainedEvent(f.userID, amount, award.NewXP, source, sourceID, f.now))
	if award.LeveledUp() {
		f.Emit(shared.NewLevelUpEvent(f.userID, award.OldLevel, award.NewLevel, f.now))
	}
	return award, nil
}
