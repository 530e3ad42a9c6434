package module

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/dividis/progress-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// UNLOCK RULES
// ══════════════════════════════════════════════════════════════════════════════

// Facts is what the unlock rules may look at.
type Facts struct {
	XP                int
	CompletedMissions map[string]bool
}

// Decision is the outcome of evaluating a rule.
type Decision struct {
	Allowed         bool
	Reasons         []string
	XPShortfall     int
	MissingMissions []string
}

// Reason joins all failed-condition reasons into one message.
func (d Decision) Reason() string {
	return strings.Join(d.Reasons, "; ")
}

func allow() Decision { return Decision{Allowed: true} }

// Rule decides whether a module may be unlocked.
type Rule func(m Module, f Facts) Decision

// XPAtLeast requires a fixed amount of XP.
func XPAtLeast(min int) Rule {
	return func(_ Module, f Facts) Decision {
		return xpDecision(min, f.XP)
	}
}

// RequiredXP requires the module's own xp_required. It is the default rule.
func RequiredXP() Rule {
	return func(m Module, f Facts) Decision {
		return xpDecision(m.XPRequired, f.XP)
	}
}

func xpDecision(min, have int) Decision {
	if have >= min {
		return allow()
	}
	short := min - have
	return Decision{
		Reasons:     []string{fmt.Sprintf("you need at least %d XP to unlock this module (%d more)", min, short)},
		XPShortfall: short,
	}
}

// MissionsCompleted requires every listed mission to be completed.
func MissionsCompleted(ids ...string) Rule {
	return func(_ Module, f Facts) Decision {
		var missing []string
		for _, id := range ids {
			if !f.CompletedMissions[id] {
				missing = append(missing, id)
			}
		}
		if len(missing) == 0 {
			return allow()
		}
		reasons := make([]string, len(missing))
		for i, id := range missing {
			reasons[i] = fmt.Sprintf("required mission %q not completed", id)
		}
		return Decision{Reasons: reasons, MissingMissions: missing}
	}
}

// AllOf is the conjunction of rules. Every failing condition is reported.
func AllOf(rules ...Rule) Rule {
	return func(m Module, f Facts) Decision {
		out := allow()
		for _, r := range rules {
			d := r(m, f)
			if d.Allowed {
				continue
			}
			out.Allowed = false
			out.Reasons = append(out.Reasons, d.Reasons...)
			if d.XPShortfall > out.XPShortfall {
				out.XPShortfall = d.XPShortfall
			}
			out.MissingMissions = append(out.MissingMissions, d.MissingMissions...)
		}
		return out
	}
}

// UnlockSpec is the data form of an override rule as it appears in the catalogue.
type UnlockSpec struct {
	// MinXP replaces the module's xp_required when set.
	MinXP *int
	// RequiredMissions must all be completed.
	RequiredMissions []string
}

// Rule compiles the spec.
func (s UnlockSpec) Rule() Rule {
	xp := RequiredXP()
	if s.MinXP != nil {
		xp = XPAtLeast(*s.MinXP)
	}
	if len(s.RequiredMissions) == 0 {
		return xp
	}
	return AllOf(xp, MissionsCompleted(s.RequiredMissions...))
}

// ══════════════════════════════════════════════════════════════════════════════
// REGISTRY
// ══════════════════════════════════════════════════════════════════════════════

// Registry maps module ids to rules. Modules without an entry use RequiredXP.
type Registry struct {
	mu    sync.RWMutex
	rules map[string]Rule
	def   Rule
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		rules: make(map[string]Rule),
		def:   RequiredXP(),
	}
}

// Register sets the rule for a module, replacing any previous one.
func (r *Registry) Register(moduleID string, rule Rule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules[moduleID] = rule
}

// Replace swaps the whole override set at once.
func (r *Registry) Replace(rules map[string]Rule) {
	next := make(map[string]Rule, len(rules))
	for id, rule := range rules {
		next[id] = rule
	}
	r.mu.Lock()
	r.rules = next
	r.mu.Unlock()
}

// Overrides returns the ids that have a non-default rule.
func (r *Registry) Overrides() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.rules))
	for id := range r.rules {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// RuleFor returns the rule for a module.
func (r *Registry) RuleFor(moduleID string) Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if rule, ok := r.rules[moduleID]; ok {
		return rule
	}
	return r.def
}

// Evaluate runs the module's rule.
func (r *Registry) Evaluate(m Module, f Facts) Decision {
	return r.RuleFor(m.ID)(m, f)
}

// ══════════════════════════════════════════════════════════════════════════════
// DENIAL
// ══════════════════════════════════════════════════════════════════════════════

// DenialError reports an unlock request whose preconditions are unmet.
type DenialError struct {
	ModuleID string
	Decision Decision
}

// Error implements the error interface.
func (e *DenialError) Error() string {
	return fmt.Sprintf("module.Unlock: module %q cannot be unlocked: %s", e.ModuleID, e.Decision.Reason())
}

// Is matches shared.ErrPermissionDenied.
func (e *DenialError) Is(target error) bool {
	return target == shared.ErrPermissionDenied
}
