package mission

import (
	"github.com/dividis/progress-engine/internal/domain/declaration"
)

// Facts is the snapshot of user state the requirement evaluator reads.
// Pillars are always those of the module being evaluated.
type Facts struct {
	CompletedMissions map[string]bool
	AccessibleModules map[string]bool
	DeclaredPillars   map[declaration.Pillar]bool
	Level             int
}

// Unmet returns the requirements of m that do not hold. An empty result means
// the conjunction is satisfied; an empty requirement list is always satisfied.
func Unmet(m Mission, f Facts) []Requirement {
	var out []Requirement
	for _, r := range m.Requirements {
		if !holds(r, f) {
			out = append(out, r)
		}
	}
	return out
}

func holds(r Requirement, f Facts) bool {
	switch r.Type {
	case RequirementMission:
		return f.CompletedMissions[r.ID]
	case RequirementModule:
		return f.AccessibleModules[r.ID]
	case RequirementPillar:
		p, err := declaration.ParsePillar(r.ID)
		if err != nil {
			return false
		}
		return f.DeclaredPillars[p]
	default:
		return false
	}
}

// Eligible reports whether every requirement holds and the level gate passes.
func Eligible(m Mission, f Facts) bool {
	if m.RequiredLevel > f.Level {
		return false
	}
	return len(Unmet(m, f)) == 0
}

// Candidates walks the module's missions in order and returns those that
// should be completed now. A mission completed earlier in the walk counts
// for the missions after it. failed holds missions that may not complete.
func Candidates(missions []Mission, f Facts, failed map[string]bool) []Mission {
	completed := make(map[string]bool, len(f.CompletedMissions))
	for id, ok := range f.CompletedMissions {
		completed[id] = ok
	}
	f.CompletedMissions = completed

	var out []Mission
	for _, m := range missions {
		if completed[m.ID] || failed[m.ID] {
			continue
		}
		if !Eligible(m, f) {
			continue
		}
		out = append(out, m)
		completed[m.ID] = true
	}
	return out
}
