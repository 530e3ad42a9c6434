// Package statemachine validates state changes against static transition tables.
// Entities keep their transition rules as data; callers ask the machine whether a
// move is legal before applying it.
package statemachine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dividis/progress-engine/internal/domain/shared"
)

// State is any string-backed state enum.
type State interface {
	~string
}

// Machine is an immutable transition table for one entity kind.
type Machine[S State] struct {
	entity  string
	allowed map[S]map[S]struct{}
}

// New builds a machine from allowed[from] -> targets.
// States that only appear as targets are terminal.
func New[S State](entity string, table map[S][]S) *Machine[S] {
	m := &Machine[S]{
		entity:  entity,
		allowed: make(map[S]map[S]struct{}, len(table)),
	}
	for from, targets := range table {
		set := make(map[S]struct{}, len(targets))
		for _, to := range targets {
			set[to] = struct{}{}
			if _, ok := m.allowed[to]; !ok {
				m.allowed[to] = map[S]struct{}{}
			}
		}
		m.allowed[from] = set
	}
	return m
}

// Entity returns the entity name used in errors.
func (m *Machine[S]) Entity() string {
	return m.entity
}

// Allowed returns the sorted set of states reachable from `from` in one step.
func (m *Machine[S]) Allowed(from S) []S {
	set := m.allowed[from]
	out := make([]S, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Known reports whether the state appears in the table.
func (m *Machine[S]) Known(s S) bool {
	_, ok := m.allowed[s]
	return ok
}

// CanTransition reports whether from -> to is in the table.
func (m *Machine[S]) CanTransition(from, to S) bool {
	_, ok := m.allowed[from][to]
	return ok
}

// IsTerminal reports whether no transitions leave the state.
func (m *Machine[S]) IsTerminal(s S) bool {
	return m.Known(s) && len(m.allowed[s]) == 0
}

// Validate returns an *InvalidTransitionError when to is not allowed from `from`.
// It never treats a self-transition as a no-op.
func (m *Machine[S]) Validate(from, to S) error {
	if m.CanTransition(from, to) {
		return nil
	}
	allowed := m.Allowed(from)
	names := make([]string, len(allowed))
	for i, s := range allowed {
		names[i] = string(s)
	}
	return &InvalidTransitionError{
		Entity:  m.entity,
		From:    string(from),
		To:      string(to),
		Allowed: names,
	}
}

// InvalidTransitionError carries the rejected move and what would have been legal.
type InvalidTransitionError struct {
	Entity  string
	From    string
	To      string
	Allowed []string
}

// Error implements the error interface.
func (e *InvalidTransitionError) Error() string {
	allowed := "none"
	if len(e.Allowed) > 0 {
		allowed = strings.Join(e.Allowed, ", ")
	}
	return fmt.Sprintf("%s: cannot transition from %q to %q (allowed: %s)", e.Entity, e.From, e.To, allowed)
}

// Is matches shared.ErrInvalidTransition.
func (e *InvalidTransitionError) Is(target error) bool {
	return target == shared.ErrInvalidTransition
}
