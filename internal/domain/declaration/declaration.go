// Package declaration models the pillar declarations users write inside a module.
package declaration

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gosimple/unidecode"

	"github.com/dividis/progress-engine/internal/domain/shared"
)

// Pillar is one of the four fixed reflection categories of a module.
type Pillar string

const (
	Vision      Pillar = "Vision"
	Proposito   Pillar = "Proposito"
	Creencias   Pillar = "Creencias"
	Estrategias Pillar = "Estrategias"
)

// Pillars lists every pillar in display order.
var Pillars = []Pillar{Vision, Proposito, Creencias, Estrategias}

// MaxTextLength bounds a declaration body, in runes.
const MaxTextLength = 2000

// ParsePillar accepts any casing and accented spellings ("Visión", "propósito").
func ParsePillar(s string) (Pillar, error) {
	key := strings.ToLower(strings.TrimSpace(unidecode.Unidecode(s)))
	for _, p := range Pillars {
		if strings.ToLower(string(p)) == key {
			return p, nil
		}
	}
	return "", shared.Validation("declaration", "ParsePillar", fmt.Sprintf("unknown pillar %q", s))
}

// HasAll reports whether every pillar is present in the set.
func HasAll(declared map[Pillar]bool) bool {
	for _, p := range Pillars {
		if !declared[p] {
			return false
		}
	}
	return true
}

// XP rewards for the first declaration in a (module, pillar) pair.
const (
	DefaultBaseXP = 20
	DefaultStepXP = 10
)

// XPForModule returns base + step*(order-1).
func XPForModule(order, base, step int) int {
	if order < 1 {
		order = 1
	}
	return base + step*(order-1)
}

// Declaration is unique per (user, module, pillar, text).
type Declaration struct {
	ID        string
	UserID    string
	ModuleID  string
	Pillar    Pillar
	Text      string
	CreatedAt time.Time
}

// New validates and builds a declaration.
func New(id, userID, moduleID string, pillar Pillar, text string, now time.Time) (Declaration, error) {
	text = strings.TrimSpace(text)
	switch {
	case text == "":
		return Declaration{}, shared.Validation("declaration", "New", "text is required")
	case utf8.RuneCountInString(text) > MaxTextLength:
		return Declaration{}, shared.Validation("declaration", "New",
			fmt.Sprintf("text exceeds %d characters", MaxTextLength))
	case moduleID == "":
		return Declaration{}, shared.Validation("declaration", "New", "module is required")
	}
	return Declaration{
		ID:        id,
		UserID:    userID,
		ModuleID:  moduleID,
		Pillar:    pillar,
		Text:      text,
		CreatedAt: now,
	}, nil
}

// ErrDuplicate is returned when the exact same declaration already exists.
var ErrDuplicate = shared.NewDomainError("declaration", "Create", shared.ErrValidation,
	"an identical declaration already exists for this pillar")

// Repository stores declarations.
type Repository interface {
	// Create inserts the declaration or returns ErrDuplicate.
	Create(ctx context.Context, d Declaration) error

	// CountByPillar counts the user's declarations for (module, pillar).
	CountByPillar(ctx context.Context, userID, moduleID string, pillar Pillar) (int, error)

	// Pillars returns the set of pillars the user has declared in a module.
	Pillars(ctx context.Context, userID, moduleID string) (map[Pillar]bool, error)

	// CountBetween counts the user's declarations created in [from, to).
	CountBetween(ctx context.Context, userID string, from, to time.Time) (int, error)

	// ListByModule returns the user's declarations in a module, oldest first.
	ListByModule(ctx context.Context, userID, moduleID string) ([]Declaration, error)
}
