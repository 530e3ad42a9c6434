package shared

import (
	"fmt"
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════
// ID Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// UserID identifies the owner of every progress row. Identity is issued by
// the authentication layer; the engine only requires it to be non-blank.
type UserID string

// String returns the string representation.
func (u UserID) String() string {
	return string(u)
}

// NewUserID trims and validates a user id.
func NewUserID(id string) (UserID, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", Validation("shared", "NewUserID", "user id is required")
	}
	return UserID(id), nil
}

// ═══════════════════════════════════════════════════════════════════════════
// XP Value Object (Experience Points)
// ═══════════════════════════════════════════════════════════════════════════

// XP represents experience points. It never goes below zero and has no cap.
type XP int

// XPPerLevel is the width of every level band.
const XPPerLevel = 100

// Int returns the underlying int value.
func (x XP) Int() int {
	return int(x)
}

// Add returns x+amount. Negative amounts are rejected by NewXPAward, so the
// result is non-decreasing under normal flow.
func (x XP) Add(amount int) XP {
	result := XP(int(x) + amount)
	if result < 0 {
		return 0
	}
	return result
}

// Level returns floor(xp/100)+1.
func (x XP) Level() Level {
	if x <= 0 {
		return 1
	}
	return Level(int(x)/XPPerLevel + 1)
}

// ProgressToNextLevel returns percentage progress to next level (0-99).
func (x XP) ProgressToNextLevel() int {
	if x <= 0 {
		return 0
	}
	return int(x) % XPPerLevel
}

// NewXPAward validates an XP award amount.
func NewXPAward(amount int) (XP, error) {
	if amount < 0 {
		return 0, Validation("shared", "NewXPAward", fmt.Sprintf("XP award cannot be negative: %d", amount))
	}
	return XP(amount), nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Level Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Level represents a user's level, starting at 1 and unbounded above.
type Level int

// MinLevel is the level of a profile with zero XP.
const MinLevel Level = 1

// Int returns the underlying int value.
func (l Level) Int() int {
	return int(l)
}

// RequiredXP returns the total XP at which this level starts.
func (l Level) RequiredXP() int {
	if l <= MinLevel {
		return 0
	}
	return (int(l) - 1) * XPPerLevel
}
