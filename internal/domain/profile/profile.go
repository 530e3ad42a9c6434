// Package profile holds the per-user XP balance and its derived level.
package profile

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/dividis/progress-engine/internal/domain/shared"
)

// Profile is one per user. CurrentLevel is stored, not derived at read time,
// and is rewritten on every XP change.
type Profile struct {
	UserID           string
	ExperiencePoints int
	CurrentLevel     int
	CreatedAt        time.Time
	UpdatedAt        time.Time

	// Revision changes with every committed change to the user's progress,
	// not only to XP. Cached read models are valid only for the revision
	// they were built from.
	Revision int64
}

// New returns a fresh profile at level 1.
func New(userID string, now time.Time) Profile {
	return Profile{
		UserID:       userID,
		CurrentLevel: LevelFor(0),
		CreatedAt:    now,
		UpdatedAt:    now,
		Revision:     now.UnixNano(),
	}
}

// NextRevision is strictly greater than prev. It follows the clock so a
// re-created profile does not reuse the revisions of a deleted one.
func NextRevision(prev int64, now time.Time) int64 {
	return max(prev+1, now.UnixNano())
}

// LevelFor returns floor(xp/100)+1.
func LevelFor(xp int) int {
	return shared.XP(xp).Level().Int()
}

// Award describes the effect of one XP grant.
type Award struct {
	Amount   int
	OldXP    int
	NewXP    int
	OldLevel int
	NewLevel int
}

// LeveledUp reports whether the award crossed a level boundary.
func (a Award) LeveledUp() bool {
	return a.NewLevel > a.OldLevel
}

// AwardXP adds amount to the profile and recomputes the level.
func AwardXP(p Profile, amount int, now time.Time) (Profile, Award, error) {
	xp, err := shared.NewXPAward(amount)
	if err != nil {
		return p, Award{}, err
	}

	award := Award{
		Amount:   amount,
		OldXP:    p.ExperiencePoints,
		OldLevel: p.CurrentLevel,
	}
	p.ExperiencePoints = shared.XP(p.ExperiencePoints).Add(xp.Int()).Int()
	p.CurrentLevel = LevelFor(p.ExperiencePoints)
	p.UpdatedAt = now

	award.NewXP = p.ExperiencePoints
	award.NewLevel = p.CurrentLevel
	return p, award, nil
}

// Repository stores profiles.
type Repository interface {
	// GetForUpdate returns the profile and, inside a transaction, locks it.
	// Every mutating flow starts here so flows of one user are serialized.
	GetForUpdate(ctx context.Context, userID string) (Profile, error)

	// Get returns the profile without locking.
	Get(ctx context.Context, userID string) (Profile, error)

	// Create inserts a new profile. created is false when it already existed,
	// in which case the stored profile is returned.
	Create(ctx context.Context, p Profile) (stored Profile, created bool, err error)

	// Save persists XP, level and revision.
	Save(ctx context.Context, p Profile) error

	// Delete removes the profile and every row owned by the user.
	Delete(ctx context.Context, userID string) error
}

// ErrNotFound builds the not-found error for a user id.
func ErrNotFound(userID string) error {
	return shared.NotFound("profile", "Get", "profile", userID)
}

// ══════════════════════════════════════════════════════════════════════════════
// LEVEL TITLES
// ══════════════════════════════════════════════════════════════════════════════

// DefaultTitle is used for levels without an entry.
const DefaultTitle = "Aventurero"

// TitleBook is the process-wide, read-only level→title table. It is loaded at
// startup and handed to the components that render titles. Reload swaps the
// whole table atomically.
type TitleBook struct {
	titles   atomic.Pointer[map[int]string]
	fallback string
}

// NewTitleBook creates a title book. An empty fallback means DefaultTitle.
func NewTitleBook(titles map[int]string, fallback string) *TitleBook {
	if fallback == "" {
		fallback = DefaultTitle
	}
	b := &TitleBook{fallback: fallback}
	b.Reload(titles)
	return b
}

// Title returns the title for a level.
func (b *TitleBook) Title(level int) string {
	if b == nil {
		return DefaultTitle
	}
	if m := b.titles.Load(); m != nil {
		if t, ok := (*m)[level]; ok {
			return t
		}
	}
	return b.fallback
}

// Reload replaces the table with a copy of titles.
func (b *TitleBook) Reload(titles map[int]string) {
	cp := make(map[int]string, len(titles))
	for k, v := range titles {
		cp[k] = v
	}
	b.titles.Store(&cp)
}

// Len returns the number of configured titles.
func (b *TitleBook) Len() int {
	if m := b.titles.Load(); m != nil {
		return len(*m)
	}
	return 0
}
