// Package achievement contains earned-once badges.
package achievement

import (
	"context"
	"fmt"
	"time"

	"github.com/dividis/progress-engine/internal/domain/shared"
)

// DefaultXPReward is used for catalogue entries without an explicit reward.
const DefaultXPReward = 100

// Achievement is a catalogue entry.
type Achievement struct {
	ID          string
	Name        string
	Description string
	XPReward    int
}

// Validate checks a catalogue entry.
func (a Achievement) Validate() error {
	if a.ID == "" {
		return shared.Validation("achievement", "Validate", "achievement id is required")
	}
	if a.XPReward < 0 {
		return shared.Validation("achievement", "Validate",
			fmt.Sprintf("achievement %q: xp_reward cannot be negative", a.ID))
	}
	return nil
}

// UserAchievement records that a user earned an achievement. Unique per (user, achievement).
type UserAchievement struct {
	ID            string
	UserID        string
	AchievementID string
	EarnedAt      time.Time
}

// Repository stores the catalogue and the earned badges.
type Repository interface {
	Get(ctx context.Context, id string) (Achievement, error)
	Upsert(ctx context.Context, a Achievement) error

	// Grant records the badge. granted is false when the user already had it.
	Grant(ctx context.Context, ua UserAchievement) (granted bool, err error)

	// CountByUser returns how many badges the user earned.
	CountByUser(ctx context.Context, userID string) (int, error)

	// ListByUser returns the user's badges, oldest first.
	ListByUser(ctx context.Context, userID string) ([]UserAchievement, error)
}
