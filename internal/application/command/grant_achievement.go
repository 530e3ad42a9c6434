package command

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/dividis/progress-engine/internal/application/progression"
	"github.com/dividis/progress-engine/internal/domain/achievement"
	"github.com/dividis/progress-engine/internal/domain/shared"
	"github.com/dividis/progress-engine/pkg/logger"
)

// GrantAchievementCommand awards a badge. Badges are granted by an operator
// or an external trigger; no rule in the engine earns them.
type GrantAchievementCommand struct {
	UserID        string
	AchievementID string
	CorrelationID string
}

// Validate validates the command.
func (c GrantAchievementCommand) Validate() error {
	if _, err := shared.NewUserID(c.UserID); err != nil {
		return err
	}
	if c.AchievementID == "" {
		return shared.Validation("command", "GrantAchievement", "achievement_id is required")
	}
	return nil
}

// GrantAchievementResult contains the result of a grant.
type GrantAchievementResult struct {
	UserAchievement achievement.UserAchievement

	// Granted is false when the user already had the badge; no XP is paid then.
	Granted bool
	TotalXP int
	Events  []shared.Event
}

// GrantAchievementHandler handles the GrantAchievementCommand.
type GrantAchievementHandler struct {
	deps  Deps
	newID func() string
}

// NewGrantAchievementHandler creates a new GrantAchievementHandler.
func NewGrantAchievementHandler(deps Deps) *GrantAchievementHandler {
	return &GrantAchievementHandler{deps: deps.withDefaults(), newID: uuid.NewString}
}

// Handle grants the badge and pays its XP once.
func (h *GrantAchievementHandler) Handle(ctx context.Context, cmd GrantAchievementCommand) (result *GrantAchievementResult, err error) {
	ctx, span := startSpan(ctx, "grant_achievement", cmd.UserID, attribute.String("achievement.id", cmd.AchievementID), correlation(cmd.CorrelationID))
	defer func() { endSpan(span, err) }()

	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	result = &GrantAchievementResult{}
	result.Events, err = h.deps.run(ctx, cmd.UserID, func(f *progression.Flow) error {
		a, err := f.Tx().Achievements().Get(f.Context(), cmd.AchievementID)
		if err != nil {
			return err
		}

		ua := achievement.UserAchievement{
			ID:            h.newID(),
			UserID:        cmd.UserID,
			AchievementID: a.ID,
			EarnedAt:      f.Now(),
		}
		granted, err := f.Tx().Achievements().Grant(f.Context(), ua)
		if err != nil {
			return err
		}
		result.UserAchievement = ua
		result.Granted = granted
		if granted {
			f.Emit(shared.NewAchievementEarnedEvent(cmd.UserID, a.ID, a.XPReward, f.Now()))
			if _, err := f.AwardXP(a.XPReward, progression.SourceAchievement, a.ID); err != nil {
				return err
			}
		}
		result.TotalXP = f.Profile().ExperiencePoints
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Granted {
		h.deps.Logger.Info("achievement granted",
			logger.UserID(cmd.UserID),
			logger.String("achievement_id", cmd.AchievementID),
		)
	}
	return result, nil
}
