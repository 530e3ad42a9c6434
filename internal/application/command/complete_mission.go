package command

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/dividis/progress-engine/internal/application/progression"
	"github.com/dividis/progress-engine/internal/domain/mission"
	"github.com/dividis/progress-engine/internal/domain/shared"
	"github.com/dividis/progress-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// COMPLETE MISSION COMMAND
// A user explicitly completes a mission. The owning module must be open and
// the user must have reached the mission's level. Completing twice is a no-op.
// ══════════════════════════════════════════════════════════════════════════════

// CompleteMissionCommand contains the data to complete a mission.
type CompleteMissionCommand struct {
	UserID    string
	MissionID string

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c CompleteMissionCommand) Validate() error {
	if _, err := shared.NewUserID(c.UserID); err != nil {
		return err
	}
	if c.MissionID == "" {
		return shared.Validation("command", "CompleteMission", "mission_id is required")
	}
	return nil
}

// CompleteMissionResult contains the result of completing a mission.
type CompleteMissionResult struct {
	Progress mission.Progress

	// Changed is false when the mission was already completed.
	Changed bool

	TotalXP int
	Level   int
	Events  []shared.Event
}

// CompleteMissionHandler handles the CompleteMissionCommand.
type CompleteMissionHandler struct {
	deps Deps
}

// NewCompleteMissionHandler creates a new CompleteMissionHandler.
func NewCompleteMissionHandler(deps Deps) *CompleteMissionHandler {
	return &CompleteMissionHandler{deps: deps.withDefaults()}
}

// Handle executes the complete mission command.
func (h *CompleteMissionHandler) Handle(ctx context.Context, cmd CompleteMissionCommand) (result *CompleteMissionResult, err error) {
	ctx, span := startSpan(ctx, "complete_mission", cmd.UserID, attribute.String("mission.id", cmd.MissionID), correlation(cmd.CorrelationID))
	defer func() { endSpan(span, err) }()

	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	result = &CompleteMissionResult{}
	result.Events, err = h.deps.run(ctx, cmd.UserID, func(f *progression.Flow) error {
		m, err := f.Tx().Missions().Get(f.Context(), cmd.MissionID)
		if err != nil {
			return err
		}
		result.Progress, result.Changed, err = f.CompleteMission(m, false)
		if err != nil {
			return err
		}
		result.TotalXP = f.Profile().ExperiencePoints
		result.Level = f.Profile().CurrentLevel
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Changed {
		h.deps.Logger.Info("mission completed",
			logger.UserID(cmd.UserID),
			logger.MissionID(cmd.MissionID),
			logger.Int("total_xp", result.TotalXP),
		)
	}
	return result, nil
}
