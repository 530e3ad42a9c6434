package command

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/dividis/progress-engine/internal/application/progression"
	"github.com/dividis/progress-engine/internal/domain/declaration"
	"github.com/dividis/progress-engine/internal/domain/mission"
	"github.com/dividis/progress-engine/internal/domain/module"
	"github.com/dividis/progress-engine/internal/domain/shared"
	"github.com/dividis/progress-engine/internal/domain/streak"
	"github.com/dividis/progress-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// CREATE DECLARATION COMMAND
// Records a statement under one pillar of a module. The first declaration of
// a pillar pays XP; every declaration counts for streaks and missions; four
// declared pillars open the next module.
// ══════════════════════════════════════════════════════════════════════════════

// CreateDeclarationCommand contains the data to create a declaration.
type CreateDeclarationCommand struct {
	UserID   string
	ModuleID string

	// Pillar accepts any casing and accents ("Visión", "vision").
	Pillar string
	Text   string

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c CreateDeclarationCommand) Validate() error {
	if _, err := shared.NewUserID(c.UserID); err != nil {
		return err
	}
	if c.ModuleID == "" {
		return shared.Validation("command", "CreateDeclaration", "module_id is required")
	}
	_, err := declaration.ParsePillar(c.Pillar)
	return err
}

// CreateDeclarationResult contains the result of creating a declaration.
type CreateDeclarationResult struct {
	Declaration declaration.Declaration

	// FirstForPillar is true when this declaration paid XP.
	FirstForPillar bool
	XPAwarded      int
	Level          int

	Streak            streak.Streak
	CompletedMissions []mission.Progress

	// NextModule is set when the four pillars opened the next module.
	NextModule *module.Progress

	Events []shared.Event
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// CreateDeclarationHandler handles the CreateDeclarationCommand.
type CreateDeclarationHandler struct {
	deps  Deps
	newID func() string
}

// NewCreateDeclarationHandler creates a new CreateDeclarationHandler.
func NewCreateDeclarationHandler(deps Deps) *CreateDeclarationHandler {
	return &CreateDeclarationHandler{
		deps:  deps.withDefaults(),
		newID: uuid.NewString,
	}
}

// Handle executes the create declaration command.
func (h *CreateDeclarationHandler) Handle(ctx context.Context, cmd CreateDeclarationCommand) (result *CreateDeclarationResult, err error) {
	ctx, span := startSpan(ctx, "create_declaration", cmd.UserID,
		attribute.String("module.id", cmd.ModuleID),
		attribute.String("declaration.pillar", cmd.Pillar),
		correlation(cmd.CorrelationID),
	)
	defer func() { endSpan(span, err) }()

	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	pillar, _ := declaration.ParsePillar(cmd.Pillar)

	result = &CreateDeclarationResult{}
	result.Events, err = h.deps.run(ctx, cmd.UserID, func(f *progression.Flow) error {
		return h.declare(f, cmd, pillar, result)
	})
	if err != nil {
		return nil, err
	}

	h.deps.Logger.Info("declaration created",
		logger.UserID(cmd.UserID),
		logger.ModuleID(cmd.ModuleID),
		logger.String("pillar", string(pillar)),
		logger.XPAmount(result.XPAwarded),
		logger.Int("missions_completed", len(result.CompletedMissions)),
	)
	return result, nil
}

func (h *CreateDeclarationHandler) declare(f *progression.Flow, cmd CreateDeclarationCommand, pillar declaration.Pillar, result *CreateDeclarationResult) error {
	ctx, tx := f.Context(), f.Tx()

	mod, err := tx.Modules().Get(ctx, cmd.ModuleID)
	if err != nil {
		return err
	}

	prior, err := tx.Declarations().CountByPillar(ctx, cmd.UserID, mod.ID, pillar)
	if err != nil {
		return err
	}

	d, err := declaration.New(h.newID(), cmd.UserID, mod.ID, pillar, cmd.Text, f.Now())
	if err != nil {
		return err
	}
	if err := tx.Declarations().Create(ctx, d); err != nil {
		return err
	}
	result.Declaration = d
	result.FirstForPillar = prior == 0
	f.Emit(shared.NewDeclarationCreatedEvent(cmd.UserID, d.ID, mod.ID, string(pillar), result.FirstForPillar, f.Now()))

	if result.FirstForPillar {
		award, err := f.AwardXP(h.deps.Engine.DeclarationXP(mod.Order), progression.SourceDeclaration, d.ID)
		if err != nil {
			return err
		}
		result.XPAwarded = award.NewXP - award.OldXP
	}

	if result.Streak, err = f.TouchStreak(mod.ID); err != nil {
		return err
	}

	if result.CompletedMissions, err = f.EvaluateMissions(mod, pillar); err != nil {
		return err
	}

	next, opened, err := f.UnlockNextIfPillarsComplete(mod)
	if err != nil {
		return err
	}
	if opened {
		result.NextModule = &next
	}

	result.Level = f.Profile().CurrentLevel
	return nil
}
