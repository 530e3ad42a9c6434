package command

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/dividis/progress-engine/internal/application/progression"
	"github.com/dividis/progress-engine/internal/domain/module"
	"github.com/dividis/progress-engine/internal/domain/shared"
	"github.com/dividis/progress-engine/pkg/logger"
)

// CompleteModuleCommand marks an unlocked module as finished.
type CompleteModuleCommand struct {
	UserID        string
	ModuleID      string
	CorrelationID string
}

// Validate validates the command.
func (c CompleteModuleCommand) Validate() error {
	if _, err := shared.NewUserID(c.UserID); err != nil {
		return err
	}
	if c.ModuleID == "" {
		return shared.Validation("command", "CompleteModule", "module_id is required")
	}
	return nil
}

// CompleteModuleResult contains the completed progress.
type CompleteModuleResult struct {
	Progress module.Progress
	Events   []shared.Event
}

// CompleteModuleHandler handles the CompleteModuleCommand.
type CompleteModuleHandler struct {
	deps Deps
}

// NewCompleteModuleHandler creates a new CompleteModuleHandler.
func NewCompleteModuleHandler(deps Deps) *CompleteModuleHandler {
	return &CompleteModuleHandler{deps: deps.withDefaults()}
}

// Handle completes the module. Locked and already completed modules are
// InvalidTransition.
func (h *CompleteModuleHandler) Handle(ctx context.Context, cmd CompleteModuleCommand) (result *CompleteModuleResult, err error) {
	ctx, span := startSpan(ctx, "complete_module", cmd.UserID, attribute.String("module.id", cmd.ModuleID), correlation(cmd.CorrelationID))
	defer func() { endSpan(span, err) }()

	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	result = &CompleteModuleResult{}
	result.Events, err = h.deps.run(ctx, cmd.UserID, func(f *progression.Flow) error {
		mod, err := f.Tx().Modules().Get(f.Context(), cmd.ModuleID)
		if err != nil {
			return err
		}
		result.Progress, err = f.CompleteModule(mod)
		return err
	})
	if err != nil {
		return nil, err
	}

	h.deps.Logger.Info("module completed", logger.UserID(cmd.UserID), logger.ModuleID(cmd.ModuleID))
	return result, nil
}
