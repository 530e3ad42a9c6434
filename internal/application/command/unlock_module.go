package command

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/dividis/progress-engine/internal/application/progression"
	"github.com/dividis/progress-engine/internal/domain/module"
	"github.com/dividis/progress-engine/internal/domain/shared"
	"github.com/dividis/progress-engine/pkg/logger"
)

// UnlockModuleCommand asks to open a module. The module's unlock rule decides.
type UnlockModuleCommand struct {
	UserID        string
	ModuleID      string
	CorrelationID string
}

// Validate validates the command.
func (c UnlockModuleCommand) Validate() error {
	if _, err := shared.NewUserID(c.UserID); err != nil {
		return err
	}
	if c.ModuleID == "" {
		return shared.Validation("command", "UnlockModule", "module_id is required")
	}
	return nil
}

// UnlockModuleResult contains the result of an unlock request.
type UnlockModuleResult struct {
	Progress module.Progress

	// Changed is false when the module was already unlocked.
	Changed bool
	Events  []shared.Event
}

// UnlockModuleHandler handles the UnlockModuleCommand.
type UnlockModuleHandler struct {
	deps Deps
}

// NewUnlockModuleHandler creates a new UnlockModuleHandler.
func NewUnlockModuleHandler(deps Deps) *UnlockModuleHandler {
	return &UnlockModuleHandler{deps: deps.withDefaults()}
}

// Handle executes the unlock request. A denial is returned as a
// *module.DenialError carrying the reasons; it matches shared.ErrPermissionDenied.
func (h *UnlockModuleHandler) Handle(ctx context.Context, cmd UnlockModuleCommand) (result *UnlockModuleResult, err error) {
	ctx, span := startSpan(ctx, "unlock_module", cmd.UserID, attribute.String("module.id", cmd.ModuleID), correlation(cmd.CorrelationID))
	defer func() { endSpan(span, err) }()

	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	result = &UnlockModuleResult{}
	result.Events, err = h.deps.run(ctx, cmd.UserID, func(f *progression.Flow) error {
		mod, err := f.Tx().Modules().Get(f.Context(), cmd.ModuleID)
		if err != nil {
			return err
		}
		result.Progress, result.Changed, err = f.RequestUnlock(mod)
		return err
	})
	if err != nil {
		if shared.IsPermissionDenied(err) {
			h.deps.Logger.Debug("unlock denied",
				logger.UserID(cmd.UserID),
				logger.ModuleID(cmd.ModuleID),
				logger.String("reason", err.Error()),
			)
		}
		return nil, err
	}

	if result.Changed {
		h.deps.Logger.Info("module unlocked", logger.UserID(cmd.UserID), logger.ModuleID(cmd.ModuleID))
	}
	return result, nil
}
