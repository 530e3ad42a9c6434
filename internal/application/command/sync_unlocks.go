package command

import (
	"context"

	"github.com/dividis/progress-engine/internal/application/progression"
	"github.com/dividis/progress-engine/internal/domain/module"
	"github.com/dividis/progress-engine/internal/domain/shared"
	"github.com/dividis/progress-engine/pkg/logger"
)

// SyncUnlocksCommand re-evaluates every module's unlock rule for a user.
type SyncUnlocksCommand struct {
	UserID        string
	CorrelationID string
}

// Validate validates the command.
func (c SyncUnlocksCommand) Validate() error {
	_, err := shared.NewUserID(c.UserID)
	return err
}

// SyncUnlocksResult lists the modules opened by this run.
type SyncUnlocksResult struct {
	Unlocked []module.Progress
	Events   []shared.Event
}

// SyncUnlocksHandler handles the SyncUnlocksCommand.
type SyncUnlocksHandler struct {
	deps Deps
}

// NewSyncUnlocksHandler creates a new SyncUnlocksHandler.
func NewSyncUnlocksHandler(deps Deps) *SyncUnlocksHandler {
	return &SyncUnlocksHandler{deps: deps.withDefaults()}
}

// Handle executes the sync. Running it twice in a row opens nothing the second time.
func (h *SyncUnlocksHandler) Handle(ctx context.Context, cmd SyncUnlocksCommand) (result *SyncUnlocksResult, err error) {
	ctx, span := startSpan(ctx, "sync_unlocks", cmd.UserID, correlation(cmd.CorrelationID))
	defer func() { endSpan(span, err) }()

	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	result = &SyncUnlocksResult{}
	result.Events, err = h.deps.run(ctx, cmd.UserID, func(f *progression.Flow) error {
		var err error
		result.Unlocked, err = f.SyncUnlocks()
		return err
	})
	if err != nil {
		return nil, err
	}

	for _, p := range result.Unlocked {
		h.deps.Logger.Info("module unlocked by sync", logger.UserID(cmd.UserID), logger.ModuleID(p.ModuleID))
	}
	return result, nil
}
