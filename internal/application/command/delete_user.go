package command

import (
	"context"

	"github.com/dividis/progress-engine/internal/application/progression"
	"github.com/dividis/progress-engine/internal/domain/shared"
	"github.com/dividis/progress-engine/pkg/logger"
)

// DeleteUserCommand removes a user's profile and every progression row they own.
type DeleteUserCommand struct {
	UserID        string
	CorrelationID string
}

// Validate validates the command.
func (c DeleteUserCommand) Validate() error {
	_, err := shared.NewUserID(c.UserID)
	return err
}

// DeleteUserHandler handles the DeleteUserCommand.
type DeleteUserHandler struct {
	deps Deps
}

// NewDeleteUserHandler creates a new DeleteUserHandler.
func NewDeleteUserHandler(deps Deps) *DeleteUserHandler {
	return &DeleteUserHandler{deps: deps.withDefaults()}
}

// Handle deletes the user. A missing profile is NotFound.
func (h *DeleteUserHandler) Handle(ctx context.Context, cmd DeleteUserCommand) (err error) {
	ctx, span := startSpan(ctx, "delete_user", cmd.UserID, correlation(cmd.CorrelationID))
	defer func() { endSpan(span, err) }()

	if err := cmd.Validate(); err != nil {
		return err
	}

	_, err = h.deps.run(ctx, cmd.UserID, func(f *progression.Flow) error {
		if err := f.Tx().Profiles().Delete(f.Context(), cmd.UserID); err != nil {
			return err
		}
		f.MarkDeleted()
		f.Emit(shared.NewUserDeletedEvent(cmd.UserID, f.Now()))
		return nil
	})
	if err != nil {
		return err
	}

	h.deps.Logger.Info("user deleted", logger.UserID(cmd.UserID))
	return nil
}
