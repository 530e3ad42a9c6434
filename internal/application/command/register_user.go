package command

import (
	"context"

	"github.com/dividis/progress-engine/internal/application/uow"
	"github.com/dividis/progress-engine/internal/domain/profile"
	"github.com/dividis/progress-engine/internal/domain/shared"
	"github.com/dividis/progress-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// REGISTER USER COMMAND
// Creates the progression profile of a new user and opens the first module.
// Registering an existing user changes nothing.
// ══════════════════════════════════════════════════════════════════════════════

// RegisterUserCommand contains the data to register a user.
type RegisterUserCommand struct {
	// UserID is issued by the authentication layer.
	UserID string

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c RegisterUserCommand) Validate() error {
	_, err := shared.NewUserID(c.UserID)
	return err
}

// RegisterUserResult contains the result of registering a user.
type RegisterUserResult struct {
	Profile profile.Profile

	// Created is false when the profile already existed.
	Created bool

	// FirstModuleID is the module opened for the new user, if any.
	FirstModuleID string

	Events []shared.Event
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// RegisterUserHandler handles the RegisterUserCommand.
type RegisterUserHandler struct {
	deps Deps
}

// NewRegisterUserHandler creates a new RegisterUserHandler.
func NewRegisterUserHandler(deps Deps) *RegisterUserHandler {
	return &RegisterUserHandler{deps: deps.withDefaults()}
}

// Handle executes the register user command.
func (h *RegisterUserHandler) Handle(ctx context.Context, cmd RegisterUserCommand) (result *RegisterUserResult, err error) {
	ctx, span := startSpan(ctx, "register_user", cmd.UserID, correlation(cmd.CorrelationID))
	defer func() { endSpan(span, err) }()

	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	now := h.deps.Clock.Now()
	result = &RegisterUserResult{}

	err = h.deps.Store.WithinTx(ctx, func(ctx context.Context, tx uow.Tx) error {
		stored, created, err := tx.Profiles().Create(ctx, profile.New(cmd.UserID, now))
		if err != nil {
			return err
		}
		result.Profile = stored
		result.Created = created
		if !created {
			return nil
		}

		f, err := h.deps.Engine.Begin(ctx, tx, cmd.UserID, now)
		if err != nil {
			return err
		}
		first, opened, err := f.OpenFirstModule()
		if err != nil {
			return err
		}
		if opened {
			result.FirstModuleID = first.ModuleID
		}
		f.Emit(shared.NewUserRegisteredEvent(cmd.UserID, result.FirstModuleID, now))
		result.Events = f.Events()
		return nil
	})
	if err != nil {
		return nil, err
	}

	h.deps.publish(result.Events)
	if result.Created {
		h.deps.Logger.Info("user registered",
			logger.UserID(cmd.UserID),
			logger.ModuleID(result.FirstModuleID),
		)
	}
	return result, nil
}
