package releasescmd

import (
	"context"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	command "github.com/goliatone/go-command"
	"github.com/goliatone/go-staging/internal/commands"
	"github.com/goliatone/go-staging/internal/releases"
	"github.com/goliatone/go-staging/pkg/interfaces"
	"github.com/google/uuid"
)

const rollbackReleaseMessageType = "staging.release.rollback"

// RollbackReleaseCommand restores a previously deployed release as production.
type RollbackReleaseCommand struct {
	TargetReleaseID uuid.UUID `json:"target_release_id"`
	RequestedBy     uuid.UUID `json:"requested_by"`
}

// Type implements command.Message.
func (RollbackReleaseCommand) Type() string { return rollbackReleaseMessageType }

// Validate ensures the message carries the required fields before reaching handlers.
func (m RollbackReleaseCommand) Validate() error {
	errs := validation.Errors{}
	if m.TargetReleaseID == uuid.Nil {
		errs["target_release_id"] = validation.NewError("staging.release.rollback.target_required", "target_release_id is required")
	}
	if m.RequestedBy == uuid.Nil {
		errs["requested_by"] = validation.NewError("staging.release.rollback.requested_by_required", "requested_by is required")
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// RollbackReleaseHandler rolls production back via the release service.
type RollbackReleaseHandler struct {
	inner *commands.Handler[RollbackReleaseCommand]
}

// NewRollbackReleaseHandler constructs a handler wired to the provided release service.
func NewRollbackReleaseHandler(service releases.Service, logger interfaces.Logger, opts ...commands.HandlerOption[RollbackReleaseCommand]) *RollbackReleaseHandler {
	exec := func(ctx context.Context, msg RollbackReleaseCommand) error {
		_, err := service.RollbackRelease(ctx, releases.RollbackReleaseInput{
			TargetReleaseID: msg.TargetReleaseID,
			RequestedBy:     msg.RequestedBy,
		})
		return err
	}

	handlerOpts := []commands.HandlerOption[RollbackReleaseCommand]{
		commands.WithLogger[RollbackReleaseCommand](logger),
		commands.WithOperation[RollbackReleaseCommand]("release.rollback"),
	}
	handlerOpts = append(handlerOpts, opts...)

	return &RollbackReleaseHandler{
		inner: commands.NewHandler[RollbackReleaseCommand](exec, handlerOpts...),
	}
}

// Execute satisfies command.Commander[RollbackReleaseCommand].Execute.
func (h *RollbackReleaseHandler) Execute(ctx context.Context, msg RollbackReleaseCommand) error {
	return h.inner.Execute(ctx, msg)
}

// CLIHandler exposes the rollback handler to CLI integrations.
func (h *RollbackReleaseHandler) CLIHandler() any {
	return h
}

// CLIOptions describes the CLI metadata for release rollback.
func (h *RollbackReleaseHandler) CLIOptions() command.CLIConfig {
	return command.CLIConfig{
		Path:        []string{"release", "rollback"},
		Group:       "release",
		Description: "Roll production back to a previously deployed release",
	}
}
