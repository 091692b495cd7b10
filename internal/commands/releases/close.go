package releasescmd

import (
	"context"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/goliatone/go-staging/internal/commands"
	"github.com/goliatone/go-staging/internal/releases"
	"github.com/goliatone/go-staging/pkg/interfaces"
	"github.com/google/uuid"
)

const closeReleaseMessageType = "staging.release.close"

// CloseReleaseCommand freezes an open release and records its conflict summary.
type CloseReleaseCommand struct {
	ReleaseID uuid.UUID `json:"release_id"`
	ClosedBy  uuid.UUID `json:"closed_by"`
}

// Type implements command.Message.
func (CloseReleaseCommand) Type() string { return closeReleaseMessageType }

// Validate ensures the message carries the required fields before reaching handlers.
func (m CloseReleaseCommand) Validate() error {
	errs := validation.Errors{}
	if m.ReleaseID == uuid.Nil {
		errs["release_id"] = validation.NewError("staging.release.close.release_id_required", "release_id is required")
	}
	if m.ClosedBy == uuid.Nil {
		errs["closed_by"] = validation.NewError("staging.release.close.closed_by_required", "closed_by is required")
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// CloseReleaseHandler closes releases via the release service using the shared command handler foundation.
type CloseReleaseHandler struct {
	inner *commands.Handler[CloseReleaseCommand]
}

// NewCloseReleaseHandler constructs a handler wired to the provided release service.
func NewCloseReleaseHandler(service releases.Service, logger interfaces.Logger, opts ...commands.HandlerOption[CloseReleaseCommand]) *CloseReleaseHandler {
	exec := func(ctx context.Context, msg CloseReleaseCommand) error {
		_, err := service.CloseRelease(ctx, releases.CloseReleaseInput{
			ReleaseID: msg.ReleaseID,
			ClosedBy:  msg.ClosedBy,
		})
		return err
	}

	handlerOpts := []commands.HandlerOption[CloseReleaseCommand]{
		commands.WithLogger[CloseReleaseCommand](logger),
		commands.WithOperation[CloseReleaseCommand]("release.close"),
	}
	handlerOpts = append(handlerOpts, opts...)

	return &CloseReleaseHandler{
		inner: commands.NewHandler[CloseReleaseCommand](exec, handlerOpts...),
	}
}

// Execute satisfies command.Commander[CloseReleaseCommand].Execute.
func (h *CloseReleaseHandler) Execute(ctx context.Context, msg CloseReleaseCommand) error {
	return h.inner.Execute(ctx, msg)
}
