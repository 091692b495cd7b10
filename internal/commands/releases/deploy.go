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

const deployReleaseMessageType = "staging.release.deploy"

// DeployReleaseCommand promotes a closed release into the production history.
type DeployReleaseCommand struct {
	ReleaseID  uuid.UUID `json:"release_id"`
	DeployedBy uuid.UUID `json:"deployed_by"`
}

// Type implements command.Message.
func (DeployReleaseCommand) Type() string { return deployReleaseMessageType }

// Validate ensures the message carries the required fields before reaching handlers.
func (m DeployReleaseCommand) Validate() error {
	errs := validation.Errors{}
	if m.ReleaseID == uuid.Nil {
		errs["release_id"] = validation.NewError("staging.release.deploy.release_id_required", "release_id is required")
	}
	if m.DeployedBy == uuid.Nil {
		errs["deployed_by"] = validation.NewError("staging.release.deploy.deployed_by_required", "deployed_by is required")
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// DeployReleaseHandler deploys releases via the release service using the shared command handler foundation.
type DeployReleaseHandler struct {
	inner *commands.Handler[DeployReleaseCommand]
}

// NewDeployReleaseHandler constructs a handler wired to the provided release service.
func NewDeployReleaseHandler(service releases.Service, logger interfaces.Logger, opts ...commands.HandlerOption[DeployReleaseCommand]) *DeployReleaseHandler {
	exec := func(ctx context.Context, msg DeployReleaseCommand) error {
		_, err := service.DeployRelease(ctx, releases.DeployReleaseInput{
			ReleaseID:  msg.ReleaseID,
			DeployedBy: msg.DeployedBy,
		})
		return err
	}

	handlerOpts := []commands.HandlerOption[DeployReleaseCommand]{
		commands.WithLogger[DeployReleaseCommand](logger),
		commands.WithOperation[DeployReleaseCommand]("release.deploy"),
	}
	handlerOpts = append(handlerOpts, opts...)

	return &DeployReleaseHandler{
		inner: commands.NewHandler[DeployReleaseCommand](exec, handlerOpts...),
	}
}

// Execute satisfies command.Commander[DeployReleaseCommand].Execute.
func (h *DeployReleaseHandler) Execute(ctx context.Context, msg DeployReleaseCommand) error {
	return h.inner.Execute(ctx, msg)
}

// CLIHandler exposes the deploy handler to CLI integrations.
func (h *DeployReleaseHandler) CLIHandler() any {
	return h
}

// CLIOptions describes the CLI metadata for release deployment.
func (h *DeployReleaseHandler) CLIOptions() command.CLIConfig {
	return command.CLIConfig{
		Path:        []string{"release", "deploy"},
		Group:       "release",
		Description: "Deploy a closed release to production",
	}
}
