package upgrade

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/cuemby/opsmgr/pkg/automation"
	"github.com/cuemby/opsmgr/pkg/log"
)

// Waiter blocks until a published configuration took effect
type Waiter interface {
	Wait(ctx context.Context, group string) error
}

// Orchestrator moves every process of a group to a new MongoDB version
type Orchestrator struct {
	editor *automation.Editor
	waiter Waiter
	logger zerolog.Logger
}

// NewOrchestrator creates an orchestrator
func NewOrchestrator(editor *automation.Editor, waiter Waiter) *Orchestrator {
	return &Orchestrator{
		editor: editor,
		waiter: waiter,
		logger: log.WithComponent("upgrade"),
	}
}

// Upgrade catalogs the enterprise build of version, stages the feature
// compatibility version when needed, pins every process to version and
// waits for the cluster to converge. A failing step aborts the upgrade;
// the configuration keeps whatever was last published.
func (o *Orchestrator) Upgrade(ctx context.Context, group, version string) error {
	if _, err := automation.ParseVersion(version); err != nil {
		return err
	}

	logger := o.logger.With().Str("group_id", group).Str("version", version).Logger()

	cfg, err := o.editor.Config(ctx, group)
	if err != nil {
		return err
	}

	if err := automation.CheckUpgradePath(cfg, version); err != nil {
		return err
	}

	cfg = o.editor.EnableVersion(cfg, version)

	staged, err := o.editor.CompatibilityVersion(ctx, group, cfg, version)
	if err != nil {
		return fmt.Errorf("failed to stage feature compatibility version: %w", err)
	}
	if staged {
		logger.Info().Msg("Feature compatibility version staged")
	}

	cfg = automation.SetVersion(cfg, version)
	if err := o.editor.Publish(ctx, group, cfg); err != nil {
		return err
	}

	logger.Info().Msg("Waiting for processes to run the new version")
	if err := o.waiter.Wait(ctx, group); err != nil {
		return fmt.Errorf("upgrade to %s did not converge: %w", version, err)
	}

	logger.Info().Msg("Upgrade deployed")
	return nil
}
