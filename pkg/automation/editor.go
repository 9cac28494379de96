package automation

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/cuemby/opsmgr/pkg/log"
	"github.com/cuemby/opsmgr/pkg/types"
)

// Build descriptor fields of synthesized enterprise versions
const (
	BuildArchitecture = "amd64"
	BuildBits         = 64
	BuildFlavor       = "rhel"
	BuildMinOS        = "6.2"
	BuildMaxOS        = "7.0"
	BuildGitVersion   = "3f76e40c105fc223b3e5aac3e20dcd026b83b38b"
	BuildModule       = "enterprise"
	BuildPlatform     = "linux"
)

// Client reads and replaces automation configurations
type Client interface {
	AutomationConfig(ctx context.Context, group string) (*types.AutomationConfig, error)
	PutAutomationConfig(ctx context.Context, group string, cfg *types.AutomationConfig) error
	ReleaseURL(version string) string
}

// Waiter blocks until a published configuration took effect
type Waiter interface {
	Wait(ctx context.Context, group string) error
}

// Editor applies targeted mutations to the automation configuration
type Editor struct {
	client Client
	waiter Waiter
	logger zerolog.Logger
}

// NewEditor creates an editor publishing through client and converging
// through waiter
func NewEditor(client Client, waiter Waiter) *Editor {
	return &Editor{
		client: client,
		waiter: waiter,
		logger: log.WithComponent("automation"),
	}
}

// Config fetches the current automation configuration of group
func (e *Editor) Config(ctx context.Context, group string) (*types.AutomationConfig, error) {
	cfg, err := e.client.AutomationConfig(ctx, group)
	if err != nil {
		return nil, fmt.Errorf("failed to get automation config: %w", err)
	}
	return cfg, nil
}

// Publish replaces the automation configuration of group
func (e *Editor) Publish(ctx context.Context, group string, cfg *types.AutomationConfig) error {
	if err := e.client.PutAutomationConfig(ctx, group, cfg); err != nil {
		return fmt.Errorf("failed to put automation config: %w", err)
	}
	e.logger.Debug().Str("group_id", group).Msg("Automation config published")
	return nil
}

// ShutdownDB sets disabled on every mongod process running on host and
// publishes the change. It returns false without publishing when no
// process matched or all of them were already in the requested state.
func (e *Editor) ShutdownDB(ctx context.Context, group, host string, disable bool) (bool, error) {
	cfg, err := e.Config(ctx, group)
	if err != nil {
		return false, err
	}

	matched, changed := 0, 0
	for _, p := range cfg.Processes {
		if p.Hostname != host || p.ProcessType == types.ProcessTypeMongos {
			continue
		}
		matched++
		if p.Disabled != disable {
			p.Disabled = disable
			changed++
		}
	}

	logger := e.logger.With().Str("group_id", group).Str("host", host).Bool("disabled", disable).Logger()
	if changed == 0 {
		logger.Debug().Int("matched", matched).Msg("No process to change")
		return false, nil
	}

	if err := e.Publish(ctx, group, cfg); err != nil {
		return false, err
	}
	logger.Info().Int("processes", changed).Msg("Process state changed")
	return true, nil
}

// EnableVersion adds the enterprise build of version to the versions
// catalog unless an entry with that name exists
func (e *Editor) EnableVersion(cfg *types.AutomationConfig, version string) *types.AutomationConfig {
	name := EnterpriseVersion(version)
	if cfg.HasVersion(name) {
		return cfg
	}

	cfg.MongoDBVersions = append(cfg.MongoDBVersions, &types.MongoDBVersion{
		Name: name,
		Builds: []types.Build{{
			Architecture: BuildArchitecture,
			Bits:         BuildBits,
			Flavor:       BuildFlavor,
			MaxOSVersion: BuildMaxOS,
			MinOSVersion: BuildMinOS,
			GitVersion:   BuildGitVersion,
			Modules:      []string{BuildModule},
			Platform:     BuildPlatform,
			URL:          e.client.ReleaseURL(version),
		}},
	})
	e.logger.Debug().Str("version", name).Msg("Version added to catalog")
	return cfg
}

// referenceProcess is the process whose version and feature compatibility
// stand for the whole cluster
func referenceProcess(cfg *types.AutomationConfig) *types.Process {
	switch {
	case len(cfg.Processes) > 1:
		return cfg.Processes[1]
	case len(cfg.Processes) == 1:
		return cfg.Processes[0]
	default:
		return nil
	}
}

// CheckUpgradePath fails when moving the processes of cfg to version
// would skip a feature release. MongoDB binaries only upgrade from the
// feature release right before the target.
func CheckUpgradePath(cfg *types.AutomationConfig, version string) error {
	ref := referenceProcess(cfg)
	if ref == nil || ref.Version == "" {
		return nil
	}
	skipped, err := skippedRelease(ref.Version, version)
	if err != nil {
		return err
	}
	if skipped != "" {
		return fmt.Errorf("cannot upgrade from %s to %s: upgrade to %s first", ref.Version, version, skipped)
	}
	return nil
}

// CompatibilityVersion stages the feature compatibility version ahead of a
// binary upgrade to version. When staging is required it pins every process
// to the staging value, publishes and waits for convergence. It returns
// whether a staging step was published.
func (e *Editor) CompatibilityVersion(ctx context.Context, group string, cfg *types.AutomationConfig, version string) (bool, error) {
	ref := referenceProcess(cfg)
	if ref == nil {
		return false, fmt.Errorf("automation config of group %s has no processes: %w", group, types.ErrNotFound)
	}

	staging, err := StagingFCV(version)
	if err != nil {
		return false, err
	}

	stage, err := needsStaging(ref.Version, ref.FeatureCompatibilityVersion, staging, version)
	if err != nil {
		return false, err
	}
	if !stage {
		return false, nil
	}

	for _, p := range cfg.Processes {
		p.FeatureCompatibilityVersion = staging
	}

	e.logger.Info().
		Str("group_id", group).
		Str("from", ref.FeatureCompatibilityVersion).
		Str("fcv", staging).
		Str("target", version).
		Msg("Staging feature compatibility version")

	if err := e.Publish(ctx, group, cfg); err != nil {
		return false, err
	}
	if err := e.waiter.Wait(ctx, group); err != nil {
		return true, err
	}
	return true, nil
}

// SetVersion pins every process to the enterprise build of version
func SetVersion(cfg *types.AutomationConfig, version string) *types.AutomationConfig {
	name := EnterpriseVersion(version)
	for _, p := range cfg.Processes {
		p.Version = name
	}
	return cfg
}

// ConnectionInfo extracts the automation credentials and the address of
// the first mongos router
func ConnectionInfo(cfg *types.AutomationConfig) (types.ConnectionInfo, error) {
	var info types.ConnectionInfo
	if cfg.Auth != nil {
		info.User = cfg.Auth.AutoUser
		info.Password = cfg.Auth.AutoPwd
	}

	for _, p := range cfg.Processes {
		if p.ProcessType != types.ProcessTypeMongos {
			continue
		}
		port, err := p.Port()
		if err != nil {
			return info, err
		}
		info.Host = p.Hostname
		info.Port = port
		return info, nil
	}
	return info, fmt.Errorf("no mongos process in automation config: %w", types.ErrNotFound)
}
