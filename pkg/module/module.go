package module

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/cuemby/opsmgr/pkg/config"
	"github.com/cuemby/opsmgr/pkg/manager"
	"github.com/cuemby/opsmgr/pkg/types"
)

// Commands understood by Run
const (
	CommandDeploymentStatus = "deployment-status"
	CommandSetMaintenance   = "set-maintenance"
	CommandCheckSync        = "check-sync"
)

// Output formats of Render
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Params is the parameter set supplied by the host automation framework
type Params struct {
	Cluster string `json:"cluster" yaml:"cluster"`
	Host    string `json:"host,omitempty" yaml:"host,omitempty"`
	User    string `json:"user" yaml:"user"`
	Key     string `json:"key" yaml:"key"`
	MMS     string `json:"mms" yaml:"mms"`
	Verify  string `json:"verify,omitempty" yaml:"verify,omitempty"`
}

// Validate rejects a parameter set with missing required fields
func (p Params) Validate() error {
	var err error
	if p.Cluster == "" {
		err = multierr.Append(err, errors.New("cluster is required"))
	}
	if p.User == "" {
		err = multierr.Append(err, errors.New("user is required"))
	}
	if p.Key == "" {
		err = multierr.Append(err, errors.New("key is required"))
	}
	if p.MMS == "" {
		err = multierr.Append(err, errors.New("mms is required"))
	}
	return err
}

// Apply overlays the parameters on base
func (p Params) Apply(base config.Config) config.Config {
	base.BaseURL = p.MMS
	base.User = p.User
	base.APIKey = p.Key
	if p.Verify != "" {
		base.TLS = config.ParseTLSMode(p.Verify)
	}
	return base
}

// Result is the document handed back to the host automation framework
type Result struct {
	Changed bool   `json:"changed"`
	Meta    any    `json:"meta"`
	Failed  bool   `json:"failed,omitempty"`
	Msg     string `json:"msg,omitempty"`

	err error
}

func failed(err error) Result {
	return Result{Failed: true, Msg: err.Error(), err: err}
}

// Err returns the error behind a failed result
func (r Result) Err() error {
	return r.err
}

// Render writes r as JSON or YAML. YAML keys are the JSON ones.
func (r Result) Render(w io.Writer, format string) error {
	switch format {
	case "", FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case FormatYAML:
		data, err := json.Marshal(r)
		if err != nil {
			return err
		}
		var doc map[string]any
		if err := json.Unmarshal(data, &doc); err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

// Opener builds the components for a configuration
type Opener func(cfg config.Config) (*manager.Manager, error)

// Adapter answers the host automation framework commands. The core stays
// callable without it.
type Adapter struct {
	base config.Config
	open Opener
}

// New creates an adapter using base for everything Params does not set
func New(base config.Config) *Adapter {
	return NewWithOpener(base, manager.NewManager)
}

// NewWithOpener creates an adapter with a custom component builder
func NewWithOpener(base config.Config, open Opener) *Adapter {
	return &Adapter{base: base, open: open}
}

// Run dispatches command
func (a *Adapter) Run(ctx context.Context, command string, p Params) Result {
	switch command {
	case CommandDeploymentStatus:
		return a.DeploymentStatus(ctx, p)
	case CommandSetMaintenance:
		return a.SetMaintenance(ctx, p)
	case CommandCheckSync:
		return a.CheckSync(ctx, p)
	default:
		return failed(fmt.Errorf("unknown command %q", command))
	}
}

// DeploymentStatus reports whether the cluster reached its goal state
func (a *Adapter) DeploymentStatus(ctx context.Context, p Params) Result {
	return a.with(ctx, p, func(ctx context.Context, m *manager.Manager, group *types.Group) (any, error) {
		return m.Poller().GoalStatus(ctx, group.ID)
	})
}

// SetMaintenance creates a maintenance window on the cluster and returns
// it. It fails when a window is already in effect.
func (a *Adapter) SetMaintenance(ctx context.Context, p Params) Result {
	return a.with(ctx, p, func(ctx context.Context, m *manager.Manager, group *types.Group) (any, error) {
		lease, err := m.Leases().Set(ctx, group.ID)
		if err != nil {
			return nil, err
		}

		windows, err := m.Client().MaintenanceWindows(ctx, group.ID)
		if err != nil {
			return lease, nil
		}
		for _, w := range windows {
			if w.ID == lease.WindowID {
				return w, nil
			}
		}
		return lease, nil
	})
}

// CheckSync fails when a replica set member of the cluster is in a poor
// state and returns 0 otherwise
func (a *Adapter) CheckSync(ctx context.Context, p Params) Result {
	return a.with(ctx, p, func(ctx context.Context, m *manager.Manager, group *types.Group) (any, error) {
		return m.Gate().Sync(ctx, group.ID)
	})
}

func (a *Adapter) with(ctx context.Context, p Params, fn func(ctx context.Context, m *manager.Manager, group *types.Group) (any, error)) (res Result) {
	if err := p.Validate(); err != nil {
		return failed(err)
	}

	m, err := a.open(p.Apply(a.base))
	if err != nil {
		return failed(err)
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil && !res.Failed {
			res = failed(closeErr)
		}
	}()

	group, err := m.Client().GroupByName(ctx, p.Cluster)
	if err != nil {
		return failed(err)
	}

	meta, err := fn(ctx, m, group)
	if err != nil {
		return failed(err)
	}
	return Result{Meta: meta}
}
