package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	"github.com/cuemby/opsmgr/pkg/events"
	"github.com/cuemby/opsmgr/pkg/log"
	"github.com/cuemby/opsmgr/pkg/metrics"
	"github.com/cuemby/opsmgr/pkg/storage"
	"github.com/cuemby/opsmgr/pkg/types"
)

// Workflow names
const (
	WorkflowStop    = "stop"
	WorkflowStart   = "start"
	WorkflowUpgrade = "upgrade"
	WorkflowAlert   = "alert"
	WorkflowCheck   = "check"
	WorkflowSync    = "sync"
)

// Step results recorded in the journal
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// releaseTimeout bounds the lease release on failure paths
const releaseTimeout = 30 * time.Second

// Resolver maps hosts and names to groups
type Resolver interface {
	FindGroupForHost(ctx context.Context, host string) (string, error)
	GroupByName(ctx context.Context, name string) (*types.Group, error)
}

// HealthGate checks cluster fitness
type HealthGate interface {
	Alerts(ctx context.Context, group string) error
	Sync(ctx context.Context, group string) (int, error)
	CheckCluster(ctx context.Context, group string) error
}

// Leases acquires and releases maintenance windows
type Leases interface {
	Set(ctx context.Context, group string) (*types.Lease, error)
	Release(ctx context.Context, lease *types.Lease) error
	ReleaseJournaled(ctx context.Context, group string) error
	WithLease(ctx context.Context, group string, fn func(ctx context.Context, lease *types.Lease) error) error
}

// ProcessEditor enables and disables processes
type ProcessEditor interface {
	ShutdownDB(ctx context.Context, group, host string, disable bool) (bool, error)
}

// Poller observes convergence
type Poller interface {
	GoalStatus(ctx context.Context, group string) (bool, error)
	Wait(ctx context.Context, group string) error
}

// Upgrader runs a version upgrade
type Upgrader interface {
	Upgrade(ctx context.Context, group, version string) error
}

// Deps are the collaborators of a Driver
type Deps struct {
	Resolver Resolver
	Health   HealthGate
	Leases   Leases
	Editor   ProcessEditor
	Poller   Poller
	Upgrader Upgrader

	// Journal records every run. Optional.
	Journal storage.Store

	// Broker receives progress events. Optional.
	Broker *events.Broker
}

// Driver sequences guarded steps into the stop, start and upgrade
// workflows
type Driver struct {
	deps   Deps
	logger zerolog.Logger
}

// NewDriver creates a workflow driver
func NewDriver(deps Deps) *Driver {
	if deps.Journal == nil {
		deps.Journal = storage.NewMemoryStore()
	}
	return &Driver{
		deps:   deps,
		logger: log.WithComponent("workflow"),
	}
}

// run tracks one workflow execution
type run struct {
	record *types.Run
	d      *Driver
}

func (d *Driver) begin(workflow string) *run {
	return &run{
		d: d,
		record: &types.Run{
			ID:        uuid.NewString(),
			Workflow:  workflow,
			StartedAt: time.Now().UTC(),
			Result:    "running",
		},
	}
}

func (r *run) publish(t events.EventType, step, msg string) {
	if r.d.deps.Broker == nil {
		return
	}
	r.d.deps.Broker.Publish(&events.Event{
		Type:     t,
		Workflow: r.record.Workflow,
		Step:     step,
		Message:  msg,
		Metadata: map[string]string{
			"run_id":   r.record.ID,
			"group_id": r.record.GroupID,
			"host":     r.record.Host,
		},
	})
}

// step runs fn as a named step, recording its outcome
func (r *run) step(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	logger := log.WithGroup(r.d.logger, r.record.GroupID).With().Str("workflow", r.record.Workflow).Str("step", name).Logger()
	logger.Debug().Msg("Step started")
	r.publish(events.EventStepStarted, name, "")

	start := time.Now()
	err := fn(ctx)

	rec := types.StepRecord{Name: name, Result: ResultSuccess, Duration: time.Since(start)}
	if err != nil {
		rec.Result = ResultFailure
		rec.Error = err.Error()
		logger.Error().Err(err).Str("kind", types.KindOf(err).String()).Msg("Step failed")
		r.publish(events.EventStepFailed, name, err.Error())
	} else {
		logger.Debug().Dur("duration", rec.Duration).Msg("Step succeeded")
		r.publish(events.EventStepSucceeded, name, "")
	}
	r.record.Steps = append(r.record.Steps, rec)
	return err
}

// finish journals the run and returns err
func (r *run) finish(err error) error {
	r.record.FinishedAt = time.Now().UTC()
	r.record.Result = metrics.Result(err)
	if err != nil {
		r.record.Error = err.Error()
		r.publish(events.EventWorkflowFailed, "", err.Error())
	} else {
		r.publish(events.EventWorkflowCompleted, "", "")
	}

	metrics.WorkflowRunsTotal.WithLabelValues(r.record.Workflow, r.record.Result).Inc()
	if saveErr := r.d.deps.Journal.SaveRun(r.record); saveErr != nil {
		r.d.logger.Warn().Err(saveErr).Str("run_id", r.record.ID).Msg("Failed to journal run")
	}
	return err
}

// resolveHost finds the group monitoring host
func (d *Driver) resolveHost(ctx context.Context, host string) (*types.Group, error) {
	if host == "" {
		return nil, errors.New("host is required")
	}
	name, err := d.deps.Resolver.FindGroupForHost(ctx, host)
	if err != nil {
		return nil, err
	}
	return d.deps.Resolver.GroupByName(ctx, name)
}

// resolve runs group resolution as the first step of r
func (r *run) resolve(ctx context.Context, lookup func(ctx context.Context) (*types.Group, error)) (*types.Group, error) {
	var group *types.Group
	err := r.step(ctx, "resolve", func(ctx context.Context) error {
		var err error
		group, err = lookup(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	r.record.GroupID = group.ID
	return group, nil
}

// StopNode takes host out of service: health gate, acquire maintenance,
// disable its processes, converge, check alerts. The maintenance window
// stays in place on success and is released when a later step fails.
func (d *Driver) StopNode(ctx context.Context, host string) error {
	r := d.begin(WorkflowStop)
	r.record.Host = host

	group, err := r.resolve(ctx, func(ctx context.Context) (*types.Group, error) {
		return d.resolveHost(ctx, host)
	})
	if err != nil {
		return r.finish(err)
	}

	if err := r.step(ctx, "health", func(ctx context.Context) error {
		return d.deps.Health.CheckCluster(ctx, group.ID)
	}); err != nil {
		return r.finish(err)
	}

	var lease *types.Lease
	if err := r.step(ctx, "acquire", func(ctx context.Context) error {
		var err error
		lease, err = d.deps.Leases.Set(ctx, group.ID)
		return err
	}); err != nil {
		return r.finish(err)
	}

	err = d.sequence(ctx, r,
		namedStep{"shutdown", func(ctx context.Context) error {
			_, err := d.deps.Editor.ShutdownDB(ctx, group.ID, host, true)
			return err
		}},
		namedStep{"converge", func(ctx context.Context) error {
			return d.deps.Poller.Wait(ctx, group.ID)
		}},
		namedStep{"alerts", func(ctx context.Context) error {
			return d.deps.Health.Alerts(ctx, group.ID)
		}},
	)
	if err != nil {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		if releaseErr := d.deps.Leases.Release(releaseCtx, lease); releaseErr != nil {
			err = multierr.Append(err, fmt.Errorf("failed to release maintenance window: %w", releaseErr))
		}
		return r.finish(err)
	}

	logger := log.WithHost(log.WithGroup(d.logger, group.ID), host)
	logger.Info().Str("window_id", lease.WindowID).Msg("Node stopped, maintenance window held")
	return r.finish(nil)
}

// StartNode returns host to service: check alerts, enable its processes,
// converge, health gate, release maintenance
func (d *Driver) StartNode(ctx context.Context, host string) error {
	r := d.begin(WorkflowStart)
	r.record.Host = host

	group, err := r.resolve(ctx, func(ctx context.Context) (*types.Group, error) {
		return d.resolveHost(ctx, host)
	})
	if err != nil {
		return r.finish(err)
	}

	err = d.sequence(ctx, r,
		namedStep{"alerts", func(ctx context.Context) error {
			return d.deps.Health.Alerts(ctx, group.ID)
		}},
		namedStep{"startup", func(ctx context.Context) error {
			_, err := d.deps.Editor.ShutdownDB(ctx, group.ID, host, false)
			return err
		}},
		namedStep{"converge", func(ctx context.Context) error {
			return d.deps.Poller.Wait(ctx, group.ID)
		}},
		namedStep{"health", func(ctx context.Context) error {
			return d.deps.Health.CheckCluster(ctx, group.ID)
		}},
		namedStep{"release", func(ctx context.Context) error {
			return d.deps.Leases.ReleaseJournaled(ctx, group.ID)
		}},
	)
	return r.finish(err)
}

// Upgrade moves the group named database to version under a maintenance
// window: health gate, acquire, upgrade, health gate, release
func (d *Driver) Upgrade(ctx context.Context, database, version string) error {
	r := d.begin(WorkflowUpgrade)
	r.record.Version = version

	group, err := r.resolve(ctx, func(ctx context.Context) (*types.Group, error) {
		return d.deps.Resolver.GroupByName(ctx, database)
	})
	if err != nil {
		return r.finish(err)
	}

	if err := r.step(ctx, "health", func(ctx context.Context) error {
		return d.deps.Health.CheckCluster(ctx, group.ID)
	}); err != nil {
		return r.finish(err)
	}

	err = d.deps.Leases.WithLease(ctx, group.ID, func(ctx context.Context, lease *types.Lease) error {
		return d.sequence(ctx, r,
			namedStep{"upgrade", func(ctx context.Context) error {
				return d.deps.Upgrader.Upgrade(ctx, group.ID, version)
			}},
			namedStep{"verify", func(ctx context.Context) error {
				return d.deps.Health.CheckCluster(ctx, group.ID)
			}},
		)
	})
	return r.finish(err)
}

// Alert checks the open alerts of the group monitoring host
func (d *Driver) Alert(ctx context.Context, host string) error {
	return d.single(ctx, WorkflowAlert, host, func(ctx context.Context, group string) error {
		return d.deps.Health.Alerts(ctx, group)
	})
}

// Check reports whether the group monitoring host is idle. A busy group
// yields ErrClusterBusy.
func (d *Driver) Check(ctx context.Context, host string) error {
	return d.single(ctx, WorkflowCheck, host, func(ctx context.Context, group string) error {
		converged, err := d.deps.Poller.GoalStatus(ctx, group)
		if err != nil {
			return err
		}
		if !converged {
			d.logger.Error().Str("group_id", group).Msg("operation on cluster, try later")
			return types.ErrClusterBusy
		}
		d.logger.Debug().Str("group_id", group).Msg("No operation on cluster")
		return nil
	})
}

// Sync inspects the replica sets of the group monitoring host
func (d *Driver) Sync(ctx context.Context, host string) error {
	return d.single(ctx, WorkflowSync, host, func(ctx context.Context, group string) error {
		_, err := d.deps.Health.Sync(ctx, group)
		return err
	})
}

func (d *Driver) single(ctx context.Context, workflow, host string, fn func(ctx context.Context, group string) error) error {
	r := d.begin(workflow)
	r.record.Host = host

	group, err := r.resolve(ctx, func(ctx context.Context) (*types.Group, error) {
		return d.resolveHost(ctx, host)
	})
	if err != nil {
		return r.finish(err)
	}

	return r.finish(r.step(ctx, workflow, func(ctx context.Context) error {
		return fn(ctx, group.ID)
	}))
}

type namedStep struct {
	name string
	fn   func(ctx context.Context) error
}

// sequence runs steps in order and stops at the first failure
func (d *Driver) sequence(ctx context.Context, r *run, steps ...namedStep) error {
	for _, s := range steps {
		if err := r.step(ctx, s.name, s.fn); err != nil {
			return err
		}
	}
	return nil
}

// Actions accepted by Maintenance
var Actions = []string{WorkflowStart, WorkflowStop, WorkflowSync, WorkflowAlert, WorkflowCheck}

// Maintenance dispatches one maintenance action on host
func (d *Driver) Maintenance(ctx context.Context, action, host string) error {
	switch action {
	case WorkflowStop:
		return d.StopNode(ctx, host)
	case WorkflowStart:
		return d.StartNode(ctx, host)
	case WorkflowAlert:
		return d.Alert(ctx, host)
	case WorkflowCheck:
		return d.Check(ctx, host)
	case WorkflowSync:
		return d.Sync(ctx, host)
	default:
		return fmt.Errorf("unknown maintenance action %q (want one of %v)", action, Actions)
	}
}
