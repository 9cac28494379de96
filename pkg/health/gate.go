package health

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/opsmgr/pkg/automation"
	"github.com/cuemby/opsmgr/pkg/log"
	"github.com/cuemby/opsmgr/pkg/metrics"
	"github.com/cuemby/opsmgr/pkg/types"
)

// Client is the part of the Ops Manager API the gate reads
type Client interface {
	GroupAlerts(ctx context.Context, group string) ([]types.Alert, error)
	AutomationConfig(ctx context.Context, group string) (*types.AutomationConfig, error)
}

// GoalChecker reports whether the last configuration took effect
type GoalChecker interface {
	GoalStatus(ctx context.Context, group string) (bool, error)
}

// Gate decides whether a cluster is fit for a disruptive operation
type Gate struct {
	client    Client
	goal      GoalChecker
	inspector ReplicaInspector
	logger    zerolog.Logger
}

// NewGate creates a health gate
func NewGate(client Client, goal GoalChecker, inspector ReplicaInspector) *Gate {
	return &Gate{
		client:    client,
		goal:      goal,
		inspector: inspector,
		logger:    log.WithComponent("health"),
	}
}

// Alerts fails with ErrClusterUnhealthy when the group has an open alert
func (g *Gate) Alerts(ctx context.Context, group string) error {
	return g.run(ctx, group, g.alertsCheck(group))
}

// Sync inspects the replica set members of every shard and fails with
// ErrClusterUnhealthy when any of them is in a poor state. It returns 0
// on success.
func (g *Gate) Sync(ctx context.Context, group string) (int, error) {
	if err := g.run(ctx, group, g.syncCheck(group)); err != nil {
		return 1, err
	}
	return 0, nil
}

// CheckCluster runs the goal, alert and sync checks in order and stops at
// the first failure
func (g *Gate) CheckCluster(ctx context.Context, group string) error {
	for _, c := range g.Checkers(group) {
		if err := g.run(ctx, group, c); err != nil {
			return err
		}
	}
	return nil
}

// Checkers returns the checks of the composite gate in evaluation order
func (g *Gate) Checkers(group string) []Checker {
	return []Checker{
		g.goalCheck(group),
		g.alertsCheck(group),
		g.syncCheck(group),
	}
}

func (g *Gate) run(ctx context.Context, group string, c Checker) error {
	result := c.Check(ctx)

	label := "healthy"
	if !result.Healthy {
		label = "unhealthy"
	}
	metrics.HealthChecksTotal.WithLabelValues(string(c.Type()), label).Inc()

	ev := g.logger.Debug()
	if !result.Healthy {
		ev = g.logger.Error()
	}
	ev.Str("group_id", group).
		Str("check", string(c.Type())).
		Dur("duration", result.Duration).
		Msg(result.Message)

	return result.Err
}

func (g *Gate) goalCheck(group string) Checker {
	return CheckerFunc{CheckType: CheckTypeGoal, Fn: func(ctx context.Context) Result {
		start := time.Now()
		converged, err := g.goal.GoalStatus(ctx, group)
		if err != nil {
			return unhealthy(start, err)
		}
		if !converged {
			return unhealthy(start, types.ErrClusterBusy)
		}
		return healthy(start, "No operation on cluster")
	}}
}

func (g *Gate) alertsCheck(group string) Checker {
	return CheckerFunc{CheckType: CheckTypeAlerts, Fn: func(ctx context.Context) Result {
		start := time.Now()
		alerts, err := g.client.GroupAlerts(ctx, group)
		if err != nil {
			return unhealthy(start, fmt.Errorf("failed to get alerts: %w", err))
		}

		var open []string
		for _, a := range alerts {
			if a.Open() {
				open = append(open, a.TypeName+"/"+a.EventTypeName)
			}
		}
		if len(open) > 0 {
			return unhealthy(start, fmt.Errorf("MongoDB has %d open alerts (%s): %w",
				len(open), strings.Join(open, ", "), types.ErrClusterUnhealthy))
		}
		return healthy(start, "No open alerts on MongoDB cluster")
	}}
}

func (g *Gate) syncCheck(group string) Checker {
	return CheckerFunc{CheckType: CheckTypeSync, Fn: func(ctx context.Context) Result {
		start := time.Now()
		cfg, err := g.client.AutomationConfig(ctx, group)
		if err != nil {
			return unhealthy(start, fmt.Errorf("failed to get automation config: %w", err))
		}
		info, err := automation.ConnectionInfo(cfg)
		if err != nil {
			return unhealthy(start, err)
		}

		states, err := g.inspector.MemberStates(ctx, info)
		if err != nil {
			return unhealthy(start, fmt.Errorf("failed to inspect replica sets: %w", err))
		}

		if poor := PoorMembers(states); len(poor) > 0 {
			return unhealthy(start, fmt.Errorf("MongoDB replicas are in poor condition (%s): %w",
				strings.Join(poor, ", "), types.ErrClusterUnhealthy))
		}
		return healthy(start, "MongoDB replicas are in good condition")
	}}
}

// PoorMembers describes every member in a poor state, sorted
func PoorMembers(states []types.MemberState) []string {
	var poor []string
	for _, s := range states {
		if s.State.Poor() {
			poor = append(poor, fmt.Sprintf("%s %s %s", s.ReplicaSet, s.Name, s.State))
		}
	}
	sort.Strings(poor)
	return poor
}
