package deploy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/cuemby/opsmgr/pkg/log"
	"github.com/cuemby/opsmgr/pkg/metrics"
	"github.com/cuemby/opsmgr/pkg/types"
)

// StatusSource reads the automation status of a group
type StatusSource interface {
	AutomationStatus(ctx context.Context, group string) (*types.AutomationStatus, error)
}

var errNotConverged = errors.New("automation goal state not reached")

// Poller waits for the automation agents of a group to reach the goal
// version of the last published configuration
type Poller struct {
	source   StatusSource
	interval time.Duration
	timeout  time.Duration
	timer    backoff.Timer
	logger   zerolog.Logger
}

// NewPoller creates a poller probing every interval. A zero timeout waits
// until the context is canceled.
func NewPoller(source StatusSource, interval, timeout time.Duration) *Poller {
	return &Poller{
		source:   source,
		interval: interval,
		timeout:  timeout,
		logger:   log.WithComponent("deploy"),
	}
}

// WithTimer replaces the timer used between polls
func (p *Poller) WithTimer(t backoff.Timer) *Poller {
	p.timer = t
	return p
}

// GoalStatus polls once and reports whether every process achieved the
// goal version
func (p *Poller) GoalStatus(ctx context.Context, group string) (bool, error) {
	metrics.ConvergencePollsTotal.Inc()

	status, err := p.source.AutomationStatus(ctx, group)
	if err != nil {
		return false, fmt.Errorf("failed to get automation status: %w", err)
	}

	if pending := status.Pending(); len(pending) > 0 {
		ev := p.logger.Debug().Str("group_id", group).Int("goal_version", status.GoalVersion)
		for _, proc := range pending {
			ev = ev.Int(proc.Hostname, proc.LastGoalVersionAchieved)
		}
		ev.Msg("Processes behind goal version")
		return false, nil
	}
	return true, nil
}

// Wait blocks until the group converges. Exactly one interval elapses
// between consecutive polls. Transport errors end the wait immediately.
func (p *Poller) Wait(ctx context.Context, group string) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ConvergenceWait)

	waitCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	poll := func() error {
		converged, err := p.GoalStatus(waitCtx, group)
		if err != nil {
			if waitCtx.Err() != nil {
				return backoff.Permanent(waitCtx.Err())
			}
			return backoff.Permanent(err)
		}
		if !converged {
			return errNotConverged
		}
		return nil
	}

	notify := func(_ error, next time.Duration) {
		p.logger.Debug().Str("group_id", group).Dur("next", next).Msg("Waiting for goal state")
	}

	b := backoff.WithContext(backoff.NewConstantBackOff(p.interval), waitCtx)
	err := backoff.RetryNotifyWithTimer(poll, b, notify, p.timer)

	switch {
	case err == nil:
		p.logger.Debug().Str("group_id", group).Dur("elapsed", timer.Duration()).Msg("Change has been deployed on MongoDB cluster")
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("group %s after %v: %w", group, p.timeout, types.ErrConvergenceTimeout)
	default:
		return err
	}
}
