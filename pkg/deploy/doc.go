/*
Package deploy waits for the automation agents of a group to apply the last
published automation configuration.

# Convergence

Ops Manager bumps the goal version of a group on every automation
configuration PUT. Each process reports the last goal version it achieved.
A group is converged once every process caught up:

	PUT automationConfig ──▶ goalVersion = N
	                             │
	        ┌────────────────────┘
	        ▼
	GET automationStatus ── every process at N? ──yes──▶ done
	        ▲                     │
	        │                     no
	        └──── wait interval ◀─┘

GoalStatus performs a single poll. Wait repeats it with a constant
interval until the group converges, the configured timeout elapses or the
context is canceled:

	poller := deploy.NewPoller(client, 2*time.Second, 30*time.Minute)
	if err := poller.Wait(ctx, groupID); err != nil {
		// types.ErrConvergenceTimeout, a transport error or ctx.Err()
	}

The loop is driven by cenkalti/backoff with a ConstantBackOff. Transport
errors end the wait at once; they are not retried. A zero timeout waits
until the context ends.

Tests replace the wait with WithTimer so no real time passes.
*/
package deploy
