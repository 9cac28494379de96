package health

import (
	"context"
	"time"
)

// CheckType identifies one stage of the cluster health gate
type CheckType string

const (
	CheckTypeGoal   CheckType = "goal"
	CheckTypeAlerts CheckType = "alerts"
	CheckTypeSync   CheckType = "sync"
	CheckTypeRouter CheckType = "router"
)

// Result represents the outcome of a health check
type Result struct {
	Healthy   bool
	Message   string
	CheckedAt time.Time
	Duration  time.Duration

	// Err is the classified failure, nil when Healthy
	Err error
}

// Checker is the interface that all health checkers must implement
type Checker interface {
	// Check performs the health check and returns the result
	Check(ctx context.Context) Result

	// Type returns the type of health check
	Type() CheckType
}

// CheckerFunc adapts a function to the Checker interface
type CheckerFunc struct {
	CheckType CheckType
	Fn        func(ctx context.Context) Result
}

// Check calls Fn
func (f CheckerFunc) Check(ctx context.Context) Result {
	return f.Fn(ctx)
}

// Type returns CheckType
func (f CheckerFunc) Type() CheckType {
	return f.CheckType
}

func healthy(start time.Time, msg string) Result {
	return Result{
		Healthy:   true,
		Message:   msg,
		CheckedAt: start,
		Duration:  time.Since(start),
	}
}

func unhealthy(start time.Time, err error) Result {
	return Result{
		Healthy:   false,
		Message:   err.Error(),
		CheckedAt: start,
		Duration:  time.Since(start),
		Err:       err,
	}
}
