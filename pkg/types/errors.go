package types

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrClusterBusy is returned when the automation agents have not reached
	// the goal state and the operation needs a settled cluster
	ErrClusterBusy = errors.New("operation on cluster in progress, try later")

	// ErrClusterUnhealthy is returned when open alerts exist or replica set
	// members are in a poor state
	ErrClusterUnhealthy = errors.New("cluster unhealthy, contact DBA")

	// ErrMaintenanceConflict is returned when a maintenance window is
	// already active on acquisition
	ErrMaintenanceConflict = errors.New("maintenance window already set, try later")

	// ErrConvergenceTimeout is returned when the goal state was not reached
	// within the configured bound
	ErrConvergenceTimeout = errors.New("timed out waiting for automation goal state")

	// ErrNotFound is returned when a group, host or process lookup fails
	ErrNotFound = errors.New("not found")
)

// TransportError is a non-success response from the management service
type TransportError struct {
	Method     string
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *TransportError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: HTTP %d", e.Method, e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.Endpoint, e.StatusCode, e.Body)
}

// Kind is the tagged variant of an operation outcome
type Kind int

const (
	KindOK Kind = iota
	KindTransport
	KindClusterBusy
	KindClusterUnhealthy
	KindMaintenanceConflict
	KindConvergenceTimeout
	KindNotFound
	KindCanceled
	KindUnknown
)

// String returns a short name for the kind
func (k Kind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindTransport:
		return "transport_error"
	case KindClusterBusy:
		return "cluster_busy"
	case KindClusterUnhealthy:
		return "cluster_unhealthy"
	case KindMaintenanceConflict:
		return "maintenance_conflict"
	case KindConvergenceTimeout:
		return "convergence_timeout"
	case KindNotFound:
		return "not_found"
	case KindCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// KindOf classifies err. A nil error is KindOK. A 404 carries both
// ErrNotFound and the TransportError and is KindNotFound.
func KindOf(err error) Kind {
	var transportErr *TransportError
	switch {
	case err == nil:
		return KindOK
	case errors.Is(err, ErrClusterBusy):
		return KindClusterBusy
	case errors.Is(err, ErrClusterUnhealthy):
		return KindClusterUnhealthy
	case errors.Is(err, ErrMaintenanceConflict):
		return KindMaintenanceConflict
	case errors.Is(err, ErrConvergenceTimeout):
		return KindConvergenceTimeout
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.As(err, &transportErr):
		return KindTransport
	case errors.Is(err, context.Canceled):
		return KindCanceled
	default:
		return KindUnknown
	}
}
