package storage

import (
	"github.com/cuemby/opsmgr/pkg/types"
)

// Store journals maintenance leases and workflow runs between invocations
type Store interface {
	// Leases, keyed by group ID
	SaveLease(lease *types.Lease) error
	GetLease(groupID string) (*types.Lease, error)
	ListLeases() ([]*types.Lease, error)
	DeleteLease(groupID string) error

	// Runs
	SaveRun(run *types.Run) error
	ListRuns() ([]*types.Run, error)

	// Utility
	Close() error
}
