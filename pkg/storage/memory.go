package storage

import (
	"fmt"
	"sort"
	"sync"

	"github.com/cuemby/opsmgr/pkg/types"
)

// MemoryStore keeps the journal in memory for the life of the process. It
// is used when no state directory is configured.
type MemoryStore struct {
	mu     sync.Mutex
	leases map[string]types.Lease
	runs   map[string]types.Run
}

// NewMemoryStore creates an empty in-memory journal
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		leases: make(map[string]types.Lease),
		runs:   make(map[string]types.Run),
	}
}

// Open returns a BoltStore in dataDir, or a MemoryStore when dataDir is
// empty
func Open(dataDir string) (Store, error) {
	if dataDir == "" {
		return NewMemoryStore(), nil
	}
	return NewBoltStore(dataDir)
}

func (m *MemoryStore) SaveLease(lease *types.Lease) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leases[lease.GroupID] = *lease
	return nil
}

func (m *MemoryStore) GetLease(groupID string) (*types.Lease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lease, ok := m.leases[groupID]
	if !ok {
		return nil, fmt.Errorf("lease of group %s: %w", groupID, types.ErrNotFound)
	}
	return &lease, nil
}

func (m *MemoryStore) ListLeases() ([]*types.Lease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	leases := make([]*types.Lease, 0, len(m.leases))
	for _, l := range m.leases {
		lease := l
		leases = append(leases, &lease)
	}
	return leases, nil
}

func (m *MemoryStore) DeleteLease(groupID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.leases, groupID)
	return nil
}

func (m *MemoryStore) SaveRun(run *types.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := *run
	r.Steps = append([]types.StepRecord(nil), run.Steps...)
	m.runs[run.ID] = r
	return nil
}

func (m *MemoryStore) ListRuns() ([]*types.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	runs := make([]*types.Run, 0, len(m.runs))
	for _, r := range m.runs {
		run := r
		runs = append(runs, &run)
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.Before(runs[j].StartedAt)
	})
	return runs, nil
}

func (m *MemoryStore) Close() error {
	return nil
}
