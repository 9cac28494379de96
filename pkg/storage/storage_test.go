package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/opsmgr/pkg/types"
)

func stores(t *testing.T) map[string]Store {
	dir, err := os.MkdirTemp("", "opsmgr-storage-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	bolt, err := NewBoltStore(dir)
	require.NoError(t, err)
	t.Cleanup(func() { bolt.Close() })

	return map[string]Store{
		"bolt":   bolt,
		"memory": NewMemoryStore(),
	}
}

func TestLeaseLifecycle(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			acquired := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
			lease := &types.Lease{
				GroupID:    "g1",
				WindowID:   "mw1",
				Owner:      "6f1c2b7e-0c55-4f7b-9a55-1d0b8d1f4e21",
				Host:       "db1.example.com",
				AcquiredAt: acquired,
			}
			require.NoError(t, store.SaveLease(lease))

			got, err := store.GetLease("g1")
			require.NoError(t, err)
			assert.Equal(t, "mw1", got.WindowID)
			assert.Equal(t, lease.Owner, got.Owner)
			assert.True(t, got.AcquiredAt.Equal(acquired))
			assert.False(t, got.Expired(acquired.Add(1000*time.Hour)))

			leases, err := store.ListLeases()
			require.NoError(t, err)
			assert.Len(t, leases, 1)

			require.NoError(t, store.DeleteLease("g1"))
			_, err = store.GetLease("g1")
			assert.ErrorIs(t, err, types.ErrNotFound)

			// Deleting twice is fine
			assert.NoError(t, store.DeleteLease("g1"))
		})
	}
}

func TestRunsAreListedOldestFirst(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			base := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
			require.NoError(t, store.SaveRun(&types.Run{ID: "b", Workflow: "upgrade", StartedAt: base.Add(time.Hour)}))
			require.NoError(t, store.SaveRun(&types.Run{ID: "a", Workflow: "stop", StartedAt: base}))

			// Updating a run replaces it
			require.NoError(t, store.SaveRun(&types.Run{
				ID:        "a",
				Workflow:  "stop",
				StartedAt: base,
				Result:    "success",
				Steps:     []types.StepRecord{{Name: "health", Result: "success"}},
			}))

			runs, err := store.ListRuns()
			require.NoError(t, err)
			require.Len(t, runs, 2)
			assert.Equal(t, "a", runs[0].ID)
			assert.Equal(t, "success", runs[0].Result)
			assert.Len(t, runs[0].Steps, 1)
			assert.Equal(t, "b", runs[1].ID)
		})
	}
}

func TestBoltStorePersists(t *testing.T) {
	dir := t.TempDir()

	store, err := NewBoltStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.SaveLease(&types.Lease{GroupID: "g1", WindowID: "mw7", Owner: "o"}))
	require.NoError(t, store.Close())

	assert.FileExists(t, filepath.Join(dir, DBFile))

	reopened, err := NewBoltStore(dir)
	require.NoError(t, err)
	defer reopened.Close()

	lease, err := reopened.GetLease("g1")
	require.NoError(t, err)
	assert.Equal(t, "mw7", lease.WindowID)
}

func TestOpen(t *testing.T) {
	store, err := Open("")
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)

	store, err = Open(filepath.Join(t.TempDir(), "state"))
	require.NoError(t, err)
	defer store.Close()
	assert.IsType(t, &BoltStore{}, store)
}
