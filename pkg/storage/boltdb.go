package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/opsmgr/pkg/types"
)

// DBFile is the journal file name inside the state directory
const DBFile = "opsmgr.db"

// defaultLockTimeout bounds the wait for the file lock held by another
// opsmgr process
const defaultLockTimeout = 5 * time.Second

var (
	// Bucket names
	bucketLeases = []byte("leases")
	bucketRuns   = []byte("runs")
)

// BoltStore implements Store using BoltDB
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens or creates the journal in dataDir
func NewBoltStore(dataDir string) (*BoltStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	db, err := bolt.Open(filepath.Join(dataDir, DBFile), 0600, &bolt.Options{Timeout: defaultLockTimeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketLeases, bucketRuns} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) put(bucket []byte, key string, v any) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return tx.Bucket(bucket).Put([]byte(key), data)
	})
}

// SaveLease records the lease held on lease.GroupID
func (s *BoltStore) SaveLease(lease *types.Lease) error {
	return s.put(bucketLeases, lease.GroupID, lease)
}

// GetLease returns the lease held on groupID
func (s *BoltStore) GetLease(groupID string) (*types.Lease, error) {
	var lease types.Lease
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketLeases).Get([]byte(groupID))
		if data == nil {
			return fmt.Errorf("lease of group %s: %w", groupID, types.ErrNotFound)
		}
		return json.Unmarshal(data, &lease)
	})
	if err != nil {
		return nil, err
	}
	return &lease, nil
}

// ListLeases returns every journaled lease
func (s *BoltStore) ListLeases() ([]*types.Lease, error) {
	var leases []*types.Lease
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketLeases).ForEach(func(k, v []byte) error {
			var lease types.Lease
			if err := json.Unmarshal(v, &lease); err != nil {
				return err
			}
			leases = append(leases, &lease)
			return nil
		})
	})
	return leases, err
}

// DeleteLease forgets the lease of groupID
func (s *BoltStore) DeleteLease(groupID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketLeases).Delete([]byte(groupID))
	})
}

// SaveRun records or updates a workflow run
func (s *BoltStore) SaveRun(run *types.Run) error {
	return s.put(bucketRuns, run.ID, run)
}

// ListRuns returns every journaled run, oldest first
func (s *BoltStore) ListRuns() ([]*types.Run, error) {
	var runs []*types.Run
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRuns).ForEach(func(k, v []byte) error {
			var run types.Run
			if err := json.Unmarshal(v, &run); err != nil {
				return err
			}
			runs = append(runs, &run)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.Before(runs[j].StartedAt)
	})
	return runs, nil
}
