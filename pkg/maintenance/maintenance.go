package maintenance

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	"github.com/cuemby/opsmgr/pkg/log"
	"github.com/cuemby/opsmgr/pkg/metrics"
	"github.com/cuemby/opsmgr/pkg/storage"
	"github.com/cuemby/opsmgr/pkg/types"
)

// AlertScope is the alert type silenced by opsmgr windows
const AlertScope = "CLUSTER"

// FarFuture is the end date of windows without a TTL
const FarFuture = "9999-12-31T23:59:59"

// descriptionPrefix starts the description of every window opsmgr creates
const descriptionPrefix = "opsmgr lease"

// releaseTimeout bounds the release that runs after the caller's context
// is canceled
const releaseTimeout = 30 * time.Second

// Client is the part of the Ops Manager API the manager uses
type Client interface {
	MaintenanceWindows(ctx context.Context, group string) ([]types.MaintenanceWindow, error)
	CreateMaintenanceWindow(ctx context.Context, group string, w *types.MaintenanceWindow) (*types.MaintenanceWindow, error)
	DeleteMaintenanceWindow(ctx context.Context, group, id string) error
}

// Manager treats the maintenance window of a group as a cooperative lock
type Manager struct {
	client  Client
	journal storage.Store
	ttl     time.Duration
	owner   string
	host    string
	now     func() time.Time
	logger  zerolog.Logger
}

// NewManager creates a manager whose leases last ttl. A zero ttl creates
// windows that never end on their own.
func NewManager(client Client, journal storage.Store, ttl time.Duration) *Manager {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	if journal == nil {
		journal = storage.NewMemoryStore()
	}
	return &Manager{
		client:  client,
		journal: journal,
		ttl:     ttl,
		owner:   uuid.NewString(),
		host:    host,
		now:     time.Now,
		logger:  log.WithComponent("maintenance"),
	}
}

// Owner returns the identity written into windows this manager creates
func (m *Manager) Owner() string {
	return m.owner
}

// Describe returns the window description carrying owner and host
func Describe(owner, host string) string {
	return fmt.Sprintf("%s owner=%s host=%s", descriptionPrefix, owner, host)
}

// OwnerOf extracts the lease owner from a window description. It returns
// an empty string for windows not created by opsmgr.
func OwnerOf(w *types.MaintenanceWindow) string {
	if !strings.HasPrefix(w.Description, descriptionPrefix) {
		return ""
	}
	for _, field := range strings.Fields(w.Description) {
		if owner, ok := strings.CutPrefix(field, "owner="); ok {
			return owner
		}
	}
	return ""
}

// partition splits windows into those still in effect and those past
// their end date
func (m *Manager) partition(windows []types.MaintenanceWindow) (active, expired []types.MaintenanceWindow) {
	now := m.now()
	for _, w := range windows {
		if w.Expired(now) {
			expired = append(expired, w)
		} else {
			active = append(active, w)
		}
	}
	return active, expired
}

// Check reports whether the group is clear of maintenance windows
func (m *Manager) Check(ctx context.Context, group string) (bool, error) {
	windows, err := m.client.MaintenanceWindows(ctx, group)
	if err != nil {
		return false, fmt.Errorf("failed to list maintenance windows: %w", err)
	}

	logger := log.WithGroup(m.logger, group)
	active, _ := m.partition(windows)
	if len(active) == 0 {
		logger.Debug().Msg("Maintenance window not set")
		return true, nil
	}

	for _, w := range active {
		logger.Debug().
			Str("window_id", w.ID).
			Str("start_date", w.StartDate).
			Str("end_date", w.EndDate).
			Str("owner", OwnerOf(&w)).
			Msg("Maintenance window set")
	}
	return false, nil
}

// Set creates the maintenance window of group and returns the lease on
// it. It fails with ErrMaintenanceConflict when a window is in effect.
// Expired windows are removed first.
func (m *Manager) Set(ctx context.Context, group string) (*types.Lease, error) {
	windows, err := m.client.MaintenanceWindows(ctx, group)
	if err != nil {
		return nil, fmt.Errorf("failed to list maintenance windows: %w", err)
	}

	logger := log.WithGroup(m.logger, group)
	active, expired := m.partition(windows)
	if len(active) > 0 {
		w := active[0]
		return nil, fmt.Errorf("window %s until %s held by %q: %w",
			w.ID, w.EndDate, OwnerOf(&w), types.ErrMaintenanceConflict)
	}

	for _, w := range expired {
		logger.Info().Str("window_id", w.ID).Str("end_date", w.EndDate).Msg("Removing expired maintenance window")
		if err := m.client.DeleteMaintenanceWindow(ctx, group, w.ID); err != nil {
			return nil, fmt.Errorf("failed to delete expired window %s: %w", w.ID, err)
		}
	}

	now := m.now().UTC()
	lease := &types.Lease{
		GroupID:    group,
		Owner:      m.owner,
		Host:       m.host,
		AcquiredAt: now,
	}

	window := &types.MaintenanceWindow{
		StartDate:      now.Format(time.RFC3339),
		EndDate:        FarFuture,
		AlertTypeNames: []string{AlertScope},
		Description:    Describe(m.owner, m.host),
	}
	if m.ttl > 0 {
		lease.ExpiresAt = now.Add(m.ttl)
		window.EndDate = lease.ExpiresAt.Format(time.RFC3339)
	}

	created, err := m.client.CreateMaintenanceWindow(ctx, group, window)
	if err != nil {
		return nil, fmt.Errorf("failed to create maintenance window: %w", err)
	}
	lease.WindowID = created.ID

	if err := m.journal.SaveLease(lease); err != nil {
		logger.Warn().Err(err).Msg("Failed to journal lease")
	}
	metrics.MaintenanceWindowsActive.Inc()

	logger.Info().
		Str("window_id", lease.WindowID).
		Str("end_date", window.EndDate).
		Msg("Maintenance window created")
	return lease, nil
}

// Delete removes the first maintenance window of group. It does nothing
// when the group is clear.
func (m *Manager) Delete(ctx context.Context, group string) error {
	windows, err := m.client.MaintenanceWindows(ctx, group)
	if err != nil {
		return fmt.Errorf("failed to list maintenance windows: %w", err)
	}
	logger := log.WithGroup(m.logger, group)
	if len(windows) == 0 {
		logger.Debug().Msg("No maintenance window to delete")
		return nil
	}

	w := windows[0]
	if err := m.client.DeleteMaintenanceWindow(ctx, group, w.ID); err != nil {
		return fmt.Errorf("failed to delete maintenance window %s: %w", w.ID, err)
	}
	m.forget(group, w.ID)

	logger.Info().Str("window_id", w.ID).Msg("Maintenance window deleted")
	return nil
}

// Release deletes the window held by lease. A window that is already gone
// counts as released. A window now carrying another owner is left in place
// and reported as ErrMaintenanceConflict.
func (m *Manager) Release(ctx context.Context, lease *types.Lease) error {
	windows, err := m.client.MaintenanceWindows(ctx, lease.GroupID)
	if err != nil {
		return fmt.Errorf("failed to list maintenance windows: %w", err)
	}

	for _, w := range windows {
		if w.ID != lease.WindowID {
			continue
		}
		if owner := OwnerOf(&w); owner != "" && owner != lease.Owner {
			return fmt.Errorf("window %s now held by %q: %w", w.ID, owner, types.ErrMaintenanceConflict)
		}
		if err := m.client.DeleteMaintenanceWindow(ctx, lease.GroupID, w.ID); err != nil {
			return fmt.Errorf("failed to delete maintenance window %s: %w", w.ID, err)
		}
		logger := log.WithGroup(m.logger, lease.GroupID)
		logger.Info().Str("window_id", w.ID).Msg("Maintenance window released")
		break
	}

	m.forget(lease.GroupID, lease.WindowID)
	return nil
}

// ReleaseJournaled releases the lease journaled for group, typically taken
// by an earlier invocation. Without a journaled lease it falls back to
// Delete.
func (m *Manager) ReleaseJournaled(ctx context.Context, group string) error {
	lease, err := m.journal.GetLease(group)
	if errors.Is(err, types.ErrNotFound) {
		return m.Delete(ctx, group)
	}
	if err != nil {
		return fmt.Errorf("failed to read lease journal: %w", err)
	}
	return m.Release(ctx, lease)
}

// WithLease runs fn while holding the maintenance window of group. The
// window is released on every exit path and a release failure is joined
// with the error of fn.
func (m *Manager) WithLease(ctx context.Context, group string, fn func(ctx context.Context, lease *types.Lease) error) (err error) {
	lease, err := m.Set(ctx, group)
	if err != nil {
		return err
	}

	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()

		if r := recover(); r != nil {
			_ = m.Release(releaseCtx, lease)
			panic(r)
		}
		if releaseErr := m.Release(releaseCtx, lease); releaseErr != nil {
			err = multierr.Append(err, fmt.Errorf("failed to release maintenance window: %w", releaseErr))
		}
	}()

	return fn(ctx, lease)
}

func (m *Manager) forget(group, windowID string) {
	lease, err := m.journal.GetLease(group)
	if err != nil {
		return
	}
	if lease.WindowID != windowID {
		return
	}
	if err := m.journal.DeleteLease(group); err != nil {
		m.logger.Warn().Err(err).Str("group_id", group).Msg("Failed to remove lease from journal")
		return
	}
	if lease.Owner == m.owner {
		metrics.MaintenanceWindowsActive.Dec()
	}
}
