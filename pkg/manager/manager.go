package manager

import (
	"fmt"

	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	"github.com/cuemby/opsmgr/pkg/automation"
	"github.com/cuemby/opsmgr/pkg/config"
	"github.com/cuemby/opsmgr/pkg/deploy"
	"github.com/cuemby/opsmgr/pkg/events"
	"github.com/cuemby/opsmgr/pkg/health"
	"github.com/cuemby/opsmgr/pkg/log"
	"github.com/cuemby/opsmgr/pkg/maintenance"
	"github.com/cuemby/opsmgr/pkg/metrics"
	"github.com/cuemby/opsmgr/pkg/opsmanager"
	"github.com/cuemby/opsmgr/pkg/storage"
	"github.com/cuemby/opsmgr/pkg/upgrade"
	"github.com/cuemby/opsmgr/pkg/workflow"
)

// Manager owns every component of one opsmgr invocation
type Manager struct {
	cfg config.Config

	client    *opsmanager.Client
	store     storage.Store
	broker    *events.Broker
	collector *JournalCollector

	poller   *deploy.Poller
	editor   *automation.Editor
	gate     *health.Gate
	leases   *maintenance.Manager
	upgrader *upgrade.Orchestrator
	driver   *workflow.Driver

	logger zerolog.Logger
}

// Options override the collaborators NewManager would build from the
// configuration
type Options struct {
	Client    *opsmanager.Client
	Store     storage.Store
	Inspector health.ReplicaInspector
}

// NewManager builds the components from cfg
func NewManager(cfg config.Config) (*Manager, error) {
	return NewWithOptions(cfg, Options{})
}

// NewWithOptions builds the components from cfg and opts
func NewWithOptions(cfg config.Config, opts Options) (*Manager, error) {
	client := opts.Client
	if client == nil {
		var err error
		client, err = opsmanager.New(cfg)
		if err != nil {
			return nil, err
		}
	}

	store := opts.Store
	if store == nil {
		var err error
		store, err = storage.Open(cfg.StateDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open journal: %w", err)
		}
	}

	inspector := opts.Inspector
	if inspector == nil {
		inspector = health.NewMongoInspector()
	}

	broker := events.NewBroker()
	broker.Start()

	collector := NewJournalCollector(store)
	if err := metrics.Registry.Register(collector); err != nil {
		broker.Stop()
		_ = store.Close()
		return nil, fmt.Errorf("failed to register journal collector: %w", err)
	}

	poller := deploy.NewPoller(client, cfg.PollInterval, cfg.ConvergeTimeout)
	editor := automation.NewEditor(client, poller)
	gate := health.NewGate(client, poller, inspector)
	leases := maintenance.NewManager(client, store, cfg.LeaseTTL)
	upgrader := upgrade.NewOrchestrator(editor, poller)

	driver := workflow.NewDriver(workflow.Deps{
		Resolver: client,
		Health:   gate,
		Leases:   leases,
		Editor:   editor,
		Poller:   poller,
		Upgrader: upgrader,
		Journal:  store,
		Broker:   broker,
	})

	m := &Manager{
		cfg:       cfg,
		client:    client,
		store:     store,
		broker:    broker,
		collector: collector,
		poller:    poller,
		editor:    editor,
		gate:      gate,
		leases:    leases,
		upgrader:  upgrader,
		driver:    driver,
		logger:    log.WithComponent("manager"),
	}

	m.logger.Debug().
		Str("mms", client.BaseURL()).
		Str("state_dir", cfg.StateDir).
		Str("lease_owner", leases.Owner()).
		Msg("Components ready")

	return m, nil
}

// Client returns the Ops Manager API client
func (m *Manager) Client() *opsmanager.Client {
	return m.client
}

// Store returns the local journal
func (m *Manager) Store() storage.Store {
	return m.store
}

// Broker returns the progress event broker
func (m *Manager) Broker() *events.Broker {
	return m.broker
}

// Poller returns the convergence poller
func (m *Manager) Poller() *deploy.Poller {
	return m.poller
}

// Gate returns the health gate
func (m *Manager) Gate() *health.Gate {
	return m.gate
}

// Leases returns the maintenance window manager
func (m *Manager) Leases() *maintenance.Manager {
	return m.leases
}

// Driver returns the workflow driver
func (m *Manager) Driver() *workflow.Driver {
	return m.driver
}

// Close stops the event broker, closing every subscriber, and closes the
// journal
func (m *Manager) Close() error {
	m.broker.Stop()
	metrics.Registry.Unregister(m.collector)

	var err error
	if closeErr := m.store.Close(); closeErr != nil {
		err = multierr.Append(err, fmt.Errorf("failed to close journal: %w", closeErr))
	}
	return err
}
