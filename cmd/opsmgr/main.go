package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/cuemby/opsmgr/pkg/config"
	"github.com/cuemby/opsmgr/pkg/log"
	"github.com/cuemby/opsmgr/pkg/manager"
	"github.com/cuemby/opsmgr/pkg/metrics"
	"github.com/cuemby/opsmgr/pkg/types"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// cfg is resolved before any subcommand runs
var cfg = config.Default()

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		log.Logger.Error().Err(err).Str("kind", types.KindOf(err).String()).Msg("Command failed")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}

	if writeErr := metrics.WriteTextfile(cfg.MetricsTextfile); writeErr != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", writeErr)
	}
	_ = log.Close()

	return exitCode(err)
}

// exitCode maps the outcome of a command to the process exit status
func exitCode(err error) int {
	switch types.KindOf(err) {
	case types.KindOK:
		return 0
	case types.KindTransport:
		return 2
	case types.KindClusterBusy:
		return 3
	case types.KindClusterUnhealthy:
		return 4
	case types.KindMaintenanceConflict:
		return 5
	case types.KindConvergenceTimeout:
		return 6
	case types.KindNotFound:
		return 7
	case types.KindCanceled:
		return 130
	default:
		return 1
	}
}

var rootCmd = &cobra.Command{
	Use:   "opsmgr",
	Short: "opsmgr - MongoDB lifecycle operations through Ops Manager",
	Long: `opsmgr drives maintenance windows, rolling node shutdowns and version
upgrades of MongoDB clusters managed by Ops Manager.

Every mutating operation is gated on cluster health and on the
maintenance window of the group, and returns only once the automation
agents reached the goal state.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(cmd.Flags())
		if err != nil {
			return err
		}
		cfg = loaded

		return log.Init(log.Config{
			Level:      cfg.LogLevel,
			JSONOutput: cfg.JSONLogs,
			ErrorFile:  cfg.ErrorLogFile,
		})
	},
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"opsmgr version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	config.RegisterFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(maintenanceCmd)
	rootCmd.AddCommand(upgradeCmd)
	rootCmd.AddCommand(moduleCmd)
	rootCmd.AddCommand(groupsCmd)
	rootCmd.AddCommand(runsCmd)
}

// openManager validates the configuration and builds the components
func openManager() (*manager.Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return manager.NewManager(cfg)
}

// withManager runs fn with the components, printing workflow progress to
// stdout, and closes them afterwards
func withManager(fn func(m *manager.Manager) error) (err error) {
	m, err := openManager()
	if err != nil {
		return err
	}

	done := printProgress(os.Stdout, m.Broker())
	defer func() {
		closeErr := m.Close()
		<-done
		err = multierr.Append(err, closeErr)
	}()

	return fn(m)
}
