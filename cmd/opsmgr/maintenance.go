package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cuemby/opsmgr/pkg/manager"
	"github.com/cuemby/opsmgr/pkg/workflow"
)

var maintenanceCmd = &cobra.Command{
	Use:   "maintenance",
	Short: "Run a maintenance action on a cluster node",
	Long: `Run one maintenance action on the cluster monitoring --host:

  stop   check health, set a maintenance window, shut the node down
  start  start the node, check health, remove the maintenance window
  alert  fail when the cluster has open alerts
  check  fail when an automation change is in progress
  sync   fail when a replica set member is in a poor state`,
	Example: `  # Take a node out of service
  opsmgr maintenance --action stop --host db1.example.com

  # Return it to service
  opsmgr maintenance --action start --host db1.example.com`,
	RunE: func(cmd *cobra.Command, args []string) error {
		action, _ := cmd.Flags().GetString("action")
		host, _ := cmd.Flags().GetString("host")

		return withManager(func(m *manager.Manager) error {
			return m.Driver().Maintenance(cmd.Context(), action, host)
		})
	},
}

func init() {
	maintenanceCmd.Flags().String("action", "", fmt.Sprintf("Action to run: %s", strings.Join(workflow.Actions, ", ")))
	maintenanceCmd.Flags().String("host", "", "Host name of the node")
	_ = maintenanceCmd.MarkFlagRequired("action")
	_ = maintenanceCmd.MarkFlagRequired("host")
}
