package main

import (
	"github.com/spf13/cobra"

	"github.com/cuemby/opsmgr/pkg/manager"
)

var upgradeCmd = &cobra.Command{
	Use:   "upgrade",
	Short: "Upgrade the MongoDB version of a cluster",
	Long: `Upgrade every process of the group named --database to --version under
a maintenance window. The feature compatibility version is staged first
when the upgrade crosses a feature release.`,
	Example: `  opsmgr upgrade --database orders --version 4.2.1`,
	RunE: func(cmd *cobra.Command, args []string) error {
		version, _ := cmd.Flags().GetString("version")
		database, _ := cmd.Flags().GetString("database")

		return withManager(func(m *manager.Manager) error {
			return m.Driver().Upgrade(cmd.Context(), database, version)
		})
	},
}

func init() {
	upgradeCmd.Flags().String("version", "", "Target MongoDB version (e.g., 4.2.1)")
	upgradeCmd.Flags().String("database", "", "Name of the Ops Manager group to upgrade")
	_ = upgradeCmd.MarkFlagRequired("version")
	_ = upgradeCmd.MarkFlagRequired("database")
}
