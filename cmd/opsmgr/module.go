package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/cuemby/opsmgr/pkg/module"
)

var moduleCmd = &cobra.Command{
	Use:   "module",
	Short: "Answer host automation framework commands",
	Long: `Run one command of the host automation framework contract and print
its result document. Failures are reported in the document and in the
exit status.`,
}

func newModuleCmd(command, short string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   command,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			cluster, _ := cmd.Flags().GetString("cluster")
			host, _ := cmd.Flags().GetString("host")
			output, _ := cmd.Flags().GetString("output")

			params := module.Params{
				Cluster: cluster,
				Host:    host,
				User:    cfg.User,
				Key:     cfg.APIKey,
				MMS:     cfg.BaseURL,
				Verify:  cfg.TLS.String(),
			}

			res := module.New(cfg).Run(cmd.Context(), command, params)
			if err := res.Render(os.Stdout, output); err != nil {
				return err
			}
			return res.Err()
		},
	}

	cmd.Flags().String("cluster", "", "Name of the Ops Manager group")
	cmd.Flags().String("host", "", "Host name of a cluster node")
	cmd.Flags().StringP("output", "o", module.FormatJSON, "Output format: json or yaml")
	_ = cmd.MarkFlagRequired("cluster")
	return cmd
}

func init() {
	moduleCmd.AddCommand(newModuleCmd(module.CommandDeploymentStatus, "Report whether the cluster reached its goal state"))
	moduleCmd.AddCommand(newModuleCmd(module.CommandSetMaintenance, "Set a maintenance window on the cluster"))
	moduleCmd.AddCommand(newModuleCmd(module.CommandCheckSync, "Check the replica set members of the cluster"))
}
