package main

import (
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/cuemby/opsmgr/pkg/storage"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List the workflow runs recorded in the local journal",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.StateDir == "" {
			return fmt.Errorf("no journal: --state-dir is empty")
		}

		store, err := storage.NewBoltStore(cfg.StateDir)
		if err != nil {
			return err
		}
		defer store.Close()

		runs, err := store.ListRuns()
		if err != nil {
			return err
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.SetAutoWrapText(false)
		table.SetHeader([]string{"STARTED", "WORKFLOW", "GROUP", "TARGET", "RESULT", "DURATION", "ERROR"})
		for _, run := range runs {
			target := run.Host
			if run.Version != "" {
				target = run.Version
			}
			table.Append([]string{
				run.StartedAt.Local().Format(time.DateTime),
				run.Workflow,
				run.GroupID,
				target,
				run.Result,
				run.FinishedAt.Sub(run.StartedAt).Round(time.Second).String(),
				run.Error,
			})
		}
		table.Render()
		return nil
	},
}
