package main

import (
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/cuemby/opsmgr/pkg/manager"
)

var groupsCmd = &cobra.Command{
	Use:   "groups",
	Short: "List groups with active agents and their hosts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withManager(func(m *manager.Manager) error {
			inventory, err := m.Client().GroupInventory(cmd.Context())
			if err != nil {
				return err
			}

			names := make([]string, 0, len(inventory))
			for name := range inventory {
				names = append(names, name)
			}
			sort.Strings(names)

			table := tablewriter.NewWriter(os.Stdout)
			table.SetAutoWrapText(false)
			table.SetHeader([]string{"GROUP", "HOSTS", "COUNT"})
			for _, name := range names {
				hosts := inventory[name]
				table.Append([]string{name, strings.Join(hosts, "\n"), strconv.Itoa(len(hosts))})
			}
			table.Render()
			return nil
		})
	},
}
