package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/taskfeed/taskfeed/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "client",
	Short:   "Show server health and the change feed head",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newClient()
		health, err := c.Health(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Println(ui.Status(c.BaseURL(), health.Status, health.Clients, health.LatestChangeID))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
