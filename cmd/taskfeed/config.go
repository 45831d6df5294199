package main

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/taskfeed/taskfeed/internal/config"
	"github.com/taskfeed/taskfeed/internal/ui"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "maint",
	Short:   "Manage taskfeed configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file holding the defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("path")
		force, _ := cmd.Flags().GetBool("force")
		if err := config.WriteDefault(path, force); err != nil {
			return err
		}
		fmt.Printf("%s Wrote %s\n", ui.Styles.OK.Render("✓"), path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		if used := loader.ConfigFileUsed(); used != "" {
			fmt.Println(ui.Styles.Muted.Render("# from " + used))
		} else {
			fmt.Println(ui.Styles.Muted.Render("# no config file, defaults and environment only"))
		}
		return toml.NewEncoder(os.Stdout).Encode(loader.Settings())
	},
}

func init() {
	configInitCmd.Flags().String("path", config.FileName+".toml", "File to write")
	configInitCmd.Flags().Bool("force", false, "Overwrite an existing file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
