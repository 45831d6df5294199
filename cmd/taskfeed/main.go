// Command taskfeed runs the task tracker server and its change feed clients.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/taskfeed/taskfeed/internal/config"
	"github.com/taskfeed/taskfeed/internal/ui"
)

// Version is set at build time.
var Version = "dev"

var (
	configFile string
	loader     *config.Loader
	cfg        *config.Config
)

// flagKeys maps command flags onto config keys so flags override the file
// and environment.
var flagKeys = map[string]string{
	"port":            "server.port",
	"db":              "server.db_path",
	"page-size":       "server.page_size",
	"url":             "client.url",
	"user":            "client.user_id",
	"interval":        "client.poll_interval",
	"request-timeout": "client.request_timeout",
	"max-follow-ups":  "client.max_follow_ups",
	"log-file":        "log.file",
}

var rootCmd = &cobra.Command{
	Use:   "taskfeed",
	Short: "Multi-user task tracker with an incremental change feed",
	Long: `taskfeed serves a project and task tracker over HTTP and records every
mutation in an append-only change log. Clients poll GET /api/changes?since=N
to keep their views current, optionally nudged by a websocket push.

Configuration is read from taskfeed.toml (working directory or
$HOME/.taskfeed), TASKFEED_* environment variables and flags, in
increasing order of precedence.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		ui.ConfigureOutput(os.Stdout)
		loader = config.NewLoader(configFile)
		if err := bindFlags(cmd.Flags()); err != nil {
			return err
		}
		loaded, err := loader.Load()
		if err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
}

// bindFlags binds every known flag defined on the running command.
func bindFlags(flags *pflag.FlagSet) error {
	var bindErr error
	flags.VisitAll(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok || bindErr != nil {
			return
		}
		if err := loader.Viper().BindPFlag(key, f); err != nil {
			bindErr = fmt.Errorf("failed to bind --%s: %w", f.Name, err)
		}
	})
	return bindErr
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "server", Title: "Server Commands:"},
		&cobra.Group{ID: "client", Title: "Client Commands:"},
		&cobra.Group{ID: "maint", Title: "Maintenance Commands:"},
	)

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Config file (default: ./taskfeed.toml or ~/.taskfeed/taskfeed.toml)")
	rootCmd.PersistentFlags().String("url", "", "Server URL")
	rootCmd.PersistentFlags().Int64P("user", "u", 0, "Acting user id")
	rootCmd.PersistentFlags().String("log-file", "", "Write logs to a rotating file instead of stderr")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ui.Error(err))
		os.Exit(1)
	}
}
