package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/taskfeed/taskfeed/internal/client"
	"github.com/taskfeed/taskfeed/internal/config"
	"github.com/taskfeed/taskfeed/internal/logging"
	"github.com/taskfeed/taskfeed/internal/poller"
	"github.com/taskfeed/taskfeed/internal/ui"
	"github.com/taskfeed/taskfeed/internal/view"
)

// subscribeRetry is the pause before reconnecting a dropped push socket.
const subscribeRetry = 5 * time.Second

var watchCmd = &cobra.Command{
	Use:     "watch",
	GroupID: "client",
	Short:   "Keep a live view of your projects in sync with the change feed",
	Long: `Log in as a user, load their projects and follow the change feed.

The view is reloaded once at login, then kept current by polling
/api/changes from the start of the log every poll interval. A websocket push from the server
triggers an early poll. Editing poll_interval in the config file applies
to the running watch. SIGHUP forces a full reload; --reload-every repeats
one periodically to recover from any event the server failed to record.

Example usage:
  taskfeed watch --user 1
  taskfeed watch --user 1 --project 3 --interval 5s
  taskfeed watch --user 1 --project 3 --task 12`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().Int64P("project", "p", 0, "Project whose tasks and members are shown")
	watchCmd.Flags().Int64("task", 0, "Task of --project to highlight")
	watchCmd.Flags().Duration("interval", 0, "Poll interval")
	watchCmd.Flags().Duration("request-timeout", 0, "Per-request timeout")
	watchCmd.Flags().Int("max-follow-ups", 0, "Immediate re-polls allowed after a truncated page")
	watchCmd.Flags().Bool("no-push", false, "Do not subscribe to websocket nudges")
	watchCmd.Flags().Duration("reload-every", 0, "Periodic full reload interval (0 disables)")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	c, err := requireUser()
	if err != nil {
		return err
	}
	projectID, _ := cmd.Flags().GetInt64("project")
	taskID, _ := cmd.Flags().GetInt64("task")
	if taskID != 0 && projectID == 0 {
		return errors.New("--task requires --project")
	}
	noPush, _ := cmd.Flags().GetBool("no-push")
	reloadEvery, _ := cmd.Flags().GetDuration("reload-every")

	sink := logging.Open(cfg.Log)
	defer sink.Close()
	logger := sink.Logger("watch")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	loop := view.NewLoop()
	go loop.Run(ctx)
	defer loop.Close()

	reconciler := view.NewReconciler(c, loop, view.NewCache(), sink.Logger("view"))
	p := poller.New(c, reconciler, &poller.Config{
		Interval:       cfg.Client.PollInterval,
		RequestTimeout: cfg.Client.RequestTimeout,
		MaxFollowUps:   cfg.Client.MaxFollowUps,
		Logger:         sink.Logger("poller"),
	})
	session := poller.NewSession(p, reconciler, sink.Logger("session"))

	if err := session.Login(ctx, c.UserID()); err != nil {
		return err
	}
	defer session.Logout()

	if projectID != 0 {
		if err := reconciler.ShowProject(ctx, projectID); err != nil {
			return fmt.Errorf("failed to show project %d: %w", projectID, err)
		}
	}
	if taskID != 0 && !reconciler.SelectTask(taskID) {
		return fmt.Errorf("task %d is not in project %d", taskID, projectID)
	}

	if !noPush {
		go subscribe(ctx, c, session, logger)
	}
	go reload(ctx, session, reloadEvery, logger)

	if loader.ConfigFileUsed() != "" {
		err := loader.Watch(func(updated *config.Config) {
			logger.Printf("Config reloaded, poll interval %s", updated.Client.PollInterval)
			p.SetInterval(updated.Client.PollInterval)
		}, func(err error) {
			logger.Printf("Warning: %v", err)
		})
		if err != nil {
			logger.Printf("Warning: config reload disabled: %v", err)
		}
	}

	fmt.Printf("Watching %s as user %d (Ctrl+C to stop)\n\n", c.BaseURL(), c.UserID())
	render(ctx, reconciler, p)
	return nil
}

// subscribe forwards push nudges to the session, reconnecting until ctx ends.
func subscribe(ctx context.Context, c *client.Client, session *poller.Session, logger *log.Logger) {
	for {
		err := c.Subscribe(ctx, func(client.Nudge) { session.Nudge() })
		if ctx.Err() != nil {
			return
		}
		logger.Printf("Push disconnected: %v (retrying in %s)", err, subscribeRetry)

		select {
		case <-ctx.Done():
			return
		case <-time.After(subscribeRetry):
		}
	}
}

// reload runs a full reload on SIGHUP and, if every is positive, on a
// timer. Manual reload failures are printed; periodic ones are only logged.
func reload(ctx context.Context, session *poller.Session, every time.Duration, logger *log.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	var tick <-chan time.Time
	if every > 0 {
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := session.Refresh(ctx); err != nil {
				fmt.Fprintln(os.Stderr, ui.Error(err))
			}
		case <-tick:
			if err := session.Refresh(ctx); err != nil {
				logger.Printf("Periodic %v", err)
			}
		}
	}
}

// render prints the view whenever it changes.
func render(ctx context.Context, reconciler *view.Reconciler, p *poller.Poller) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	interactive := ui.IsTerminal(os.Stdout)
	var last string
	for {
		out := ui.Snapshot(reconciler.Snapshot(), p.Cursor())
		if out != last {
			if interactive {
				fmt.Print(ui.ClearScreen)
			}
			fmt.Println(out)
			last = out
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
