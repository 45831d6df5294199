package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/taskfeed/taskfeed/internal/api"
	"github.com/taskfeed/taskfeed/internal/db"
	"github.com/taskfeed/taskfeed/internal/logging"
	"github.com/taskfeed/taskfeed/internal/push"
	"github.com/taskfeed/taskfeed/internal/recorder"
	"github.com/taskfeed/taskfeed/internal/service"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: "server",
	Short:   "Run the API server with the change feed and push hub",
	Long: `Start the HTTP API over a local SQLite database.

Endpoints:
  /api/changes?since=N   change feed (X-USER-ID header required)
  /api/users, /api/projects, /api/tasks
  /ws                    websocket push nudges
  /health, /metrics

Example usage:
  taskfeed serve                     # Start on the configured port
  taskfeed serve --port 9000 --db ./data/taskfeed.db`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntP("port", "p", 0, "Port to listen on")
	serveCmd.Flags().String("db", "", "SQLite database path")
	serveCmd.Flags().Int("page-size", 0, "Maximum events per feed response")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	sink := logging.Open(cfg.Log)
	defer sink.Close()

	database, err := db.Open(cfg.Server.DBPath)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := database.InitSchema(); err != nil {
		return err
	}

	hub := push.NewHub(sink.Logger("push"))
	defer hub.Close()

	rec := recorder.New(database, hub, sink.Logger("recorder"))
	svc := service.New(database, rec, sink.Logger("service"))
	server := api.NewServer(&api.Config{
		Port:     cfg.Server.Port,
		PageSize: cfg.Server.PageSize,
		Push:     hub,
		Logger:   sink.Logger("api"),
	}, database, svc)

	if err := server.Start(); err != nil {
		return err
	}

	addr := server.GetAddr()
	fmt.Printf("taskfeed server started on %s\n", addr)
	fmt.Printf("Change feed: http://%s/api/changes?since=0\n", addr)
	fmt.Printf("WebSocket endpoint: ws://%s/ws\n", addr)
	fmt.Printf("Database: %s\n", database.Path())
	fmt.Println("\nPress Ctrl+C to stop...")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	<-ctx.Done()

	fmt.Println("\nShutting down server...")
	if err := server.Stop(); err != nil {
		return err
	}
	fmt.Println("Server stopped")
	return nil
}
