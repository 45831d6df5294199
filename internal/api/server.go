// Package api serves the change feed and the tracker's read/write API over
// HTTP.
//
// Every /api route requires the numeric X-USER-ID identity header. The
// change feed validates the header's presence and format only; it does not
// filter events by the caller's project memberships.
package api

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/taskfeed/taskfeed/internal/metrics"
	"github.com/taskfeed/taskfeed/internal/schema"
	"github.com/taskfeed/taskfeed/internal/service"
)

// ChangeStore is the change log read used by the feed.
type ChangeStore interface {
	ListChangesSinceContext(ctx context.Context, since int64, limit int) ([]schema.ChangeEvent, error)
	LatestChangeID(ctx context.Context) (int64, error)
}

// Server serves the HTTP API.
type Server struct {
	addr     string
	listener net.Listener
	server   *http.Server

	changes  ChangeStore
	svc      *service.Service
	push     http.Handler
	pageSize int

	clients func() int

	wg     sync.WaitGroup
	logger *log.Logger
}

// Config holds server configuration
type Config struct {
	// Port to listen on (default: 8080, 0 picks a free port)
	Port int

	// PageSize caps events per feed response (default: 200)
	PageSize int

	// Push, when set, serves websocket subscriptions at /ws
	Push PushHandler

	// Logger for server activity (default: stderr logger)
	Logger *log.Logger
}

// PushHandler is the websocket hub mounted at /ws.
type PushHandler interface {
	http.Handler
	ClientCount() int
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Port:     8080,
		PageSize: 200,
		Logger:   log.Default(),
	}
}

// NewServer creates a server backed by changes and svc.
func NewServer(config *Config, changes ChangeStore, svc *service.Service) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.Default()
	}
	if config.PageSize <= 0 {
		config.PageSize = 200
	}

	s := &Server{
		addr:     fmt.Sprintf(":%d", config.Port),
		changes:  changes,
		svc:      svc,
		pageSize: config.PageSize,
		clients:  func() int { return 0 },
		logger:   config.Logger,
	}
	if config.Push != nil {
		s.push = config.Push
		s.clients = config.Push.ClientCount
	}
	return s
}

// Handler returns the route table. Exposed so tests can mount it on an
// httptest server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/changes", s.handleChanges)

	mux.HandleFunc("POST /api/users", s.handleCreateUser)
	mux.HandleFunc("GET /api/users", s.handleListUsers)

	mux.HandleFunc("POST /api/projects", s.withUser(s.handleCreateProject))
	mux.HandleFunc("GET /api/projects", s.withUser(s.handleListProjects))
	mux.HandleFunc("GET /api/projects/{id}", s.withUser(s.handleGetProject))
	mux.HandleFunc("PUT /api/projects/{id}", s.withUser(s.handleUpdateProject))
	mux.HandleFunc("DELETE /api/projects/{id}", s.withUser(s.handleDeleteProject))

	mux.HandleFunc("GET /api/projects/{id}/members", s.withUser(s.handleListMembers))
	mux.HandleFunc("POST /api/projects/{id}/members", s.withUser(s.handleAddMember))
	mux.HandleFunc("DELETE /api/projects/{id}/members/{userId}", s.withUser(s.handleRemoveMember))

	mux.HandleFunc("GET /api/projects/{id}/tasks", s.withUser(s.handleListTasks))
	mux.HandleFunc("POST /api/projects/{id}/tasks", s.withUser(s.handleCreateTask))
	mux.HandleFunc("GET /api/tasks/{id}", s.withUser(s.handleGetTask))
	mux.HandleFunc("PATCH /api/tasks/{id}", s.withUser(s.handleUpdateTask))
	mux.HandleFunc("DELETE /api/tasks/{id}", s.withUser(s.handleDeleteTask))

	if s.push != nil {
		mux.Handle("GET /ws", s.push)
	}
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler())

	return mux
}

// Start begins serving in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:     s.Handler(),
		ReadTimeout: 10 * time.Second,
		// No WriteTimeout: it would cut long-lived /ws subscriptions.
		IdleTimeout: 60 * time.Second,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Printf("API server listening on %s", s.GetAddr())
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("Server error: %v", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the server
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}
	s.logger.Println("Stopping API server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	s.wg.Wait()

	s.logger.Println("API server stopped")
	return nil
}

// GetAddr returns the server's listening address
func (s *Server) GetAddr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	latest, err := s.changes.LatestChangeID(r.Context())
	if err != nil {
		s.logger.Printf("Health check failed: %v", err)
		writeError(w, http.StatusServiceUnavailable, "change log unavailable")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"clients":        s.clients(),
		"latestChangeId": latest,
	})
}
