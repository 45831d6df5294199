package poller

import (
	"context"
	"io"
	"log"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/taskfeed/taskfeed/internal/api"
	"github.com/taskfeed/taskfeed/internal/client"
	"github.com/taskfeed/taskfeed/internal/db"
	"github.com/taskfeed/taskfeed/internal/recorder"
	"github.com/taskfeed/taskfeed/internal/schema"
	"github.com/taskfeed/taskfeed/internal/service"
	"github.com/taskfeed/taskfeed/internal/view"
)

// stack is one client-side session against a running server.
type stack struct {
	client     *client.Client
	poller     *Poller
	reconciler *view.Reconciler
	session    *Session
}

// newServer runs the API over a temp database and returns an anonymous
// client for it.
func newServer(t *testing.T) *client.Client {
	t.Helper()

	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := database.InitSchema(); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}

	quiet := log.New(io.Discard, "", 0)
	svc := service.New(database, recorder.New(database, nil, quiet), quiet)
	srv := httptest.NewServer(api.NewServer(&api.Config{Logger: quiet}, database, svc).Handler())
	t.Cleanup(srv.Close)

	return client.New(client.Config{BaseURL: srv.URL, Timeout: 5 * time.Second})
}

// register creates a user and returns a client acting as them.
func register(t *testing.T, anon *client.Client, name string) *client.Client {
	t.Helper()
	u, err := anon.RegisterUser(context.Background(), name, "")
	if err != nil {
		t.Fatalf("RegisterUser(%s) failed: %v", name, err)
	}
	return anon.WithUser(u.ID)
}

// newStack wires a view loop, reconciler, poller and session for c.
func newStack(t *testing.T, c *client.Client) *stack {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	loop := view.NewLoop()
	go loop.Run(ctx)

	quiet := log.New(io.Discard, "", 0)
	r := view.NewReconciler(c, loop, view.NewCache(), quiet)
	p := New(c, r, testConfig())
	t.Cleanup(p.Stop)

	return &stack{
		client:     c,
		poller:     p,
		reconciler: r,
		session:    NewSession(p, r, quiet),
	}
}

// pollAndSettle runs one poll and waits for its refetches to land.
func (s *stack) pollAndSettle() {
	s.poller.PollNow()
	s.poller.Wait()
	s.reconciler.Wait()
}

func TestProjectCreatedReachesCache(t *testing.T) {
	ctx := context.Background()
	alice := register(t, newServer(t), "alice")
	s := newStack(t, alice)
	if err := s.session.Login(ctx, alice.UserID()); err != nil {
		t.Fatalf("Login() failed: %v", err)
	}

	p1, err := alice.CreateProject(ctx, "P1", "")
	if err != nil {
		t.Fatalf("CreateProject() failed: %v", err)
	}
	page, err := alice.ListChanges(ctx, 0)
	if err != nil {
		t.Fatalf("ListChanges() failed: %v", err)
	}
	e1 := page.Events[len(page.Events)-1]
	if e1.Type != schema.ProjectCreated || e1.EntityID != p1.ID {
		t.Fatalf("latest event = %+v", e1)
	}

	s.pollAndSettle()

	snap := s.reconciler.Snapshot()
	if len(snap.Projects) != 1 || snap.Projects[0].ID != p1.ID {
		t.Errorf("projects = %+v, want [P1]", snap.Projects)
	}
	if got := s.poller.Cursor(); got != e1.ID {
		t.Errorf("Cursor() = %d, want %d", got, e1.ID)
	}
}

func TestSession_TaskScopingAndLogout(t *testing.T) {
	ctx := context.Background()
	alice := register(t, newServer(t), "alice")
	s := newStack(t, alice)

	shown, err := alice.CreateProject(ctx, "Shown", "")
	if err != nil {
		t.Fatalf("CreateProject() failed: %v", err)
	}
	hidden, err := alice.CreateProject(ctx, "Hidden", "")
	if err != nil {
		t.Fatalf("CreateProject() failed: %v", err)
	}

	if err := s.session.Login(ctx, alice.UserID()); err != nil {
		t.Fatalf("Login() failed: %v", err)
	}
	if err := s.reconciler.ShowProject(ctx, shown.ID); err != nil {
		t.Fatalf("ShowProject() failed: %v", err)
	}
	s.pollAndSettle()

	visible, err := alice.CreateTask(ctx, shown.ID, client.TaskInput{Title: "visible"})
	if err != nil {
		t.Fatalf("CreateTask() failed: %v", err)
	}
	if _, err := alice.CreateTask(ctx, hidden.ID, client.TaskInput{Title: "background"}); err != nil {
		t.Fatalf("CreateTask() failed: %v", err)
	}
	doing := "DOING"
	if _, err := alice.UpdateTask(ctx, visible.ID, client.TaskPatch{Status: &doing}); err != nil {
		t.Fatalf("UpdateTask() failed: %v", err)
	}
	s.pollAndSettle()

	snap := s.reconciler.Snapshot()
	if len(snap.Tasks) != 1 || snap.Tasks[0].ID != visible.ID {
		t.Fatalf("tasks = %+v, want only the displayed project's task", snap.Tasks)
	}
	if snap.Tasks[0].Status != schema.StatusDoing {
		t.Errorf("status = %s, want DOING", snap.Tasks[0].Status)
	}

	if err := alice.DeleteProject(ctx, shown.ID); err != nil {
		t.Fatalf("DeleteProject() failed: %v", err)
	}
	s.pollAndSettle()
	snap = s.reconciler.Snapshot()
	if snap.DisplayedProject != 0 || len(snap.Tasks) != 0 || len(snap.Projects) != 1 {
		t.Errorf("after delete: %+v", snap)
	}

	s.session.Logout()
	if got := s.poller.State(); got != Stopped {
		t.Errorf("State() = %s, want STOPPED", got)
	}
	if snap := s.reconciler.Snapshot(); len(snap.Projects) != 0 {
		t.Errorf("projects after logout = %+v, want empty", snap.Projects)
	}
}

func TestSession_LoginStartsAtZero(t *testing.T) {
	ctx := context.Background()
	alice := register(t, newServer(t), "alice")

	existing, err := alice.CreateProject(ctx, "Existing", "")
	if err != nil {
		t.Fatalf("CreateProject() failed: %v", err)
	}
	if _, err := alice.UpdateProject(ctx, existing.ID, "Renamed", ""); err != nil {
		t.Fatalf("UpdateProject() failed: %v", err)
	}

	s := newStack(t, alice)
	if err := s.session.Login(ctx, alice.UserID()); err != nil {
		t.Fatalf("Login() failed: %v", err)
	}
	if got := s.poller.Cursor(); got != 0 {
		t.Errorf("Cursor() after login = %d, want 0", got)
	}

	s.pollAndSettle()

	page, err := alice.ListChanges(ctx, 0)
	if err != nil {
		t.Fatalf("ListChanges() failed: %v", err)
	}
	if got, want := s.poller.Cursor(), page.MaxID(0); got != want {
		t.Errorf("Cursor() = %d, want max event id %d", got, want)
	}
	snap := s.reconciler.Snapshot()
	if len(snap.Projects) != 1 || snap.Projects[0].Name != "Renamed" {
		t.Errorf("projects = %+v, want [Renamed]", snap.Projects)
	}
}
