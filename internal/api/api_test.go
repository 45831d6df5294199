package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/taskfeed/taskfeed/internal/db"
	"github.com/taskfeed/taskfeed/internal/recorder"
	"github.com/taskfeed/taskfeed/internal/schema"
	"github.com/taskfeed/taskfeed/internal/service"
)

type testEnv struct {
	db      *db.DB
	svc     *service.Service
	handler http.Handler
}

func newTestEnv(t *testing.T, pageSize int) *testEnv {
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
	srv := NewServer(&Config{PageSize: pageSize, Logger: quiet}, database, svc)
	return &testEnv{db: database, svc: svc, handler: srv.Handler()}
}

// do sends a request as userID (0 omits the identity header).
func (e *testEnv) do(t *testing.T, method, path string, userID int64, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Marshal() failed: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if userID != 0 {
		req.Header.Set(UserHeader, strconv.FormatInt(userID, 10))
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) user(t *testing.T, name string) *schema.User {
	t.Helper()
	u, err := e.svc.RegisterUser(context.Background(), name, "")
	if err != nil {
		t.Fatalf("RegisterUser(%s) failed: %v", name, err)
	}
	return u
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("Unmarshal(%q) failed: %v", rec.Body.String(), err)
	}
	return v
}

func TestChanges_Validation(t *testing.T) {
	env := newTestEnv(t, 0)

	tests := []struct {
		name   string
		path   string
		header string
	}{
		{"missing identity", "/api/changes?since=0", ""},
		{"non-numeric identity", "/api/changes?since=0", "alice"},
		{"missing since", "/api/changes", "1"},
		{"empty since", "/api/changes?since=", "1"},
		{"non-numeric since", "/api/changes?since=abc", "1"},
		{"negative since", "/api/changes?since=-1", "1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set(UserHeader, tt.header)
			}
			rec := httptest.NewRecorder()
			env.handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			if got := decode[errorResponse](t, rec); got.Error == "" {
				t.Error("error body is empty")
			}
		})
	}
}

func TestChanges_EmptyLogReturnsEmptyArray(t *testing.T) {
	env := newTestEnv(t, 0)

	rec := env.do(t, http.MethodGet, "/api/changes?since=0", 1, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Errorf("body = %s, want []", body)
	}
}

func TestChanges_ReturnsEventsAfterCursor(t *testing.T) {
	env := newTestEnv(t, 0)
	alice := env.user(t, "alice")

	for _, name := range []string{"one", "two", "three"} {
		rec := env.do(t, http.MethodPost, "/api/projects", alice.ID, projectRequest{Name: name})
		if rec.Code != http.StatusCreated {
			t.Fatalf("create %s status = %d: %s", name, rec.Code, rec.Body.String())
		}
	}

	all := decode[[]schema.ChangeEvent](t, env.do(t, http.MethodGet, "/api/changes?since=0", alice.ID, nil))
	if len(all) != 3 {
		t.Fatalf("got %d events, want 3", len(all))
	}
	for i, ev := range all {
		if ev.Type != schema.ProjectCreated {
			t.Errorf("event %d type = %s, want %s", i, ev.Type, schema.ProjectCreated)
		}
		if ev.EntityID != ev.ProjectID {
			t.Errorf("event %d entityId %d != projectId %d", i, ev.EntityID, ev.ProjectID)
		}
		if i > 0 && ev.ID <= all[i-1].ID {
			t.Errorf("ids not ascending: %d after %d", ev.ID, all[i-1].ID)
		}
	}

	path := "/api/changes?since=" + strconv.FormatInt(all[0].ID, 10)
	rest := decode[[]schema.ChangeEvent](t, env.do(t, http.MethodGet, path, alice.ID, nil))
	if len(rest) != 2 || rest[0].ID != all[1].ID {
		t.Errorf("since=%d returned %+v", all[0].ID, rest)
	}

	// Any identity is accepted; results are not filtered by membership.
	other := decode[[]schema.ChangeEvent](t, env.do(t, http.MethodGet, "/api/changes?since=0", 999, nil))
	if len(other) != 3 {
		t.Errorf("unrelated caller got %d events, want 3", len(other))
	}
}

func TestChanges_TruncationHeaders(t *testing.T) {
	env := newTestEnv(t, 3)
	ctx := context.Background()

	for i := int64(1); i <= 5; i++ {
		if _, err := env.db.AppendChangeContext(ctx, schema.TaskCreated, i, 1); err != nil {
			t.Fatalf("AppendChangeContext() failed: %v", err)
		}
	}

	first := env.do(t, http.MethodGet, "/api/changes?since=0", 1, nil)
	page := decode[[]schema.ChangeEvent](t, first)
	if len(page) != 3 {
		t.Fatalf("first page has %d events, want 3", len(page))
	}
	if got := first.Header().Get(TruncatedHeader); got != "true" {
		t.Errorf("%s = %q, want true", TruncatedHeader, got)
	}
	next := first.Header().Get(NextCursorHeader)
	if next != strconv.FormatInt(page[2].ID, 10) {
		t.Errorf("%s = %q, want %d", NextCursorHeader, next, page[2].ID)
	}

	second := env.do(t, http.MethodGet, "/api/changes?since="+next, 1, nil)
	page = decode[[]schema.ChangeEvent](t, second)
	if len(page) != 2 {
		t.Fatalf("second page has %d events, want 2", len(page))
	}
	if got := second.Header().Get(TruncatedHeader); got != "" {
		t.Errorf("second page %s = %q, want unset", TruncatedHeader, got)
	}
}

func TestChanges_ExactPageIsNotTruncated(t *testing.T) {
	env := newTestEnv(t, 2)
	ctx := context.Background()

	for i := int64(1); i <= 2; i++ {
		if _, err := env.db.AppendChangeContext(ctx, schema.ProjectCreated, i, i); err != nil {
			t.Fatalf("AppendChangeContext() failed: %v", err)
		}
	}

	rec := env.do(t, http.MethodGet, "/api/changes?since=0", 1, nil)
	if got := rec.Header().Get(TruncatedHeader); got != "" {
		t.Errorf("%s = %q, want unset", TruncatedHeader, got)
	}
}

func TestResourceRoutes_StatusCodes(t *testing.T) {
	env := newTestEnv(t, 0)
	alice := env.user(t, "alice")
	bob := env.user(t, "bob")

	created := env.do(t, http.MethodPost, "/api/projects", alice.ID, projectRequest{Name: "Launch"})
	if created.Code != http.StatusCreated {
		t.Fatalf("create project status = %d: %s", created.Code, created.Body.String())
	}
	p := decode[schema.Project](t, created)
	projectPath := "/api/projects/" + strconv.FormatInt(p.ID, 10)

	taskRec := env.do(t, http.MethodPost, projectPath+"/tasks", alice.ID, map[string]any{"title": "Ship it"})
	if taskRec.Code != http.StatusCreated {
		t.Fatalf("create task status = %d: %s", taskRec.Code, taskRec.Body.String())
	}
	task := decode[schema.Task](t, taskRec)
	taskPath := "/api/tasks/" + strconv.FormatInt(task.ID, 10)

	tests := []struct {
		name   string
		method string
		path   string
		userID int64
		body   any
		want   int
	}{
		{"get project as owner", http.MethodGet, projectPath, alice.ID, nil, http.StatusOK},
		{"get project as outsider", http.MethodGet, projectPath, bob.ID, nil, http.StatusForbidden},
		{"get missing project", http.MethodGet, "/api/projects/9999", alice.ID, nil, http.StatusNotFound},
		{"bad project id", http.MethodGet, "/api/projects/abc", alice.ID, nil, http.StatusBadRequest},
		{"missing identity", http.MethodGet, projectPath, 0, nil, http.StatusBadRequest},
		{"rename as outsider", http.MethodPut, projectPath, bob.ID, projectRequest{Name: "x"}, http.StatusForbidden},
		{"rename empty", http.MethodPut, projectPath, alice.ID, projectRequest{Name: ""}, http.StatusBadRequest},
		{"unknown body field", http.MethodPost, "/api/projects", alice.ID, map[string]any{"title": "x"}, http.StatusBadRequest},
		{"add member", http.MethodPost, projectPath + "/members", alice.ID, addMemberRequest{UsernameOrEmail: "bob"}, http.StatusCreated},
		{"list members as member", http.MethodGet, projectPath + "/members", bob.ID, nil, http.StatusOK},
		{"remove owner", http.MethodDelete, projectPath + "/members/" + strconv.FormatInt(alice.ID, 10), alice.ID, nil, http.StatusBadRequest},
		{"update task", http.MethodPatch, taskPath, bob.ID, map[string]any{"status": "DONE"}, http.StatusOK},
		{"update task bad status", http.MethodPatch, taskPath, bob.ID, map[string]any{"status": "LATER"}, http.StatusBadRequest},
		{"list tasks filtered", http.MethodGet, projectPath + "/tasks?status=done", bob.ID, nil, http.StatusOK},
		{"delete task", http.MethodDelete, taskPath, bob.ID, nil, http.StatusNoContent},
		{"get deleted task", http.MethodGet, taskPath, bob.ID, nil, http.StatusNotFound},
		{"delete project as member", http.MethodDelete, projectPath, bob.ID, nil, http.StatusForbidden},
		{"delete project", http.MethodDelete, projectPath, alice.ID, nil, http.StatusNoContent},
		{"get deleted project", http.MethodGet, projectPath, alice.ID, nil, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, tt.method, tt.path, tt.userID, tt.body)
			if rec.Code != tt.want {
				t.Errorf("%s %s status = %d, want %d: %s", tt.method, tt.path, rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestUsers_RegisterAndList(t *testing.T) {
	env := newTestEnv(t, 0)

	rec := env.do(t, http.MethodPost, "/api/users", 0, createUserRequest{Username: "carol", Email: "carol@example.com"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d: %s", rec.Code, rec.Body.String())
	}
	rec = env.do(t, http.MethodPost, "/api/users", 0, createUserRequest{Username: "carol"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("duplicate register status = %d, want 400", rec.Code)
	}

	users := decode[[]schema.User](t, env.do(t, http.MethodGet, "/api/users", 0, nil))
	if len(users) != 1 || users[0].Username != "carol" {
		t.Errorf("users = %+v", users)
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, 0)
	if _, err := env.db.AppendChangeContext(context.Background(), schema.ProjectCreated, 1, 1); err != nil {
		t.Fatalf("AppendChangeContext() failed: %v", err)
	}

	rec := env.do(t, http.MethodGet, "/health", 0, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decode[map[string]any](t, rec)
	if body["status"] != "ok" {
		t.Errorf("status = %v, want ok", body["status"])
	}
	if body["latestChangeId"] != float64(1) {
		t.Errorf("latestChangeId = %v, want 1", body["latestChangeId"])
	}
}
