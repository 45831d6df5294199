package ui

import (
	"errors"
	"strings"
	"testing"

	"github.com/taskfeed/taskfeed/internal/schema"
	"github.com/taskfeed/taskfeed/internal/view"
)

func TestEvent(t *testing.T) {
	if out := Event(schema.ChangeEvent{ID: 1, Type: schema.ProjectMembersUpdated}); !strings.Contains(out, "project") {
		t.Errorf("Event() = %q, missing project scope", out)
	}
	out := Event(schema.ChangeEvent{ID: 42, Type: schema.TaskDeleted, EntityID: 7, ProjectID: 3, CreatedAt: 0})
	for _, want := range []string{"42", "task", "TASK_DELETED", "entity=7", "project=3", "1970-01-01T00:00:00Z"} {
		if !strings.Contains(out, want) {
			t.Errorf("Event() = %q, missing %q", out, want)
		}
	}
}

func TestSnapshot(t *testing.T) {
	tests := []struct {
		name    string
		snap    view.Snapshot
		want    []string
		notWant []string
	}{
		{
			name:    "empty",
			snap:    view.Snapshot{},
			want:    []string{"Projects", "none"},
			notWant: []string{"Tasks"},
		},
		{
			name: "displayed project",
			snap: view.Snapshot{
				Projects:         []schema.Project{{ID: 1, Name: "Launch", Version: 2}},
				DisplayedProject: 1,
				Tasks: []schema.Task{
					{ID: 5, Title: "Ship", Status: schema.StatusDoing, Priority: "HIGH", Overdue: true},
				},
				SelectedTaskID: 5,
				Members: []schema.Member{{Username: "alice"}, {Username: "bob"}},
			},
			want: []string{"> 1", "Launch", "v2", "Tasks", "> 5", "Ship", "DOING", "overdue", "alice, bob"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Snapshot(tt.snap, 9)
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("Snapshot() missing %q:\n%s", w, out)
				}
			}
			for _, w := range tt.notWant {
				if strings.Contains(out, w) {
					t.Errorf("Snapshot() unexpectedly contains %q:\n%s", w, out)
				}
			}
		})
	}
}

func TestStatusAndError(t *testing.T) {
	out := Status("http://localhost:8080", "ok", 3, 17)
	for _, want := range []string{"http://localhost:8080", "ok", "3", "17"} {
		if !strings.Contains(out, want) {
			t.Errorf("Status() missing %q:\n%s", want, out)
		}
	}
	if got := Error(errors.New("boom")); !strings.Contains(got, "boom") {
		t.Errorf("Error() = %q", got)
	}
}
