package main

import (
	"bytes"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/taskfeed/taskfeed/internal/client"
	"github.com/taskfeed/taskfeed/internal/schema"
)

func testPages() []*client.Page {
	return []*client.Page{
		{
			Events: []schema.ChangeEvent{
				{ID: 1, Type: schema.ProjectCreated, EntityID: 10, ProjectID: 10},
				{ID: 2, Type: schema.TaskCreated, EntityID: 20, ProjectID: 10},
			},
			Truncated:  true,
			NextCursor: 2,
		},
		{
			Events:  []schema.ChangeEvent{{ID: 4, Type: schema.TaskDeleted, EntityID: 20, ProjectID: 10}},
			Skipped: []client.SkippedEvent{{ID: 3, Type: "COMMENT_ADDED"}},
		},
	}
}

func TestPrintChanges(t *testing.T) {
	tests := []struct {
		format string
		want   []string
	}{
		{format: "text", want: []string{"PROJECT_CREATED", "TASK_DELETED", "1 events of unknown type skipped"}},
		{format: "json", want: []string{`"id": 1`, `"type": "TASK_CREATED"`, `"entityId": 20`}},
		{format: "yaml", want: []string{"- id: 1", "type: TASK_DELETED", "project_id: 10"}},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			if err := printChanges(&buf, testPages(), tt.format); err != nil {
				t.Fatalf("printChanges() failed: %v", err)
			}
			for _, w := range tt.want {
				if !strings.Contains(buf.String(), w) {
					t.Errorf("output missing %q:\n%s", w, buf.String())
				}
			}
		})
	}
}

func TestPrintChanges_YAMLRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := printChanges(&buf, testPages(), "yaml"); err != nil {
		t.Fatalf("printChanges() failed: %v", err)
	}

	var records []changeRecord
	if err := yaml.Unmarshal(buf.Bytes(), &records); err != nil {
		t.Fatalf("yaml.Unmarshal() failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3 (skipped entries excluded)", len(records))
	}
	if records[2].ID != 4 || records[2].Type != "TASK_DELETED" {
		t.Errorf("last record = %+v", records[2])
	}
}

func TestPrintChanges_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := printChanges(&buf, []*client.Page{{}}, "json"); err != nil {
		t.Fatalf("printChanges() failed: %v", err)
	}
	if got := strings.TrimSpace(buf.String()); got != "[]" {
		t.Errorf("empty json output = %q, want []", got)
	}
}
