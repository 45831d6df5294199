package schema

import (
	"fmt"
	"strings"
	"time"
)

// Task statuses.
const (
	StatusTodo  = "TODO"
	StatusDoing = "DOING"
	StatusDone  = "DONE"
)

// DefaultPriority is assigned when a task is created without one.
const DefaultPriority = "MEDIUM"

// DueSoonWindow is how far ahead of its due date a task is flagged as due soon.
const DueSoonWindow = 48 * time.Hour

// Task is the authoritative state of a task as served by the read API.
type Task struct {
	ID               int64      `json:"id"`
	ProjectID        int64      `json:"projectId"`
	Title            string     `json:"title"`
	Description      string     `json:"description,omitempty"`
	Status           string     `json:"status"`
	Priority         string     `json:"priority"`
	AssigneeID       int64      `json:"assigneeId,omitempty"`
	AssigneeUsername string     `json:"assigneeUsername,omitempty"`
	DueDate          *time.Time `json:"dueDate,omitempty"`
	DueSoon          bool       `json:"dueSoon"`
	Overdue          bool       `json:"overdue"`
	Version          int64      `json:"version"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// Validate checks user-editable task fields.
func (t *Task) Validate() error {
	if strings.TrimSpace(t.Title) == "" {
		return fmt.Errorf("title is required")
	}
	if len(t.Title) > 150 {
		return fmt.Errorf("title must be 150 characters or less (got %d)", len(t.Title))
	}
	if len(t.Description) > 1000 {
		return fmt.Errorf("description must be 1000 characters or less (got %d)", len(t.Description))
	}
	if len(t.Priority) > 20 {
		return fmt.Errorf("priority must be 20 characters or less (got %d)", len(t.Priority))
	}
	return nil
}

// ComputeDueFlags sets DueSoon and Overdue relative to now.
func (t *Task) ComputeDueFlags(now time.Time) {
	if t.DueDate == nil {
		t.DueSoon = false
		t.Overdue = false
		return
	}
	t.Overdue = t.DueDate.Before(now)
	t.DueSoon = !t.Overdue && now.Add(DueSoonWindow).After(*t.DueDate)
}

// NormalizeStatus upper-cases s and checks it against the allowed statuses.
// An empty status defaults to TODO.
func NormalizeStatus(s string) (string, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	switch s {
	case "":
		return StatusTodo, nil
	case StatusTodo, StatusDoing, StatusDone:
		return s, nil
	}
	return "", fmt.Errorf("invalid status %q. Allowed values: TODO, DOING, DONE", s)
}
