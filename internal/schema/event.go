package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// EventType identifies the kind of mutation recorded in the change log.
type EventType string

const (
	ProjectCreated        EventType = "PROJECT_CREATED"
	ProjectUpdated        EventType = "PROJECT_UPDATED"
	ProjectDeleted        EventType = "PROJECT_DELETED"
	ProjectMembersUpdated EventType = "PROJECT_MEMBERS_UPDATED"

	TaskCreated EventType = "TASK_CREATED"
	TaskUpdated EventType = "TASK_UPDATED"
	TaskDeleted EventType = "TASK_DELETED"
)

// ErrUnknownEventType is returned when a tag outside the closed EventType set
// is decoded.
var ErrUnknownEventType = errors.New("unknown event type")

// AllEventTypes lists every valid EventType in declaration order.
var AllEventTypes = []EventType{
	ProjectCreated,
	ProjectUpdated,
	ProjectDeleted,
	ProjectMembersUpdated,
	TaskCreated,
	TaskUpdated,
	TaskDeleted,
}

// EventKind groups event types by how a reader reacts to them.
type EventKind int

const (
	// KindUpsert events require refetching the entity and merging it by id.
	KindUpsert EventKind = iota + 1
	// KindDelete events remove the entity by id.
	KindDelete
	// KindMembers events replace a project's membership list.
	KindMembers
)

// ParseEventType converts a wire tag into an EventType.
func ParseEventType(s string) (EventType, error) {
	t := EventType(strings.TrimSpace(s))
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownEventType, s)
	}
	return t, nil
}

// Valid reports whether t belongs to the closed set.
func (t EventType) Valid() bool {
	switch t {
	case ProjectCreated, ProjectUpdated, ProjectDeleted, ProjectMembersUpdated,
		TaskCreated, TaskUpdated, TaskDeleted:
		return true
	}
	return false
}

// IsProject reports whether t describes a project-level mutation.
func (t EventType) IsProject() bool {
	switch t {
	case ProjectCreated, ProjectUpdated, ProjectDeleted, ProjectMembersUpdated:
		return true
	}
	return false
}

// IsTask reports whether t describes a task-level mutation.
func (t EventType) IsTask() bool {
	switch t {
	case TaskCreated, TaskUpdated, TaskDeleted:
		return true
	}
	return false
}

// Kind returns the reaction class for t. It returns 0 for invalid types.
func (t EventType) Kind() EventKind {
	switch t {
	case ProjectCreated, ProjectUpdated, TaskCreated, TaskUpdated:
		return KindUpsert
	case ProjectDeleted, TaskDeleted:
		return KindDelete
	case ProjectMembersUpdated:
		return KindMembers
	}
	return 0
}

func (t EventType) String() string {
	return string(t)
}

// UnmarshalJSON rejects tags outside the closed set.
func (t *EventType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("event type must be a string: %w", err)
	}
	parsed, err := ParseEventType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ChangeEvent is one immutable row of the change log.
type ChangeEvent struct {
	ID        int64     `json:"id"`
	Type      EventType `json:"type"`
	EntityID  int64     `json:"entityId"`
	ProjectID int64     `json:"projectId"`
	CreatedAt int64     `json:"createdAt"` // unix millis, informational only
}

// Validate checks that the event can be recorded or dispatched.
func (e *ChangeEvent) Validate() error {
	if !e.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownEventType, string(e.Type))
	}
	if e.EntityID <= 0 {
		return fmt.Errorf("entityId must be positive (got %d)", e.EntityID)
	}
	if e.ProjectID <= 0 {
		return fmt.Errorf("projectId must be positive (got %d)", e.ProjectID)
	}
	return nil
}

// MaxID returns the largest id in events, or floor if none is larger.
func MaxID(floor int64, events []ChangeEvent) int64 {
	highest := floor
	for _, e := range events {
		if e.ID > highest {
			highest = e.ID
		}
	}
	return highest
}
