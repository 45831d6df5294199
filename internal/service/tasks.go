package service

import (
	"context"
	"time"

	"github.com/taskfeed/taskfeed/internal/db"
	"github.com/taskfeed/taskfeed/internal/schema"
)

// TaskInput holds the fields for creating a task.
type TaskInput struct {
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      string     `json:"status,omitempty"`
	Priority    string     `json:"priority,omitempty"`
	AssigneeID  int64      `json:"assigneeId,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
}

// TaskPatch holds a partial task update. Nil fields are left unchanged.
// An AssigneeID of 0 unassigns the task.
type TaskPatch struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Status      *string    `json:"status,omitempty"`
	Priority    *string    `json:"priority,omitempty"`
	AssigneeID  *int64     `json:"assigneeId,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
}

// CreateTask adds a task to a project the caller is a member of.
func (s *Service) CreateTask(ctx context.Context, userID, projectID int64, in TaskInput) (*schema.Task, error) {
	if _, err := s.db.GetProject(ctx, projectID); err != nil {
		return nil, translate(err, "project")
	}
	if _, err := s.requireMembership(ctx, projectID, userID); err != nil {
		return nil, err
	}

	status, err := schema.NormalizeStatus(in.Status)
	if err != nil {
		return nil, invalid("%v", err)
	}
	check := schema.Task{Title: in.Title, Description: in.Description, Priority: in.Priority}
	if err := check.Validate(); err != nil {
		return nil, invalid("%v", err)
	}
	if in.AssigneeID != 0 {
		if err := s.requireAssignee(ctx, projectID, in.AssigneeID); err != nil {
			return nil, err
		}
	}

	t, err := s.db.CreateTask(ctx, db.NewTask{
		ProjectID:   projectID,
		Title:       in.Title,
		Description: in.Description,
		Status:      status,
		Priority:    in.Priority,
		AssigneeID:  in.AssigneeID,
		DueDate:     in.DueDate,
	})
	if err != nil {
		return nil, err
	}

	s.recorder.Record(ctx, schema.TaskCreated, t.ID, projectID)
	return t, nil
}

// ListTasks returns a project's tasks to one of its members.
func (s *Service) ListTasks(ctx context.Context, userID, projectID int64, filter db.ListTasksFilter) ([]*schema.Task, error) {
	if _, err := s.db.GetProject(ctx, projectID); err != nil {
		return nil, translate(err, "project")
	}
	if _, err := s.requireMembership(ctx, projectID, userID); err != nil {
		return nil, err
	}
	if filter.Status != "" {
		status, err := schema.NormalizeStatus(filter.Status)
		if err != nil {
			return nil, invalid("%v", err)
		}
		filter.Status = status
	}
	return s.db.ListTasks(ctx, projectID, filter)
}

// GetTask returns a task whose project the caller is a member of.
func (s *Service) GetTask(ctx context.Context, userID, taskID int64) (*schema.Task, error) {
	t, err := s.db.GetTask(ctx, taskID)
	if err != nil {
		return nil, translate(err, "task")
	}
	if _, err := s.requireMembership(ctx, t.ProjectID, userID); err != nil {
		return nil, err
	}
	return t, nil
}

// UpdateTask applies a partial update to a task.
func (s *Service) UpdateTask(ctx context.Context, userID, taskID int64, patch TaskPatch) (*schema.Task, error) {
	current, err := s.GetTask(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}

	update := db.TaskUpdate{
		Title:       patch.Title,
		Description: patch.Description,
		Priority:    patch.Priority,
		AssigneeID:  patch.AssigneeID,
		DueDate:     patch.DueDate,
	}
	if patch.Status != nil {
		status, err := schema.NormalizeStatus(*patch.Status)
		if err != nil {
			return nil, invalid("%v", err)
		}
		update.Status = &status
	}

	check := *current
	if patch.Title != nil {
		check.Title = *patch.Title
	}
	if patch.Description != nil {
		check.Description = *patch.Description
	}
	if patch.Priority != nil {
		check.Priority = *patch.Priority
	}
	if err := check.Validate(); err != nil {
		return nil, invalid("%v", err)
	}
	if patch.AssigneeID != nil && *patch.AssigneeID != 0 {
		if err := s.requireAssignee(ctx, current.ProjectID, *patch.AssigneeID); err != nil {
			return nil, err
		}
	}

	t, err := s.db.UpdateTask(ctx, taskID, update)
	if err != nil {
		return nil, translate(err, "task")
	}

	s.recorder.Record(ctx, schema.TaskUpdated, taskID, t.ProjectID)
	return t, nil
}

// DeleteTask removes a task.
func (s *Service) DeleteTask(ctx context.Context, userID, taskID int64) error {
	current, err := s.GetTask(ctx, userID, taskID)
	if err != nil {
		return err
	}
	if err := s.db.DeleteTask(ctx, taskID); err != nil {
		return translate(err, "task")
	}

	s.recorder.Record(ctx, schema.TaskDeleted, taskID, current.ProjectID)
	return nil
}

// requireAssignee checks that the assignee belongs to the project.
func (s *Service) requireAssignee(ctx context.Context, projectID, assigneeID int64) error {
	if _, err := s.db.GetMembership(ctx, projectID, assigneeID); err != nil {
		return invalid("assignee must be a project member")
	}
	return nil
}
