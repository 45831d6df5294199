package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/taskfeed/taskfeed/internal/schema"
)

const taskColumns = `
	t.id, t.project_id, t.title, t.description, t.status, t.priority,
	t.assignee_id, u.username, t.due_date, t.version, t.created_at, t.updated_at`

// NewTask holds the fields of a task to be created.
type NewTask struct {
	ProjectID   int64
	Title       string
	Description string
	Status      string
	Priority    string
	AssigneeID  int64 // 0 = unassigned
	DueDate     *time.Time
}

// TaskUpdate is a partial task update. Nil fields are left unchanged.
type TaskUpdate struct {
	Title       *string
	Description *string
	Status      *string
	Priority    *string
	AssigneeID  *int64
	DueDate     *time.Time
}

// ListTasksFilter configures the ListTasks query.
type ListTasksFilter struct {
	// Status filters by exact status (empty = all statuses)
	Status string
	// AssigneeID filters by assignee (0 = all assignees)
	AssigneeID int64
}

// CreateTask inserts a task and returns it with its assigned id.
func (db *DB) CreateTask(ctx context.Context, nt NewTask) (*schema.Task, error) {
	if nt.Priority == "" {
		nt.Priority = schema.DefaultPriority
	}
	t := &schema.Task{Title: nt.Title, Description: nt.Description, Priority: nt.Priority}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("invalid task: %w", err)
	}

	now := formatTime(db.now())
	res, err := db.conn.ExecContext(ctx, `
		INSERT INTO tasks (
			project_id, title, description, status, priority,
			assignee_id, due_date, version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		nt.ProjectID,
		nt.Title,
		nt.Description,
		nt.Status,
		nt.Priority,
		sql.NullInt64{Int64: nt.AssigneeID, Valid: nt.AssigneeID != 0},
		timeToNullString(nt.DueDate),
		now,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read task id: %w", err)
	}

	return db.GetTask(ctx, id)
}

// GetTask returns the task with the given id.
func (db *DB) GetTask(ctx context.Context, id int64) (*schema.Task, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT `+taskColumns+`
		FROM tasks t
		LEFT JOIN users u ON u.id = t.assignee_id
		WHERE t.id = ?`, id)

	t, err := db.scanTask(row)
	if err != nil {
		return nil, notFound(err, "task", id)
	}
	return t, nil
}

// ListTasks returns the tasks of a project matching filter, ordered by id.
func (db *DB) ListTasks(ctx context.Context, projectID int64, filter ListTasksFilter) ([]*schema.Task, error) {
	conditions := []string{"t.project_id = ?"}
	args := []any{projectID}

	if filter.Status != "" {
		conditions = append(conditions, "t.status = ?")
		args = append(args, filter.Status)
	}
	if filter.AssigneeID != 0 {
		conditions = append(conditions, "t.assignee_id = ?")
		args = append(args, filter.AssigneeID)
	}

	query := `
		SELECT ` + taskColumns + `
		FROM tasks t
		LEFT JOIN users u ON u.id = t.assignee_id
		WHERE ` + strings.Join(conditions, " AND ") + `
		ORDER BY t.id ASC`

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]*schema.Task, 0)
	for rows.Next() {
		t, err := db.scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}
	return tasks, nil
}

// UpdateTask applies a partial update and bumps the task's version.
// An empty update still bumps the version, matching a save of unchanged data.
func (db *DB) UpdateTask(ctx context.Context, id int64, u TaskUpdate) (*schema.Task, error) {
	sets := []string{"version = version + 1", "updated_at = ?"}
	args := []any{formatTime(db.now())}

	if u.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *u.Title)
	}
	if u.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *u.Description)
	}
	if u.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, *u.Status)
	}
	if u.Priority != nil {
		sets = append(sets, "priority = ?")
		args = append(args, *u.Priority)
	}
	if u.AssigneeID != nil {
		sets = append(sets, "assignee_id = ?")
		args = append(args, sql.NullInt64{Int64: *u.AssigneeID, Valid: *u.AssigneeID != 0})
	}
	if u.DueDate != nil {
		sets = append(sets, "due_date = ?")
		args = append(args, timeToNullString(u.DueDate))
	}

	args = append(args, id)
	res, err := db.conn.ExecContext(ctx,
		`UPDATE tasks SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update task %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("task %d: %w", id, ErrNotFound)
	}

	return db.GetTask(ctx, id)
}

// DeleteTask removes a task.
func (db *DB) DeleteTask(ctx context.Context, id int64) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete task %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("task %d: %w", id, ErrNotFound)
	}
	return nil
}

// GetTaskCount returns the total number of tasks in the database.
func (db *DB) GetTaskCount(ctx context.Context) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM tasks").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get task count: %w", err)
	}
	return count, nil
}

// GetProjectCount returns the total number of projects in the database.
func (db *DB) GetProjectCount(ctx context.Context) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM projects").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get project count: %w", err)
	}
	return count, nil
}

func (db *DB) scanTask(s scanner) (*schema.Task, error) {
	var t schema.Task
	var assigneeID sql.NullInt64
	var assignee, dueDate sql.NullString
	var createdAt, updatedAt string

	err := s.Scan(
		&t.ID,
		&t.ProjectID,
		&t.Title,
		&t.Description,
		&t.Status,
		&t.Priority,
		&assigneeID,
		&assignee,
		&dueDate,
		&t.Version,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.AssigneeID = assigneeID.Int64
	t.AssigneeUsername = assignee.String
	t.DueDate = nullStringToTime(dueDate)
	t.CreatedAt = parseTime(createdAt)
	t.UpdatedAt = parseTime(updatedAt)
	t.ComputeDueFlags(db.now())
	return &t, nil
}
