package client

import (
	"context"
	"net/http"
	"net/url"
	"time"

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
type TaskPatch struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Status      *string    `json:"status,omitempty"`
	Priority    *string    `json:"priority,omitempty"`
	AssigneeID  *int64     `json:"assigneeId,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
}

// Health is the /health response.
type Health struct {
	Status         string `json:"status"`
	Clients        int    `json:"clients"`
	LatestChangeID int64  `json:"latestChangeId"`
}

// RegisterUser creates a user.
func (c *Client) RegisterUser(ctx context.Context, username, email string) (*schema.User, error) {
	var u schema.User
	body := map[string]string{"username": username, "email": email}
	if _, err := c.do(ctx, http.MethodPost, "/api/users", nil, body, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// ListUsers returns all users.
func (c *Client) ListUsers(ctx context.Context) ([]*schema.User, error) {
	var users []*schema.User
	if _, err := c.do(ctx, http.MethodGet, "/api/users", nil, nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// CreateProject creates a project owned by the caller.
func (c *Client) CreateProject(ctx context.Context, name, description string) (*schema.Project, error) {
	var p schema.Project
	body := map[string]string{"name": name, "description": description}
	if _, err := c.do(ctx, http.MethodPost, "/api/projects", nil, body, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListProjects returns the caller's projects.
func (c *Client) ListProjects(ctx context.Context) ([]*schema.Project, error) {
	var projects []*schema.Project
	if _, err := c.do(ctx, http.MethodGet, "/api/projects", nil, nil, &projects); err != nil {
		return nil, err
	}
	return projects, nil
}

// GetProject fetches the authoritative state of a project.
func (c *Client) GetProject(ctx context.Context, id int64) (*schema.Project, error) {
	var p schema.Project
	if _, err := c.do(ctx, http.MethodGet, idPath("/api/projects/%d", id), nil, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdateProject renames a project.
func (c *Client) UpdateProject(ctx context.Context, id int64, name, description string) (*schema.Project, error) {
	var p schema.Project
	body := map[string]string{"name": name, "description": description}
	if _, err := c.do(ctx, http.MethodPut, idPath("/api/projects/%d", id), nil, body, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// DeleteProject deletes a project.
func (c *Client) DeleteProject(ctx context.Context, id int64) error {
	_, err := c.do(ctx, http.MethodDelete, idPath("/api/projects/%d", id), nil, nil, nil)
	return err
}

// ListMembers fetches a project's membership list.
func (c *Client) ListMembers(ctx context.Context, projectID int64) ([]*schema.Member, error) {
	var members []*schema.Member
	if _, err := c.do(ctx, http.MethodGet, idPath("/api/projects/%d/members", projectID), nil, nil, &members); err != nil {
		return nil, err
	}
	return members, nil
}

// AddMember adds a user by username, email or id.
func (c *Client) AddMember(ctx context.Context, projectID int64, usernameOrEmail string) (*schema.Member, error) {
	var m schema.Member
	body := map[string]string{"usernameOrEmail": usernameOrEmail}
	if _, err := c.do(ctx, http.MethodPost, idPath("/api/projects/%d/members", projectID), nil, body, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// RemoveMember removes a user from a project.
func (c *Client) RemoveMember(ctx context.Context, projectID, userID int64) error {
	_, err := c.do(ctx, http.MethodDelete, idPath("/api/projects/%d/members/%d", projectID, userID), nil, nil, nil)
	return err
}

// ListTasks fetches a project's tasks, optionally filtered by status.
func (c *Client) ListTasks(ctx context.Context, projectID int64, status string) ([]*schema.Task, error) {
	var query url.Values
	if status != "" {
		query = url.Values{"status": {status}}
	}
	var tasks []*schema.Task
	if _, err := c.do(ctx, http.MethodGet, idPath("/api/projects/%d/tasks", projectID), query, nil, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// CreateTask adds a task to a project.
func (c *Client) CreateTask(ctx context.Context, projectID int64, in TaskInput) (*schema.Task, error) {
	var t schema.Task
	if _, err := c.do(ctx, http.MethodPost, idPath("/api/projects/%d/tasks", projectID), nil, in, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// GetTask fetches the authoritative state of a task.
func (c *Client) GetTask(ctx context.Context, id int64) (*schema.Task, error) {
	var t schema.Task
	if _, err := c.do(ctx, http.MethodGet, idPath("/api/tasks/%d", id), nil, nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// UpdateTask applies a partial update.
func (c *Client) UpdateTask(ctx context.Context, id int64, patch TaskPatch) (*schema.Task, error) {
	var t schema.Task
	if _, err := c.do(ctx, http.MethodPatch, idPath("/api/tasks/%d", id), nil, patch, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// DeleteTask deletes a task.
func (c *Client) DeleteTask(ctx context.Context, id int64) error {
	_, err := c.do(ctx, http.MethodDelete, idPath("/api/tasks/%d", id), nil, nil, nil)
	return err
}

// Health fetches server health.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var h Health
	if _, err := c.do(ctx, http.MethodGet, "/health", nil, nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}
