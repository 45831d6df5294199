package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/taskfeed/taskfeed/internal/schema"
)

const projectColumns = `
	p.id, p.name, p.description, p.owner_id, u.username,
	p.version, p.created_at, p.updated_at`

// CreateProject inserts a project and its OWNER membership in one transaction.
func (db *DB) CreateProject(ctx context.Context, ownerID int64, name, description string) (*schema.Project, error) {
	p := &schema.Project{Name: strings.TrimSpace(name), Description: description}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid project: %w", err)
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := formatTime(db.now())
	res, err := tx.ExecContext(ctx, `
		INSERT INTO projects (name, description, owner_id, version, created_at, updated_at)
		VALUES (?, ?, ?, 1, ?, ?)`,
		p.Name, p.Description, ownerID, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert project: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read project id: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO project_members (project_id, user_id, role, joined_at)
		VALUES (?, ?, ?, ?)`,
		id, ownerID, schema.RoleOwner, now,
	); err != nil {
		return nil, fmt.Errorf("failed to insert owner membership: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return db.GetProject(ctx, id)
}

// GetProject returns the project with the given id.
func (db *DB) GetProject(ctx context.Context, id int64) (*schema.Project, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT `+projectColumns+`
		FROM projects p
		JOIN users u ON u.id = p.owner_id
		WHERE p.id = ?`, id)

	p, err := scanProject(row)
	if err != nil {
		return nil, notFound(err, "project", id)
	}
	return p, nil
}

// ListProjectsForUser returns projects the user owns or is a member of,
// ordered by id.
func (db *DB) ListProjectsForUser(ctx context.Context, userID int64) ([]*schema.Project, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT DISTINCT `+projectColumns+`
		FROM projects p
		JOIN users u ON u.id = p.owner_id
		LEFT JOIN project_members m ON m.project_id = p.id
		WHERE p.owner_id = ? OR m.user_id = ?
		ORDER BY p.id ASC`, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	projects := make([]*schema.Project, 0)
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating projects: %w", err)
	}
	return projects, nil
}

// UpdateProject replaces the project's name and description and bumps its
// version.
func (db *DB) UpdateProject(ctx context.Context, id int64, name, description string) (*schema.Project, error) {
	p := &schema.Project{Name: strings.TrimSpace(name), Description: description}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid project: %w", err)
	}

	res, err := db.conn.ExecContext(ctx, `
		UPDATE projects
		SET name = ?, description = ?, version = version + 1, updated_at = ?
		WHERE id = ?`,
		p.Name, p.Description, formatTime(db.now()), id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update project %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("project %d: %w", id, ErrNotFound)
	}

	return db.GetProject(ctx, id)
}

// DeleteProject removes a project with its tasks and memberships.
func (db *DB) DeleteProject(ctx context.Context, id int64) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// tasks -> members -> project
	if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE project_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete tasks of project %d: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM project_members WHERE project_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete members of project %d: %w", id, err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete project %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("project %d: %w", id, ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func scanProject(s scanner) (*schema.Project, error) {
	var p schema.Project
	var createdAt, updatedAt string
	err := s.Scan(
		&p.ID,
		&p.Name,
		&p.Description,
		&p.OwnerID,
		&p.OwnerUsername,
		&p.Version,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return &p, nil
}
