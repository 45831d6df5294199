package db

import (
	"context"
	"fmt"

	"github.com/taskfeed/taskfeed/internal/schema"
)

// AddMember inserts a membership row.
func (db *DB) AddMember(ctx context.Context, projectID, userID int64, role string) (*schema.Member, error) {
	res, err := db.conn.ExecContext(ctx, `
		INSERT INTO project_members (project_id, user_id, role, joined_at)
		VALUES (?, ?, ?, ?)`,
		projectID, userID, role, formatTime(db.now()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to add member %d to project %d: %w", userID, projectID, err)
	}
	if _, err := res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("failed to read member id: %w", err)
	}
	return db.GetMembership(ctx, projectID, userID)
}

// RemoveMember deletes a membership row.
func (db *DB) RemoveMember(ctx context.Context, projectID, userID int64) error {
	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM project_members WHERE project_id = ? AND user_id = ?`, projectID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove member %d from project %d: %w", userID, projectID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("member %d of project %d: %w", userID, projectID, ErrNotFound)
	}
	return nil
}

// GetMembership returns the membership of userID in projectID.
func (db *DB) GetMembership(ctx context.Context, projectID, userID int64) (*schema.Member, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT m.id, m.project_id, m.user_id, u.username, m.role, m.joined_at
		FROM project_members m
		JOIN users u ON u.id = m.user_id
		WHERE m.project_id = ? AND m.user_id = ?`, projectID, userID)

	m, err := scanMember(row)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("member of project %d with user id", projectID), userID)
	}
	return m, nil
}

// ListMembers returns the membership list of a project ordered by join order.
func (db *DB) ListMembers(ctx context.Context, projectID int64) ([]*schema.Member, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT m.id, m.project_id, m.user_id, u.username, m.role, m.joined_at
		FROM project_members m
		JOIN users u ON u.id = m.user_id
		WHERE m.project_id = ?
		ORDER BY m.id ASC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members of project %d: %w", projectID, err)
	}
	defer rows.Close()

	members := make([]*schema.Member, 0)
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating members: %w", err)
	}
	return members, nil
}

func scanMember(s scanner) (*schema.Member, error) {
	var m schema.Member
	var joinedAt string
	if err := s.Scan(&m.ID, &m.ProjectID, &m.UserID, &m.Username, &m.Role, &joinedAt); err != nil {
		return nil, err
	}
	m.JoinedAt = parseTime(joinedAt)
	return &m, nil
}
