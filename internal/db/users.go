package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/taskfeed/taskfeed/internal/schema"
)

// CreateUser registers a user and returns it with its assigned id.
func (db *DB) CreateUser(ctx context.Context, username, email string) (*schema.User, error) {
	user := &schema.User{
		Username:  strings.TrimSpace(username),
		Email:     strings.TrimSpace(email),
		CreatedAt: db.now().UTC(),
	}
	if err := user.Validate(); err != nil {
		return nil, fmt.Errorf("invalid user: %w", err)
	}

	nullEmail := sql.NullString{String: user.Email, Valid: user.Email != ""}
	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (username, email, created_at) VALUES (?, ?, ?)`,
		user.Username, nullEmail, formatTime(user.CreatedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create user %s: %w", user.Username, err)
	}

	if user.ID, err = res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("failed to read user id: %w", err)
	}
	return user, nil
}

// GetUserByID returns the user with the given id.
func (db *DB) GetUserByID(ctx context.Context, id int64) (*schema.User, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT id, username, email, created_at FROM users WHERE id = ?`, id)
	user, err := scanUser(row)
	if err != nil {
		return nil, notFound(err, "user", id)
	}
	return user, nil
}

// FindUser resolves a user by username, then email, then numeric id.
func (db *DB) FindUser(ctx context.Context, lookup string) (*schema.User, error) {
	lookup = strings.TrimSpace(lookup)
	if lookup == "" {
		return nil, fmt.Errorf("empty user lookup: %w", ErrNotFound)
	}

	for _, column := range []string{"username", "email"} {
		row := db.conn.QueryRowContext(ctx,
			`SELECT id, username, email, created_at FROM users WHERE `+column+` = ?`, lookup)
		user, err := scanUser(row)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("failed to find user by %s: %w", column, err)
		}
	}

	id, err := strconv.ParseInt(lookup, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("user %q: %w", lookup, ErrNotFound)
	}
	return db.GetUserByID(ctx, id)
}

// ListUsers returns all users ordered by id.
func (db *DB) ListUsers(ctx context.Context) ([]*schema.User, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, username, email, created_at FROM users ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*schema.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}
	return users, nil
}

func scanUser(s scanner) (*schema.User, error) {
	var user schema.User
	var email sql.NullString
	var createdAt string
	if err := s.Scan(&user.ID, &user.Username, &email, &createdAt); err != nil {
		return nil, err
	}
	user.Email = email.String
	user.CreatedAt = parseTime(createdAt)
	return &user, nil
}
