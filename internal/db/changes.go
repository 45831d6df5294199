package db

import (
	"context"
	"fmt"

	"github.com/taskfeed/taskfeed/internal/schema"
)

// DefaultPageSize is the maximum number of change events returned by one read.
const DefaultPageSize = 200

// AppendChange appends one event to the change log and returns it with its
// assigned id. Existing rows are never updated or deleted.
func (db *DB) AppendChange(typ schema.EventType, entityID, projectID int64) (schema.ChangeEvent, error) {
	return db.AppendChangeContext(context.Background(), typ, entityID, projectID)
}

// AppendChangeContext appends a change event with context support.
func (db *DB) AppendChangeContext(ctx context.Context, typ schema.EventType, entityID, projectID int64) (schema.ChangeEvent, error) {
	ev := schema.ChangeEvent{
		Type:      typ,
		EntityID:  entityID,
		ProjectID: projectID,
		CreatedAt: db.now().UnixMilli(),
	}
	if err := ev.Validate(); err != nil {
		return schema.ChangeEvent{}, fmt.Errorf("invalid change event: %w", err)
	}

	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO change_events (type, entity_id, project_id, created_at) VALUES (?, ?, ?, ?)`,
		string(ev.Type), ev.EntityID, ev.ProjectID, ev.CreatedAt,
	)
	if err != nil {
		return schema.ChangeEvent{}, fmt.Errorf("failed to append change event: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return schema.ChangeEvent{}, fmt.Errorf("failed to read change event id: %w", err)
	}
	ev.ID = id
	return ev, nil
}

// ListChangesSince returns events with id > since in ascending id order,
// capped at limit rows. A limit <= 0 means DefaultPageSize.
func (db *DB) ListChangesSince(since int64, limit int) ([]schema.ChangeEvent, error) {
	return db.ListChangesSinceContext(context.Background(), since, limit)
}

// ListChangesSinceContext reads the change log with context support.
//
// Rows whose type is no longer part of the closed set are still returned so
// the caller can advance past them; decoding on the client rejects them.
func (db *DB) ListChangesSinceContext(ctx context.Context, since int64, limit int) ([]schema.ChangeEvent, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}

	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, type, entity_id, project_id, created_at
		FROM change_events
		WHERE id > ?
		ORDER BY id ASC
		LIMIT ?`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query change events: %w", err)
	}
	defer rows.Close()

	events := make([]schema.ChangeEvent, 0)
	for rows.Next() {
		var ev schema.ChangeEvent
		var typ string
		if err := rows.Scan(&ev.ID, &typ, &ev.EntityID, &ev.ProjectID, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan change event: %w", err)
		}
		ev.Type = schema.EventType(typ)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating change events: %w", err)
	}

	return events, nil
}

// LatestChangeID returns the highest change event id, or 0 for an empty log.
func (db *DB) LatestChangeID(ctx context.Context) (int64, error) {
	var id int64
	err := db.conn.QueryRowContext(ctx, "SELECT COALESCE(MAX(id), 0) FROM change_events").Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to get latest change id: %w", err)
	}
	return id, nil
}

// GetChangeCount returns the number of rows in the change log.
func (db *DB) GetChangeCount(ctx context.Context) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM change_events").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get change count: %w", err)
	}
	return count, nil
}
