package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/taskfeed/taskfeed/internal/schema"
)

// SkippedEvent is a feed entry whose type tag is not recognized.
type SkippedEvent struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

// Page is one change feed response.
type Page struct {
	// Events with recognized types, ascending by id
	Events []schema.ChangeEvent

	// Skipped entries with unknown type tags
	Skipped []SkippedEvent

	// Truncated is set when more events exist after this page
	Truncated bool

	// NextCursor is the cursor to resume from when Truncated
	NextCursor int64
}

// MaxID returns the highest id in the page, skipped entries included, or
// floor if the page holds nothing higher.
func (p *Page) MaxID(floor int64) int64 {
	highest := schema.MaxID(floor, p.Events)
	for _, s := range p.Skipped {
		if s.ID > highest {
			highest = s.ID
		}
	}
	if p.NextCursor > highest {
		highest = p.NextCursor
	}
	return highest
}

// ListChanges fetches events with id > since.
func (c *Client) ListChanges(ctx context.Context, since int64) (*Page, error) {
	var raw []json.RawMessage
	header, err := c.do(ctx, http.MethodGet, "/api/changes",
		url.Values{"since": {strconv.FormatInt(since, 10)}}, nil, &raw)
	if err != nil {
		return nil, err
	}

	page := &Page{Events: make([]schema.ChangeEvent, 0, len(raw))}
	for _, msg := range raw {
		var ev schema.ChangeEvent
		err := json.Unmarshal(msg, &ev)
		if errors.Is(err, schema.ErrUnknownEventType) {
			var skipped SkippedEvent
			if err := json.Unmarshal(msg, &skipped); err != nil {
				return nil, fmt.Errorf("failed to decode change event: %w", err)
			}
			page.Skipped = append(page.Skipped, skipped)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decode change event: %w", err)
		}
		page.Events = append(page.Events, ev)
	}

	if header.Get(truncatedHeader) == "true" {
		page.Truncated = true
		if next := header.Get(nextCursorHeader); next != "" {
			page.NextCursor, err = strconv.ParseInt(next, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid %s header %q: %w", nextCursorHeader, next, err)
			}
		}
	}
	return page, nil
}
