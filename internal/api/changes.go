package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/taskfeed/taskfeed/internal/metrics"
	"github.com/taskfeed/taskfeed/internal/schema"
)

// handleChanges serves GET /api/changes?since=N.
//
// Events with id > since are returned ascending by id, at most pageSize of
// them. When more remain, the truncation headers name the cursor to resume
// from.
func (s *Server) handleChanges(w http.ResponseWriter, r *http.Request) {
	fail := func(status int, msg string) {
		metrics.FeedRequests.WithLabelValues(strconv.Itoa(status)).Inc()
		writeError(w, status, msg)
	}

	if _, err := parseUserID(r); err != nil {
		fail(http.StatusBadRequest, err.Error())
		return
	}

	raw := strings.TrimSpace(r.URL.Query().Get("since"))
	if raw == "" {
		fail(http.StatusBadRequest, "missing since parameter")
		return
	}
	since, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		fail(http.StatusBadRequest, "since must be an integer")
		return
	}
	if since < 0 {
		fail(http.StatusBadRequest, "since must be >= 0")
		return
	}

	events, err := s.changes.ListChangesSinceContext(r.Context(), since, s.pageSize+1)
	if err != nil {
		s.logger.Printf("Failed to list changes since=%d: %v", since, err)
		fail(http.StatusInternalServerError, "failed to read change log")
		return
	}

	if len(events) > s.pageSize {
		events = events[:s.pageSize]
		w.Header().Set(TruncatedHeader, "true")
		w.Header().Set(NextCursorHeader, strconv.FormatInt(schema.MaxID(since, events), 10))
	}

	s.logger.Printf("since=%d returning %d events", since, len(events))
	metrics.FeedRequests.WithLabelValues(strconv.Itoa(http.StatusOK)).Inc()
	metrics.FeedPageSize.Observe(float64(len(events)))
	writeJSON(w, http.StatusOK, events)
}
