// Package loadtest exercises the change feed under concurrent readers.
//
// It populates a database through the service layer, so every mutation is
// recorded in the change log, then simulates many clients paging the feed
// from cursor 0 to the head and checks that each one sees every event id
// exactly once and in ascending order.
package loadtest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/taskfeed/taskfeed/internal/api"
	"github.com/taskfeed/taskfeed/internal/client"
	"github.com/taskfeed/taskfeed/internal/db"
	"github.com/taskfeed/taskfeed/internal/recorder"
	"github.com/taskfeed/taskfeed/internal/schema"
	"github.com/taskfeed/taskfeed/internal/service"
)

// TestDatabase is a populated database served over HTTP for load testing.
type TestDatabase struct {
	DB         *db.DB
	Service    *service.Service
	Owner      *schema.User
	ProjectIDs []int64
	TaskIDs    []int64

	server  *api.Server
	baseURL string
}

// LatencyStats captures feed request latencies.
type LatencyStats struct {
	Min           time.Duration
	Max           time.Duration
	Mean          time.Duration
	P50           time.Duration // Median
	P95           time.Duration
	P99           time.Duration
	TotalRequests int
	Errors        int
	Durations     []time.Duration
}

// Options controls population and serving.
type Options struct {
	Projects        int
	TasksPerProject int
	PageSize        int
	Logger          *log.Logger
}

// CreateTestDatabase opens dbPath, populates it and starts an API server on
// a free local port.
//
// Each project gets TasksPerProject tasks; roughly a third of those tasks are
// then updated and a tenth deleted so the log carries every event kind.
func CreateTestDatabase(dbPath string, opts Options) (*TestDatabase, error) {
	if opts.Projects <= 0 {
		return nil, errors.New("at least one project is required")
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}

	database, err := db.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Readers and writers share the pool
	database.RawDB().SetMaxOpenConns(64)
	database.RawDB().SetMaxIdleConns(16)

	if err := database.InitSchema(); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	rec := recorder.New(database, nil, opts.Logger)
	td := &TestDatabase{
		DB:      database,
		Service: service.New(database, rec, opts.Logger),
	}

	if err := td.populate(context.Background(), opts.Projects, opts.TasksPerProject); err != nil {
		_ = database.Close()
		return nil, err
	}

	td.server = api.NewServer(&api.Config{Port: 0, PageSize: opts.PageSize, Logger: opts.Logger}, database, td.Service)
	if err := td.server.Start(); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to start server: %w", err)
	}
	_, port, err := net.SplitHostPort(td.server.GetAddr())
	if err != nil {
		_ = td.Close()
		return nil, fmt.Errorf("failed to parse server address: %w", err)
	}
	td.baseURL = "http://127.0.0.1:" + port

	return td, nil
}

func (td *TestDatabase) populate(ctx context.Context, numProjects, tasksPerProject int) error {
	owner, err := td.Service.RegisterUser(ctx, "loadtest", "loadtest@example.com")
	if err != nil {
		return fmt.Errorf("failed to register owner: %w", err)
	}
	td.Owner = owner

	priorities := []string{"LOW", "MEDIUM", "MEDIUM", "HIGH"}
	// Deterministic for reproducibility
	rng := rand.New(rand.NewSource(42))

	for p := 0; p < numProjects; p++ {
		project, err := td.Service.CreateProject(ctx, owner.ID, fmt.Sprintf("Project %d", p), "load test project")
		if err != nil {
			return fmt.Errorf("failed to create project %d: %w", p, err)
		}
		td.ProjectIDs = append(td.ProjectIDs, project.ID)

		for i := 0; i < tasksPerProject; i++ {
			task, err := td.Service.CreateTask(ctx, owner.ID, project.ID, service.TaskInput{
				Title:    fmt.Sprintf("Task %d.%d", p, i),
				Priority: priorities[i%len(priorities)],
			})
			if err != nil {
				return fmt.Errorf("failed to create task %d.%d: %w", p, i, err)
			}

			switch n := rng.Intn(10); {
			case n == 0:
				if err := td.Service.DeleteTask(ctx, owner.ID, task.ID); err != nil {
					return fmt.Errorf("failed to delete task %d: %w", task.ID, err)
				}
				continue
			case n < 4:
				status := schema.StatusDoing
				if _, err := td.Service.UpdateTask(ctx, owner.ID, task.ID, service.TaskPatch{Status: &status}); err != nil {
					return fmt.Errorf("failed to update task %d: %w", task.ID, err)
				}
			}
			td.TaskIDs = append(td.TaskIDs, task.ID)
		}
	}
	return nil
}

// BaseURL returns the address of the in-process API server.
func (td *TestDatabase) BaseURL() string {
	return td.baseURL
}

// Close stops the server and closes the database.
func (td *TestDatabase) Close() error {
	var errs []error
	if td.server != nil {
		errs = append(errs, td.server.Stop())
	}
	if td.DB != nil {
		errs = append(errs, td.DB.Close())
	}
	return errors.Join(errs...)
}

// FeedCursorError reports a client that saw the feed out of order, with a
// gap, or with a duplicate.
type FeedCursorError struct {
	Client int
	Reason string
}

func (e *FeedCursorError) Error() string {
	return fmt.Sprintf("client %d: %s", e.Client, e.Reason)
}

// RunConcurrentFeeds simulates numClients readers, each paging the feed from
// cursor 0 to the current head. Every request's latency is recorded and each
// client's sequence is checked against the log.
func (td *TestDatabase) RunConcurrentFeeds(ctx context.Context, numClients int) (*LatencyStats, error) {
	head, err := td.DB.LatestChangeID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read feed head: %w", err)
	}
	total, err := td.DB.GetChangeCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count changes: %w", err)
	}

	var mu sync.Mutex
	var allDurations []time.Duration

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < numClients; i++ {
		clientID := i
		g.Go(func() error {
			c := client.New(client.Config{BaseURL: td.baseURL, UserID: td.Owner.ID})
			ids, durations, err := drain(gctx, c, head)

			mu.Lock()
			allDurations = append(allDurations, durations...)
			mu.Unlock()

			if err != nil {
				return fmt.Errorf("client %d: %w", clientID, err)
			}
			if len(ids) != total {
				return &FeedCursorError{Client: clientID, Reason: fmt.Sprintf("saw %d events, log has %d", len(ids), total)}
			}
			return nil
		})
	}
	err = g.Wait()

	if len(allDurations) == 0 {
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("no feed requests completed")
	}

	stats := computeLatencyStats(allDurations)
	if err != nil {
		stats.Errors = 1
	}
	return stats, err
}

// drain pages the feed from 0 until the cursor reaches head, returning the
// ids seen. Ids must be strictly ascending across pages.
func drain(ctx context.Context, c *client.Client, head int64) ([]int64, []time.Duration, error) {
	var ids []int64
	var durations []time.Duration
	var cursor int64

	for cursor < head {
		start := time.Now()
		page, err := c.ListChanges(ctx, cursor)
		durations = append(durations, time.Since(start))
		if err != nil {
			return ids, durations, err
		}
		if len(page.Events) == 0 && len(page.Skipped) == 0 {
			return ids, durations, fmt.Errorf("empty page at cursor %d before head %d", cursor, head)
		}
		for _, ev := range page.Events {
			if ev.ID <= cursor {
				return ids, durations, fmt.Errorf("event %d not after cursor %d", ev.ID, cursor)
			}
			cursor = ev.ID
			ids = append(ids, ev.ID)
		}
		cursor = page.MaxID(cursor)
	}
	return ids, durations, nil
}

// VerifyConcurrentAppends runs numWriters mutating tasks through the service
// while numReaders tail the feed, for the given duration. Each reader must
// observe strictly ascending ids with no duplicates, and a final sweep from
// every reader's cursor must reach the head.
func (td *TestDatabase) VerifyConcurrentAppends(ctx context.Context, numWriters, numReaders int, duration time.Duration) error {
	if len(td.ProjectIDs) == 0 {
		return errors.New("no projects to write to")
	}

	runCtx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)
	for i := 0; i < numWriters; i++ {
		writer := i
		g.Go(func() error {
			projectID := td.ProjectIDs[writer%len(td.ProjectIDs)]
			for n := 0; ; n++ {
				if gctx.Err() != nil {
					return nil
				}
				_, err := td.Service.CreateTask(context.Background(), td.Owner.ID, projectID, service.TaskInput{
					Title: fmt.Sprintf("writer %d task %d", writer, n),
				})
				if err != nil {
					return fmt.Errorf("writer %d: %w", writer, err)
				}
			}
		})
	}

	cursors := make([]int64, numReaders)
	for i := 0; i < numReaders; i++ {
		reader := i
		g.Go(func() error {
			c := client.New(client.Config{BaseURL: td.baseURL, UserID: td.Owner.ID})
			seen := make(map[int64]bool)
			for gctx.Err() == nil {
				page, err := c.ListChanges(gctx, cursors[reader])
				if err != nil {
					if gctx.Err() != nil {
						return nil
					}
					return fmt.Errorf("reader %d: %w", reader, err)
				}
				for _, ev := range page.Events {
					if ev.ID <= cursors[reader] || seen[ev.ID] {
						return &FeedCursorError{Client: reader, Reason: fmt.Sprintf("event %d repeated or out of order after %d", ev.ID, cursors[reader])}
					}
					seen[ev.ID] = true
					cursors[reader] = ev.ID
				}
				cursors[reader] = page.MaxID(cursors[reader])
				time.Sleep(time.Millisecond)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	head, err := td.DB.LatestChangeID(ctx)
	if err != nil {
		return fmt.Errorf("failed to read feed head: %w", err)
	}
	for i, cursor := range cursors {
		c := client.New(client.Config{BaseURL: td.baseURL, UserID: td.Owner.ID})
		for cursor < head {
			page, err := c.ListChanges(ctx, cursor)
			if err != nil {
				return fmt.Errorf("reader %d final sweep: %w", i, err)
			}
			next := page.MaxID(cursor)
			if next == cursor {
				return &FeedCursorError{Client: i, Reason: fmt.Sprintf("stuck at %d before head %d", cursor, head)}
			}
			cursor = next
		}
	}
	return nil
}

// computeLatencyStats calculates statistics from a slice of durations.
func computeLatencyStats(durations []time.Duration) *LatencyStats {
	if len(durations) == 0 {
		return &LatencyStats{}
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return &LatencyStats{
		Min:           sorted[0],
		Max:           sorted[len(sorted)-1],
		Mean:          sum / time.Duration(len(durations)),
		P50:           sorted[len(sorted)*50/100],
		P95:           sorted[len(sorted)*95/100],
		P99:           sorted[len(sorted)*99/100],
		TotalRequests: len(durations),
		Durations:     sorted,
	}
}

// WriteStats formats latency statistics to w.
func (s *LatencyStats) WriteStats(w io.Writer) {
	fmt.Fprintf(w, "Latency Statistics:\n")
	fmt.Fprintf(w, "  Total Requests: %d\n", s.TotalRequests)
	fmt.Fprintf(w, "  Errors:         %d\n", s.Errors)
	fmt.Fprintf(w, "  Min:            %v\n", s.Min)
	fmt.Fprintf(w, "  P50 (Median):   %v\n", s.P50)
	fmt.Fprintf(w, "  Mean:           %v\n", s.Mean)
	fmt.Fprintf(w, "  P95:            %v\n", s.P95)
	fmt.Fprintf(w, "  P99:            %v\n", s.P99)
	fmt.Fprintf(w, "  Max:            %v\n", s.Max)
}

// GetStats returns counts describing the populated database.
func (td *TestDatabase) GetStats(ctx context.Context) (map[string]interface{}, error) {
	events, err := td.DB.GetChangeCount(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"projects":   len(td.ProjectIDs),
		"live_tasks": len(td.TaskIDs),
		"events":     events,
	}, nil
}
