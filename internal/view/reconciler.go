package view

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/taskfeed/taskfeed/internal/client"
	"github.com/taskfeed/taskfeed/internal/metrics"
	"github.com/taskfeed/taskfeed/internal/schema"
)

// Refetch results for metrics.
const (
	resultOK    = "ok"
	resultGone  = "gone"
	resultError = "error"
	resultStale = "stale"
)

// ErrStopped is returned when the loop has stopped.
var ErrStopped = errors.New("view loop stopped")

// Fetcher reads authoritative state from the server. *client.Client
// implements it.
type Fetcher interface {
	GetProject(ctx context.Context, id int64) (*schema.Project, error)
	ListProjects(ctx context.Context) ([]*schema.Project, error)
	GetTask(ctx context.Context, id int64) (*schema.Task, error)
	ListTasks(ctx context.Context, projectID int64, status string) ([]*schema.Task, error)
	ListMembers(ctx context.Context, projectID int64) ([]*schema.Member, error)
}

// Reconciler applies change events to the cache.
//
// Events are dispatched on the loop in the order Apply is called. Upserts
// refetch the entity on their own goroutine and post the result back to
// the loop; completions carry the session generation they started under
// and are dropped if the session ended or a new one began.
type Reconciler struct {
	fetch  Fetcher
	loop   *Loop
	cache  *Cache
	logger *log.Logger

	active     atomic.Bool
	generation atomic.Uint64

	inflight sync.WaitGroup
}

// NewReconciler creates a reconciler over cache, mutating it only on loop.
// If logger is nil, a default logger writing to stderr is used.
func NewReconciler(fetch Fetcher, loop *Loop, cache *Cache, logger *log.Logger) *Reconciler {
	if logger == nil {
		logger = log.New(os.Stderr, "[view] ", log.LstdFlags)
	}
	return &Reconciler{
		fetch:  fetch,
		loop:   loop,
		cache:  cache,
		logger: logger,
	}
}

// Activate starts a new session generation. Completions from earlier
// generations are discarded.
func (r *Reconciler) Activate() {
	r.generation.Add(1)
	r.active.Store(true)
}

// Deactivate ends the session. In-flight refetches still finish but their
// results are discarded, and the cache is cleared.
func (r *Reconciler) Deactivate() {
	r.active.Store(false)
	r.loop.Do(r.cache.Clear)
}

// Active reports whether a session is running.
func (r *Reconciler) Active() bool {
	return r.active.Load()
}

// Wait blocks until every in-flight refetch has finished and its result
// has been applied (or discarded) on the loop.
func (r *Reconciler) Wait() {
	r.inflight.Wait()
	r.loop.Do(func() {})
}

// Generation returns the current session generation.
func (r *Reconciler) Generation() uint64 {
	return r.generation.Load()
}

// Apply dispatches one event read by the session of generation gen. Events
// from an ended session are dropped. It returns once the event has been
// examined on the loop; refetches it starts complete asynchronously.
func (r *Reconciler) Apply(ctx context.Context, gen uint64, ev schema.ChangeEvent) {
	r.loop.Do(func() {
		if !r.current(gen) {
			return
		}
		r.dispatch(ctx, gen, ev)
	})
}

// dispatch runs on the loop.
func (r *Reconciler) dispatch(ctx context.Context, gen uint64, ev schema.ChangeEvent) {
	switch ev.Type {
	case schema.ProjectCreated, schema.ProjectUpdated:
		r.spawn(func() { r.refetchProject(ctx, gen, ev.EntityID) })

	case schema.ProjectDeleted:
		r.cache.RemoveProject(ev.EntityID)

	case schema.ProjectMembersUpdated:
		if _, known := r.cache.Project(ev.ProjectID); !known {
			return
		}
		r.spawn(func() { r.refetchMembers(ctx, gen, ev.ProjectID) })

	case schema.TaskCreated, schema.TaskUpdated:
		if ev.ProjectID != r.cache.DisplayedProjectID() {
			return
		}
		r.spawn(func() { r.refetchTask(ctx, gen, ev.EntityID) })

	case schema.TaskDeleted:
		if ev.ProjectID != r.cache.DisplayedProjectID() {
			return
		}
		r.cache.RemoveTask(ev.EntityID)

	default:
		r.logger.Printf("Warning: ignoring event %d with unhandled type %s", ev.ID, ev.Type)
	}
}

func (r *Reconciler) spawn(fn func()) {
	r.inflight.Add(1)
	go func() {
		defer r.inflight.Done()
		fn()
	}()
}

func (r *Reconciler) current(gen uint64) bool {
	return r.active.Load() && r.generation.Load() == gen
}

// post applies fn on the loop if gen is still the live session.
func (r *Reconciler) post(gen uint64, fn func()) {
	r.loop.Post(func() {
		if r.current(gen) {
			fn()
		}
	})
}

// fetchContext detaches a refetch from the caller's cancellation; stopping
// the poller does not cancel refetches already started.
func fetchContext(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}

// gone reports whether a refetch error means the entity is no longer
// visible to this user.
func gone(err error) bool {
	return client.IsNotFound(err) || client.IsForbidden(err)
}

func (r *Reconciler) refetchProject(ctx context.Context, gen uint64, id int64) {
	p, err := r.fetch.GetProject(fetchContext(ctx), id)
	if err != nil {
		r.refetchFailed("project", id, err)
		return
	}
	r.post(gen, func() {
		if r.cache.UpsertProject(*p) {
			metrics.Refetches.WithLabelValues("project", resultOK).Inc()
		} else {
			metrics.Refetches.WithLabelValues("project", resultStale).Inc()
		}
	})
}

func (r *Reconciler) refetchTask(ctx context.Context, gen uint64, id int64) {
	t, err := r.fetch.GetTask(fetchContext(ctx), id)
	if err != nil {
		r.refetchFailed("task", id, err)
		return
	}
	r.post(gen, func() {
		if r.cache.UpsertTask(*t) {
			metrics.Refetches.WithLabelValues("task", resultOK).Inc()
		} else {
			metrics.Refetches.WithLabelValues("task", resultStale).Inc()
		}
	})
}

func (r *Reconciler) refetchMembers(ctx context.Context, gen uint64, projectID int64) {
	members, err := r.fetch.ListMembers(fetchContext(ctx), projectID)
	if err != nil {
		r.refetchFailed("members", projectID, err)
		if gone(err) {
			r.post(gen, func() { r.cache.ForgetProject(projectID) })
		}
		return
	}
	r.post(gen, func() {
		if _, known := r.cache.Project(projectID); !known {
			return
		}
		r.cache.SetMembers(projectID, members)
		metrics.Refetches.WithLabelValues("members", resultOK).Inc()
	})
}

func (r *Reconciler) refetchFailed(entity string, id int64, err error) {
	if gone(err) {
		metrics.Refetches.WithLabelValues(entity, resultGone).Inc()
		return
	}
	metrics.Refetches.WithLabelValues(entity, resultError).Inc()
	r.logger.Printf("Failed to refetch %s %d: %v", entity, id, err)
}

// FullReload replaces the cache from the read API: the project list and,
// if a project is displayed, its tasks and members. Entries upserted by
// events while the reload runs are kept over the reloaded lists.
func (r *Reconciler) FullReload(ctx context.Context) error {
	gen := r.generation.Load()

	var (
		displayed int64
		mark      uint64
	)
	if !r.loop.Do(func() {
		displayed = r.cache.DisplayedProjectID()
		mark = r.cache.Mark()
	}) {
		return ErrStopped
	}

	var (
		projects []*schema.Project
		tasks    []*schema.Task
		members  []*schema.Member
		lost     bool
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		projects, err = r.fetch.ListProjects(gctx)
		if err != nil {
			return fmt.Errorf("failed to load projects: %w", err)
		}
		return nil
	})
	if displayed != 0 {
		g.Go(func() error {
			var err error
			tasks, err = r.fetch.ListTasks(gctx, displayed, "")
			if gone(err) {
				lost = true
				return nil
			}
			if err != nil {
				return fmt.Errorf("failed to load tasks of project %d: %w", displayed, err)
			}
			return nil
		})
		g.Go(func() error {
			var err error
			members, err = r.fetch.ListMembers(gctx, displayed)
			if gone(err) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("failed to load members of project %d: %w", displayed, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	applied := r.loop.Do(func() {
		if !r.current(gen) {
			return
		}
		r.cache.SetProjects(projects, mark)
		if displayed == 0 || r.cache.DisplayedProjectID() != displayed {
			return
		}
		if _, ok := r.cache.Project(displayed); lost || !ok {
			r.cache.ForgetProject(displayed)
			return
		}
		r.cache.SetTasks(displayed, tasks, mark)
		r.cache.SetMembers(displayed, members)
	})
	if !applied {
		return ErrStopped
	}
	return nil
}

// ShowProject displays a project: its tasks and members are loaded and
// later task events for it are applied.
func (r *Reconciler) ShowProject(ctx context.Context, projectID int64) error {
	gen := r.generation.Load()
	var mark uint64
	if !r.loop.Do(func() {
		r.cache.SelectProject(projectID)
		r.cache.SetDisplayedProject(projectID)
		mark = r.cache.Mark()
	}) {
		return ErrStopped
	}

	var (
		tasks   []*schema.Task
		members []*schema.Member
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		tasks, err = r.fetch.ListTasks(gctx, projectID, "")
		return err
	})
	g.Go(func() error {
		var err error
		members, err = r.fetch.ListMembers(gctx, projectID)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("failed to load project %d: %w", projectID, err)
	}

	r.loop.Do(func() {
		if !r.current(gen) {
			return
		}
		r.cache.SetTasks(projectID, tasks, mark)
		r.cache.SetMembers(projectID, members)
	})
	return nil
}

// SelectTask selects a task of the displayed project. It reports whether
// the task is cached.
func (r *Reconciler) SelectTask(id int64) bool {
	var ok bool
	r.loop.Do(func() {
		r.cache.SelectTask(id)
		ok = r.cache.SelectedTaskID() == id
	})
	return ok
}

// Snapshot returns a copy of the cache.
func (r *Reconciler) Snapshot() Snapshot {
	var s Snapshot
	r.loop.Do(func() { s = r.cache.Snapshot() })
	return s
}
