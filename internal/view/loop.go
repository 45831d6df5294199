// Package view holds the client-side caches of projects, tasks and members
// and the reconciliation engine that keeps them in step with the change feed.
//
// All cache state is owned by a single Loop goroutine. Other goroutines
// (the poller, refetch workers) never touch the caches directly; they post
// closures to the loop.
package view

import (
	"context"
	"sync"
)

// Loop runs posted closures one at a time on its own goroutine.
type Loop struct {
	tasks     chan func()
	done      chan struct{}
	closeOnce sync.Once
}

// NewLoop creates a loop. Call Run to start processing.
func NewLoop() *Loop {
	return &Loop{
		tasks: make(chan func(), 256),
		done:  make(chan struct{}),
	}
}

// Run processes posted closures until ctx is cancelled or Close is called.
func (l *Loop) Run(ctx context.Context) {
	defer l.Close()

	for {
		select {
		case fn := <-l.tasks:
			fn()
		case <-l.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Post queues fn. It reports false if the loop has stopped.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}

	select {
	case l.tasks <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Do runs fn on the loop and waits for it. It reports false if the loop
// stopped before fn ran.
func (l *Loop) Do(fn func()) bool {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return false
	}

	select {
	case <-finished:
		return true
	case <-l.done:
		return false
	}
}

// Close stops the loop. Closures still queued are discarded.
func (l *Loop) Close() {
	l.closeOnce.Do(func() { close(l.done) })
}

// Done is closed once the loop has stopped.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}
