package poller

import (
	"context"
	"errors"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/taskfeed/taskfeed/internal/client"
	"github.com/taskfeed/taskfeed/internal/metrics"
	"github.com/taskfeed/taskfeed/internal/schema"
)

// ErrAlreadyStarted is returned by Start while a session is running.
var ErrAlreadyStarted = errors.New("poller already started")

// Feed is the change feed read. *client.Client implements it.
type Feed interface {
	ListChanges(ctx context.Context, since int64) (*client.Page, error)
}

// Dispatcher receives each event of a page, in ascending id order, tagged
// with the generation that was current when the session started.
type Dispatcher interface {
	Generation() uint64
	Apply(ctx context.Context, gen uint64, ev schema.ChangeEvent)
}

// State is the poller's lifecycle state.
type State int

const (
	Stopped State = iota
	Idle
	Polling
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "STOPPED"
	case Idle:
		return "IDLE"
	case Polling:
		return "POLLING"
	}
	return "UNKNOWN"
}

// Config holds configuration for the poller.
type Config struct {
	// Interval between poll ticks
	Interval time.Duration

	// RequestTimeout bounds each feed request
	RequestTimeout time.Duration

	// MaxFollowUps caps immediate re-polls after a truncated page
	MaxFollowUps int

	// Logger for poller activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Interval:       2 * time.Second,
		RequestTimeout: 10 * time.Second,
		MaxFollowUps:   10,
		Logger:         log.New(os.Stderr, "[poller] ", log.LstdFlags),
	}
}

// SyncState is the mutable state of one session.
type SyncState struct {
	SessionID  string
	UserID     int64
	Generation uint64

	cursor   atomic.Int64
	inFlight atomic.Bool
	active   atomic.Bool
}

// NewSyncState creates the state for a session starting at cursor.
func NewSyncState(userID, cursor int64) *SyncState {
	s := &SyncState{
		SessionID: uuid.NewString(),
		UserID:    userID,
	}
	s.cursor.Store(cursor)
	return s
}

// Cursor returns the highest event id processed.
func (s *SyncState) Cursor() int64 {
	return s.cursor.Load()
}

// advance moves the cursor forward. It never moves backwards.
func (s *SyncState) advance(to int64) {
	for {
		cur := s.cursor.Load()
		if to <= cur || s.cursor.CompareAndSwap(cur, to) {
			return
		}
	}
}

// Poller drives periodic feed polls for one session at a time.
type Poller struct {
	feed     Feed
	dispatch Dispatcher
	config   *Config

	mu       sync.Mutex
	state    *SyncState
	cancel   context.CancelFunc
	interval chan time.Duration

	ticks sync.WaitGroup
	polls sync.WaitGroup
}

// New creates a stopped poller.
func New(feed Feed, dispatch Dispatcher, config *Config) *Poller {
	if config == nil {
		config = DefaultConfig()
	}
	defaults := DefaultConfig()
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = defaults.RequestTimeout
	}
	if config.MaxFollowUps < 0 {
		config.MaxFollowUps = 0
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
	return &Poller{
		feed:     feed,
		dispatch: dispatch,
		config:   config,
		interval: make(chan time.Duration, 1),
	}
}

// Start begins a session for userID at cursor and starts ticking.
func (p *Poller) Start(userID, cursor int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != nil {
		return ErrAlreadyStarted
	}

	state := NewSyncState(userID, cursor)
	state.Generation = p.dispatch.Generation()
	state.active.Store(true)
	ctx, cancel := context.WithCancel(context.Background())
	p.state = state
	p.cancel = cancel

	p.config.Logger.Printf("Starting session %s for user %d at cursor %d", state.SessionID, userID, cursor)

	p.ticks.Add(1)
	go p.tickLoop(ctx, state)
	return nil
}

// Stop ends the session. No new polls start; a poll already in flight
// finishes but its result is discarded. The cursor is reset.
func (p *Poller) Stop() {
	p.mu.Lock()
	state, cancel := p.state, p.cancel
	p.state, p.cancel = nil, nil
	p.mu.Unlock()

	if state == nil {
		return
	}
	state.active.Store(false)
	cancel()
	p.ticks.Wait()

	p.config.Logger.Printf("Stopped session %s at cursor %d", state.SessionID, state.Cursor())
}

// PollNow starts a poll immediately, subject to the same single-flight gate
// as ticks. It reports whether a poll was started.
func (p *Poller) PollNow() bool {
	p.mu.Lock()
	state := p.state
	p.mu.Unlock()

	if state == nil {
		return false
	}
	return p.tryPoll(state)
}

// SetInterval changes the tick interval of a running session.
func (p *Poller) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-p.interval:
	default:
	}
	p.interval <- d
}

// Wait blocks until no poll is in flight.
func (p *Poller) Wait() {
	p.polls.Wait()
}

// Cursor returns the current session's cursor, or 0 when stopped.
func (p *Poller) Cursor() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == nil {
		return 0
	}
	return p.state.Cursor()
}

// State returns the lifecycle state.
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case p.state == nil:
		return Stopped
	case p.state.inFlight.Load():
		return Polling
	default:
		return Idle
	}
}

// Session returns the running session's state, or nil.
func (p *Poller) Session() *SyncState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Poller) tickLoop(ctx context.Context, state *SyncState) {
	defer p.ticks.Done()

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case d := <-p.interval:
			ticker.Reset(d)
			p.config.Logger.Printf("Poll interval set to %s", d)
		case <-ticker.C:
			p.tryPoll(state)
		}
	}
}

// tryPoll enters POLLING if no poll is in flight.
func (p *Poller) tryPoll(state *SyncState) bool {
	if !state.active.Load() {
		return false
	}
	if !state.inFlight.CompareAndSwap(false, true) {
		metrics.PollsSkipped.Inc()
		return false
	}

	p.polls.Add(1)
	go func() {
		defer p.polls.Done()
		defer state.inFlight.Store(false)
		p.poll(state)
	}()
	return true
}

// poll fetches pages until one is not truncated or the follow-up limit is
// reached. It runs inside the single in-flight slot.
func (p *Poller) poll(state *SyncState) {
	for attempt := 0; attempt <= p.config.MaxFollowUps; attempt++ {
		since := state.Cursor()

		ctx, cancel := context.WithTimeout(context.Background(), p.config.RequestTimeout)
		start := time.Now()
		page, err := p.feed.ListChanges(ctx, since)
		metrics.PollDuration.Observe(time.Since(start).Seconds())
		cancel()

		if err != nil {
			metrics.Polls.WithLabelValues(metrics.ResultError).Inc()
			p.config.Logger.Printf("Poll failed at cursor %d: %v", since, err)
			return
		}
		if !state.active.Load() {
			return
		}

		for _, skipped := range page.Skipped {
			metrics.EventsReceived.WithLabelValues("UNKNOWN").Inc()
			p.config.Logger.Printf("Warning: skipping event %d with unknown type %q", skipped.ID, skipped.Type)
		}
		for _, ev := range page.Events {
			metrics.EventsReceived.WithLabelValues(string(ev.Type)).Inc()
			p.dispatch.Apply(context.Background(), state.Generation, ev)
		}
		state.advance(page.MaxID(since))

		if !page.Truncated {
			metrics.Polls.WithLabelValues(metrics.ResultOK).Inc()
			return
		}
		metrics.Polls.WithLabelValues(metrics.ResultTruncated).Inc()
	}
	p.config.Logger.Printf("Follow-up limit reached at cursor %d; resuming on next tick", state.Cursor())
}
