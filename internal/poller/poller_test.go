package poller

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/taskfeed/taskfeed/internal/client"
	"github.com/taskfeed/taskfeed/internal/schema"
)

// fakeFeed serves events from memory and records every request.
type fakeFeed struct {
	mu          sync.Mutex
	events      []schema.ChangeEvent
	skipped     []client.SkippedEvent
	pageSize    int
	failNext    int
	gate        chan struct{}
	calls       []int64
	inFlight    int
	maxInFlight int
}

func (f *fakeFeed) ListChanges(ctx context.Context, since int64) (*client.Page, error) {
	f.mu.Lock()
	f.calls = append(f.calls, since)
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	gate := f.gate
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext > 0 {
		f.failNext--
		return nil, errors.New("connection reset by peer")
	}

	page := &client.Page{}
	for _, ev := range f.events {
		if ev.ID <= since {
			continue
		}
		if f.pageSize > 0 && len(page.Events) == f.pageSize {
			page.Truncated = true
			page.NextCursor = page.Events[len(page.Events)-1].ID
			break
		}
		page.Events = append(page.Events, ev)
	}
	for _, s := range f.skipped {
		if s.ID > since {
			page.Skipped = append(page.Skipped, s)
		}
	}
	return page, nil
}

func (f *fakeFeed) sinceValues() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.calls...)
}

// recordingDispatcher collects dispatched events with their generation.
type recordingDispatcher struct {
	mu     sync.Mutex
	gen    uint64
	events []schema.ChangeEvent
	gens   []uint64
}

func (d *recordingDispatcher) Generation() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gen
}

func (d *recordingDispatcher) Apply(ctx context.Context, gen uint64, ev schema.ChangeEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, ev)
	d.gens = append(d.gens, gen)
}

func (d *recordingDispatcher) ids() []int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	ids := make([]int64, len(d.events))
	for i, ev := range d.events {
		ids[i] = ev.ID
	}
	return ids
}

func events(ids ...int64) []schema.ChangeEvent {
	out := make([]schema.ChangeEvent, len(ids))
	for i, id := range ids {
		out[i] = schema.ChangeEvent{ID: id, Type: schema.TaskUpdated, EntityID: id, ProjectID: 1}
	}
	return out
}

// testConfig uses a long interval so only PollNow drives polls.
func testConfig() *Config {
	return &Config{
		Interval:       time.Hour,
		RequestTimeout: time.Second,
		MaxFollowUps:   10,
		Logger:         log.New(io.Discard, "", 0),
	}
}

func equalIDs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestPoll_DispatchesInOrderAndAdvancesCursor(t *testing.T) {
	feed := &fakeFeed{events: events(3, 5, 9)}
	dispatch := &recordingDispatcher{}
	p := New(feed, dispatch, testConfig())

	if err := p.Start(1, 0); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	defer p.Stop()

	if !p.PollNow() {
		t.Fatal("PollNow() = false, want true")
	}
	p.Wait()

	if got := dispatch.ids(); !equalIDs(got, []int64{3, 5, 9}) {
		t.Errorf("dispatched %v, want [3 5 9]", got)
	}
	if got := p.Cursor(); got != 9 {
		t.Errorf("Cursor() = %d, want 9", got)
	}

	// Nothing new: cursor holds and nothing is redispatched.
	p.PollNow()
	p.Wait()
	if got := p.Cursor(); got != 9 {
		t.Errorf("Cursor() after empty poll = %d, want 9", got)
	}
	if got := feed.sinceValues(); !equalIDs(got, []int64{0, 9}) {
		t.Errorf("since values = %v, want [0 9]", got)
	}
}

func TestPoll_FailureKeepsCursor(t *testing.T) {
	feed := &fakeFeed{events: events(1, 2)}
	dispatch := &recordingDispatcher{}
	p := New(feed, dispatch, testConfig())
	if err := p.Start(1, 0); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	defer p.Stop()

	p.PollNow()
	p.Wait()

	feed.mu.Lock()
	feed.events = append(feed.events, events(3, 4)...)
	feed.failNext = 1
	feed.mu.Unlock()

	p.PollNow()
	p.Wait()
	if got := p.Cursor(); got != 2 {
		t.Fatalf("Cursor() after failure = %d, want 2", got)
	}

	p.PollNow()
	p.Wait()

	if got := feed.sinceValues(); !equalIDs(got, []int64{0, 2, 2}) {
		t.Errorf("since values = %v, want [0 2 2]", got)
	}
	if got := dispatch.ids(); !equalIDs(got, []int64{1, 2, 3, 4}) {
		t.Errorf("dispatched %v, want [1 2 3 4]", got)
	}
	if got := p.Cursor(); got != 4 {
		t.Errorf("Cursor() = %d, want 4", got)
	}
}

func TestPoll_SingleFlight(t *testing.T) {
	feed := &fakeFeed{events: events(1), gate: make(chan struct{})}
	p := New(feed, &recordingDispatcher{}, testConfig())
	if err := p.Start(1, 0); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	defer p.Stop()

	if !p.PollNow() {
		t.Fatal("first PollNow() = false, want true")
	}
	if p.PollNow() {
		t.Error("second PollNow() while in flight = true, want false")
	}
	if got := p.State(); got != Polling {
		t.Errorf("State() = %s, want POLLING", got)
	}

	close(feed.gate)
	p.Wait()

	feed.mu.Lock()
	calls, maxInFlight := len(feed.calls), feed.maxInFlight
	feed.mu.Unlock()
	if calls != 1 {
		t.Errorf("feed called %d times, want 1", calls)
	}
	if maxInFlight != 1 {
		t.Errorf("max in flight = %d, want 1", maxInFlight)
	}
	if got := p.State(); got != Idle {
		t.Errorf("State() = %s, want IDLE", got)
	}
}

func TestPoll_TicksNeverOverlap(t *testing.T) {
	feed := &fakeFeed{events: events(1, 2, 3), gate: make(chan struct{})}
	cfg := testConfig()
	cfg.Interval = 5 * time.Millisecond
	p := New(feed, &recordingDispatcher{}, cfg)
	if err := p.Start(1, 0); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	// Let many ticks fire against one blocked request.
	time.Sleep(100 * time.Millisecond)
	close(feed.gate)
	time.Sleep(50 * time.Millisecond)
	p.Stop()
	p.Wait()

	feed.mu.Lock()
	defer feed.mu.Unlock()
	if feed.maxInFlight != 1 {
		t.Errorf("max in flight = %d, want 1", feed.maxInFlight)
	}
	if len(feed.calls) < 2 {
		t.Errorf("feed called %d times, want ticks to keep polling", len(feed.calls))
	}
}

func TestPoll_TruncatedPageFollowsUp(t *testing.T) {
	feed := &fakeFeed{events: events(1, 2, 3, 4, 5), pageSize: 2}
	dispatch := &recordingDispatcher{}
	p := New(feed, dispatch, testConfig())
	if err := p.Start(1, 0); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	defer p.Stop()

	p.PollNow()
	p.Wait()

	if got := feed.sinceValues(); !equalIDs(got, []int64{0, 2, 4}) {
		t.Errorf("since values = %v, want [0 2 4]", got)
	}
	if got := dispatch.ids(); !equalIDs(got, []int64{1, 2, 3, 4, 5}) {
		t.Errorf("dispatched %v, want [1 2 3 4 5]", got)
	}
	if got := p.Cursor(); got != 5 {
		t.Errorf("Cursor() = %d, want 5", got)
	}
}

func TestPoll_FollowUpLimit(t *testing.T) {
	feed := &fakeFeed{events: events(1, 2, 3, 4, 5), pageSize: 1}
	cfg := testConfig()
	cfg.MaxFollowUps = 1
	p := New(feed, &recordingDispatcher{}, cfg)
	if err := p.Start(1, 0); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	defer p.Stop()

	p.PollNow()
	p.Wait()

	if got := len(feed.sinceValues()); got != 2 {
		t.Errorf("feed called %d times, want 2", got)
	}
	if got := p.Cursor(); got != 2 {
		t.Errorf("Cursor() = %d, want 2", got)
	}
}

func TestPoll_SkippedEventsAdvanceCursor(t *testing.T) {
	feed := &fakeFeed{
		events:  events(1),
		skipped: []client.SkippedEvent{{ID: 2, Type: "TASK_ARCHIVED"}},
	}
	dispatch := &recordingDispatcher{}
	p := New(feed, dispatch, testConfig())
	if err := p.Start(1, 0); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	defer p.Stop()

	p.PollNow()
	p.Wait()

	if got := dispatch.ids(); !equalIDs(got, []int64{1}) {
		t.Errorf("dispatched %v, want [1]", got)
	}
	if got := p.Cursor(); got != 2 {
		t.Errorf("Cursor() = %d, want 2", got)
	}
}

func TestStop_ResetsCursorAndDiscardsInFlight(t *testing.T) {
	feed := &fakeFeed{events: events(1, 2), gate: make(chan struct{})}
	dispatch := &recordingDispatcher{}
	p := New(feed, dispatch, testConfig())
	if err := p.Start(1, 0); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	state := p.Session()

	p.PollNow()
	p.Stop()
	if got := p.State(); got != Stopped {
		t.Errorf("State() = %s, want STOPPED", got)
	}
	close(feed.gate)
	p.Wait()

	if got := dispatch.ids(); len(got) != 0 {
		t.Errorf("dispatched %v after Stop, want none", got)
	}
	if state.Cursor() != 0 {
		t.Errorf("stopped session cursor = %d, want 0", state.Cursor())
	}
	if p.PollNow() {
		t.Error("PollNow() while stopped = true, want false")
	}

	feed.mu.Lock()
	feed.gate = nil
	feed.mu.Unlock()
	if err := p.Start(1, 0); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	defer p.Stop()
	if p.Session().SessionID == state.SessionID {
		t.Error("restart reused the session id")
	}
	if got := p.Cursor(); got != 0 {
		t.Errorf("Cursor() after restart = %d, want 0", got)
	}
}

func TestPoll_TagsEventsWithStartGeneration(t *testing.T) {
	feed := &fakeFeed{events: events(1, 2)}
	dispatch := &recordingDispatcher{gen: 3}
	p := New(feed, dispatch, testConfig())
	if err := p.Start(1, 0); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	defer p.Stop()

	// A later session bumps the generation while this one still polls.
	dispatch.mu.Lock()
	dispatch.gen = 4
	dispatch.mu.Unlock()

	p.PollNow()
	p.Wait()

	dispatch.mu.Lock()
	defer dispatch.mu.Unlock()
	if len(dispatch.gens) != 2 {
		t.Fatalf("dispatched %d events, want 2", len(dispatch.gens))
	}
	for i, gen := range dispatch.gens {
		if gen != 3 {
			t.Errorf("event %d generation = %d, want 3", i, gen)
		}
	}
}

func TestStart_Twice(t *testing.T) {
	p := New(&fakeFeed{}, &recordingDispatcher{}, testConfig())
	if err := p.Start(1, 0); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	defer p.Stop()

	if err := p.Start(1, 0); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start() err = %v, want ErrAlreadyStarted", err)
	}
}

func TestSyncState_AdvanceIsMonotonic(t *testing.T) {
	s := NewSyncState(1, 10)
	s.advance(7)
	if got := s.Cursor(); got != 10 {
		t.Errorf("Cursor() = %d, want 10", got)
	}
	s.advance(12)
	if got := s.Cursor(); got != 12 {
		t.Errorf("Cursor() = %d, want 12", got)
	}
}

func TestSetInterval(t *testing.T) {
	feed := &fakeFeed{events: events(1)}
	p := New(feed, &recordingDispatcher{}, testConfig())
	if err := p.Start(1, 0); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	defer p.Stop()

	p.SetInterval(5 * time.Millisecond)

	deadline := time.Now().Add(2 * time.Second)
	for len(feed.sinceValues()) < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := len(feed.sinceValues()); got < 2 {
		t.Errorf("feed called %d times after SetInterval, want >= 2", got)
	}
}
