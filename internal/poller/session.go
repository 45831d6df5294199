package poller

import (
	"context"
	"fmt"
	"log"
	"os"
)

// Reconciler is the view side of a session. *view.Reconciler implements it.
type Reconciler interface {
	Dispatcher
	Activate()
	Deactivate()
	FullReload(ctx context.Context) error
}

// Session ties login and logout to the poller and the view caches.
type Session struct {
	poller *Poller
	view   Reconciler
	logger *log.Logger
}

// NewSession creates a session manager.
func NewSession(p *Poller, view Reconciler, logger *log.Logger) *Session {
	if logger == nil {
		logger = log.New(os.Stderr, "[session] ", log.LstdFlags)
	}
	return &Session{
		poller: p,
		view:   view,
		logger: logger,
	}
}

// Login performs a full reload and starts polling for userID from cursor 0.
// The first polls replay the log; each replayed event refetches current
// state, so the reload and the replay converge.
func (s *Session) Login(ctx context.Context, userID int64) error {
	s.view.Activate()
	if err := s.view.FullReload(ctx); err != nil {
		s.view.Deactivate()
		return fmt.Errorf("initial reload failed: %w", err)
	}
	if err := s.poller.Start(userID, 0); err != nil {
		s.view.Deactivate()
		return err
	}

	s.logger.Printf("User %d logged in", userID)
	return nil
}

// Logout stops polling, resets the cursor and clears the caches.
func (s *Session) Logout() {
	s.poller.Stop()
	s.view.Deactivate()
	s.logger.Println("Logged out")
}

// Refresh reloads the caches and polls immediately. Errors are returned to
// the caller, unlike background poll failures.
func (s *Session) Refresh(ctx context.Context) error {
	if err := s.view.FullReload(ctx); err != nil {
		return fmt.Errorf("refresh failed: %w", err)
	}
	s.poller.PollNow()
	return nil
}

// Nudge reacts to a push notification by polling early.
func (s *Session) Nudge() {
	s.poller.PollNow()
}
