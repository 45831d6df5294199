// Package service implements the tracker's mutation and read rules for
// users, projects, memberships and tasks.
//
// Every successful mutation records exactly one change event through the
// ChangeRecorder after the write has committed. Recording never affects the
// mutation's result.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/taskfeed/taskfeed/internal/db"
	"github.com/taskfeed/taskfeed/internal/schema"
)

var (
	// ErrValidation marks errors caused by bad caller input.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks errors for missing users, projects, members or tasks.
	ErrNotFound = errors.New("not found")
	// ErrForbidden marks errors where the caller lacks the required role.
	ErrForbidden = errors.New("forbidden")
)

// ChangeRecorder records one change event per successful mutation.
type ChangeRecorder interface {
	Record(ctx context.Context, typ schema.EventType, entityID, projectID int64) bool
}

// Service coordinates persistence and change recording.
type Service struct {
	db       *db.DB
	recorder ChangeRecorder
	logger   *log.Logger
}

// New creates a Service. If logger is nil, a default logger writing to
// stderr is used.
func New(database *db.DB, recorder ChangeRecorder, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.New(os.Stderr, "[service] ", log.LstdFlags)
	}
	return &Service{
		db:       database,
		recorder: recorder,
		logger:   logger,
	}
}

// invalid wraps a validation message.
func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// forbidden wraps a permission message.
func forbidden(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrForbidden, fmt.Sprintf(format, args...))
}

// translate maps persistence errors onto the service taxonomy.
func translate(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, db.ErrNotFound) {
		return fmt.Errorf("%w: %s not found", ErrNotFound, what)
	}
	return err
}

// RegisterUser creates a user.
func (s *Service) RegisterUser(ctx context.Context, username, email string) (*schema.User, error) {
	u := schema.User{Username: strings.TrimSpace(username), Email: strings.TrimSpace(email)}
	if err := u.Validate(); err != nil {
		return nil, invalid("%v", err)
	}
	if existing, err := s.db.FindUser(ctx, username); err == nil && existing.Username == u.Username {
		return nil, invalid("username %q is already taken", username)
	}
	return s.db.CreateUser(ctx, username, email)
}

// ListUsers returns all registered users.
func (s *Service) ListUsers(ctx context.Context) ([]*schema.User, error) {
	return s.db.ListUsers(ctx)
}

// requireUser checks that the acting user exists.
func (s *Service) requireUser(ctx context.Context, userID int64) (*schema.User, error) {
	u, err := s.db.GetUserByID(ctx, userID)
	return u, translate(err, "user")
}

// requireMembership checks that userID belongs to projectID.
func (s *Service) requireMembership(ctx context.Context, projectID, userID int64) (*schema.Member, error) {
	m, err := s.db.GetMembership(ctx, projectID, userID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, forbidden("user is not a member of this project")
	}
	return m, err
}
