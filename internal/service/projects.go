package service

import (
	"context"
	"errors"

	"github.com/taskfeed/taskfeed/internal/db"
	"github.com/taskfeed/taskfeed/internal/schema"
)

// CreateProject creates a project owned by userID.
func (s *Service) CreateProject(ctx context.Context, userID int64, name, description string) (*schema.Project, error) {
	if _, err := s.requireUser(ctx, userID); err != nil {
		return nil, err
	}
	p := schema.Project{Name: name, Description: description}
	if err := p.Validate(); err != nil {
		return nil, invalid("%v", err)
	}

	created, err := s.db.CreateProject(ctx, userID, name, description)
	if err != nil {
		return nil, err
	}

	s.recorder.Record(ctx, schema.ProjectCreated, created.ID, created.ID)
	return created, nil
}

// ListProjects returns the projects userID owns or belongs to.
func (s *Service) ListProjects(ctx context.Context, userID int64) ([]*schema.Project, error) {
	if _, err := s.requireUser(ctx, userID); err != nil {
		return nil, err
	}
	return s.db.ListProjectsForUser(ctx, userID)
}

// GetProject returns a project the caller is a member of.
func (s *Service) GetProject(ctx context.Context, userID, projectID int64) (*schema.Project, error) {
	p, err := s.db.GetProject(ctx, projectID)
	if err != nil {
		return nil, translate(err, "project")
	}
	if _, err := s.requireMembership(ctx, projectID, userID); err != nil {
		return nil, err
	}
	return p, nil
}

// UpdateProject renames a project. Only the owner may update it.
func (s *Service) UpdateProject(ctx context.Context, userID, projectID int64, name, description string) (*schema.Project, error) {
	p := schema.Project{Name: name, Description: description}
	if err := p.Validate(); err != nil {
		return nil, invalid("%v", err)
	}
	if err := s.requireOwner(ctx, projectID, userID, "update project"); err != nil {
		return nil, err
	}

	updated, err := s.db.UpdateProject(ctx, projectID, name, description)
	if err != nil {
		return nil, translate(err, "project")
	}

	s.recorder.Record(ctx, schema.ProjectUpdated, projectID, projectID)
	return updated, nil
}

// DeleteProject removes a project with its tasks and members. Only the
// owner may delete it.
func (s *Service) DeleteProject(ctx context.Context, userID, projectID int64) error {
	if err := s.requireOwner(ctx, projectID, userID, "delete project"); err != nil {
		return err
	}
	if err := s.db.DeleteProject(ctx, projectID); err != nil {
		return translate(err, "project")
	}

	s.recorder.Record(ctx, schema.ProjectDeleted, projectID, projectID)
	return nil
}

// AddMember adds the user identified by username, email or id as a MEMBER.
// Only the owner may add members.
func (s *Service) AddMember(ctx context.Context, userID, projectID int64, usernameOrEmail string) (*schema.Member, error) {
	if err := s.requireOwner(ctx, projectID, userID, "add members"); err != nil {
		return nil, err
	}

	target, err := s.db.FindUser(ctx, usernameOrEmail)
	if err != nil {
		return nil, translate(err, "target user")
	}
	if _, err := s.db.GetMembership(ctx, projectID, target.ID); err == nil {
		return nil, invalid("user is already a member of this project")
	} else if !errors.Is(err, db.ErrNotFound) {
		return nil, err
	}

	m, err := s.db.AddMember(ctx, projectID, target.ID, schema.RoleMember)
	if err != nil {
		return nil, err
	}

	s.recorder.Record(ctx, schema.ProjectMembersUpdated, projectID, projectID)
	return m, nil
}

// ListMembers returns a project's membership list to one of its members.
func (s *Service) ListMembers(ctx context.Context, userID, projectID int64) ([]*schema.Member, error) {
	if _, err := s.db.GetProject(ctx, projectID); err != nil {
		return nil, translate(err, "project")
	}
	if _, err := s.requireMembership(ctx, projectID, userID); err != nil {
		return nil, err
	}
	return s.db.ListMembers(ctx, projectID)
}

// RemoveMember removes a member. Only the owner may remove members and the
// owner cannot be removed.
func (s *Service) RemoveMember(ctx context.Context, userID, projectID, memberUserID int64) error {
	if err := s.requireOwner(ctx, projectID, userID, "remove members"); err != nil {
		return err
	}
	if memberUserID == userID {
		return invalid("cannot remove project owner")
	}
	if err := s.db.RemoveMember(ctx, projectID, memberUserID); err != nil {
		return translate(err, "member")
	}

	s.recorder.Record(ctx, schema.ProjectMembersUpdated, projectID, projectID)
	return nil
}

// requireOwner checks that the project exists and userID owns it.
func (s *Service) requireOwner(ctx context.Context, projectID, userID int64, action string) error {
	p, err := s.db.GetProject(ctx, projectID)
	if err != nil {
		return translate(err, "project")
	}
	if p.OwnerID != userID {
		return forbidden("only project owner can %s", action)
	}
	return nil
}
