package schema

import (
	"fmt"
	"strings"
	"time"
)

// Member roles.
const (
	RoleOwner  = "OWNER"
	RoleMember = "MEMBER"
)

// User is a registered identity. Identity issuance lives outside this
// module; the server only needs a stable numeric id and a display name.
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Validate checks the fields required to register a user.
func (u *User) Validate() error {
	if strings.TrimSpace(u.Username) == "" {
		return fmt.Errorf("username is required")
	}
	if len(u.Username) > 50 {
		return fmt.Errorf("username must be 50 characters or less (got %d)", len(u.Username))
	}
	if len(u.Email) > 100 {
		return fmt.Errorf("email must be 100 characters or less (got %d)", len(u.Email))
	}
	return nil
}

// Project is the authoritative state of a project as served by the read API.
type Project struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	OwnerID       int64     `json:"ownerId"`
	OwnerUsername string    `json:"ownerUsername,omitempty"`
	Version       int64     `json:"version"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Validate checks user-editable project fields.
func (p *Project) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("project name is required")
	}
	if len(p.Name) > 100 {
		return fmt.Errorf("project name must be 100 characters or less (got %d)", len(p.Name))
	}
	if len(p.Description) > 500 {
		return fmt.Errorf("description must be 500 characters or less (got %d)", len(p.Description))
	}
	return nil
}

// Member is one row of a project's membership list.
type Member struct {
	ID        int64     `json:"id"`
	ProjectID int64     `json:"projectId"`
	UserID    int64     `json:"userId"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	JoinedAt  time.Time `json:"joinedAt"`
}

// IsOwner reports whether the member holds the OWNER role.
func (m *Member) IsOwner() bool {
	return strings.EqualFold(m.Role, RoleOwner)
}
