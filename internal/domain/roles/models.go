package roles

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrNameRequired = errors.New("role name is required")
	ErrRoleInUse    = errors.New("role is assigned to users")
)

// Role is an organization role, or a platform role when OrganizationID is
// empty.
type Role struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organizationId,omitempty"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	UserCount      int       `json:"userCount"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

func (r *Role) Normalize() error {
	r.Name = strings.TrimSpace(r.Name)
	r.Description = strings.TrimSpace(r.Description)
	if r.Name == "" {
		return ErrNameRequired
	}
	return nil
}
