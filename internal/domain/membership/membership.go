// Package membership defines organization roles, the role privilege
// hierarchy, and the membership relation between users and organizations.
package membership

import (
	"fmt"
	"time"

	"github.com/opsdesk/opsdesk/internal/domain"
)

// Role represents a user's authorization level within one organization.
type Role string

const (
	RoleAdmin          Role = "admin"
	RoleProjectManager Role = "project_manager"
	RoleVerifier       Role = "verifier"
	RoleSupport        Role = "support"
	RoleDeveloper      Role = "developer"
	RoleSalesperson    Role = "salesperson"
	RoleUser           Role = "user"
)

// DefaultRole is assigned when a user joins an organization without an
// explicit role.
const DefaultRole = RoleUser

// roleRank is the privilege hierarchy. Lower rank means more privileged;
// admin is rank 0. Comparisons go through Rank/Satisfies so a reordering of
// the constants above cannot silently change semantics.
var roleRank = map[Role]int{
	RoleAdmin:          0,
	RoleProjectManager: 1,
	RoleVerifier:       2,
	RoleSupport:        3,
	RoleDeveloper:      4,
	RoleSalesperson:    5,
	RoleUser:           6,
}

// AllRoles lists every valid role, most privileged first.
var AllRoles = []Role{
	RoleAdmin,
	RoleProjectManager,
	RoleVerifier,
	RoleSupport,
	RoleDeveloper,
	RoleSalesperson,
	RoleUser,
}

// Rank returns the privilege rank of r (0 = most privileged). Roles outside
// the hierarchy table return domain.ErrUnknownRole; callers must deny.
func Rank(r Role) (int, error) {
	rank, ok := roleRank[r]
	if !ok {
		return 0, fmt.Errorf("%w: %q", domain.ErrUnknownRole, r)
	}
	return rank, nil
}

// Valid reports whether r is a known role.
func Valid(r Role) bool {
	_, ok := roleRank[r]
	return ok
}

// Satisfies reports whether a user holding r meets a requirement of
// required: true iff r is at least as privileged. Unknown values on either
// side fail closed.
func Satisfies(r, required Role) bool {
	have, err := Rank(r)
	if err != nil {
		return false
	}
	want, err := Rank(required)
	if err != nil {
		return false
	}
	return have <= want
}

// ValidateHierarchy confirms the rank table covers exactly AllRoles with
// unique ranks. Called at startup so a table edit cannot ship half-applied.
func ValidateHierarchy() error {
	if len(roleRank) != len(AllRoles) {
		return fmt.Errorf("role hierarchy has %d entries, want %d", len(roleRank), len(AllRoles))
	}
	seen := make(map[int]Role, len(AllRoles))
	for _, r := range AllRoles {
		rank, ok := roleRank[r]
		if !ok {
			return fmt.Errorf("role %q missing from hierarchy table", r)
		}
		if prev, dup := seen[rank]; dup {
			return fmt.Errorf("roles %q and %q share rank %d", prev, r, rank)
		}
		seen[rank] = r
	}
	return nil
}

// Membership is the role a user holds within one organization. At most one
// membership exists per (user, organization) pair. Memberships are
// soft-deactivated, never hard-deleted, to preserve audit continuity.
type Membership struct {
	ID             string     `json:"id"`
	UserID         string     `json:"user_id"`
	OrganizationID string     `json:"organization_id"`
	Role           Role       `json:"role"`
	Active         bool       `json:"active"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	DeactivatedAt  *time.Time `json:"deactivated_at,omitempty"`
}

// CreateRequest is the input for adding a member to an organization.
type CreateRequest struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role,omitempty"`
}

// Validate checks the CreateRequest and applies the default role.
func (r *CreateRequest) Validate() error {
	if r.UserID == "" {
		return fmt.Errorf("%w: user_id is required", domain.ErrValidation)
	}
	if r.Role == "" {
		r.Role = DefaultRole
	}
	if !Valid(r.Role) {
		return fmt.Errorf("%w: invalid role %q", domain.ErrValidation, r.Role)
	}
	return nil
}

// UpdateRequest is the input for changing a member's role or active flag.
type UpdateRequest struct {
	Role   Role  `json:"role,omitempty"`
	Active *bool `json:"active,omitempty"`
}

// Validate checks the UpdateRequest.
func (r *UpdateRequest) Validate() error {
	if r.Role != "" && !Valid(r.Role) {
		return fmt.Errorf("%w: invalid role %q", domain.ErrValidation, r.Role)
	}
	if r.Role == "" && r.Active == nil {
		return fmt.Errorf("%w: nothing to update", domain.ErrValidation)
	}
	return nil
}
