// Package database defines the database store port (interface).
package database

import (
	"context"

	"github.com/opsdesk/opsdesk/internal/domain/membership"
	"github.com/opsdesk/opsdesk/internal/domain/org"
	"github.com/opsdesk/opsdesk/internal/domain/user"
)

// Store is the port interface for database operations. The authorization
// core reads memberships through it and never writes them; membership
// writes belong to the member-management service.
type Store interface {
	// Users
	CreateUser(ctx context.Context, u *user.User) error
	GetUser(ctx context.Context, id string) (*user.User, error)
	GetUserByEmail(ctx context.Context, email string) (*user.User, error)
	UpdateUser(ctx context.Context, u *user.User) error
	ListUsers(ctx context.Context) ([]user.User, error)

	// Organizations
	CreateOrganization(ctx context.Context, o *org.Organization) error
	GetOrganization(ctx context.Context, id string) (*org.Organization, error)
	ListOrganizations(ctx context.Context) ([]org.Organization, error)
	ListOrganizationsByIDs(ctx context.Context, ids []string) ([]org.Organization, error)
	UpdateOrganization(ctx context.Context, o *org.Organization) error

	// Memberships. Active-scoped reads never return deactivated rows;
	// deactivated memberships are retained for history, reachable only by
	// ID through GetMembership.
	CreateMembership(ctx context.Context, m *membership.Membership) error
	GetMembership(ctx context.Context, id string) (*membership.Membership, error)
	GetActiveMembership(ctx context.Context, userID, organizationID string) (*membership.Membership, error)
	ListActiveMembershipsForUser(ctx context.Context, userID string) ([]membership.Membership, error)
	// ListMembers returns active members; pass a role to restrict further.
	ListMembers(ctx context.Context, organizationID string, role membership.Role) ([]membership.Membership, error)
	UpdateMembership(ctx context.Context, m *membership.Membership) error
	CountActiveMembers(ctx context.Context, organizationID string) (int, error)
}
