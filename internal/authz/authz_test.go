package authz

import (
	"context"
	"sync"
	"time"

	"github.com/opsdesk/opsdesk/internal/domain"
	"github.com/opsdesk/opsdesk/internal/domain/membership"
	"github.com/opsdesk/opsdesk/internal/domain/org"
	"github.com/opsdesk/opsdesk/internal/domain/principal"
	"github.com/opsdesk/opsdesk/internal/domain/user"
	"github.com/opsdesk/opsdesk/internal/port/database"
)

// Ensure mockStore implements database.Store at compile time.
var _ database.Store = (*mockStore)(nil)

// mockStore is a minimal in-memory implementation of database.Store for testing.
type mockStore struct {
	users       []user.User
	orgs        []org.Organization
	memberships []membership.Membership

	// Error hooks — set these to inject failures.
	getActiveMembershipErr error
	listMembershipsErr     error
	getOrgErr              error
	countMembersErr        error

	// Call counters for cache assertions.
	getActiveMembershipCalls int
	listMembershipsCalls     int
}

func (m *mockStore) CreateUser(_ context.Context, u *user.User) error {
	m.users = append(m.users, *u)
	return nil
}

func (m *mockStore) GetUser(_ context.Context, id string) (*user.User, error) {
	for i := range m.users {
		if m.users[i].ID == id {
			return &m.users[i], nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) GetUserByEmail(_ context.Context, email string) (*user.User, error) {
	for i := range m.users {
		if m.users[i].Email == email {
			return &m.users[i], nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) UpdateUser(_ context.Context, u *user.User) error {
	for i := range m.users {
		if m.users[i].ID == u.ID {
			m.users[i] = *u
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *mockStore) ListUsers(_ context.Context) ([]user.User, error) {
	return m.users, nil
}

func (m *mockStore) CreateOrganization(_ context.Context, o *org.Organization) error {
	m.orgs = append(m.orgs, *o)
	return nil
}

func (m *mockStore) GetOrganization(_ context.Context, id string) (*org.Organization, error) {
	if m.getOrgErr != nil {
		return nil, m.getOrgErr
	}
	for i := range m.orgs {
		if m.orgs[i].ID == id {
			return &m.orgs[i], nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) ListOrganizations(_ context.Context) ([]org.Organization, error) {
	return m.orgs, nil
}

func (m *mockStore) ListOrganizationsByIDs(_ context.Context, ids []string) ([]org.Organization, error) {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []org.Organization
	for _, o := range m.orgs {
		if want[o.ID] {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *mockStore) UpdateOrganization(_ context.Context, o *org.Organization) error {
	for i := range m.orgs {
		if m.orgs[i].ID == o.ID {
			m.orgs[i] = *o
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *mockStore) CreateMembership(_ context.Context, mb *membership.Membership) error {
	m.memberships = append(m.memberships, *mb)
	return nil
}

func (m *mockStore) GetMembership(_ context.Context, id string) (*membership.Membership, error) {
	for i := range m.memberships {
		if m.memberships[i].ID == id {
			return &m.memberships[i], nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) GetActiveMembership(_ context.Context, userID, organizationID string) (*membership.Membership, error) {
	m.getActiveMembershipCalls++
	if m.getActiveMembershipErr != nil {
		return nil, m.getActiveMembershipErr
	}
	for i := range m.memberships {
		mb := &m.memberships[i]
		if mb.UserID == userID && mb.OrganizationID == organizationID && mb.Active {
			return mb, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) ListActiveMembershipsForUser(_ context.Context, userID string) ([]membership.Membership, error) {
	m.listMembershipsCalls++
	if m.listMembershipsErr != nil {
		return nil, m.listMembershipsErr
	}
	var out []membership.Membership
	for _, mb := range m.memberships {
		if mb.UserID == userID && mb.Active {
			out = append(out, mb)
		}
	}
	return out, nil
}

func (m *mockStore) ListMembers(_ context.Context, organizationID string, role membership.Role) ([]membership.Membership, error) {
	var out []membership.Membership
	for _, mb := range m.memberships {
		if mb.OrganizationID == organizationID && mb.Active && (role == "" || mb.Role == role) {
			out = append(out, mb)
		}
	}
	return out, nil
}

func (m *mockStore) UpdateMembership(_ context.Context, mb *membership.Membership) error {
	for i := range m.memberships {
		if m.memberships[i].ID == mb.ID {
			m.memberships[i] = *mb
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *mockStore) CountActiveMembers(_ context.Context, organizationID string) (int, error) {
	if m.countMembersErr != nil {
		return 0, m.countMembersErr
	}
	n := 0
	for _, mb := range m.memberships {
		if mb.OrganizationID == organizationID && mb.Active {
			n++
		}
	}
	return n, nil
}

// memCache is an in-memory cache.Cache with TTL for resolver tests.
type memCache struct {
	mu      sync.Mutex
	entries map[string]memCacheEntry
}

type memCacheEntry struct {
	data    []byte
	expires time.Time
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string]memCacheEntry)}
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || time.Now().After(e.expires) {
		return nil, false, nil
	}
	return e.data, true, nil
}

func (c *memCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memCacheEntry{data: value, expires: time.Now().Add(ttl)}
	return nil
}

func (c *memCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

func activePrincipal(id string) *principal.Principal {
	return &principal.Principal{ID: id, Email: id + "@test.com", Active: true}
}

func superuser() *principal.Principal {
	return &principal.Principal{ID: "root", Email: "root@test.com", Superuser: true, Active: true}
}

func member(id, userID, orgID string, role membership.Role) membership.Membership {
	return membership.Membership{
		ID:             id,
		UserID:         userID,
		OrganizationID: orgID,
		Role:           role,
		Active:         true,
	}
}
