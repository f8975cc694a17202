package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/opsdesk/opsdesk/internal/audit"
	"github.com/opsdesk/opsdesk/internal/authz"
	"github.com/opsdesk/opsdesk/internal/config"
	"github.com/opsdesk/opsdesk/internal/domain"
	"github.com/opsdesk/opsdesk/internal/domain/activity"
	"github.com/opsdesk/opsdesk/internal/domain/membership"
	"github.com/opsdesk/opsdesk/internal/domain/org"
	"github.com/opsdesk/opsdesk/internal/domain/principal"
	"github.com/opsdesk/opsdesk/internal/domain/user"
	"github.com/opsdesk/opsdesk/internal/port/database"
	"github.com/opsdesk/opsdesk/internal/port/messagequeue"
)

// Ensure the mocks implement their ports at compile time.
var (
	_ database.Store     = (*mockStore)(nil)
	_ messagequeue.Queue = (*captureQueue)(nil)
)

// mockStore is a minimal in-memory implementation of database.Store for testing.
type mockStore struct {
	users       []user.User
	orgs        []org.Organization
	memberships []membership.Membership

	// Error hooks — set these to inject failures.
	createUserErr       error
	createOrgErr        error
	updateOrgErr        error
	createMembershipErr error
	updateMembershipErr error
}

func (m *mockStore) CreateUser(_ context.Context, u *user.User) error {
	if m.createUserErr != nil {
		return m.createUserErr
	}
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
	if m.createOrgErr != nil {
		return m.createOrgErr
	}
	m.orgs = append(m.orgs, *o)
	return nil
}

func (m *mockStore) GetOrganization(_ context.Context, id string) (*org.Organization, error) {
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
	if m.updateOrgErr != nil {
		return m.updateOrgErr
	}
	for i := range m.orgs {
		if m.orgs[i].ID == o.ID {
			m.orgs[i] = *o
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *mockStore) CreateMembership(_ context.Context, mb *membership.Membership) error {
	if m.createMembershipErr != nil {
		return m.createMembershipErr
	}
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
	for i := range m.memberships {
		mb := &m.memberships[i]
		if mb.UserID == userID && mb.OrganizationID == organizationID && mb.Active {
			return mb, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) ListActiveMembershipsForUser(_ context.Context, userID string) ([]membership.Membership, error) {
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
	if m.updateMembershipErr != nil {
		return m.updateMembershipErr
	}
	for i := range m.memberships {
		if m.memberships[i].ID == mb.ID {
			m.memberships[i] = *mb
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *mockStore) CountActiveMembers(_ context.Context, organizationID string) (int, error) {
	n := 0
	for _, mb := range m.memberships {
		if mb.OrganizationID == organizationID && mb.Active {
			n++
		}
	}
	return n, nil
}

// captureQueue records published change events so tests can assert on the
// audit trail a service emits.
type captureQueue struct {
	mu     sync.Mutex
	events []activity.ChangeEvent
}

func (q *captureQueue) Publish(_ context.Context, _ string, data []byte) error {
	var ev activity.ChangeEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return err
	}
	q.mu.Lock()
	q.events = append(q.events, ev)
	q.mu.Unlock()
	return nil
}

func (q *captureQueue) Subscribe(_ context.Context, _ string, _ messagequeue.Handler) (func(), error) {
	return func() {}, nil
}

func (q *captureQueue) Drain() error      { return nil }
func (q *captureQueue) Close() error      { return nil }
func (q *captureQueue) IsConnected() bool { return true }

func (q *captureQueue) kinds() []activity.Kind {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]activity.Kind, 0, len(q.events))
	for _, ev := range q.events {
		out = append(out, ev.Kind)
	}
	return out
}

// testAuthCfg uses the minimum bcrypt cost to keep the suite fast.
func testAuthCfg() *config.Auth {
	return &config.Auth{
		Enabled:        true,
		JWTSecret:      "test_secret",
		AccessTokenTTL: 15 * time.Minute,
		BcryptCost:     bcrypt.MinCost,
	}
}

func hashPassword(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return string(hash)
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

// newTestServices wires all services over one mock store and one capture
// queue, the way main wires the real adapters.
func newTestServices(store *mockStore) (*OrgService, *MemberService, *authz.Resolver, *captureQueue) {
	queue := &captureQueue{}
	resolver := authz.NewResolver(store)
	gate := authz.NewGate(store)
	recorder := audit.NewRecorder(queue)
	return NewOrgService(store, resolver, gate, recorder),
		NewMemberService(store, resolver, gate, recorder),
		resolver, queue
}
