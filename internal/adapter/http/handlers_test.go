package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	odhttp "github.com/opsdesk/opsdesk/internal/adapter/http"
	"github.com/opsdesk/opsdesk/internal/audit"
	"github.com/opsdesk/opsdesk/internal/authz"
	"github.com/opsdesk/opsdesk/internal/config"
	"github.com/opsdesk/opsdesk/internal/domain"
	"github.com/opsdesk/opsdesk/internal/domain/activity"
	"github.com/opsdesk/opsdesk/internal/domain/membership"
	"github.com/opsdesk/opsdesk/internal/domain/org"
	"github.com/opsdesk/opsdesk/internal/domain/user"
	"github.com/opsdesk/opsdesk/internal/middleware"
	"github.com/opsdesk/opsdesk/internal/port/database"
	"github.com/opsdesk/opsdesk/internal/port/messagequeue"
	"github.com/opsdesk/opsdesk/internal/service"
)

var _ database.Store = (*mockStore)(nil)

// mockStore implements database.Store for testing.
type mockStore struct {
	mu          sync.Mutex
	users       []user.User
	orgs        []org.Organization
	memberships []membership.Membership
}

func (m *mockStore) CreateUser(_ context.Context, u *user.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return domain.ErrConflict
		}
	}
	m.users = append(m.users, *u)
	return nil
}

func (m *mockStore) GetUser(_ context.Context, id string) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.users {
		if m.users[i].ID == id {
			u := m.users[i]
			return &u, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) GetUserByEmail(_ context.Context, email string) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.users {
		if m.users[i].Email == email {
			u := m.users[i]
			return &u, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) UpdateUser(_ context.Context, u *user.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.users {
		if m.users[i].ID == u.ID {
			m.users[i] = *u
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *mockStore) ListUsers(_ context.Context) ([]user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]user.User(nil), m.users...), nil
}

func (m *mockStore) CreateOrganization(_ context.Context, o *org.Organization) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.orgs {
		if existing.Slug == o.Slug {
			return domain.ErrConflict
		}
	}
	m.orgs = append(m.orgs, *o)
	return nil
}

func (m *mockStore) GetOrganization(_ context.Context, id string) (*org.Organization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.orgs {
		if m.orgs[i].ID == id {
			o := m.orgs[i]
			return &o, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) ListOrganizations(_ context.Context) ([]org.Organization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]org.Organization(nil), m.orgs...), nil
}

func (m *mockStore) ListOrganizationsByIDs(_ context.Context, ids []string) ([]org.Organization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
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
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.orgs {
		if m.orgs[i].ID == o.ID {
			m.orgs[i] = *o
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *mockStore) CreateMembership(_ context.Context, mb *membership.Membership) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.memberships = append(m.memberships, *mb)
	return nil
}

func (m *mockStore) GetMembership(_ context.Context, id string) (*membership.Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.memberships {
		if m.memberships[i].ID == id {
			mb := m.memberships[i]
			return &mb, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) GetActiveMembership(_ context.Context, userID, organizationID string) (*membership.Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.memberships {
		mb := m.memberships[i]
		if mb.UserID == userID && mb.OrganizationID == organizationID && mb.Active {
			return &mb, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) ListActiveMembershipsForUser(_ context.Context, userID string) ([]membership.Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []membership.Membership
	for _, mb := range m.memberships {
		if mb.UserID == userID && mb.Active {
			out = append(out, mb)
		}
	}
	return out, nil
}

func (m *mockStore) ListMembers(_ context.Context, organizationID string, role membership.Role) ([]membership.Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []membership.Membership
	for _, mb := range m.memberships {
		if mb.OrganizationID == organizationID && mb.Active && (role == "" || mb.Role == role) {
			out = append(out, mb)
		}
	}
	return out, nil
}

func (m *mockStore) UpdateMembership(_ context.Context, mb *membership.Membership) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.memberships {
		if m.memberships[i].ID == mb.ID {
			m.memberships[i] = *mb
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *mockStore) CountActiveMembers(_ context.Context, organizationID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, mb := range m.memberships {
		if mb.OrganizationID == organizationID && mb.Active {
			n++
		}
	}
	return n, nil
}

// mockAuditStore implements auditstore.Store for testing.
type mockAuditStore struct {
	mu      sync.Mutex
	entries []activity.Entry
}

func (s *mockAuditStore) Insert(_ context.Context, e *activity.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, *e)
	return nil
}

func (s *mockAuditStore) List(_ context.Context, _ activity.Filter) ([]activity.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]activity.Entry(nil), s.entries...), nil
}

func (s *mockAuditStore) Count(_ context.Context, _ activity.Filter) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.entries)), nil
}

func (s *mockAuditStore) Summarize(_ context.Context, _ int) (*activity.Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &activity.Summary{Total: int64(len(s.entries))}, nil
}

// mockQueue implements messagequeue.Queue; connected is toggled by the
// readiness tests.
type mockQueue struct {
	mu        sync.Mutex
	connected bool
	published int
}

func (q *mockQueue) Publish(_ context.Context, _ string, _ []byte) error {
	q.mu.Lock()
	q.published++
	q.mu.Unlock()
	return nil
}

func (q *mockQueue) Subscribe(_ context.Context, _ string, _ messagequeue.Handler) (func(), error) {
	return func() {}, nil
}

func (q *mockQueue) Drain() error { return nil }
func (q *mockQueue) Close() error { return nil }

func (q *mockQueue) IsConnected() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.connected
}

// mockPinger stands in for the connection pool on the readiness endpoint.
type mockPinger struct {
	err error
}

func (p *mockPinger) Ping(context.Context) error { return p.err }

type testEnv struct {
	router *chi.Mux
	store  *mockStore
	audit  *mockAuditStore
	queue  *mockQueue
	pinger *mockPinger
}

// newTestEnv wires real services over the mocks, with token auth enabled,
// the way main wires the production adapters.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := &mockStore{}
	auditStore := &mockAuditStore{}
	queue := &mockQueue{connected: true}
	pinger := &mockPinger{}

	cfg := &config.Auth{
		Enabled:        true,
		JWTSecret:      "test_secret",
		AccessTokenTTL: 15 * time.Minute,
		BcryptCost:     bcrypt.MinCost,
	}

	resolver := authz.NewResolver(store)
	gate := authz.NewGate(store)
	recorder := audit.NewRecorder(queue)

	authSvc := service.NewAuthService(store, recorder, cfg)
	orgSvc := service.NewOrgService(store, resolver, gate, recorder)
	memberSvc := service.NewMemberService(store, resolver, gate, recorder)
	activitySvc := service.NewActivityService(auditStore)

	handlers := odhttp.NewHandlers(authSvc, orgSvc, memberSvc, activitySvc, nil, pinger, queue)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestMeta)
	r.Use(middleware.Auth(authSvc, true))
	odhttp.MountRoutes(r, handlers, resolver)

	return &testEnv{router: r, store: store, audit: auditStore, queue: queue, pinger: pinger}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

// seedUser inserts a user directly and returns a valid access token.
func (e *testEnv) seedUser(t *testing.T, email string, super bool) (id, token string) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	id = "user-" + email
	if err := e.store.CreateUser(context.Background(), &user.User{
		ID:           id,
		Email:        email,
		Name:         email,
		PasswordHash: string(hash),
		Superuser:    super,
		Active:       true,
	}); err != nil {
		t.Fatalf("seed user: %v", err)
	}

	rec := e.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email":    email,
		"password": "password123",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("seed login for %s: status %d body %s", email, rec.Code, rec.Body.String())
	}
	var resp user.LoginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return id, resp.AccessToken
}

// seedOrg inserts an organization with the given admin member.
func (e *testEnv) seedOrg(t *testing.T, orgID, adminUserID string, maxUsers, maxStorage int) {
	t.Helper()
	if err := e.store.CreateOrganization(context.Background(), &org.Organization{
		ID:         orgID,
		Name:       orgID,
		Slug:       orgID,
		Email:      orgID + "@test.com",
		Status:     org.StatusActive,
		MaxUsers:   maxUsers,
		MaxStorage: maxStorage,
	}); err != nil {
		t.Fatalf("seed org: %v", err)
	}
	if err := e.store.CreateMembership(context.Background(), &membership.Membership{
		ID:             "m-" + orgID + "-" + adminUserID,
		UserID:         adminUserID,
		OrganizationID: orgID,
		Role:           membership.RoleAdmin,
		Active:         true,
	}); err != nil {
		t.Fatalf("seed membership: %v", err)
	}
}

var errDown = errors.New("connection refused")

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestReady_ReportsDependencies(t *testing.T) {
	env := newTestEnv(t)

	if rec := env.do(t, http.MethodGet, "/health/ready", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 when healthy, got %d", rec.Code)
	}

	env.queue.mu.Lock()
	env.queue.connected = false
	env.queue.mu.Unlock()
	if rec := env.do(t, http.MethodGet, "/health/ready", "", nil); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 with queue down, got %d", rec.Code)
	}

	env.queue.mu.Lock()
	env.queue.connected = true
	env.queue.mu.Unlock()
	env.pinger.err = errDown
	if rec := env.do(t, http.MethodGet, "/health/ready", "", nil); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 with database down, got %d", rec.Code)
	}
}

func TestRegister_NeverGrantsSuperuser(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]any{
		"email":     "sneaky@test.com",
		"name":      "Sneaky",
		"password":  "password123",
		"superuser": true,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body %s", rec.Code, rec.Body.String())
	}
	var u user.User
	if err := json.Unmarshal(rec.Body.Bytes(), &u); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if u.Superuser {
		t.Fatal("self-service registration must not grant superuser")
	}
}

func TestRegister_DuplicateEmailConflicts(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "alice@test.com", false)

	rec := env.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]any{
		"email":    "alice@test.com",
		"name":     "Alice Again",
		"password": "password123",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestLogin_BadCredentials(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "alice@test.com", false)

	rec := env.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email":    "alice@test.com",
		"password": "wrong",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAuth_MissingToken(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/orgs", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a token, got %d", rec.Code)
	}
}

func TestAuth_GarbageToken(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/orgs", "not.a.token", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a garbage token, got %d", rec.Code)
	}
}

func TestMe(t *testing.T) {
	env := newTestEnv(t)
	id, token := env.seedUser(t, "alice@test.com", false)

	rec := env.do(t, http.MethodGet, "/api/v1/auth/me", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["id"] != id {
		t.Fatalf("expected principal %s, got %v", id, body["id"])
	}
}

func TestOrgCreate_AndGet(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.seedUser(t, "founder@test.com", false)

	rec := env.do(t, http.MethodPost, "/api/v1/orgs", token, map[string]any{
		"name":  "Acme Corp",
		"email": "ops@acme.test",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body %s", rec.Code, rec.Body.String())
	}
	var o org.Organization
	if err := json.Unmarshal(rec.Body.Bytes(), &o); err != nil {
		t.Fatalf("decode: %v", err)
	}

	// The founder can read it back.
	rec = env.do(t, http.MethodGet, "/api/v1/orgs/"+o.ID, token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	// An outsider cannot.
	_, outsider := env.seedUser(t, "outsider@test.com", false)
	rec = env.do(t, http.MethodGet, "/api/v1/orgs/"+o.ID, outsider, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for outsider, got %d", rec.Code)
	}
}

func TestOrgCreate_ValidationError(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.seedUser(t, "founder@test.com", false)

	rec := env.do(t, http.MethodPost, "/api/v1/orgs", token, map[string]any{"email": "ops@acme.test"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestOrgList_ScopedPerPrincipal(t *testing.T) {
	env := newTestEnv(t)
	aliceID, aliceToken := env.seedUser(t, "alice@test.com", false)
	_, bobToken := env.seedUser(t, "bob@test.com", false)
	env.seedOrg(t, "org-alice", aliceID, 0, 0)

	var orgs []org.Organization
	rec := env.do(t, http.MethodGet, "/api/v1/orgs", aliceToken, nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &orgs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(orgs) != 1 {
		t.Fatalf("alice must see her org, got %d", len(orgs))
	}

	rec = env.do(t, http.MethodGet, "/api/v1/orgs", bobToken, nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &orgs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(orgs) != 0 {
		t.Fatalf("bob must see nothing, got %d", len(orgs))
	}
}

func TestOrgUpdate_RequiresAdmin(t *testing.T) {
	env := newTestEnv(t)
	adminID, adminToken := env.seedUser(t, "admin@test.com", false)
	devID, devToken := env.seedUser(t, "dev@test.com", false)
	env.seedOrg(t, "org-1", adminID, 0, 0)
	_ = env.store.CreateMembership(context.Background(), &membership.Membership{
		ID: "m-dev", UserID: devID, OrganizationID: "org-1", Role: membership.RoleDeveloper, Active: true,
	})

	rec := env.do(t, http.MethodPatch, "/api/v1/orgs/org-1", devToken, map[string]string{"name": "Hijacked"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for developer, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodPatch, "/api/v1/orgs/org-1", adminToken, map[string]string{"name": "Renamed"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d body %s", rec.Code, rec.Body.String())
	}
}

func TestAddStorage_QuotaExceededIs402(t *testing.T) {
	env := newTestEnv(t)
	adminID, token := env.seedUser(t, "admin@test.com", false)
	env.seedOrg(t, "org-1", adminID, 0, 100)

	rec := env.do(t, http.MethodPost, "/api/v1/orgs/org-1/storage", token, map[string]int{"add_mb": 60})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body %s", rec.Code, rec.Body.String())
	}
	rec = env.do(t, http.MethodPost, "/api/v1/orgs/org-1/storage", token, map[string]int{"add_mb": 60})
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402 over quota, got %d", rec.Code)
	}
}

func TestMembers_OutsiderBlockedBeforeBody(t *testing.T) {
	env := newTestEnv(t)
	adminID, _ := env.seedUser(t, "admin@test.com", false)
	_, outsider := env.seedUser(t, "outsider@test.com", false)
	env.seedOrg(t, "org-1", adminID, 0, 0)

	rec := env.do(t, http.MethodGet, "/api/v1/orgs/org-1/members", outsider, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for outsider, got %d", rec.Code)
	}
}

func TestMembers_AddAndList(t *testing.T) {
	env := newTestEnv(t)
	adminID, adminToken := env.seedUser(t, "admin@test.com", false)
	newID, _ := env.seedUser(t, "new@test.com", false)
	env.seedOrg(t, "org-1", adminID, 0, 0)

	rec := env.do(t, http.MethodPost, "/api/v1/orgs/org-1/members", adminToken, map[string]string{
		"user_id": newID,
		"role":    "developer",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body %s", rec.Code, rec.Body.String())
	}

	var members []membership.Membership
	rec = env.do(t, http.MethodGet, "/api/v1/orgs/org-1/members", adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &members); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(members))
	}
}

func TestMembers_SeatQuotaIs402(t *testing.T) {
	env := newTestEnv(t)
	adminID, adminToken := env.seedUser(t, "admin@test.com", false)
	newID, _ := env.seedUser(t, "new@test.com", false)
	env.seedOrg(t, "org-1", adminID, 1, 0)

	rec := env.do(t, http.MethodPost, "/api/v1/orgs/org-1/members", adminToken, map[string]string{"user_id": newID})
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402 when seats are full, got %d", rec.Code)
	}
}

func TestMembers_DeactivateRevokesAccess(t *testing.T) {
	env := newTestEnv(t)
	adminID, adminToken := env.seedUser(t, "admin@test.com", false)
	devID, devToken := env.seedUser(t, "dev@test.com", false)
	env.seedOrg(t, "org-1", adminID, 0, 0)
	_ = env.store.CreateMembership(context.Background(), &membership.Membership{
		ID: "m-dev", UserID: devID, OrganizationID: "org-1", Role: membership.RoleDeveloper, Active: true,
	})

	if rec := env.do(t, http.MethodGet, "/api/v1/orgs/org-1", devToken, nil); rec.Code != http.StatusOK {
		t.Fatalf("member must read the org before removal, got %d", rec.Code)
	}

	rec := env.do(t, http.MethodDelete, "/api/v1/orgs/org-1/members/m-dev", adminToken, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d body %s", rec.Code, rec.Body.String())
	}

	if rec := env.do(t, http.MethodGet, "/api/v1/orgs/org-1", devToken, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("removed member must get 403, got %d", rec.Code)
	}
}

func TestActivity_SuperuserOnly(t *testing.T) {
	env := newTestEnv(t)
	_, regular := env.seedUser(t, "alice@test.com", false)
	_, root := env.seedUser(t, "root@test.com", true)

	if rec := env.do(t, http.MethodGet, "/api/v1/activity", regular, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for regular user, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/api/v1/activity", root, nil); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for superuser, got %d body %s", rec.Code, rec.Body.String())
	}
	if rec := env.do(t, http.MethodGet, "/api/v1/activity/summary", root, nil); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 summary, got %d", rec.Code)
	}
}

func TestActivity_BadQueryParams(t *testing.T) {
	env := newTestEnv(t)
	_, root := env.seedUser(t, "root@test.com", true)

	if rec := env.do(t, http.MethodGet, "/api/v1/activity?since=yesterday", root, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad since, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/api/v1/activity?limit=many", root, nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", rec.Code)
	}
}

func TestMutationsPublishChangeEvents(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.seedUser(t, "founder@test.com", false)

	before := func() int {
		env.queue.mu.Lock()
		defer env.queue.mu.Unlock()
		return env.queue.published
	}()

	rec := env.do(t, http.MethodPost, "/api/v1/orgs", token, map[string]any{
		"name":  "Acme Corp",
		"email": "ops@acme.test",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	env.queue.mu.Lock()
	after := env.queue.published
	env.queue.mu.Unlock()
	if after <= before {
		t.Fatal("organization creation must publish change events")
	}
}

func TestInvalidJSONBody(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed JSON, got %d", rec.Code)
	}
}

func TestVersionEndpoint(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.seedUser(t, "alice@test.com", false)

	rec := env.do(t, http.MethodGet, "/api/v1/", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("version")) {
		t.Fatalf("expected version payload, got %s", rec.Body.String())
	}
}
