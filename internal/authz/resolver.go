// Package authz implements the organization-scoped authorization core: the
// permission resolver, the resource scope filter, and the quota gate.
package authz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/opsdesk/opsdesk/internal/domain"
	"github.com/opsdesk/opsdesk/internal/domain/membership"
	"github.com/opsdesk/opsdesk/internal/domain/principal"
	"github.com/opsdesk/opsdesk/internal/port/cache"
	"github.com/opsdesk/opsdesk/internal/port/database"
)

const (
	defaultStoreTimeout = 2 * time.Second
	defaultSnapshotTTL  = 5 * time.Second
)

// Resolver decides whether a principal may act on a resource belonging to a
// specific organization. It is a pure decision function over its inputs and
// a point-in-time snapshot of the membership store; it performs no writes
// and is safe for concurrent use.
type Resolver struct {
	store   database.Store
	cache   cache.Cache // optional short-TTL membership snapshot cache
	ttl     time.Duration
	timeout time.Duration
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithCache installs a short-TTL snapshot cache in front of the membership
// store. The TTL bounds how long a revoked membership can still authorize.
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(r *Resolver) {
		r.cache = c
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithStoreTimeout bounds every membership store read. On timeout the
// resolver denies rather than hangs.
func WithStoreTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// NewResolver creates a Resolver backed by the given membership store.
func NewResolver(store database.Store, opts ...Option) *Resolver {
	r := &Resolver{
		store:   store,
		ttl:     defaultSnapshotTTL,
		timeout: defaultStoreTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Authorize reports whether p may perform an action requiring the given role
// in the organization. A nil return means allow. Denials are one of
// domain.ErrNotAuthenticated, domain.ErrNotAuthorized, or
// domain.ErrUnknownRole; store failures deny (fail closed), never allow.
func (r *Resolver) Authorize(ctx context.Context, p *principal.Principal, organizationID string, required membership.Role) error {
	if p == nil || p.ID == "" {
		return domain.ErrNotAuthenticated
	}
	if !p.Active {
		return fmt.Errorf("principal %s is inactive: %w", p.ID, domain.ErrNotAuthenticated)
	}

	// The global override is the only blanket allow and must come before
	// every other check so it cannot be combined with another allow path.
	if p.Superuser {
		return nil
	}

	if !membership.Valid(required) {
		slog.Warn("authorize: required role not in hierarchy table", "role", required, "organization_id", organizationID)
		return fmt.Errorf("required role %q: %w", required, domain.ErrUnknownRole)
	}
	if organizationID == "" {
		return fmt.Errorf("no organization: %w", domain.ErrNotAuthorized)
	}

	m, err := r.activeMembership(ctx, p.ID, organizationID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("no active membership in organization %s: %w", organizationID, domain.ErrNotAuthorized)
		}
		// Store error or timeout: deny rather than guess.
		slog.Error("authorize: membership lookup failed, denying", "user_id", p.ID, "organization_id", organizationID, "error", err)
		return fmt.Errorf("membership lookup failed: %w", domain.ErrNotAuthorized)
	}

	if !membership.Valid(m.Role) {
		slog.Warn("authorize: membership carries unknown role", "user_id", p.ID, "organization_id", organizationID, "role", m.Role)
		return fmt.Errorf("membership role %q: %w", m.Role, domain.ErrUnknownRole)
	}

	if !membership.Satisfies(m.Role, required) {
		return fmt.Errorf("role %q does not satisfy %q: %w", m.Role, required, domain.ErrNotAuthorized)
	}
	return nil
}

// OrgIDsFor returns the IDs of every organization where p holds an active
// membership. Superusers return a nil slice with ok = false, meaning
// "unrestricted"; callers must not treat that as an empty allow set.
func (r *Resolver) OrgIDsFor(ctx context.Context, p *principal.Principal) (ids []string, restricted bool, err error) {
	if p == nil || p.ID == "" || !p.Active {
		return []string{}, true, nil
	}
	if p.Superuser {
		return nil, false, nil
	}
	ms, err := r.membershipsForUser(ctx, p.ID)
	if err != nil {
		slog.Error("scope: membership listing failed, returning empty set", "user_id", p.ID, "error", err)
		return []string{}, true, nil
	}
	ids = make([]string, 0, len(ms))
	for _, m := range ms {
		ids = append(ids, m.OrganizationID)
	}
	return ids, true, nil
}

// InvalidateUser drops cached membership snapshots for a user. Membership
// writers call this so role changes take effect within one request, not one
// TTL.
func (r *Resolver) InvalidateUser(ctx context.Context, userID string, organizationIDs ...string) {
	if r.cache == nil {
		return
	}
	_ = r.cache.Delete(ctx, membershipsKey(userID))
	for _, orgID := range organizationIDs {
		_ = r.cache.Delete(ctx, membershipKey(userID, orgID))
	}
}

func membershipKey(userID, orgID string) string {
	return "authz:m:" + userID + ":" + orgID
}

func membershipsKey(userID string) string {
	return "authz:ms:" + userID
}

// activeMembership reads one (user, organization) membership through the
// snapshot cache. Misses fall through to the store under the read timeout.
func (r *Resolver) activeMembership(ctx context.Context, userID, orgID string) (*membership.Membership, error) {
	key := membershipKey(userID, orgID)
	if r.cache != nil {
		if data, ok, err := r.cache.Get(ctx, key); err == nil && ok {
			var m membership.Membership
			if err := json.Unmarshal(data, &m); err == nil {
				return &m, nil
			}
		}
	}

	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	m, err := r.store.GetActiveMembership(cctx, userID, orgID)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		if data, err := json.Marshal(m); err == nil {
			_ = r.cache.Set(ctx, key, data, r.ttl)
		}
	}
	return m, nil
}

// membershipsForUser reads all active memberships for a user through the
// snapshot cache.
func (r *Resolver) membershipsForUser(ctx context.Context, userID string) ([]membership.Membership, error) {
	key := membershipsKey(userID)
	if r.cache != nil {
		if data, ok, err := r.cache.Get(ctx, key); err == nil && ok {
			var ms []membership.Membership
			if err := json.Unmarshal(data, &ms); err == nil {
				return ms, nil
			}
		}
	}

	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	ms, err := r.store.ListActiveMembershipsForUser(cctx, userID)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		if data, err := json.Marshal(ms); err == nil {
			_ = r.cache.Set(ctx, key, data, r.ttl)
		}
	}
	return ms, nil
}
