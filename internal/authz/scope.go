package authz

import (
	"context"
	"log/slog"

	"github.com/opsdesk/opsdesk/internal/domain"
	"github.com/opsdesk/opsdesk/internal/domain/membership"
	"github.com/opsdesk/opsdesk/internal/domain/principal"
)

// Resource is any tenant-owned record. OrgID resolves the owning
// organization, directly or through the record's declared ownership chain;
// ok = false means the organization cannot be resolved and the record must
// be excluded from results (fail closed).
type Resource interface {
	OrgID() (id string, ok bool)
}

// Scope narrows items to the records the principal may access: those owned
// by an organization where the principal holds an active membership.
// Superusers see the input unchanged. A principal with no memberships, or a
// store failure, yields an empty slice — never an error and never an
// unfiltered result. Scope is idempotent and must run before any further
// query narrowing so later filters cannot re-expose excluded records.
func Scope[T Resource](ctx context.Context, r *Resolver, p *principal.Principal, items []T) []T {
	return scope(ctx, r, p, items, "", false)
}

// ScopeForRole additionally requires the principal's role in the owning
// organization to satisfy required (role-scoped views).
func ScopeForRole[T Resource](ctx context.Context, r *Resolver, p *principal.Principal, items []T, required membership.Role) []T {
	return scope(ctx, r, p, items, required, true)
}

func scope[T Resource](ctx context.Context, r *Resolver, p *principal.Principal, items []T, required membership.Role, roleScoped bool) []T {
	if p != nil && p.Active && p.Superuser {
		return items
	}

	out := []T{}
	if p == nil || p.ID == "" || !p.Active {
		return out
	}
	if roleScoped && !membership.Valid(required) {
		slog.Warn("scope: required role not in hierarchy table", "role", required)
		return out
	}

	ms, err := r.membershipsForUser(ctx, p.ID)
	if err != nil {
		slog.Error("scope: membership listing failed, returning empty set", "user_id", p.ID, "error", err)
		return out
	}
	roles := make(map[string]membership.Role, len(ms))
	for _, m := range ms {
		roles[m.OrganizationID] = m.Role
	}

	for _, item := range items {
		orgID, ok := item.OrgID()
		if !ok || orgID == "" {
			slog.Warn("scope: excluding record", "error", domain.ErrScopeResolution)
			continue
		}
		role, member := roles[orgID]
		if !member {
			continue
		}
		if roleScoped && !membership.Satisfies(role, required) {
			continue
		}
		out = append(out, item)
	}
	return out
}
