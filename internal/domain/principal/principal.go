// Package principal defines the authenticated-actor identity consumed by the
// authorization core. Principals are produced by the auth middleware; the
// core treats them as read-only per-request input.
package principal

import "context"

// Principal is an authenticated actor making a request.
type Principal struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Superuser bool   `json:"superuser"` // global override: bypasses all membership checks
	Active    bool   `json:"active"`
}

type ctxKey struct{}

// NewContext returns a context carrying the given principal.
func NewContext(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// FromContext returns the principal stored in ctx, or nil when the request
// is unauthenticated (system or background origin).
func FromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(ctxKey{}).(*Principal)
	return p
}
