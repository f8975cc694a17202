package middleware

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/opsdesk/opsdesk/internal/authz"
	"github.com/opsdesk/opsdesk/internal/domain"
	"github.com/opsdesk/opsdesk/internal/domain/membership"
	"github.com/opsdesk/opsdesk/internal/domain/principal"
)

// RequireOrgRole returns middleware that resolves the caller's role in the
// organization named by the {orgID} URL parameter and rejects the request
// unless it satisfies the required role. Handlers behind it can still call
// the resolver themselves for operations needing a stricter role.
func RequireOrgRole(resolver *authz.Resolver, required membership.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			orgID := chi.URLParam(r, "orgID")
			if orgID == "" {
				http.Error(w, `{"error":"organization id required"}`, http.StatusBadRequest)
				return
			}

			p := principal.FromContext(r.Context())
			if err := resolver.Authorize(r.Context(), p, orgID, required); err != nil {
				switch {
				case errors.Is(err, domain.ErrNotAuthenticated):
					http.Error(w, `{"error":"authorization required"}`, http.StatusUnauthorized)
				default:
					http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
				}
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
