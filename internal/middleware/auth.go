package middleware

import (
	"net/http"
	"strings"

	"github.com/opsdesk/opsdesk/internal/domain/principal"
	"github.com/opsdesk/opsdesk/internal/service"
)

// publicPaths are exempt from authentication.
var publicPaths = map[string]bool{
	"/health":               true,
	"/health/ready":         true,
	"/api/v1/auth/login":    true,
	"/api/v1/auth/register": true,
}

// Auth returns middleware that validates bearer token credentials and
// stores the resulting principal in the request context.
// When authEnabled is false, a default superuser context is injected.
func Auth(authSvc *service.AuthService, authEnabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// When auth is disabled, inject a default superuser context.
			if !authEnabled {
				p := &principal.Principal{
					ID:        "00000000-0000-0000-0000-000000000000",
					Email:     "admin@localhost",
					Name:      "Admin",
					Superuser: true,
					Active:    true,
				}
				next.ServeHTTP(w, r.WithContext(principal.NewContext(r.Context(), p)))
				return
			}

			// Skip auth for public paths.
			if publicPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, `{"error":"authorization required"}`, http.StatusUnauthorized)
				return
			}

			token := strings.TrimPrefix(authHeader, "Bearer ")
			if token == authHeader {
				http.Error(w, `{"error":"invalid authorization header"}`, http.StatusUnauthorized)
				return
			}

			p, err := authSvc.ValidateAccessToken(token)
			if err != nil {
				http.Error(w, `{"error":"invalid or expired token"}`, http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(principal.NewContext(r.Context(), p)))
		})
	}
}
