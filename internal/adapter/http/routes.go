package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/opsdesk/opsdesk/internal/authz"
	"github.com/opsdesk/opsdesk/internal/domain/membership"
	"github.com/opsdesk/opsdesk/internal/middleware"
)

// MountRoutes registers all API routes on the given chi router.
//
// Fine-grained role checks live in the service layer; the RequireOrgRole
// middleware on the members subtree is a membership pre-filter so outsiders
// get a 403 before any request body is read.
func MountRoutes(r chi.Router, h *Handlers, resolver *authz.Resolver) {
	r.Get("/health", h.Health)
	r.Get("/health/ready", h.Ready)

	r.Route("/api/v1", func(r chi.Router) {
		// Version
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		// Auth
		r.Post("/auth/register", h.RegisterUser)
		r.Post("/auth/login", h.Login)
		r.Post("/auth/logout", h.Logout)
		r.Get("/auth/me", h.Me)
		r.Post("/auth/change-password", h.ChangePassword)

		// Organizations
		r.Get("/orgs", h.ListOrganizations)
		r.Post("/orgs", h.RegisterOrganization)
		r.Get("/orgs/{orgID}", h.GetOrganization)
		r.Patch("/orgs/{orgID}", h.UpdateOrganization)
		r.Post("/orgs/{orgID}/storage", h.AddStorage)

		// Members (nested under an organization)
		r.Route("/orgs/{orgID}/members", func(r chi.Router) {
			r.Use(middleware.RequireOrgRole(resolver, membership.RoleUser))
			r.Get("/", h.ListMembers)
			r.Post("/", h.AddMember)
			r.Patch("/{memberID}", h.UpdateMember)
			r.Delete("/{memberID}", h.DeactivateMember)
		})

		// Activity feed
		r.Get("/activity", h.ListActivity)
		r.Get("/activity/recent", h.RecentActivity)
		r.Get("/activity/summary", h.ActivitySummary)
	})
}
