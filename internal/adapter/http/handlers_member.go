package http

import (
	"net/http"

	"github.com/opsdesk/opsdesk/internal/domain/membership"
	"github.com/opsdesk/opsdesk/internal/domain/principal"
)

// AddMember handles POST /api/v1/orgs/{orgID}/members
func (h *Handlers) AddMember(w http.ResponseWriter, r *http.Request) {
	p := principal.FromContext(r.Context())
	req, ok := readJSON[membership.CreateRequest](w, r)
	if !ok {
		return
	}

	m, err := h.Members.Add(r.Context(), p, urlParam(r, "orgID"), &req)
	if err != nil {
		h.writeDomainError(w, r, err, "member not found")
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// UpdateMember handles PATCH /api/v1/orgs/{orgID}/members/{memberID}
func (h *Handlers) UpdateMember(w http.ResponseWriter, r *http.Request) {
	p := principal.FromContext(r.Context())
	req, ok := readJSON[membership.UpdateRequest](w, r)
	if !ok {
		return
	}

	m, err := h.Members.Update(r.Context(), p, urlParam(r, "orgID"), urlParam(r, "memberID"), req)
	if err != nil {
		h.writeDomainError(w, r, err, "member not found")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// DeactivateMember handles DELETE /api/v1/orgs/{orgID}/members/{memberID}
func (h *Handlers) DeactivateMember(w http.ResponseWriter, r *http.Request) {
	p := principal.FromContext(r.Context())

	if err := h.Members.Deactivate(r.Context(), p, urlParam(r, "orgID"), urlParam(r, "memberID")); err != nil {
		h.writeDomainError(w, r, err, "member not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListMembers handles GET /api/v1/orgs/{orgID}/members
func (h *Handlers) ListMembers(w http.ResponseWriter, r *http.Request) {
	p := principal.FromContext(r.Context())
	role := membership.Role(r.URL.Query().Get("role"))

	members, err := h.Members.List(r.Context(), p, urlParam(r, "orgID"), role)
	if err != nil {
		h.writeDomainError(w, r, err, "member not found")
		return
	}
	writeJSON(w, http.StatusOK, members)
}
