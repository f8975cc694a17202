package http

import (
	"net/http"

	"github.com/opsdesk/opsdesk/internal/domain/org"
	"github.com/opsdesk/opsdesk/internal/domain/principal"
)

// RegisterOrganization handles POST /api/v1/orgs
func (h *Handlers) RegisterOrganization(w http.ResponseWriter, r *http.Request) {
	p := principal.FromContext(r.Context())
	req, ok := readJSON[org.CreateRequest](w, r)
	if !ok {
		return
	}

	o, err := h.Orgs.Register(r.Context(), p, &req)
	if err != nil {
		h.writeDomainError(w, r, err, "organization not found")
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

// GetOrganization handles GET /api/v1/orgs/{orgID}
func (h *Handlers) GetOrganization(w http.ResponseWriter, r *http.Request) {
	p := principal.FromContext(r.Context())

	o, err := h.Orgs.Get(r.Context(), p, urlParam(r, "orgID"))
	if err != nil {
		h.writeDomainError(w, r, err, "organization not found")
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// ListOrganizations handles GET /api/v1/orgs
func (h *Handlers) ListOrganizations(w http.ResponseWriter, r *http.Request) {
	p := principal.FromContext(r.Context())

	orgs, err := h.Orgs.List(r.Context(), p)
	if err != nil {
		h.writeDomainError(w, r, err, "organization not found")
		return
	}
	writeJSON(w, http.StatusOK, orgs)
}

// UpdateOrganization handles PATCH /api/v1/orgs/{orgID}
func (h *Handlers) UpdateOrganization(w http.ResponseWriter, r *http.Request) {
	p := principal.FromContext(r.Context())
	req, ok := readJSON[org.UpdateRequest](w, r)
	if !ok {
		return
	}

	o, err := h.Orgs.Update(r.Context(), p, urlParam(r, "orgID"), req)
	if err != nil {
		h.writeDomainError(w, r, err, "organization not found")
		return
	}
	writeJSON(w, http.StatusOK, o)
}

type addStorageRequest struct {
	AddMB int `json:"add_mb"`
}

// AddStorage handles POST /api/v1/orgs/{orgID}/storage
func (h *Handlers) AddStorage(w http.ResponseWriter, r *http.Request) {
	p := principal.FromContext(r.Context())
	req, ok := readJSON[addStorageRequest](w, r)
	if !ok {
		return
	}

	o, err := h.Orgs.AddStorage(r.Context(), p, urlParam(r, "orgID"), req.AddMB)
	if err != nil {
		h.writeDomainError(w, r, err, "organization not found")
		return
	}
	writeJSON(w, http.StatusOK, o)
}
