package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/opsdesk/opsdesk/internal/domain/principal"
	"github.com/opsdesk/opsdesk/internal/domain/user"
	"github.com/opsdesk/opsdesk/internal/service"
)

// RegisterUser handles POST /api/v1/auth/register
func (h *Handlers) RegisterUser(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[user.CreateRequest](w, r)
	if !ok {
		return
	}
	// Self-service registration never grants superuser; the admin CLI does.
	req.Superuser = false

	u, err := h.Auth.Register(r.Context(), &req)
	if err != nil {
		h.writeDomainError(w, r, err, "user not found")
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

// Login handles POST /api/v1/auth/login
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[user.LoginRequest](w, r)
	if !ok {
		return
	}

	resp, err := h.Auth.Login(r.Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			slog.Debug("login failed", "email", req.Email)
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		h.writeDomainError(w, r, err, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Logout handles POST /api/v1/auth/logout
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	p := principal.FromContext(r.Context())
	if p == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	h.Auth.Logout(r.Context(), p)
	w.WriteHeader(http.StatusNoContent)
}

// Me handles GET /api/v1/auth/me
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	p := principal.FromContext(r.Context())
	if p == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// ChangePassword handles POST /api/v1/auth/change-password
func (h *Handlers) ChangePassword(w http.ResponseWriter, r *http.Request) {
	p := principal.FromContext(r.Context())
	req, ok := readJSON[user.ChangePasswordRequest](w, r)
	if !ok {
		return
	}

	if err := h.Auth.ChangePassword(r.Context(), p, req); err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "current password is incorrect")
			return
		}
		h.writeDomainError(w, r, err, "user not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
