package http

import (
	"context"
	"net/http"

	"github.com/opsdesk/opsdesk/internal/adapter/otel"
	"github.com/opsdesk/opsdesk/internal/port/messagequeue"
	"github.com/opsdesk/opsdesk/internal/service"
)

// Pinger reports database liveness. Satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers bundles the services the HTTP layer exposes.
type Handlers struct {
	Auth     *service.AuthService
	Orgs     *service.OrgService
	Members  *service.MemberService
	Activity *service.ActivityService
	Metrics  *otel.Metrics

	db    Pinger
	queue messagequeue.Queue
}

// NewHandlers creates the handler set. db and queue back the health
// endpoints only; business access goes through the services.
func NewHandlers(
	auth *service.AuthService,
	orgs *service.OrgService,
	members *service.MemberService,
	activity *service.ActivityService,
	metrics *otel.Metrics,
	db Pinger,
	queue messagequeue.Queue,
) *Handlers {
	return &Handlers{
		Auth:     auth,
		Orgs:     orgs,
		Members:  members,
		Activity: activity,
		Metrics:  metrics,
		db:       db,
		queue:    queue,
	}
}

// Health handles GET /health
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready handles GET /health/ready
func (h *Handlers) Ready(w http.ResponseWriter, r *http.Request) {
	if h.queue != nil && !h.queue.IsConnected() {
		writeError(w, http.StatusServiceUnavailable, "message queue unavailable")
		return
	}
	if h.db != nil {
		if err := h.db.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
