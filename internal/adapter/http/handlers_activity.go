package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/opsdesk/opsdesk/internal/domain/activity"
	"github.com/opsdesk/opsdesk/internal/domain/principal"
)

// ListActivity handles GET /api/v1/activity
func (h *Handlers) ListActivity(w http.ResponseWriter, r *http.Request) {
	p := principal.FromContext(r.Context())

	f, err := activityFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := h.Activity.List(r.Context(), p, f)
	if err != nil {
		h.writeDomainError(w, r, err, "activity not found")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// RecentActivity handles GET /api/v1/activity/recent
func (h *Handlers) RecentActivity(w http.ResponseWriter, r *http.Request) {
	p := principal.FromContext(r.Context())

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	entries, err := h.Activity.Recent(r.Context(), p, limit)
	if err != nil {
		h.writeDomainError(w, r, err, "activity not found")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// ActivitySummary handles GET /api/v1/activity/summary
func (h *Handlers) ActivitySummary(w http.ResponseWriter, r *http.Request) {
	p := principal.FromContext(r.Context())

	summary, err := h.Activity.Summary(r.Context(), p)
	if err != nil {
		h.writeDomainError(w, r, err, "activity not found")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// activityFilter builds an activity.Filter from query parameters.
func activityFilter(r *http.Request) (activity.Filter, error) {
	q := r.URL.Query()
	f := activity.Filter{
		ActorID:    q.Get("actor_id"),
		Kind:       activity.Kind(q.Get("kind")),
		TargetType: q.Get("target_type"),
		TargetID:   q.Get("target_id"),
	}

	var err error
	if f.Since, err = parseTimeParam(q.Get("since")); err != nil {
		return f, err
	}
	if f.Until, err = parseTimeParam(q.Get("until")); err != nil {
		return f, err
	}
	if f.Limit, err = parseIntParam(q.Get("limit")); err != nil {
		return f, err
	}
	if f.Offset, err = parseIntParam(q.Get("offset")); err != nil {
		return f, err
	}
	return f, nil
}

func parseTimeParam(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, v)
}

func parseIntParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}
