// Package audit implements the activity audit engine: a recorder that
// business modules call on every mutation, and an asynchronous worker that
// attributes, classifies, and persists audit entries.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/opsdesk/opsdesk/internal/domain/activity"
	"github.com/opsdesk/opsdesk/internal/domain/principal"
	"github.com/opsdesk/opsdesk/internal/port/messagequeue"
)

// Recorder ingests entity-changed events and hands them to the queue for
// asynchronous processing. Recording is fire and forget: a publish failure
// is logged, never returned to the business mutation.
type Recorder struct {
	queue messagequeue.Queue
}

// NewRecorder creates a Recorder publishing to the given queue.
func NewRecorder(queue messagequeue.Queue) *Recorder {
	return &Recorder{queue: queue}
}

// Record enriches ev with the request principal and HTTP metadata from ctx
// and publishes it. Callers emit one event per create/update/delete; they
// never block on, or observe, audit persistence. A nil Recorder discards
// events, which lets offline tooling reuse the services without a queue.
func (r *Recorder) Record(ctx context.Context, ev activity.ChangeEvent) {
	if r == nil {
		return
	}
	if ev.EmittedAt.IsZero() {
		ev.EmittedAt = time.Now().UTC()
	}
	if ev.ActorHint == "" {
		if p := principal.FromContext(ctx); p != nil {
			ev.ActorHint = p.ID
		}
	}
	if ev.Request == nil {
		if meta := activity.MetaFromContext(ctx); meta != nil {
			ev.Request = meta
		}
	}

	data, err := json.Marshal(ev)
	if err != nil {
		slog.Error("audit: marshal change event", "entity_kind", ev.EntityKind, "error", err)
		return
	}

	subject := messagequeue.SubjectActivityRecorded + "." + subjectToken(ev.EntityKind)
	if err := r.queue.Publish(ctx, subject, data); err != nil {
		slog.Error("audit: publish change event", "subject", subject, "entity_id", ev.EntityID, "error", err)
	}
}

// subjectToken makes an entity kind safe for use as a NATS subject token.
func subjectToken(kind string) string {
	if kind == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ':
			return '_'
		}
		return r
	}, kind)
}
