package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/semaphore"

	"github.com/opsdesk/opsdesk/internal/domain/activity"
	"github.com/opsdesk/opsdesk/internal/port/auditstore"
	"github.com/opsdesk/opsdesk/internal/port/messagequeue"
	"github.com/opsdesk/opsdesk/internal/resilience"
)

const (
	defaultWriteTimeout = 3 * time.Second
	defaultWorkers      = 4
)

// Instruments receives operational counters from the engine. Implemented by
// the otel adapter; nil disables instrumentation.
type Instruments interface {
	EntryPersisted(ctx context.Context)
	EntrySkipped(ctx context.Context)
	PersistFailed(ctx context.Context)
}

// Engine consumes entity-changed events from the queue, walks each through
// Observed -> Attributed -> Classified -> Persisted, and appends the result
// to the audit store. It runs decoupled from the request path: persistence
// failures are retried by the queue's redelivery and eventually
// dead-lettered; they never affect the originating mutation.
type Engine struct {
	queue        messagequeue.Queue
	store        auditstore.Store
	breaker      *resilience.Breaker
	sem          *semaphore.Weighted
	writeTimeout time.Duration
	instruments  Instruments
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithWriteTimeout bounds each audit store insert.
func WithWriteTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.writeTimeout = d
		}
	}
}

// WithWorkers bounds the number of events persisted concurrently.
func WithWorkers(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

// WithBreaker protects the audit store with a circuit breaker. While the
// circuit is open, inserts fail fast and events ride the redelivery queue
// instead of piling onto a struggling store.
func WithBreaker(b *resilience.Breaker) EngineOption {
	return func(e *Engine) { e.breaker = b }
}

// WithInstruments installs operational counters.
func WithInstruments(in Instruments) EngineOption {
	return func(e *Engine) { e.instruments = in }
}

// NewEngine creates an Engine reading from queue and appending to store.
func NewEngine(queue messagequeue.Queue, store auditstore.Store, opts ...EngineOption) *Engine {
	e := &Engine{
		queue:        queue,
		store:        store,
		sem:          semaphore.NewWeighted(defaultWorkers),
		writeTimeout: defaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start subscribes to the activity subject. The returned function cancels
// the subscription; in-flight events finish from the queue's redelivery.
func (e *Engine) Start(ctx context.Context) (cancel func(), err error) {
	return e.queue.Subscribe(ctx, messagequeue.SubjectActivityAll, e.handle)
}

// handle is the queue handler: returning an error triggers redelivery.
func (e *Engine) handle(ctx context.Context, subject string, data []byte) error {
	var ev activity.ChangeEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		// Malformed payloads will never parse on redelivery; drop with a log.
		slog.Error("audit: drop malformed change event", "subject", subject, "error", err)
		return nil
	}

	if err := e.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer e.sem.Release(1)

	entry, skipped := Build(ev)
	if skipped {
		if e.instruments != nil {
			e.instruments.EntrySkipped(ctx)
		}
		return nil
	}

	if err := e.persist(ctx, entry); err != nil {
		if e.instruments != nil {
			e.instruments.PersistFailed(ctx)
		}
		slog.Error("audit: persist entry failed, leaving event for redelivery",
			"entry_id", entry.ID, "target_type", entry.TargetType, "error", err)
		return err
	}
	if e.instruments != nil {
		e.instruments.EntryPersisted(ctx)
	}
	return nil
}

func (e *Engine) persist(ctx context.Context, entry *activity.Entry) error {
	wctx, cancel := context.WithTimeout(ctx, e.writeTimeout)
	defer cancel()

	insert := func() error { return e.store.Insert(wctx, entry) }
	if e.breaker != nil {
		return e.breaker.Execute(insert)
	}
	return insert()
}

// Build runs the Observed -> Attributed -> Classified stages over a change
// event and returns the entry to persist. skipped is true for excluded
// entity kinds, including the audit entry kind itself (recursion guard).
func Build(ev activity.ChangeEvent) (entry *activity.Entry, skipped bool) {
	// Observed: infrastructure kinds and the engine's own writes are never
	// audited.
	if ev.EntityKind == "" || activity.ExcludedKinds[ev.EntityKind] {
		return nil, true
	}

	// Attributed: explicit hint first, then conventional owner fields, then
	// nil (system action). A missing actor never drops the entry; audit
	// completeness outranks attribution completeness.
	var actorID *string
	switch {
	case ev.ActorHint != "":
		actorID = &ev.ActorHint
	default:
		if owner := ownerFromFields(ev.ChangedFields); owner != "" {
			actorID = &owner
		}
	}

	// Classified: the details payload keeps only the caller's changed-field
	// manifest minus volatile bookkeeping fields.
	kind := ev.Kind
	if !activity.ValidKinds[kind] {
		kind = activity.KindUpdate
	}
	details := map[string]any{}
	for field, value := range ev.ChangedFields {
		if activity.VolatileFields[field] {
			continue
		}
		details[field] = value
	}

	createdAt := ev.EmittedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	entry = &activity.Entry{
		ID:         ulid.Make().String(),
		ActorID:    actorID,
		Kind:       kind,
		TargetType: ev.EntityKind,
		TargetID:   ev.EntityID,
		Details:    details,
		CreatedAt:  createdAt,
	}
	if ev.Request != nil {
		if ev.Request.IPAddress != "" {
			ip := ev.Request.IPAddress
			entry.IPAddress = &ip
		}
		if ev.Request.UserAgent != "" {
			ua := ev.Request.UserAgent
			entry.UserAgent = &ua
		}
	}
	return entry, false
}

// ownerFromFields resolves an actor from conventional owner fields on the
// changed entity, mirroring the order callers populate them.
func ownerFromFields(fields map[string]any) string {
	for _, key := range []string{"user_id", "user", "created_by"} {
		if v, ok := fields[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
			if s := fmt.Sprint(v); s != "" && s != "<nil>" {
				return s
			}
		}
	}
	return ""
}
