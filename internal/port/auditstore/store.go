// Package auditstore defines the port interface for the append-only audit
// entry store. The store exclusively owns entries: insert and read only, no
// update or delete surface exists.
package auditstore

import (
	"context"

	"github.com/opsdesk/opsdesk/internal/domain/activity"
)

// Store is the port interface for persisting and querying audit entries.
type Store interface {
	// Insert appends a new entry. Entries are immutable after insertion.
	Insert(ctx context.Context, e *activity.Entry) error

	// List returns entries matching the filter, newest first.
	List(ctx context.Context, f activity.Filter) ([]activity.Entry, error)

	// Count returns the number of entries matching the filter, ignoring
	// Limit and Offset.
	Count(ctx context.Context, f activity.Filter) (int64, error)

	// Summarize returns aggregate statistics over the given day window.
	Summarize(ctx context.Context, days int) (*activity.Summary, error)
}
