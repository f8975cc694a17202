// Package messagequeue defines the message queue port (interface).
package messagequeue

import "context"

// Handler processes a message received from the queue. Returning an error
// triggers redelivery (at-least-once semantics); the context carries
// request-scoped values such as the request ID.
type Handler func(ctx context.Context, subject string, data []byte) error

// Queue is the port interface for publishing and subscribing to messages.
type Queue interface {
	// Publish sends a message to the given subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe registers a handler for messages on the given subject.
	// Delivery is at-least-once with a bounded redelivery count; messages
	// that exhaust redelivery are routed to the dead-letter subject.
	// The returned function cancels the subscription.
	Subscribe(ctx context.Context, subject string, handler Handler) (cancel func(), err error)

	// Drain gracefully drains all subscriptions before closing.
	// Pending messages are processed; no new messages are accepted.
	Drain() error

	// Close shuts down the queue connection immediately.
	Close() error

	// IsConnected reports whether the queue is currently connected.
	IsConnected() bool
}

// Subjects for the activity audit pipeline. Recorded events carry the
// entity kind as the final token so the engine's consumer can preserve
// per-entity emission order.
const (
	// SubjectActivityRecorded is the publish prefix for entity-changed
	// events: activity.recorded.<entity_kind>.
	SubjectActivityRecorded = "activity.recorded"

	// SubjectActivityAll matches every recorded event.
	SubjectActivityAll = "activity.recorded.>"

	// SubjectActivityDeadLetter receives events whose persistence attempts
	// were exhausted. Operators drain it out of band.
	SubjectActivityDeadLetter = "activity.deadletter"
)
