// Package nats implements the message queue port using NATS JetStream.
package nats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/opsdesk/opsdesk/internal/port/messagequeue"
)

const streamName = "ACTIVITY"

// Queue implements messagequeue.Queue using NATS JetStream. Delivery is
// at-least-once: handlers must be idempotent. A message that keeps failing
// is redelivered up to maxDeliver times and then routed to the dead-letter
// subject so one poison message cannot wedge the consumer.
type Queue struct {
	nc         *nats.Conn
	js         jetstream.JetStream
	maxDeliver int
	retryDelay time.Duration
}

// Option customizes the Queue.
type Option func(*Queue)

// WithMaxDeliver sets the redelivery bound before a message is dead-lettered.
func WithMaxDeliver(n int) Option {
	return func(q *Queue) { q.maxDeliver = n }
}

// WithRetryDelay sets the delay between redeliveries of a failed message.
func WithRetryDelay(d time.Duration) Option {
	return func(q *Queue) { q.retryDelay = d }
}

// Connect establishes a connection to NATS and ensures the JetStream stream exists.
func Connect(ctx context.Context, url string, opts ...Option) (*Queue, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	// Ensure the stream exists with subjects matching our topic patterns.
	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     streamName,
		Subjects: []string{"activity.>"},
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream stream create: %w", err)
	}

	q := &Queue{nc: nc, js: js, maxDeliver: 5, retryDelay: 2 * time.Second}
	for _, opt := range opts {
		opt(q)
	}

	slog.Info("nats connected", "url", url, "stream", streamName)
	return q, nil
}

// Publish sends a message to the given subject.
func (q *Queue) Publish(ctx context.Context, subject string, data []byte) error {
	_, err := q.js.Publish(ctx, subject, data)
	if err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return nil
}

// Subscribe registers a handler for messages on the given subject.
func (q *Queue) Subscribe(ctx context.Context, subject string, handler messagequeue.Handler) (func(), error) {
	consumer, err := q.js.CreateOrUpdateConsumer(ctx, streamName, jetstream.ConsumerConfig{
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    q.maxDeliver,
	})
	if err != nil {
		return nil, fmt.Errorf("nats consumer create: %w", err)
	}

	cons, err := consumer.Consume(func(msg jetstream.Msg) {
		if err := handler(ctx, msg.Subject(), msg.Data()); err != nil {
			slog.Error("message handler failed", "subject", msg.Subject(), "error", err)
			q.retryOrDeadLetter(ctx, msg)
			return
		}
		if ackErr := msg.Ack(); ackErr != nil {
			slog.Error("nats ack failed", "error", ackErr)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("nats consume: %w", err)
	}

	return cons.Stop, nil
}

// retryOrDeadLetter naks a failed message for redelivery, or routes it to
// the dead-letter subject once the delivery limit is exhausted.
func (q *Queue) retryOrDeadLetter(ctx context.Context, msg jetstream.Msg) {
	meta, err := msg.Metadata()
	if err == nil && int(meta.NumDelivered) >= q.maxDeliver {
		if pubErr := q.Publish(ctx, messagequeue.SubjectActivityDeadLetter, msg.Data()); pubErr != nil {
			slog.Error("dead-letter publish failed", "subject", msg.Subject(), "error", pubErr)
			// Leave the message unacked; the server redelivers until
			// the dead-letter publish succeeds.
			return
		}
		slog.Warn("message dead-lettered",
			"subject", msg.Subject(), "deliveries", meta.NumDelivered)
		if ackErr := msg.Ack(); ackErr != nil {
			slog.Error("nats ack failed", "error", ackErr)
		}
		return
	}

	if nakErr := msg.NakWithDelay(q.retryDelay); nakErr != nil {
		slog.Error("nats nak failed", "error", nakErr)
	}
}

// Drain gracefully drains subscriptions and pending messages, then closes.
func (q *Queue) Drain() error {
	if err := q.nc.Drain(); err != nil {
		return fmt.Errorf("nats drain: %w", err)
	}
	return nil
}

// Close shuts down the NATS connection.
func (q *Queue) Close() error {
	q.nc.Close()
	return nil
}

// KeyValue ensures a JetStream KV bucket exists and returns it. The TTL
// applies per entry at the bucket level.
func (q *Queue) KeyValue(ctx context.Context, bucket string, ttl time.Duration) (jetstream.KeyValue, error) {
	kv, err := q.js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket: bucket,
		TTL:    ttl,
	})
	if err != nil {
		return nil, fmt.Errorf("jetstream kv bucket %s: %w", bucket, err)
	}
	return kv, nil
}

// IsConnected reports whether the NATS connection is currently up.
func (q *Queue) IsConnected() bool {
	return q.nc.IsConnected()
}
