package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "opsdesk"

// Metrics holds all OpsDesk metric instruments. It implements
// audit.Instruments for the persistence engine.
type Metrics struct {
	AuthzDenied     metric.Int64Counter
	EntriesPersist  metric.Int64Counter
	EntriesSkipped  metric.Int64Counter
	PersistFailures metric.Int64Counter
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.AuthzDenied, err = meter.Int64Counter("opsdesk.authz.denied",
		metric.WithDescription("Number of denied authorization checks"))
	if err != nil {
		return nil, err
	}

	m.EntriesPersist, err = meter.Int64Counter("opsdesk.audit.entries_persisted",
		metric.WithDescription("Number of audit entries persisted"))
	if err != nil {
		return nil, err
	}

	m.EntriesSkipped, err = meter.Int64Counter("opsdesk.audit.entries_skipped",
		metric.WithDescription("Number of change events skipped by the observation guard"))
	if err != nil {
		return nil, err
	}

	m.PersistFailures, err = meter.Int64Counter("opsdesk.audit.persist_failures",
		metric.WithDescription("Number of failed audit persistence attempts"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// EntryPersisted implements audit.Instruments.
func (m *Metrics) EntryPersisted(ctx context.Context) {
	m.EntriesPersist.Add(ctx, 1)
}

// EntrySkipped implements audit.Instruments.
func (m *Metrics) EntrySkipped(ctx context.Context) {
	m.EntriesSkipped.Add(ctx, 1)
}

// PersistFailed implements audit.Instruments.
func (m *Metrics) PersistFailed(ctx context.Context) {
	m.PersistFailures.Add(ctx, 1)
}
