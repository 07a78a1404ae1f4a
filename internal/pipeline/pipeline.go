// Package pipeline runs the enrichment stage: it takes contact records off the
// ingestion queue, resolves each callsign to a position, and publishes the
// result to the broadcast hub.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/qso-map-service/internal/domain"
	"github.com/couchcryptid/qso-map-service/internal/observability"
	"github.com/couchcryptid/qso-map-service/internal/queue"
)

// DefaultLookupTimeout bounds a single callsign lookup.
const DefaultLookupTimeout = 5 * time.Second

// RecordSource yields contact records in arrival order.
type RecordSource interface {
	Pop(ctx context.Context) (domain.ContactRecord, error)
}

// Publisher fans an enriched contact out to subscribers and reports how many
// received it.
type Publisher interface {
	Publish(c domain.EnrichedContact) (int, error)
}

// Enricher orchestrates the lookup-and-publish loop.
type Enricher struct {
	lookup        domain.Lookup
	publisher     Publisher
	lookupTimeout time.Duration
	logger        *slog.Logger
	metrics       *observability.Metrics
	running       atomic.Bool
}

// New creates an Enricher. A non-positive lookupTimeout selects
// DefaultLookupTimeout.
func New(lookup domain.Lookup, publisher Publisher, lookupTimeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Enricher {
	if lookupTimeout <= 0 {
		lookupTimeout = DefaultLookupTimeout
	}
	return &Enricher{
		lookup:        lookup,
		publisher:     publisher,
		lookupTimeout: lookupTimeout,
		logger:        logger,
		metrics:       metrics,
	}
}

// CheckReadiness returns nil while the enricher loop is running.
func (e *Enricher) CheckReadiness(_ context.Context) error {
	if !e.running.Load() {
		return errors.New("enricher is not running")
	}
	return nil
}

// Run processes records from source until it is exhausted, ctx ends, or the
// publisher is closed. Exhaustion of the source returns nil; cancellation
// returns ctx.Err(); a closed publisher is returned as a fatal error.
func (e *Enricher) Run(ctx context.Context, source RecordSource) error {
	e.logger.Info("enricher started", "lookup_timeout", e.lookupTimeout)
	e.running.Store(true)
	e.metrics.EnricherRunning.Set(1)
	defer func() {
		e.running.Store(false)
		e.metrics.EnricherRunning.Set(0)
	}()

	for {
		record, err := source.Pop(ctx)
		if err != nil {
			if errors.Is(err, queue.ErrClosed) {
				e.logger.Info("ingestion queue closed, enricher stopping")
				return nil
			}
			if ctx.Err() != nil {
				e.logger.Info("enricher stopping", "reason", ctx.Err())
				return ctx.Err()
			}
			return fmt.Errorf("receive contact: %w", err)
		}
		if err := e.process(ctx, record); err != nil {
			return err
		}
	}
}

// process enriches and publishes one record. Lookup failures are logged and
// the record dropped; only cancellation and a closed publisher are returned.
func (e *Enricher) process(ctx context.Context, record domain.ContactRecord) error {
	contact, err := e.enrich(ctx, record)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		e.logger.Warn("lookup failed, discarding contact",
			"call", record.Call,
			"band", record.Band,
			"error", err,
			"kind", domain.LookupErrorKind(err),
		)
		return nil
	}

	if contact.UnknownLocation() {
		e.metrics.UnknownLocations.Inc()
		e.logger.Warn("latitude or longitude are empty, publishing at 0,0",
			"call", contact.Call,
			"band", contact.Band,
		)
	}

	delivered, err := e.publisher.Publish(contact)
	if err != nil {
		e.logger.Error("publish failed, enricher stopping", "call", contact.Call, "error", err)
		return fmt.Errorf("publish %s: %w", contact.Call, err)
	}
	e.metrics.ContactsPublished.Inc()

	if delivered == 0 {
		e.logger.Debug("no subscribers attached", "contact", contact.String())
		return nil
	}
	e.logger.Debug("contact published", "contact", contact.String(), "subscribers", delivered)
	return nil
}
