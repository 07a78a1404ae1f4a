package pipeline

import (
	"context"

	"github.com/couchcryptid/qso-map-service/internal/domain"
)

// enrich performs one bounded lookup for record and combines the result.
// There is no retry; the caller decides what a failure means.
func (e *Enricher) enrich(ctx context.Context, record domain.ContactRecord) (domain.EnrichedContact, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, e.lookupTimeout)
	defer cancel()

	clock := domain.Clock()
	start := clock.Now()
	result, err := e.lookup.Lookup(lookupCtx, record.Call)
	e.metrics.LookupDuration.Observe(clock.Since(start).Seconds())

	if err != nil {
		e.metrics.LookupRequests.WithLabelValues(domain.LookupErrorKind(err)).Inc()
		return domain.EnrichedContact{}, err
	}
	e.metrics.LookupRequests.WithLabelValues("success").Inc()
	return domain.Enrich(record, result), nil
}
