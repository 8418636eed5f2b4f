package domain

import (
	"context"
	"log/slog"
)

// ElevationResolver looks up the ground elevation in meters at a coordinate.
// The value may be negative.
type ElevationResolver interface {
	ResolveElevation(ctx context.Context, lat, lon float64) (float64, error)
}

// ElevationResult is the outcome of one row's lookup. Exactly one of
// Elevation and Err is set.
type ElevationResult struct {
	Row        int
	IncidentID string
	Elevation  *float64
	Err        error
}

// EnrichSummary reconciles lookups against the rows that entered enrichment.
// Attempted always equals Succeeded + Failed.
type EnrichSummary struct {
	Attempted int
	Succeeded int
	Failed    int
	FailedIDs []string
}

// WithCoordinates keeps records with both coordinates and renumbers Row from
// zero in the surviving order.
func WithCoordinates(records []DerivedIncident) []DerivedIncident {
	out := make([]DerivedIncident, 0, len(records))
	for _, r := range records {
		if r.Location == nil {
			continue
		}
		r.Row = len(out)
		out = append(out, r)
	}
	return out
}

// Enricher resolves elevations one record at a time, in row order.
type Enricher struct {
	resolver ElevationResolver
	logger   *slog.Logger
	strict   bool
}

// NewEnricher creates an Enricher. In strict mode the first failed lookup
// aborts enrichment; otherwise the row is marked not available and the run
// continues.
func NewEnricher(resolver ElevationResolver, strict bool, logger *slog.Logger) *Enricher {
	return &Enricher{resolver: resolver, strict: strict, logger: logger}
}

// Enrich resolves an elevation for every record. Records must all carry a
// location (see WithCoordinates). The returned slices are parallel to the
// input. On a strict-mode failure or context cancellation the partial
// results are returned with the error.
func (e *Enricher) Enrich(ctx context.Context, records []DerivedIncident) ([]EnrichedIncident, []ElevationResult, EnrichSummary, error) {
	enriched := make([]EnrichedIncident, 0, len(records))
	results := make([]ElevationResult, 0, len(records))
	var summary EnrichSummary

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return enriched, results, summary, err
		}

		summary.Attempted++
		res := ElevationResult{Row: rec.Row, IncidentID: rec.ID}

		elevation, err := e.resolver.ResolveElevation(ctx, rec.Lat(), rec.Lon())
		if err != nil {
			lookupErr := &ElevationLookupError{
				Row:        rec.Row,
				IncidentID: rec.ID,
				Lat:        rec.Lat(),
				Lon:        rec.Lon(),
				Err:        err,
			}
			res.Err = lookupErr
			summary.Failed++
			summary.FailedIDs = append(summary.FailedIDs, rec.ID)
			results = append(results, res)
			enriched = append(enriched, EnrichedIncident{DerivedIncident: rec})

			if e.strict || ctx.Err() != nil {
				return enriched, results, summary, lookupErr
			}
			e.logger.Warn("elevation lookup failed, marking not available",
				"row", rec.Row,
				"incident_id", rec.ID,
				"lat", rec.Lat(),
				"lon", rec.Lon(),
				"error", err,
			)
			continue
		}

		res.Elevation = &elevation
		summary.Succeeded++
		results = append(results, res)
		enriched = append(enriched, EnrichedIncident{DerivedIncident: rec, Elevation: &elevation})
	}

	return enriched, results, summary, nil
}

// WithElevation keeps enriched records whose elevation is known.
func WithElevation(records []EnrichedIncident) []EnrichedIncident {
	return Filter(records, func(e EnrichedIncident) bool { return e.Elevation != nil })
}
