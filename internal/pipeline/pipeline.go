package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/couchcryptid/incident-elevation-etl/internal/domain"
	"github.com/couchcryptid/incident-elevation-etl/internal/observability"
)

// Source loads the cleaned incident table.
type Source interface {
	Load() ([]domain.Incident, error)
}

// Publisher streams enriched incidents to a downstream consumer.
type Publisher interface {
	Publish(ctx context.Context, runID string, processedAt time.Time, incidents []domain.EnrichedIncident) error
}

// Exporter persists the enriched table and the bin table.
type Exporter interface {
	Export(runID string, processedAt time.Time, incidents []domain.EnrichedIncident, bins []domain.ElevationBin) error
}

// Options controls derivation, binning and model fitting.
type Options struct {
	Days         domain.DayMapping
	Strict       bool
	TestFraction float64
	SplitSeed    uint64
	Binner       domain.Binner
}

// DefaultOptions returns the reference analysis settings.
func DefaultOptions() Options {
	return Options{
		Days:         domain.DayMappingReference,
		TestFraction: 0.25,
		SplitSeed:    42,
		Binner:       domain.DefaultBinner,
	}
}

// Option configures optional pipeline outputs.
type Option func(*Pipeline)

// WithPublisher sends enriched incidents to pub after the fits complete.
func WithPublisher(pub Publisher) Option {
	return func(p *Pipeline) { p.publisher = pub }
}

// WithExporter writes the run's tables through exp after the fits complete.
func WithExporter(exp Exporter) Option {
	return func(p *Pipeline) { p.exporter = exp }
}

// Pipeline runs load, derive, enrich, bin and fit over one input file.
type Pipeline struct {
	source    Source
	resolver  domain.ElevationResolver
	publisher Publisher
	exporter  Exporter
	opts      Options
	logger    *slog.Logger
	metrics   *observability.Metrics
	ready     atomic.Bool
	last      atomic.Pointer[Result]
}

// New creates a Pipeline with the given stages and observability.
func New(source Source, resolver domain.ElevationResolver, opts Options, logger *slog.Logger, metrics *observability.Metrics, extra ...Option) *Pipeline {
	if opts.Binner.Count == 0 {
		opts.Binner = domain.DefaultBinner
	}
	p := &Pipeline{
		source:   source,
		resolver: resolver,
		opts:     opts,
		logger:   logger,
		metrics:  metrics,
	}
	for _, o := range extra {
		o(p)
	}
	return p
}

// CheckReadiness returns nil once a run has completed.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not completed a run yet")
	}
	return nil
}

// LastResult returns the most recent completed run, or nil.
func (p *Pipeline) LastResult() *Result {
	return p.last.Load()
}

// Run executes the pipeline once. Record-scoped failures are counted in the
// result; structural failures abort the run. When enrichment is aborted the
// partial result is returned together with the error.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	res := &Result{RunID: uuid.NewString(), StartedAt: domain.Now()}
	log := p.logger.With("run_id", res.RunID)

	log.Info("pipeline started", "day_mapping", p.opts.Days, "strict", p.opts.Strict)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	start := time.Now()
	incidents, err := p.source.Load()
	if err != nil {
		return nil, fmt.Errorf("load incidents: %w", err)
	}
	p.observeStage("load", start)
	res.Loaded = len(incidents)
	p.metrics.RecordsLoaded.Add(float64(len(incidents)))
	log.Info("incidents loaded", "records", len(incidents))

	start = time.Now()
	derived, deriveSummary := domain.NewDeriver(p.opts.Days).Derive(incidents)
	p.observeStage("derive", start)
	res.Derive = deriveSummary
	p.metrics.TimestampFailures.Add(float64(deriveSummary.Unparsable))
	p.logDeriveFailures(log, derived, deriveSummary)

	located := domain.WithCoordinates(derived)
	res.Located = len(located)

	start = time.Now()
	enriched, lookups, enrichSummary, err := domain.NewEnricher(p.resolver, p.opts.Strict, log).Enrich(ctx, located)
	p.observeStage("enrich", start)
	res.Lookups = lookups
	res.Enrich = enrichSummary
	res.Incidents = domain.WithElevation(enriched)
	p.metrics.RecordsEnriched.Add(float64(len(res.Incidents)))
	if err != nil {
		res.FinishedAt = domain.Now()
		log.Error("enrichment aborted",
			"attempted", enrichSummary.Attempted, "failed", enrichSummary.Failed, "error", err)
		return res, fmt.Errorf("enrich elevations: %w", err)
	}
	log.Info("elevations resolved",
		"located", res.Located,
		"succeeded", enrichSummary.Succeeded,
		"failed", enrichSummary.Failed,
	)
	if enrichSummary.Failed > 0 {
		log.Warn("elevation not available for some incidents", "incident_ids", enrichSummary.FailedIDs)
	}

	start = time.Now()
	res.Bins = p.opts.Binner.Histogram(res.Incidents)
	p.observeStage("bin", start)

	start = time.Now()
	res.Fits, res.TrainSize, res.TestSize = p.fitModels(log, res.Incidents, res.Bins)
	p.observeStage("fit", start)

	res.Summary = Summarize(derived, res.Incidents)
	res.FinishedAt = domain.Now()

	if err := p.deliver(ctx, log, res); err != nil {
		return res, err
	}

	p.last.Store(res)
	p.ready.Store(true)
	log.Info("pipeline finished", "duration", res.FinishedAt.Sub(res.StartedAt), "fits_failed", res.FailedFits())
	return res, nil
}

// deliver hands the completed run to the optional exporter and publisher.
func (p *Pipeline) deliver(ctx context.Context, log *slog.Logger, res *Result) error {
	if p.exporter == nil && p.publisher == nil {
		return nil
	}
	start := time.Now()
	defer p.observeStage("sink", start)

	if p.exporter != nil {
		if err := p.exporter.Export(res.RunID, res.FinishedAt, res.Incidents, res.Bins); err != nil {
			return fmt.Errorf("export tables: %w", err)
		}
		log.Info("tables exported", "incidents", len(res.Incidents), "bins", len(res.Bins))
	}
	if p.publisher != nil {
		if err := p.publisher.Publish(ctx, res.RunID, res.FinishedAt, res.Incidents); err != nil {
			return fmt.Errorf("publish incidents: %w", err)
		}
		p.metrics.RecordsPublished.Add(float64(len(res.Incidents)))
	}
	return nil
}

func (p *Pipeline) logDeriveFailures(log *slog.Logger, derived []domain.DerivedIncident, summary domain.DeriveSummary) {
	for _, d := range derived {
		if d.Err != nil {
			log.Debug("timestamp not parsed", "row", d.Row, "incident_id", d.ID, "error", d.Err)
		}
	}
	if summary.Unparsable > 0 {
		log.Warn("records with unparsable timestamps", "count", summary.Unparsable, "records", summary.Records)
	}
	if summary.NegativeRaw > 0 {
		log.Warn("report datetime precedes incident datetime", "count", summary.NegativeRaw)
	}
}

func (p *Pipeline) observeStage(stage string, start time.Time) {
	p.metrics.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}
