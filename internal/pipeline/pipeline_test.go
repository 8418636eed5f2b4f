package pipeline_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/incident-elevation-etl/internal/domain"
	"github.com/couchcryptid/incident-elevation-etl/internal/observability"
	"github.com/couchcryptid/incident-elevation-etl/internal/pipeline"
	"github.com/couchcryptid/incident-elevation-etl/internal/regression"
)

func newTestMetrics() *observability.Metrics {
	// Use a fresh registry to avoid "already registered" panics in tests.
	return observability.NewMetricsForTesting()
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fixture returns 60 located incidents plus one with an unparsable datetime
// and one without coordinates.
func fixture() []domain.Incident {
	incidents := mockIncidents(60)

	bad := mockIncidents(1)[0]
	bad.ID = "inc-bad-ts"
	bad.IncidentDatetime = "not a date"
	bad.IncidentTime = "??"

	unlocated := mockIncidents(1)[0]
	unlocated.ID = "inc-no-coords"
	unlocated.Location = nil

	incidents = append(incidents, bad, unlocated)
	for i := range incidents {
		incidents[i].Row = i
	}
	return incidents
}

func TestPipeline_Run_HappyPath(t *testing.T) {
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	domain.SetClock(clockwork.NewFakeClockAt(fixed))
	t.Cleanup(func() { domain.SetClock(nil) })

	resolver := &terrainResolver{}
	metrics := newTestMetrics()
	p := pipeline.New(&stubSource{incidents: fixture()}, resolver, pipeline.DefaultOptions(), discardLogger(), metrics)

	require.Error(t, p.CheckReadiness(context.Background()), "not ready before a run")

	res, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, fixed, res.StartedAt)
	assert.Equal(t, 62, res.Loaded)
	assert.Equal(t, 62, res.Derive.Records)
	assert.Equal(t, 1, res.Derive.Unparsable)
	assert.Equal(t, 61, res.Located)
	assert.Equal(t, 61, resolver.calls)
	assert.Equal(t, domain.EnrichSummary{Attempted: 61, Succeeded: 61}, res.Enrich)
	assert.Len(t, res.Incidents, 61)

	// ceil(0.25 * 61) = 16 held out.
	assert.Equal(t, 16, res.TestSize)
	assert.Equal(t, 45, res.TrainSize)

	require.Len(t, res.Bins, 28)
	total := 0
	for _, b := range res.Bins {
		total += b.Count
	}
	assert.Equal(t, 61, total, "every enriched incident lands in exactly one bin")

	require.Len(t, res.Fits, 3)
	for _, f := range res.Fits {
		require.NoError(t, f.Err, f.Name)
		require.NotNil(t, f.Model, f.Name)
	}
	latency, ok := res.Fit(domain.LatencyModel.Name)
	require.True(t, ok)
	assert.Equal(t, 45, latency.Model.N+latency.Model.Excluded, "complete-case filter over the train split")
	counts, ok := res.Fit(domain.ElevationCountModel.Name)
	require.True(t, ok)
	assert.Equal(t, 28, counts.Model.N)

	require.NoError(t, p.CheckReadiness(context.Background()))
	assert.Same(t, res, p.LastResult())

	assert.InDelta(t, 62.0, testutil.ToFloat64(metrics.RecordsLoaded), 0)
	assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.TimestampFailures), 0)
	assert.InDelta(t, 61.0, testutil.ToFloat64(metrics.RecordsEnriched), 0)
	assert.InDelta(t, 0.0, testutil.ToFloat64(metrics.PipelineRunning), 0)
	assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.FitsCompleted.WithLabelValues(domain.AssaultLatencyModel.Name, "success")), 0)
}

func TestPipeline_Run_LenientLookupFailure(t *testing.T) {
	incidents := fixture()
	failing := *incidents[5].Location
	resolver := &terrainResolver{failIDs: map[orb.Point]bool{failing: true}}

	p := pipeline.New(&stubSource{incidents: incidents}, resolver, pipeline.DefaultOptions(), discardLogger(), newTestMetrics())
	res, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 61, res.Enrich.Attempted)
	assert.Equal(t, 60, res.Enrich.Succeeded)
	assert.Equal(t, 1, res.Enrich.Failed)
	assert.Equal(t, []string{"inc-005"}, res.Enrich.FailedIDs)
	assert.Len(t, res.Incidents, 60)
	require.Len(t, res.Lookups, 61, "one lookup result per located row")
	assert.ErrorIs(t, res.Lookups[5].Err, domain.ErrElevationLookup)
	assert.Nil(t, res.Lookups[5].Elevation)
}

func TestPipeline_Run_StrictLookupFailure(t *testing.T) {
	incidents := fixture()
	failing := *incidents[5].Location
	resolver := &terrainResolver{failIDs: map[orb.Point]bool{failing: true}}

	opts := pipeline.DefaultOptions()
	opts.Strict = true
	p := pipeline.New(&stubSource{incidents: incidents}, resolver, opts, discardLogger(), newTestMetrics())

	res, err := p.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrElevationLookup)

	var lookupErr *domain.ElevationLookupError
	require.ErrorAs(t, err, &lookupErr)
	assert.Equal(t, "inc-005", lookupErr.IncidentID)

	require.NotNil(t, res, "partial result returned")
	assert.Equal(t, 6, res.Enrich.Attempted)
	assert.Empty(t, res.Fits)
	require.Error(t, p.CheckReadiness(context.Background()))
	assert.Nil(t, p.LastResult())
}

func TestPipeline_Run_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resolver := &terrainResolver{}
	p := pipeline.New(&stubSource{incidents: fixture()}, resolver, pipeline.DefaultOptions(), discardLogger(), newTestMetrics())

	res, err := p.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.Zero(t, resolver.calls, "no lookups after cancellation")
}

func TestPipeline_Run_SourceError(t *testing.T) {
	srcErr := &domain.MissingColumnError{Columns: []string{domain.ColumnLatitude}}
	p := pipeline.New(&stubSource{err: srcErr}, &terrainResolver{}, pipeline.DefaultOptions(), discardLogger(), newTestMetrics())

	res, err := p.Run(context.Background())
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, domain.ErrMissingColumn)
}

func TestPipeline_Run_FitFailureIsIsolated(t *testing.T) {
	incidents := mockIncidents(40)
	for i := range incidents {
		incidents[i].Category = domain.CategoryFraud
	}

	p := pipeline.New(&stubSource{incidents: incidents}, &terrainResolver{}, pipeline.DefaultOptions(), discardLogger(), newTestMetrics())
	res, err := p.Run(context.Background())
	require.NoError(t, err)

	assault, ok := res.Fit(domain.AssaultLatencyModel.Name)
	require.True(t, ok)
	assert.ErrorIs(t, assault.Err, regression.ErrInsufficientObservations)
	assert.Nil(t, assault.Model)
	assert.Equal(t, 1, res.FailedFits())

	latency, ok := res.Fit(domain.LatencyModel.Name)
	require.True(t, ok)
	assert.NoError(t, latency.Err)
	counts, ok := res.Fit(domain.ElevationCountModel.Name)
	require.True(t, ok)
	assert.NoError(t, counts.Err)
}

func TestPipeline_Run_Deterministic(t *testing.T) {
	run := func() *pipeline.Result {
		p := pipeline.New(&stubSource{incidents: fixture()}, &terrainResolver{}, pipeline.DefaultOptions(), discardLogger(), newTestMetrics())
		res, err := p.Run(context.Background())
		require.NoError(t, err)
		return res
	}
	a, b := run(), run()

	assert.NotEqual(t, a.RunID, b.RunID)
	for i := range a.Fits {
		if diff := cmp.Diff(a.Fits[i].Model.Coefficients, b.Fits[i].Model.Coefficients); diff != "" {
			t.Errorf("%s coefficients differ between runs (-first +second):\n%s", a.Fits[i].Name, diff)
		}
	}
	if diff := cmp.Diff(a.Bins, b.Bins); diff != "" {
		t.Errorf("bins differ between runs (-first +second):\n%s", diff)
	}
}

func TestPipeline_Run_Sinks(t *testing.T) {
	pub := &recordingPublisher{}
	exp := &recordingExporter{}
	metrics := newTestMetrics()

	p := pipeline.New(&stubSource{incidents: fixture()}, &terrainResolver{}, pipeline.DefaultOptions(), discardLogger(), metrics,
		pipeline.WithPublisher(pub), pipeline.WithExporter(exp))

	res, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, res.RunID, pub.runID)
	assert.Len(t, pub.incidents, 61)
	assert.Equal(t, 1, exp.calls)
	assert.Equal(t, res.RunID, exp.runID)
	assert.Len(t, exp.bins, 28)
	assert.InDelta(t, 61.0, testutil.ToFloat64(metrics.RecordsPublished), 0)
}

func TestPipeline_Run_PublishError(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker unavailable")}
	p := pipeline.New(&stubSource{incidents: fixture()}, &terrainResolver{}, pipeline.DefaultOptions(), discardLogger(), newTestMetrics(),
		pipeline.WithPublisher(pub))

	res, err := p.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish incidents")
	require.NotNil(t, res, "fits are still reported")
	assert.Len(t, res.Fits, 3)
	require.Error(t, p.CheckReadiness(context.Background()))
}
