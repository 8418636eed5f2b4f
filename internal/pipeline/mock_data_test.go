package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/paulmach/orb"

	"github.com/couchcryptid/incident-elevation-etl/internal/domain"
)

const sfpdLayout = "2006/01/02 03:04:05 PM"

var weekdays = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

// mockIncidents builds n located incidents with varied calendar, time and
// location fields. Every third incident is an assault.
func mockIncidents(n int) []domain.Incident {
	out := make([]domain.Incident, n)
	base := time.Date(2019, time.January, 7, 0, 0, 0, 0, time.UTC)
	for i := range n {
		year := 2019 + i%5
		hour := (i * 7) % 24
		at := base.AddDate(i%5, 0, i%7).Add(time.Duration(hour)*time.Hour + time.Duration(i%4)*15*time.Minute)
		reported := at.Add(time.Duration(20+(i*37)%300) * time.Minute)

		category := domain.CategoryFraud
		if i%3 == 0 {
			category = domain.CategoryAssault
		}
		p := orb.Point{-122.45 + 0.002*float64(i), 37.70 + 0.003*float64(i%13)}

		out[i] = domain.Incident{
			Row:              i,
			ID:               fmt.Sprintf("inc-%03d", i),
			IncidentDatetime: at.Format(sfpdLayout),
			ReportDatetime:   reported.Format(sfpdLayout),
			IncidentTime:     at.Format("15:04"),
			DayOfWeek:        weekdays[i%7],
			Year:             &year,
			Category:         category,
			Location:         &p,
		}
	}
	return out
}

// elevationAt is the terrain used by the stub resolver: 10 m at the southern
// edge rising 1 m per 0.0003 degrees of latitude.
func elevationAt(lat float64) float64 {
	return math.Round(10 + (lat-37.70)/0.0003)
}

type stubSource struct {
	incidents []domain.Incident
	err       error
}

func (s *stubSource) Load() ([]domain.Incident, error) {
	return s.incidents, s.err
}

type terrainResolver struct {
	failIDs map[orb.Point]bool
	calls   int
}

func (r *terrainResolver) ResolveElevation(_ context.Context, lat, lon float64) (float64, error) {
	r.calls++
	if r.failIDs[orb.Point{lon, lat}] {
		return 0, errors.New("open-elevation API error: status 504")
	}
	return elevationAt(lat), nil
}

type recordingPublisher struct {
	runID     string
	incidents []domain.EnrichedIncident
	err       error
}

func (p *recordingPublisher) Publish(_ context.Context, runID string, _ time.Time, incidents []domain.EnrichedIncident) error {
	p.runID = runID
	p.incidents = incidents
	return p.err
}

type recordingExporter struct {
	runID string
	bins  []domain.ElevationBin
	calls int
}

func (e *recordingExporter) Export(runID string, _ time.Time, _ []domain.EnrichedIncident, bins []domain.ElevationBin) error {
	e.calls++
	e.runID = runID
	e.bins = bins
	return nil
}
