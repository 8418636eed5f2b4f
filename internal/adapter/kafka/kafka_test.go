package kafka

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/incident-elevation-etl/internal/config"
	"github.com/couchcryptid/incident-elevation-etl/internal/domain"
)

func ptr[T any](v T) *T { return &v }

func enrichedFixture() domain.EnrichedIncident {
	return domain.EnrichedIncident{
		DerivedIncident: domain.DerivedIncident{
			Incident: domain.Incident{
				Row:      4,
				ID:       "1254120",
				Category: domain.CategoryAssault,
				Year:     ptr(2023),
				Location: &orb.Point{-122.4194, 37.7749},
			},
			Features: domain.Features{
				LatencyMinutes: ptr(90.0),
				HourBucket:     ptr(14),
				DayNumber:      3,
			},
		},
		Elevation: ptr(16.0),
	}
}

func TestSerializeToMessage(t *testing.T) {
	now := time.Date(2024, 4, 26, 15, 10, 0, 0, time.UTC)

	msg, err := serializeToMessage(enrichedFixture(), domain.DefaultBinner, "run-1", now)
	require.NoError(t, err)

	assert.Equal(t, []byte("1254120"), msg.Key)
	require.Len(t, msg.Headers, 3)
	assert.Equal(t, "category", msg.Headers[0].Key)
	assert.Equal(t, []byte("Assault"), msg.Headers[0].Value)
	assert.Equal(t, "run_id", msg.Headers[1].Key)
	assert.Equal(t, []byte("run-1"), msg.Headers[1].Value)
	assert.Equal(t, "processed_at", msg.Headers[2].Key)
	assert.Equal(t, []byte(now.Format(time.RFC3339)), msg.Headers[2].Value)

	assert.JSONEq(t, `{
		"id": "1254120",
		"category": "Assault",
		"lat": 37.7749,
		"lon": -122.4194,
		"incident_year": 2023,
		"day_number": 3,
		"hour_bucket": 14,
		"latency_minutes": 90,
		"elevation": 16,
		"elevation_bin": 2,
		"run_id": "run-1",
		"processed_at": "2024-04-26T15:10:00Z"
	}`, string(msg.Value))
}

func TestNewIncidentMessage_OmitsUnknowns(t *testing.T) {
	inc := enrichedFixture()
	inc.Location = nil
	inc.Elevation = nil
	inc.LatencyMinutes = nil

	msg := NewIncidentMessage(inc, domain.DefaultBinner, "run-2", time.Unix(0, 0))
	data, err := json.Marshal(msg)
	require.NoError(t, err)

	assert.NotContains(t, string(data), `"lat"`)
	assert.NotContains(t, string(data), `"elevation"`)
	assert.NotContains(t, string(data), `"elevation_bin"`)
	assert.NotContains(t, string(data), `"latency_minutes"`)
	assert.Contains(t, string(data), `"day_number":3`)
}

func TestNewIncidentMessage_NegativeElevationInFirstBin(t *testing.T) {
	inc := enrichedFixture()
	inc.Elevation = ptr(-3.5)

	msg := NewIncidentMessage(inc, domain.DefaultBinner, "run-3", time.Unix(0, 0))
	require.NotNil(t, msg.ElevationBin)
	assert.Equal(t, 0, *msg.ElevationBin)
}

func TestNewWriter_UsesConfiguredBinner(t *testing.T) {
	binner := domain.NewBinner(5, 10)
	w := NewWriter(&config.Config{
		KafkaBrokers:   []string{"127.0.0.1:1"},
		KafkaSinkTopic: "incidents",
	}, binner, nil)
	t.Cleanup(func() { _ = w.Close() })

	assert.Equal(t, binner, w.binner)

	msg, err := serializeToMessage(enrichedFixture(), w.binner, "run-4", time.Unix(0, 0))
	require.NoError(t, err)

	var got IncidentMessage
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	require.NotNil(t, got.ElevationBin)
	// 16 m falls in [15, 20) with 5 m bins, not in the default [10, 20).
	assert.Equal(t, 4, *got.ElevationBin)
	assert.NotEqual(t, domain.DefaultBinner.Index(16), *got.ElevationBin)
}
