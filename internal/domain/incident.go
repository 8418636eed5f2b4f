package domain

import (
	"github.com/paulmach/orb"
)

// Incident is one row of the cleaned dataset, restricted to the allow-listed columns.
type Incident struct {
	Row              int        `json:"row"`
	ID               string     `json:"id"`
	IncidentDatetime string     `json:"incident_datetime"`
	ReportDatetime   string     `json:"report_datetime"`
	IncidentTime     string     `json:"incident_time"`
	DayOfWeek        string     `json:"day_of_week"`
	Year             *int       `json:"year,omitempty"`
	Category         Category   `json:"category"`
	Location         *orb.Point `json:"location,omitempty"` // [lon, lat]; nil when either coordinate is missing
}

// Lat returns the latitude of a located incident.
func (i Incident) Lat() float64 { return i.Location.Lat() }

// Lon returns the longitude of a located incident.
func (i Incident) Lon() float64 { return i.Location.Lon() }

// Features holds the fields derived from an incident's raw timestamp and calendar columns.
type Features struct {
	LatencyMinutes *float64 `json:"latency_minutes,omitempty"`
	HourBucket     *int     `json:"hour_bucket,omitempty"`
	DayNumber      int      `json:"day_number"`

	// Err is set when a timestamp field could not be parsed.
	Err error `json:"-"`
}

// DerivedIncident pairs an incident with its derived features.
type DerivedIncident struct {
	Incident
	Features
}

// EnrichedIncident is a derived incident with its resolved ground elevation in meters.
type EnrichedIncident struct {
	DerivedIncident
	Elevation *float64 `json:"elevation,omitempty"`
}

// Column names used in regression tables.
const (
	ColLatency       = "latency_minutes"
	ColYear          = "incident_year"
	ColDayNumber     = "day_number"
	ColHourBucket    = "hour_bucket"
	ColElevation     = "elevation"
	ColIncidentCount = "incident_count"
)

// Observation flattens the incident into named numeric columns. Absent values
// are left out of the map.
func (e EnrichedIncident) Observation() map[string]float64 {
	obs := map[string]float64{ColDayNumber: float64(e.DayNumber)}
	if e.LatencyMinutes != nil {
		obs[ColLatency] = *e.LatencyMinutes
	}
	if e.HourBucket != nil {
		obs[ColHourBucket] = float64(*e.HourBucket)
	}
	if e.Year != nil {
		obs[ColYear] = float64(*e.Year)
	}
	if e.Elevation != nil {
		obs[ColElevation] = *e.Elevation
	}
	return obs
}
