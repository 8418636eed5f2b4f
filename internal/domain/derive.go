package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// DayMapping selects how weekday labels become day numbers.
type DayMapping string

const (
	// DayMappingReference maps Monday..Saturday to 1..6 and everything else,
	// Sunday included, to 7. It matches the published analysis.
	DayMappingReference DayMapping = "reference"

	// DayMappingISO maps Monday..Sunday to 1..7 and unrecognized labels to 0.
	DayMappingISO DayMapping = "iso"
)

var weekdayNumbers = map[string]int{
	"Monday":    1,
	"Tuesday":   2,
	"Wednesday": 3,
	"Thursday":  4,
	"Friday":    5,
	"Saturday":  6,
}

// DayNumber converts an English weekday name to its number under the mapping.
func (m DayMapping) DayNumber(day string) int {
	day = strings.TrimSpace(day)
	if n, ok := weekdayNumbers[day]; ok {
		return n
	}
	if m == DayMappingISO {
		if day == "Sunday" {
			return 7
		}
		return 0
	}
	return 7
}

// ParseDayMapping validates a mapping name.
func ParseDayMapping(s string) (DayMapping, error) {
	switch m := DayMapping(strings.ToLower(strings.TrimSpace(s))); m {
	case DayMappingReference, DayMappingISO:
		return m, nil
	default:
		return "", fmt.Errorf("unknown day mapping %q", s)
	}
}

// midnight anchors time-of-day values for the minute-difference routine.
var midnight = time.Date(0, time.January, 1, 0, 0, 0, 0, time.UTC)

// HourBucket returns the whole hours between midnight and the time of day.
func HourBucket(tod time.Duration) int {
	return int(math.Floor(MinutesBetween(midnight, midnight.Add(tod)) / 60.0))
}

// DeriveSummary counts record-scoped outcomes of feature derivation.
type DeriveSummary struct {
	Records     int
	Unparsable  int
	NegativeRaw int // report earlier than incident before taking the absolute value
}

// Deriver computes derived features for loaded incidents.
type Deriver struct {
	Days DayMapping
}

// NewDeriver returns a Deriver using the given day mapping. An empty mapping
// selects the reference behavior.
func NewDeriver(days DayMapping) *Deriver {
	if days == "" {
		days = DayMappingReference
	}
	return &Deriver{Days: days}
}

// Derive computes latency, hour bucket and day number for every record. Rows
// are never dropped; records with unparsable timestamps carry Features.Err
// and leave the affected fields nil.
func (d *Deriver) Derive(records []Incident) ([]DerivedIncident, DeriveSummary) {
	out := make([]DerivedIncident, len(records))
	summary := DeriveSummary{Records: len(records)}
	for i, rec := range records {
		f, negative := d.derive(rec)
		if f.Err != nil {
			summary.Unparsable++
		}
		if negative {
			summary.NegativeRaw++
		}
		out[i] = DerivedIncident{Incident: rec, Features: f}
	}
	return out, summary
}

func (d *Deriver) derive(rec Incident) (Features, bool) {
	f := Features{DayNumber: d.Days.DayNumber(rec.DayOfWeek)}

	incidentAt, incidentErr := ParseTimestamp(rec.IncidentDatetime)
	reportAt, reportErr := ParseTimestamp(rec.ReportDatetime)

	var negative bool
	switch {
	case incidentErr != nil:
		f.Err = &UnparsableTimestampError{IncidentID: rec.ID, Field: ColumnIncidentDatetime, Value: rec.IncidentDatetime, Err: incidentErr}
	case reportErr != nil:
		f.Err = &UnparsableTimestampError{IncidentID: rec.ID, Field: ColumnReportDatetime, Value: rec.ReportDatetime, Err: reportErr}
	default:
		raw := MinutesBetween(incidentAt, reportAt)
		negative = raw < 0
		latency := math.Abs(raw)
		f.LatencyMinutes = &latency
	}

	tod, err := ParseTimeOfDay(rec.IncidentTime)
	switch {
	case err == nil:
		hour := HourBucket(tod)
		f.HourBucket = &hour
	case incidentErr == nil:
		hour := HourBucket(sinceMidnight(incidentAt))
		f.HourBucket = &hour
	case f.Err == nil:
		f.Err = &UnparsableTimestampError{IncidentID: rec.ID, Field: ColumnIncidentTime, Value: rec.IncidentTime, Err: err}
	}

	return f, negative
}
