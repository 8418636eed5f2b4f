package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingColumn is returned when the input lacks an allow-listed column.
	ErrMissingColumn = errors.New("missing column")

	// ErrUnparsableTimestamp marks a record whose datetime or time field could not be parsed.
	ErrUnparsableTimestamp = errors.New("unparsable timestamp")

	// ErrElevationLookup marks a record whose elevation could not be resolved.
	ErrElevationLookup = errors.New("elevation lookup failed")
)

// MissingColumnError lists the required columns absent from the input header.
type MissingColumnError struct {
	Columns []string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("%s: %s", ErrMissingColumn, strings.Join(e.Columns, ", "))
}

func (e *MissingColumnError) Unwrap() error { return ErrMissingColumn }

// UnparsableTimestampError identifies the record and field that failed to parse.
type UnparsableTimestampError struct {
	IncidentID string
	Field      string
	Value      string
	Err        error
}

func (e *UnparsableTimestampError) Error() string {
	return fmt.Sprintf("%s: incident %s: %s %q: %v", ErrUnparsableTimestamp, e.IncidentID, e.Field, e.Value, e.Err)
}

func (e *UnparsableTimestampError) Unwrap() []error { return []error{ErrUnparsableTimestamp, e.Err} }

// ElevationLookupError identifies the row whose lookup failed.
type ElevationLookupError struct {
	Row        int
	IncidentID string
	Lat        float64
	Lon        float64
	Err        error
}

func (e *ElevationLookupError) Error() string {
	return fmt.Sprintf("%s: row %d (incident %s) at %.6f,%.6f: %v",
		ErrElevationLookup, e.Row, e.IncidentID, e.Lat, e.Lon, e.Err)
}

func (e *ElevationLookupError) Unwrap() []error { return []error{ErrElevationLookup, e.Err} }
