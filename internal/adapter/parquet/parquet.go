// Package parquet exports the enriched incident table and the elevation bin
// table of a run using github.com/parquet-go/parquet-go.
package parquet

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/couchcryptid/incident-elevation-etl/internal/domain"
)

// File names written by Export.
const (
	IncidentsFile = "incidents.parquet"
	BinsFile      = "elevation_bins.parquet"
)

// IncidentRow is one enriched incident.
type IncidentRow struct {
	RunID          string    `parquet:"run_id,snappy,dict"`
	ProcessedAt    time.Time `parquet:"processed_at,snappy"`
	IncidentID     string    `parquet:"incident_id,snappy"`
	Category       string    `parquet:"category,snappy,dict"`
	Latitude       *float64  `parquet:"latitude,optional,snappy"`
	Longitude      *float64  `parquet:"longitude,optional,snappy"`
	IncidentYear   *int32    `parquet:"incident_year,optional,snappy"`
	DayNumber      int32     `parquet:"day_number,snappy"`
	HourBucket     *int32    `parquet:"hour_bucket,optional,snappy"`
	LatencyMinutes *float64  `parquet:"latency_minutes,optional,snappy"`
	Elevation      *float64  `parquet:"elevation,optional,snappy"`
	ElevationBin   *int32    `parquet:"elevation_bin,optional,snappy"`
}

// BinRow is one elevation bin. The open ends of the first and last bins are
// stored as null bounds.
type BinRow struct {
	RunID         string   `parquet:"run_id,snappy,dict"`
	BinIndex      int32    `parquet:"bin_index,snappy"`
	LowerMeters   *float64 `parquet:"lower_m,optional,snappy"`
	UpperMeters   *float64 `parquet:"upper_m,optional,snappy"`
	LabelMeters   float64  `parquet:"label_m,snappy"`
	IncidentCount int64    `parquet:"incident_count,snappy"`
}

// Exporter writes each run's tables into a fixed directory.
// It implements pipeline.Exporter.
type Exporter struct {
	dir    string
	binner domain.Binner
}

// NewExporter creates an Exporter writing into dir.
func NewExporter(dir string, binner domain.Binner) *Exporter {
	return &Exporter{dir: dir, binner: binner}
}

func (e *Exporter) Export(runID string, processedAt time.Time, incidents []domain.EnrichedIncident, bins []domain.ElevationBin) error {
	return Export(e.dir, runID, processedAt, incidents, bins, e.binner)
}

// Export writes both tables into dir, creating it if needed.
func Export(dir, runID string, processedAt time.Time, incidents []domain.EnrichedIncident, bins []domain.ElevationBin, binner domain.Binner) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create parquet dir: %w", err)
	}
	if err := WriteIncidents(filepath.Join(dir, IncidentsFile), IncidentRows(runID, processedAt, incidents, binner)); err != nil {
		return err
	}
	return WriteBins(filepath.Join(dir, BinsFile), BinRows(runID, bins))
}

// IncidentRows converts enriched incidents to Parquet rows.
func IncidentRows(runID string, processedAt time.Time, incidents []domain.EnrichedIncident, binner domain.Binner) []IncidentRow {
	rows := make([]IncidentRow, len(incidents))
	for i, inc := range incidents {
		row := IncidentRow{
			RunID:          runID,
			ProcessedAt:    processedAt.UTC(),
			IncidentID:     inc.ID,
			Category:       string(inc.Category),
			IncidentYear:   int32Ptr(inc.Year),
			DayNumber:      int32(inc.DayNumber),
			HourBucket:     int32Ptr(inc.HourBucket),
			LatencyMinutes: inc.LatencyMinutes,
			Elevation:      inc.Elevation,
		}
		if inc.Location != nil {
			lat, lon := inc.Lat(), inc.Lon()
			row.Latitude, row.Longitude = &lat, &lon
		}
		if inc.Elevation != nil {
			bin := int32(binner.Index(*inc.Elevation))
			row.ElevationBin = &bin
		}
		rows[i] = row
	}
	return rows
}

// BinRows converts a bin table to Parquet rows.
func BinRows(runID string, bins []domain.ElevationBin) []BinRow {
	rows := make([]BinRow, len(bins))
	for i, b := range bins {
		rows[i] = BinRow{
			RunID:         runID,
			BinIndex:      int32(b.Index),
			LowerMeters:   finitePtr(b.Lower),
			UpperMeters:   finitePtr(b.Upper),
			LabelMeters:   b.Label,
			IncidentCount: int64(b.Count),
		}
	}
	return rows
}

// WriteIncidents writes incident rows to a Parquet file.
func WriteIncidents(path string, rows []IncidentRow) error {
	return writeRows(path, rows)
}

// WriteBins writes bin rows to a Parquet file.
func WriteBins(path string, rows []BinRow) error {
	return writeRows(path, rows)
}

func writeRows[T any](path string, rows []T) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", filepath.Base(path), cerr)
		}
	}()

	writer := parquet.NewGenericWriter[T](file)
	if _, err := writer.Write(rows); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("flush %s: %w", filepath.Base(path), err)
	}
	return nil
}

func int32Ptr(v *int) *int32 {
	if v == nil {
		return nil
	}
	n := int32(*v)
	return &n
}

func finitePtr(v float64) *float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return &v
}
