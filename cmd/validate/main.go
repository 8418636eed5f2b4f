// Command validate performs integrity checks on the Parquet tables written by
// an incidents run, optionally cross-checking them against the source CSV. It
// verifies run consistency, the bin table layout, per-incident derived
// fields, and that every exported incident exists in the source.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -parquet-dir out/ \
//	  -csv data/mock/incidents.csv
package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/parquet-go/parquet-go"

	"github.com/couchcryptid/incident-elevation-etl/internal/adapter/csvsource"
	pq "github.com/couchcryptid/incident-elevation-etl/internal/adapter/parquet"
	"github.com/couchcryptid/incident-elevation-etl/internal/domain"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	dir := flag.String("parquet-dir", "", "directory containing the exported Parquet tables")
	csvPath := flag.String("csv", "", "optional source CSV to cross-check incident IDs against")
	flag.Parse()

	if *dir == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*dir, *csvPath); code != 0 {
		os.Exit(code)
	}
}

func run(dir, csvPath string) int {
	fmt.Println("=== Incident Export Integrity Validation ===")
	fmt.Println()

	incidents, err := parquet.ReadFile[pq.IncidentRow](filepath.Join(dir, pq.IncidentsFile))
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load incidents table: %v\n", err)
		return 1
	}
	bins, err := parquet.ReadFile[pq.BinRow](filepath.Join(dir, pq.BinsFile))
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load bins table: %v\n", err)
		return 1
	}

	phases := []*phase{
		validateRunConsistency(incidents, bins),
		validateBinTable(incidents, bins),
		validateIncidentFields(incidents, bins),
	}
	if csvPath != "" {
		source, err := csvsource.NewLoader(csvPath, discardLogger()).Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: load source CSV: %v\n", err)
			return 1
		}
		phases = append(phases, validateSourceParity(incidents, source))
	}

	pass := color.New(color.FgGreen).SprintFunc()
	fail := color.New(color.FgRed).SprintfFunc()

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := pass("PASS")
		if !p.passed() {
			status = fail("FAIL (%d errors)", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Rows: %d incidents, %d bins\n", len(incidents), len(bins))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// ── Phases ──

func validateRunConsistency(incidents []pq.IncidentRow, bins []pq.BinRow) *phase {
	p := &phase{name: "Phase 1: Run consistency"}
	if len(bins) == 0 {
		p.errorf("bin table is empty")
		return p
	}
	runID := bins[0].RunID
	for i, b := range bins {
		if b.RunID != runID {
			p.errorf("bin %d: run_id %q, want %q", i, b.RunID, runID)
		}
	}
	for i, r := range incidents {
		if r.RunID != runID {
			p.errorf("incident row %d (%s): run_id %q, want %q", i, r.IncidentID, r.RunID, runID)
		}
		if r.ProcessedAt.IsZero() {
			p.errorf("incident row %d (%s): processed_at is zero", i, r.IncidentID)
		}
	}
	return p
}

func validateBinTable(incidents []pq.IncidentRow, bins []pq.BinRow) *phase {
	p := &phase{name: "Phase 2: Elevation bin table"}
	if len(bins) < 3 {
		p.errorf("expected at least 3 bins, got %d", len(bins))
		return p
	}

	width := bins[1].LabelMeters
	var total int64
	for i, b := range bins {
		if int(b.BinIndex) != i {
			p.errorf("bin %d: bin_index %d", i, b.BinIndex)
		}
		if !floatEq(b.LabelMeters, float64(i)*width) {
			p.errorf("bin %d: label %g, want %g", i, b.LabelMeters, float64(i)*width)
		}
		total += b.IncidentCount
	}
	if bins[0].LowerMeters != nil {
		p.errorf("first bin must be open below, got lower %g", *bins[0].LowerMeters)
	}
	if last := bins[len(bins)-1]; last.UpperMeters != nil {
		p.errorf("last bin must be open above, got upper %g", *last.UpperMeters)
	}

	var withElevation int64
	for _, r := range incidents {
		if r.Elevation != nil {
			withElevation++
		}
	}
	if total != withElevation {
		p.errorf("bin counts sum to %d, but %d incidents have an elevation", total, withElevation)
	}
	return p
}

func validateIncidentFields(incidents []pq.IncidentRow, bins []pq.BinRow) *phase {
	p := &phase{name: "Phase 3: Incident derived fields"}
	if len(bins) < 3 {
		p.errorf("cannot check elevation_bin without a bin table")
		return p
	}
	binner := domain.NewBinner(bins[1].LabelMeters, len(bins))

	seen := make(map[string]bool, len(incidents))
	for i, r := range incidents {
		label := fmt.Sprintf("row %d (%s)", i, r.IncidentID)
		if seen[r.IncidentID] {
			p.errorf("%s: duplicate incident_id", label)
		}
		seen[r.IncidentID] = true

		if r.Latitude == nil || r.Longitude == nil {
			p.errorf("%s: exported without coordinates", label)
		}
		if r.DayNumber < 0 || r.DayNumber > 7 {
			p.errorf("%s: day_number %d out of range", label, r.DayNumber)
		}
		if r.HourBucket != nil && (*r.HourBucket < 0 || *r.HourBucket > 23) {
			p.errorf("%s: hour_bucket %d out of range", label, *r.HourBucket)
		}
		if r.LatencyMinutes != nil && *r.LatencyMinutes < 0 {
			p.errorf("%s: negative latency_minutes %g", label, *r.LatencyMinutes)
		}
		checkElevationBin(p, label, r, binner)
	}
	return p
}

func checkElevationBin(p *phase, label string, r pq.IncidentRow, binner domain.Binner) {
	switch {
	case r.Elevation == nil && r.ElevationBin != nil:
		p.errorf("%s: elevation_bin %d without elevation", label, *r.ElevationBin)
	case r.Elevation != nil && r.ElevationBin == nil:
		p.errorf("%s: elevation %g without elevation_bin", label, *r.Elevation)
	case r.Elevation != nil:
		if want := int32(binner.Index(*r.Elevation)); *r.ElevationBin != want {
			p.errorf("%s: elevation %g in bin %d, want %d", label, *r.Elevation, *r.ElevationBin, want)
		}
	}
}

func validateSourceParity(incidents []pq.IncidentRow, source []domain.Incident) *phase {
	p := &phase{name: "Phase 4: Source CSV parity"}

	byID := make(map[string]domain.Incident, len(source))
	located := 0
	for _, inc := range source {
		byID[inc.ID] = inc
		if inc.Location != nil {
			located++
		}
	}
	if len(incidents) > located {
		p.errorf("exported %d incidents, but the source has only %d with coordinates", len(incidents), located)
	}

	for i, r := range incidents {
		src, ok := byID[r.IncidentID]
		if !ok {
			p.errorf("row %d: incident_id %q not in source", i, r.IncidentID)
			continue
		}
		if string(src.Category) != r.Category {
			p.errorf("row %d (%s): category %q, source %q", i, r.IncidentID, r.Category, src.Category)
		}
		if src.Location != nil && r.Latitude != nil && !floatEq(src.Lat(), *r.Latitude) {
			p.errorf("row %d (%s): latitude %g, source %g", i, r.IncidentID, *r.Latitude, src.Lat())
		}
	}
	return p
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func floatEq(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}
