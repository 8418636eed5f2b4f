// Command genmock writes a deterministic synthetic SFPD incident export for
// local runs and tests. It reloads the generated file through the csvsource
// and domain packages so the printed stats match real pipeline behavior.
//
// Usage:
//
//	go run ./cmd/genmock -out data/mock/incidents.csv -rows 2000 -seed 42
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/go-gota/gota/dataframe"

	"github.com/couchcryptid/incident-elevation-etl/internal/adapter/csvsource"
	"github.com/couchcryptid/incident-elevation-etl/internal/domain"
)

const sfpdLayout = "2006/01/02 03:04:05 PM"

// Bounding box of San Francisco used for synthetic coordinates.
const (
	minLat, maxLat = 37.708, 37.810
	minLon, maxLon = -122.513, -122.357
)

var baseDate = time.Date(2018, time.January, 1, 0, 0, 0, 0, time.UTC)

var categories = []domain.Category{
	domain.CategoryAssault,
	domain.CategoryFraud,
	domain.CategoryMissingPerson,
	domain.CategoryTrafficCollision,
	domain.CategoryWarrant,
	domain.CategoryDisorderlyConduct,
	domain.CategoryDrugOffense,
	"Larceny Theft",
	"Burglary",
}

// Extra columns present in the real export and dropped by the allow-list.
var extraColumns = []string{"Incident Number", "Police District", "Resolution"}

type options struct {
	rows           int
	seed           uint64
	badTimestamp   float64
	missingCoords  float64
	negativeReport float64
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "", "output path for the generated CSV")
	var opts options
	flag.IntVar(&opts.rows, "rows", 1000, "number of incidents to generate")
	flag.Uint64Var(&opts.seed, "seed", 42, "random seed")
	flag.Float64Var(&opts.badTimestamp, "bad-timestamp", 0.01, "fraction of rows with an unparsable incident datetime")
	flag.Float64Var(&opts.missingCoords, "missing-coords", 0.03, "fraction of rows without coordinates")
	flag.Float64Var(&opts.negativeReport, "negative-report", 0.02, "fraction of rows reported before the incident")
	flag.Parse()

	if *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}

	records := generate(opts)
	if err := writeCSV(*out, records); err != nil {
		return fmt.Errorf("writing fixture: %w", err)
	}
	log.Printf("wrote %d incidents to %s", opts.rows, *out)

	return printStats(*out)
}

// generate returns a header row followed by opts.rows incident rows.
func generate(opts options) [][]string {
	rng := rand.New(rand.NewPCG(opts.seed, opts.seed^0x9e3779b97f4a7c15))

	header := append([]string{domain.ColumnIncidentID}, domain.RequiredColumns...)
	header = append(header, extraColumns...)
	records := make([][]string, 0, opts.rows+1)
	records = append(records, header)

	for i := range opts.rows {
		at := baseDate.
			AddDate(0, 0, rng.IntN(5*365)).
			Add(time.Duration(rng.IntN(24*60)) * time.Minute)
		latency := time.Duration(5+rng.ExpFloat64()*180) * time.Minute
		reported := at.Add(latency)
		if rng.Float64() < opts.negativeReport {
			reported = at.Add(-latency)
		}

		incidentAt := at.Format(sfpdLayout)
		if rng.Float64() < opts.badTimestamp {
			incidentAt = "unknown"
		}

		lat := strconv.FormatFloat(minLat+rng.Float64()*(maxLat-minLat), 'f', 6, 64)
		lon := strconv.FormatFloat(minLon+rng.Float64()*(maxLon-minLon), 'f', 6, 64)
		if rng.Float64() < opts.missingCoords {
			lat, lon = "", ""
		}

		row := map[string]string{
			domain.ColumnIncidentID:       strconv.Itoa(1_000_000 + i),
			domain.ColumnIncidentDatetime: incidentAt,
			domain.ColumnReportDatetime:   reported.Format(sfpdLayout),
			domain.ColumnIncidentTime:     at.Format("15:04"),
			domain.ColumnDayOfWeek:        at.Weekday().String(),
			domain.ColumnIncidentYear:     strconv.Itoa(at.Year()),
			domain.ColumnCategory:         string(categories[rng.IntN(len(categories))]),
			domain.ColumnLatitude:         lat,
			domain.ColumnLongitude:        lon,
			"Incident Number":             strconv.Itoa(200_000_000 + rng.IntN(1_000_000)),
			"Police District":             "Central",
			"Resolution":                  "Open or Active",
		}
		values := make([]string, len(header))
		for j, col := range header {
			values[j] = row[col]
		}
		records = append(records, values)
	}
	return records
}

func writeCSV(path string, records [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	df := dataframe.LoadRecords(records, dataframe.DetectTypes(false))
	if df.Err != nil {
		return df.Err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := df.WriteCSV(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

type categoryCount struct {
	category domain.Category
	count    int
}

func printStats(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	df, err := csvsource.ReadFrame(f)
	if err != nil {
		return fmt.Errorf("reload fixture: %w", err)
	}
	incidents, err := csvsource.Records(df)
	if err != nil {
		return fmt.Errorf("reload fixture: %w", err)
	}

	derived, summary := domain.NewDeriver(domain.DayMappingReference).Derive(incidents)
	located := domain.WithCoordinates(derived)

	fmt.Println("\n=== Stats for updating test assertions ===")
	fmt.Printf("Total: %d\n", summary.Records)
	fmt.Printf("Unparsable timestamps: %d\n", summary.Unparsable)
	fmt.Printf("Reported before incident: %d\n", summary.NegativeRaw)
	fmt.Printf("With coordinates: %d\n", len(located))

	byCategory := domain.CountBy(incidents, func(i domain.Incident) (domain.Category, bool) {
		return i.Category, true
	})
	cc := make([]categoryCount, 0, len(byCategory))
	for c, n := range byCategory {
		cc = append(cc, categoryCount{c, n})
	}
	sort.Slice(cc, func(i, j int) bool {
		if cc[i].count != cc[j].count {
			return cc[i].count > cc[j].count
		}
		return cc[i].category < cc[j].category
	})
	fmt.Printf("Categories (%d): ", len(cc))
	for _, c := range cc {
		fmt.Printf("%s=%d ", c.category, c.count)
	}
	fmt.Println()
	return nil
}
