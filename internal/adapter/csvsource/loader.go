// Package csvsource loads the incident CSV export into domain records.
package csvsource

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/paulmach/orb"

	"github.com/couchcryptid/incident-elevation-etl/internal/domain"
)

// Loader reads incident CSV files and prunes them to the domain allow-list.
// It implements pipeline.Source.
type Loader struct {
	path   string
	logger *slog.Logger
}

// NewLoader creates a Loader for the file at path.
func NewLoader(path string, logger *slog.Logger) *Loader {
	return &Loader{path: path, logger: logger}
}

// Load opens the file and returns one record per data row.
func (l *Loader) Load() ([]domain.Incident, error) {
	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("open incidents: %w", err)
	}
	defer f.Close()

	df, err := ReadFrame(f)
	if err != nil {
		return nil, err
	}
	l.logger.Info("incident file loaded", "path", l.path, "rows", df.Nrow(), "columns", df.Names())

	return Records(df)
}

// ReadFrame reads a CSV with every column as a string and keeps only the
// allow-listed columns. A missing required column yields a
// *domain.MissingColumnError.
func ReadFrame(r io.Reader) (dataframe.DataFrame, error) {
	df := dataframe.ReadCSV(r,
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
		dataframe.WithLazyQuotes(true),
	)
	if df.Err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("read incidents csv: %w", df.Err)
	}

	header := df.Names()
	if missing := domain.MissingColumns(header); len(missing) > 0 {
		return dataframe.DataFrame{}, &domain.MissingColumnError{Columns: missing}
	}

	pruned := df.Select(domain.AllowedColumns(header))
	if pruned.Err != nil {
		return dataframe.DataFrame{}, fmt.Errorf("select columns: %w", pruned.Err)
	}
	return pruned, nil
}

// Records converts a pruned frame into incidents in row order.
func Records(df dataframe.DataFrame) ([]domain.Incident, error) {
	col := func(name string) []string {
		return df.Col(name).Records()
	}

	incidentAt := col(domain.ColumnIncidentDatetime)
	reportAt := col(domain.ColumnReportDatetime)
	incidentTime := col(domain.ColumnIncidentTime)
	days := col(domain.ColumnDayOfWeek)
	years := col(domain.ColumnIncidentYear)
	categories := col(domain.ColumnCategory)
	lats := col(domain.ColumnLatitude)
	lons := col(domain.ColumnLongitude)

	var ids []string
	if hasColumn(df, domain.ColumnIncidentID) {
		ids = col(domain.ColumnIncidentID)
	}

	n := df.Nrow()
	out := make([]domain.Incident, n)
	for i := 0; i < n; i++ {
		id := ""
		if ids != nil {
			id = cleanValue(ids[i])
		}
		if id == "" {
			id = "row-" + strconv.Itoa(i)
		}

		out[i] = domain.Incident{
			Row:              i,
			ID:               id,
			IncidentDatetime: cleanValue(incidentAt[i]),
			ReportDatetime:   cleanValue(reportAt[i]),
			IncidentTime:     cleanValue(incidentTime[i]),
			DayOfWeek:        cleanValue(days[i]),
			Year:             parseYear(years[i]),
			Category:         domain.NormalizeCategory(cleanValue(categories[i])),
			Location:         parseLocation(lats[i], lons[i]),
		}
	}
	return out, nil
}

func hasColumn(df dataframe.DataFrame, name string) bool {
	for _, n := range df.Names() {
		if n == name {
			return true
		}
	}
	return false
}

// cleanValue trims whitespace and maps the frame's NA markers to "".
func cleanValue(s string) string {
	s = strings.TrimSpace(s)
	switch s {
	case "NaN", "NA", "<nil>":
		return ""
	}
	return s
}

func parseYear(s string) *int {
	s = cleanValue(s)
	if s == "" {
		return nil
	}
	y, err := strconv.Atoi(s)
	if err != nil {
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil || f != math.Trunc(f) {
			return nil
		}
		y = int(f)
	}
	return &y
}

// parseLocation returns nil unless both coordinates parse to finite numbers.
func parseLocation(lat, lon string) *orb.Point {
	la, okLat := parseCoordinate(lat)
	lo, okLon := parseCoordinate(lon)
	if !okLat || !okLon {
		return nil
	}
	return &orb.Point{lo, la}
}

func parseCoordinate(s string) (float64, bool) {
	s = cleanValue(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
