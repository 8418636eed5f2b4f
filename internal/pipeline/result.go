package pipeline

import (
	"cmp"
	"slices"
	"time"

	"github.com/couchcryptid/incident-elevation-etl/internal/domain"
	"github.com/couchcryptid/incident-elevation-etl/internal/regression"
)

// Result is everything a run produced. Fields after Enrich are only set when
// enrichment completed.
type Result struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time

	Loaded  int
	Derive  domain.DeriveSummary
	Located int
	Enrich  domain.EnrichSummary

	// Incidents holds the located incidents with a known elevation.
	Incidents []domain.EnrichedIncident
	Lookups   []domain.ElevationResult

	Bins      []domain.ElevationBin
	Fits      []FitResult
	TrainSize int
	TestSize  int
	Summary   Summary
}

// FailedFits returns the number of models that could not be fitted.
func (r *Result) FailedFits() int {
	n := 0
	for _, f := range r.Fits {
		if f.Err != nil {
			n++
		}
	}
	return n
}

// Fit returns the named fit.
func (r *Result) Fit(name string) (FitResult, bool) {
	for _, f := range r.Fits {
		if f.Name == name {
			return f, true
		}
	}
	return FitResult{}, false
}

// FitResult is one model's outcome. Exactly one of Model and Err is set.
type FitResult struct {
	Name  string
	Spec  regression.Spec
	Rows  int // rows offered to the fit before complete-case filtering
	Model *regression.Model
	Err   error
}

// Count is one key of a frequency table.
type Count[K any] struct {
	Key   K
	Count int
}

// CategoryCorrelation summarizes how latency moves with elevation and hour
// within one category.
type CategoryCorrelation struct {
	Category         domain.Category
	N                int
	LatencyElevation float64
	LatencyHour      float64
}

// Summary holds the descriptive tables of a run.
type Summary struct {
	ByHour     []Count[int]
	ByDay      []Count[int]
	ByCategory []Count[domain.Category]

	// CorrelationColumns orders the rows and columns of Correlations.
	CorrelationColumns   []string
	Correlations         [][]float64
	CategoryCorrelations []CategoryCorrelation
}

// CorrelationColumns are the numeric features compared pairwise in a run summary.
var CorrelationColumns = []string{
	domain.ColLatency,
	domain.ColYear,
	domain.ColDayNumber,
	domain.ColHourBucket,
	domain.ColElevation,
}

// ExaminedCategories are the categories given their own correlation row.
var ExaminedCategories = []domain.Category{
	domain.CategoryAssault,
	domain.CategoryFraud,
	domain.CategoryMissingPerson,
	domain.CategoryTrafficCollision,
	domain.CategoryWarrant,
	domain.CategoryDisorderlyConduct,
	domain.CategoryDrugOffense,
}

// Summarize tallies the derived table by hour, day and category, and
// correlates the numeric features of the enriched table.
func Summarize(derived []domain.DerivedIncident, enriched []domain.EnrichedIncident) Summary {
	byHour := domain.CountBy(derived, func(d domain.DerivedIncident) (int, bool) {
		if d.HourBucket == nil {
			return 0, false
		}
		return *d.HourBucket, true
	})
	byDay := domain.CountBy(derived, func(d domain.DerivedIncident) (int, bool) {
		return d.DayNumber, true
	})
	byCategory := domain.CountBy(derived, func(d domain.DerivedIncident) (domain.Category, bool) {
		return d.Category, d.Category != ""
	})

	rows := domain.Observations(enriched)
	s := Summary{
		ByHour:             sortedCounts(byHour, func(a, b Count[int]) int { return cmp.Compare(a.Key, b.Key) }),
		ByDay:              sortedCounts(byDay, func(a, b Count[int]) int { return cmp.Compare(a.Key, b.Key) }),
		ByCategory:         sortedCounts(byCategory, byCountDesc),
		CorrelationColumns: CorrelationColumns,
		Correlations:       regression.CorrelationMatrix(rows, CorrelationColumns),
	}

	for _, c := range ExaminedCategories {
		subset := domain.Observations(domain.Filter(enriched, domain.InCategory(c)))
		if len(subset) == 0 {
			continue
		}
		s.CategoryCorrelations = append(s.CategoryCorrelations, CategoryCorrelation{
			Category:         c,
			N:                len(subset),
			LatencyElevation: regression.Correlation(subset, domain.ColLatency, domain.ColElevation),
			LatencyHour:      regression.Correlation(subset, domain.ColLatency, domain.ColHourBucket),
		})
	}
	return s
}

func sortedCounts[K comparable](counts map[K]int, less func(a, b Count[K]) int) []Count[K] {
	out := make([]Count[K], 0, len(counts))
	for k, n := range counts {
		out = append(out, Count[K]{Key: k, Count: n})
	}
	slices.SortFunc(out, less)
	return out
}

func byCountDesc(a, b Count[domain.Category]) int {
	if c := cmp.Compare(b.Count, a.Count); c != 0 {
		return c
	}
	return cmp.Compare(a.Key, b.Key)
}
