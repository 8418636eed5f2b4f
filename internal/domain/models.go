package domain

import (
	"math"
	"math/rand/v2"

	"github.com/couchcryptid/incident-elevation-etl/internal/regression"
)

// ModelDef names one of the fitted models and the formula it uses.
type ModelDef struct {
	Name string
	Spec regression.Spec
}

// The three models fitted by a run.
var (
	// LatencyModel predicts report latency from calendar, time and elevation
	// features over the training split.
	LatencyModel = ModelDef{
		Name: "report_latency",
		Spec: regression.MustParseFormula("latency_minutes ~ incident_year + day_number + hour_bucket + elevation"),
	}

	// AssaultLatencyModel predicts report latency for assaults from elevation
	// and hour. The subset is small, so it is fitted without a split.
	AssaultLatencyModel = ModelDef{
		Name: "assault_latency",
		Spec: regression.MustParseFormula("latency_minutes ~ elevation + hour_bucket"),
	}

	// ElevationCountModel regresses incident counts on the elevation bin label.
	ElevationCountModel = ModelDef{
		Name: "incidents_by_elevation",
		Spec: regression.MustParseFormula("incident_count ~ elevation"),
	}
)

// Observations converts enriched incidents into regression rows.
func Observations(records []EnrichedIncident) []regression.Row {
	rows := make([]regression.Row, len(records))
	for i, r := range records {
		rows[i] = r.Observation()
	}
	return rows
}

// SplitTrainTest shuffles rows with a seeded generator and holds out
// ceil(testFraction*n) of them. The same seed always yields the same split.
func SplitTrainTest[T any](rows []T, testFraction float64, seed uint64) (train, test []T) {
	n := len(rows)
	nTest := int(math.Ceil(testFraction * float64(n)))
	if nTest > n {
		nTest = n
	}
	if nTest < 0 {
		nTest = 0
	}

	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	perm := rng.Perm(n)

	test = make([]T, 0, nTest)
	train = make([]T, 0, n-nTest)
	for i, idx := range perm {
		if i < nTest {
			test = append(test, rows[idx])
		} else {
			train = append(train, rows[idx])
		}
	}
	return train, test
}

// CountBy tallies records by a key, e.g. hour bucket or category.
func CountBy[T any, K comparable](rows []T, key func(T) (K, bool)) map[K]int {
	counts := make(map[K]int)
	for _, r := range rows {
		if k, ok := key(r); ok {
			counts[k]++
		}
	}
	return counts
}
