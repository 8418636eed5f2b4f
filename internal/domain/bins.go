package domain

import (
	"math"

	"github.com/couchcryptid/incident-elevation-etl/internal/regression"
)

// ElevationBin counts incidents in the half-open interval [Lower, Upper).
type ElevationBin struct {
	Index int     `json:"index"`
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
	Label float64 `json:"label"` // Index * width; the regression's x value
	Count int     `json:"count"`
}

// Binner assigns elevations to Count fixed-width bins: one bin below zero,
// Count-2 bins of Width meters, and a final catch-all bin.
type Binner struct {
	Width float64
	Count int
}

// DefaultBinner is the 28-bin, 10-meter layout used by the analysis.
var DefaultBinner = Binner{Width: 10, Count: 28}

// NewBinner returns a Binner. Count must be at least 3 and width positive.
func NewBinner(width float64, count int) Binner {
	return Binner{Width: width, Count: count}
}

// Index returns the bin an elevation falls into. Boundary values go to the
// bin starting at that value; +Inf and NaN land in the catch-all bin.
func (b Binner) Index(elevation float64) int {
	last := b.Count - 1
	switch {
	case elevation < 0:
		return 0
	case math.IsNaN(elevation) || elevation >= b.Width*float64(last-1):
		return last
	}
	return int(math.Floor(elevation/b.Width)) + 1
}

// Bins returns the empty bin table in ascending order.
func (b Binner) Bins() []ElevationBin {
	bins := make([]ElevationBin, b.Count)
	for i := range bins {
		bins[i] = ElevationBin{
			Index: i,
			Lower: float64(i-1) * b.Width,
			Upper: float64(i) * b.Width,
			Label: float64(i) * b.Width,
		}
	}
	bins[0].Lower = math.Inf(-1)
	bins[0].Upper = 0
	bins[b.Count-1].Upper = math.Inf(1)
	return bins
}

// Histogram counts every record with a known elevation into exactly one bin.
func (b Binner) Histogram(records []EnrichedIncident) []ElevationBin {
	bins := b.Bins()
	for _, r := range records {
		if r.Elevation == nil {
			continue
		}
		bins[b.Index(*r.Elevation)].Count++
	}
	return bins
}

// BinObservations converts a bin table to regression rows of (elevation label, count).
func BinObservations(bins []ElevationBin) []regression.Row {
	rows := make([]regression.Row, len(bins))
	for i, bin := range bins {
		rows[i] = regression.Row{
			ColElevation:     bin.Label,
			ColIncidentCount: float64(bin.Count),
		}
	}
	return rows
}
