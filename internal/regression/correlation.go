package regression

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Correlation returns the Pearson correlation of columns a and b over rows
// where both are present. It returns NaN with fewer than two such rows.
func Correlation(rows []Row, a, b string) float64 {
	xs := make([]float64, 0, len(rows))
	ys := make([]float64, 0, len(rows))
	for _, r := range rows {
		x, okX := r[a]
		y, okY := r[b]
		if !okX || !okY || math.IsNaN(x) || math.IsNaN(y) {
			continue
		}
		xs = append(xs, x)
		ys = append(ys, y)
	}
	if len(xs) < 2 {
		return math.NaN()
	}
	return stat.Correlation(xs, ys, nil)
}

// CorrelationMatrix returns pairwise correlations for the given columns,
// indexed in column order.
func CorrelationMatrix(rows []Row, columns []string) [][]float64 {
	out := make([][]float64, len(columns))
	for i := range columns {
		out[i] = make([]float64, len(columns))
		for j := range columns {
			if i == j {
				out[i][j] = 1
				continue
			}
			if j < i {
				out[i][j] = out[j][i]
				continue
			}
			out[i][j] = Correlation(rows, columns[i], columns[j])
		}
	}
	return out
}
