// Package regression fits ordinary least squares models with an intercept
// and reports the usual in-sample diagnostics.
package regression

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

var (
	// ErrNonInvertibleDesign is returned when the predictor matrix is rank-deficient.
	ErrNonInvertibleDesign = errors.New("non-invertible design matrix")

	// ErrInsufficientObservations is returned when there are no more complete
	// rows than parameters, leaving no residual degrees of freedom.
	ErrInsufficientObservations = errors.New("insufficient observations")
)

// rankTolerance is the smallest ratio of the least to the largest singular
// value of the design matrix accepted as full rank.
const rankTolerance = 1e-10

// InterceptName labels the constant term in Model.Coefficients.
const InterceptName = "Intercept"

// Row is one observation keyed by column name. A missing key is a missing value.
type Row = map[string]float64

// Spec names the response and the ordered predictors of a model.
type Spec struct {
	Response   string
	Predictors []string
}

func (s Spec) String() string {
	return FormatFormula(s)
}

// Coefficient is one fitted parameter with its inference statistics.
type Coefficient struct {
	Name   string
	Value  float64
	StdErr float64
	T      float64
	P      float64
}

// Model is a fitted OLS model. It is not modified after Fit returns.
type Model struct {
	Spec         Spec
	Coefficients []Coefficient // intercept first, then predictors in Spec order
	N            int           // complete observations used
	Excluded     int           // rows dropped for missing values
	DFResidual   int
	RSquared     float64
	AdjRSquared  float64
	FStatistic   float64
	FPValue      float64
	ResidualSE   float64
}

// Coefficient returns the named coefficient.
func (m *Model) Coefficient(name string) (Coefficient, bool) {
	for _, c := range m.Coefficients {
		if c.Name == name {
			return c, true
		}
	}
	return Coefficient{}, false
}

// Fit estimates response = b0 + sum(bi * predictor_i) over the rows with a
// value for every named column.
func Fit(rows []Row, spec Spec) (*Model, error) {
	if spec.Response == "" || len(spec.Predictors) == 0 {
		return nil, fmt.Errorf("invalid model spec %q", spec)
	}

	complete := completeRows(rows, spec)
	n := len(complete)
	p := len(spec.Predictors) + 1
	if n <= p {
		return nil, fmt.Errorf("fit %s: %d complete rows for %d parameters: %w", spec, n, p, ErrInsufficientObservations)
	}

	x := mat.NewDense(n, p, nil)
	y := mat.NewVecDense(n, nil)
	for i, r := range complete {
		x.Set(i, 0, 1)
		for j, name := range spec.Predictors {
			x.Set(i, j+1, r[name])
		}
		y.SetVec(i, r[spec.Response])
	}

	if err := checkRank(x); err != nil {
		return nil, fmt.Errorf("fit %s: %w", spec, err)
	}

	var qr mat.QR
	qr.Factorize(x)

	var beta mat.VecDense
	if err := qr.SolveVecTo(&beta, false, y); err != nil {
		return nil, fmt.Errorf("fit %s: solve: %w", spec, errors.Join(ErrNonInvertibleDesign, err))
	}

	inv, err := unscaledCovariance(&qr, p)
	if err != nil {
		return nil, fmt.Errorf("fit %s: invert: %w", spec, errors.Join(ErrNonInvertibleDesign, err))
	}

	var fitted mat.VecDense
	fitted.MulVec(x, &beta)

	meanY := mat.Sum(y) / float64(n)
	var rss, tss float64
	for i := 0; i < n; i++ {
		res := y.AtVec(i) - fitted.AtVec(i)
		rss += res * res
		dev := y.AtVec(i) - meanY
		tss += dev * dev
	}

	dfResid := n - p
	dfModel := p - 1
	sigma2 := rss / float64(dfResid)
	tdist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(dfResid)}

	m := &Model{
		Spec:       spec,
		N:          n,
		Excluded:   len(rows) - n,
		DFResidual: dfResid,
		ResidualSE: math.Sqrt(sigma2),
	}

	names := append([]string{InterceptName}, spec.Predictors...)
	m.Coefficients = make([]Coefficient, p)
	for j := 0; j < p; j++ {
		c := Coefficient{Name: names[j], Value: beta.AtVec(j)}
		c.StdErr = math.Sqrt(sigma2 * inv.At(j, j))
		c.T = c.Value / c.StdErr
		c.P = 2 * tdist.Survival(math.Abs(c.T))
		m.Coefficients[j] = c
	}

	if tss > 0 {
		m.RSquared = 1 - rss/tss
		m.AdjRSquared = 1 - (1-m.RSquared)*float64(n-1)/float64(dfResid)
		m.FStatistic = ((tss - rss) / float64(dfModel)) / sigma2
		m.FPValue = distuv.F{D1: float64(dfModel), D2: float64(dfResid)}.Survival(m.FStatistic)
	} else {
		m.RSquared = math.NaN()
		m.AdjRSquared = math.NaN()
		m.FStatistic = math.NaN()
		m.FPValue = math.NaN()
	}

	return m, nil
}

// checkRank rejects designs whose singular values span more than
// rankTolerance. Working on X rather than XᵀX keeps uncentered predictors
// such as calendar years well within range.
func checkRank(x *mat.Dense) error {
	var svd mat.SVD
	if ok := svd.Factorize(x, mat.SVDNone); !ok {
		return ErrNonInvertibleDesign
	}
	values := svd.Values(nil)
	largest, smallest := values[0], values[len(values)-1]
	if largest == 0 || smallest/largest < rankTolerance {
		return fmt.Errorf("singular value ratio %.3g: %w", smallest/largest, ErrNonInvertibleDesign)
	}
	return nil
}

// unscaledCovariance returns (XᵀX)⁻¹ = R⁻¹R⁻ᵀ from the p×p triangle of R.
func unscaledCovariance(qr *mat.QR, p int) (*mat.Dense, error) {
	var full mat.Dense
	qr.RTo(&full)

	r := mat.NewTriDense(p, mat.Upper, nil)
	for i := 0; i < p; i++ {
		for j := i; j < p; j++ {
			r.SetTri(i, j, full.At(i, j))
		}
	}

	var rinv mat.TriDense
	if err := rinv.InverseTri(r); err != nil {
		return nil, err
	}
	var inv mat.Dense
	inv.Mul(&rinv, rinv.T())
	return &inv, nil
}

func completeRows(rows []Row, spec Spec) []Row {
	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		if hasAll(r, spec) {
			out = append(out, r)
		}
	}
	return out
}

func hasAll(r Row, spec Spec) bool {
	v, ok := r[spec.Response]
	if !ok || math.IsNaN(v) {
		return false
	}
	for _, name := range spec.Predictors {
		v, ok := r[name]
		if !ok || math.IsNaN(v) {
			return false
		}
	}
	return true
}
