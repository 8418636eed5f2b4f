// Package report renders a pipeline run as human-readable tables.
package report

import (
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/couchcryptid/incident-elevation-etl/internal/domain"
	"github.com/couchcryptid/incident-elevation-etl/internal/pipeline"
	"github.com/couchcryptid/incident-elevation-etl/internal/regression"
)

// Significance markers, strongest first.
const (
	StrongestMarker = "***" // p < 0.001
	StrongMarker    = "**"  // p < 0.01
	ModerateMarker  = "*"   // p < 0.05
	WeakMarker      = "."   // p < 0.1
)

// Colors for significance markers on a terminal.
var (
	StrongestColor = color.New(color.FgRed, color.Bold)
	StrongColor    = color.New(color.FgMagenta, color.Bold)
	ModerateColor  = color.New(color.FgYellow)
	WeakColor      = color.New(color.FgCyan)
)

// Options controls rendering.
type Options struct {
	Color     bool
	Precision int
}

// SignificanceMarker returns the plain marker for a p-value.
func SignificanceMarker(p float64) string {
	switch {
	case math.IsNaN(p):
		return ""
	case p < 0.001:
		return StrongestMarker
	case p < 0.01:
		return StrongMarker
	case p < 0.05:
		return ModerateMarker
	case p < 0.1:
		return WeakMarker
	default:
		return ""
	}
}

// ColorMarker returns the marker for a p-value with its terminal color applied.
func ColorMarker(p float64) string {
	text := SignificanceMarker(p)
	switch text {
	case StrongestMarker:
		return StrongestColor.Sprint(text)
	case StrongMarker:
		return StrongColor.Sprint(text)
	case ModerateMarker:
		return ModerateColor.Sprint(text)
	case WeakMarker:
		return WeakColor.Sprint(text)
	default:
		return text
	}
}

// Writer renders run results.
type Writer struct {
	w    io.Writer
	opts Options
}

// New creates a report Writer. A zero precision selects 4 decimal places.
func New(w io.Writer, opts Options) *Writer {
	if opts.Precision <= 0 {
		opts.Precision = 4
	}
	return &Writer{w: w, opts: opts}
}

// Write renders the full run report: stage counts, bin table, the three
// fits, then the descriptive summaries.
func (r *Writer) Write(res *pipeline.Result) error {
	steps := []func(*pipeline.Result) error{
		r.writeRun,
		func(res *pipeline.Result) error { return r.WriteBins(res.Bins) },
		r.writeFits,
		func(res *pipeline.Result) error { return r.WriteSummary(res.Summary) },
	}
	for _, step := range steps {
		if err := step(res); err != nil {
			return err
		}
	}
	return nil
}

func (r *Writer) writeRun(res *pipeline.Result) error {
	if err := r.heading(fmt.Sprintf("Run %s", res.RunID)); err != nil {
		return err
	}
	rows := [][]string{
		{"records loaded", strconv.Itoa(res.Loaded)},
		{"unparsable timestamps", strconv.Itoa(res.Derive.Unparsable)},
		{"report before incident", strconv.Itoa(res.Derive.NegativeRaw)},
		{"with coordinates", strconv.Itoa(res.Located)},
		{"elevation lookups", strconv.Itoa(res.Enrich.Attempted)},
		{"elevation resolved", strconv.Itoa(res.Enrich.Succeeded)},
		{"elevation not available", strconv.Itoa(res.Enrich.Failed)},
		{"train / test split", fmt.Sprintf("%d / %d", res.TrainSize, res.TestSize)},
		{"duration", res.FinishedAt.Sub(res.StartedAt).String()},
	}
	return r.table([]string{"Stage", "Records"}, rows)
}

// WriteBins renders the elevation histogram.
func (r *Writer) WriteBins(bins []domain.ElevationBin) error {
	if err := r.heading("Incidents by elevation"); err != nil {
		return err
	}
	rows := make([][]string, len(bins))
	for i, b := range bins {
		rows[i] = []string{
			strconv.Itoa(b.Index),
			formatBound(b.Lower, b.Upper),
			strconv.FormatFloat(b.Label, 'f', -1, 64),
			strconv.Itoa(b.Count),
		}
	}
	return r.table([]string{"Bin", "Range (m)", "Label", "Incidents"}, rows)
}

func (r *Writer) writeFits(res *pipeline.Result) error {
	for _, f := range res.Fits {
		if err := r.WriteFit(f); err != nil {
			return err
		}
	}
	return nil
}

// WriteFit renders one model's coefficient table and fit diagnostics, or
// the reason it could not be fitted.
func (r *Writer) WriteFit(f pipeline.FitResult) error {
	if err := r.heading(fmt.Sprintf("Model %s: %s", f.Name, regression.FormatFormula(f.Spec))); err != nil {
		return err
	}
	if f.Err != nil {
		_, err := fmt.Fprintf(r.w, "not fitted over %d rows: %v\n", f.Rows, f.Err)
		return err
	}

	m := f.Model
	rows := make([][]string, len(m.Coefficients))
	for i, c := range m.Coefficients {
		rows[i] = []string{
			c.Name,
			r.float(c.Value),
			r.float(c.StdErr),
			r.float(c.T),
			formatP(c.P),
			r.marker(c.P),
		}
	}
	if err := r.table([]string{"Term", "Coef", "Std Err", "t", "P>|t|", ""}, rows); err != nil {
		return err
	}

	_, err := fmt.Fprintf(r.w,
		"N = %d (excluded %d)  R² = %s  Adj. R² = %s  F = %s  Prob(F) = %s  Residual SE = %s\n",
		m.N, m.Excluded, r.float(m.RSquared), r.float(m.AdjRSquared),
		r.float(m.FStatistic), formatP(m.FPValue), r.float(m.ResidualSE))
	return err
}

// WriteSummary renders the hour, day and category tallies and the
// correlation tables.
func (r *Writer) WriteSummary(s pipeline.Summary) error {
	if err := r.heading("Incidents by hour"); err != nil {
		return err
	}
	if err := r.table([]string{"Hour", "Incidents"}, countRows(s.ByHour, strconv.Itoa)); err != nil {
		return err
	}

	if err := r.heading("Incidents by day"); err != nil {
		return err
	}
	if err := r.table([]string{"Day", "Incidents"}, countRows(s.ByDay, strconv.Itoa)); err != nil {
		return err
	}

	if err := r.heading("Incidents by category"); err != nil {
		return err
	}
	if err := r.table([]string{"Category", "Incidents"}, countRows(s.ByCategory, func(c domain.Category) string { return string(c) })); err != nil {
		return err
	}

	if len(s.Correlations) > 0 {
		if err := r.heading("Correlation"); err != nil {
			return err
		}
		rows := make([][]string, len(s.Correlations))
		for i, row := range s.Correlations {
			rows[i] = append([]string{s.CorrelationColumns[i]}, r.floats(row)...)
		}
		if err := r.table(append([]string{""}, s.CorrelationColumns...), rows); err != nil {
			return err
		}
	}

	if len(s.CategoryCorrelations) > 0 {
		if err := r.heading("Latency correlation by category"); err != nil {
			return err
		}
		rows := make([][]string, len(s.CategoryCorrelations))
		for i, cc := range s.CategoryCorrelations {
			rows[i] = []string{string(cc.Category), strconv.Itoa(cc.N), r.float(cc.LatencyElevation), r.float(cc.LatencyHour)}
		}
		if err := r.table([]string{"Category", "N", "vs elevation", "vs hour"}, rows); err != nil {
			return err
		}
	}
	return nil
}

func (r *Writer) heading(title string) error {
	_, err := fmt.Fprintf(r.w, "\n%s\n", title)
	return err
}

func (r *Writer) table(headers []string, rows [][]string) error {
	table := tablewriter.NewWriter(r.w)
	table.Header(headers)
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})
	if err := table.Bulk(rows); err != nil {
		return err
	}
	return table.Render()
}

func (r *Writer) marker(p float64) string {
	if r.opts.Color {
		return ColorMarker(p)
	}
	return SignificanceMarker(p)
}

func (r *Writer) float(v float64) string {
	if math.IsNaN(v) {
		return "n/a"
	}
	return strconv.FormatFloat(v, 'f', r.opts.Precision, 64)
}

func (r *Writer) floats(vs []float64) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = r.float(v)
	}
	return out
}

func formatP(p float64) string {
	switch {
	case math.IsNaN(p):
		return "n/a"
	case p < 0.0001:
		return "<0.0001"
	default:
		return strconv.FormatFloat(p, 'f', 4, 64)
	}
}

func formatBound(lower, upper float64) string {
	switch {
	case math.IsInf(lower, -1):
		return fmt.Sprintf("< %g", upper)
	case math.IsInf(upper, 1):
		return fmt.Sprintf(">= %g", lower)
	default:
		return fmt.Sprintf("[%g, %g)", lower, upper)
	}
}

func countRows[K any](counts []pipeline.Count[K], key func(K) string) [][]string {
	rows := make([][]string, len(counts))
	for i, c := range counts {
		rows[i] = []string{key(c.Key), strconv.Itoa(c.Count)}
	}
	return rows
}
