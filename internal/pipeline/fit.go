package pipeline

import (
	"log/slog"

	"github.com/couchcryptid/incident-elevation-etl/internal/domain"
	"github.com/couchcryptid/incident-elevation-etl/internal/regression"
)

// fitModels runs the three model fits. Each fit is independent: a failure is
// recorded on its FitResult and the remaining fits still run.
func (p *Pipeline) fitModels(log *slog.Logger, incidents []domain.EnrichedIncident, bins []domain.ElevationBin) ([]FitResult, int, int) {
	train, test := domain.SplitTrainTest(incidents, p.opts.TestFraction, p.opts.SplitSeed)
	assaults := domain.Filter(incidents, domain.InCategory(domain.CategoryAssault))

	fits := []FitResult{
		p.fit(log, domain.LatencyModel, domain.Observations(train)),
		p.fit(log, domain.AssaultLatencyModel, domain.Observations(assaults)),
		p.fit(log, domain.ElevationCountModel, domain.BinObservations(bins)),
	}
	return fits, len(train), len(test)
}

func (p *Pipeline) fit(log *slog.Logger, def domain.ModelDef, rows []regression.Row) FitResult {
	res := FitResult{Name: def.Name, Spec: def.Spec, Rows: len(rows)}

	model, err := regression.Fit(rows, def.Spec)
	if err != nil {
		res.Err = err
		p.metrics.FitsCompleted.WithLabelValues(def.Name, "error").Inc()
		log.Warn("model fit failed", "model", def.Name, "formula", def.Spec.String(), "rows", len(rows), "error", err)
		return res
	}

	res.Model = model
	p.metrics.FitsCompleted.WithLabelValues(def.Name, "success").Inc()
	log.Info("model fitted",
		"model", def.Name,
		"n", model.N,
		"excluded", model.Excluded,
		"r_squared", model.RSquared,
		"adj_r_squared", model.AdjRSquared,
	)
	return res
}
