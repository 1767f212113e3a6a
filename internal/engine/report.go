package engine

import (
	"fmt"

	"github.com/alejandrodnm/gasflex/internal/domain"
)

// finalReport liquida la corrida sobre la última solución: costos
// recuperables de los duales finales, precio RC plano de la ronda de reporte
// (semilla ponderada, sin buscar raíz) y agregados anuales por sector.
func (e *Engine) finalReport(res domain.RunResult) (domain.FinalReport, error) {
	rep := domain.FinalReport{
		RunID:      res.RunID,
		State:      res.State,
		Converged:  res.Converged,
		Iterations: res.Iterations,
		Gap:        res.Gap,
		Objective:  res.Objective,
		Anomalies:  res.Anomalies,
	}

	sol, ok := e.model.Solution()
	if !ok {
		return rep, fmt.Errorf("no solved model to report on")
	}
	rc, err := e.recoverableCosts()
	if err != nil {
		return rep, err
	}

	grid := e.model.Grid()
	var flat map[zonePeriod]float64
	if e.model.FlatPricing() {
		flat, err = e.findFlatPrices(rc, false)
		if err != nil {
			return rep, err
		}
	}

	summary := make(map[domain.PeriodID]map[domain.Sector]*domain.SectorSummary)
	for _, c := range grid.Coords() {
		p, ok := grid.PeriodOf(c.TS)
		if !ok {
			return rep, fmt.Errorf("final report: timeseries %s belongs to no period", c.TS)
		}
		scale := grid.Scale(c.TS)

		price := rc[c]
		if flat != nil && c.Sector == domain.SectorRC {
			price = flat[zonePeriod{Zone: c.Zone, Period: p.ID}]
		}
		qty := e.model.Demand(c)
		rep.Prices = append(rep.Prices, domain.FinalPrice{
			Zone:     c.Zone,
			TS:       c.TS,
			Sector:   c.Sector,
			Price:    price,
			Quantity: qty,
		})

		bySector, ok := summary[p.ID]
		if !ok {
			bySector = make(map[domain.Sector]*domain.SectorSummary)
			summary[p.ID] = bySector
		}
		row, ok := bySector[c.Sector]
		if !ok {
			row = &domain.SectorSummary{Period: p.ID, Sector: c.Sector}
			bySector[c.Sector] = row
		}
		row.Payment += price * qty * scale
		row.Quantity += qty * scale
	}

	for _, p := range grid.Periods {
		bySector, ok := summary[p.ID]
		if !ok {
			continue
		}
		for _, s := range domain.Sectors() {
			row, ok := bySector[s]
			if !ok {
				continue
			}
			if row.Quantity > 0 {
				row.AvgPrice = row.Payment / row.Quantity
			}
			rep.Sectors = append(rep.Sectors, *row)
		}
		rep.Periods = append(rep.Periods, domain.PeriodCost{
			Period:     p.ID,
			DirectCost: sol.DirectCostPerPeriod[p.ID],
		})
	}

	rep.WelfareCost = e.model.WelfareCost(sol.Weights)
	return rep, nil
}
