package engine

import (
	"fmt"

	"github.com/alejandrodnm/gasflex/internal/domain"
)

// zonePeriod indexa magnitudes constantes por zona dentro de un periodo.
type zonePeriod struct {
	Zone   domain.Zone
	Period domain.PeriodID
}

// prices derives the price vector for the next bid. Iteration 0 probes the
// demand system at the base prices; later iterations charge the recoverable
// cost, flattened per (zone, period) for RC when flat pricing is on.
func (e *Engine) prices() (domain.PriceSet, error) {
	grid := e.model.Grid()
	prices := make(domain.PriceSet)

	if e.iter == 0 {
		for _, c := range grid.Coords() {
			prices[c] = e.model.BasePrice(c)
		}
		return prices, nil
	}

	rc := e.prevRecoverable
	if !e.model.FlatPricing() {
		for _, c := range grid.Coords() {
			prices[c] = rc[c]
		}
		return prices, nil
	}

	flat, err := e.findFlatPrices(rc, true)
	if err != nil {
		return nil, err
	}
	for _, c := range grid.Coords() {
		if c.Sector == domain.SectorRC {
			p, ok := grid.PeriodOf(c.TS)
			if !ok {
				return nil, fmt.Errorf("prices: timeseries %s belongs to no period", c.TS)
			}
			prices[c] = flat[zonePeriod{Zone: c.Zone, Period: p.ID}]
			continue
		}
		prices[c] = rc[c]
	}
	return prices, nil
}

// recoverableCosts valora cada coordenada con los duales de la última
// solución, más el margen minorista y el adder de costo para RC.
//
// Fórmula:
//
//	rc(z, ts, EI) = mc(z, ts)
//	rc(z, ts, RC) = mc(z, ts) + markup(z) + adder(z, periodo(ts))
func (e *Engine) recoverableCosts() (map[domain.Coord]float64, error) {
	adders := e.costAdders()
	out := make(map[domain.Coord]float64)
	for _, c := range e.model.Grid().Coords() {
		mc, ok := e.model.MarginalCost(c.Zone, c.TS)
		if !ok {
			return nil, fmt.Errorf("recoverable costs: no marginal cost for zone %s timeseries %s", c.Zone, c.TS)
		}
		cost := mc
		if c.Sector == domain.SectorRC {
			cost += e.tariff.Markup(c.Zone)
			if e.tariff.HasAdder(c.Zone) {
				p, ok := e.model.Grid().PeriodOf(c.TS)
				if !ok {
					return nil, fmt.Errorf("recoverable costs: timeseries %s belongs to no period", c.TS)
				}
				cost += adders[zonePeriod{Zone: c.Zone, Period: p.ID}]
			}
		}
		out[c] = cost
	}
	return out, nil
}

// costAdders distribuye el costo anual fijo de cada periodo entre la demanda
// RC realizada de las zonas con adder. El denominador agrupa todas las zonas
// con adder del periodo; si no hay demanda el adder queda en cero.
func (e *Engine) costAdders() map[zonePeriod]float64 {
	out := make(map[zonePeriod]float64)
	grid := e.model.Grid()
	for _, p := range grid.Periods {
		total := e.tariff.Adder(p.ID)
		if total == 0 {
			continue
		}
		var pooled float64
		for _, z := range grid.Zones {
			if !e.tariff.HasAdder(z) {
				continue
			}
			for _, ts := range p.Timeseries {
				c := domain.Coord{Zone: z, TS: ts.ID, Sector: domain.SectorRC}
				pooled += e.model.Demand(c) * ts.ScaleToYear
			}
		}
		for _, z := range grid.Zones {
			if !e.tariff.HasAdder(z) {
				continue
			}
			zp := zonePeriod{Zone: z, Period: p.ID}
			if pooled == 0 {
				out[zp] = 0
				continue
			}
			out[zp] = total / pooled
		}
	}
	return out
}
