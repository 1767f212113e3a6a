package engine

import "github.com/alejandrodnm/gasflex/internal/domain"

// realizedCosts valora la solución vigente a los costos recuperables dados.
// El costo directo es la demanda realizada anualizada y descontada a base; el
// costo de bienestar es el negativo del WTP ponderado por los pesos óptimos.
//
// Fórmula:
//
//	directo   = Σ_c rc(c) · demanda(c) · escala(ts) · a_base(periodo)
//	bienestar = Σ_c Σ_k w(k, c) · (−wtp(k, c)) · escala(ts) · a_base(periodo)
func (e *Engine) realizedCosts(rc map[domain.Coord]float64) (direct, welfare float64) {
	grid := e.model.Grid()
	for _, c := range grid.Coords() {
		p, ok := grid.PeriodOf(c.TS)
		if !ok {
			continue
		}
		direct += rc[c] * e.prevDemand[c] * grid.Scale(c.TS) * p.CostToBase
	}
	if sol, ok := e.model.Solution(); ok {
		welfare = e.model.WelfareCost(sol.Weights)
	}
	return direct, welfare
}

// bidLowerBound puntúa la puja recién aceptada a los costos recuperables de
// la solución anterior. Es la cota inferior del test de convergencia: si la
// puja nueva no mejora la valoración realizada, iterar más no puede ayudar.
func (e *Engine) bidLowerBound(bid domain.Bid, rc map[domain.Coord]float64) (direct, benefit float64) {
	grid := e.model.Grid()
	for _, line := range bid.Lines {
		c := line.Coord()
		p, ok := grid.PeriodOf(c.TS)
		if !ok {
			continue
		}
		scale := grid.Scale(c.TS)
		direct += rc[c] * line.Quantity * scale * p.CostToBase
		benefit += -line.WTP * scale * p.CostToBase
	}
	return direct, benefit
}
