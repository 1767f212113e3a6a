package engine

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/alejandrodnm/gasflex/internal/domain"
)

const (
	// rootTol replica la tolerancia de paso del método de la secante usado
	// en la calibración de referencia.
	rootTol     = 1.48e-8
	rootMaxIter = 50
)

// findFlatPrices resuelve un precio plano RC por (zona, periodo). Con
// revenueNeutral=false devuelve directamente la semilla del buscador: el
// promedio del costo recuperable ponderado por demanda realizada.
func (e *Engine) findFlatPrices(rc map[domain.Coord]float64, revenueNeutral bool) (map[zonePeriod]float64, error) {
	out := make(map[zonePeriod]float64)
	grid := e.model.Grid()
	for _, z := range grid.Zones {
		for _, p := range grid.Periods {
			price, err := e.FindFlatPrice(z, p, rc, revenueNeutral)
			if err != nil {
				return nil, err
			}
			out[zonePeriod{Zone: z, Period: p.ID}] = price
		}
	}
	return out, nil
}

// FindFlatPrice busca el precio plano P del sector RC en (zone, period) que
// anula el desbalance de ingresos: cobrar P sobre la demanda evaluada a P
// recauda exactamente el costo recuperable de esa misma demanda. El
// evaluador valora ambos sectores; la pata EI se cobra a su propio costo
// recuperable, así que aporta cero y la identidad completa queda escrita en
// un solo lugar.
//
// Fórmula:
//
//	f(P) = Σ_ts (rc_ts − P) · D_RC(P, ts) · escala(ts)
//
// f es continua y decreciente en P (demanda positiva y elasticidad en [0,1)),
// de modo que la raíz es única cuando existe. Con revenueNeutral=false
// devuelve la semilla sin iterar, que es el modo de la ronda final de
// reporte.
func (e *Engine) FindFlatPrice(zone domain.Zone, period domain.Period, rc map[domain.Coord]float64, revenueNeutral bool) (float64, error) {
	for _, ts := range period.Timeseries {
		for _, ds := range domain.Sectors() {
			c := domain.Coord{Zone: zone, TS: ts.ID, Sector: ds}
			if _, ok := rc[c]; !ok {
				return 0, fmt.Errorf("engine.FindFlatPrice: no recoverable cost for %s", c)
			}
		}
	}

	guess, err := e.flatPriceGuess(zone, period, rc)
	if err != nil {
		return 0, err
	}
	if !revenueNeutral {
		return guess, nil
	}

	f := func(p float64) (float64, error) {
		return e.revenueImbalance(p, zone, period, rc)
	}
	price, iters, err := secantRoot(f, guess)
	if err != nil {
		return 0, &domain.RootFindError{
			Zone:       zone,
			Period:     period.ID,
			Guess:      guess,
			Last:       price,
			Iterations: iters,
			Reason:     err.Error(),
		}
	}
	return price, nil
}

// flatPriceGuess promedia el costo recuperable RC del periodo ponderado por
// la demanda RC realizada anualizada.
func (e *Engine) flatPriceGuess(zone domain.Zone, period domain.Period, rc map[domain.Coord]float64) (float64, error) {
	costs := make([]float64, 0, len(period.Timeseries))
	weights := make([]float64, 0, len(period.Timeseries))
	for _, ts := range period.Timeseries {
		c := domain.Coord{Zone: zone, TS: ts.ID, Sector: domain.SectorRC}
		costs = append(costs, rc[c])
		weights = append(weights, e.model.Demand(c)*ts.ScaleToYear)
	}
	if floats.Sum(weights) <= 0 {
		return 0, fmt.Errorf("engine.FindFlatPrice: zone %s period %s has no realized demand to weight the seed", zone, period.ID)
	}
	return stat.Mean(costs, weights), nil
}

// revenueImbalance evalúa f(P): el costo recuperable menos lo recaudado sobre
// la demanda del periodo re-evaluada al precio cobrado. RC se cobra al precio
// plano P; EI se cobra a su costo recuperable, con lo que su término se
// cancela exactamente.
func (e *Engine) revenueImbalance(price float64, zone domain.Zone, period domain.Period, rc map[domain.Coord]float64) (float64, error) {
	n := 2 * len(period.Timeseries)
	recover := make([]float64, 0, n)
	charged := make([]float64, 0, n)
	scaled := make([]float64, 0, n)
	for _, ts := range period.Timeseries {
		for _, ds := range domain.Sectors() {
			c := domain.Coord{Zone: zone, TS: ts.ID, Sector: ds}
			applied := price
			if ds == domain.SectorEI {
				applied = rc[c]
			}
			qty, _, err := e.demand.Bid(zone, ts.ID, ds, applied)
			if err != nil {
				return 0, fmt.Errorf("engine.FindFlatPrice: evaluate demand at %v: %w", applied, err)
			}
			recover = append(recover, rc[c])
			charged = append(charged, applied)
			scaled = append(scaled, qty*ts.ScaleToYear)
		}
	}
	return floats.Dot(recover, scaled) - floats.Dot(charged, scaled), nil
}

// secantRoot busca una raíz de f partiendo de x0 con el método de la
// secante: segundo punto perturbado en 1e-4 relativo, parada por tamaño de
// paso. Devuelve la última aproximación y el número de iteraciones usadas.
func secantRoot(f func(float64) (float64, error), x0 float64) (float64, int, error) {
	p0 := x0
	var p1 float64
	eps := 1e-4
	if x0 >= 0 {
		p1 = x0*(1+eps) + eps
	} else {
		p1 = x0*(1+eps) - eps
	}
	q0, err := f(p0)
	if err != nil {
		return p0, 0, err
	}
	q1, err := f(p1)
	if err != nil {
		return p1, 0, err
	}
	if math.Abs(q1) < math.Abs(q0) {
		p0, p1 = p1, p0
		q0, q1 = q1, q0
	}
	for itr := 0; itr < rootMaxIter; itr++ {
		if q1 == q0 {
			if p1 != p0 {
				return p1, itr, fmt.Errorf("flat revenue curve is locally flat at %v", p1)
			}
			return (p1 + p0) / 2, itr, nil
		}
		p := p1 - q1*(p1-p0)/(q1-q0)
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return p1, itr, fmt.Errorf("secant step diverged from %v", p1)
		}
		if math.Abs(p-p1) <= rootTol {
			return p, itr + 1, nil
		}
		p0, q0 = p1, q1
		p1 = p
		q1, err = f(p1)
		if err != nil {
			return p1, itr + 1, err
		}
	}
	return p1, rootMaxIter, fmt.Errorf("no convergence after %d iterations, last %v", rootMaxIter, p1)
}
