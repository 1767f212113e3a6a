// Package oracle implements the outer solve as a merit-order dispatch
// program. Cada zona trae una curva de oferta por bloques (capacidad, costo);
// el programa elige pesos de pujas y despacho por bloque minimizando costo de
// despacho más el término de bienestar, sujeto a las restricciones del
// modelo: suma de pesos 1 por coordenada, igualdad de pesos RC bajo precio
// plano y balance por (zona, bloque temporal).
//
// El balance nunca es infactible por construcción: una oferta de holgura a
// SlackSupplyCost cubre cualquier faltante y la disposición libre cobra
// DisposalCost por ventear excedentes. Esos dos términos fijan la economía de
// los duales en los extremos: 1e6 con demanda más allá de la capacidad, −1
// con excedente forzado.
//
// El dual del balance se lee con la regla de mérito sobre el despacho óptimo:
// el costo del último bloque despachado, la holgura si la curva se agotó, el
// negativo del costo de disposición con demanda neta negativa y el costo del
// primer bloque con demanda nula. Se publica en dólares del año base por
// unidad anualizada, igual que el resto de la solución.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"

	"github.com/alejandrodnm/gasflex/internal/domain"
	"github.com/alejandrodnm/gasflex/internal/market"
)

const (
	// SlackSupplyCost es el costo de la oferta de holgura en $/MMBtu: lo
	// bastante caro para que solo se use cuando la curva no alcanza.
	SlackSupplyCost = 1e6
	// DisposalCost es el costo de ventear excedentes en $/MMBtu. Su negativo
	// es el dual del balance cuando la demanda neta es negativa.
	DisposalCost = 1.0

	// dispatchEps absorbe el polvo numérico del LP al clasificar el despacho.
	dispatchEps = 1e-9
)

// SupplyBlock es un escalón de la curva de oferta de una zona.
type SupplyBlock struct {
	Capacity float64 // MMBtu/día
	Cost     float64 // $/MMBtu
}

// Merit resuelve el despacho de mérito por programación lineal (simplex de
// gonum) y extrae los duales del balance con la regla de mérito.
type Merit struct {
	curves       map[domain.Zone][]SupplyBlock
	slackCost    float64
	disposalCost float64
	log          *slog.Logger
}

// NewMerit valida y ordena las curvas de oferta por costo ascendente. Una
// zona sin curva se sirve solo con la holgura, lo que produce duales de
// SlackSupplyCost; los escenarios normales definen bloques para cada zona.
func NewMerit(curves map[domain.Zone][]SupplyBlock, log *slog.Logger) (*Merit, error) {
	if log == nil {
		log = slog.Default()
	}
	clean := make(map[domain.Zone][]SupplyBlock, len(curves))
	for z, blocks := range curves {
		cp := make([]SupplyBlock, len(blocks))
		copy(cp, blocks)
		for i, b := range cp {
			if b.Capacity <= 0 || math.IsNaN(b.Capacity) || math.IsInf(b.Capacity, 0) {
				return nil, fmt.Errorf("oracle.NewMerit: zone %s block %d: capacity must be positive, got %g", z, i, b.Capacity)
			}
			if b.Cost < 0 || math.IsNaN(b.Cost) || math.IsInf(b.Cost, 0) {
				return nil, fmt.Errorf("oracle.NewMerit: zone %s block %d: cost must be non-negative, got %g", z, i, b.Cost)
			}
		}
		sort.SliceStable(cp, func(i, j int) bool { return cp[i].Cost < cp[j].Cost })
		clean[z] = cp
	}
	return &Merit{
		curves:       clean,
		slackCost:    SlackSupplyCost,
		disposalCost: DisposalCost,
		log:          log,
	}, nil
}

// zoneColumns agrupa las columnas del LP propias de un (zona, bloque
// temporal): despacho por escalón, holgura de capacidad por escalón, oferta
// de holgura y disposición.
type zoneColumns struct {
	blocks   []int
	caps     []int
	slack    int
	disposal int
}

// Solve arma el programa en forma estándar (min c·x, Ax = b, x ≥ 0), lo
// resuelve con lp.Simplex y traduce el óptimo a una solución del modelo:
// pesos por (puja, coordenada), duales del balance, inyección neta y costo
// directo anual por periodo sin descontar.
func (o *Merit) Solve(ctx context.Context, m *market.Model) (domain.Solution, error) {
	if err := ctx.Err(); err != nil {
		return domain.Solution{}, fmt.Errorf("oracle.Solve: %w", err)
	}
	if m.BidCount() == 0 {
		return domain.Solution{}, fmt.Errorf("oracle.Solve: model has no bids to weight")
	}
	withdrawals, _ := m.ContributorNames()
	flexible := false
	for _, name := range withdrawals {
		if name == market.ContribFlexibleDemand {
			flexible = true
			break
		}
	}
	if !flexible {
		return domain.Solution{}, fmt.Errorf("oracle.Solve: model still withdraws the fixed reference demand; calibrate the demand system first")
	}

	grid := m.Grid()
	zbs := grid.ZoneBlocks()

	factor := make(map[domain.TS]float64)
	scale := make(map[domain.TS]float64)
	periodOf := make(map[domain.TS]domain.Period)
	for _, p := range grid.Periods {
		for _, ts := range p.Timeseries {
			factor[ts.ID] = ts.ScaleToYear * p.CostToBase
			scale[ts.ID] = ts.ScaleToYear
			periodOf[ts.ID] = p
		}
	}

	// Columnas: primero los pesos de puja, luego las columnas de despacho de
	// cada (zona, bloque temporal).
	wCols := make(map[domain.WeightKey]int)
	ncols := 0
	for _, c := range grid.Coords() {
		for _, pt := range m.Points(c) {
			wCols[domain.WeightKey{Bid: pt.BidID, Coord: c}] = ncols
			ncols++
		}
	}
	cols := make(map[domain.ZoneTS]zoneColumns, len(zbs))
	for _, zb := range zbs {
		curve := o.curves[zb.Zone]
		zc := zoneColumns{}
		for range curve {
			zc.blocks = append(zc.blocks, ncols)
			ncols++
		}
		for range curve {
			zc.caps = append(zc.caps, ncols)
			ncols++
		}
		zc.slack = ncols
		ncols++
		zc.disposal = ncols
		ncols++
		cols[zb] = zc
	}

	var rows [][]float64
	var rhs []float64
	addRow := func(b float64) []float64 {
		r := make([]float64, ncols)
		rows = append(rows, r)
		rhs = append(rhs, b)
		return r
	}

	// Suma de pesos = 1 por coordenada. Bajo precio plano las filas RC de los
	// bloques no-primeros son combinación lineal de la fila del primer bloque
	// y las igualdades de peso; se omiten para conservar rango completo.
	for _, sc := range m.SimplexConstraints() {
		c := sc.Coord
		if m.FlatPricing() && c.Sector == domain.SectorRC && !grid.IsFirstTS(c.TS) {
			continue
		}
		r := addRow(1)
		for _, pt := range m.Points(c) {
			r[wCols[domain.WeightKey{Bid: pt.BidID, Coord: c}]] = 1
		}
	}

	// Igualdad de pesos RC contra el primer bloque del periodo.
	for _, fc := range m.FlatConstraints() {
		r := addRow(0)
		c := domain.Coord{Zone: fc.Zone, TS: fc.TS, Sector: domain.SectorRC}
		first := domain.Coord{Zone: fc.Zone, TS: fc.FirstTS, Sector: domain.SectorRC}
		r[wCols[domain.WeightKey{Bid: fc.Bid, Coord: c}]] = 1
		r[wCols[domain.WeightKey{Bid: fc.Bid, Coord: first}]] = -1
	}

	// Balance: despacho + holgura − disposición − demanda flexible = término
	// fijo. Los contribuyentes que no dependen de pesos se evalúan una vez.
	for _, zb := range zbs {
		fixed := m.NetDemand(zb.Zone, zb.TS, nil)
		r := addRow(fixed)
		zc := cols[zb]
		for _, gi := range zc.blocks {
			r[gi] = 1
		}
		r[zc.slack] = 1
		r[zc.disposal] = -1
		for _, ds := range domain.Sectors() {
			c := domain.Coord{Zone: zb.Zone, TS: zb.TS, Sector: ds}
			for _, pt := range m.Points(c) {
				r[wCols[domain.WeightKey{Bid: pt.BidID, Coord: c}]] -= pt.Quantity
			}
		}
	}

	// Capacidad por escalón: despacho + holgura de capacidad = capacidad.
	for _, zb := range zbs {
		zc := cols[zb]
		for k, blk := range o.curves[zb.Zone] {
			r := addRow(blk.Capacity)
			r[zc.blocks[k]] = 1
			r[zc.caps[k]] = 1
		}
	}

	// Objetivo en dólares del año base: costo de despacho anualizado y
	// descontado, más el bienestar negado de las pujas elegidas.
	cvec := make([]float64, ncols)
	for _, c := range grid.Coords() {
		f, ok := factor[c.TS]
		if !ok {
			return domain.Solution{}, fmt.Errorf("oracle.Solve: timeseries %s belongs to no period", c.TS)
		}
		for _, pt := range m.Points(c) {
			cvec[wCols[domain.WeightKey{Bid: pt.BidID, Coord: c}]] = -pt.WTP * f
		}
	}
	for _, zb := range zbs {
		f := factor[zb.TS]
		zc := cols[zb]
		for k, blk := range o.curves[zb.Zone] {
			cvec[zc.blocks[k]] = blk.Cost * f
		}
		cvec[zc.slack] = o.slackCost * f
		cvec[zc.disposal] = o.disposalCost * f
	}

	// lp.Simplex espera b ≥ 0.
	for i, b := range rhs {
		if b < 0 {
			rhs[i] = -b
			for j := range rows[i] {
				rows[i][j] = -rows[i][j]
			}
		}
	}
	data := make([]float64, 0, len(rows)*ncols)
	for _, r := range rows {
		data = append(data, r...)
	}
	a := mat.NewDense(len(rows), ncols, data)

	optF, optX, err := lp.Simplex(cvec, a, rhs, 0, nil)
	if errors.Is(err, lp.ErrInfeasible) {
		o.log.Warn("dispatch program infeasible", "rows", len(rows), "cols", ncols)
		return domain.Solution{Feasible: false}, nil
	}
	if err != nil {
		return domain.Solution{}, fmt.Errorf("oracle.Solve: simplex over %d rows x %d cols: %w", len(rows), ncols, err)
	}

	weights := make(domain.Weights, len(wCols))
	for key, col := range wCols {
		v := optX[col]
		if v < 0 {
			v = 0
		}
		weights[key] = v
	}
	// Limpieza numérica: reescala cada coordenada a suma exactamente 1
	// mientras el óptimo esté dentro de la tolerancia del solver. Sumas fuera
	// de rango se dejan tal cual para que el modelo las rechace.
	for _, sc := range m.SimplexConstraints() {
		sum := 0.0
		for _, pt := range m.Points(sc.Coord) {
			sum += weights[domain.WeightKey{Bid: pt.BidID, Coord: sc.Coord}]
		}
		if sum != 1 && sum > 0 && math.Abs(sum-1) <= 1e-6 {
			for _, pt := range m.Points(sc.Coord) {
				key := domain.WeightKey{Bid: pt.BidID, Coord: sc.Coord}
				weights[key] /= sum
			}
		}
	}

	sol := domain.Solution{
		Objective:           optF,
		Feasible:            true,
		Weights:             weights,
		Duals:               make(map[domain.ZoneTS]float64, len(zbs)),
		Supply:              make(map[domain.ZoneTS]float64, len(zbs)),
		DirectCostPerPeriod: make(map[domain.PeriodID]float64, len(grid.Periods)),
	}
	for _, zb := range zbs {
		q := m.NetDemand(zb.Zone, zb.TS, weights)
		cost, marginal := o.dispatch(o.curves[zb.Zone], q)
		sol.Duals[zb] = marginal * factor[zb.TS]
		sol.Supply[zb] = q
		sol.DirectCostPerPeriod[periodOf[zb.TS].ID] += cost * scale[zb.TS]
	}

	o.log.Debug("dispatch solved",
		"rows", len(rows),
		"cols", ncols,
		"bids", m.BidCount(),
		"objective", optF,
	)
	return sol, nil
}

// dispatch sirve la demanda neta q recorriendo la curva en orden de mérito y
// devuelve el costo total y el costo marginal del último escalón usado.
func (o *Merit) dispatch(blocks []SupplyBlock, q float64) (cost, marginal float64) {
	if q < -dispatchEps {
		return -q * o.disposalCost, -o.disposalCost
	}
	marginal = o.slackCost
	if len(blocks) > 0 {
		marginal = blocks[0].Cost
	}
	if q <= dispatchEps {
		return 0, marginal
	}
	remaining := q
	for _, blk := range blocks {
		take := math.Min(remaining, blk.Capacity)
		cost += take * blk.Cost
		marginal = blk.Cost
		remaining -= take
		if remaining <= dispatchEps {
			return cost, marginal
		}
	}
	cost += remaining * o.slackCost
	return cost, o.slackCost
}
