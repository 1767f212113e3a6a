// Package market holds the self-modifying optimization model state: the
// append-only bid ledger, the convex-combination weight constraints derived
// from it, and the registry of balance contributors consumed by the outer
// solve. The model grows by one bid per iteration; every derived structure is
// regenerated from the current ledger snapshot, never mutated in place, and
// duals from the last solution stay readable across rebuilds because they are
// keyed by (zone, timeseries) instead of by constraint identity.
package market

import (
	"fmt"

	"github.com/alejandrodnm/gasflex/internal/domain"
)

const (
	// simplexTol: tolerancia de la igualdad Σ pesos = 1.
	simplexTol = 1e-9
	// flatTol: tolerancia de la igualdad de pesos bajo precio plano.
	flatTol = 1e-9
	// balanceTol: tolerancia del balance inyección = retiro en MMBtu/día.
	balanceTol = 1e-6
	// convexityTol: holgura del test de no-convexidad entre pujas.
	convexityTol = 1e-6
)

// WeightSumConstraint states that the weights of all listed bids at Coord sum
// to exactly 1 (convex combination).
type WeightSumConstraint struct {
	Coord domain.Coord
	Bids  []int
}

// FlatWeightConstraint pins the RC weight of a bid at TS to its weight at the
// first timeseries of the period. Only generated when flat pricing is on.
type FlatWeightConstraint struct {
	Bid     int
	Zone    domain.Zone
	Period  domain.PeriodID
	TS      domain.TS
	FirstTS domain.TS
}

// Model is the shared mutable optimization state. Only the convergence
// controller and AddBids mutate it; everything else reads. Single-threaded by
// design: one in-flight solve, no locking.
type Model struct {
	grid        domain.Grid
	flatPricing bool

	obs       []domain.BaseObservation
	baseQty   map[domain.Coord]float64
	basePrice map[domain.Coord]float64

	version int
	bids    []domain.Bid
	// points indexes every accepted bid by coordinate, in bid-id order.
	points map[domain.Coord][]domain.BidPoint

	simplex []WeightSumConstraint
	flat    []FlatWeightConstraint

	injections  []Contributor
	withdrawals []Contributor

	sol *domain.Solution
}

// NewModel builds the model over the grid with one base observation per
// coordinate. The reference-demand withdrawal term is registered here and
// replaced by the flexible-demand term once the demand system is calibrated.
func NewModel(grid domain.Grid, obs []domain.BaseObservation, flatPricing bool) (*Model, error) {
	m := &Model{
		grid:        grid,
		flatPricing: flatPricing,
		obs:         obs,
		baseQty:     make(map[domain.Coord]float64, len(obs)),
		basePrice:   make(map[domain.Coord]float64, len(obs)),
		points:      make(map[domain.Coord][]domain.BidPoint),
	}
	for _, o := range obs {
		c := domain.Coord{Zone: o.Zone, TS: o.TS, Sector: o.Sector}
		if _, dup := m.baseQty[c]; dup {
			return nil, fmt.Errorf("market.NewModel: duplicate base observation for %s", c)
		}
		if o.BaseLoad <= 0 || o.BasePrice <= 0 {
			return nil, fmt.Errorf("market.NewModel: base observation for %s must be strictly positive (load=%g price=%g)", c, o.BaseLoad, o.BasePrice)
		}
		m.baseQty[c] = o.BaseLoad
		m.basePrice[c] = o.BasePrice
	}
	for _, c := range grid.Coords() {
		if _, ok := m.baseQty[c]; !ok {
			return nil, fmt.Errorf("market.NewModel: missing base observation for %s", c)
		}
	}
	if err := m.RegisterWithdrawal(&referenceDemand{m: m}); err != nil {
		return nil, err
	}
	return m, nil
}

// Grid devuelve la malla del modelo.
func (m *Model) Grid() domain.Grid { return m.grid }

// FlatPricing indica si el modo de precio plano RC está activo.
func (m *Model) FlatPricing() bool { return m.flatPricing }

// Version grows by one on every accepted bid. Derived structures are valid
// for exactly one version.
func (m *Model) Version() int { return m.version }

// BaseObservations devuelve las observaciones base con las que se construyó
// el modelo, en el orden recibido.
func (m *Model) BaseObservations() []domain.BaseObservation { return m.obs }

// BaseQuantity devuelve la carga de referencia de la coordenada.
func (m *Model) BaseQuantity(c domain.Coord) float64 { return m.baseQty[c] }

// BasePrice devuelve el precio de referencia de la coordenada.
func (m *Model) BasePrice(c domain.Coord) float64 { return m.basePrice[c] }

// Bids returns the accepted bids in id order. The slice is shared; callers
// must not mutate it.
func (m *Model) Bids() []domain.Bid { return m.bids }

// BidCount devuelve cuántas pujas se han aceptado.
func (m *Model) BidCount() int { return len(m.bids) }

// LastBid returns the newest accepted bid.
func (m *Model) LastBid() (domain.Bid, bool) {
	if len(m.bids) == 0 {
		return domain.Bid{}, false
	}
	return m.bids[len(m.bids)-1], true
}

// Points returns the per-bid (price, quantity, wtp) history at a coordinate,
// in bid-id order.
func (m *Model) Points(c domain.Coord) []domain.BidPoint { return m.points[c] }

// SimplexConstraints returns the weight-sum descriptors for the current
// ledger version.
func (m *Model) SimplexConstraints() []WeightSumConstraint { return m.simplex }

// FlatConstraints returns the flat-pricing equality descriptors for the
// current ledger version (empty when flat pricing is off).
func (m *Model) FlatConstraints() []FlatWeightConstraint { return m.flat }

// Solution returns the last applied solution, if any.
func (m *Model) Solution() (domain.Solution, bool) {
	if m.sol == nil {
		return domain.Solution{}, false
	}
	return *m.sol, true
}

// Apply validates a candidate solution against each constraint family
// independently (simplex, flat-pricing, balance) and stores it as the
// current solution. Violations name the failing family for diagnosis.
func (m *Model) Apply(sol domain.Solution) error {
	for _, sc := range m.simplex {
		sum := 0.0
		for _, b := range sc.Bids {
			sum += sol.Weights[domain.WeightKey{Bid: b, Coord: sc.Coord}]
		}
		if diff := sum - 1.0; diff > simplexTol || diff < -simplexTol {
			return &domain.InfeasibleError{
				Family: domain.ConstraintSimplex,
				Detail: fmt.Sprintf("weights at %s sum to %.12g", sc.Coord, sum),
			}
		}
	}
	for _, fc := range m.flat {
		c := domain.Coord{Zone: fc.Zone, TS: fc.TS, Sector: domain.SectorRC}
		first := domain.Coord{Zone: fc.Zone, TS: fc.FirstTS, Sector: domain.SectorRC}
		w := sol.Weights[domain.WeightKey{Bid: fc.Bid, Coord: c}]
		wf := sol.Weights[domain.WeightKey{Bid: fc.Bid, Coord: first}]
		if diff := w - wf; diff > flatTol || diff < -flatTol {
			return &domain.InfeasibleError{
				Family: domain.ConstraintFlat,
				Detail: fmt.Sprintf("bid %d weight at %s/%s is %.12g but %.12g at first timeseries %s of period %s",
					fc.Bid, fc.Zone, fc.TS, w, wf, fc.FirstTS, fc.Period),
			}
		}
	}
	if len(sol.Supply) > 0 {
		for _, zb := range m.grid.ZoneBlocks() {
			net := m.NetDemand(zb.Zone, zb.TS, sol.Weights)
			supplied := sol.Supply[zb]
			if diff := supplied - net; diff > balanceTol || diff < -balanceTol {
				return &domain.InfeasibleError{
					Family: domain.ConstraintBalance,
					Detail: fmt.Sprintf("%s/%s: supplied %.9g vs net demand %.9g", zb.Zone, zb.TS, supplied, net),
				}
			}
		}
	}
	m.sol = &sol
	return nil
}

// Demand devuelve la demanda realizada de la coordenada: la combinación
// convexa de las pujas a los pesos de la última solución, o la carga de
// referencia mientras no haya pujas resueltas.
func (m *Model) Demand(c domain.Coord) float64 {
	if m.sol == nil || len(m.bids) == 0 {
		return m.baseQty[c]
	}
	return m.FlexibleDemand(c, m.sol.Weights)
}

// FlexibleDemand evalúa Σ_b peso·cantidad en la coordenada con pesos w.
func (m *Model) FlexibleDemand(c domain.Coord, w domain.Weights) float64 {
	total := 0.0
	for _, pt := range m.points[c] {
		total += w[domain.WeightKey{Bid: pt.BidID, Coord: c}] * pt.Quantity
	}
	return total
}

// WelfareCost evaluates the welfare term at weights w: the negated private
// benefit of every bid line, annualized and discounted to the base year.
func (m *Model) WelfareCost(w domain.Weights) float64 {
	total := 0.0
	for _, p := range m.grid.Periods {
		for _, ts := range p.Timeseries {
			factor := ts.ScaleToYear * p.CostToBase
			for _, z := range m.grid.Zones {
				for _, ds := range domain.Sectors() {
					c := domain.Coord{Zone: z, TS: ts.ID, Sector: ds}
					for _, pt := range m.points[c] {
						total += w[domain.WeightKey{Bid: pt.BidID, Coord: c}] * -pt.WTP * factor
					}
				}
			}
		}
	}
	return total
}

// MarginalCost reads the balance dual at (z, ts) from the last solution and
// converts it back to current-dollar $/MMBtu by undoing the annualization and
// base-year discounting. Returns false while no solution has been applied or
// the solution carries no dual for the coordinate.
func (m *Model) MarginalCost(z domain.Zone, ts domain.TS) (float64, bool) {
	if m.sol == nil {
		return 0, false
	}
	dual, ok := m.sol.Dual(z, ts)
	if !ok {
		return 0, false
	}
	p, ok := m.grid.PeriodOf(ts)
	if !ok {
		return 0, false
	}
	return dual / (p.CostToBase * m.grid.Scale(ts)), true
}
