package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/gasflex/internal/domain"
)

// --- fixtures ---

// Malla mínima: una zona, un periodo con dos bloques de peso distinto.
func testGrid(t *testing.T) domain.Grid {
	t.Helper()
	g, err := domain.NewGrid(
		[]domain.Zone{"north"},
		[]domain.Period{{
			ID:         "2030",
			CostToBase: 0.5,
			Timeseries: []domain.Timeseries{
				{ID: "a", ScaleToYear: 10},
				{ID: "b", ScaleToYear: 20},
			},
		}},
	)
	require.NoError(t, err)
	return g
}

func testObs(g domain.Grid) []domain.BaseObservation {
	var obs []domain.BaseObservation
	for _, c := range g.Coords() {
		obs = append(obs, domain.BaseObservation{
			Zone: c.Zone, TS: c.TS, Sector: c.Sector,
			BaseLoad: 100, BasePrice: 6,
		})
	}
	return obs
}

func newTestModel(t *testing.T, flat bool) *Model {
	t.Helper()
	g := testGrid(t)
	m, err := NewModel(g, testObs(g), flat)
	require.NoError(t, err)
	return m
}

// fullBid arma una puja completa con los mismos valores en las 4 coordenadas.
func fullBid(m *Model, price, qty, wtp float64) []domain.BidLine {
	var lines []domain.BidLine
	for _, c := range m.Grid().Coords() {
		lines = append(lines, domain.BidLine{
			Zone: c.Zone, TS: c.TS, Sector: c.Sector,
			Price: price, Quantity: qty, WTP: wtp,
		})
	}
	return lines
}

// uniformWeights asigna peso 1 a la puja id en todas las coordenadas.
func uniformWeights(m *Model, id int) domain.Weights {
	w := domain.Weights{}
	for _, c := range m.Grid().Coords() {
		w[domain.WeightKey{Bid: id, Coord: c}] = 1
	}
	return w
}

// --- construcción ---

func TestNewModel_RequiresFullCoverage(t *testing.T) {
	g := testGrid(t)
	obs := testObs(g)

	_, err := NewModel(g, obs[:len(obs)-1], false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing base observation")
}

func TestNewModel_RejectsDuplicateObservation(t *testing.T) {
	g := testGrid(t)
	obs := testObs(g)
	obs = append(obs, obs[0])

	_, err := NewModel(g, obs, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate base observation")
}

func TestNewModel_RejectsNonPositiveObservation(t *testing.T) {
	g := testGrid(t)
	obs := testObs(g)
	obs[0].BaseLoad = 0

	_, err := NewModel(g, obs, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "strictly positive")
}

func TestNewModel_WithdrawsReferenceDemand(t *testing.T) {
	m := newTestModel(t, false)

	withdrawals, injections := m.ContributorNames()
	assert.Equal(t, []string{ContribReferenceDemand}, withdrawals)
	assert.Empty(t, injections)

	// 2 sectores × 100 de carga base.
	assert.InDelta(t, 200.0, m.NetDemand("north", "a", nil), 1e-12)
}

func TestEnableFlexibleDemand_SwapsTheWithdrawalTerm(t *testing.T) {
	m := newTestModel(t, false)
	require.NoError(t, m.EnableFlexibleDemand())

	withdrawals, _ := m.ContributorNames()
	assert.Equal(t, []string{ContribFlexibleDemand}, withdrawals)

	// Sin pujas ni pesos la demanda flexible es cero.
	assert.Equal(t, 0.0, m.NetDemand("north", "a", nil))

	id, err := m.AddBids(fullBid(m, 5, 80, 40))
	require.NoError(t, err)
	assert.InDelta(t, 160.0, m.NetDemand("north", "a", uniformWeights(m, id)), 1e-12)
}

func TestRegisterInjection_EntersTheBalance(t *testing.T) {
	m := newTestModel(t, false)
	inj := &ConstantInjection{
		ContributorName: ContribMustRunSupply,
		Quantities:      map[domain.ZoneTS]float64{{Zone: "north", TS: "a"}: 30},
	}
	require.NoError(t, m.RegisterInjection(inj))

	assert.InDelta(t, 170.0, m.NetDemand("north", "a", nil), 1e-12)
	assert.InDelta(t, 200.0, m.NetDemand("north", "b", nil), 1e-12)

	err := m.RegisterInjection(inj)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

// --- Apply: diagnóstico por familia de restricción ---

func TestApply_RejectsSimplexViolation(t *testing.T) {
	m := newTestModel(t, false)
	require.NoError(t, m.EnableFlexibleDemand())
	id, err := m.AddBids(fullBid(m, 5, 80, 40))
	require.NoError(t, err)

	w := uniformWeights(m, id)
	w[domain.WeightKey{Bid: id, Coord: domain.Coord{Zone: "north", TS: "a", Sector: domain.SectorEI}}] = 0.9

	err = m.Apply(domain.Solution{Feasible: true, Weights: w})
	var infErr *domain.InfeasibleError
	require.ErrorAs(t, err, &infErr)
	assert.Equal(t, domain.ConstraintSimplex, infErr.Family)
	assert.Contains(t, infErr.Detail, "sum to 0.9")
}

func TestApply_RejectsFlatPricingViolation(t *testing.T) {
	m := newTestModel(t, true)
	require.NoError(t, m.EnableFlexibleDemand())
	id1, err := m.AddBids(fullBid(m, 5, 100, 0))
	require.NoError(t, err)
	id2, err := m.AddBids(fullBid(m, 5, 100, 0))
	require.NoError(t, err)

	// Simplex satisfecho en toda coordenada, pero el peso RC de la puja 1
	// difiere entre el primer bloque y el segundo.
	w := domain.Weights{}
	for _, c := range m.Grid().Coords() {
		if c.Sector == domain.SectorRC && c.TS == "b" {
			w[domain.WeightKey{Bid: id1, Coord: c}] = 0.5
			w[domain.WeightKey{Bid: id2, Coord: c}] = 0.5
			continue
		}
		w[domain.WeightKey{Bid: id1, Coord: c}] = 1
		w[domain.WeightKey{Bid: id2, Coord: c}] = 0
	}

	err = m.Apply(domain.Solution{Feasible: true, Weights: w})
	var infErr *domain.InfeasibleError
	require.ErrorAs(t, err, &infErr)
	assert.Equal(t, domain.ConstraintFlat, infErr.Family)
}

func TestApply_RejectsBalanceViolation(t *testing.T) {
	m := newTestModel(t, false)
	require.NoError(t, m.EnableFlexibleDemand())
	id, err := m.AddBids(fullBid(m, 5, 80, 40))
	require.NoError(t, err)

	sol := domain.Solution{
		Feasible: true,
		Weights:  uniformWeights(m, id),
		Supply: map[domain.ZoneTS]float64{
			{Zone: "north", TS: "a"}: 150, // el retiro neto es 160
			{Zone: "north", TS: "b"}: 160,
		},
	}

	err = m.Apply(sol)
	var infErr *domain.InfeasibleError
	require.ErrorAs(t, err, &infErr)
	assert.Equal(t, domain.ConstraintBalance, infErr.Family)
	assert.Contains(t, infErr.Detail, "north/a")
}

func TestApply_StoresTheSolution(t *testing.T) {
	m := newTestModel(t, false)
	require.NoError(t, m.EnableFlexibleDemand())
	id, err := m.AddBids(fullBid(m, 5, 80, 40))
	require.NoError(t, err)

	sol := domain.Solution{
		Objective: 1234.5,
		Feasible:  true,
		Weights:   uniformWeights(m, id),
		Duals: map[domain.ZoneTS]float64{
			{Zone: "north", TS: "a"}: 35,
			{Zone: "north", TS: "b"}: 50,
		},
		Supply: map[domain.ZoneTS]float64{
			{Zone: "north", TS: "a"}: 160,
			{Zone: "north", TS: "b"}: 160,
		},
	}
	require.NoError(t, m.Apply(sol))

	got, ok := m.Solution()
	require.True(t, ok)
	assert.Equal(t, 1234.5, got.Objective)

	assert.InDelta(t, 80.0, m.Demand(domain.Coord{Zone: "north", TS: "a", Sector: domain.SectorEI}), 1e-12)
	assert.InDelta(t, 0.0, m.Balance("north", "a"), 1e-9)
	assert.InDelta(t, 0.0, m.Balance("north", "b"), 1e-9)
}

// --- lecturas derivadas ---

func TestMarginalCost_UndoesAnnualizationAndDiscount(t *testing.T) {
	m := newTestModel(t, false)
	require.NoError(t, m.EnableFlexibleDemand())
	id, err := m.AddBids(fullBid(m, 5, 80, 40))
	require.NoError(t, err)

	_, ok := m.MarginalCost("north", "a")
	assert.False(t, ok, "sin solución aplicada no hay costo marginal")

	require.NoError(t, m.Apply(domain.Solution{
		Feasible: true,
		Weights:  uniformWeights(m, id),
		Duals: map[domain.ZoneTS]float64{
			{Zone: "north", TS: "a"}: 35,
			{Zone: "north", TS: "b"}: 50,
		},
	}))

	// dual / (cost_to_base × scale): 35/(0.5×10), 50/(0.5×20).
	mc, ok := m.MarginalCost("north", "a")
	require.True(t, ok)
	assert.InDelta(t, 7.0, mc, 1e-12)

	mc, ok = m.MarginalCost("north", "b")
	require.True(t, ok)
	assert.InDelta(t, 5.0, mc, 1e-12)

	_, ok = m.MarginalCost("north", "missing")
	assert.False(t, ok)
}

func TestWelfareCost_AnnualizesAndDiscounts(t *testing.T) {
	m := newTestModel(t, false)
	require.NoError(t, m.EnableFlexibleDemand())
	id, err := m.AddBids(fullBid(m, 5, 80, 40))
	require.NoError(t, err)

	// Por coordenada: −wtp × scale × cost_to_base.
	// Bloque a: 2 sectores × (−40×10×0.5) = −400
	// Bloque b: 2 sectores × (−40×20×0.5) = −800
	assert.InDelta(t, -1200.0, m.WelfareCost(uniformWeights(m, id)), 1e-9)

	assert.Equal(t, 0.0, m.WelfareCost(domain.Weights{}))
}

func TestDemand_FallsBackToBaseLoad(t *testing.T) {
	m := newTestModel(t, false)
	c := domain.Coord{Zone: "north", TS: "a", Sector: domain.SectorRC}
	assert.Equal(t, 100.0, m.Demand(c))
}
