package engine

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/gasflex/internal/adapters/demand"
	"github.com/alejandrodnm/gasflex/internal/domain"
	"github.com/alejandrodnm/gasflex/internal/market"
	"github.com/alejandrodnm/gasflex/internal/ports"
)

// flatGrid: una zona, un periodo con dos bloques de peso 1.
func flatGrid(t *testing.T) domain.Grid {
	t.Helper()
	g, err := domain.NewGrid(
		[]domain.Zone{"z"},
		[]domain.Period{{
			ID:         "P",
			CostToBase: 1,
			Timeseries: []domain.Timeseries{
				{ID: "ts1", ScaleToYear: 1},
				{ID: "ts2", ScaleToYear: 1},
			},
		}},
	)
	require.NoError(t, err)
	return g
}

func uniformObs(g domain.Grid, load, price float64) []domain.BaseObservation {
	var obs []domain.BaseObservation
	for _, c := range g.Coords() {
		obs = append(obs, domain.BaseObservation{
			Zone: c.Zone, TS: c.TS, Sector: c.Sector,
			BaseLoad: load, BasePrice: price,
		})
	}
	return obs
}

// flatEngine arma un motor con el sistema de demanda dado ya calibrado, listo
// para buscar precios planos. El oráculo y el almacén no se usan.
func flatEngine(t *testing.T, obs []domain.BaseObservation, ds ports.DemandSystem) *Engine {
	t.Helper()
	g := flatGrid(t)
	m, err := market.NewModel(g, obs, true)
	require.NoError(t, err)
	e, err := New(Config{Tolerance: 1e-4}, m, domain.Tariff{}, ds, &fakeOracle{}, &fakeStore{}, &fakeNotifier{}, nil)
	require.NoError(t, err)
	require.NoError(t, ds.Calibrate(m.BaseObservations()))
	return e
}

func elasticRC(t *testing.T, e float64) *demand.ConstantElasticity {
	t.Helper()
	ds, err := demand.NewConstantElasticity(demand.Config{
		Elasticity: map[domain.Sector]float64{
			domain.SectorEI: e,
			domain.SectorRC: e,
		},
	})
	require.NoError(t, err)
	return ds
}

func rcCosts(g domain.Grid, per map[domain.TS]float64) map[domain.Coord]float64 {
	rc := make(map[domain.Coord]float64)
	for _, c := range g.Coords() {
		rc[c] = per[c.TS]
	}
	return rc
}

func TestFindFlatPrice_FindsTheRevenueNeutralRoot(t *testing.T) {
	g := flatGrid(t)
	eng := flatEngine(t, uniformObs(g, 100, 6), elasticRC(t, 0.01))

	rc := rcCosts(g, map[domain.TS]float64{"ts1": 5, "ts2": 7})
	p, err := eng.FindFlatPrice("z", g.Periods[0], rc, true)
	require.NoError(t, err)

	// Con la misma curva en ambos bloques f(P) = q(P)·(12 − 2P): raíz en 6,
	// estrictamente entre los dos costos.
	assert.Greater(t, p, 5.0)
	assert.Less(t, p, 7.0)
	assert.InDelta(t, 6.0, p, 1e-6)

	f, err := eng.revenueImbalance(p, "z", g.Periods[0], rc)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, f, 1e-6)
}

func TestFindFlatPrice_WeighsAsymmetricBases(t *testing.T) {
	g := flatGrid(t)
	obs := []domain.BaseObservation{
		{Zone: "z", TS: "ts1", Sector: domain.SectorEI, BaseLoad: 100, BasePrice: 6},
		{Zone: "z", TS: "ts2", Sector: domain.SectorEI, BaseLoad: 100, BasePrice: 6},
		{Zone: "z", TS: "ts1", Sector: domain.SectorRC, BaseLoad: 100, BasePrice: 5.5},
		{Zone: "z", TS: "ts2", Sector: domain.SectorRC, BaseLoad: 100, BasePrice: 8},
	}
	eng := flatEngine(t, obs, elasticRC(t, 0.01))

	rc := rcCosts(g, map[domain.TS]float64{"ts1": 5.5, "ts2": 8})
	p, err := eng.FindFlatPrice("z", g.Periods[0], rc, true)
	require.NoError(t, err)

	// q_ts(P) = 100·(P/base_ts)^−e: el factor P^−e se cancela y la raíz tiene
	// forma cerrada, promediando los costos con pesos base_ts^e.
	w1 := math.Pow(5.5, 0.01)
	w2 := math.Pow(8, 0.01)
	want := (5.5*w1 + 8*w2) / (w1 + w2)
	assert.InDelta(t, want, p, 1e-6)
}

func TestFindFlatPrice_ReportModeReturnsTheSeed(t *testing.T) {
	g := flatGrid(t)
	eng := flatEngine(t, uniformObs(g, 100, 6), elasticRC(t, 0.01))

	rc := rcCosts(g, map[domain.TS]float64{"ts1": 5, "ts2": 7})
	p, err := eng.FindFlatPrice("z", g.Periods[0], rc, false)
	require.NoError(t, err)

	// Demanda realizada igual en ambos bloques: promedio simple, sin iterar.
	assert.Equal(t, 6.0, p)
}

func TestFindFlatPrice_RequiresCompleteCosts(t *testing.T) {
	g := flatGrid(t)
	eng := flatEngine(t, uniformObs(g, 100, 6), elasticRC(t, 0.01))

	rc := rcCosts(g, map[domain.TS]float64{"ts1": 5, "ts2": 7})
	delete(rc, domain.Coord{Zone: "z", TS: "ts2", Sector: domain.SectorRC})

	_, err := eng.FindFlatPrice("z", g.Periods[0], rc, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no recoverable cost")
}

// zeroDemand anula la curva: la recaudación es cero a cualquier precio y el
// desbalance queda plano, imposible de anular.
type zeroDemand struct{}

func (zeroDemand) Calibrate([]domain.BaseObservation) error { return nil }

func (zeroDemand) Bid(domain.Zone, domain.TS, domain.Sector, float64) (float64, float64, error) {
	return 0, 0, nil
}

func TestFindFlatPrice_ReportsRootFailure(t *testing.T) {
	g := flatGrid(t)
	eng := flatEngine(t, uniformObs(g, 100, 6), zeroDemand{})

	rc := rcCosts(g, map[domain.TS]float64{"ts1": 5, "ts2": 7})
	_, err := eng.FindFlatPrice("z", g.Periods[0], rc, true)

	var rfErr *domain.RootFindError
	require.ErrorAs(t, err, &rfErr)
	assert.Equal(t, domain.Zone("z"), rfErr.Zone)
	assert.Equal(t, domain.PeriodID("P"), rfErr.Period)
	assert.Equal(t, 6.0, rfErr.Guess)
	assert.Contains(t, rfErr.Reason, "locally flat")
}

// --- secantRoot ---

func TestSecantRoot_SolvesAQuadratic(t *testing.T) {
	f := func(x float64) (float64, error) { return x*x - 4, nil }

	root, iters, err := secantRoot(f, 1)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, root, 1e-6)
	assert.Less(t, iters, rootMaxIter)
}

func TestSecantRoot_DetectsFlatFunctions(t *testing.T) {
	f := func(float64) (float64, error) { return 42, nil }

	_, _, err := secantRoot(f, 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "locally flat")
}

func TestSecantRoot_PropagatesEvaluationErrors(t *testing.T) {
	f := func(float64) (float64, error) { return 0, fmt.Errorf("demand exploded") }

	_, _, err := secantRoot(f, 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "demand exploded")
}
