package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/gasflex/config"
	"github.com/alejandrodnm/gasflex/internal/domain"
)

const sampleScenario = `
zones:
  - name: north
    rc_markup: 0.25
    supply:
      - {capacity: 1500, cost: 2.1}
      - {capacity: 800, cost: 4.75}
    must_run:
      - {timeseries: w-peak, quantity: 120}
  - name: south
periods:
  - name: "2030"
    cost_to_base: 0.7835
    adder_cost: 250000
    timeseries:
      - name: w-peak
        scale_to_year: 90
        demand:
          - {zone: north, sector: EI, base_load: 820, base_price: 7.1}
          - {zone: north, sector: RC, base_load: 450}
      - name: w-off
        scale_to_year: 275
adder_zones: [north]
`

func loadSample(t *testing.T) *config.Scenario {
	t.Helper()
	s, err := config.LoadScenario(writeFile(t, "scenario.yaml", sampleScenario))
	require.NoError(t, err)
	return s
}

func TestLoadScenario_Grid(t *testing.T) {
	s := loadSample(t)

	g, err := s.Grid()
	require.NoError(t, err)

	assert.Equal(t, []domain.Zone{"north", "south"}, g.Zones)
	require.Len(t, g.Periods, 1)
	assert.Equal(t, domain.PeriodID("2030"), g.Periods[0].ID)
	assert.Equal(t, 0.7835, g.Periods[0].CostToBase)
	assert.Equal(t, 90.0, g.Scale("w-peak"))
	assert.Equal(t, 275.0, g.Scale("w-off"))
	assert.True(t, g.IsFirstTS("w-peak"))
	assert.False(t, g.IsFirstTS("w-off"))
}

func TestLoadScenario_BaseObservations(t *testing.T) {
	s := loadSample(t)
	g, err := s.Grid()
	require.NoError(t, err)

	obs := s.BaseObservations(g)
	// 2 zonas × 2 bloques × 2 sectores: toda coordenada queda cubierta.
	require.Len(t, obs, 8)

	byCoord := make(map[domain.Coord]domain.BaseObservation, len(obs))
	for _, o := range obs {
		byCoord[domain.Coord{Zone: o.Zone, TS: o.TS, Sector: o.Sector}] = o
	}

	ei := byCoord[domain.Coord{Zone: "north", TS: "w-peak", Sector: domain.SectorEI}]
	assert.Equal(t, 820.0, ei.BaseLoad)
	assert.Equal(t, 7.1, ei.BasePrice)

	// base_price omitido toma el default.
	rc := byCoord[domain.Coord{Zone: "north", TS: "w-peak", Sector: domain.SectorRC}]
	assert.Equal(t, 450.0, rc.BaseLoad)
	assert.Equal(t, config.DefaultBasePrice, rc.BasePrice)

	// Coordenada sin entrada: relleno simbólico, carga despreciable.
	fill := byCoord[domain.Coord{Zone: "south", TS: "w-off", Sector: domain.SectorEI}]
	assert.Equal(t, config.DefaultBasePrice, fill.BasePrice)
	assert.Less(t, fill.BaseLoad, 0.01)
	assert.Greater(t, fill.BaseLoad, 0.0)
}

func TestLoadScenario_Tariff(t *testing.T) {
	s := loadSample(t)

	tariff := s.Tariff()
	assert.Equal(t, 0.25, tariff.Markup("north"))
	assert.Equal(t, 0.0, tariff.Markup("south"))
	assert.True(t, tariff.HasAdder("north"))
	assert.False(t, tariff.HasAdder("south"))
	assert.Equal(t, 250000.0, tariff.Adder("2030"))
}

func TestLoadScenario_MustRunAndSupply(t *testing.T) {
	s := loadSample(t)

	inj := s.MustRunInjections()
	require.Len(t, inj, 1)
	assert.Equal(t, 120.0, inj[domain.ZoneTS{Zone: "north", TS: "w-peak"}])

	supply := s.SupplyBlocks()
	require.Len(t, supply, 1)
	require.Len(t, supply["north"], 2)
	assert.Equal(t, 1500.0, supply["north"][0].Capacity)
	assert.Equal(t, 2.1, supply["north"][0].Cost)
	assert.Equal(t, 4.75, supply["north"][1].Cost)
}

func TestLoadScenario_RejectsUnknownZone(t *testing.T) {
	body := `
zones:
  - name: north
periods:
  - name: "2030"
    cost_to_base: 1
    timeseries:
      - name: ts1
        scale_to_year: 365
        demand:
          - {zone: west, sector: EI, base_load: 10}
`
	_, err := config.LoadScenario(writeFile(t, "scenario.yaml", body))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown zone "west"`)
}

func TestLoadScenario_RejectsUnknownSector(t *testing.T) {
	body := `
zones:
  - name: north
periods:
  - name: "2030"
    cost_to_base: 1
    timeseries:
      - name: ts1
        scale_to_year: 365
        demand:
          - {zone: north, sector: XX, base_load: 10}
`
	_, err := config.LoadScenario(writeFile(t, "scenario.yaml", body))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown sector "XX"`)
}

func TestLoadScenario_RejectsMustRunForUnknownTimeseries(t *testing.T) {
	body := `
zones:
  - name: north
    must_run:
      - {timeseries: nope, quantity: 50}
periods:
  - name: "2030"
    cost_to_base: 1
    timeseries:
      - name: ts1
        scale_to_year: 365
`
	_, err := config.LoadScenario(writeFile(t, "scenario.yaml", body))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown timeseries")
}

func TestLoadScenario_RejectsBadSupplyBlock(t *testing.T) {
	body := `
zones:
  - name: north
    supply:
      - {capacity: -5, cost: 2}
periods:
  - name: "2030"
    cost_to_base: 1
    timeseries:
      - name: ts1
        scale_to_year: 365
`
	_, err := config.LoadScenario(writeFile(t, "scenario.yaml", body))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "capacity must be positive")
}

func TestLoadScenario_RejectsDuplicateDemandEntry(t *testing.T) {
	body := `
zones:
  - name: north
periods:
  - name: "2030"
    cost_to_base: 1
    timeseries:
      - name: ts1
        scale_to_year: 365
        demand:
          - {zone: north, sector: EI, base_load: 10}
          - {zone: north, sector: EI, base_load: 20}
`
	_, err := config.LoadScenario(writeFile(t, "scenario.yaml", body))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate demand entry")
}

func TestLoadScenario_RejectsEmpty(t *testing.T) {
	_, err := config.LoadScenario(writeFile(t, "scenario.yaml", "zones: []\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no zones defined")
}

func TestScenario_GridRejectsBadPeriod(t *testing.T) {
	// cost_to_base lo valida la malla, no el escenario.
	body := `
zones:
  - name: north
periods:
  - name: "2030"
    timeseries:
      - name: ts1
        scale_to_year: 365
`
	s, err := config.LoadScenario(writeFile(t, "scenario.yaml", body))
	require.NoError(t, err)

	_, err = s.Grid()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cost_to_base")
}
