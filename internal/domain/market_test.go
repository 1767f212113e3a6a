package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGrid(t *testing.T) Grid {
	t.Helper()
	g, err := NewGrid(
		[]Zone{"north", "south"},
		[]Period{
			{
				ID:         "2030",
				CostToBase: 0.78,
				Timeseries: []Timeseries{
					{ID: "w-peak", ScaleToYear: 90},
					{ID: "w-off", ScaleToYear: 275},
				},
			},
		},
	)
	require.NoError(t, err)
	return g
}

func TestNewGrid_BuildsIndexes(t *testing.T) {
	g := testGrid(t)

	p, ok := g.PeriodOf("w-off")
	require.True(t, ok)
	assert.Equal(t, PeriodID("2030"), p.ID)

	_, ok = g.PeriodOf("missing")
	assert.False(t, ok)

	assert.Equal(t, 90.0, g.Scale("w-peak"))
	assert.Equal(t, 0.0, g.Scale("missing"))

	assert.True(t, g.IsFirstTS("w-peak"))
	assert.False(t, g.IsFirstTS("w-off"))
	assert.False(t, g.IsFirstTS("missing"))

	assert.Len(t, g.AllTimeseries(), 2)
}

func TestGridCoords_DeterministicOrder(t *testing.T) {
	g := testGrid(t)

	coords := g.Coords()
	require.Len(t, coords, 2*2*2)
	// Orden: zona, periodo, bloque, sector.
	assert.Equal(t, Coord{Zone: "north", TS: "w-peak", Sector: SectorEI}, coords[0])
	assert.Equal(t, Coord{Zone: "north", TS: "w-peak", Sector: SectorRC}, coords[1])
	assert.Equal(t, Coord{Zone: "north", TS: "w-off", Sector: SectorEI}, coords[2])
	assert.Equal(t, Coord{Zone: "south", TS: "w-peak", Sector: SectorEI}, coords[4])

	blocks := g.ZoneBlocks()
	require.Len(t, blocks, 4)
	assert.Equal(t, ZoneTS{Zone: "north", TS: "w-peak"}, blocks[0])
	assert.Equal(t, ZoneTS{Zone: "south", TS: "w-off"}, blocks[3])
}

func TestNewGrid_RejectsEmptyInputs(t *testing.T) {
	_, err := NewGrid(nil, []Period{{ID: "p", CostToBase: 1, Timeseries: []Timeseries{{ID: "t", ScaleToYear: 1}}}})
	assert.ErrorContains(t, err, "no zones")

	_, err = NewGrid([]Zone{"z"}, nil)
	assert.ErrorContains(t, err, "no periods")
}

func TestNewGrid_RejectsDuplicateZone(t *testing.T) {
	_, err := NewGrid(
		[]Zone{"north", "north"},
		[]Period{{ID: "p", CostToBase: 1, Timeseries: []Timeseries{{ID: "t", ScaleToYear: 1}}}},
	)
	assert.ErrorContains(t, err, `duplicate zone "north"`)
}

func TestNewGrid_RejectsDuplicateTimeseriesAcrossPeriods(t *testing.T) {
	_, err := NewGrid(
		[]Zone{"north"},
		[]Period{
			{ID: "p1", CostToBase: 1, Timeseries: []Timeseries{{ID: "shared", ScaleToYear: 100}}},
			{ID: "p2", CostToBase: 1, Timeseries: []Timeseries{{ID: "shared", ScaleToYear: 200}}},
		},
	)
	assert.ErrorContains(t, err, `duplicate timeseries "shared"`)
}

func TestNewGrid_RejectsBadNumbers(t *testing.T) {
	_, err := NewGrid(
		[]Zone{"north"},
		[]Period{{ID: "p", CostToBase: 0, Timeseries: []Timeseries{{ID: "t", ScaleToYear: 1}}}},
	)
	assert.ErrorContains(t, err, "cost_to_base")

	_, err = NewGrid(
		[]Zone{"north"},
		[]Period{{ID: "p", CostToBase: 1, Timeseries: []Timeseries{{ID: "t", ScaleToYear: 0}}}},
	)
	assert.ErrorContains(t, err, "scale_to_year")
}

// --- Bid ---

func TestBidLine_Coord(t *testing.T) {
	l := BidLine{Zone: "north", TS: "w-peak", Sector: SectorRC, Price: 4.2, Quantity: 80}
	assert.Equal(t, Coord{Zone: "north", TS: "w-peak", Sector: SectorRC}, l.Coord())
}

func TestBid_Line(t *testing.T) {
	b := Bid{ID: 3, Lines: []BidLine{
		{Zone: "north", TS: "w-peak", Sector: SectorEI, Price: 5, Quantity: 10},
		{Zone: "north", TS: "w-peak", Sector: SectorRC, Price: 6, Quantity: 20},
	}}

	l, ok := b.Line(Coord{Zone: "north", TS: "w-peak", Sector: SectorRC})
	require.True(t, ok)
	assert.Equal(t, 20.0, l.Quantity)

	_, ok = b.Line(Coord{Zone: "south", TS: "w-peak", Sector: SectorRC})
	assert.False(t, ok)
}

// --- Weights ---

func TestWeightsSum_RespectsBidCap(t *testing.T) {
	c := Coord{Zone: "north", TS: "w-peak", Sector: SectorEI}
	w := Weights{
		{Bid: 1, Coord: c}: 0.25,
		{Bid: 2, Coord: c}: 0.75,
		{Bid: 3, Coord: c}: 1.0, // fuera del cap
	}

	assert.InDelta(t, 1.0, w.Sum(c, 2), 1e-12)
	assert.InDelta(t, 2.0, w.Sum(c, 3), 1e-12)
	assert.Equal(t, 0.0, w.Sum(Coord{Zone: "x"}, 3))
}

// --- Tariff ---

func TestTariff_ZeroValueIsNeutral(t *testing.T) {
	var tr Tariff
	assert.Equal(t, 0.0, tr.Markup("north"))
	assert.False(t, tr.HasAdder("north"))
	assert.Equal(t, 0.0, tr.Adder("2030"))
}

func TestTariff_Lookups(t *testing.T) {
	tr := Tariff{
		RCMarkup:   map[Zone]float64{"north": 0.25},
		AdderZones: map[Zone]bool{"north": true},
		AdderCost:  map[PeriodID]float64{"2030": 250000},
	}
	assert.Equal(t, 0.25, tr.Markup("north"))
	assert.Equal(t, 0.0, tr.Markup("south"))
	assert.True(t, tr.HasAdder("north"))
	assert.False(t, tr.HasAdder("south"))
	assert.Equal(t, 250000.0, tr.Adder("2030"))
	assert.Equal(t, 0.0, tr.Adder("2035"))
}
