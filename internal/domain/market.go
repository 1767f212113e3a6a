package domain

import "fmt"

// Zone identifica una región del mercado de gas. Opaca, definida por el escenario.
type Zone string

// TS identifica un bloque temporal representativo dentro de un periodo.
type TS string

// PeriodID identifica un periodo del horizonte de planificación.
type PeriodID string

// Sector es la clase de consumidor.
type Sector string

const (
	// SectorEI: industrial/eléctrico, precio variable por bloque temporal.
	SectorEI Sector = "EI"
	// SectorRC: residencial/comercial, precio variable o plano por periodo.
	SectorRC Sector = "RC"
)

// Sectors devuelve los sectores de demanda en orden canónico.
func Sectors() [2]Sector {
	return [2]Sector{SectorEI, SectorRC}
}

// Timeseries es un bloque temporal muestreado dentro de un periodo.
type Timeseries struct {
	ID TS
	// ScaleToYear es el peso de anualización: cuántas veces al año ocurre el bloque.
	ScaleToYear float64
}

// Period es un intervalo del horizonte de planificación.
type Period struct {
	ID PeriodID
	// CostToBase convierte un dólar anual del periodo a dólares del año base.
	CostToBase float64
	// Timeseries en orden; el primero ancla la igualdad de pesos bajo precio plano.
	Timeseries []Timeseries
}

// FirstTS devuelve el primer bloque del periodo.
func (p Period) FirstTS() TS {
	if len(p.Timeseries) == 0 {
		return ""
	}
	return p.Timeseries[0].ID
}

// Coord es la coordenada (zona, bloque, sector) sobre la que se puja.
type Coord struct {
	Zone   Zone
	TS     TS
	Sector Sector
}

func (c Coord) String() string {
	return fmt.Sprintf("%s/%s/%s", c.Zone, c.TS, c.Sector)
}

// ZoneTS identifica la restricción de balance de una zona en un bloque temporal.
type ZoneTS struct {
	Zone Zone
	TS   TS
}

// BaseObservation es el par (carga, precio) de referencia que calibra la curva
// de demanda de una coordenada. Se fija en la primera calibración y no cambia.
type BaseObservation struct {
	Zone      Zone
	TS        TS
	Sector    Sector
	BaseLoad  float64 // MMBtu/día
	BasePrice float64 // $/MMBtu
}

// Grid es la malla zona × periodo × bloque temporal sobre la que itera el motor.
// Inmutable tras NewGrid; los índices derivados se comparten entre copias.
type Grid struct {
	Zones   []Zone
	Periods []Period

	periodOf map[TS]PeriodID
	scaleOf  map[TS]float64
	periods  map[PeriodID]Period
}

// NewGrid valida la malla y construye los índices de consulta.
func NewGrid(zones []Zone, periods []Period) (Grid, error) {
	g := Grid{
		Zones:    zones,
		Periods:  periods,
		periodOf: make(map[TS]PeriodID),
		scaleOf:  make(map[TS]float64),
		periods:  make(map[PeriodID]Period, len(periods)),
	}
	if len(zones) == 0 {
		return Grid{}, fmt.Errorf("domain.NewGrid: no zones defined")
	}
	if len(periods) == 0 {
		return Grid{}, fmt.Errorf("domain.NewGrid: no periods defined")
	}
	seenZone := make(map[Zone]bool, len(zones))
	for _, z := range zones {
		if z == "" {
			return Grid{}, fmt.Errorf("domain.NewGrid: empty zone id")
		}
		if seenZone[z] {
			return Grid{}, fmt.Errorf("domain.NewGrid: duplicate zone %q", z)
		}
		seenZone[z] = true
	}
	for _, p := range periods {
		if p.ID == "" {
			return Grid{}, fmt.Errorf("domain.NewGrid: empty period id")
		}
		if _, dup := g.periods[p.ID]; dup {
			return Grid{}, fmt.Errorf("domain.NewGrid: duplicate period %q", p.ID)
		}
		if p.CostToBase <= 0 {
			return Grid{}, fmt.Errorf("domain.NewGrid: period %q: cost_to_base must be positive, got %v", p.ID, p.CostToBase)
		}
		if len(p.Timeseries) == 0 {
			return Grid{}, fmt.Errorf("domain.NewGrid: period %q has no timeseries", p.ID)
		}
		for _, ts := range p.Timeseries {
			if ts.ID == "" {
				return Grid{}, fmt.Errorf("domain.NewGrid: period %q: empty timeseries id", p.ID)
			}
			if _, dup := g.periodOf[ts.ID]; dup {
				return Grid{}, fmt.Errorf("domain.NewGrid: duplicate timeseries %q", ts.ID)
			}
			if ts.ScaleToYear <= 0 {
				return Grid{}, fmt.Errorf("domain.NewGrid: timeseries %q: scale_to_year must be positive, got %v", ts.ID, ts.ScaleToYear)
			}
			g.periodOf[ts.ID] = p.ID
			g.scaleOf[ts.ID] = ts.ScaleToYear
		}
		g.periods[p.ID] = p
	}
	return g, nil
}

// PeriodOf devuelve el periodo al que pertenece el bloque ts.
func (g Grid) PeriodOf(ts TS) (Period, bool) {
	id, ok := g.periodOf[ts]
	if !ok {
		return Period{}, false
	}
	return g.periods[id], true
}

// Scale devuelve el peso de anualización del bloque ts (0 si no existe).
func (g Grid) Scale(ts TS) float64 {
	return g.scaleOf[ts]
}

// IsFirstTS indica si ts es el primer bloque de su periodo.
func (g Grid) IsFirstTS(ts TS) bool {
	p, ok := g.PeriodOf(ts)
	return ok && p.FirstTS() == ts
}

// AllTimeseries devuelve todos los bloques en orden de periodo.
func (g Grid) AllTimeseries() []Timeseries {
	var out []Timeseries
	for _, p := range g.Periods {
		out = append(out, p.Timeseries...)
	}
	return out
}

// Coords enumera todas las coordenadas (zona, bloque, sector) en orden
// determinista: zona, periodo, bloque, sector.
func (g Grid) Coords() []Coord {
	sectors := Sectors()
	out := make([]Coord, 0, len(g.Zones)*len(g.periodOf)*len(sectors))
	for _, z := range g.Zones {
		for _, p := range g.Periods {
			for _, ts := range p.Timeseries {
				for _, ds := range sectors {
					out = append(out, Coord{Zone: z, TS: ts.ID, Sector: ds})
				}
			}
		}
	}
	return out
}

// ZoneBlocks enumera todas las parejas (zona, bloque) en orden determinista.
func (g Grid) ZoneBlocks() []ZoneTS {
	out := make([]ZoneTS, 0, len(g.Zones)*len(g.periodOf))
	for _, z := range g.Zones {
		for _, p := range g.Periods {
			for _, ts := range p.Timeseries {
				out = append(out, ZoneTS{Zone: z, TS: ts.ID})
			}
		}
	}
	return out
}
