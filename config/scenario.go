package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/alejandrodnm/gasflex/internal/domain"
)

// Valores de calibración por defecto del escenario.
const (
	// DefaultBasePrice completa el precio de una entrada de demanda que lo omite.
	DefaultBasePrice = 6.96 // $/MMBtu
	// DefaultBaseLoad completa la carga de una entrada de demanda que la omite.
	DefaultBaseLoad = 100.0 // MMBtu/día
	// symbolicBaseLoad se asigna a toda coordenada de la malla sin entrada de
	// demanda: suficiente para que la curva exista, irrelevante en el balance.
	symbolicBaseLoad = 0.001 // MMBtu/día
)

// Scenario describe el mercado sobre el que corre el motor: zonas con su
// oferta y contratos must-run, periodos con sus bloques temporales y
// observaciones base de demanda, y los componentes exógenos de la tarifa RC.
type Scenario struct {
	Zones   []ZoneConfig   `yaml:"zones"`
	Periods []PeriodConfig `yaml:"periods"`
	// AdderZones son las zonas servidas por la infraestructura exógena cuyo
	// costo anual (adder_cost por periodo) se amortiza entre su demanda RC.
	AdderZones []string `yaml:"adder_zones"`
}

// ZoneConfig define una zona del mercado.
type ZoneConfig struct {
	Name string `yaml:"name"`
	// RCMarkup es el margen aditivo sobre el costo marginal, solo RC.
	RCMarkup float64 `yaml:"rc_markup"`
	// Supply es la curva de oferta por bloques para el despacho por mérito.
	Supply []SupplyBlock `yaml:"supply"`
	// MustRun son inyecciones fijas por bloque temporal (p.ej. importaciones
	// contratadas) que entran al balance con o sin demanda que las absorba.
	MustRun []MustRunEntry `yaml:"must_run"`
}

// SupplyBlock es un escalón de la curva de oferta de una zona.
type SupplyBlock struct {
	Capacity float64 `yaml:"capacity"` // MMBtu/día
	Cost     float64 `yaml:"cost"`     // $/MMBtu
}

// MustRunEntry es una inyección fija en un bloque temporal.
type MustRunEntry struct {
	Timeseries string  `yaml:"timeseries"`
	Quantity   float64 `yaml:"quantity"` // MMBtu/día
}

// PeriodConfig define un periodo del horizonte con sus bloques temporales.
type PeriodConfig struct {
	Name string `yaml:"name"`
	// CostToBase convierte un dólar anual del periodo a dólares del año base.
	CostToBase float64 `yaml:"cost_to_base"`
	// AdderCost es el costo anual exógeno a amortizar entre las AdderZones.
	AdderCost  float64            `yaml:"adder_cost"`
	Timeseries []TimeseriesConfig `yaml:"timeseries"`
}

// TimeseriesConfig define un bloque temporal y sus observaciones de demanda.
type TimeseriesConfig struct {
	Name        string        `yaml:"name"`
	ScaleToYear float64       `yaml:"scale_to_year"`
	Demand      []DemandEntry `yaml:"demand"`
}

// DemandEntry es la observación base (carga, precio) de una coordenada. Los
// campos omitidos toman DefaultBaseLoad / DefaultBasePrice.
type DemandEntry struct {
	Zone      string  `yaml:"zone"`
	Sector    string  `yaml:"sector"` // EI | RC
	BaseLoad  float64 `yaml:"base_load"`
	BasePrice float64 `yaml:"base_price"`
}

// LoadScenario carga y valida el archivo YAML del escenario.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.LoadScenario: read %q: %w", path, err)
	}
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("config.LoadScenario: parse YAML: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate comprueba las referencias cruzadas del escenario. La estructura de
// la malla (ids duplicados, escalas positivas) la valida domain.NewGrid.
func (s *Scenario) Validate() error {
	if len(s.Zones) == 0 {
		return fmt.Errorf("config.Scenario: no zones defined")
	}
	if len(s.Periods) == 0 {
		return fmt.Errorf("config.Scenario: no periods defined")
	}
	zones := make(map[string]bool, len(s.Zones))
	for _, z := range s.Zones {
		zones[z.Name] = true
	}
	blocks := make(map[string]bool)
	for _, p := range s.Periods {
		for _, ts := range p.Timeseries {
			blocks[ts.Name] = true
		}
	}
	for _, z := range s.Zones {
		for i, b := range z.Supply {
			if b.Capacity <= 0 {
				return fmt.Errorf("config.Scenario: zone %q: supply block %d: capacity must be positive, got %v", z.Name, i, b.Capacity)
			}
			if b.Cost < 0 {
				return fmt.Errorf("config.Scenario: zone %q: supply block %d: cost must be >= 0, got %v", z.Name, i, b.Cost)
			}
		}
		for _, mr := range z.MustRun {
			if !blocks[mr.Timeseries] {
				return fmt.Errorf("config.Scenario: zone %q: must_run references unknown timeseries %q", z.Name, mr.Timeseries)
			}
			if mr.Quantity <= 0 {
				return fmt.Errorf("config.Scenario: zone %q: must_run for %q: quantity must be positive, got %v", z.Name, mr.Timeseries, mr.Quantity)
			}
		}
	}
	for _, p := range s.Periods {
		for _, ts := range p.Timeseries {
			seen := make(map[domain.Coord]bool, len(ts.Demand))
			for _, d := range ts.Demand {
				if !zones[d.Zone] {
					return fmt.Errorf("config.Scenario: timeseries %q: demand entry references unknown zone %q", ts.Name, d.Zone)
				}
				ds := domain.Sector(d.Sector)
				if ds != domain.SectorEI && ds != domain.SectorRC {
					return fmt.Errorf("config.Scenario: timeseries %q: demand entry for zone %q: unknown sector %q", ts.Name, d.Zone, d.Sector)
				}
				c := domain.Coord{Zone: domain.Zone(d.Zone), TS: domain.TS(ts.Name), Sector: ds}
				if seen[c] {
					return fmt.Errorf("config.Scenario: duplicate demand entry for %s", c)
				}
				seen[c] = true
				if d.BaseLoad < 0 || d.BasePrice < 0 {
					return fmt.Errorf("config.Scenario: demand entry for %s: base_load and base_price must be >= 0, got load=%g price=%g", c, d.BaseLoad, d.BasePrice)
				}
			}
		}
	}
	for _, z := range s.AdderZones {
		if !zones[z] {
			return fmt.Errorf("config.Scenario: adder_zones references unknown zone %q", z)
		}
	}
	return nil
}

// Grid construye la malla de dominio del escenario.
func (s *Scenario) Grid() (domain.Grid, error) {
	zones := make([]domain.Zone, 0, len(s.Zones))
	for _, z := range s.Zones {
		zones = append(zones, domain.Zone(z.Name))
	}
	periods := make([]domain.Period, 0, len(s.Periods))
	for _, p := range s.Periods {
		dp := domain.Period{ID: domain.PeriodID(p.Name), CostToBase: p.CostToBase}
		for _, ts := range p.Timeseries {
			dp.Timeseries = append(dp.Timeseries, domain.Timeseries{
				ID:          domain.TS(ts.Name),
				ScaleToYear: ts.ScaleToYear,
			})
		}
		periods = append(periods, dp)
	}
	g, err := domain.NewGrid(zones, periods)
	if err != nil {
		return domain.Grid{}, fmt.Errorf("config.Grid: %w", err)
	}
	return g, nil
}

// BaseObservations materializa una observación por coordenada de la malla:
// las entradas del escenario donde existan, con sus campos omitidos
// completados, y el relleno simbólico en el resto.
func (s *Scenario) BaseObservations(g domain.Grid) []domain.BaseObservation {
	byCoord := make(map[domain.Coord]domain.BaseObservation)
	for _, p := range s.Periods {
		for _, ts := range p.Timeseries {
			for _, d := range ts.Demand {
				o := domain.BaseObservation{
					Zone:      domain.Zone(d.Zone),
					TS:        domain.TS(ts.Name),
					Sector:    domain.Sector(d.Sector),
					BaseLoad:  d.BaseLoad,
					BasePrice: d.BasePrice,
				}
				if o.BaseLoad == 0 {
					o.BaseLoad = DefaultBaseLoad
				}
				if o.BasePrice == 0 {
					o.BasePrice = DefaultBasePrice
				}
				byCoord[domain.Coord{Zone: o.Zone, TS: o.TS, Sector: o.Sector}] = o
			}
		}
	}
	coords := g.Coords()
	out := make([]domain.BaseObservation, 0, len(coords))
	for _, c := range coords {
		if o, ok := byCoord[c]; ok {
			out = append(out, o)
			continue
		}
		out = append(out, domain.BaseObservation{
			Zone:      c.Zone,
			TS:        c.TS,
			Sector:    c.Sector,
			BaseLoad:  symbolicBaseLoad,
			BasePrice: DefaultBasePrice,
		})
	}
	return out
}

// Tariff construye los componentes exógenos del costo recuperable RC.
func (s *Scenario) Tariff() domain.Tariff {
	t := domain.Tariff{
		RCMarkup:   make(map[domain.Zone]float64),
		AdderZones: make(map[domain.Zone]bool, len(s.AdderZones)),
		AdderCost:  make(map[domain.PeriodID]float64),
	}
	for _, z := range s.Zones {
		if z.RCMarkup != 0 {
			t.RCMarkup[domain.Zone(z.Name)] = z.RCMarkup
		}
	}
	for _, z := range s.AdderZones {
		t.AdderZones[domain.Zone(z)] = true
	}
	for _, p := range s.Periods {
		if p.AdderCost != 0 {
			t.AdderCost[domain.PeriodID(p.Name)] = p.AdderCost
		}
	}
	return t
}

// MustRunInjections agrega las inyecciones fijas por (zona, bloque temporal).
func (s *Scenario) MustRunInjections() map[domain.ZoneTS]float64 {
	out := make(map[domain.ZoneTS]float64)
	for _, z := range s.Zones {
		for _, mr := range z.MustRun {
			zt := domain.ZoneTS{Zone: domain.Zone(z.Name), TS: domain.TS(mr.Timeseries)}
			out[zt] += mr.Quantity
		}
	}
	return out
}

// SupplyBlocks devuelve la curva de oferta por zona. Una zona sin curva se
// omite del mapa; su demanda se cubrirá al costo de escasez del despachador.
func (s *Scenario) SupplyBlocks() map[domain.Zone][]SupplyBlock {
	out := make(map[domain.Zone][]SupplyBlock, len(s.Zones))
	for _, z := range s.Zones {
		if len(z.Supply) > 0 {
			out[domain.Zone(z.Name)] = append([]SupplyBlock(nil), z.Supply...)
		}
	}
	return out
}
