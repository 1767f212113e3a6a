package demand

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/alejandrodnm/gasflex/internal/domain"
)

// Elasticidades por defecto de cada sector.
const (
	DefaultElasticityEI = 0.05
	DefaultElasticityRC = 0.01

	// priceFloor evita ratios degenerados al evaluar la curva. El precio
	// registrado en la puja no se modifica; solo el de evaluación.
	priceFloor = 1.0
)

// ConstantElasticity es el sistema de demanda de elasticidad constante: una
// curva por coordenada, calibrada con una sola observación base.
//
// Ley de demanda y disposición a pagar respecto a la línea base:
//
//	q(p)  = base_load × (p / base_price)^(−e)
//	cs(p) = base_price×base_load/(1−e) × (1 − (p/base_price)^(1−e))
//	wtp   = cs(p) + p×q(p) − base_price×base_load
//
// cs es el delta de excedente del consumidor (área bajo la curva entre el
// punto base y el nuevo) y el resto el delta de gasto. Con e = 0 la demanda
// es perfectamente inelástica: q = base_load y el término de excedente es
// exactamente cero. e = 1 es una singularidad removible del excedente; la
// configuración se rechaza en vez de tratarla.
type ConstantElasticity struct {
	elasticity map[domain.Sector]float64
	log        *slog.Logger
	base       map[domain.Coord]domain.BaseObservation
}

// NewConstantElasticity valida las elasticidades y construye el módulo sin
// calibrar. Cada elasticidad debe estar en [0, 1).
func NewConstantElasticity(cfg Config) (*ConstantElasticity, error) {
	el := map[domain.Sector]float64{
		domain.SectorEI: DefaultElasticityEI,
		domain.SectorRC: DefaultElasticityRC,
	}
	for ds, e := range cfg.Elasticity {
		if ds != domain.SectorEI && ds != domain.SectorRC {
			return nil, fmt.Errorf("demand.NewConstantElasticity: unknown sector %q", ds)
		}
		el[ds] = e
	}
	for ds, e := range el {
		if e < 0 || e >= 1 {
			return nil, fmt.Errorf("demand.NewConstantElasticity: elasticity for %s must be in [0, 1), got %v", ds, e)
		}
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &ConstantElasticity{elasticity: el, log: log}, nil
}

// Calibrate fija la observación base de cada coordenada. Solo se permite una
// calibración; el estado es inmutable después.
func (d *ConstantElasticity) Calibrate(obs []domain.BaseObservation) error {
	if d.base != nil {
		return fmt.Errorf("demand.Calibrate: already calibrated")
	}
	if len(obs) == 0 {
		return fmt.Errorf("demand.Calibrate: no base observations")
	}
	base := make(map[domain.Coord]domain.BaseObservation, len(obs))
	for _, o := range obs {
		c := domain.Coord{Zone: o.Zone, TS: o.TS, Sector: o.Sector}
		if _, dup := base[c]; dup {
			return fmt.Errorf("demand.Calibrate: duplicate observation for %s", c)
		}
		if o.BaseLoad <= 0 || o.BasePrice <= 0 {
			return fmt.Errorf("demand.Calibrate: observation for %s must be strictly positive (load=%g price=%g)", c, o.BaseLoad, o.BasePrice)
		}
		base[c] = o
	}
	d.base = base
	d.log.Debug("demand system calibrated",
		"module", ModuleConstantElasticity,
		"coordinates", len(base),
		"elasticity_ei", d.elasticity[domain.SectorEI],
		"elasticity_rc", d.elasticity[domain.SectorRC],
	)
	return nil
}

// Bid evalúa la curva calibrada al precio dado. Pura: mismas entradas
// producen exactamente los mismos bits.
func (d *ConstantElasticity) Bid(z domain.Zone, ts domain.TS, ds domain.Sector, price float64) (float64, float64, error) {
	if d.base == nil {
		return 0, 0, domain.ErrNotCalibrated
	}
	c := domain.Coord{Zone: z, TS: ts, Sector: ds}
	ob, ok := d.base[c]
	if !ok {
		return 0, 0, fmt.Errorf("demand.Bid: no base observation for %s", c)
	}
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return 0, 0, fmt.Errorf("demand.Bid: invalid price %v for %s", price, c)
	}

	p := math.Max(priceFloor, price)
	e := d.elasticity[ds]
	if e == 0 {
		q := ob.BaseLoad
		return q, p*q - ob.BasePrice*ob.BaseLoad, nil
	}

	ratio := p / ob.BasePrice
	q := ob.BaseLoad * math.Pow(ratio, -e)
	cs := ob.BasePrice * ob.BaseLoad / (1 - e) * (1 - math.Pow(ratio, 1-e))
	wtp := cs + p*q - ob.BasePrice*ob.BaseLoad
	return q, wtp, nil
}
