package market

import (
	"fmt"

	"github.com/alejandrodnm/gasflex/internal/domain"
)

// Nombres de los contribuyentes registrados por el propio modelo.
const (
	ContribReferenceDemand = "reference_demand"
	ContribFlexibleDemand  = "flexible_demand"
	ContribMustRunSupply   = "must_run_supply"
)

// Contributor is one named term of the zone balance. Withdrawal contributors
// consume gas, injection contributors supply it. Quantity is evaluated for a
// candidate weight vector so the oracle can price the balance while choosing
// weights; contributors that do not depend on bids ignore w.
type Contributor interface {
	Name() string
	Quantity(z domain.Zone, ts domain.TS, w domain.Weights) float64
}

// RegisterInjection agrega un término de inyección al balance.
func (m *Model) RegisterInjection(c Contributor) error {
	if err := checkName(m.injections, c.Name()); err != nil {
		return fmt.Errorf("market.RegisterInjection: %w", err)
	}
	m.injections = append(m.injections, c)
	return nil
}

// RegisterWithdrawal agrega un término de retiro al balance.
func (m *Model) RegisterWithdrawal(c Contributor) error {
	if err := checkName(m.withdrawals, c.Name()); err != nil {
		return fmt.Errorf("market.RegisterWithdrawal: %w", err)
	}
	m.withdrawals = append(m.withdrawals, c)
	return nil
}

// ReplaceWithdrawal swaps the withdrawal contributor registered under name.
// Used at calibration to substitute the fixed reference demand with the
// flexible-demand term.
func (m *Model) ReplaceWithdrawal(name string, c Contributor) error {
	for i, old := range m.withdrawals {
		if old.Name() == name {
			m.withdrawals[i] = c
			return nil
		}
	}
	return fmt.Errorf("market.ReplaceWithdrawal: no withdrawal contributor named %q", name)
}

// EnableFlexibleDemand replaces the reference-demand term with the bid-driven
// flexible-demand term. Called once, right after the demand system calibrates.
func (m *Model) EnableFlexibleDemand() error {
	return m.ReplaceWithdrawal(ContribReferenceDemand, &flexibleDemand{m: m})
}

// Withdrawals suma los retiros registrados en (z, ts) con pesos w.
func (m *Model) Withdrawals(z domain.Zone, ts domain.TS, w domain.Weights) float64 {
	total := 0.0
	for _, c := range m.withdrawals {
		total += c.Quantity(z, ts, w)
	}
	return total
}

// Injections suma las inyecciones registradas en (z, ts) con pesos w.
func (m *Model) Injections(z domain.Zone, ts domain.TS, w domain.Weights) float64 {
	total := 0.0
	for _, c := range m.injections {
		total += c.Quantity(z, ts, w)
	}
	return total
}

// NetDemand es el retiro neto que el oráculo debe cubrir con despacho propio:
// retiros registrados menos inyecciones registradas, a pesos w.
func (m *Model) NetDemand(z domain.Zone, ts domain.TS, w domain.Weights) float64 {
	return m.Withdrawals(z, ts, w) - m.Injections(z, ts, w)
}

// Balance devuelve el residuo inyección − retiro de la última solución
// aplicada (despacho del oráculo incluido). Cero dentro de tolerancia en toda
// solución factible.
func (m *Model) Balance(z domain.Zone, ts domain.TS) float64 {
	if m.sol == nil {
		return 0
	}
	supplied := m.sol.Supply[domain.ZoneTS{Zone: z, TS: ts}]
	return supplied + m.Injections(z, ts, m.sol.Weights) - m.Withdrawals(z, ts, m.sol.Weights)
}

// ContributorNames lista los términos registrados, retiros e inyecciones.
func (m *Model) ContributorNames() (withdrawals, injections []string) {
	for _, c := range m.withdrawals {
		withdrawals = append(withdrawals, c.Name())
	}
	for _, c := range m.injections {
		injections = append(injections, c.Name())
	}
	return withdrawals, injections
}

func checkName(regs []Contributor, name string) error {
	if name == "" {
		return fmt.Errorf("empty contributor name")
	}
	for _, c := range regs {
		if c.Name() == name {
			return fmt.Errorf("contributor %q already registered", name)
		}
	}
	return nil
}

// referenceDemand retira la carga base de cada sector mientras el sistema de
// demanda no está calibrado. Ignora los pesos.
type referenceDemand struct {
	m *Model
}

func (r *referenceDemand) Name() string { return ContribReferenceDemand }

func (r *referenceDemand) Quantity(z domain.Zone, ts domain.TS, _ domain.Weights) float64 {
	total := 0.0
	for _, ds := range domain.Sectors() {
		total += r.m.baseQty[domain.Coord{Zone: z, TS: ts, Sector: ds}]
	}
	return total
}

// flexibleDemand retira la combinación convexa de las pujas a los pesos w.
type flexibleDemand struct {
	m *Model
}

func (f *flexibleDemand) Name() string { return ContribFlexibleDemand }

func (f *flexibleDemand) Quantity(z domain.Zone, ts domain.TS, w domain.Weights) float64 {
	total := 0.0
	for _, ds := range domain.Sectors() {
		total += f.m.FlexibleDemand(domain.Coord{Zone: z, TS: ts, Sector: ds}, w)
	}
	return total
}

// ConstantInjection es una inyección fija por (zona, bloque), por ejemplo un
// contrato de importación must-run definido en el escenario.
type ConstantInjection struct {
	ContributorName string
	Quantities      map[domain.ZoneTS]float64
}

func (c *ConstantInjection) Name() string { return c.ContributorName }

func (c *ConstantInjection) Quantity(z domain.Zone, ts domain.TS, _ domain.Weights) float64 {
	return c.Quantities[domain.ZoneTS{Zone: z, TS: ts}]
}
