// Package demand contiene los módulos de demanda enchufables. Cada módulo se
// registra por nombre y se selecciona por configuración al arranque; el motor
// solo conoce el contrato ports.DemandSystem.
package demand

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/alejandrodnm/gasflex/internal/domain"
	"github.com/alejandrodnm/gasflex/internal/ports"
)

// ModuleConstantElasticity es el módulo de elasticidad constante incluido.
const ModuleConstantElasticity = "constant_elasticity"

// Config son los parámetros comunes que recibe cualquier módulo al crearse.
// Los módulos ignoran los campos que no usan.
type Config struct {
	// Elasticity por sector; nil usa los valores por defecto del módulo.
	Elasticity map[domain.Sector]float64
	Logger     *slog.Logger
}

// Factory construye un módulo de demanda a partir de la configuración.
type Factory func(cfg Config) (ports.DemandSystem, error)

var registry = map[string]Factory{}

func init() {
	Register(ModuleConstantElasticity, func(cfg Config) (ports.DemandSystem, error) {
		return NewConstantElasticity(cfg)
	})
}

// Register inscribe una fábrica bajo un nombre. Registrar dos veces el mismo
// nombre es un error de programación y provoca panic en el arranque.
func Register(name string, f Factory) {
	if name == "" || f == nil {
		panic("demand.Register: empty name or nil factory")
	}
	if _, dup := registry[name]; dup {
		panic(fmt.Sprintf("demand.Register: module %q already registered", name))
	}
	registry[name] = f
}

// Known devuelve los nombres registrados, ordenados.
func Known() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// New construye el módulo llamado name. Un nombre vacío o desconocido es un
// error de configuración que se reporta antes de iterar, con la lista de
// módulos disponibles.
func New(name string, cfg Config) (ports.DemandSystem, error) {
	if name == "" {
		return nil, fmt.Errorf("demand.New: %w (available: %v)", domain.ErrNoDemandModule, Known())
	}
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("demand.New: unknown demand module %q (available: %v)", name, Known())
	}
	return f(cfg)
}
