package ports

import "github.com/alejandrodnm/gasflex/internal/domain"

// DemandSystem es el módulo de demanda enchufable, seleccionado por nombre al
// arranque. Cualquier implementación que cumpla este contrato de dos funciones
// puede sustituir al módulo de elasticidad constante.
type DemandSystem interface {
	// Calibrate fija el estado de la curva a partir de una observación base
	// (carga, precio) por coordenada. Se llama una sola vez, antes de pujar.
	Calibrate(obs []domain.BaseObservation) error

	// Bid evalúa la curva calibrada a un precio y devuelve la cantidad
	// demandada y la disposición a pagar neta. Pura: mismas entradas, mismos
	// bits. Llamarla antes de Calibrate devuelve domain.ErrNotCalibrated.
	Bid(z domain.Zone, ts domain.TS, ds domain.Sector, price float64) (quantity, wtp float64, err error)
}
