package ports

import (
	"context"

	"github.com/alejandrodnm/gasflex/internal/domain"
	"github.com/alejandrodnm/gasflex/internal/market"
)

// SolveOracle resuelve el modelo externo de expansión de capacidad sobre el
// estado actual del modelo de mercado. Es el único punto de suspensión del
// motor: una resolución en vuelo a la vez.
type SolveOracle interface {
	// Solve optimiza los pesos de las pujas y devuelve el costo objetivo,
	// los precios sombra del balance por (zona, bloque) y la factibilidad.
	// Una solución sin duales es fatal, no reintentable: los solvers con
	// variables enteras deben habilitar la recuperación de duales sobre la
	// relajación.
	Solve(ctx context.Context, m *market.Model) (domain.Solution, error)
}
