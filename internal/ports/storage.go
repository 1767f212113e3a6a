package ports

import (
	"context"

	"github.com/alejandrodnm/gasflex/internal/domain"
)

// RunStore persiste los artefactos de cada iteración: la tabla de pujas, la
// tabla de pesos y el resumen de la iteración. El motor solo escribe; nunca
// relee estos registros durante la corrida.
type RunStore interface {
	// BeginRun registra el inicio de una corrida con su configuración.
	BeginRun(ctx context.Context, run domain.RunResult, demandModule string, flatPricing bool, tolerance float64) error

	// SaveBid persiste las líneas de la puja aceptada en una iteración.
	SaveBid(ctx context.Context, runID string, iteration int, bid domain.Bid) error

	// SaveWeights persiste los pesos elegidos por el oráculo en una iteración.
	SaveWeights(ctx context.Context, runID string, iteration int, w domain.Weights) error

	// SaveIteration persiste el resumen de costos y convergencia.
	SaveIteration(ctx context.Context, rec domain.IterationRecord) error

	// FinishRun registra el estado final de la corrida.
	FinishRun(ctx context.Context, run domain.RunResult) error

	// Close cierra la conexión a la base de datos limpiamente.
	Close() error
}
