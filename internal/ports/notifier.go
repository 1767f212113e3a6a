package ports

import (
	"context"

	"github.com/alejandrodnm/gasflex/internal/domain"
)

// Notifier presenta el progreso de la corrida al usuario.
type Notifier interface {
	// Iteration muestra el resumen de una iteración y la puja aceptada.
	// En la implementación de consola, imprime tablas formateadas.
	Iteration(ctx context.Context, rec domain.IterationRecord, bid domain.Bid) error

	// Final muestra el informe de cierre de la corrida.
	Final(ctx context.Context, rep domain.FinalReport) error
}
