package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoDemandModule: la configuración no selecciona ningún módulo de demanda.
var ErrNoDemandModule = errors.New("no demand module selected")

// ErrNotCalibrated: se pidió una puja antes de calibrar el sistema de demanda.
var ErrNotCalibrated = errors.New("demand system has not been calibrated")

// ErrMissingDuals: la solución no trae precios sombra del balance. El oráculo
// debe habilitar la recuperación de duales (relajación en problemas enteros).
var ErrMissingDuals = errors.New("no dual values in solution; the solve oracle must expose balance duals")

// BidConflict es un par de pujas incompatible con un sistema de demanda cóncavo.
type BidConflict struct {
	Coord    Coord
	Prior    BidPoint
	Incoming BidPoint
}

func (c BidConflict) String() string {
	return fmt.Sprintf(
		"%s: prior bid %d (price=%g qty=%g wtp=%g) dominates incoming bid %d (price=%g qty=%g wtp=%g)",
		c.Coord,
		c.Prior.BidID, c.Prior.Price, c.Prior.Quantity, c.Prior.WTP,
		c.Incoming.BidID, c.Incoming.Price, c.Incoming.Quantity, c.Incoming.WTP,
	)
}

// NonConvexityError: una puja nueva queda dominada por una anterior a su propio
// precio. El conjunto de pujas no puede converger; error fatal de configuración
// del sistema de demanda, nunca se tolera en silencio.
type NonConvexityError struct {
	Conflicts []BidConflict
}

func (e *NonConvexityError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "non-convex bid received (%d conflict(s)): ", len(e.Conflicts))
	for i, c := range e.Conflicts {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(c.String())
	}
	return b.String()
}

// RootFindError: el buscador de raíces del precio plano no convergió para una
// (zona, periodo). Nunca se sustituye por la semilla en silencio.
type RootFindError struct {
	Zone       Zone
	Period     PeriodID
	Guess      float64
	Last       float64
	Iterations int
	Reason     string
}

func (e *RootFindError) Error() string {
	return fmt.Sprintf(
		"flat price root-find failed for %s/%s after %d iterations (guess=%g last=%g): %s",
		e.Zone, e.Period, e.Iterations, e.Guess, e.Last, e.Reason,
	)
}

// Familias de restricciones diagnosticables por separado.
const (
	ConstraintSimplex = "simplex"
	ConstraintFlat    = "flat-pricing"
	ConstraintBalance = "balance"
)

// InfeasibleError: la solución aplicada viola una familia de restricciones.
type InfeasibleError struct {
	Family string
	Detail string
}

func (e *InfeasibleError) Error() string {
	return fmt.Sprintf("infeasible solution: %s constraint violated: %s", e.Family, e.Detail)
}
