package domain

// State es el estado del controlador de convergencia.
type State int

const (
	StateInit State = iota
	StateCalibrating
	StateIterating
	StateConverged
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateCalibrating:
		return "CALIBRATING"
	case StateIterating:
		return "ITERATING"
	case StateConverged:
		return "CONVERGED"
	case StateAborted:
		return "ABORTED"
	default:
		return "UNKNOWN"
	}
}

// IterationRecord es el registro persistido de una iteración del motor.
// Los costos "prev" valoran la solución anterior; los "best" valoran la puja
// más reciente a los costos recuperables que la motivaron (cota inferior).
type IterationRecord struct {
	RunID     string
	Iteration int
	BidID     int

	// HasPrev indica si existen costos de la solución anterior (falso en la
	// iteración 0, que no tiene resolución previa que comparar).
	HasPrev         bool
	PrevCost        float64
	PrevDirectCost  float64
	PrevWelfareCost float64

	BestCost       float64
	BestDirectCost float64
	BestBidBenefit float64

	// Gap es |prev - best| normalizado por |prev directo| (o absoluto si el
	// normalizador es casi cero).
	Gap       float64
	Converged bool
	// LowerBoundBreach marca prev_cost < best_cost: cota inferior inválida,
	// señal de defecto en el sistema de demanda.
	LowerBoundBreach bool

	// Solved indica si esta iteración llegó a resolver el modelo externo
	// (la iteración que converge se detiene antes de resolver).
	Solved    bool
	Objective float64
}

// RunResult resume una corrida completa del motor.
type RunResult struct {
	RunID      string
	State      State
	Converged  bool
	Iterations int
	Gap        float64
	Objective  float64
	// Anomalies acumula las advertencias no fatales de la corrida.
	Anomalies []string
}

// FinalPrice es el precio final cobrado en una coordenada y la cantidad servida.
type FinalPrice struct {
	Zone     Zone
	TS       TS
	Sector   Sector
	Price    float64 // $/MMBtu
	Quantity float64 // MMBtu/día
}

// SectorSummary agrega pagos y cantidades anualizadas por (periodo, sector).
type SectorSummary struct {
	Period   PeriodID
	Sector   Sector
	Payment  float64 // $/año a precios finales
	Quantity float64 // MMBtu/año
	AvgPrice float64 // Payment/Quantity, 0 si no hay cantidad
}

// PeriodCost es el costo directo anual de un periodo según el oráculo.
type PeriodCost struct {
	Period     PeriodID
	DirectCost float64 // $/año, sin descontar
}

// FinalReport es el informe final de la corrida: precios de liquidación
// (RC plano promedio-ponderado en el pase final), pagos por sector y costos.
type FinalReport struct {
	RunID       string
	State       State
	Converged   bool
	Iterations  int
	Gap         float64
	Objective   float64
	WelfareCost float64
	Prices      []FinalPrice
	Sectors     []SectorSummary
	Periods     []PeriodCost
	// Anomalies reexpone las advertencias de la corrida para el informe.
	Anomalies []string
}
