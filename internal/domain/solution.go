package domain

// WeightKey indexa el peso de una puja en una coordenada.
type WeightKey struct {
	Bid   int
	Coord Coord
}

// Weights son los pesos de combinación convexa elegidos por el oráculo.
// Una entrada ausente vale 0. Invariante: para toda coordenada con al menos
// una puja, la suma sobre las pujas es exactamente 1.
type Weights map[WeightKey]float64

// Sum devuelve la suma de pesos de la coordenada c sobre las pujas con id ≤ maxBid.
func (w Weights) Sum(c Coord, maxBid int) float64 {
	total := 0.0
	for b := 1; b <= maxBid; b++ {
		total += w[WeightKey{Bid: b, Coord: c}]
	}
	return total
}

// Solution es el resultado de una resolución del modelo externo.
type Solution struct {
	// Objective es el costo total del sistema en dólares del año base,
	// incluyendo el término de bienestar.
	Objective float64
	Feasible  bool
	// Weights son los pesos elegidos para cada (puja, coordenada).
	Weights Weights
	// Duals son los precios sombra de la restricción de balance por
	// (zona, bloque), en dólares del año base por unidad anualizada.
	// Positivo: aumentar la demanda encarece el sistema.
	Duals map[ZoneTS]float64
	// Supply es la inyección neta despachada por (zona, bloque) en MMBtu/día,
	// incluida la oferta de holgura y descontada la disposición libre.
	Supply map[ZoneTS]float64
	// DirectCostPerPeriod es el costo directo anual por periodo, sin
	// descontar al año base y sin el término de bienestar.
	DirectCostPerPeriod map[PeriodID]float64
}

// HasDuals indica si la solución trae precios sombra.
func (s Solution) HasDuals() bool {
	return len(s.Duals) > 0
}

// Dual devuelve el precio sombra del balance de (z, ts) y si existe.
func (s Solution) Dual(z Zone, ts TS) (float64, bool) {
	v, ok := s.Duals[ZoneTS{Zone: z, TS: ts}]
	return v, ok
}
