package domain

// PriceSet es el vector de precios ofrecidos, uno por coordenada.
type PriceSet map[Coord]float64

// BidLine es la entrada de una puja para una sola coordenada: el precio
// ofrecido, la cantidad demandada a ese precio y la disposición a pagar
// (beneficio privado neto) por esa cantidad.
type BidLine struct {
	Zone   Zone
	TS     TS
	Sector Sector
	// MarginalCost es el costo marginal que motivó el precio (0 en la
	// iteración base). Solo informativo, no participa en el modelo.
	MarginalCost float64
	Price        float64 // $/MMBtu
	Quantity     float64 // MMBtu/día
	WTP          float64 // $/día respecto a la línea base
}

// Coord devuelve la coordenada de la línea.
func (l BidLine) Coord() Coord {
	return Coord{Zone: l.Zone, TS: l.TS, Sector: l.Sector}
}

// Bid es la puja completa de una iteración: exactamente una línea por cada
// coordenada conocida. Inmutable una vez aceptada; los ids crecen de forma
// estrictamente monótona.
type Bid struct {
	ID    int
	Lines []BidLine
}

// Line busca la línea de la coordenada c.
func (b Bid) Line(c Coord) (BidLine, bool) {
	for _, l := range b.Lines {
		if l.Coord() == c {
			return l, true
		}
	}
	return BidLine{}, false
}

// BidPoint resume una puja en una coordenada para diagnóstico.
type BidPoint struct {
	BidID    int
	Price    float64
	Quantity float64
	WTP      float64
}
