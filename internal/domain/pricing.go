package domain

// Tariff agrupa los componentes exógenos del costo recuperable del sector RC.
type Tariff struct {
	// RCMarkup es el margen aditivo por zona sobre el costo marginal, solo RC.
	RCMarkup map[Zone]float64
	// AdderZones son las zonas servidas por la infraestructura exógena.
	AdderZones map[Zone]bool
	// AdderCost es el costo anual exógeno por periodo, a amortizar entre la
	// demanda RC anualizada de las AdderZones.
	AdderCost map[PeriodID]float64
}

// Markup devuelve el margen RC de la zona (0 si no está definido).
func (t Tariff) Markup(z Zone) float64 {
	return t.RCMarkup[z]
}

// HasAdder indica si la zona está servida por la infraestructura exógena.
func (t Tariff) HasAdder(z Zone) bool {
	return t.AdderZones[z]
}

// Adder devuelve el costo exógeno anual del periodo (0 si no está definido).
func (t Tariff) Adder(p PeriodID) float64 {
	return t.AdderCost[p]
}
