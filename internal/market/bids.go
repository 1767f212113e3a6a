package market

import (
	"fmt"

	"github.com/alejandrodnm/gasflex/internal/domain"
)

// NextBidID devuelve el id que recibiría la próxima puja: 1 con el libro
// vacío, máximo existente + 1 en otro caso.
func (m *Model) NextBidID() int {
	if len(m.bids) == 0 {
		return 1
	}
	return m.bids[len(m.bids)-1].ID + 1
}

// AddBids accepts one complete bid (exactly one line per known coordinate),
// runs the non-convexity check against every prior bid, and on acceptance
// appends it to the ledger, bumps the version and regenerates every derived
// structure. The bid is visible to all constraints before the next solve.
//
// Non-convexity: a prior bid k at the incoming price p dominates the incoming
// bid when wk − qk·p > w − q·p + ε. Any such pair means the demand system is
// not concave, the bid set cannot converge, and the run must stop; every
// conflicting pair is reported.
func (m *Model) AddBids(lines []domain.BidLine) (int, error) {
	if len(lines) == 0 {
		return 0, fmt.Errorf("market.AddBids: empty bid")
	}
	seen := make(map[domain.Coord]bool, len(lines))
	for _, l := range lines {
		c := l.Coord()
		if _, known := m.baseQty[c]; !known {
			return 0, fmt.Errorf("market.AddBids: bid line for unknown coordinate %s", c)
		}
		if seen[c] {
			return 0, fmt.Errorf("market.AddBids: duplicate bid line for %s", c)
		}
		seen[c] = true
	}
	if len(lines) != len(m.baseQty) {
		return 0, fmt.Errorf("market.AddBids: bid covers %d of %d coordinates", len(lines), len(m.baseQty))
	}

	id := m.NextBidID()
	var conflicts []domain.BidConflict
	for _, l := range lines {
		c := l.Coord()
		for _, prior := range m.points[c] {
			if prior.WTP-prior.Quantity*l.Price > l.WTP-l.Quantity*l.Price+convexityTol {
				conflicts = append(conflicts, domain.BidConflict{
					Coord: c,
					Prior: prior,
					Incoming: domain.BidPoint{
						BidID:    id,
						Price:    l.Price,
						Quantity: l.Quantity,
						WTP:      l.WTP,
					},
				})
			}
		}
	}
	if len(conflicts) > 0 {
		return 0, &domain.NonConvexityError{Conflicts: conflicts}
	}

	m.bids = append(m.bids, domain.Bid{ID: id, Lines: lines})
	for _, l := range lines {
		c := l.Coord()
		m.points[c] = append(m.points[c], domain.BidPoint{
			BidID:    id,
			Price:    l.Price,
			Quantity: l.Quantity,
			WTP:      l.WTP,
		})
	}
	m.version++
	m.rebuild()
	return id, nil
}

// rebuild regenerates the weight-sum and flat-pricing descriptors from the
// current ledger snapshot. Duals of the last solution survive untouched: they
// are keyed by (zone, timeseries), not by these descriptors.
func (m *Model) rebuild() {
	ids := make([]int, len(m.bids))
	for i, b := range m.bids {
		ids[i] = b.ID
	}

	m.simplex = m.simplex[:0]
	for _, c := range m.grid.Coords() {
		if len(m.points[c]) == 0 {
			continue
		}
		m.simplex = append(m.simplex, WeightSumConstraint{Coord: c, Bids: ids})
	}

	m.flat = m.flat[:0]
	if !m.flatPricing {
		return
	}
	for _, b := range ids {
		for _, z := range m.grid.Zones {
			for _, p := range m.grid.Periods {
				first := p.FirstTS()
				for _, ts := range p.Timeseries {
					if ts.ID == first {
						continue
					}
					m.flat = append(m.flat, FlatWeightConstraint{
						Bid:     b,
						Zone:    z,
						Period:  p.ID,
						TS:      ts.ID,
						FirstTS: first,
					})
				}
			}
		}
	}
}
