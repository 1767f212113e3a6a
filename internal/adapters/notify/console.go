package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/gasflex/internal/domain"
)

// Console implementa ports.Notifier escribiendo el progreso de la corrida en
// texto plano: una línea compacta por iteración y el informe final con
// tablas. Con table=true también imprime la puja completa de cada iteración.
type Console struct {
	out   io.Writer
	table bool
}

// NewConsole crea un notificador que escribe a stdout.
func NewConsole(table bool) *Console {
	return &Console{out: os.Stdout, table: table}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer, table bool) *Console {
	return &Console{out: w, table: table}
}

// Iteration imprime el resumen de una iteración y, en modo tabla, las líneas
// de la puja aceptada.
func (c *Console) Iteration(_ context.Context, rec domain.IterationRecord, bid domain.Bid) error {
	now := time.Now().Format("15:04:05")

	if !rec.HasPrev {
		fmt.Fprintf(c.out, "[%s] iter %d  bid %d  (calibration round, no gap yet)\n",
			now, rec.Iteration, rec.BidID)
	} else {
		line := fmt.Sprintf("[%s] iter %d  bid %d  gap:%.3e  prev:$%.2f  best:$%.2f",
			now, rec.Iteration, rec.BidID, rec.Gap, rec.PrevCost, rec.BestCost)
		if rec.Solved {
			line += fmt.Sprintf("  obj:$%.2f", rec.Objective)
		}
		if rec.Converged {
			line += "  CONVERGED"
		}
		fmt.Fprintln(c.out, line)
	}

	if rec.LowerBoundBreach {
		fmt.Fprintf(c.out, "  ⚠ realized cost below the reported lower bound — check the demand system\n")
	}

	if c.table {
		c.printBid(bid)
	}
	return nil
}

// printBid imprime la tabla de líneas de una puja.
func (c *Console) printBid(bid domain.Bid) {
	table := tablewriter.NewWriter(c.out)
	table.Header("Zone", "TS", "Sector", "MC $/MMBtu", "Price $/MMBtu", "Qty MMBtu/d", "WTP $/d")

	for _, l := range bid.Lines {
		table.Append(
			string(l.Zone),
			string(l.TS),
			string(l.Sector),
			fmt.Sprintf("%.4f", l.MarginalCost),
			fmt.Sprintf("%.4f", l.Price),
			fmt.Sprintf("%.3f", l.Quantity),
			fmt.Sprintf("%.3f", l.WTP),
		)
	}
	table.Render()
}

// Final imprime el informe de cierre: resumen de la corrida, precios finales
// por coordenada, agregados por sector y costos por periodo.
func (c *Console) Final(_ context.Context, rep domain.FinalReport) error {
	fmt.Fprintf(c.out, "\n=== FINAL REPORT — run %s ===\n", shortID(rep.RunID))
	fmt.Fprintf(c.out, "  state: %s  converged: %v  iterations: %d  gap: %.3e\n",
		rep.State, rep.Converged, rep.Iterations, rep.Gap)
	fmt.Fprintf(c.out, "  objective: $%.2f  welfare term: $%.2f\n", rep.Objective, rep.WelfareCost)

	if len(rep.Prices) > 0 {
		fmt.Fprintln(c.out, "\n  Final prices:")
		table := tablewriter.NewWriter(c.out)
		table.Header("Zone", "TS", "Sector", "Price $/MMBtu", "Qty MMBtu/d")
		for _, p := range rep.Prices {
			table.Append(
				string(p.Zone),
				string(p.TS),
				string(p.Sector),
				fmt.Sprintf("%.4f", p.Price),
				fmt.Sprintf("%.3f", p.Quantity),
			)
		}
		table.Render()
	}

	if len(rep.Sectors) > 0 {
		fmt.Fprintln(c.out, "\n  Annual payments by sector:")
		table := tablewriter.NewWriter(c.out)
		table.Header("Period", "Sector", "Payment $/yr", "Qty MMBtu/yr", "Avg $/MMBtu")
		for _, s := range rep.Sectors {
			table.Append(
				string(s.Period),
				string(s.Sector),
				fmt.Sprintf("%.2f", s.Payment),
				fmt.Sprintf("%.2f", s.Quantity),
				fmt.Sprintf("%.4f", s.AvgPrice),
			)
		}
		table.Render()
	}

	if len(rep.Periods) > 0 {
		fmt.Fprintln(c.out, "\n  Direct cost by period (undiscounted):")
		table := tablewriter.NewWriter(c.out)
		table.Header("Period", "Direct cost $/yr")
		for _, p := range rep.Periods {
			table.Append(string(p.Period), fmt.Sprintf("%.2f", p.DirectCost))
		}
		table.Render()
	}

	for _, a := range rep.Anomalies {
		fmt.Fprintf(c.out, "  ⚠ %s\n", a)
	}
	fmt.Fprintln(c.out)
	return nil
}

// shortID recorta un uuid para los encabezados.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
