// Package engine implements the iterative bid-based demand-response
// convergence loop. Each iteration derives prices from the duals of the
// previous solve, collects one bid from the demand system, folds it into the
// convex bid store and re-solves, until the gap between the realized cost and
// the lower bound priced from the newest bid falls under tolerance.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/alejandrodnm/gasflex/internal/domain"
	"github.com/alejandrodnm/gasflex/internal/market"
	"github.com/alejandrodnm/gasflex/internal/ports"
)

// Config controla la corrida del motor.
type Config struct {
	// DemandModule es el nombre del módulo de demanda seleccionado. Solo
	// informativo aquí; la instancia llega ya construida por inyección.
	DemandModule string
	// MaxIterations limita las iteraciones; 0 = sin límite.
	MaxIterations int
	// Tolerance es la tolerancia relativa del test de convergencia.
	Tolerance float64
	// StrictLowerBound aborta la corrida si el costo realizado queda por
	// debajo de la cota inferior, en vez de solo advertir.
	StrictLowerBound bool
}

// DefaultConfig devuelve la configuración recomendada.
func DefaultConfig() Config {
	return Config{
		Tolerance: 1e-4,
	}
}

// nearZeroDirect: por debajo de este costo directo el gap se evalúa en
// términos absolutos para no dividir por casi cero.
const nearZeroDirect = 1e-9

// Engine is the convergence controller. Single-threaded: one in-flight solve,
// no parallel bid generation; only the controller and the bid store mutate
// the model.
type Engine struct {
	cfg      Config
	model    *market.Model
	tariff   domain.Tariff
	demand   ports.DemandSystem
	oracle   ports.SolveOracle
	store    ports.RunStore
	notifier ports.Notifier
	log      *slog.Logger

	runID string
	state domain.State
	iter  int

	// Valoración de la solución anterior, fijada al inicio de cada iteración
	// y usada para puntuar la puja nueva.
	prevRecoverable map[domain.Coord]float64
	prevDemand      map[domain.Coord]float64

	prevObjective    float64
	hasPrevObjective bool

	anomalies []string

	// bidDebug acota el log por coordenada en mallas grandes.
	bidDebug rate.Sometimes
}

// New construye el motor con todas sus dependencias inyectadas.
func New(cfg Config, m *market.Model, tariff domain.Tariff, demand ports.DemandSystem, oracle ports.SolveOracle, store ports.RunStore, notifier ports.Notifier, log *slog.Logger) (*Engine, error) {
	if m == nil {
		return nil, fmt.Errorf("engine.New: nil model")
	}
	if demand == nil {
		return nil, fmt.Errorf("engine.New: nil demand system")
	}
	if oracle == nil {
		return nil, fmt.Errorf("engine.New: nil solve oracle")
	}
	if store == nil {
		return nil, fmt.Errorf("engine.New: nil run store")
	}
	if notifier == nil {
		return nil, fmt.Errorf("engine.New: nil notifier")
	}
	if cfg.Tolerance <= 0 {
		return nil, fmt.Errorf("engine.New: tolerance must be positive, got %v", cfg.Tolerance)
	}
	if cfg.MaxIterations < 0 {
		return nil, fmt.Errorf("engine.New: max iterations must be >= 0, got %d", cfg.MaxIterations)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		cfg:      cfg,
		model:    m,
		tariff:   tariff,
		demand:   demand,
		oracle:   oracle,
		store:    store,
		notifier: notifier,
		log:      log,
		state:    domain.StateInit,
		bidDebug: rate.Sometimes{First: 8, Interval: 2 * time.Second},
	}, nil
}

// State devuelve el estado actual del controlador.
func (e *Engine) State() domain.State { return e.state }

// Run ejecuta el ciclo completo hasta converger, agotar el presupuesto de
// iteraciones o fallar. Las condiciones fatales abortan sin resultado final;
// las anomalías no fatales quedan en el resultado y la corrida sigue.
func (e *Engine) Run(ctx context.Context) (domain.RunResult, error) {
	e.runID = uuid.NewString()
	res := domain.RunResult{RunID: e.runID, State: e.state}

	e.log.Info("starting demand response run",
		"run_id", e.runID,
		"demand_module", e.cfg.DemandModule,
		"flat_pricing", e.model.FlatPricing(),
		"tolerance", e.cfg.Tolerance,
		"max_iterations", e.cfg.MaxIterations,
		"zones", len(e.model.Grid().Zones),
		"periods", len(e.model.Grid().Periods),
	)
	if err := e.store.BeginRun(ctx, res, e.cfg.DemandModule, e.model.FlatPricing(), e.cfg.Tolerance); err != nil {
		return res, fmt.Errorf("engine.Run: begin run: %w", err)
	}

	for iter := 0; ; iter++ {
		e.iter = iter
		if err := ctx.Err(); err != nil {
			return e.abort(ctx, res, fmt.Errorf("engine.Run: canceled at iteration %d: %w", iter, err))
		}

		rec, converged, err := e.preIterate(ctx)
		res.Iterations = iter + 1
		res.Gap = rec.Gap
		if err != nil {
			return e.abort(ctx, res, fmt.Errorf("engine.Run: iteration %d: %w", iter, err))
		}

		if converged {
			e.state = domain.StateConverged
			res.Converged = true
			e.saveIteration(ctx, rec)
			e.notifyIteration(ctx, rec)
			e.log.Info("converged",
				"run_id", e.runID,
				"iteration", iter,
				"gap", rec.Gap,
				"tolerance", e.cfg.Tolerance,
			)
			break
		}

		sol, err := e.oracle.Solve(ctx, e.model)
		if err != nil {
			return e.abort(ctx, res, fmt.Errorf("engine.Run: iteration %d: outer solve: %w", iter, err))
		}
		if !sol.Feasible {
			return e.abort(ctx, res, fmt.Errorf("engine.Run: iteration %d: outer solve reported infeasible", iter))
		}
		if !sol.HasDuals() {
			return e.abort(ctx, res, fmt.Errorf("engine.Run: iteration %d: %w", iter, domain.ErrMissingDuals))
		}
		if err := e.model.Apply(sol); err != nil {
			return e.abort(ctx, res, fmt.Errorf("engine.Run: iteration %d: apply solution: %w", iter, err))
		}
		res.Objective = sol.Objective

		e.postIterate(ctx, &rec, sol)

		if e.cfg.MaxIterations > 0 && iter+1 >= e.cfg.MaxIterations {
			e.state = domain.StateConverged
			e.recordAnomaly(fmt.Sprintf("iteration budget of %d exhausted before the gap test passed", e.cfg.MaxIterations))
			e.log.Warn("iteration budget exhausted",
				"run_id", e.runID,
				"iterations", iter+1,
				"gap", rec.Gap,
			)
			break
		}
	}

	res.State = e.state
	res.Anomalies = e.anomalies

	rep, err := e.finalReport(res)
	if err != nil {
		return e.abort(ctx, res, fmt.Errorf("engine.Run: final report: %w", err))
	}
	if err := e.notifier.Final(ctx, rep); err != nil {
		e.log.Warn("final report notification failed", "run_id", e.runID, "error", err)
	}
	if err := e.store.FinishRun(ctx, res); err != nil {
		e.log.Warn("finish run persistence failed", "run_id", e.runID, "error", err)
	}
	return res, nil
}

// preIterate valora la solución anterior, deriva precios, acepta exactamente
// una puja nueva y decide la convergencia. Devuelve el registro de la
// iteración y si el gap pasó el test (nunca en la iteración 0).
func (e *Engine) preIterate(ctx context.Context) (domain.IterationRecord, bool, error) {
	rec := domain.IterationRecord{RunID: e.runID, Iteration: e.iter}

	if e.iter == 0 {
		e.state = domain.StateCalibrating
		if err := e.calibrate(); err != nil {
			return rec, false, err
		}
		e.state = domain.StateIterating
	}

	if e.iter > 0 {
		rc, err := e.recoverableCosts()
		if err != nil {
			return rec, false, err
		}
		e.prevRecoverable = rc
		e.prevDemand = e.realizedDemand()

		direct, welfare := e.realizedCosts(rc)
		rec.HasPrev = true
		rec.PrevDirectCost = direct
		rec.PrevWelfareCost = welfare
		rec.PrevCost = direct + welfare
		e.log.Info("previous solution valued",
			"run_id", e.runID,
			"iteration", e.iter,
			"direct_cost", direct,
			"welfare_cost", welfare,
		)
	}

	prices, err := e.prices()
	if err != nil {
		return rec, false, err
	}
	lines, err := e.collectBids(prices)
	if err != nil {
		return rec, false, err
	}
	bidID, err := e.model.AddBids(lines)
	if err != nil {
		return rec, false, fmt.Errorf("accept bid: %w", err)
	}
	rec.BidID = bidID

	bid, _ := e.model.LastBid()
	if err := e.store.SaveBid(ctx, e.runID, e.iter, bid); err != nil {
		e.log.Warn("bid persistence failed", "run_id", e.runID, "iteration", e.iter, "error", err)
	}

	if e.iter == 0 {
		return rec, false, nil
	}

	bestDirect, bestBenefit := e.bidLowerBound(bid, e.prevRecoverable)
	rec.BestDirectCost = bestDirect
	rec.BestBidBenefit = bestBenefit
	rec.BestCost = bestDirect + bestBenefit

	rec.Gap = e.gap(rec.PrevCost, rec.BestCost, rec.PrevDirectCost)
	e.log.Info("optimality gap",
		"run_id", e.runID,
		"iteration", e.iter,
		"lower_bound", rec.BestCost,
		"previous_cost", rec.PrevCost,
		"gap", rec.Gap,
	)

	if rec.PrevCost < rec.BestCost-nearZeroDirect {
		rec.LowerBoundBreach = true
		e.recordAnomaly(fmt.Sprintf(
			"iteration %d: realized cost %.6g is below reported lower bound %.6g; there is probably a problem with the demand system",
			e.iter, rec.PrevCost, rec.BestCost,
		))
		e.log.Warn("realized cost below reported lower bound; there is probably a problem with the demand system",
			"run_id", e.runID,
			"iteration", e.iter,
			"previous_cost", rec.PrevCost,
			"lower_bound", rec.BestCost,
		)
		if e.cfg.StrictLowerBound {
			return rec, false, fmt.Errorf("lower bound %.6g exceeds realized cost %.6g in strict mode", rec.BestCost, rec.PrevCost)
		}
	}

	converged := rec.Gap <= e.cfg.Tolerance
	rec.Converged = converged
	return rec, converged, nil
}

// postIterate registra y publica los artefactos de una iteración resuelta.
func (e *Engine) postIterate(ctx context.Context, rec *domain.IterationRecord, sol domain.Solution) {
	rec.Solved = true
	rec.Objective = sol.Objective

	if e.hasPrevObjective && e.prevObjective != 0 {
		e.log.Info("solved model",
			"run_id", e.runID,
			"iteration", e.iter,
			"objective", sol.Objective,
			"previous_objective", e.prevObjective,
			"ratio", sol.Objective/e.prevObjective,
		)
	} else {
		e.log.Info("solved model",
			"run_id", e.runID,
			"iteration", e.iter,
			"objective", sol.Objective,
		)
	}
	e.prevObjective = sol.Objective
	e.hasPrevObjective = true

	if err := e.store.SaveWeights(ctx, e.runID, e.iter, sol.Weights); err != nil {
		e.log.Warn("weight persistence failed", "run_id", e.runID, "iteration", e.iter, "error", err)
	}
	e.saveIteration(ctx, *rec)
	e.notifyIteration(ctx, *rec)
}

// calibrate construye las observaciones base, calibra el sistema de demanda y
// sustituye la demanda fija de referencia por el término flexible.
func (e *Engine) calibrate() error {
	obs := e.model.BaseObservations()
	if err := e.demand.Calibrate(obs); err != nil {
		return fmt.Errorf("calibrate demand system: %w", err)
	}
	if err := e.model.EnableFlexibleDemand(); err != nil {
		return fmt.Errorf("enable flexible demand: %w", err)
	}
	e.log.Info("demand system calibrated",
		"run_id", e.runID,
		"module", e.cfg.DemandModule,
		"observations", len(obs),
	)
	return nil
}

// collectBids evalúa el sistema de demanda en cada coordenada al precio dado:
// exactamente una línea por coordenada, pura respecto al estado calibrado.
func (e *Engine) collectBids(prices domain.PriceSet) ([]domain.BidLine, error) {
	coords := e.model.Grid().Coords()
	lines := make([]domain.BidLine, 0, len(coords))
	for _, c := range coords {
		price, ok := prices[c]
		if !ok {
			return nil, fmt.Errorf("collect bids: no price for %s", c)
		}
		qty, wtp, err := e.demand.Bid(c.Zone, c.TS, c.Sector, price)
		if err != nil {
			return nil, fmt.Errorf("collect bids: %s: %w", c, err)
		}
		mc := 0.0
		if e.iter > 0 {
			mc, _ = e.model.MarginalCost(c.Zone, c.TS)
		}
		lines = append(lines, domain.BidLine{
			Zone:         c.Zone,
			TS:           c.TS,
			Sector:       c.Sector,
			MarginalCost: mc,
			Price:        price,
			Quantity:     qty,
			WTP:          wtp,
		})
		e.bidDebug.Do(func() {
			e.log.Debug("bid evaluated",
				"iteration", e.iter,
				"zone", c.Zone,
				"timeseries", c.TS,
				"sector", c.Sector,
				"price", price,
				"quantity", qty,
				"wtp", wtp,
			)
		})
	}
	return lines, nil
}

// gap normaliza |prev − best| por |prev directo|, o usa el gap absoluto
// cuando el normalizador es casi cero (escenarios degenerados de disposición
// libre total).
func (e *Engine) gap(prevCost, bestCost, prevDirect float64) float64 {
	diff := math.Abs(prevCost - bestCost)
	if math.Abs(prevDirect) < nearZeroDirect {
		return diff
	}
	return diff / math.Abs(prevDirect)
}

func (e *Engine) realizedDemand() map[domain.Coord]float64 {
	out := make(map[domain.Coord]float64)
	for _, c := range e.model.Grid().Coords() {
		out[c] = e.model.Demand(c)
	}
	return out
}

func (e *Engine) saveIteration(ctx context.Context, rec domain.IterationRecord) {
	if err := e.store.SaveIteration(ctx, rec); err != nil {
		e.log.Warn("iteration persistence failed", "run_id", e.runID, "iteration", rec.Iteration, "error", err)
	}
}

func (e *Engine) notifyIteration(ctx context.Context, rec domain.IterationRecord) {
	bid, ok := e.model.LastBid()
	if !ok {
		return
	}
	if err := e.notifier.Iteration(ctx, rec, bid); err != nil {
		e.log.Warn("iteration notification failed", "run_id", e.runID, "iteration", rec.Iteration, "error", err)
	}
}

func (e *Engine) recordAnomaly(msg string) {
	e.anomalies = append(e.anomalies, msg)
}

// abort cierra la corrida en estado ABORTED dejando el error fatal a la vista.
func (e *Engine) abort(ctx context.Context, res domain.RunResult, err error) (domain.RunResult, error) {
	e.state = domain.StateAborted
	res.State = e.state
	res.Anomalies = e.anomalies
	e.log.Error("run aborted", "run_id", e.runID, "iteration", e.iter, "error", err)
	if ferr := e.store.FinishRun(ctx, res); ferr != nil {
		e.log.Warn("finish run persistence failed", "run_id", e.runID, "error", ferr)
	}
	return res, err
}
