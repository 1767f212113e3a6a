package storage

// sqlite.go — bitácora de corridas sobre SQLite (pure Go, sin CGo).
//
// Estrategia:
//   - `runs`: una fila por corrida con su configuración y el resultado final.
//   - `bids`: una fila por línea de puja aceptada. El libro es append-only,
//     así que cada (run, puja, coordenada) se escribe una sola vez.
//   - `bid_weights`: los pesos elegidos por el oráculo en cada iteración,
//     incluidos los ceros — reconstruyen cualquier solución intermedia.
//   - `iterations`: el resumen de costos y convergencia por iteración.
//
// El motor solo escribe durante la corrida; las consultas de lectura existen
// para inspección posterior y para las pruebas.

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/alejandrodnm/gasflex/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
-- Una fila por corrida del motor
CREATE TABLE IF NOT EXISTS runs (
    run_id        TEXT PRIMARY KEY,
    started_at    DATETIME NOT NULL,
    finished_at   DATETIME,
    demand_module TEXT NOT NULL,
    flat_pricing  INTEGER NOT NULL DEFAULT 0,
    tolerance     REAL NOT NULL,
    state         TEXT NOT NULL,
    converged     INTEGER NOT NULL DEFAULT 0,
    iterations    INTEGER NOT NULL DEFAULT 0,
    gap           REAL NOT NULL DEFAULT 0,
    objective     REAL NOT NULL DEFAULT 0,
    anomalies     TEXT NOT NULL DEFAULT ''
);

-- Una fila por línea de puja aceptada
CREATE TABLE IF NOT EXISTS bids (
    run_id        TEXT NOT NULL,
    iteration     INTEGER NOT NULL,
    bid_id        INTEGER NOT NULL,
    zone          TEXT NOT NULL,
    timeseries    TEXT NOT NULL,
    sector        TEXT NOT NULL,
    marginal_cost REAL NOT NULL DEFAULT 0,
    price         REAL NOT NULL,
    quantity      REAL NOT NULL,
    wtp           REAL NOT NULL,
    PRIMARY KEY (run_id, bid_id, zone, timeseries, sector)
);

-- Pesos de la combinación convexa por iteración, ceros incluidos
CREATE TABLE IF NOT EXISTS bid_weights (
    run_id     TEXT NOT NULL,
    iteration  INTEGER NOT NULL,
    bid_id     INTEGER NOT NULL,
    zone       TEXT NOT NULL,
    timeseries TEXT NOT NULL,
    sector     TEXT NOT NULL,
    weight     REAL NOT NULL,
    PRIMARY KEY (run_id, iteration, bid_id, zone, timeseries, sector)
);

-- Resumen de costos y convergencia por iteración
CREATE TABLE IF NOT EXISTS iterations (
    run_id             TEXT NOT NULL,
    iteration          INTEGER NOT NULL,
    bid_id             INTEGER NOT NULL,
    has_prev           INTEGER NOT NULL DEFAULT 0,
    prev_cost          REAL NOT NULL DEFAULT 0,
    prev_direct_cost   REAL NOT NULL DEFAULT 0,
    prev_welfare_cost  REAL NOT NULL DEFAULT 0,
    best_cost          REAL NOT NULL DEFAULT 0,
    best_direct_cost   REAL NOT NULL DEFAULT 0,
    best_bid_benefit   REAL NOT NULL DEFAULT 0,
    gap                REAL NOT NULL DEFAULT 0,
    converged          INTEGER NOT NULL DEFAULT 0,
    lower_bound_breach INTEGER NOT NULL DEFAULT 0,
    solved             INTEGER NOT NULL DEFAULT 0,
    objective          REAL NOT NULL DEFAULT 0,
    PRIMARY KEY (run_id, iteration)
);

CREATE INDEX IF NOT EXISTS idx_bids_run    ON bids(run_id, iteration);
CREATE INDEX IF NOT EXISTS idx_weights_run ON bid_weights(run_id, iteration);
CREATE INDEX IF NOT EXISTS idx_iter_run    ON iterations(run_id, iteration);
`

// anomalySep separa anomalías dentro de la columna de texto.
const anomalySep = "\n"

// SQLiteStore implementa ports.RunStore usando SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore abre (o crea) la base de datos en la ruta dada y aplica el
// schema. Usar ":memory:" para una base efímera.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStore: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStore: apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// BeginRun registra el inicio de la corrida con su configuración.
func (s *SQLiteStore) BeginRun(ctx context.Context, run domain.RunResult, demandModule string, flatPricing bool, tolerance float64) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (run_id, started_at, demand_module, flat_pricing, tolerance, state)
		VALUES (?, ?, ?, ?, ?, ?)`,
		run.RunID,
		time.Now().UTC().Format(time.RFC3339Nano),
		demandModule,
		boolInt(flatPricing),
		tolerance,
		run.State.String(),
	); err != nil {
		return fmt.Errorf("storage.BeginRun: insert run %s: %w", run.RunID, err)
	}
	return nil
}

// SaveBid persiste cada línea de la puja aceptada. Idempotente: reescribir la
// misma puja actualiza las filas existentes.
func (s *SQLiteStore) SaveBid(ctx context.Context, runID string, iteration int, bid domain.Bid) error {
	if len(bid.Lines) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.SaveBid: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO bids
			(run_id, iteration, bid_id, zone, timeseries, sector,
			 marginal_cost, price, quantity, wtp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, bid_id, zone, timeseries, sector) DO UPDATE SET
			iteration     = excluded.iteration,
			marginal_cost = excluded.marginal_cost,
			price         = excluded.price,
			quantity      = excluded.quantity,
			wtp           = excluded.wtp
	`)
	if err != nil {
		return fmt.Errorf("storage.SaveBid: prepare: %w", err)
	}
	defer stmt.Close()

	for _, l := range bid.Lines {
		if _, err := stmt.ExecContext(ctx,
			runID, iteration, bid.ID,
			string(l.Zone), string(l.TS), string(l.Sector),
			l.MarginalCost, l.Price, l.Quantity, l.WTP,
		); err != nil {
			return fmt.Errorf("storage.SaveBid: upsert bid %d at %s: %w", bid.ID, l.Coord(), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.SaveBid: commit: %w", err)
	}
	return nil
}

// SaveWeights persiste el vector de pesos completo de una iteración.
func (s *SQLiteStore) SaveWeights(ctx context.Context, runID string, iteration int, w domain.Weights) error {
	if len(w) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.SaveWeights: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO bid_weights
			(run_id, iteration, bid_id, zone, timeseries, sector, weight)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, iteration, bid_id, zone, timeseries, sector) DO UPDATE SET
			weight = excluded.weight
	`)
	if err != nil {
		return fmt.Errorf("storage.SaveWeights: prepare: %w", err)
	}
	defer stmt.Close()

	for key, weight := range w {
		if _, err := stmt.ExecContext(ctx,
			runID, iteration, key.Bid,
			string(key.Coord.Zone), string(key.Coord.TS), string(key.Coord.Sector),
			weight,
		); err != nil {
			return fmt.Errorf("storage.SaveWeights: upsert bid %d at %s: %w", key.Bid, key.Coord, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.SaveWeights: commit: %w", err)
	}
	return nil
}

// SaveIteration persiste el resumen de la iteración.
func (s *SQLiteStore) SaveIteration(ctx context.Context, rec domain.IterationRecord) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO iterations
			(run_id, iteration, bid_id, has_prev,
			 prev_cost, prev_direct_cost, prev_welfare_cost,
			 best_cost, best_direct_cost, best_bid_benefit,
			 gap, converged, lower_bound_breach, solved, objective)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, iteration) DO UPDATE SET
			bid_id             = excluded.bid_id,
			has_prev           = excluded.has_prev,
			prev_cost          = excluded.prev_cost,
			prev_direct_cost   = excluded.prev_direct_cost,
			prev_welfare_cost  = excluded.prev_welfare_cost,
			best_cost          = excluded.best_cost,
			best_direct_cost   = excluded.best_direct_cost,
			best_bid_benefit   = excluded.best_bid_benefit,
			gap                = excluded.gap,
			converged          = excluded.converged,
			lower_bound_breach = excluded.lower_bound_breach,
			solved             = excluded.solved,
			objective          = excluded.objective
	`,
		rec.RunID, rec.Iteration, rec.BidID, boolInt(rec.HasPrev),
		rec.PrevCost, rec.PrevDirectCost, rec.PrevWelfareCost,
		rec.BestCost, rec.BestDirectCost, rec.BestBidBenefit,
		rec.Gap, boolInt(rec.Converged), boolInt(rec.LowerBoundBreach),
		boolInt(rec.Solved), rec.Objective,
	); err != nil {
		return fmt.Errorf("storage.SaveIteration: upsert iteration %d of run %s: %w", rec.Iteration, rec.RunID, err)
	}
	return nil
}

// FinishRun sella la corrida con su resultado final.
func (s *SQLiteStore) FinishRun(ctx context.Context, run domain.RunResult) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET
			finished_at = ?,
			state       = ?,
			converged   = ?,
			iterations  = ?,
			gap         = ?,
			objective   = ?,
			anomalies   = ?
		WHERE run_id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano),
		run.State.String(),
		boolInt(run.Converged),
		run.Iterations,
		run.Gap,
		run.Objective,
		strings.Join(run.Anomalies, anomalySep),
		run.RunID,
	)
	if err != nil {
		return fmt.Errorf("storage.FinishRun: update run %s: %w", run.RunID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("storage.FinishRun: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("storage.FinishRun: run %s was never begun", run.RunID)
	}
	return nil
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- lecturas de inspección ---

// RunRow es la fila de la tabla runs reconstruida.
type RunRow struct {
	RunID        string
	StartedAt    time.Time
	FinishedAt   time.Time // cero mientras la corrida siga abierta
	DemandModule string
	FlatPricing  bool
	Tolerance    float64
	State        string
	Converged    bool
	Iterations   int
	Gap          float64
	Objective    float64
	Anomalies    []string
}

// GetRun devuelve la fila de la corrida.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (RunRow, error) {
	var (
		row        RunRow
		started    string
		finished   sql.NullString
		flat, conv int
		anomalies  string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT run_id, started_at, finished_at, demand_module, flat_pricing,
		       tolerance, state, converged, iterations, gap, objective, anomalies
		FROM runs WHERE run_id = ?`, runID,
	).Scan(
		&row.RunID, &started, &finished, &row.DemandModule, &flat,
		&row.Tolerance, &row.State, &conv, &row.Iterations, &row.Gap,
		&row.Objective, &anomalies,
	)
	if err != nil {
		return RunRow{}, fmt.Errorf("storage.GetRun: %s: %w", runID, err)
	}
	row.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
	if finished.Valid {
		row.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished.String)
	}
	row.FlatPricing = flat == 1
	row.Converged = conv == 1
	if anomalies != "" {
		row.Anomalies = strings.Split(anomalies, anomalySep)
	}
	return row, nil
}

// GetIterations devuelve los resúmenes de iteración de la corrida en orden.
func (s *SQLiteStore) GetIterations(ctx context.Context, runID string) ([]domain.IterationRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, iteration, bid_id, has_prev,
		       prev_cost, prev_direct_cost, prev_welfare_cost,
		       best_cost, best_direct_cost, best_bid_benefit,
		       gap, converged, lower_bound_breach, solved, objective
		FROM iterations WHERE run_id = ? ORDER BY iteration`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage.GetIterations: query: %w", err)
	}
	defer rows.Close()

	var recs []domain.IterationRecord
	for rows.Next() {
		var rec domain.IterationRecord
		var hasPrev, converged, breach, solved int
		if err := rows.Scan(
			&rec.RunID, &rec.Iteration, &rec.BidID, &hasPrev,
			&rec.PrevCost, &rec.PrevDirectCost, &rec.PrevWelfareCost,
			&rec.BestCost, &rec.BestDirectCost, &rec.BestBidBenefit,
			&rec.Gap, &converged, &breach, &solved, &rec.Objective,
		); err != nil {
			return nil, fmt.Errorf("storage.GetIterations: scan row: %w", err)
		}
		rec.HasPrev = hasPrev == 1
		rec.Converged = converged == 1
		rec.LowerBoundBreach = breach == 1
		rec.Solved = solved == 1
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// GetBid reconstruye una puja persistida con sus líneas ordenadas.
func (s *SQLiteStore) GetBid(ctx context.Context, runID string, bidID int) (domain.Bid, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT zone, timeseries, sector, marginal_cost, price, quantity, wtp
		FROM bids WHERE run_id = ? AND bid_id = ?
		ORDER BY zone, timeseries, sector`, runID, bidID,
	)
	if err != nil {
		return domain.Bid{}, fmt.Errorf("storage.GetBid: query: %w", err)
	}
	defer rows.Close()

	bid := domain.Bid{ID: bidID}
	for rows.Next() {
		var l domain.BidLine
		var zone, ts, sector string
		if err := rows.Scan(&zone, &ts, &sector, &l.MarginalCost, &l.Price, &l.Quantity, &l.WTP); err != nil {
			return domain.Bid{}, fmt.Errorf("storage.GetBid: scan row: %w", err)
		}
		l.Zone = domain.Zone(zone)
		l.TS = domain.TS(ts)
		l.Sector = domain.Sector(sector)
		bid.Lines = append(bid.Lines, l)
	}
	if err := rows.Err(); err != nil {
		return domain.Bid{}, err
	}
	if len(bid.Lines) == 0 {
		return domain.Bid{}, fmt.Errorf("storage.GetBid: no bid %d in run %s", bidID, runID)
	}
	return bid, nil
}

// GetWeights reconstruye el vector de pesos de una iteración.
func (s *SQLiteStore) GetWeights(ctx context.Context, runID string, iteration int) (domain.Weights, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT bid_id, zone, timeseries, sector, weight
		FROM bid_weights WHERE run_id = ? AND iteration = ?`, runID, iteration,
	)
	if err != nil {
		return nil, fmt.Errorf("storage.GetWeights: query: %w", err)
	}
	defer rows.Close()

	w := make(domain.Weights)
	for rows.Next() {
		var bid int
		var zone, ts, sector string
		var weight float64
		if err := rows.Scan(&bid, &zone, &ts, &sector, &weight); err != nil {
			return nil, fmt.Errorf("storage.GetWeights: scan row: %w", err)
		}
		w[domain.WeightKey{
			Bid: bid,
			Coord: domain.Coord{
				Zone:   domain.Zone(zone),
				TS:     domain.TS(ts),
				Sector: domain.Sector(sector),
			},
		}] = weight
	}
	return w, rows.Err()
}

// --- helpers internos ---

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
