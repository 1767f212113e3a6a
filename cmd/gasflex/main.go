package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alejandrodnm/gasflex/config"
	"github.com/alejandrodnm/gasflex/internal/adapters/demand"
	"github.com/alejandrodnm/gasflex/internal/adapters/notify"
	"github.com/alejandrodnm/gasflex/internal/adapters/oracle"
	"github.com/alejandrodnm/gasflex/internal/adapters/storage"
	"github.com/alejandrodnm/gasflex/internal/domain"
	"github.com/alejandrodnm/gasflex/internal/engine"
	"github.com/alejandrodnm/gasflex/internal/market"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	scenarioPath := flag.String("scenario", "", "path to scenario file (overrides config)")
	flatPricing := flag.Bool("flat-pricing", false, "force flat RC pricing per (zone, period)")
	maxIterations := flag.Int("max-iterations", -1, "cap iterations, 0 = unbounded (overrides config)")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	table := flag.Bool("table", false, "print the accepted bid table on every iteration")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *scenarioPath != "" {
		cfg.Scenario = *scenarioPath
	}
	if *flatPricing {
		cfg.Engine.FlatPricing = true
	}
	if *maxIterations >= 0 {
		cfg.Engine.MaxIterations = *maxIterations
	}
	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	slog.Info("gasflex starting",
		"config", *configPath,
		"scenario", cfg.Scenario,
		"demand_module", cfg.Engine.DemandModule,
		"flat_pricing", cfg.Engine.FlatPricing,
		"tolerance", cfg.Engine.Tolerance,
		"max_iterations", cfg.Engine.MaxIterations,
	)

	scn, err := config.LoadScenario(cfg.Scenario)
	if err != nil {
		slog.Error("failed to load scenario", "err", err, "path", cfg.Scenario)
		os.Exit(1)
	}

	grid, err := scn.Grid()
	if err != nil {
		slog.Error("failed to build market grid", "err", err)
		os.Exit(1)
	}

	model, err := market.NewModel(grid, scn.BaseObservations(grid), cfg.Engine.FlatPricing)
	if err != nil {
		slog.Error("failed to build market model", "err", err)
		os.Exit(1)
	}

	if inj := scn.MustRunInjections(); len(inj) > 0 {
		mustRun := &market.ConstantInjection{
			ContributorName: market.ContribMustRunSupply,
			Quantities:      inj,
		}
		if err := model.RegisterInjection(mustRun); err != nil {
			slog.Error("failed to register must-run supply", "err", err)
			os.Exit(1)
		}
	}

	demandSys, err := demand.New(cfg.Engine.DemandModule, demand.Config{
		Elasticity: cfg.Engine.Elasticities(),
		Logger:     slog.Default(),
	})
	if err != nil {
		slog.Error("failed to build demand system", "err", err)
		os.Exit(1)
	}

	dispatcher, err := oracle.NewMerit(supplyCurves(scn), slog.Default())
	if err != nil {
		slog.Error("failed to build dispatch oracle", "err", err)
		os.Exit(1)
	}

	store, err := storage.NewSQLiteStore(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	notifier := notify.NewConsole(*table)

	eng, err := engine.New(engine.Config{
		DemandModule:     cfg.Engine.DemandModule,
		MaxIterations:    cfg.Engine.MaxIterations,
		Tolerance:        cfg.Engine.Tolerance,
		StrictLowerBound: cfg.Engine.StrictLowerBound,
	}, model, scn.Tariff(), demandSys, dispatcher, store, notifier, slog.Default())
	if err != nil {
		slog.Error("failed to assemble engine", "err", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	res, err := eng.Run(ctx)
	if err != nil {
		slog.Error("run exited with error", "err", err, "run_id", res.RunID, "iterations", res.Iterations)
		os.Exit(1)
	}

	slog.Info("gasflex finished",
		"run_id", res.RunID,
		"state", res.State,
		"converged", res.Converged,
		"iterations", res.Iterations,
		"gap", res.Gap,
		"anomalies", len(res.Anomalies),
	)
}

// supplyCurves convierte la curva de oferta del escenario al tipo del despachador.
func supplyCurves(s *config.Scenario) map[domain.Zone][]oracle.SupplyBlock {
	out := make(map[domain.Zone][]oracle.SupplyBlock, len(s.Zones))
	for z, blocks := range s.SupplyBlocks() {
		curve := make([]oracle.SupplyBlock, len(blocks))
		for i, b := range blocks {
			curve[i] = oracle.SupplyBlock{Capacity: b.Capacity, Cost: b.Cost}
		}
		out[z] = curve
	}
	return out
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
