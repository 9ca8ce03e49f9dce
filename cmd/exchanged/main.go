// Command exchanged runs the exchange core as a single process: the
// Matching Engine, Risk Engine, Order Manager, Instrument Generator,
// and Market Data Aggregator wired together over one persistence
// backend, with the reconciliation sweep and generation cycle running
// as background loops (spec.md §4).
package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/dbos-inc/dbos-transact-golang/dbos"
	"github.com/shopspring/decimal"

	"optionscore/internal/bootstrap"
	"optionscore/internal/config"
	"optionscore/internal/core"
	"optionscore/internal/instrument"
	"optionscore/internal/marketdata"
	"optionscore/internal/matching"
	"optionscore/internal/oms"
	"optionscore/internal/risk"
	"optionscore/internal/store"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the process configuration file")
	flag.Parse()

	app, err := bootstrap.NewApp(*configPath)
	if err != nil {
		fmt.Println("bootstrap failed:", err)
		panic(err)
	}

	runner, err := newExchange(app.Cfg, app.Logger)
	if err != nil {
		app.Logger.Fatal("exchange assembly failed", "error", err)
	}

	if err := app.Run(runner); err != nil {
		app.Logger.Fatal("exchange exited with error", "error", err)
	}
}

// exchange bundles the assembled core components and drives their
// background loops (reconciliation, instrument generation).
type exchange struct {
	cfg         *config.Config
	logger      core.ILogger
	oms         oms.OrderService
	omsEngine   *oms.Engine
	reconciler  *oms.Reconciler
	generator   *instrument.Generator
	prices      *marketdata.Cache
	assets      []instrument.AssetConfig
	environment core.Environment
	dispatcher  *matching.Dispatcher
}

// newExchange constructs every engine from cfg. The matching engine,
// risk engine, and order store all live in this one process
// (spec.md §5's single-owner-per-instrument model assumes no
// cross-process sharding of engine state).
func newExchange(cfg *config.Config, logger core.ILogger) (*exchange, error) {
	orderStore, instrumentStore, err := newStores(cfg)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}

	prices := marketdata.NewCache()
	resolver := risk.NewStoreResolver(instrumentStore)
	riskEngine := risk.NewEngine(cfg.RiskEngine, resolver, prices)
	rawEngine := matching.NewEngine(cfg.MatchingEngine, nil)
	matchingEngine := matching.NewDispatcher(rawEngine, cfg.Concurrency.MatchingPoolSize, cfg.Concurrency.MatchingPoolBuffer, logger)

	mgr := oms.NewManager(orderStore, instrumentStore, riskEngine, matchingEngine, cfg.OMS)

	omsService, omsEngine, err := newOMSService(cfg, mgr, logger)
	if err != nil {
		return nil, fmt.Errorf("oms engine: %w", err)
	}

	env := core.Environment(cfg.App.Environment)
	// The reconciliation sweep always drives mgr directly rather than
	// omsService: it repairs store state left behind by a crash
	// between durable steps, so it operates beneath the workflow
	// layer instead of through it (spec.md §4.8).
	reconciler := oms.NewReconciler(mgr, []core.Environment{env}, logger,
		cfg.OMS.ReconcileIntervalSeconds, cfg.OMS.PendingRiskTimeoutSeconds, cfg.OMS.MEConfirmTimeoutSeconds)

	generator := instrument.NewGenerator(instrumentStore, instrumentStore)
	assets := assetCatalog(cfg.Instrument.Generation)

	return &exchange{
		cfg:         cfg,
		logger:      logger,
		oms:         omsService,
		omsEngine:   omsEngine,
		reconciler:  reconciler,
		generator:   generator,
		prices:      prices,
		assets:      assets,
		environment: env,
		dispatcher:  matchingEngine,
	}, nil
}

// newOMSService builds the OMS's public surface per app.engine_type.
// "memory" and "sqlite" hand back mgr directly. "dbos" wraps mgr in a
// durable oms.Engine backed by a freshly constructed dbos.DBOSContext
// pointed at database_url, registering the submit/cancel workflows
// before anything can call into them — this is what makes "durable
// record before any side effects, crash resumes from the last
// completed step" (spec.md §4.2) concrete rather than decorative. The
// second return value is non-nil only for "dbos", so Run can start/stop
// the DBOS runtime alongside the other background loops.
func newOMSService(cfg *config.Config, mgr *oms.Manager, logger core.ILogger) (oms.OrderService, *oms.Engine, error) {
	if cfg.App.EngineType != "dbos" {
		return mgr, nil, nil
	}

	dbosCtx, err := dbos.NewDBOSContext(dbos.Config{
		AppName:     "optionscore-oms",
		DatabaseURL: cfg.App.DatabaseURL,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("dbos context: %w", err)
	}

	workflows := oms.NewWorkflows(mgr)
	dbos.RegisterWorkflow(dbosCtx, workflows.SubmitOrder)
	dbos.RegisterWorkflow(dbosCtx, workflows.CancelOrder)

	engine := oms.NewEngine(dbosCtx, workflows, mgr, logger)
	return engine, engine, nil
}

// newStores selects the persistence backend per app.engine_type.
// "dbos" reuses the same relational store as "sqlite" for order/fill/
// instrument persistence — the DBOS runtime itself owns the separate
// system database (database_url) that records workflow/step progress;
// see newOMSService for where engine_type "dbos" gets its durable
// workflow wrapper.
func newStores(cfg *config.Config) (core.OrderStore, core.InstrumentStore, error) {
	switch cfg.App.EngineType {
	case "memory":
		s := store.NewMemoryStore()
		return s, s, nil
	case "sqlite", "dbos":
		s, err := store.NewSQLiteStore(cfg.App.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	default:
		return nil, nil, fmt.Errorf("unknown engine_type %q", cfg.App.EngineType)
	}
}

// assetCatalog fills in the per-asset contract metadata the
// instrument generator needs beyond its strike-grid tuning (spec.md
// §6.4's generation surface has no field for contract size, tick
// size, or settlement currency — those are instrument-definition
// constants, not generation knobs, so they're fixed here per asset).
func assetCatalog(gen config.GenerationConfig) []instrument.AssetConfig {
	assets := make([]instrument.AssetConfig, 0, len(gen.Assets))
	for _, grid := range gen.Assets {
		assets = append(assets, instrument.AssetConfig{
			Grid:               grid,
			ContractSize:       decimal.NewFromInt(1),
			TickSize:           decimal.NewFromFloat(0.0001),
			PriceDecimals:      4,
			MinOrderSize:       decimal.NewFromFloat(0.01),
			SettlementCurrency: "USDC",
		})
	}
	return assets
}

// Run drives the background loops until ctx is cancelled: the
// reconciliation sweep (spec.md §4.8) and, once per cycle, the
// instrument generator for every configured asset (spec.md §4.5).
func (e *exchange) Run(ctx context.Context) error {
	if e.omsEngine != nil {
		if err := e.omsEngine.Start(ctx); err != nil {
			return fmt.Errorf("oms engine: %w", err)
		}
		defer e.omsEngine.Stop(ctx)
	}

	if err := e.reconciler.Start(ctx); err != nil {
		return fmt.Errorf("reconciler: %w", err)
	}
	defer e.reconciler.Stop()
	defer e.dispatcher.Stop()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	e.logger.Info("exchange core running", "environment", string(e.environment), "assets", len(e.assets))

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			e.runGenerationCycle(ctx)
		}
	}
}

func (e *exchange) runGenerationCycle(ctx context.Context) {
	now := time.Now()
	for _, asset := range e.assets {
		spot, ok := e.prices.IndexPrice(asset.Grid.Asset)
		if !ok {
			continue
		}
		if err := e.generator.RunCycle(ctx, e.environment, asset, spot, e.cfg.Instrument.ExpirySchedule, now); err != nil {
			e.logger.Error("instrument generation cycle failed", "asset", asset.Grid.Asset, "error", err)
		}
	}
}
