package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"optioncore/internal/api"
	"optioncore/internal/barpipeline"
	"optioncore/internal/config"
	"optioncore/internal/db"
	"optioncore/internal/events"
	"optioncore/internal/gateway"
	"optioncore/internal/hedging"
	"optioncore/internal/indicator"
	"optioncore/internal/instrument"
	"optioncore/internal/monitor"
	"optioncore/internal/order"
	"optioncore/internal/persistence"
	"optioncore/internal/position"
	"optioncore/internal/risk"
	"optioncore/internal/rpcbridge"
	"optioncore/internal/selector"
	signalsvc "optioncore/internal/signal"
	"optioncore/internal/sizing"
	"optioncore/internal/strategy"
	"optioncore/internal/supervisor"
	"optioncore/internal/vault"
	"optioncore/pkg/crypto"
	"optioncore/pkg/i18n"
	"optioncore/pkg/license"
)

// setupLogging sends log output to both stdout and a size/age-rotated file
// under cfg.LogDir, so a long-running worker or daemon never fills the
// disk with one unbounded log.
func setupLogging(cfg *config.Config) {
	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.LogDir, cfg.LogName),
		MaxSize:    100,
		MaxBackups: 7,
		MaxAge:     30,
		Compress:   true,
	}
	log.SetOutput(io.MultiWriter(os.Stdout, rotator))
	log.SetFlags(log.LstdFlags)
}

func main() {
	mode := flag.String("mode", "standalone", "process mode: standalone, daemon, or worker")
	flag.Parse()

	switch *mode {
	case "daemon":
		if err := runDaemon(); err != nil {
			log.Fatalf("daemon exited with error: %v", err)
		}
	case "worker", "standalone":
		if err := runWorker(); err != nil {
			log.Fatalf("worker exited with error: %v", err)
		}
	default:
		log.Fatalf("unknown -mode %q (want standalone, daemon, or worker)", *mode)
	}
}

// runDaemon is the supervisor (C20): it re-invokes this same binary with
// -mode=worker as a child process and restarts it on crash.
func runDaemon() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf(i18n.Get("ConfigLoadFailed"), err)
	}

	setupLogging(cfg)

	exePath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve own executable path: %w", err)
	}

	logger := log.New(log.Writer(), "[supervisor] ", log.LstdFlags)
	sup := supervisor.New(exePath, []string{"-mode=worker"}, cfg.RestartPolicy, cfg.TradingPeriods, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)
	go func() {
		for sig := range sigCh {
			switch sig {
			case syscall.SIGHUP:
				sup.RequestReload()
			default:
				sup.RequestShutdown()
			}
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	return sup.Run(ctx)
}

// runWorker is the worker process (C21): it wires every domain component
// and drives the strategy engine's per-bar event loop. Market-data and
// order wire-protocol I/O against the broker are out of scope per
// SPEC_FULL §1 (external collaborator); the market feed adapter that
// would call gateway.MarketDataSnapshot's Update* methods and
// pipeline.HandleTick is the seam where that integration plugs in.
func runWorker() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf(i18n.Get("ConfigLoadFailed"), err)
	}
	setupLogging(cfg)

	log.Println(i18n.Get("Starting"))
	log.Printf(i18n.Get("UsingDBPath"), cfg.DBPath)

	dbCfg, err := db.LoadConfigFromEnv()
	if err != nil {
		return fmt.Errorf(i18n.Get("ConfigLoadFailed"), err)
	}

	database, err := db.Open(cfg.DBPath, dbCfg)
	if err != nil {
		return fmt.Errorf(i18n.Get("DBInitFailed"), err)
	}
	defer database.Close()

	if err := db.ApplyMigrations(database); err != nil {
		return fmt.Errorf(i18n.Get("DBMigrationsFailed"), err)
	}

	// C26: encrypt broker credentials at rest. The key manager binds
	// version 1 to this machine's id as well as VAULT_PASSPHRASE, so a
	// copied database file can't be decrypted on another host even by
	// someone who knows the passphrase. The
	// gateway wire-protocol client that would read these back via
	// credVault.Load at connect time is out of scope per SPEC_FULL §1; this
	// call demonstrates the encrypt-at-rest round trip the vault exists for.
	keyMgr, err := crypto.NewMachineBoundKeyManager(cfg.VaultPassphrase)
	if err != nil {
		return fmt.Errorf("init credential vault key manager: %w", err)
	}
	credVault := vault.New(database.DB, keyMgr)
	if cfg.Broker.UserID != "" {
		if err := credVault.Store("primary", "CTP", cfg.Broker.UserID, cfg.Broker.Password, time.Now()); err != nil {
			log.Printf("store broker credentials in vault: %v", err)
		}
	}

	stateRepo := persistence.NewStateRepository(database.DB)
	bus := events.NewDomainBus()
	instruments := instrument.NewAggregate()
	positions := position.NewAggregate(bus)

	now := time.Now()
	switch snap, loadErr := stateRepo.Load(cfg.Strategy.StrategyName); {
	case errors.Is(loadErr, persistence.ErrArchiveNotFound):
		log.Printf("no prior snapshot for %q, starting with empty state", cfg.Strategy.StrategyName)
	case loadErr != nil:
		return fmt.Errorf(i18n.Get("StateLoadFailed"), loadErr)
	default:
		persistence.ApplySnapshot(snap, instruments, positions)
		log.Printf("restored snapshot for %q saved at %s", cfg.Strategy.StrategyName, time.Time(snap.SavedAt).Format(time.RFC3339))
	}

	autoSave := persistence.NewAutoSaveService(stateRepo, cfg.Strategy.StrategyName, cfg.Strategy.AutoSaveInterval, now, func() persistence.Snapshot {
		return persistence.BuildSnapshot(instruments, positions, time.Now())
	})

	indicatorSvc, signalSvc, closer := buildPluggableServices(cfg)
	if closer != nil {
		defer closer()
	}

	futureSel := selector.NewFutureSelector()
	optionSel := selector.NewOptionSelector()
	sizer := sizing.NewService()
	riskAgg := risk.NewAggregator(cfg.Strategy.RiskThresholds, bus)
	executor := order.NewExecutor(order.DefaultExecutionConfig())

	var scheduler *order.Scheduler
	if cfg.Strategy.UseScheduler {
		scheduler = order.NewScheduler(time.Now().UnixNano())
	}

	var deltaEngine *hedging.DeltaEngine
	var gammaEngine *hedging.GammaEngine
	if cfg.Strategy.HedgeInstrumentVtSymbol != "" {
		deltaCfg := hedging.DefaultDeltaConfig()
		deltaCfg.HedgeInstrumentVtSymbol = cfg.Strategy.HedgeInstrumentVtSymbol
		deltaEngine = hedging.NewDeltaEngine(deltaCfg)

		gammaCfg := hedging.DefaultGammaScalpConfig()
		gammaCfg.HedgeInstrumentVtSymbol = cfg.Strategy.HedgeInstrumentVtSymbol
		gammaEngine = hedging.NewGammaEngine(gammaCfg)
	}

	snapshot := gateway.NewMarketDataSnapshot()
	market := gateway.NewCTPGateway(snapshot, nil, nil, nil) // paper mode: no broker client wired yet

	engine := strategy.NewEngine(
		strategy.Config{
			Products:                cfg.Strategy.Products,
			RolloverTime:            cfg.Strategy.RolloverTime,
			RiskThresholds:          cfg.Strategy.RiskThresholds,
			HedgeInstrumentVtSymbol: cfg.Strategy.HedgeInstrumentVtSymbol,
			UseScheduler:            cfg.Strategy.UseScheduler,
			SchedulerBatchSize:      cfg.Strategy.SchedulerBatchSize,
			LiquidityMinVolume:      cfg.Strategy.LiquidityMinVolume,
			LiquidityMinBidVolume:   cfg.Strategy.LiquidityMinBidVolume,
			LiquidityMaxSpreadTicks: cfg.Strategy.LiquidityMaxSpreadTicks,

			CountManualOpensTowardDailyCap: cfg.Strategy.CountManualOpensTowardDailyCap,
		},
		instruments, positions,
		indicatorSvc, signalSvc,
		futureSel, optionSel,
		sizer, riskAgg,
		executor, scheduler,
		deltaEngine, gammaEngine,
		market, bus, autoSave,
	)

	// C24: drain domain events into the monitor tables and periodically
	// summarize live state for the dashboard. The instance id scopes rows
	// when multiple strategy instances share one database; this process
	// runs exactly one, so a fixed id is sufficient.
	monitorCtx, monitorCancel := context.WithCancel(context.Background())
	defer monitorCancel()

	monitorMetrics := monitor.NewMetrics(monitor.DefaultConfig())
	monitorRepo := monitor.NewRepository(database.DB)
	monitorRepo.EnableEventBatching(cfg.MonitorEventBatchSize, cfg.MonitorEventFlushInterval)
	defer monitorRepo.Close()
	pushBus := events.NewBus()

	snapshotWriter := monitor.NewSnapshotWriter(monitorRepo, monitorMetrics, cfg.Strategy.StrategyName, "primary", monitor.StateSource{
		Instruments:       instruments,
		Positions:         positions,
		Scheduler:         scheduler,
		PortfolioGreeksFn: engine.PortfolioGreeks,
	})
	snapshotWriter.Start(monitorCtx, bus, 10*time.Second)

	alertRouter := &monitor.AlertRouter{PushBus: pushBus}
	alertRouter.Start(monitorCtx, bus)

	// C25: the read-only/override HTTP facade. It runs on its own
	// goroutine and never blocks the event loop; a bind failure is logged
	// but does not abort the worker, since the facade is out-of-core.
	licenseMgr := license.NewManager(cfg.LicenseSecret)
	apiServer := api.NewServer(monitorRepo, monitorMetrics, pushBus, engine, "primary", cfg.JWTSecret, licenseMgr)
	go func() {
		addr := ":" + cfg.HTTPPort
		log.Printf("operational HTTP facade listening on %s", addr)
		if err := apiServer.Start(addr); err != nil {
			log.Printf("operational HTTP facade stopped: %v", err)
		}
	}()

	// Tracked vt_symbols are resolved at runtime by the rollover check
	// (active contracts change as futures expire), so the pipeline starts
	// with an empty explicit Track set and follows symbols implicitly as
	// the market feed reports them.
	pipeline := barpipeline.New(1, func(bars map[string]barpipeline.Bar) {
		for _, e := range engine.ProcessWindow(time.Now(), bars) {
			log.Printf("domain event: %s", e.EventName())
		}
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	log.Println("worker ready, entering event loop")
	for {
		select {
		case <-sigCh:
			log.Println(i18n.Get("ShuttingDown"))
			if err := autoSave.ForceSave(time.Now()); err != nil {
				log.Printf("final save failed: %v", err)
			} else {
				log.Println(i18n.Get("StrategySaveComplete"))
			}
			pipeline.Flush()
			return nil
		case t := <-ticker.C:
			engine.CheckOrderTimeouts(t)
		}
	}
}

// buildPluggableServices wires the default in-process MACD indicator and
// signal services, or delegates to an out-of-process worker over the gRPC
// bridge when ENABLE_PYTHON_WORKER is set, per SPEC_FULL §1.2/§9's
// "pluggable services" design note. The returned closer is nil unless a
// bridge connection was opened.
func buildPluggableServices(cfg *config.Config) (indicator.Service, signalsvc.Service, func()) {
	if !cfg.EnablePythonWorker {
		return indicator.DefaultMACDService(), signalsvc.DefaultMACDSignalService(), nil
	}

	client, err := rpcbridge.Dial(cfg.PythonWorkerAddr)
	if err != nil {
		log.Printf(i18n.Get("PythonWorkerInitFailed"), err)
		return indicator.DefaultMACDService(), signalsvc.DefaultMACDSignalService(), nil
	}
	log.Printf(i18n.Get("PythonWorkerEnabled"), cfg.PythonWorkerAddr)
	return indicator.NewGRPCService(client), signalsvc.NewGRPCService(client), func() { client.Close() }
}
