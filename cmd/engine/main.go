// Copytrade Engine — a real-time Solana copy-trading engine that mirrors a
// curated set of leader wallets' trades through a deterministic
// gate/mode/edge/risk decision chain before submitting an order through the
// execution router.
//
// Architecture:
//
//	main.go                     — entry point: loads config, wires every
//	                               component, waits for SIGINT/SIGTERM
//	internal/ingest/feed.go     — WebSocket leader-trade feed, auto-reconnect
//	internal/snapshotstore     — cached, TTL-bounded per-mint token data
//	internal/walletstore       — per-wallet historical profile store
//	internal/gate              — ordered pass/reject gate chain (C4)
//	internal/mode              — hold-time + impulse mode selector (C5)
//	internal/edge              — edge/EV calculator + regime adjuster (C6/C7)
//	internal/idempotency       — duplicate-execution guard (C9)
//	internal/risk/manager.go   — sizing, exposure, cooldown, kill-switch
//	internal/router/client.go  — execution adapter (quote/submit/cancel/poll)
//	internal/order             — bracket order state machine
//	internal/monitor           — order manager tick loop
//	internal/partial           — partial-fill timeout handler (C11)
//	internal/reorg             — reorg guard (C12)
//	internal/reconcile         — chain/local bankroll reconciler (C13)
//	internal/panicguard        — panic sentinel (C14)
//	internal/signal/pipeline.go — per-trade decision orchestrator
//	internal/httpapi           — read-only operational query surface
//	internal/metrics           — Prometheus collectors + daily/execution aggregates
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	ossignal "os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/sonarwatch/copytrade-engine/internal/audit"
	"github.com/sonarwatch/copytrade-engine/internal/config"
	"github.com/sonarwatch/copytrade-engine/internal/gate"
	"github.com/sonarwatch/copytrade-engine/internal/httpapi"
	"github.com/sonarwatch/copytrade-engine/internal/idempotency"
	"github.com/sonarwatch/copytrade-engine/internal/ingest"
	"github.com/sonarwatch/copytrade-engine/internal/metrics"
	"github.com/sonarwatch/copytrade-engine/internal/mode"
	"github.com/sonarwatch/copytrade-engine/internal/monitor"
	"github.com/sonarwatch/copytrade-engine/internal/panicguard"
	"github.com/sonarwatch/copytrade-engine/internal/partial"
	"github.com/sonarwatch/copytrade-engine/internal/reconcile"
	"github.com/sonarwatch/copytrade-engine/internal/reject"
	"github.com/sonarwatch/copytrade-engine/internal/reorg"
	"github.com/sonarwatch/copytrade-engine/internal/risk"
	"github.com/sonarwatch/copytrade-engine/internal/router"
	signalpipeline "github.com/sonarwatch/copytrade-engine/internal/signal"
	"github.com/sonarwatch/copytrade-engine/internal/snapshotstore"
	"github.com/sonarwatch/copytrade-engine/internal/store"
	"github.com/sonarwatch/copytrade-engine/internal/walletstore"
	"github.com/sonarwatch/copytrade-engine/pkg/types"
)

const (
	exitOK        = 0
	exitRuntime   = 1
	exitBadConfig = 2

	tradeWorkers  = 4
	snapshotTTL   = 10 * time.Second
	reorgGrace    = 30 * time.Second
	reorgPoll     = 5 * time.Second
	monitorPoll   = 2 * time.Second
	gaugeInterval = 5 * time.Second
	partialWindow = 30 * time.Second
	idemPrune     = time.Minute
)

func main() {
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("COPYTRADE_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(exitBadConfig)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(exitBadConfig)
	}

	logger := newLogger(cfg.Logging)

	if err := run(*cfg, logger); err != nil {
		logger.Error("engine exited with error", "error", err)
		os.Exit(exitRuntime)
	}
	os.Exit(exitOK)
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// run wires every component and blocks until a shutdown signal arrives or
// an unrecoverable startup error occurs.
func run(cfg config.Config, logger *slog.Logger) error {
	if err := os.MkdirAll(cfg.Store.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	sentinel := panicguard.New(cfg.Panic.SentinelPath, logger)

	walletStore := walletstore.New(filepath.Join(cfg.Store.DataDir, "wallets.yaml"), logger)
	if err := walletStore.Load(); err != nil {
		logger.Warn("wallet profile store failed to load, starting empty", "error", err)
	}

	primaryProvider := snapshotstore.NewHTTPProvider("primary", cfg.Chain.RouterBaseURL, 5*time.Second)
	snapStore := snapshotstore.New(primaryProvider, nil, snapshotTTL, logger)

	gateChain := gate.New(sentinel, nil, cfg.Token)
	modeSel := mode.New(cfg.Selector)

	positions, err := store.OpenPositionStore(cfg.Store.DataDir)
	if err != nil {
		return fmt.Errorf("open position store: %w", err)
	}
	initialPortfolio, err := rehydratePortfolio(positions)
	if err != nil {
		logger.Warn("portfolio rehydration incomplete", "error", err)
	}
	riskMgr := risk.NewManager(cfg.Risk, sentinel, initialPortfolio, logger)

	idem := idempotency.New(time.Minute, logger)

	auditLog, err := audit.Open(filepath.Join(cfg.Store.DataDir, "audit.jsonl"), cfg.Reconciler.AuditLogMaxEntries)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}

	routerCli := router.NewClient(cfg.Chain.RouterBaseURL, cfg.DryRun, logger)
	reorgGuard := reorg.New(router.NewReorgChecker(routerCli), auditLog, reorgGrace)
	partials := partial.New(partialWindow, auditLog)

	signalsLog, err := store.OpenJSONLWriter(filepath.Join(cfg.Store.DataDir, "signals.jsonl"))
	if err != nil {
		return fmt.Errorf("open signals log: %w", err)
	}
	defer signalsLog.Close()

	aggregates, err := metrics.OpenAggregateWriter(
		filepath.Join(cfg.Store.DataDir, "daily_metrics.jsonl"),
		filepath.Join(cfg.Store.DataDir, "execution_metrics.jsonl"),
	)
	if err != nil {
		return fmt.Errorf("open metrics aggregate writer: %w", err)
	}
	defer aggregates.Close()

	posMonitor := monitor.New(positions, routerCli, partials, riskMgr, gateChain, auditLog, monitorPoll, logger)

	pipeline := signalpipeline.New(cfg, signalpipeline.Deps{
		Snapshots:  snapStore,
		Wallets:    walletStore,
		Gates:      gateChain,
		ModeSel:    modeSel,
		RiskMgr:    riskMgr,
		Idem:       idem,
		ReorgGuard: reorgGuard,
		Partials:   partials,
		Positions:  positions,
		Router:     routerCli,
		SignalsLog: signalsLog,
		Monitor:    posMonitor,
	}, logger)

	var reconciler *reconcile.Reconciler
	if cfg.Reconciler.Enabled {
		reconciler = reconcile.New(cfg.Reconciler, cfg.Chain.WalletAddress, routerCli, riskMgr, auditLog, logger)
	}

	feed := ingest.New(cfg.Chain.IngestWSURL, "primary", logger)

	var regimeFeed *ingest.RegimeFeed
	if cfg.Regime.Source != "" {
		regimeFeed = ingest.NewRegimeFeed(cfg.Regime.Source, logger)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	startBackgroundLoops(ctx, &wg, logger, feed, regimeFeed, pipeline, posMonitor, reorgGuard, reconciler, riskMgr, sentinel, idem)

	var httpSrv *http.Server
	if cfg.HTTP.Enabled {
		addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
		httpSrv = &http.Server{Addr: addr, Handler: httpapi.NewRouter(riskMgr, pipeline, sentinel)}
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Info("http api listening", "addr", addr)
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http api failed", "error", err)
			}
		}()
	}

	logger.Info("copytrade engine started",
		"dry_run", cfg.DryRun,
		"wallet", cfg.Chain.WalletAddress,
		"default_mode", cfg.Selector.DefaultMode,
	)

	sigCh := make(chan os.Signal, 1)
	ossignal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	cancel()
	if httpSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http api shutdown failed", "error", err)
		}
	}
	wg.Wait()

	return nil
}

// rehydratePortfolio reconstructs the risk engine's starting open-position
// count and per-token exposure from positions left open on disk by a prior
// run. Positions carry no wallet tier, so tier counts start empty; equity
// and day_pnl are not recoverable from position files alone and start at zero;
// the reconciler's first tick reconciles bankroll against chain truth.
func rehydratePortfolio(positions *store.PositionStore) (types.PortfolioState, error) {
	state := types.PortfolioState{
		ExposureByToken:    make(map[string]float64),
		ActiveCountsByTier: make(map[types.WalletTier]int),
	}

	signalIDs, err := positions.ListOpen()
	if err != nil {
		return state, err
	}

	for _, signalID := range signalIDs {
		pos, err := positions.Load(signalID)
		if err != nil || pos == nil || pos.Status == types.StatusClosed {
			continue
		}
		sizeUSD, _ := pos.SizeQuote.Float64()
		state.OpenPositions++
		state.ExposureByToken[pos.Mint] += sizeUSD
	}

	return state, nil
}

// startBackgroundLoops launches every goroutine the engine needs besides
// the HTTP server and the main signal-wait: trade ingestion workers, the
// regime timeline feed, the position monitor, the reorg guard poller, the
// reconciler, and the Prometheus gauge refresher. Each stops when ctx is
// cancelled.
func startBackgroundLoops(
	ctx context.Context,
	wg *sync.WaitGroup,
	logger *slog.Logger,
	feed *ingest.Feed,
	regimeFeed *ingest.RegimeFeed,
	pipeline *signalpipeline.Pipeline,
	posMonitor *monitor.Monitor,
	reorgGuard *reorg.Guard,
	reconciler *reconcile.Reconciler,
	riskMgr *risk.Manager,
	sentinel *panicguard.Sentinel,
	idem *idempotency.Table,
) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := feed.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("ingest feed stopped", "error", err)
		}
	}()

	if regimeFeed != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := regimeFeed.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("regime feed stopped", "error", err)
			}
		}()

		wg.Add(1)
		go func() {
			defer wg.Done()
			runRegimeApplyLoop(ctx, regimeFeed, pipeline)
		}()
	}

	for i := 0; i < tradeWorkers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case trade, ok := <-feed.Events():
					if !ok {
						return
					}
					record := pipeline.ProcessTrade(ctx, trade)
					metrics.RecordSignal(record.Decision, record.RejectReason)
				}
			}
		}(i)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := posMonitor.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("position monitor stopped", "error", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		runReorgPollLoop(ctx, reorgGuard, posMonitor, logger)
	}()

	if reconciler != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reconciler.Run(ctx)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		runGaugeLoop(ctx, riskMgr, sentinel)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		runIdempotencyPruneLoop(ctx, idem)
	}()
}

// runIdempotencyPruneLoop periodically drops released/expired idempotency
// entries so the table doesn't grow unbounded for the life of the process.
func runIdempotencyPruneLoop(ctx context.Context, idem *idempotency.Table) {
	ticker := time.NewTicker(idemPrune)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			idem.Prune(time.Now())
		}
	}
}

// runRegimeApplyLoop forwards every sample the regime feed publishes into
// the pipeline's edge adjuster, so internal/edge's regime term (C7) tracks
// the externally supplied risk-regime timeline instead of staying at zero.
func runRegimeApplyLoop(ctx context.Context, regimeFeed *ingest.RegimeFeed, pipeline *signalpipeline.Pipeline) {
	for {
		select {
		case <-ctx.Done():
			return
		case sample, ok := <-regimeFeed.Samples():
			if !ok {
				return
			}
			pipeline.SetRegime(sample.Regime)
		}
	}
}

// runReorgPollLoop polls the reorg guard on an interval, surfacing any
// terminal DROPPED/REORGED outcomes to the logs and metrics. A REORGED
// outcome also reverts the position's local effects: posMonitor force-
// closes it at entry price and releases its exposure/tier counters,
// rather than leaving the stale fill sitting open against a transaction
// that never actually landed (spec.md §4.11 scenario 6).
func runReorgPollLoop(ctx context.Context, guard *reorg.Guard, posMonitor *monitor.Monitor, logger *slog.Logger) {
	ticker := time.NewTicker(reorgPoll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			outcomes, err := guard.Poll(ctx, time.Now())
			if err != nil {
				logger.Error("reorg poll failed", "error", err)
				continue
			}
			for _, outcome := range outcomes {
				if outcome.Reason == reject.TxReorged {
					metrics.ReorgRollbacksTotal.Inc()
					posMonitor.ForceCloseReorged(outcome.Submission.SignalID, time.Now())
				}
				logger.Info("reorg guard outcome",
					"signal_id", outcome.Submission.SignalID,
					"tx_hash", outcome.Submission.TxHash,
					"status", outcome.Status,
					"reason", outcome.Reason,
				)
			}
		}
	}
}

// runGaugeLoop refreshes the Prometheus portfolio gauges and panic-active
// gauge on an interval, independent of the trade-driven counters.
func runGaugeLoop(ctx context.Context, riskMgr *risk.Manager, sentinel *panicguard.Sentinel) {
	ticker := time.NewTicker(gaugeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snapshot := riskMgr.Snapshot()
			metrics.SetPortfolioGauges(snapshot.OpenPositions, snapshot.Equity, snapshot.DayPnL, snapshot.ExposureByToken)
			metrics.SetPanicActive(sentinel.IsActive())
		}
	}
}
