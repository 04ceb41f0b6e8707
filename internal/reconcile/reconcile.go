// Package reconcile implements the state reconciler (C13): on a ticker, it
// compares on-chain wallet balance against the local bankroll view and
// applies a banded response — no-op, INFO, WARNING, or CRITICAL — per
// spec.md §4.12. dry_run records the comparison without mutating local
// state.
package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/sonarwatch/copytrade-engine/internal/audit"
	"github.com/sonarwatch/copytrade-engine/internal/config"
)

// BalanceReader is the narrow chain collaborator the reconciler polls for
// ground truth. A concrete implementation wraps the RPC client.
type BalanceReader interface {
	BalanceLamports(ctx context.Context, wallet string) (int64, error)
}

// LocalBankroll is the authoritative local view of the wallet's bankroll,
// owned by the risk engine's portfolio state.
type LocalBankroll interface {
	BankrollLamports() int64
	SetBankrollLamports(int64)
}

// Reconciler runs the periodic balance comparison.
type Reconciler struct {
	cfg    config.ReconcilerConfig
	wallet string
	chain  BalanceReader
	local  LocalBankroll
	log    *audit.Log
	logger *slog.Logger
}

// New creates a reconciler.
func New(cfg config.ReconcilerConfig, wallet string, chain BalanceReader, local LocalBankroll, log *audit.Log, logger *slog.Logger) *Reconciler {
	return &Reconciler{cfg: cfg, wallet: wallet, chain: chain, local: local, log: log, logger: logger.With("component", "reconciler")}
}

// Run ticks every cfg.Interval() until ctx is cancelled, calling Tick each
// time. Errors from a single Tick are logged, not fatal — a failed RPC
// call is retried on the next tick.
func (r *Reconciler) Run(ctx context.Context) {
	if !r.cfg.Enabled {
		return
	}

	ticker := time.NewTicker(r.cfg.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if err := r.Tick(ctx, now); err != nil {
				r.logger.Warn("reconcile tick failed", "error", err)
			}
		}
	}
}

// Tick performs one balance comparison and applies the appropriate banded
// response. now is passed explicitly so tests control time.
func (r *Reconciler) Tick(ctx context.Context, now time.Time) error {
	onChain, err := r.chain.BalanceLamports(ctx, r.wallet)
	if err != nil {
		return err
	}

	local := r.local.BankrollLamports()
	delta := onChain - local
	absDelta := delta
	if absDelta < 0 {
		absDelta = -absDelta
	}

	severity, applyAdjustment := r.classify(absDelta)
	if !applyAdjustment {
		return nil
	}

	if !r.cfg.DryRun {
		r.local.SetBankrollLamports(onChain)
	}

	if r.log != nil {
		r.log.Append(audit.Entry{
			Timestamp: now,
			Reason:    "bankroll_reconciled",
			Severity:  severity,
			Before:    float64(local),
			After:     float64(onChain),
		})
	}

	r.logger.Warn("bankroll delta reconciled", "severity", severity, "delta_lamports", delta, "dry_run", r.cfg.DryRun)
	return nil
}

// classify buckets an absolute delta into a severity per spec.md §4.12's
// four bands. The no-op band returns applyAdjustment=false.
func (r *Reconciler) classify(absDelta int64) (audit.Severity, bool) {
	switch {
	case absDelta <= r.cfg.MaxDeltaWithoutAlertLamports:
		return "", false
	case absDelta <= r.cfg.WarningThresholdLamports:
		return audit.SeverityInfo, true
	case absDelta <= r.cfg.CriticalThresholdLamports:
		return audit.SeverityWarning, true
	default:
		return audit.SeverityCritical, true
	}
}
