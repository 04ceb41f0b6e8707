// Package monitor implements the order manager's tick loop (C10): on an
// interval, it re-quotes every open position's mint from the router, feeds
// the observed price through order.Tick, persists the transition, and
// retires closed positions from the risk engine's exposure and tier
// counters. It also drives the partial-fill handler's timeout scan (C11)
// with the same observed prices.
package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sonarwatch/copytrade-engine/internal/audit"
	"github.com/sonarwatch/copytrade-engine/internal/metrics"
	"github.com/sonarwatch/copytrade-engine/internal/order"
	"github.com/sonarwatch/copytrade-engine/internal/partial"
	"github.com/sonarwatch/copytrade-engine/internal/risk"
	"github.com/sonarwatch/copytrade-engine/internal/router"
	"github.com/sonarwatch/copytrade-engine/internal/store"
	"github.com/sonarwatch/copytrade-engine/pkg/types"
)

type positionMeta struct {
	tier    types.WalletTier
	sizeUSD float64
}

// probeMarker is the slice of internal/gate.Chain the monitor needs: lifting
// the probe-trade size cap once a mint's probe trade proves out. Defined
// here, rather than importing internal/gate directly, to keep the monitor
// decoupled from the gate chain's concrete type.
type probeMarker interface {
	MarkProbePassed(mint string)
}

// Monitor periodically re-prices every open position and advances its
// bracket state machine.
type Monitor struct {
	positions *store.PositionStore
	routerCli *router.Client
	partials  *partial.Handler
	riskMgr   *risk.Manager
	gates     probeMarker
	log       *audit.Log
	logger    *slog.Logger
	interval  time.Duration

	mu   sync.Mutex
	meta map[string]positionMeta
}

// New builds a position monitor. log may be nil to skip audit recording;
// gates may be nil to skip probe-cap lifting (e.g. in tests that don't
// configure a probe gate).
func New(positions *store.PositionStore, routerCli *router.Client, partials *partial.Handler, riskMgr *risk.Manager, gates probeMarker, log *audit.Log, interval time.Duration, logger *slog.Logger) *Monitor {
	return &Monitor{
		positions: positions,
		routerCli: routerCli,
		partials:  partials,
		riskMgr:   riskMgr,
		gates:     gates,
		log:       log,
		logger:    logger.With("component", "monitor"),
		interval:  interval,
		meta:      make(map[string]positionMeta),
	}
}

// Register records the wallet tier and entry size a later close needs to
// retire from the risk engine's exposure counters. The pipeline calls this
// once, right after a successful submission.
func (m *Monitor) Register(signalID string, tier types.WalletTier, sizeUSD float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.meta[signalID] = positionMeta{tier: tier, sizeUSD: sizeUSD}
}

// Run ticks every interval until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.Tick(ctx, time.Now())
		}
	}
}

// Tick runs one pass over every open position. Exported so tests can drive
// it deterministically without a running ticker.
func (m *Monitor) Tick(ctx context.Context, now time.Time) {
	signalIDs, err := m.positions.ListOpen()
	if err != nil {
		m.logger.Error("failed to list open positions", "error", err)
		return
	}

	for _, signalID := range signalIDs {
		pos, err := m.positions.Load(signalID)
		if err != nil || pos == nil {
			continue
		}

		quote, err := m.routerCli.Quote(ctx, pos.Mint, pos.Side)
		if err != nil {
			m.logger.Warn("quote failed, skipping tick", "signal_id", signalID, "mint", pos.Mint, "error", err)
			continue
		}

		if m.partials != nil && m.partials.Watching(signalID) {
			for _, closed := range m.partials.CheckTimeouts(now, quote.Price) {
				m.retire(closed)
			}
			if pos.Status == types.StatusPartial || !m.partials.Watching(signalID) {
				continue
			}
		}

		updated := order.Tick(*pos, quote.Price, now)
		if updated.Status == types.StatusClosed {
			m.retire(updated)
			continue
		}
		if err := m.positions.Save(updated); err != nil {
			m.logger.Error("failed to persist tick", "signal_id", signalID, "error", err)
		}
	}
}

// ForceCloseReorged reverts a position whose submitting transaction was
// reorged off-chain: it force-closes the position at its entry price (a
// reorged fill never happened, so there is no realized PnL to book) and
// retires it from the risk engine's exposure/tier counters the same way a
// normal TP/SL/TTL close does. The reorg-poll loop calls this for every
// Outcome whose Status is StatusReorged, so the rollback actually inverts
// the position's local effects rather than only logging the outcome.
func (m *Monitor) ForceCloseReorged(signalID string, now time.Time) {
	pos, err := m.positions.Load(signalID)
	if err != nil {
		m.logger.Error("failed to load reorged position", "signal_id", signalID, "error", err)
		return
	}
	if pos == nil {
		// Already closed by a tick or another reorg outcome; nothing to revert.
		return
	}

	closed := order.ForceClose(*pos, types.CloseReorgRollback, pos.EntryPrice, now)
	m.retire(closed)
}

func (m *Monitor) retire(pos types.Position) {
	if err := m.positions.Delete(pos.SignalID); err != nil {
		m.logger.Error("failed to delete closed position", "signal_id", pos.SignalID, "error", err)
	}

	m.mu.Lock()
	meta, ok := m.meta[pos.SignalID]
	delete(m.meta, pos.SignalID)
	m.mu.Unlock()
	if !ok {
		meta = positionMeta{}
	}

	realizedPnL := realizedPnL(pos)
	if m.riskMgr != nil {
		m.riskMgr.OnClose(pos.Mint, meta.tier, meta.sizeUSD, realizedPnL)
	}
	if m.gates != nil && pos.CloseReason == types.CloseTP {
		m.gates.MarkProbePassed(pos.Mint)
	}
	metrics.RecordClose(string(pos.CloseReason))

	if m.log != nil {
		m.log.Append(audit.Entry{
			Timestamp: pos.ClosedAt,
			SignalID:  pos.SignalID,
			Reason:    string(pos.CloseReason),
			Severity:  audit.SeverityInfo,
			Before:    mustFloat(pos.EntryPrice),
			After:     mustFloat(pos.SLPrice),
			Mint:      pos.Mint,
		})
	}
}

// realizedPnL computes the closed position's PnL in quote-asset terms:
// filled size times the signed price move, positive for a favorable move
// on the position's side.
func realizedPnL(pos types.Position) float64 {
	entry := mustFloat(pos.EntryPrice)
	filled := mustFloat(pos.FilledSize)
	if entry == 0 {
		return 0
	}

	var closePrice float64
	switch pos.CloseReason {
	case types.CloseTP:
		closePrice = mustFloat(pos.TPPrice)
	case types.CloseSL:
		closePrice = mustFloat(pos.SLPrice)
	default:
		closePrice = entry
	}

	pctMove := (closePrice - entry) / entry
	if pos.Side == types.SELL {
		pctMove = -pctMove
	}
	return filled * pctMove
}

func mustFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
