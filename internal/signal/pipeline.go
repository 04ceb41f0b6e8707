// Package signal implements the pipeline orchestrator: it wires the token
// snapshot store, wallet profile store, gate chain, mode selector, edge
// calculator, risk engine, and idempotency layer into the single-entry
// decision path spec.md §4 describes, then — on ENTER — submits the order
// through the router adapter and registers the resulting position with
// the order manager, partial-fill handler, and reorg guard.
//
// Every call to ProcessTrade returns exactly one types.SignalRecord
// carrying a terminal decision, per the testable property in spec.md §8.
// The pipeline itself holds no actor loop of its own: ingest feeds call
// ProcessTrade from worker goroutines, and every collaborator it touches
// (snapshotstore, risk, idempotency) is already safe for concurrent use.
package signal

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sonarwatch/copytrade-engine/internal/config"
	"github.com/sonarwatch/copytrade-engine/internal/edge"
	"github.com/sonarwatch/copytrade-engine/internal/gate"
	"github.com/sonarwatch/copytrade-engine/internal/idempotency"
	"github.com/sonarwatch/copytrade-engine/internal/mode"
	"github.com/sonarwatch/copytrade-engine/internal/order"
	"github.com/sonarwatch/copytrade-engine/internal/partial"
	"github.com/sonarwatch/copytrade-engine/internal/reject"
	"github.com/sonarwatch/copytrade-engine/internal/reorg"
	"github.com/sonarwatch/copytrade-engine/internal/risk"
	"github.com/sonarwatch/copytrade-engine/internal/router"
	"github.com/sonarwatch/copytrade-engine/internal/snapshotstore"
	"github.com/sonarwatch/copytrade-engine/internal/store"
	"github.com/sonarwatch/copytrade-engine/internal/walletstore"
	"github.com/sonarwatch/copytrade-engine/pkg/types"
)

const defaultRingSize = 500

// registrar is the slice of internal/monitor.Monitor the pipeline needs:
// recording the tier and size context a later close retires from the risk
// engine's counters. Defined here, rather than importing internal/monitor
// directly, to avoid a signal<->monitor import cycle.
type registrar interface {
	Register(signalID string, tier types.WalletTier, sizeUSD float64)
}

// Pipeline is the per-trade decision orchestrator.
type Pipeline struct {
	cfg config.Config

	snapshots  *snapshotstore.Store
	wallets    *walletstore.Store
	gates      *gate.Chain
	modeSel    *mode.Selector
	riskMgr    *risk.Manager
	idem       *idempotency.Table
	reorgGuard *reorg.Guard
	partials   *partial.Handler
	positions  *store.PositionStore
	routerCli  *router.Client
	signalsLog *store.JSONLWriter
	monitor    registrar
	logger     *slog.Logger

	mu     sync.RWMutex
	regime float64

	ringMu sync.Mutex
	ring   []types.SignalRecord
}

// Deps bundles every collaborator the pipeline needs. signalsLog may be
// nil to skip the signals.v1 file sink (tests).
type Deps struct {
	Snapshots  *snapshotstore.Store
	Wallets    *walletstore.Store
	Gates      *gate.Chain
	ModeSel    *mode.Selector
	RiskMgr    *risk.Manager
	Idem       *idempotency.Table
	ReorgGuard *reorg.Guard
	Partials   *partial.Handler
	Positions  *store.PositionStore
	Router     *router.Client
	SignalsLog *store.JSONLWriter
	Monitor    registrar
}

// New assembles the pipeline from its collaborators.
func New(cfg config.Config, deps Deps, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		cfg:        cfg,
		snapshots:  deps.Snapshots,
		wallets:    deps.Wallets,
		gates:      deps.Gates,
		modeSel:    deps.ModeSel,
		riskMgr:    deps.RiskMgr,
		idem:       deps.Idem,
		reorgGuard: deps.ReorgGuard,
		partials:   deps.Partials,
		positions:  deps.Positions,
		routerCli:  deps.Router,
		signalsLog: deps.SignalsLog,
		monitor:    deps.Monitor,
		logger:     logger.With("component", "signal"),
		ring:       make([]types.SignalRecord, 0, defaultRingSize),
	}
}

// SetRegime updates the externally supplied risk-regime sample the edge
// calculator reads on every subsequent call.
func (p *Pipeline) SetRegime(v float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.regime = v
}

func (p *Pipeline) currentRegime() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.regime
}

// Recent returns the most recently emitted signal records, newest last,
// satisfying internal/httpapi.RecentSignals.
func (p *Pipeline) Recent() []types.SignalRecord {
	p.ringMu.Lock()
	defer p.ringMu.Unlock()
	out := make([]types.SignalRecord, len(p.ring))
	copy(out, p.ring)
	return out
}

// ProcessTrade runs one trade event through the full decision path and
// returns its terminal signal record. now is read once at entry so every
// downstream check sees a consistent instant.
func (p *Pipeline) ProcessTrade(ctx context.Context, trade types.TradeEvent) types.SignalRecord {
	now := time.Now()
	record := types.SignalRecord{
		Schema:      types.SchemaVersion{Major: types.CurrentMajor, Minor: 0},
		SignalID:    uuid.NewString(),
		TraceID:     uuid.NewString(),
		TimestampMs: trade.TimestampMs,
		Leader:      trade.Leader,
		Mint:        trade.Mint,
	}

	profile, hasProfile := p.wallets.Get(trade.Leader)
	snapshot := p.snapshots.Get(ctx, trade.Mint)
	hasSnapshot := snapshot.Extra.Source != "fallback" && snapshot.Extra.Source != ""

	gateDecision := p.gates.Evaluate(trade, snapshot)
	if !gateDecision.Passed {
		return p.skip(record, gateDecision.Reasons[0])
	}

	modeDecision := p.modeSel.Select(trade, profile, hasProfile, hasSnapshot)
	record.Mode = modeDecision.ModeID
	modeParams, isAggressive := p.lookupMode(modeDecision.ModeID)

	regimeInput := edge.RegimeInput{
		Enabled: p.cfg.Regime.Source != "",
		Alpha:   p.cfg.Regime.Alpha,
		Regime:  p.currentRegime(),
	}
	edgeResult := edge.Calculate(snapshot, profile, hasProfile, edge.Params{
		TPPct: modeParams.TPPct,
		SLPct: modeParams.SLPct,
	}, p.cfg.Signals, regimeInput)

	record.EdgeRawBps = edgeResult.EdgeRawBps
	record.EdgeFinalBps = edgeResult.EdgeFinalBps
	record.RiskRegime = regimeInput.Regime

	if !edgeResult.Passed {
		return p.skip(record, reject.EVBelowThreshold)
	}

	bucketWidth := time.Second
	idemKey := idempotency.Fingerprint(trade.Leader, trade.Mint, trade.Side, time.UnixMilli(trade.TimestampMs), bucketWidth)
	ttl := effectiveTTL(modeParams, snapshot, p.cfg.Dynamic)
	if !p.idem.Acquire(idemKey, ttl, now) {
		return p.skip(record, reject.DuplicateExecution)
	}

	riskReq := risk.Request{
		Mint:         trade.Mint,
		Tier:         profile.Tier,
		IsAggressive: isAggressive,
		WinP:         edgeResult.WinP,
		TPPct:        modeParams.TPPct,
		SLPct:        modeParams.SLPct,
		HasProfile:   hasProfile,
		Winrate30d:   profile.Winrate30d,
		ROI30dPct:    profile.ROI30dPct,
		HasSnapshot:  hasSnapshot,
		LiquidityUSD: snapshot.LiquidityUSD,
	}
	riskDecision := p.riskMgr.Evaluate(riskReq, now)
	if !riskDecision.Passed {
		p.idem.Release(idemKey)
		return p.skip(record, riskDecision.Reason)
	}

	limitPrice := slippageAdjustedPrice(trade.Price, trade.Side, snapshot, p.cfg.Dynamic)
	submitResult, err := p.routerCli.Submit(ctx, router.SubmitRequest{
		SignalID:   record.SignalID,
		Mint:       trade.Mint,
		Side:       trade.Side,
		SizeQuote:  riskDecision.SizeQuote,
		LimitPrice: limitPrice,
	})
	if err != nil {
		p.idem.Release(idemKey)
		p.logger.Error("order submission failed", "signal_id", record.SignalID, "error", err)
		// No dedicated closed-set tag exists for a transport-level submit
		// failure; fail safe with the same kill-switch tag the rest of
		// the pipeline's fail-safe paths use (spec.md §7).
		return p.skip(record, reject.RiskKillSwitch)
	}
	if submitResult.JitoRejected {
		p.idem.Release(idemKey)
		return p.skip(record, reject.JitoBundleRejected)
	}

	pos := order.New(record.SignalID, trade.Mint, trade.Side, submitResult.FillPrice, submitResult.FilledQuote, now, int(ttl.Seconds()), modeParams.TPPct, modeParams.SLPct)
	pos.TxHash = submitResult.TxHash
	pos.FilledSize = submitResult.FilledQuote

	if p.positions != nil {
		if err := p.positions.Save(pos); err != nil {
			p.logger.Error("failed to persist position", "signal_id", record.SignalID, "error", err)
		}
	}
	if p.partials != nil {
		p.partials.Track(pos, submitResult.TxHash, record.TraceID, now)
	}
	if p.reorgGuard != nil {
		sizeUSD, _ := riskDecision.SizeQuote.Float64()
		p.reorgGuard.Track(reorg.Submission{
			TxHash:      submitResult.TxHash,
			SignalID:    record.SignalID,
			TraceID:     record.TraceID,
			Mint:        trade.Mint,
			SubmittedAt: now,
			SizeUSD:     sizeUSD,
		})
	}

	sizeUSD, _ := riskDecision.SizeQuote.Float64()
	p.riskMgr.OnOpen(trade.Mint, profile.Tier, sizeUSD)
	if p.monitor != nil {
		p.monitor.Register(record.SignalID, profile.Tier, sizeUSD)
	}

	record.Decision = "ENTER"
	return p.finish(record)
}

func (p *Pipeline) skip(record types.SignalRecord, reason reject.Reason) types.SignalRecord {
	record.Decision = "SKIP"
	record.RejectReason = string(reason)
	return p.finish(record)
}

func (p *Pipeline) finish(record types.SignalRecord) types.SignalRecord {
	p.ringMu.Lock()
	p.ring = append(p.ring, record)
	if len(p.ring) > defaultRingSize {
		p.ring = p.ring[len(p.ring)-defaultRingSize:]
	}
	p.ringMu.Unlock()

	if p.signalsLog != nil {
		if err := p.signalsLog.Write(record); err != nil {
			p.logger.Error("failed to append signal record", "signal_id", record.SignalID, "error", err)
		}
	}
	return record
}

// lookupMode resolves a mode selector decision (possibly suffixed "_aggr")
// to its configured parameters. A selector id that doesn't name a
// configured mode falls back to the default mode's parameters rather than
// returning zero-value TP/SL, which would otherwise size every aggressive
// trade at zero edge.
func (p *Pipeline) lookupMode(modeID string) (config.Mode, bool) {
	if m, ok := p.cfg.Modes[modeID]; ok {
		return m, strings.HasSuffix(modeID, "_aggr")
	}
	base := strings.TrimSuffix(modeID, "_aggr")
	if m, ok := p.cfg.Modes[base]; ok {
		return m, strings.HasSuffix(modeID, "_aggr")
	}
	return p.cfg.Modes[p.cfg.Selector.DefaultMode], strings.HasSuffix(modeID, "_aggr")
}

// effectiveTTL scales a mode's base TTL down as realized 30s volatility
// rises, per the dynamic_execution config section (spec.md §6): a volatile
// token gets less time to resolve before the TTL exit fires, floored at
// min_ttl_ms so it never collapses to zero.
func effectiveTTL(mode config.Mode, snapshot types.TokenSnapshot, dyn config.DynamicExecution) time.Duration {
	base := time.Duration(mode.TTLSec) * time.Second
	if !dyn.Enabled {
		return base
	}
	shrink := time.Duration(dyn.TTLVolFactor*snapshot.Volatility30s*1000) * time.Millisecond
	adjusted := base - shrink
	floor := time.Duration(dyn.MinTTLMs) * time.Millisecond
	if adjusted < floor {
		return floor
	}
	return adjusted
}

// slippageAdjustedPrice widens the limit price away from the observed
// trade price by slippage_slope plus a volatility-scaled term, in the
// direction that protects the fill: higher for a BUY, lower for a SELL.
func slippageAdjustedPrice(price decimal.Decimal, side types.Side, snapshot types.TokenSnapshot, dyn config.DynamicExecution) decimal.Decimal {
	if !dyn.Enabled {
		return price
	}
	slippage := dyn.SlippageSlope + dyn.SlippageVolMult*snapshot.Volatility30s
	factor := decimal.NewFromFloat(1 + slippage)
	if side == types.SELL {
		factor = decimal.NewFromFloat(1 - slippage)
	}
	return price.Mul(factor)
}
