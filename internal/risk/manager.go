// Package risk implements the risk engine (C8): a sequential chain of
// portfolio-level checks run after the gate chain and edge calculator
// agree a trade is worth sizing, followed by Kelly or fixed-percent
// position sizing. Each check emits a single reject tag on failure,
// mirroring the gate chain's short-circuit discipline; sizing only runs
// once every check has passed.
//
// The portfolio state this engine reads (open positions, exposure by
// token, day PnL, cooldown) is guarded by one RWMutex: fill and close
// reports arrive through OnOpen and OnClose, and Evaluate reads a cloned
// snapshot taken under the same lock, the way the teacher's risk manager
// aggregated per-market PositionReports into one RWMutex-guarded view.
package risk

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sonarwatch/copytrade-engine/internal/config"
	"github.com/sonarwatch/copytrade-engine/internal/panicguard"
	"github.com/sonarwatch/copytrade-engine/internal/reject"
	"github.com/sonarwatch/copytrade-engine/pkg/types"
)

// Request bundles everything Evaluate needs about one candidate trade
// beyond the live portfolio state the engine already owns.
type Request struct {
	Mint         string
	Tier         types.WalletTier
	IsAggressive bool

	WinP  float64 // win_p used by the edge calculator, reused for Kelly sizing
	TPPct float64
	SLPct float64 // negative

	HasProfile  bool
	Winrate30d  float64
	ROI30dPct   float64

	HasSnapshot  bool
	LiquidityUSD float64
}

// Decision is the risk engine's output: pass with a sized order, or reject
// with a single tag.
type Decision struct {
	Passed    bool
	Reason    reject.Reason
	SizeQuote decimal.Decimal
}

// Manager owns the live portfolio view and evaluates risk for candidate
// trades against it. The name is kept from the teacher's per-market risk
// manager; the aggregation unit is now per-mint exposure instead of
// per-market exposure.
type Manager struct {
	cfg      config.RiskConfig
	sentinel *panicguard.Sentinel
	logger   *slog.Logger

	mu        sync.RWMutex
	portfolio types.PortfolioState
}

// NewManager creates a risk engine over an initial portfolio state.
func NewManager(cfg config.RiskConfig, sentinel *panicguard.Sentinel, initial types.PortfolioState, logger *slog.Logger) *Manager {
	if initial.ExposureByToken == nil {
		initial.ExposureByToken = make(map[string]float64)
	}
	if initial.ActiveCountsByTier == nil {
		initial.ActiveCountsByTier = make(map[types.WalletTier]int)
	}
	return &Manager{
		cfg:       cfg,
		sentinel:  sentinel,
		portfolio: initial,
		logger:    logger.With("component", "risk"),
	}
}

// Snapshot returns a copy of the current portfolio state for diagnostics
// (the httpapi /risk/snapshot endpoint reads this). The returned value
// owns its own maps, safe to read after the lock is released.
func (m *Manager) Snapshot() types.PortfolioState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

// snapshotLocked clones the portfolio struct including its maps. The
// struct copy alone shares ExposureByToken/ActiveCountsByTier with
// m.portfolio, so callers that read the result after releasing m.mu would
// otherwise race OnOpen/OnClose's map writes on another goroutine. Must be
// called with m.mu held for reading.
func (m *Manager) snapshotLocked() types.PortfolioState {
	p := m.portfolio
	p.ExposureByToken = cloneFloatMap(m.portfolio.ExposureByToken)
	p.ActiveCountsByTier = cloneTierMap(m.portfolio.ActiveCountsByTier)
	return p
}

func cloneFloatMap(src map[string]float64) map[string]float64 {
	dst := make(map[string]float64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func cloneTierMap(src map[types.WalletTier]int) map[types.WalletTier]int {
	dst := make(map[types.WalletTier]int, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// BankrollLamports returns the local bankroll view, satisfying
// reconcile.LocalBankroll.
func (m *Manager) BankrollLamports() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.portfolio.BankrollLamports
}

// SetBankrollLamports overwrites the local bankroll view with chain ground
// truth, called by the reconciler outside dry-run mode.
func (m *Manager) SetBankrollLamports(lamports int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.portfolio.BankrollLamports = lamports
}

// OnOpen records a newly entered position's exposure and tier count.
func (m *Manager) OnOpen(mint string, tier types.WalletTier, sizeUSD float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.portfolio.OpenPositions++
	m.portfolio.ExposureByToken[mint] += sizeUSD
	m.portfolio.ActiveCountsByTier[tier]++
}

// OnClose records a closed position's realized PnL and releases its
// exposure and tier count. A loss trips the consecutive-loss counter and,
// once it crosses the configured threshold, opens a cooldown window.
func (m *Manager) OnClose(mint string, tier types.WalletTier, sizeUSD float64, realizedPnL float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.portfolio.OpenPositions--
	if m.portfolio.OpenPositions < 0 {
		m.portfolio.OpenPositions = 0
	}
	m.portfolio.ExposureByToken[mint] -= sizeUSD
	if m.portfolio.ExposureByToken[mint] < 0 {
		m.portfolio.ExposureByToken[mint] = 0
	}
	m.portfolio.ActiveCountsByTier[tier]--
	if m.portfolio.ActiveCountsByTier[tier] < 0 {
		m.portfolio.ActiveCountsByTier[tier] = 0
	}

	m.portfolio.DayPnL += realizedPnL
	m.portfolio.Equity += realizedPnL
	if m.portfolio.Equity > m.portfolio.PeakEquity {
		m.portfolio.PeakEquity = m.portfolio.Equity
	}

	if realizedPnL < 0 {
		m.portfolio.ConsecutiveLosses++
		if m.portfolio.ConsecutiveLosses >= m.cfg.Limits.Cooldown.ConsecutiveLosses {
			m.portfolio.CooldownUntil = time.Now().Add(time.Duration(m.cfg.Limits.Cooldown.AfterLossSec) * time.Second)
			m.logger.Warn("cooldown engaged", "consecutive_losses", m.portfolio.ConsecutiveLosses)
		}
	} else {
		m.portfolio.ConsecutiveLosses = 0
	}
}

// ResetDay clears the day-scoped counters. Nothing in this module calls it
// on a schedule; DayPnL accumulates until it is called.
func (m *Manager) ResetDay() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.portfolio.DayPnL = 0
}

// Evaluate runs the sequential risk checks and, if all pass, sizes the
// position. now is passed explicitly so tests don't depend on wall clock.
func (m *Manager) Evaluate(req Request, now time.Time) Decision {
	m.mu.RLock()
	portfolio := m.snapshotLocked()
	m.mu.RUnlock()

	if reason, ok := m.checkKillSwitch(portfolio); !ok {
		return Decision{Reason: reason}
	}
	if now.Before(portfolio.CooldownUntil) {
		return Decision{Reason: reject.RiskCooldown}
	}
	if portfolio.OpenPositions >= m.cfg.Limits.MaxOpenPositions {
		return Decision{Reason: reject.RiskMaxPositions}
	}
	if limit, ok := m.cfg.Limits.TierLimits[string(req.Tier)]; ok {
		if portfolio.ActiveCountsByTier[req.Tier] >= limit.MaxOpenPositions {
			return Decision{Reason: reject.RiskWalletTierLimit}
		}
	}

	headroomUSD := m.exposureHeadroomUSD(portfolio, req.Mint)
	if headroomUSD <= 0 {
		return Decision{Reason: reject.RiskMaxExposure}
	}

	if req.IsAggressive {
		if reason, ok := m.checkAggressiveSafety(req, portfolio); !ok {
			return Decision{Reason: reason}
		}
	}

	sizeUSD := m.size(req, portfolio, headroomUSD)
	if sizeUSD <= 0 {
		return Decision{Reason: reject.RiskMaxExposure}
	}

	return Decision{Passed: true, SizeQuote: decimal.NewFromFloat(sizeUSD)}
}

func (m *Manager) checkKillSwitch(portfolio types.PortfolioState) (reject.Reason, bool) {
	if m.sentinel != nil && m.sentinel.IsActive() {
		return reject.RiskKillSwitch, false
	}
	if portfolio.DayPnLPct() <= -m.cfg.Limits.MaxDailyLossPct {
		return reject.RiskKillSwitch, false
	}
	return "", true
}

// checkAggressiveSafety enforces the stricter entry bar for aggressive
// modes per spec.md §4.7. Missing wallet profile or snapshot data fails
// safe — the same RiskKillSwitch tag the rest of the fail-safe paths use,
// since the closed reject-reason set has no dedicated aggressive-safety
// tag and a conservative reject is always the correct fallback here.
func (m *Manager) checkAggressiveSafety(req Request, portfolio types.PortfolioState) (reject.Reason, bool) {
	safety := m.cfg.Limits.Aggressive

	if !req.HasSnapshot || !req.HasProfile {
		return reject.RiskKillSwitch, false
	}
	if req.LiquidityUSD < safety.MinLiquidityUSD {
		return reject.RiskKillSwitch, false
	}
	if req.Winrate30d < safety.MinWalletWinrate {
		return reject.RiskKillSwitch, false
	}
	if req.ROI30dPct < safety.MinWalletROI30dPct {
		return reject.RiskKillSwitch, false
	}
	if portfolio.DayPnLPct() <= -safety.MaxDailyLossPct {
		return reject.RiskKillSwitch, false
	}
	return "", true
}

func (m *Manager) exposureHeadroomUSD(portfolio types.PortfolioState, mint string) float64 {
	capUSD := m.cfg.Limits.MaxExposurePerTokenPct / 100 * portfolio.Equity
	current := portfolio.ExposureByToken[mint]
	headroom := capUSD - current
	if headroom < 0 {
		return 0
	}
	return headroom
}

// size computes the position size in USD per spec.md §4.7: Kelly fraction
// (capped by kelly_fraction), clamped into [min_pos_pct, max_pos_pct] of
// equity, then clamped by remaining per-token exposure headroom. Fixed-
// percent sizing is the configured fallback when the sizing method is
// fixed_pct instead of fractional_kelly.
func (m *Manager) size(req Request, portfolio types.PortfolioState, headroomUSD float64) float64 {
	sizing := m.cfg.Sizing

	var fraction float64
	switch sizing.Method {
	case config.SizingFixedPct:
		fraction = sizing.FixedPctOfBankroll / 100
	default:
		fraction = KellyFraction(req.WinP, req.TPPct, req.SLPct) * sizing.KellyFraction
	}

	fraction = clamp(fraction, sizing.MinPosPct/100, sizing.MaxPosPct/100)
	sizeUSD := fraction * portfolio.Equity

	if sizeUSD > headroomUSD {
		sizeUSD = headroomUSD
	}
	if sizeUSD < 0 {
		return 0
	}
	return sizeUSD
}

// KellyFraction computes f* = (p*(b+1) - 1) / b with b = tp/|sl|. Returns 0
// if b is non-positive (degenerate mode parameters) rather than dividing by
// zero or returning a negative-infinity fraction.
func KellyFraction(winP, tpPct, slPct float64) float64 {
	b := tpPct / math.Abs(slPct)
	if b <= 0 {
		return 0
	}
	f := (winP*(b+1) - 1) / b
	if f < 0 {
		return 0
	}
	return f
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
