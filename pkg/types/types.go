// Package types defines the shared data structures that flow through the
// copy-trading pipeline: the wire vocabulary of trade events, token
// snapshots, wallet profiles, positions, portfolio state, and the emitted
// signal record. It has no dependencies on internal packages, so it can be
// imported by every layer.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// SchemaVersion is the [major, minor] schema tag carried by every wire
// record. The trade-event reader (internal/ingest) copies it through
// without checking it: records of any major or minor version are accepted,
// and TradeEvent.Unknown is not populated.
type SchemaVersion struct {
	Major int `json:"major"`
	Minor int `json:"minor"`
}

// CurrentMajor is the schema major version this build understands.
const CurrentMajor = 1

// Side is the direction of a trade or position: BUY or SELL.
type Side string

const (
	BUY  Side = "BUY"
	SELL Side = "SELL"
)

// TradeEvent is a normalized leader-wallet trade observed on chain.
// (leader, tx_hash) is the natural dedup key — a tx hash uniquely
// identifies the on-chain event.
type TradeEvent struct {
	Schema      SchemaVersion   `json:"schema"`
	TimestampMs int64           `json:"timestamp_ms"`
	Leader      string          `json:"leader_wallet"`
	Mint        string          `json:"mint"`
	Side        Side            `json:"side"`
	Price       decimal.Decimal `json:"price"`
	NotionalUSD decimal.Decimal `json:"notional_size"`
	Source      string          `json:"source_platform"`
	TxHash      string          `json:"tx_hash"`

	// ImpulseCount and ImpulseMaxPct feed the mode selector's aggressive
	// upgrade rule (spec.md §4.4): consecutive same-direction trades and
	// the largest single price move in the window, respectively.
	ImpulseCount  int     `json:"impulse_count,omitempty"`
	ImpulseMaxPct float64 `json:"impulse_max_pct,omitempty"`

	Unknown map[string]any `json:"-"`
}

// NaturalKey returns the dedup key for this event.
func (t TradeEvent) NaturalKey() string {
	return t.Leader + "|" + t.TxHash
}

// SecurityFlags captures the honeypot/authority/tax checks sourced from a
// snapshot provider.
type SecurityFlags struct {
	IsHoneypot            bool    `json:"is_honeypot"`
	MintAuthorityPresent  bool    `json:"mint_authority_present"`
	FreezeAuthorityPresent bool   `json:"freeze_authority_present"`
	SimSuccess            bool    `json:"sim_success"`
	BuyTaxBps             int     `json:"buy_tax_bps"`
	SellTaxBps            int     `json:"sell_tax_bps"`
}

// SnapshotExtra carries provider annotations that don't have a fixed shape,
// plus the fallback-source marker required by spec.md §4.1.
type SnapshotExtra struct {
	Source     string         `json:"source"` // "primary", "merged", or "fallback"
	Security   SecurityFlags  `json:"security"`
	Provenance map[string]any `json:"provenance,omitempty"`
}

// TokenSnapshot is the cached, TTL-bounded per-mint view the gate chain,
// mode selector, and edge calculator read.
type TokenSnapshot struct {
	Schema             SchemaVersion `json:"schema"`
	Mint               string        `json:"mint"`
	TsSnapshot         time.Time     `json:"ts_snapshot"`
	LiquidityUSD       float64       `json:"liquidity_usd"`
	Volume24hUSD       float64       `json:"volume_24h_usd"`
	SpreadBps          float64       `json:"spread_bps"`
	Top10HoldersPct    float64       `json:"top10_holders_pct"`
	SingleHolderPct    float64       `json:"single_holder_pct"`
	Volatility30s      float64       `json:"volatility_30s"`
	PriceImpulse5m     float64       `json:"price_impulse_5m"`
	SmartMoneyShare    float64       `json:"smart_money_share"`
	EventRisk          float64       `json:"event_risk"` // [0,1]
	Extra              SnapshotExtra `json:"extra"`
}

// WalletTier is a discrete quality bucket for a leader wallet.
type WalletTier string

const (
	Tier1 WalletTier = "tier1"
	Tier2 WalletTier = "tier2"
	Tier3 WalletTier = "tier3"
)

// BehavioralFeatures are the softer, harder-to-game signals about a wallet's
// trading style.
type BehavioralFeatures struct {
	ConsecutiveWins        int     `json:"consecutive_wins" yaml:"consecutive_wins"`
	PreferredDEXConcentration float64 `json:"preferred_dex_concentration" yaml:"preferred_dex_concentration"`
	ClusterLeaderScore     float64 `json:"cluster_leader_score" yaml:"cluster_leader_score"`
}

// WalletProfile is the per-wallet historical performance record loaded at
// startup and refreshed out-of-band. Treated as read-only by the core.
type WalletProfile struct {
	Schema       SchemaVersion      `json:"schema"`
	Wallet       string             `json:"wallet"`
	Tier         WalletTier         `json:"tier"`
	ROI30dPct    float64            `json:"roi_30d_pct" yaml:"roi_30d_pct"`
	Winrate30d   float64            `json:"winrate_30d" yaml:"winrate_30d"`
	Trades30d    int                `json:"trades_30d" yaml:"trades_30d"`
	MedianHoldSec int               `json:"median_hold_sec" yaml:"median_hold_sec"`
	AvgTradeSize float64            `json:"avg_trade_size" yaml:"avg_trade_size"`
	Behavioral   BehavioralFeatures `json:"behavioral"`
}

// PositionStatus is the order manager's bracket state.
type PositionStatus string

const (
	StatusActive  PositionStatus = "ACTIVE"
	StatusPartial PositionStatus = "PARTIAL"
	StatusClosed  PositionStatus = "CLOSED"
)

// CloseReason is the closed set of terminal reasons a position can close with.
type CloseReason string

const (
	CloseTP              CloseReason = "TP_HIT"
	CloseSL              CloseReason = "SL_HIT"
	CloseTTL             CloseReason = "TTL_EXPIRED"
	CloseManual          CloseReason = "MANUAL_CLOSE"
	ClosePartialTimeout  CloseReason = "PARTIAL_TIMEOUT"
	CloseReorgRollback   CloseReason = "REORG_ROLLBACK"
)

// Position is one open (or closed) bracket order produced by the order
// manager. tp_price/sl_price are computed once at construction from side
// and mode parameters; transitions out of a terminal state are no-ops.
type Position struct {
	SignalID      string          `json:"signal_id"`
	Mint          string          `json:"mint"`
	Side          Side            `json:"side"`
	EntryPrice    decimal.Decimal `json:"entry_price"`
	SizeQuote     decimal.Decimal `json:"size_quote"`
	EntryTs       time.Time       `json:"entry_ts"`
	TTLSec        int             `json:"ttl_sec"`
	TPPrice       decimal.Decimal `json:"tp_price"`
	SLPrice       decimal.Decimal `json:"sl_price"`
	Status        PositionStatus  `json:"status"`
	CloseReason   CloseReason     `json:"close_reason,omitempty"`
	RemainingSize decimal.Decimal `json:"remaining_size"`
	ExpectedSize  decimal.Decimal `json:"expected_size"`
	FilledSize    decimal.Decimal `json:"filled_size"`
	ClosedAt      time.Time       `json:"closed_at,omitempty"`
	TxHash        string          `json:"tx_hash,omitempty"`
}

// PortfolioState is the live bankroll/exposure view the risk engine reads
// and writes. bankroll_lamports is the authoritative local view the
// reconciler compares against chain ground truth.
type PortfolioState struct {
	Equity             float64            `json:"equity"`
	PeakEquity         float64            `json:"peak_equity"`
	OpenPositions      int                `json:"open_positions"`
	DayPnL             float64            `json:"day_pnl"`
	ConsecutiveLosses  int                `json:"consecutive_losses"`
	CooldownUntil      time.Time          `json:"cooldown_until_ts"`
	ExposureByToken    map[string]float64 `json:"exposure_by_token"`
	ActiveCountsByTier map[WalletTier]int `json:"active_counts_by_tier"`
	BankrollLamports   int64              `json:"bankroll_lamports"`
}

// DayPnLPct returns today's PnL as a percentage of equity, 0 if equity is 0.
func (p PortfolioState) DayPnLPct() float64 {
	if p.Equity == 0 {
		return 0
	}
	return p.DayPnL / p.Equity * 100
}

// IdempotencyState is the lifecycle state of an idempotency entry.
type IdempotencyState string

const (
	IdempLocked   IdempotencyState = "locked"
	IdempReleased IdempotencyState = "released"
)

// IdempotencyEntry guards a single (leader, mint, side, bucketed_ts)
// fingerprint against concurrent duplicate decisions.
type IdempotencyEntry struct {
	Key        string           `json:"key"`
	State      IdempotencyState `json:"state"`
	AcquiredAt time.Time        `json:"acquired_at"`
	TTLSec     int              `json:"ttl_sec"`
}

// Expired reports whether the entry's TTL has elapsed as of now.
func (e IdempotencyEntry) Expired(now time.Time) bool {
	return now.After(e.AcquiredAt.Add(time.Duration(e.TTLSec) * time.Second))
}

// SignalRecord is the signals.v1 wire output: one record per incoming
// trade event, always carrying exactly one terminal outcome.
type SignalRecord struct {
	Schema        SchemaVersion `json:"schema"`
	SignalID      string        `json:"signal_id"`
	TraceID       string        `json:"trace_id"`
	TimestampMs   int64         `json:"timestamp_ms"`
	Leader        string        `json:"leader_wallet"`
	Mint          string        `json:"mint"`
	Decision      string        `json:"decision"` // "ENTER" or "SKIP"
	RejectReason  string        `json:"reject_reason,omitempty"`
	Mode          string        `json:"mode,omitempty"`
	EdgeRawBps    float64       `json:"edge_raw_bps,omitempty"`
	EdgeFinalBps  float64       `json:"edge_final_bps,omitempty"`
	RiskRegime    float64       `json:"risk_regime,omitempty"`
	SimExitReason string        `json:"sim_exit_reason,omitempty"`
}

// RegimeSample is one point on the externally supplied risk-regime
// timeline, in [-1, +1].
type RegimeSample struct {
	Schema    SchemaVersion `json:"schema"`
	Timestamp time.Time     `json:"timestamp"`
	Regime    float64       `json:"risk_regime"`
}
