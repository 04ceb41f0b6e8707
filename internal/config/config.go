// Package config defines all configuration for the copy-trading engine.
// Config is loaded from a YAML file (default: configs/config.yaml) with
// sensitive fields overridable via COPYTRADE_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file
// structure described in spec.md §6.
type Config struct {
	DryRun     bool             `mapstructure:"dry_run"`
	Chain      ChainConfig      `mapstructure:"chain"`
	Risk       RiskConfig       `mapstructure:"risk"`
	Modes      map[string]Mode  `mapstructure:"modes"`
	Selector   SelectorConfig   `mapstructure:"mode_selector"`
	Token      TokenProfile     `mapstructure:"token_profile"`
	Signals    SignalsConfig    `mapstructure:"signals"`
	Dynamic    DynamicExecution `mapstructure:"dynamic_execution"`
	Regime     RegimeConfig     `mapstructure:"regime"`
	Reconciler ReconcilerConfig `mapstructure:"reconciler"`
	Panic      PanicConfig      `mapstructure:"panic"`
	Store      StoreConfig      `mapstructure:"store"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	HTTP       HTTPConfig       `mapstructure:"http"`
}

// ChainConfig holds the identity and endpoints for the wallet executing
// mirrored trades. The core never signs transactions itself — it hands a
// built order to the router adapter — but needs the funding wallet's
// public identity to watch its own balance in the reconciler.
type ChainConfig struct {
	WalletAddress string `mapstructure:"wallet_address"`
	RPCURL        string `mapstructure:"rpc_url"`
	IngestWSURL   string `mapstructure:"ingest_ws_url"`
	RouterBaseURL string `mapstructure:"router_base_url"`
}

// SizingMethod selects between fractional-Kelly and fixed-percent sizing.
type SizingMethod string

const (
	SizingFractionalKelly SizingMethod = "fractional_kelly"
	SizingFixedPct        SizingMethod = "fixed_pct"
)

// RiskSizing configures position sizing (spec.md §6 risk.sizing).
type RiskSizing struct {
	Method             SizingMethod `mapstructure:"method"`
	KellyFraction      float64      `mapstructure:"kelly_fraction"`
	MinPosPct          float64      `mapstructure:"min_pos_pct"`
	MaxPosPct          float64      `mapstructure:"max_pos_pct"`
	FixedPctOfBankroll float64      `mapstructure:"fixed_pct_of_bankroll"`
}

// TierLimit caps the number of concurrently open positions for one wallet tier.
type TierLimit struct {
	MaxOpenPositions int `mapstructure:"max_open_positions"`
}

// CooldownConfig controls the post-loss cooldown window.
type CooldownConfig struct {
	AfterLossSec      int `mapstructure:"after_loss_sec"`
	ConsecutiveLosses int `mapstructure:"consecutive_losses_trigger"`
}

// AggressiveSafety gates aggressive-mode trades with stricter requirements
// (spec.md §4.7).
type AggressiveSafety struct {
	MinLiquidityUSD          float64 `mapstructure:"min_liquidity_usd"`
	MinWalletWinrate         float64 `mapstructure:"min_wallet_winrate"`
	MinWalletROI30dPct       float64 `mapstructure:"min_wallet_roi_30d_pct"`
	MaxDailyLossPct          float64 `mapstructure:"max_daily_loss_pct"`
	MaxDailyAggressiveTrades int     `mapstructure:"max_daily_aggressive_trades"`
}

// RiskLimits configures the exposure, loss, and concurrency caps (spec.md
// §6 risk.limits).
type RiskLimits struct {
	MaxOpenPositions       int                  `mapstructure:"max_open_positions"`
	MaxDailyLossPct        float64              `mapstructure:"max_daily_loss_pct"`
	Cooldown               CooldownConfig       `mapstructure:"cooldown"`
	TierLimits             map[string]TierLimit `mapstructure:"tier_limits"`
	MaxExposurePerTokenPct float64              `mapstructure:"max_exposure_per_token_pct"`
	Aggressive             AggressiveSafety     `mapstructure:"aggressive"`
}

// RiskConfig groups sizing and limits.
type RiskConfig struct {
	Sizing RiskSizing `mapstructure:"sizing"`
	Limits RiskLimits `mapstructure:"limits"`
}

// Mode is a named parameter bundle describing a trading style
// (spec.md §6 modes.<mode>).
type Mode struct {
	TTLSec     int     `mapstructure:"ttl_sec"`
	TPPct      float64 `mapstructure:"tp_pct"`
	SLPct      float64 `mapstructure:"sl_pct"`
	HoldSecMin int     `mapstructure:"hold_sec_min"`
	HoldSecMax int     `mapstructure:"hold_sec_max"`
}

// SelectorConfig configures the mode selector (C5).
type SelectorConfig struct {
	DefaultMode                string         `mapstructure:"default_mode"`
	HoldThresholdsSec          map[string]int `mapstructure:"hold_thresholds_sec"`
	EnableAggressive           bool           `mapstructure:"enable_aggressive"`
	AggressiveMinImpulseCount  int            `mapstructure:"aggressive_min_impulse_count"`
	AggressiveMinImpulseMaxPct float64        `mapstructure:"aggressive_min_impulse_max_pct"`
}

// TokenGates configures the liquidity/volume/spread thresholds (C4 step 3).
type TokenGates struct {
	MinLiquidityUSD float64 `mapstructure:"min_liquidity_usd"`
	MinVolume24hUSD float64 `mapstructure:"min_volume_24h_usd"`
	MaxSpreadBps    float64 `mapstructure:"max_spread_bps"`
}

// TokenSecurity configures the honeypot/authority/concentration checks
// (C4 step 4).
type TokenSecurity struct {
	RequireHoneypotSafe bool    `mapstructure:"require_honeypot_safe"`
	MaxTopHoldersPct    float64 `mapstructure:"max_top_holders_pct"`
}

// ProbeGate configures the probe-trade size cap (C4 step 5).
type ProbeGate struct {
	Enabled         bool    `mapstructure:"enabled"`
	MaxProbeCostUSD float64 `mapstructure:"max_probe_cost_usd"`
}

// TokenProfile groups the gate-chain thresholds.
type TokenProfile struct {
	Gates    TokenGates    `mapstructure:"gates"`
	Security TokenSecurity `mapstructure:"security"`
	Probe    ProbeGate     `mapstructure:"probe"`
}

// SignalsConfig configures the edge/EV threshold (C6).
type SignalsConfig struct {
	MinEdgeBps float64 `mapstructure:"min_edge_bps"`
}

// DynamicExecution configures TTL/slippage scaling by realized volatility.
type DynamicExecution struct {
	Enabled         bool    `mapstructure:"enabled"`
	TTLVolFactor    float64 `mapstructure:"ttl_vol_factor"`
	MinTTLMs        int     `mapstructure:"min_ttl_ms"`
	SlippageSlope   float64 `mapstructure:"slippage_slope"`
	SlippageVolMult float64 `mapstructure:"slippage_vol_mult"`
}

// RegimeConfig configures the regime adjuster (C7).
type RegimeConfig struct {
	Alpha  float64 `mapstructure:"alpha"`
	Source string  `mapstructure:"source"`
}

// ReconcilerConfig configures the state reconciler (C13).
type ReconcilerConfig struct {
	Enabled                      bool  `mapstructure:"enabled"`
	IntervalSeconds              int   `mapstructure:"interval_seconds"`
	WarningThresholdLamports     int64 `mapstructure:"warning_threshold_lamports"`
	CriticalThresholdLamports    int64 `mapstructure:"critical_threshold_lamports"`
	MaxDeltaWithoutAlertLamports int64 `mapstructure:"max_delta_without_alert_lamports"`
	DryRun                       bool  `mapstructure:"dry_run"`
	AuditLogMaxEntries           int   `mapstructure:"audit_log_max_entries"`
}

// Interval returns IntervalSeconds as a time.Duration.
func (r ReconcilerConfig) Interval() time.Duration {
	return time.Duration(r.IntervalSeconds) * time.Second
}

// PanicConfig configures the panic sentinel (C14).
type PanicConfig struct {
	SentinelPath string `mapstructure:"sentinel_path"`
}

// StoreConfig sets where positions, audit logs, and signal records are
// persisted. Idempotency entries are held in memory only.
type StoreConfig struct {
	DataDir string `mapstructure:"data_dir"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// HTTPConfig controls the read-only operational query surface.
type HTTPConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// Load reads config from a YAML file with env var overrides.
// Sensitive fields use env vars: COPYTRADE_WALLET_ADDRESS, COPYTRADE_RPC_URL.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("COPYTRADE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if addr := os.Getenv("COPYTRADE_WALLET_ADDRESS"); addr != "" {
		cfg.Chain.WalletAddress = addr
	}
	if url := os.Getenv("COPYTRADE_RPC_URL"); url != "" {
		cfg.Chain.RPCURL = url
	}
	if os.Getenv("COPYTRADE_DRY_RUN") == "true" || os.Getenv("COPYTRADE_DRY_RUN") == "1" {
		cfg.DryRun = true
	}

	return &cfg, nil
}

// Validate checks all required fields and value ranges. An invalid value
// exits the process with a single-line diagnostic and exit code 2
// (spec.md §6).
func (c *Config) Validate() error {
	if c.Chain.WalletAddress == "" {
		return fmt.Errorf("chain.wallet_address is required (set COPYTRADE_WALLET_ADDRESS)")
	}
	if c.Chain.RPCURL == "" {
		return fmt.Errorf("chain.rpc_url is required")
	}
	switch c.Risk.Sizing.Method {
	case SizingFractionalKelly, SizingFixedPct:
	default:
		return fmt.Errorf("risk.sizing.method must be one of: fractional_kelly, fixed_pct")
	}
	if c.Risk.Sizing.MinPosPct < 0 || c.Risk.Sizing.MaxPosPct <= 0 || c.Risk.Sizing.MinPosPct > c.Risk.Sizing.MaxPosPct {
		return fmt.Errorf("risk.sizing.min_pos_pct/max_pos_pct must satisfy 0 <= min <= max")
	}
	if c.Risk.Limits.MaxOpenPositions <= 0 {
		return fmt.Errorf("risk.limits.max_open_positions must be > 0")
	}
	if c.Risk.Limits.MaxExposurePerTokenPct <= 0 {
		return fmt.Errorf("risk.limits.max_exposure_per_token_pct must be > 0")
	}
	if len(c.Modes) == 0 {
		return fmt.Errorf("at least one entry under modes.* is required")
	}
	if _, ok := c.Modes[c.Selector.DefaultMode]; c.Selector.DefaultMode == "" || !ok {
		return fmt.Errorf("mode_selector.default_mode must name a configured mode")
	}
	if c.Regime.Alpha < 0 || c.Regime.Alpha > 0.5 {
		return fmt.Errorf("regime.alpha must be in [0, 0.5]")
	}
	if c.Reconciler.Enabled && c.Reconciler.IntervalSeconds <= 0 {
		return fmt.Errorf("reconciler.interval_seconds must be > 0 when reconciler.enabled")
	}
	if c.Reconciler.WarningThresholdLamports > c.Reconciler.CriticalThresholdLamports {
		return fmt.Errorf("reconciler.warning_threshold_lamports must be <= critical_threshold_lamports")
	}
	return nil
}
