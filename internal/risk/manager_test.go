package risk

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/sonarwatch/copytrade-engine/internal/config"
	"github.com/sonarwatch/copytrade-engine/internal/panicguard"
	"github.com/sonarwatch/copytrade-engine/internal/reject"
	"github.com/sonarwatch/copytrade-engine/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSentinel() *panicguard.Sentinel {
	return panicguard.New("/nonexistent-sentinel", testLogger())
}

func testRiskConfig() config.RiskConfig {
	return config.RiskConfig{
		Sizing: config.RiskSizing{
			Method:        config.SizingFractionalKelly,
			KellyFraction: 0.5,
			MinPosPct:     1,
			MaxPosPct:     10,
		},
		Limits: config.RiskLimits{
			MaxOpenPositions: 5,
			MaxDailyLossPct:  10,
			Cooldown: config.CooldownConfig{
				AfterLossSec:      300,
				ConsecutiveLosses: 3,
			},
			TierLimits: map[string]config.TierLimit{
				"tier1": {MaxOpenPositions: 3},
				"tier3": {MaxOpenPositions: 1},
			},
			MaxExposurePerTokenPct: 10,
			Aggressive: config.AggressiveSafety{
				MinLiquidityUSD:          20000,
				MinWalletWinrate:         0.6,
				MinWalletROI30dPct:       10,
				MaxDailyLossPct:          5,
				MaxDailyAggressiveTrades: 10,
			},
		},
	}
}

func newManager(initial types.PortfolioState) *Manager {
	return NewManager(testRiskConfig(), testSentinel(), initial, testLogger())
}

func basicRequest() Request {
	return Request{
		Mint:         "mint1",
		Tier:         types.Tier1,
		WinP:         0.6,
		TPPct:        0.10,
		SLPct:        -0.05,
		HasProfile:   true,
		Winrate30d:   0.6,
		ROI30dPct:    20,
		HasSnapshot:  true,
		LiquidityUSD: 50000,
	}
}

func TestEvaluatePassesUnderLimits(t *testing.T) {
	m := newManager(types.PortfolioState{Equity: 10000, ExposureByToken: map[string]float64{}})

	d := m.Evaluate(basicRequest(), time.Now())

	if !d.Passed {
		t.Fatalf("Passed = false, reason = %v", d.Reason)
	}
	if d.SizeQuote.IsZero() || d.SizeQuote.IsNegative() {
		t.Errorf("SizeQuote = %v, want positive", d.SizeQuote)
	}
}

func TestEvaluateKillSwitchOnDailyLoss(t *testing.T) {
	m := newManager(types.PortfolioState{Equity: 10000, DayPnL: -1500, ExposureByToken: map[string]float64{}})

	d := m.Evaluate(basicRequest(), time.Now())

	if d.Passed || d.Reason != reject.RiskKillSwitch {
		t.Errorf("Decision = %+v, want risk_kill_switch (day_pnl_pct=-15%% <= -10%%)", d)
	}
}

func TestEvaluateKillSwitchOnSentinel(t *testing.T) {
	m := newManager(types.PortfolioState{Equity: 10000, ExposureByToken: map[string]float64{}})
	m.sentinel.Trip("test")

	d := m.Evaluate(basicRequest(), time.Now())

	if d.Passed || d.Reason != reject.RiskKillSwitch {
		t.Errorf("Decision = %+v, want risk_kill_switch", d)
	}
}

func TestEvaluateCooldown(t *testing.T) {
	now := time.Now()
	m := newManager(types.PortfolioState{
		Equity:          10000,
		ExposureByToken: map[string]float64{},
		CooldownUntil:   now.Add(time.Hour),
	})

	d := m.Evaluate(basicRequest(), now)

	if d.Passed || d.Reason != reject.RiskCooldown {
		t.Errorf("Decision = %+v, want risk_cooldown", d)
	}
}

func TestEvaluateMaxOpenPositions(t *testing.T) {
	m := newManager(types.PortfolioState{
		Equity:          10000,
		ExposureByToken: map[string]float64{},
		OpenPositions:   5,
	})

	d := m.Evaluate(basicRequest(), time.Now())

	if d.Passed || d.Reason != reject.RiskMaxPositions {
		t.Errorf("Decision = %+v, want risk_max_positions", d)
	}
}

func TestEvaluateTierLimit(t *testing.T) {
	m := newManager(types.PortfolioState{
		Equity:             10000,
		ExposureByToken:    map[string]float64{},
		ActiveCountsByTier: map[types.WalletTier]int{types.Tier3: 1},
	})
	req := basicRequest()
	req.Tier = types.Tier3

	d := m.Evaluate(req, time.Now())

	if d.Passed || d.Reason != reject.RiskWalletTierLimit {
		t.Errorf("Decision = %+v, want risk_wallet_tier_limit", d)
	}
}

func TestEvaluateExposureCap(t *testing.T) {
	// Portfolio.exposure_by_token[mint]=1000; equity=10000;
	// max_exposure_per_token_pct=10 -> headroom is exactly 0.
	m := newManager(types.PortfolioState{
		Equity:          10000,
		ExposureByToken: map[string]float64{"mint1": 1000},
	})

	d := m.Evaluate(basicRequest(), time.Now())

	if d.Passed || d.Reason != reject.RiskMaxExposure {
		t.Errorf("Decision = %+v, want risk_max_exposure", d)
	}
}

func TestEvaluateAggressiveSafetyMissingDataFailsSafe(t *testing.T) {
	m := newManager(types.PortfolioState{Equity: 10000, ExposureByToken: map[string]float64{}})
	req := basicRequest()
	req.IsAggressive = true
	req.HasSnapshot = false

	d := m.Evaluate(req, time.Now())

	if d.Passed || d.Reason != reject.RiskKillSwitch {
		t.Errorf("Decision = %+v, want fail-safe reject on missing snapshot", d)
	}
}

func TestEvaluateAggressiveSafetyBelowThresholdsRejects(t *testing.T) {
	m := newManager(types.PortfolioState{Equity: 10000, ExposureByToken: map[string]float64{}})
	req := basicRequest()
	req.IsAggressive = true
	req.Winrate30d = 0.1 // below MinWalletWinrate 0.6

	d := m.Evaluate(req, time.Now())

	if d.Passed {
		t.Error("Passed = true, want reject for low winrate under aggressive safety")
	}
}

func TestEvaluateAggressiveSafetyPassesAboveThresholds(t *testing.T) {
	m := newManager(types.PortfolioState{Equity: 10000, ExposureByToken: map[string]float64{}})
	req := basicRequest()
	req.IsAggressive = true

	d := m.Evaluate(req, time.Now())

	if !d.Passed {
		t.Errorf("Passed = false, reason = %v, want pass (all aggressive thresholds cleared)", d.Reason)
	}
}

func TestKellyFractionMonotonicInWinP(t *testing.T) {
	b := 0.10 / 0.05 // tp/|sl| = 2
	prev := KellyFraction(1.0/(b+1)+0.001, 0.10, -0.05)
	for _, p := range []float64{0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0} {
		f := KellyFraction(p, 0.10, -0.05)
		if f < prev-1e-9 {
			t.Errorf("KellyFraction not monotonic: p=%v f=%v < prev=%v", p, f, prev)
		}
		prev = f
	}
}

func TestKellyFractionDegenerateSLReturnsZero(t *testing.T) {
	if f := KellyFraction(0.6, 0.10, 0); f != 0 {
		t.Errorf("KellyFraction with sl=0 = %v, want 0", f)
	}
}

func TestSizeClampedToMinMaxPosPct(t *testing.T) {
	m := newManager(types.PortfolioState{Equity: 1_000_000, ExposureByToken: map[string]float64{}})
	req := basicRequest()
	req.WinP = 0.99 // would want an enormous Kelly fraction

	d := m.Evaluate(req, time.Now())

	maxAllowed := 1_000_000 * (testRiskConfig().Sizing.MaxPosPct / 100)
	sizeFloat, _ := d.SizeQuote.Float64()
	if sizeFloat > maxAllowed+0.01 {
		t.Errorf("SizeQuote = %v, want clamped to max_pos_pct ceiling %v", sizeFloat, maxAllowed)
	}
}

func TestOnCloseTracksCooldownAfterConsecutiveLosses(t *testing.T) {
	m := newManager(types.PortfolioState{Equity: 10000, ExposureByToken: map[string]float64{}})

	for i := 0; i < 3; i++ {
		m.OnClose("mint1", types.Tier1, 100, -50)
	}

	snap := m.Snapshot()
	if snap.ConsecutiveLosses != 3 {
		t.Errorf("ConsecutiveLosses = %d, want 3", snap.ConsecutiveLosses)
	}
	if !snap.CooldownUntil.After(time.Now()) {
		t.Error("CooldownUntil not set after 3 consecutive losses")
	}
}

func TestOnCloseResetsConsecutiveLossesOnWin(t *testing.T) {
	m := newManager(types.PortfolioState{Equity: 10000, ExposureByToken: map[string]float64{}})

	m.OnClose("mint1", types.Tier1, 100, -50)
	m.OnClose("mint1", types.Tier1, 100, 200)

	if got := m.Snapshot().ConsecutiveLosses; got != 0 {
		t.Errorf("ConsecutiveLosses = %d, want 0 after a win", got)
	}
}

func TestOnOpenAndOnCloseTrackExposure(t *testing.T) {
	m := newManager(types.PortfolioState{Equity: 10000, ExposureByToken: map[string]float64{}})

	m.OnOpen("mint1", types.Tier1, 500)
	if got := m.Snapshot().ExposureByToken["mint1"]; got != 500 {
		t.Errorf("exposure after open = %v, want 500", got)
	}

	m.OnClose("mint1", types.Tier1, 500, 25)
	if got := m.Snapshot().ExposureByToken["mint1"]; got != 0 {
		t.Errorf("exposure after close = %v, want 0", got)
	}
}
