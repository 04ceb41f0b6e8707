package gate

import (
	"io"
	"log/slog"
	"testing"

	"github.com/sonarwatch/copytrade-engine/internal/config"
	"github.com/sonarwatch/copytrade-engine/internal/panicguard"
	"github.com/sonarwatch/copytrade-engine/internal/reject"
	"github.com/sonarwatch/copytrade-engine/pkg/types"
)

func testSentinel(t *testing.T) *panicguard.Sentinel {
	t.Helper()
	return panicguard.New("/nonexistent-sentinel-path", slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func happyGates() config.TokenProfile {
	return config.TokenProfile{
		Gates: config.TokenGates{
			MinLiquidityUSD: 10000,
			MinVolume24hUSD: 50000,
			MaxSpreadBps:    50,
		},
		Security: config.TokenSecurity{
			RequireHoneypotSafe: true,
			MaxTopHoldersPct:    60,
		},
	}
}

func happySnapshot() types.TokenSnapshot {
	return types.TokenSnapshot{
		LiquidityUSD:    50000,
		Volume24hUSD:    200000,
		SpreadBps:       10,
		Top10HoldersPct: 30,
	}
}

type blockWallet struct{ blocked string }

func (b blockWallet) Allowed(wallet string) bool { return wallet != b.blocked }

func TestEvaluatePassesHappyPath(t *testing.T) {
	c := New(testSentinel(t), nil, happyGates())
	trade := types.TradeEvent{Leader: "leader1"}

	d := c.Evaluate(trade, happySnapshot())

	if !d.Passed {
		t.Fatalf("Passed = false, reasons = %v", d.Reasons)
	}
	for _, r := range d.Reasons {
		if r != reject.HoneypotCheckSkipped && r != reject.NoProfile {
			t.Errorf("unexpected non-informational reason on pass: %v", r)
		}
	}
}

func TestEvaluatePanicSentinelBlocksFirst(t *testing.T) {
	sentinel := testSentinel(t)
	sentinel.Trip("test")
	c := New(sentinel, nil, happyGates())

	d := c.Evaluate(types.TradeEvent{Leader: "leader1"}, happySnapshot())

	if d.Passed {
		t.Fatal("Passed = true, want panic gate to short-circuit")
	}
	if len(d.Reasons) != 1 || d.Reasons[0] != reject.PanicActive {
		t.Errorf("Reasons = %v, want [panic_active]", d.Reasons)
	}
}

func TestEvaluateWalletBlocked(t *testing.T) {
	c := New(testSentinel(t), blockWallet{blocked: "bad-leader"}, happyGates())

	d := c.Evaluate(types.TradeEvent{Leader: "bad-leader"}, happySnapshot())

	if d.Passed || d.Reasons[0] != reject.WalletTierBlocked {
		t.Errorf("Decision = %+v, want single wallet_tier_blocked reject", d)
	}
}

func TestEvaluateLiquidityGate(t *testing.T) {
	c := New(testSentinel(t), nil, happyGates())
	snap := happySnapshot()
	snap.LiquidityUSD = 100

	d := c.Evaluate(types.TradeEvent{Leader: "leader1"}, snap)

	if d.Passed || d.Reasons[0] != reject.MinLiquidityFail {
		t.Errorf("Decision = %+v, want min_liquidity_fail", d)
	}
}

func TestEvaluateSpreadGate(t *testing.T) {
	c := New(testSentinel(t), nil, happyGates())
	snap := happySnapshot()
	snap.SpreadBps = 1000

	d := c.Evaluate(types.TradeEvent{Leader: "leader1"}, snap)

	if d.Passed || d.Reasons[0] != reject.SpreadTooHigh {
		t.Errorf("Decision = %+v, want spread_too_high", d)
	}
}

func TestEvaluateHoneypotDetected(t *testing.T) {
	c := New(testSentinel(t), nil, happyGates())
	snap := happySnapshot()
	snap.Extra.Security.IsHoneypot = true

	d := c.Evaluate(types.TradeEvent{Leader: "leader1"}, snap)

	if d.Passed || d.Reasons[0] != reject.HoneypotDetected {
		t.Errorf("Decision = %+v, want honeypot_detected", d)
	}
}

func TestEvaluateHoneypotCheckSkippedWhenDisabled(t *testing.T) {
	gates := happyGates()
	gates.Security.RequireHoneypotSafe = false
	c := New(testSentinel(t), nil, gates)
	snap := happySnapshot()
	snap.Extra.Security.IsHoneypot = true // would fail if the check ran

	d := c.Evaluate(types.TradeEvent{Leader: "leader1"}, snap)

	if !d.Passed {
		t.Fatalf("Passed = false, want true when require_honeypot_safe is off")
	}
	found := false
	for _, r := range d.Reasons {
		if r == reject.HoneypotCheckSkipped {
			found = true
		}
	}
	if !found {
		t.Errorf("Reasons = %v, want honeypot_check_skipped present", d.Reasons)
	}
}

func TestEvaluateFreezeAndMintAuthority(t *testing.T) {
	c := New(testSentinel(t), nil, happyGates())

	freeze := happySnapshot()
	freeze.Extra.Security.FreezeAuthorityPresent = true
	d := c.Evaluate(types.TradeEvent{Leader: "leader1"}, freeze)
	if d.Passed || d.Reasons[0] != reject.FreezeAuthorityPresent {
		t.Errorf("freeze authority: Decision = %+v", d)
	}

	mint := happySnapshot()
	mint.Extra.Security.MintAuthorityPresent = true
	d = c.Evaluate(types.TradeEvent{Leader: "leader1"}, mint)
	if d.Passed || d.Reasons[0] != reject.MintAuthorityPresent {
		t.Errorf("mint authority: Decision = %+v", d)
	}
}

func TestEvaluateTopHoldersConcentrated(t *testing.T) {
	c := New(testSentinel(t), nil, happyGates())
	snap := happySnapshot()
	snap.Top10HoldersPct = 95

	d := c.Evaluate(types.TradeEvent{Leader: "leader1"}, snap)

	if d.Passed || d.Reasons[0] != reject.TopHoldersConcentrated {
		t.Errorf("Decision = %+v, want top_holders_concentrated", d)
	}
}

func TestEvaluateProbeGateCapsSize(t *testing.T) {
	gates := happyGates()
	gates.Probe.Enabled = true
	gates.Probe.MaxProbeCostUSD = 25
	c := New(testSentinel(t), nil, gates)

	d := c.Evaluate(types.TradeEvent{Leader: "leader1"}, happySnapshot())

	if !d.Passed {
		t.Fatalf("Passed = false, reasons = %v", d.Reasons)
	}
	if d.ProbeCapUSD != 25 {
		t.Errorf("ProbeCapUSD = %v, want 25", d.ProbeCapUSD)
	}
}

func TestEvaluateProbeCapLiftsAfterMarkProbePassed(t *testing.T) {
	gates := happyGates()
	gates.Probe.Enabled = true
	gates.Probe.MaxProbeCostUSD = 25
	c := New(testSentinel(t), nil, gates)
	trade := types.TradeEvent{Leader: "leader1", Mint: "mint1"}

	d := c.Evaluate(trade, happySnapshot())
	if d.ProbeCapUSD != 25 {
		t.Fatalf("ProbeCapUSD = %v, want 25 before the mint has proven itself", d.ProbeCapUSD)
	}

	c.MarkProbePassed("mint1")

	d = c.Evaluate(trade, happySnapshot())
	if d.ProbeCapUSD != 0 {
		t.Errorf("ProbeCapUSD = %v, want 0 after MarkProbePassed", d.ProbeCapUSD)
	}
}

func TestEvaluateProbeCapStaysAppliedForOtherMints(t *testing.T) {
	gates := happyGates()
	gates.Probe.Enabled = true
	gates.Probe.MaxProbeCostUSD = 25
	c := New(testSentinel(t), nil, gates)

	c.MarkProbePassed("mint1")

	d := c.Evaluate(types.TradeEvent{Leader: "leader1", Mint: "mint2"}, happySnapshot())
	if d.ProbeCapUSD != 25 {
		t.Errorf("ProbeCapUSD = %v, want 25 for a mint that hasn't proven itself", d.ProbeCapUSD)
	}
}
