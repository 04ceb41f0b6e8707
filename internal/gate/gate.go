// Package gate implements the ordered gate chain (C4): a deterministic
// pipeline of pass/reject checks that runs before any trade is sized. The
// first failing gate short-circuits and yields exactly one reject tag from
// internal/reject's closed set, matching spec.md §4.3.
package gate

import (
	"sync"

	"github.com/sonarwatch/copytrade-engine/internal/config"
	"github.com/sonarwatch/copytrade-engine/internal/panicguard"
	"github.com/sonarwatch/copytrade-engine/internal/reject"
	"github.com/sonarwatch/copytrade-engine/pkg/types"
)

// WalletPolicy answers whether a wallet is enabled and allowed for a mode.
// The core never hardcodes allow-list membership; a concrete policy is
// wired in by the caller (e.g. backed by the discovery stage's output).
type WalletPolicy interface {
	Allowed(wallet string) bool
}

// AllowAll is a WalletPolicy that blocks nothing — the default when no
// allow-list is configured.
type AllowAll struct{}

func (AllowAll) Allowed(string) bool { return true }

// Decision is the gate chain's output. If Passed is true, Reasons contains
// only informational tags (honeypot_check_skipped); ProbeCapUSD is set
// when the probe gate clamped order size.
type Decision struct {
	Passed      bool
	Reasons     []reject.Reason
	ProbeCapUSD float64 // 0 means "no cap"
}

// probeTracker records, per mint, whether a prior probe trade has already
// proven out. Once a mint passes, the probe gate stops capping order size
// for it (spec.md §4.3 item 5) — without this the cap would apply forever,
// since nothing else observes a probe trade's outcome.
type probeTracker struct {
	mu     sync.Mutex
	passed map[string]bool
}

func newProbeTracker() *probeTracker {
	return &probeTracker{passed: make(map[string]bool)}
}

func (t *probeTracker) markPassed(mint string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.passed[mint] = true
}

func (t *probeTracker) hasPassed(mint string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.passed[mint]
}

// Chain runs the ordered gate chain over a trade, its token snapshot, and
// the leader wallet's profile (if any).
type Chain struct {
	sentinel *panicguard.Sentinel
	wallets  WalletPolicy
	gates    config.TokenProfile
	probes   *probeTracker
}

// New builds a gate chain. wallets may be nil, in which case every wallet
// passes the allow-list gate.
func New(sentinel *panicguard.Sentinel, wallets WalletPolicy, gates config.TokenProfile) *Chain {
	if wallets == nil {
		wallets = AllowAll{}
	}
	return &Chain{sentinel: sentinel, wallets: wallets, gates: gates, probes: newProbeTracker()}
}

// MarkProbePassed records that mint has proven itself (its probe-capped
// trade, or any trade, closed at take-profit) and lifts the probe cap for
// every subsequent Evaluate call against it. The position monitor calls
// this from its close path.
func (c *Chain) MarkProbePassed(mint string) {
	c.probes.markPassed(mint)
}

// Evaluate runs every gate in order against trade/snapshot. No wallet
// profile is read here; the allow-list gate looks trade.Leader up in the
// configured wallet policy.
func (c *Chain) Evaluate(trade types.TradeEvent, snapshot types.TokenSnapshot) Decision {
	if c.sentinel != nil && c.sentinel.IsActive() {
		return reject1(reject.PanicActive)
	}

	if !c.wallets.Allowed(trade.Leader) {
		return reject1(reject.WalletTierBlocked)
	}

	if c.gates.Gates.MinLiquidityUSD > 0 && snapshot.LiquidityUSD < c.gates.Gates.MinLiquidityUSD {
		return reject1(reject.MinLiquidityFail)
	}
	if c.gates.Gates.MinVolume24hUSD > 0 && snapshot.Volume24hUSD < c.gates.Gates.MinVolume24hUSD {
		return reject1(reject.MinVolumeFail)
	}
	if c.gates.Gates.MaxSpreadBps > 0 && snapshot.SpreadBps > c.gates.Gates.MaxSpreadBps {
		return reject1(reject.SpreadTooHigh)
	}

	reasons := make([]reject.Reason, 0, 1)
	if c.gates.Security.RequireHoneypotSafe {
		if snapshot.Extra.Security.IsHoneypot {
			return reject1(reject.HoneypotDetected)
		}
	} else {
		reasons = append(reasons, reject.HoneypotCheckSkipped)
	}
	if snapshot.Extra.Security.FreezeAuthorityPresent {
		return reject1(reject.FreezeAuthorityPresent)
	}
	if snapshot.Extra.Security.MintAuthorityPresent {
		return reject1(reject.MintAuthorityPresent)
	}
	if c.gates.Security.MaxTopHoldersPct > 0 && snapshot.Top10HoldersPct > c.gates.Security.MaxTopHoldersPct {
		return reject1(reject.TopHoldersConcentrated)
	}

	decision := Decision{Passed: true, Reasons: reasons}
	if c.gates.Probe.Enabled && !c.probes.hasPassed(trade.Mint) {
		decision.ProbeCapUSD = c.gates.Probe.MaxProbeCostUSD
	}
	return decision
}

func reject1(r reject.Reason) Decision {
	return Decision{Passed: false, Reasons: []reject.Reason{r}}
}
