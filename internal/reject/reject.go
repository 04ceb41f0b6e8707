// Package reject defines the closed set of machine-readable rejection tags
// (C1). Every reject path in the pipeline — gate chain, risk engine, edge
// calculator, idempotency layer, partial-fill handler, reorg guard, panic
// sentinel — tags its outcome with exactly one Reason from this set. An
// unknown tag reaching the signals stream is a bug, not a valid outcome.
package reject

import "fmt"

// Reason is a closed-set rejection tag.
type Reason string

const (
	MinLiquidityFail      Reason = "min_liquidity_fail"
	MinVolumeFail         Reason = "min_volume_fail"
	SpreadTooHigh         Reason = "spread_too_high"
	HoneypotDetected      Reason = "honeypot_detected"
	FreezeAuthorityPresent Reason = "freeze_authority_present"
	MintAuthorityPresent  Reason = "mint_authority_present"
	TopHoldersConcentrated Reason = "top_holders_concentrated"
	WalletTierBlocked     Reason = "wallet_tier_blocked"
	RiskMaxPositions      Reason = "risk_max_positions"
	RiskWalletTierLimit   Reason = "risk_wallet_tier_limit"
	RiskMaxExposure       Reason = "risk_max_exposure"
	RiskKillSwitch        Reason = "risk_kill_switch"
	RiskCooldown          Reason = "risk_cooldown"
	EVBelowThreshold      Reason = "ev_below_threshold"
	DuplicateExecution    Reason = "duplicate_execution"
	TxDropped             Reason = "tx_dropped"
	TxReorged             Reason = "tx_reorged"
	PartialFillUnresolved Reason = "partial_fill_unresolved"
	PartialFillTimeout    Reason = "partial_fill_timeout"
	JitoBundleRejected    Reason = "jito_bundle_rejected"
	PanicActive           Reason = "panic_active"

	// Informational tags: never cause a gate to fail, only annotate a pass.
	HoneypotCheckSkipped Reason = "honeypot_check_skipped"
	NoProfile            Reason = "no_profile"
)

// known is the closed set. Any tag not present here is an invariant fault.
var known = map[Reason]bool{
	MinLiquidityFail: true, MinVolumeFail: true, SpreadTooHigh: true,
	HoneypotDetected: true, FreezeAuthorityPresent: true, MintAuthorityPresent: true,
	TopHoldersConcentrated: true, WalletTierBlocked: true, RiskMaxPositions: true,
	RiskWalletTierLimit: true, RiskMaxExposure: true, RiskKillSwitch: true,
	RiskCooldown: true, EVBelowThreshold: true, DuplicateExecution: true,
	TxDropped: true, TxReorged: true, PartialFillUnresolved: true,
	PartialFillTimeout: true, JitoBundleRejected: true, PanicActive: true,
	HoneypotCheckSkipped: true, NoProfile: true,
}

// Known reports whether r is a member of the closed reject-reason set.
func Known(r Reason) bool {
	return known[r]
}

// InvariantFault is raised when code attempts to emit a tag outside the
// closed set. Per spec.md §7 this is fatal in debug builds and demoted to
// a reject in production; callers choose which via Demote.
type InvariantFault struct {
	Tag     Reason
	Context string
}

func (f InvariantFault) Error() string {
	return fmt.Sprintf("invariant fault: unknown reject tag %q (%s)", f.Tag, f.Context)
}

// Validate returns an InvariantFault if r is not in the closed set,
// otherwise nil.
func Validate(r Reason, context string) error {
	if !Known(r) {
		return InvariantFault{Tag: r, Context: context}
	}
	return nil
}

// Demote converts an InvariantFault into a safe fallback reason for
// production builds, per the error taxonomy in spec.md §7.
func Demote(err error) Reason {
	if _, ok := err.(InvariantFault); ok {
		return RiskKillSwitch // fail safe: treat an unexplainable fault as a halt
	}
	return ""
}
