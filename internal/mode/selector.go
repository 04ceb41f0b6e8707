// Package mode implements the mode selector (C5): a total, deterministic
// function mapping (wallet profile, token snapshot, impulse features) to a
// trading mode id and the reason it was chosen. No path through Select can
// fail to return a mode — the closed world spec.md §4.4 requires.
package mode

import (
	"sort"

	"github.com/sonarwatch/copytrade-engine/internal/config"
	"github.com/sonarwatch/copytrade-engine/internal/reject"
	"github.com/sonarwatch/copytrade-engine/pkg/types"
)

// Decision is the mode selector's output: the chosen mode id and why.
type Decision struct {
	ModeID string
	Reason reject.Reason // "" when the selection needed no special-case reason
}

// Selector buckets wallets into modes by median hold time, with an
// aggressive upgrade when impulse features clear the configured thresholds.
type Selector struct {
	cfg config.SelectorConfig

	// orderedBuckets is cfg.HoldThresholdsSec sorted ascending by threshold,
	// precomputed once so Select never re-sorts on the hot path.
	orderedBuckets []bucket
}

type bucket struct {
	modeID      string
	maxHoldSecs int
}

// New builds a selector from the mode-selector config section.
func New(cfg config.SelectorConfig) *Selector {
	buckets := make([]bucket, 0, len(cfg.HoldThresholdsSec))
	for modeID, threshold := range cfg.HoldThresholdsSec {
		buckets = append(buckets, bucket{modeID: modeID, maxHoldSecs: threshold})
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].maxHoldSecs < buckets[j].maxHoldSecs })

	return &Selector{cfg: cfg, orderedBuckets: buckets}
}

// Select returns the mode for trade given the wallet's profile (hasProfile
// false if none is on file) and token snapshot (hasSnapshot false if the
// store returned a fallback with no real data).
func (s *Selector) Select(trade types.TradeEvent, profile types.WalletProfile, hasProfile bool, hasSnapshot bool) Decision {
	if !hasProfile {
		return Decision{ModeID: s.cfg.DefaultMode, Reason: reject.NoProfile}
	}

	base := s.bucketByHoldTime(profile.MedianHoldSec)

	if !s.cfg.EnableAggressive || !hasSnapshot {
		return Decision{ModeID: base}
	}

	if trade.ImpulseCount >= s.cfg.AggressiveMinImpulseCount &&
		trade.ImpulseMaxPct >= s.cfg.AggressiveMinImpulseMaxPct {
		return Decision{ModeID: base + "_aggr"}
	}

	return Decision{ModeID: base}
}

// bucketByHoldTime finds the smallest configured threshold that is >= the
// wallet's median hold time; if every bucket's threshold is exceeded it
// returns the bucket with the largest threshold, and it returns the
// configured default mode only when no buckets are configured.
func (s *Selector) bucketByHoldTime(medianHoldSec int) string {
	for _, b := range s.orderedBuckets {
		if medianHoldSec <= b.maxHoldSecs {
			return b.modeID
		}
	}
	if len(s.orderedBuckets) > 0 {
		return s.orderedBuckets[len(s.orderedBuckets)-1].modeID
	}
	return s.cfg.DefaultMode
}
