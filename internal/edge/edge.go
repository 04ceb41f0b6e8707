// Package edge implements the edge/EV calculator (C6) and the regime
// adjuster (C7). Both are pure functions over already-gathered inputs: no
// I/O, no shared state, so every scenario in spec.md §8 reduces to a table
// of float inputs and expected outputs.
package edge

import (
	"fmt"
	"math"

	"github.com/sonarwatch/copytrade-engine/internal/config"
	"github.com/sonarwatch/copytrade-engine/pkg/types"
)

// Params bundles the mode-specific parameters the calculator needs.
type Params struct {
	TPPct  float64
	SLPct  float64 // negative, e.g. -0.05
	PModel float64 // optional external scorer probability; read only when HasPModel is true
	HasPModel bool
}

// Result carries both the raw and regime-adjusted edge in basis points.
type Result struct {
	WinP       float64
	EdgeRawBps float64
	EdgeFinalBps float64
	Passed     bool
}

// Calculate computes raw_edge per spec.md §4.5, then applies the regime
// adjustment per §4.6, and compares edge_final against min_edge_bps.
// Intermediate math is float64 throughout; rounding to an integer bps value
// happens only at the final boundary, half-to-even, via RoundHalfEven.
func Calculate(snapshot types.TokenSnapshot, profile types.WalletProfile, hasProfile bool, params Params, signals config.SignalsConfig, regime RegimeInput) Result {
	winP := params.PModel
	if !params.HasPModel {
		if hasProfile {
			winP = profile.Winrate30d
		} else {
			winP = 0
		}
	}

	rawEdge := (winP*params.TPPct - (1-winP)*math.Abs(params.SLPct)) * 10000
	rawEdge -= snapshot.SpreadBps

	finalEdge := Adjust(rawEdge, regime)

	return Result{
		WinP:         winP,
		EdgeRawBps:   RoundHalfEven(rawEdge),
		EdgeFinalBps: RoundHalfEven(finalEdge),
		Passed:       finalEdge >= signals.MinEdgeBps,
	}
}

// RegimeInput is the externally supplied risk-regime sample the adjuster
// multiplies into raw edge.
type RegimeInput struct {
	Enabled bool
	Alpha   float64 // [0, 0.5]
	Regime  float64 // [-1, +1]
}

// Adjust applies edge_final = edge_raw * (1 + alpha*risk_regime). When
// disabled, edge_final == edge_raw unchanged. Panics if alpha or regime are
// out of their documented ranges — this is an init-time invariant, not a
// runtime data condition, so a panic (caught once at startup wiring) is the
// right failure mode rather than a silently wrong sign flip.
func Adjust(rawEdgeBps float64, r RegimeInput) float64 {
	if !r.Enabled {
		return rawEdgeBps
	}
	if r.Alpha < 0 || r.Alpha > 0.5 {
		panic(fmt.Sprintf("edge: regime alpha %v out of [0, 0.5]", r.Alpha))
	}
	if r.Regime < -1 || r.Regime > 1 {
		panic(fmt.Sprintf("edge: risk_regime %v out of [-1, 1]", r.Regime))
	}
	return rawEdgeBps * (1 + r.Alpha*r.Regime)
}

// RoundHalfEven rounds x to the nearest integer, breaking exact .5 ties to
// the nearest even integer (banker's rounding), per the basis-points
// boundary contract in spec.md §4.5.
func RoundHalfEven(x float64) float64 {
	floor := math.Floor(x)
	diff := x - floor
	switch {
	case diff < 0.5:
		return floor
	case diff > 0.5:
		return floor + 1
	default:
		if math.Mod(floor, 2) == 0 {
			return floor
		}
		return floor + 1
	}
}
