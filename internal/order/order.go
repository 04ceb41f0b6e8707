// Package order implements the bracket order state machine (C10): each
// position advances through ACTIVE -> PARTIAL -> CLOSED in response to
// price ticks, partial fills, and forced closes. Every transition out of
// CLOSED is a no-op, so callers can safely re-deliver the same event.
package order

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/sonarwatch/copytrade-engine/pkg/types"
)

// New constructs a freshly opened ACTIVE position. tp/sl prices are
// computed once, here, from side and the mode's tp_pct/sl_pct — they never
// change for the life of the position.
func New(signalID, mint string, side types.Side, entryPrice, sizeQuote decimal.Decimal, entryTs time.Time, ttlSec int, tpPct, slPct float64) types.Position {
	tp, sl := bracketPrices(side, entryPrice, tpPct, slPct)
	return types.Position{
		SignalID:      signalID,
		Mint:          mint,
		Side:          side,
		EntryPrice:    entryPrice,
		SizeQuote:     sizeQuote,
		EntryTs:       entryTs,
		TTLSec:        ttlSec,
		TPPrice:       tp,
		SLPrice:       sl,
		Status:        types.StatusActive,
		RemainingSize: sizeQuote,
		ExpectedSize:  sizeQuote,
	}
}

// bracketPrices computes TP/SL prices symmetrically for both sides: a BUY
// profits on price increase and stops on decrease; a SELL is the mirror.
func bracketPrices(side types.Side, entryPrice decimal.Decimal, tpPct, slPct float64) (tp, sl decimal.Decimal) {
	tpFactor := decimal.NewFromFloat(1 + tpPct)
	slFactor := decimal.NewFromFloat(1 + slPct) // slPct is negative
	if side == types.SELL {
		tpFactor = decimal.NewFromFloat(1 - tpPct)
		slFactor = decimal.NewFromFloat(1 - slPct)
	}
	return entryPrice.Mul(tpFactor), entryPrice.Mul(slFactor)
}

// IsTPHit reports whether price has reached the take-profit level for side.
func IsTPHit(side types.Side, price, tpPrice decimal.Decimal) bool {
	if side == types.BUY {
		return price.GreaterThanOrEqual(tpPrice)
	}
	return price.LessThanOrEqual(tpPrice)
}

// IsSLHit reports whether price has reached the stop-loss level for side.
func IsSLHit(side types.Side, price, slPrice decimal.Decimal) bool {
	if side == types.BUY {
		return price.LessThanOrEqual(slPrice)
	}
	return price.GreaterThanOrEqual(slPrice)
}

// Tick advances pos in response to a price observation at now. Terminal
// positions are returned unchanged. When both TP and SL match in the same
// tick (a gap through both levels), SL wins — safety first, per spec.md
// §4.9's tie-break invariant.
func Tick(pos types.Position, price decimal.Decimal, now time.Time) types.Position {
	if pos.Status == types.StatusClosed {
		return pos
	}

	slHit := IsSLHit(pos.Side, price, pos.SLPrice)
	tpHit := IsTPHit(pos.Side, price, pos.TPPrice)

	switch {
	case slHit:
		return closeAt(pos, types.CloseSL, price, now)
	case tpHit:
		return closeAt(pos, types.CloseTP, price, now)
	case now.Sub(pos.EntryTs) > time.Duration(pos.TTLSec)*time.Second:
		return closeAt(pos, types.CloseTTL, price, now)
	default:
		return pos
	}
}

// PartialFill records a partial fill of size filled out of the position's
// expected size, moving it to PARTIAL if not yet fully filled. A fill that
// reaches ExpectedSize leaves the position ACTIVE (fully filled is not a
// partial state).
func PartialFill(pos types.Position, filled decimal.Decimal) types.Position {
	if pos.Status == types.StatusClosed {
		return pos
	}

	pos.FilledSize = pos.FilledSize.Add(filled)
	pos.RemainingSize = pos.ExpectedSize.Sub(pos.FilledSize)
	if pos.RemainingSize.IsNegative() {
		pos.RemainingSize = decimal.Zero
	}

	if pos.RemainingSize.IsPositive() {
		pos.Status = types.StatusPartial
	} else {
		pos.Status = types.StatusActive
	}
	return pos
}

// ForceClose closes pos with reason at price, regardless of current state.
// A no-op if pos is already CLOSED — closing an already-closed position
// must never overwrite its original close reason.
func ForceClose(pos types.Position, reason types.CloseReason, price decimal.Decimal, now time.Time) types.Position {
	if pos.Status == types.StatusClosed {
		return pos
	}
	return closeAt(pos, reason, price, now)
}

func closeAt(pos types.Position, reason types.CloseReason, price decimal.Decimal, now time.Time) types.Position {
	pos.Status = types.StatusClosed
	pos.CloseReason = reason
	pos.ClosedAt = now
	return pos
}
