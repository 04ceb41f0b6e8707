// Package partial implements the partial-fill handler (C11): it tracks
// expected-vs-filled quantity for each in-flight signal and, if a position
// sits unfilled past its timeout, forces a close and records an audit
// entry carrying the signal id and trace id. The transaction signature
// passed to Track is kept with the watch but is not written to the audit
// entry.
package partial

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sonarwatch/copytrade-engine/internal/audit"
	"github.com/sonarwatch/copytrade-engine/internal/order"
	"github.com/sonarwatch/copytrade-engine/pkg/types"
)

// Adjustment describes a partial-fill timeout adjustment. CheckTimeouts
// does not build one: it appends an audit.Entry with the signal id, trace
// id, expected size (Before) and filled size (After), and no tx signature.
type Adjustment struct {
	SignalID string
	TxSig    string
	TraceID  string
	Expected decimal.Decimal
	Filled   decimal.Decimal
}

// Handler tracks open signals awaiting a full fill and forces a close once
// timeout elapses on one still sitting in PARTIAL. Track is called from
// the trade-worker goroutines; CheckTimeouts/Watching are called from the
// separate position-monitor goroutine (Update has no caller outside the
// tests), so watching needs its own
// lock, the same pattern as internal/audit.Log's entries ring.
type Handler struct {
	timeout time.Duration
	log     *audit.Log

	mu       sync.Mutex
	watching map[string]watch
}

type watch struct {
	pos       types.Position
	txSig     string
	traceID   string
	deadline  time.Time
}

// New creates a partial-fill handler with the given per-signal timeout.
func New(timeout time.Duration, log *audit.Log) *Handler {
	return &Handler{timeout: timeout, log: log, watching: make(map[string]watch)}
}

// Track registers pos for partial-fill timeout tracking, starting the
// clock at now.
func (h *Handler) Track(pos types.Position, txSig, traceID string, now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.watching[pos.SignalID] = watch{pos: pos, txSig: txSig, traceID: traceID, deadline: now.Add(h.timeout)}
}

// Update records a partial or full fill against the tracked position,
// advancing its state machine. Returns the updated position; if it's now
// fully filled (back to ACTIVE) or CLOSED, the signal is no longer tracked.
func (h *Handler) Update(signalID string, filled decimal.Decimal) (types.Position, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	w, ok := h.watching[signalID]
	if !ok {
		return types.Position{}, false
	}

	w.pos = order.PartialFill(w.pos, filled)
	if w.pos.Status != types.StatusPartial {
		delete(h.watching, signalID)
	} else {
		h.watching[signalID] = w
	}
	return w.pos, true
}

// CheckTimeouts scans every tracked signal still in PARTIAL whose deadline
// has passed as of now, force-closes it at closePrice, records an audit
// adjustment, and stops tracking it. Returns the closed positions.
func (h *Handler) CheckTimeouts(now time.Time, closePrice decimal.Decimal) []types.Position {
	h.mu.Lock()
	defer h.mu.Unlock()

	var closed []types.Position

	for signalID, w := range h.watching {
		if w.pos.Status != types.StatusPartial || now.Before(w.deadline) {
			continue
		}

		finalPos := order.ForceClose(w.pos, types.ClosePartialTimeout, closePrice, now)
		closed = append(closed, finalPos)

		if h.log != nil {
			h.log.Append(audit.Entry{
				Timestamp: now,
				SignalID:  signalID,
				TraceID:   w.traceID,
				Reason:    "partial_fill_timeout",
				Before:    mustFloat(w.pos.ExpectedSize),
				After:     mustFloat(w.pos.FilledSize),
				Mint:      w.pos.Mint,
			})
		}

		delete(h.watching, signalID)
	}

	return closed
}

// Watching reports whether signalID is currently tracked.
func (h *Handler) Watching(signalID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.watching[signalID]
	return ok
}

func mustFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
