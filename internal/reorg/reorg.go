// Package reorg implements the reorg guard (C12): it tracks submitted
// transaction signatures, polls their chain status, and classifies each as
// FINALIZED, CONFIRMED, DROPPED, or REORGED. A DROPPED tx past its grace
// period yields tx_dropped; a REORGED tx yields a rollback adjustment plus
// tx_reorged.
package reorg

import (
	"context"
	"sync"
	"time"

	"github.com/sonarwatch/copytrade-engine/internal/audit"
	"github.com/sonarwatch/copytrade-engine/internal/reject"
)

// Status is the chain-observed commitment state of a submitted transaction.
type Status string

const (
	StatusFinalized Status = "FINALIZED"
	StatusConfirmed Status = "CONFIRMED"
	StatusDropped   Status = "DROPPED"
	StatusReorged   Status = "REORGED"
)

// StatusChecker is the narrow chain-RPC collaborator the guard polls. A
// concrete implementation wraps the router's RPC client; tests use a stub.
type StatusChecker interface {
	CheckStatus(ctx context.Context, txHash string) (Status, error)
}

// Submission is one tracked transaction awaiting a terminal classification.
type Submission struct {
	TxHash      string
	SignalID    string
	TraceID     string
	Mint        string
	SubmittedAt time.Time
	SizeUSD     float64
}

// Guard tracks in-flight submissions and classifies them on each Poll.
// Track runs on the trade-worker goroutines while Poll runs on the
// separate reorg-poll ticker goroutine, so pending needs its own lock.
type Guard struct {
	checker     StatusChecker
	log         *audit.Log
	gracePeriod time.Duration

	mu      sync.Mutex
	pending map[string]Submission
}

// New creates a reorg guard. gracePeriod is how long a DROPPED
// classification must persist (measured from submission time) before it is
// treated as final, per spec.md §4.11.
func New(checker StatusChecker, log *audit.Log, gracePeriod time.Duration) *Guard {
	return &Guard{checker: checker, log: log, gracePeriod: gracePeriod, pending: make(map[string]Submission)}
}

// Track begins watching a submitted transaction.
func (g *Guard) Track(sub Submission) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pending[sub.TxHash] = sub
}

// Outcome is what Poll reports for one transaction this round.
type Outcome struct {
	Submission Submission
	Status     Status
	Reason     reject.Reason // set only for DROPPED (past grace) or REORGED
}

// Poll checks every pending submission's status as of now. FINALIZED and
// CONFIRMED transactions are removed from pending and reported with no
// reject reason; DROPPED transactions younger than the grace period stay
// pending in case they reappear. DROPPED past grace and REORGED are terminal: they
// are removed from pending and reported with a reject reason plus an audit
// entry for REORGED.
func (g *Guard) Poll(ctx context.Context, now time.Time) ([]Outcome, error) {
	g.mu.Lock()
	snapshot := make(map[string]Submission, len(g.pending))
	for txHash, sub := range g.pending {
		snapshot[txHash] = sub
	}
	g.mu.Unlock()

	var outcomes []Outcome
	var resolved []string

	for txHash, sub := range snapshot {
		status, err := g.checker.CheckStatus(ctx, txHash)
		if err != nil {
			continue // transient RPC failure: retry next poll
		}

		switch status {
		case StatusFinalized, StatusConfirmed:
			resolved = append(resolved, txHash)
			outcomes = append(outcomes, Outcome{Submission: sub, Status: status})

		case StatusDropped:
			if now.Sub(sub.SubmittedAt) < g.gracePeriod {
				continue
			}
			resolved = append(resolved, txHash)
			outcomes = append(outcomes, Outcome{Submission: sub, Status: status, Reason: reject.TxDropped})

		case StatusReorged:
			resolved = append(resolved, txHash)
			if g.log != nil {
				g.log.Append(audit.Entry{
					Timestamp: now,
					SignalID:  sub.SignalID,
					TraceID:   sub.TraceID,
					Reason:    "reorg_rollback",
					Before:    sub.SizeUSD,
					After:     0,
					Mint:      sub.Mint,
				})
			}
			outcomes = append(outcomes, Outcome{Submission: sub, Status: status, Reason: reject.TxReorged})
		}
	}

	if len(resolved) > 0 {
		g.mu.Lock()
		for _, txHash := range resolved {
			delete(g.pending, txHash)
		}
		g.mu.Unlock()
	}

	return outcomes, nil
}

// Pending reports how many transactions are still being watched.
func (g *Guard) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pending)
}
