// Package idempotency implements the idempotency layer (C9): an in-memory
// lock table keyed by a fingerprint over (leader, mint, side, bucketed_ts),
// guaranteeing at most one in-flight build per fingerprint. A duplicate
// Acquire while a lock is held rejects with duplicate_execution rather than
// silently building the same order twice.
package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sonarwatch/copytrade-engine/pkg/types"
)

// Table holds the live idempotency entries. A single mutex guards the whole
// table, so calls for different keys are serialized as well.
type Table struct {
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]types.IdempotencyEntry

	defaultTTL time.Duration
}

// New creates an empty idempotency table. defaultTTL is used when Acquire
// is not given an explicit order TTL to compare against — the entry's
// actual TTL is max(orderTTL, defaultTTL) per spec.md §4.8.
func New(defaultTTL time.Duration, logger *slog.Logger) *Table {
	return &Table{
		logger:     logger.With("component", "idempotency"),
		entries:    make(map[string]types.IdempotencyEntry),
		defaultTTL: defaultTTL,
	}
}

// Fingerprint computes the dedup key for (leader, mint, side, bucketed_ts).
// bucketWidth rounds the timestamp down to a bucket boundary so near-
// simultaneous copies of the same leader trade collide on purpose.
func Fingerprint(leader, mint string, side types.Side, ts time.Time, bucketWidth time.Duration) string {
	bucketed := ts.Truncate(bucketWidth)
	raw := fmt.Sprintf("%s|%s|%s|%d", leader, mint, side, bucketed.UnixMilli())
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Acquire locks key for orderTTL (or the table's default, whichever is
// longer) and returns true. If a non-expired entry already holds the key,
// it returns false — the caller should reject with duplicate_execution.
// An expired entry is treated as absent and silently replaced.
func (t *Table) Acquire(key string, orderTTL time.Duration, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.entries[key]; ok && existing.State == types.IdempLocked && !existing.Expired(now) {
		return false
	}

	ttl := orderTTL
	if t.defaultTTL > ttl {
		ttl = t.defaultTTL
	}

	t.entries[key] = types.IdempotencyEntry{
		Key:        key,
		State:      types.IdempLocked,
		AcquiredAt: now,
		TTLSec:     int(ttl.Seconds()),
	}
	return true
}

// Release marks key as released, freeing it for immediate reuse regardless
// of TTL. A no-op if the key was never acquired.
func (t *Table) Release(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if entry, ok := t.entries[key]; ok {
		entry.State = types.IdempReleased
		t.entries[key] = entry
	}
}

// Prune removes entries that are either released or expired as of now.
// Returns the number of entries removed. Safe to call from any goroutine;
// cmd/engine runs it on a periodic ticker in its own goroutine.
func (t *Table) Prune(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for key, entry := range t.entries {
		if entry.State == types.IdempReleased || entry.Expired(now) {
			delete(t.entries, key)
			removed++
		}
	}
	if removed > 0 {
		t.logger.Debug("pruned idempotency entries", "removed", removed, "remaining", len(t.entries))
	}
	return removed
}

// Len reports the number of entries currently tracked (locked or released,
// pending prune).
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
