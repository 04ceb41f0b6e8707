// Package snapshotstore implements the token snapshot store (C2): a
// cached, TTL-bounded per-mint view merged primary-then-secondary from up
// to two providers. get(mint) never fails the caller — upstream errors are
// absorbed into a fallback snapshot and counted for diagnostics.
//
// Concurrency: concurrent Get calls for the same mint coalesce into at
// most one upstream fetch via golang.org/x/sync/singleflight, matching the
// single-flight discipline spec.md §5 requires for same-key fetches (the
// teacher's per-market actor ownership in engine.go is the same idea,
// applied here per-mint instead of per-market-goroutine).
package snapshotstore

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/sonarwatch/copytrade-engine/pkg/types"
)

// Store caches token snapshots with a TTL and coalesces concurrent misses.
type Store struct {
	primary   Provider
	secondary Provider // may be nil
	ttl       time.Duration
	logger    *slog.Logger

	mu    sync.RWMutex
	cache map[string]entry

	sf singleflight.Group

	fallbackCount atomic.Int64
}

type entry struct {
	snap types.TokenSnapshot
	at   time.Time
}

// New creates a store. secondary may be nil if only one provider is
// configured.
func New(primary, secondary Provider, ttl time.Duration, logger *slog.Logger) *Store {
	return &Store{
		primary:   primary,
		secondary: secondary,
		ttl:       ttl,
		cache:     make(map[string]entry),
		logger:    logger.With("component", "snapshotstore"),
	}
}

// Get returns a non-empty snapshot for mint, even on upstream failure.
// Contract: never returns an error to the caller.
func (s *Store) Get(ctx context.Context, mint string) types.TokenSnapshot {
	if snap, ok := s.lookupFresh(mint); ok {
		return snap
	}

	// Coalesce concurrent misses for the same mint into one upstream round.
	v, _, _ := s.sf.Do(mint, func() (any, error) {
		// Re-check: another caller may have populated the cache while we
		// waited to enter the singleflight group.
		if snap, ok := s.lookupFresh(mint); ok {
			return snap, nil
		}
		snap := s.fetchAndMerge(ctx, mint)
		s.store(mint, snap)
		return snap, nil
	})

	return v.(types.TokenSnapshot)
}

func (s *Store) lookupFresh(mint string) (types.TokenSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.cache[mint]
	if !ok || time.Since(e.at) > s.ttl {
		return types.TokenSnapshot{}, false
	}
	return e.snap, true
}

func (s *Store) store(mint string, snap types.TokenSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[mint] = entry{snap: snap, at: time.Now()}
}

// fetchAndMerge calls the primary provider, then merges non-null fields
// from the secondary. Upstream errors are absorbed: a failed primary with
// a healthy secondary still yields a useful snapshot; a fully failed fetch
// yields a fallback snapshot with extra.source = "fallback".
func (s *Store) fetchAndMerge(ctx context.Context, mint string) types.TokenSnapshot {
	primary, primaryErr := s.primary.Fetch(ctx, mint)
	if primaryErr != nil {
		s.logger.Warn("primary snapshot provider failed", "mint", mint, "error", primaryErr)
	}

	var secondary types.TokenSnapshot
	var secondaryErr error = errNoSecondary
	if s.secondary != nil {
		secondary, secondaryErr = s.secondary.Fetch(ctx, mint)
		if secondaryErr != nil {
			s.logger.Warn("secondary snapshot provider failed", "mint", mint, "error", secondaryErr)
		}
	}

	var merged types.TokenSnapshot
	switch {
	case primaryErr == nil && secondaryErr == nil:
		merged = mergeNonNull(primary, secondary)
		merged.Extra.Source = "merged"
	case primaryErr == nil:
		merged = primary
	case secondaryErr == nil:
		merged = secondary
	default:
		s.fallbackCount.Add(1)
		merged = types.TokenSnapshot{Mint: mint}
		merged.Extra.Source = "fallback"
	}

	merged.Mint = mint
	merged.Schema = types.SchemaVersion{Major: types.CurrentMajor, Minor: 0}
	merged.TsSnapshot = time.Now()
	return merged
}

// mergeNonNull takes primary as the base and overlays any secondary field
// that primary left at its zero value — "merge non-null fields from
// secondary" per spec.md §4.1.
func mergeNonNull(primary, secondary types.TokenSnapshot) types.TokenSnapshot {
	out := primary
	if out.LiquidityUSD == 0 {
		out.LiquidityUSD = secondary.LiquidityUSD
	}
	if out.Volume24hUSD == 0 {
		out.Volume24hUSD = secondary.Volume24hUSD
	}
	if out.SpreadBps == 0 {
		out.SpreadBps = secondary.SpreadBps
	}
	if out.Top10HoldersPct == 0 {
		out.Top10HoldersPct = secondary.Top10HoldersPct
	}
	if out.SingleHolderPct == 0 {
		out.SingleHolderPct = secondary.SingleHolderPct
	}
	if out.Volatility30s == 0 {
		out.Volatility30s = secondary.Volatility30s
	}
	if out.PriceImpulse5m == 0 {
		out.PriceImpulse5m = secondary.PriceImpulse5m
	}
	if out.SmartMoneyShare == 0 {
		out.SmartMoneyShare = secondary.SmartMoneyShare
	}
	if out.EventRisk == 0 {
		out.EventRisk = secondary.EventRisk
	}
	// Security flags: a true from either provider wins (fail-safe merge).
	out.Extra.Security.IsHoneypot = out.Extra.Security.IsHoneypot || secondary.Extra.Security.IsHoneypot
	out.Extra.Security.MintAuthorityPresent = out.Extra.Security.MintAuthorityPresent || secondary.Extra.Security.MintAuthorityPresent
	out.Extra.Security.FreezeAuthorityPresent = out.Extra.Security.FreezeAuthorityPresent || secondary.Extra.Security.FreezeAuthorityPresent
	if !out.Extra.Security.SimSuccess {
		out.Extra.Security.SimSuccess = secondary.Extra.Security.SimSuccess
	}
	if out.Extra.Security.BuyTaxBps == 0 {
		out.Extra.Security.BuyTaxBps = secondary.Extra.Security.BuyTaxBps
	}
	if out.Extra.Security.SellTaxBps == 0 {
		out.Extra.Security.SellTaxBps = secondary.Extra.Security.SellTaxBps
	}
	return out
}

// Invalidate drops the cached entry for mint, if any.
func (s *Store) Invalidate(mint string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cache, mint)
}

// Clear drops the entire cache.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string]entry)
}

// FallbackCount returns how many Get calls fell back to an empty snapshot
// because both providers failed — the diagnostic counter spec.md §4.1
// requires.
func (s *Store) FallbackCount() int64 {
	return s.fallbackCount.Load()
}

var errNoSecondary = noSecondaryError{}

type noSecondaryError struct{}

func (noSecondaryError) Error() string { return "no secondary provider configured" }
