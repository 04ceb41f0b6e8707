// Package walletstore implements the wallet profile store (C3): a
// read-mostly, refreshable table of per-wallet performance and behavioral
// features keyed by wallet address. A missing profile is a first-class
// value — Get's second return is false, never an error or a zero-value
// profile masquerading as real data, so gate logic never mistakes "unknown
// wallet" for "wallet with zero winrate".
package walletstore

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/sonarwatch/copytrade-engine/pkg/types"
)

// profileFile is the on-disk shape: a flat table keyed by wallet address.
type profileFile struct {
	Profiles map[string]types.WalletProfile `yaml:"profiles"`
}

// Store holds the current wallet profile table. Reads never block on a
// concurrent Reload; Reload takes the write lock only long enough to swap
// the table pointer.
type Store struct {
	path   string
	logger *slog.Logger

	mu    sync.RWMutex
	table map[string]types.WalletProfile
}

// New creates an empty store. Call Load before serving traffic.
func New(path string, logger *slog.Logger) *Store {
	return &Store{
		path:   path,
		logger: logger.With("component", "walletstore"),
		table:  make(map[string]types.WalletProfile),
	}
}

// Load reads the profile table from disk, replacing the in-memory table
// atomically. Safe to call while Get is being served concurrently.
func (s *Store) Load() error {
	table, err := readProfiles(s.path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.table = table
	s.mu.Unlock()

	s.logger.Info("wallet profile table loaded", "path", s.path, "count", len(table))
	return nil
}

// Reload is an alias for Load used by an out-of-band refresh job (spec.md
// §4.2: "refreshable under a lock without blocking readers").
func (s *Store) Reload() error { return s.Load() }

// Get returns the profile for wallet and whether one is on file. A missing
// profile is not an error — callers (the gate chain, the mode selector)
// must treat ok=false as an explicit, legitimate input.
func (s *Store) Get(wallet string) (types.WalletProfile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	profile, ok := s.table[wallet]
	return profile, ok
}

// Len reports how many profiles are currently loaded.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.table)
}

func readProfiles(path string) (map[string]types.WalletProfile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("walletstore: read %s: %w", path, err)
	}

	var f profileFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("walletstore: parse %s: %w", path, err)
	}

	table := make(map[string]types.WalletProfile, len(f.Profiles))
	for wallet, profile := range f.Profiles {
		profile.Wallet = wallet
		table[wallet] = profile
	}
	return table, nil
}
