package walletstore

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeFixture(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "wallets.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

const fixture = `
profiles:
  leader1:
    tier: tier1
    roi_30d_pct: 42.5
    winrate_30d: 0.8
    trades_30d: 120
    median_hold_sec: 45
    avg_trade_size: 500
    behavioral:
      consecutive_wins: 3
      preferred_dex_concentration: 0.9
      cluster_leader_score: 0.6
  leader2:
    tier: tier3
    winrate_30d: 0.3
`

func TestLoadAndGet(t *testing.T) {
	path := writeFixture(t, fixture)
	s := New(path, testLogger())

	if err := s.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	profile, ok := s.Get("leader1")
	if !ok {
		t.Fatal("Get(leader1) ok = false, want true")
	}
	if profile.Tier != "tier1" {
		t.Errorf("Tier = %q, want tier1", profile.Tier)
	}
	if profile.Wallet != "leader1" {
		t.Errorf("Wallet = %q, want leader1 (filled from map key)", profile.Wallet)
	}
	if profile.Behavioral.ConsecutiveWins != 3 {
		t.Errorf("ConsecutiveWins = %d, want 3", profile.Behavioral.ConsecutiveWins)
	}
}

func TestGetMissingWalletIsNotError(t *testing.T) {
	path := writeFixture(t, fixture)
	s := New(path, testLogger())
	if err := s.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	profile, ok := s.Get("unknown-wallet")
	if ok {
		t.Fatal("Get(unknown-wallet) ok = true, want false")
	}
	if profile.Wallet != "" {
		t.Errorf("zero-value profile should have empty Wallet, got %q", profile.Wallet)
	}
}

func TestGetOnEmptyStoreBeforeLoad(t *testing.T) {
	s := New("/nonexistent", testLogger())
	_, ok := s.Get("leader1")
	if ok {
		t.Fatal("Get on unloaded store ok = true, want false")
	}
}

func TestReloadSwapsTableWithoutBlockingReaders(t *testing.T) {
	path := writeFixture(t, fixture)
	s := New(path, testLogger())
	if err := s.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if s.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", s.Len())
	}

	if err := os.WriteFile(path, []byte(`
profiles:
  leader3:
    tier: tier2
    winrate_30d: 0.55
`), 0o644); err != nil {
		t.Fatalf("rewrite fixture: %v", err)
	}

	if err := s.Reload(); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}

	if _, ok := s.Get("leader1"); ok {
		t.Error("Get(leader1) ok = true after reload dropped it, want false")
	}
	if _, ok := s.Get("leader3"); !ok {
		t.Error("Get(leader3) ok = false after reload added it, want true")
	}
}

func TestLoadMissingFileReturnsError(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "missing.yaml"), testLogger())
	if err := s.Load(); err == nil {
		t.Fatal("Load() error = nil, want error for missing file")
	}
}
