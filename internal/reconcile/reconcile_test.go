package reconcile

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/sonarwatch/copytrade-engine/internal/audit"
	"github.com/sonarwatch/copytrade-engine/internal/config"
)

type stubChain struct{ balance int64 }

func (s stubChain) BalanceLamports(ctx context.Context, wallet string) (int64, error) {
	return s.balance, nil
}

type stubLocal struct{ lamports int64 }

func (s *stubLocal) BankrollLamports() int64     { return s.lamports }
func (s *stubLocal) SetBankrollLamports(v int64) { s.lamports = v }

func testLog(t *testing.T) *audit.Log {
	t.Helper()
	log, err := audit.Open(filepath.Join(t.TempDir(), "audit.jsonl"), 10)
	if err != nil {
		t.Fatalf("audit.Open() error = %v", err)
	}
	t.Cleanup(func() { log.Close() })
	return log
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func cfgWithBands() config.ReconcilerConfig {
	return config.ReconcilerConfig{
		Enabled:                      true,
		IntervalSeconds:              60,
		MaxDeltaWithoutAlertLamports: 1000,
		WarningThresholdLamports:     10000,
		CriticalThresholdLamports:    100000,
	}
}

func TestTickNoOpWithinNoAlertBand(t *testing.T) {
	local := &stubLocal{lamports: 1_000_000}
	r := New(cfgWithBands(), "wallet1", stubChain{balance: 1_000_500}, local, testLog(t), testLogger())

	if err := r.Tick(context.Background(), time.Now()); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if local.lamports != 1_000_000 {
		t.Errorf("lamports = %d, want unchanged 1000000 (delta within no-alert band)", local.lamports)
	}
}

func TestTickAppliesAdjustmentAboveCritical(t *testing.T) {
	local := &stubLocal{lamports: 1_000_000}
	log := testLog(t)
	r := New(cfgWithBands(), "wallet1", stubChain{balance: 2_000_000}, local, log, testLogger())

	if err := r.Tick(context.Background(), time.Now()); err != nil {
		t.Fatalf("Tick() error = %v", err)
	}
	if local.lamports != 2_000_000 {
		t.Errorf("lamports = %d, want 2000000 (adjustment applied)", local.lamports)
	}

	entries := log.Recent()
	if len(entries) != 1 || entries[0].Severity != audit.SeverityCritical {
		t.Errorf("audit entries = %+v, want one CRITICAL entry", entries)
	}
}

func TestTickDryRunRecordsWithoutMutating(t *testing.T) {
	local := &stubLocal{lamports: 1_000_000}
	cfg := cfgWithBands()
	cfg.DryRun = true
	log := testLog(t)
	r := New(cfg, "wallet1", stubChain{balance: 2_000_000}, local, log, testLogger())

	r.Tick(context.Background(), time.Now())

	if local.lamports != 1_000_000 {
		t.Errorf("lamports = %d, want unchanged under dry_run", local.lamports)
	}
	if len(log.Recent()) != 1 {
		t.Error("dry_run should still record the adjustment to the audit log")
	}
}

func TestClassifyBands(t *testing.T) {
	r := &Reconciler{cfg: cfgWithBands()}

	cases := []struct {
		delta        int64
		wantApply    bool
		wantSeverity audit.Severity
	}{
		{delta: 500, wantApply: false},
		{delta: 5000, wantApply: true, wantSeverity: audit.SeverityInfo},
		{delta: 50000, wantApply: true, wantSeverity: audit.SeverityWarning},
		{delta: 500000, wantApply: true, wantSeverity: audit.SeverityCritical},
	}
	for _, c := range cases {
		severity, apply := r.classify(c.delta)
		if apply != c.wantApply {
			t.Errorf("classify(%d) apply = %v, want %v", c.delta, apply, c.wantApply)
		}
		if apply && severity != c.wantSeverity {
			t.Errorf("classify(%d) severity = %v, want %v", c.delta, severity, c.wantSeverity)
		}
	}
}
