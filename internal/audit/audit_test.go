package audit

import (
	"path/filepath"
	"testing"
	"time"
)

func TestAppendAndRecentBounded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	log, err := Open(path, 3)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer log.Close()

	for i := 0; i < 5; i++ {
		if err := log.Append(Entry{Timestamp: time.Now(), Reason: "reorg_rollback", Before: float64(i), After: float64(i) + 1}); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	recent := log.Recent()
	if len(recent) != 3 {
		t.Fatalf("Recent() len = %d, want 3 (bounded)", len(recent))
	}
	if recent[0].Before != 2 {
		t.Errorf("Recent()[0].Before = %v, want 2 (oldest of the last 3)", recent[0].Before)
	}
	if recent[2].Before != 4 {
		t.Errorf("Recent()[2].Before = %v, want 4 (most recent)", recent[2].Before)
	}
}

func TestAppendUnboundedWhenMaxEntriesZero(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	log, _ := Open(path, 0)
	defer log.Close()

	for i := 0; i < 10; i++ {
		log.Append(Entry{Timestamp: time.Now(), Reason: "tx_reorged"})
	}

	if got := len(log.Recent()); got != 10 {
		t.Errorf("Recent() len = %d, want 10 (unbounded)", got)
	}
}
