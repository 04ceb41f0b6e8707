// Package audit implements the bounded append-only audit log shared by the
// reorg guard (C12) and the state reconciler (C13). Entries are kept
// in-memory as a ring buffer (bounded per spec.md §4.12 "bounded audit
// log") and persisted to disk with the same JSON-lines writer used for
// the signals/metrics streams, so nothing is lost on restart even though
// the in-memory ring only retains the most recent N entries.
package audit

import (
	"sync"
	"time"

	"github.com/sonarwatch/copytrade-engine/internal/store"
)

// Severity is the alert level an adjustment carries.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// Entry is one adjustment record: a reject-reason-style tag plus the
// before/after values it reconciled, identified back to the signal that
// produced it.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	SignalID  string    `json:"signal_id,omitempty"`
	TraceID   string    `json:"trace_id,omitempty"`
	Reason    string    `json:"reason"`
	Severity  Severity  `json:"severity,omitempty"`
	Before    float64   `json:"before"`
	After     float64   `json:"after"`
	Mint      string    `json:"mint,omitempty"`
}

// Log is a bounded in-memory ring of the most recent entries, mirrored to
// an on-disk JSON-lines file for durability.
type Log struct {
	maxEntries int
	writer     *store.JSONLWriter

	mu      sync.Mutex
	entries []Entry
}

// Open creates an audit log backed by path, retaining at most maxEntries
// in memory (0 keeps every entry) for Recent.
func Open(path string, maxEntries int) (*Log, error) {
	w, err := store.OpenJSONLWriter(path)
	if err != nil {
		return nil, err
	}
	return &Log{maxEntries: maxEntries, writer: w}, nil
}

// Append records entry, writing it to disk and trimming the in-memory ring
// to maxEntries if needed.
func (l *Log) Append(entry Entry) error {
	l.mu.Lock()
	l.entries = append(l.entries, entry)
	if l.maxEntries > 0 && len(l.entries) > l.maxEntries {
		l.entries = l.entries[len(l.entries)-l.maxEntries:]
	}
	l.mu.Unlock()

	return l.writer.Write(entry)
}

// Recent returns a copy of the in-memory ring, oldest first.
func (l *Log) Recent() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Close flushes the underlying writer.
func (l *Log) Close() error {
	return l.writer.Close()
}
