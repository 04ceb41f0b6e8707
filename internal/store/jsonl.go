package store

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// JSONLWriter appends one JSON object per line to a file, matching
// spec.md §5's "stable-ordered, one-object-per-line" wire output contract
// for signals.v1, daily_metrics.v1, and execution_metrics.v1. Every Write
// call is fsync'd so a crash after a successful Write never loses that
// line, only ones still in flight.
type JSONLWriter struct {
	mu   sync.Mutex
	file *os.File
}

// OpenJSONLWriter opens path for append, creating it if necessary.
func OpenJSONLWriter(path string) (*JSONLWriter, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open jsonl %s: %w", path, err)
	}
	return &JSONLWriter{file: f}, nil
}

// Write marshals record and appends it as one line.
func (w *JSONLWriter) Write(record any) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal jsonl record: %w", err)
	}
	data = append(data, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.file.Write(data); err != nil {
		return fmt.Errorf("write jsonl record: %w", err)
	}
	return w.file.Sync()
}

// Close flushes and closes the underlying file.
func (w *JSONLWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}
