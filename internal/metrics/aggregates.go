package metrics

import (
	"time"

	"github.com/sonarwatch/copytrade-engine/internal/store"
)

// DailyMetrics is one daily_metrics.v1 record (spec.md §6).
type DailyMetrics struct {
	Schema        string    `json:"schema"`
	Date          string    `json:"date"`
	SignalsTotal  int       `json:"signals_total"`
	EntriesTotal  int       `json:"entries_total"`
	RejectCounts  map[string]int `json:"reject_counts"`
	ClosesTotal   int       `json:"closes_total"`
	WinCount      int       `json:"win_count"`
	LossCount     int       `json:"loss_count"`
	RealizedPnLUSD float64  `json:"realized_pnl_usd"`
	EquityUSD     float64   `json:"equity_usd"`
	GeneratedAt   time.Time `json:"generated_at"`
}

// ExecutionMetrics is one execution_metrics.v1 record (spec.md §6).
type ExecutionMetrics struct {
	Schema               string    `json:"schema"`
	WindowStart          time.Time `json:"window_start"`
	WindowEnd            time.Time `json:"window_end"`
	SubmissionsTotal     int       `json:"submissions_total"`
	JitoBundleRejects    int       `json:"jito_bundle_rejects"`
	ReorgRollbacks       int       `json:"reorg_rollbacks"`
	TxDropped            int       `json:"tx_dropped"`
	MeanLatencySeconds   float64   `json:"mean_latency_seconds"`
	GeneratedAt          time.Time `json:"generated_at"`
}

// AggregateWriter appends daily_metrics.v1 and execution_metrics.v1 records
// to their respective JSON-lines files, reusing the atomic-append,
// fsync-per-write discipline internal/store.JSONLWriter already provides
// for the signals stream and audit log.
type AggregateWriter struct {
	daily     *store.JSONLWriter
	execution *store.JSONLWriter
}

// OpenAggregateWriter opens (creating if absent) the two aggregation files.
func OpenAggregateWriter(dailyPath, executionPath string) (*AggregateWriter, error) {
	daily, err := store.OpenJSONLWriter(dailyPath)
	if err != nil {
		return nil, err
	}
	execution, err := store.OpenJSONLWriter(executionPath)
	if err != nil {
		daily.Close()
		return nil, err
	}
	return &AggregateWriter{daily: daily, execution: execution}, nil
}

// WriteDaily appends one daily_metrics.v1 record.
func (w *AggregateWriter) WriteDaily(m DailyMetrics) error {
	m.Schema = "daily_metrics.v1"
	return w.daily.Write(m)
}

// WriteExecution appends one execution_metrics.v1 record.
func (w *AggregateWriter) WriteExecution(m ExecutionMetrics) error {
	m.Schema = "execution_metrics.v1"
	return w.execution.Write(m)
}

// Close closes both underlying files.
func (w *AggregateWriter) Close() error {
	err1 := w.daily.Close()
	err2 := w.execution.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
