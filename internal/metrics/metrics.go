// Package metrics defines the Prometheus collectors backing the
// daily_metrics.v1 and execution_metrics.v1 streams (spec.md §6), alongside
// the JSON-lines aggregation files internal/store writes. Collector naming
// and registration follow the teacher's metrics.go: package-level vars,
// registered once in init, with small setter helpers callers use instead of
// touching the collectors directly.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "copytrade_signals_total",
			Help: "Trade signals processed, by terminal decision.",
		},
		[]string{"decision"}, // ENTER|SKIP
	)

	RejectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "copytrade_rejects_total",
			Help: "Signals rejected, by reject reason tag.",
		},
		[]string{"reason"},
	)

	ModeSelectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "copytrade_mode_selected_total",
			Help: "Mode selections, by mode id.",
		},
		[]string{"mode"},
	)

	EdgeFinalBps = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "copytrade_edge_final_bps",
			Help:    "Distribution of edge_final_bps across evaluated signals.",
			Buckets: prometheus.LinearBuckets(-500, 100, 20),
		},
	)

	PositionsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "copytrade_positions_open",
			Help: "Currently open bracket positions.",
		},
	)

	ExposureUSD = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "copytrade_exposure_usd",
			Help: "Current USD exposure, by mint.",
		},
		[]string{"mint"},
	)

	EquityUSD = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "copytrade_equity_usd",
			Help: "Current portfolio equity in USD.",
		},
	)

	DayPnLUSD = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "copytrade_day_pnl_usd",
			Help: "Realized PnL for the current trading day.",
		},
	)

	ClosesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "copytrade_closes_total",
			Help: "Closed positions, by close reason.",
		},
		[]string{"close_reason"}, // a types.CloseReason: TP_HIT|SL_HIT|TTL_EXPIRED|MANUAL_CLOSE|PARTIAL_TIMEOUT|REORG_ROLLBACK
	)

	ExecutionLatencySeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "copytrade_execution_latency_seconds",
			Help:    "Time from signal decision to router submission.",
			Buckets: prometheus.DefBuckets,
		},
	)

	JitoBundleRejectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "copytrade_jito_bundle_rejects_total",
			Help: "Submissions where the router reported jito_bundle_rejected.",
		},
	)

	ReorgRollbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "copytrade_reorg_rollbacks_total",
			Help: "Submissions rolled back after a chain reorg.",
		},
	)

	ReconcileAdjustmentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "copytrade_reconcile_adjustments_total",
			Help: "Bankroll reconciliation adjustments, by severity.",
		},
		[]string{"severity"},
	)

	PanicActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "copytrade_panic_active",
			Help: "1 if the panic sentinel is currently engaged, else 0.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		SignalsTotal, RejectsTotal, ModeSelectedTotal, EdgeFinalBps,
		PositionsOpen, ExposureUSD, EquityUSD, DayPnLUSD,
		ClosesTotal, ExecutionLatencySeconds, JitoBundleRejectsTotal,
		ReorgRollbacksTotal, ReconcileAdjustmentsTotal, PanicActive,
	)
}

// RecordSignal records a terminal signal decision, and its reject reason
// when the decision was not ENTER.
func RecordSignal(decision string, reason string) {
	SignalsTotal.WithLabelValues(decision).Inc()
	if reason != "" {
		RejectsTotal.WithLabelValues(reason).Inc()
	}
}

// RecordMode records which mode a signal resolved to.
func RecordMode(modeID string) { ModeSelectedTotal.WithLabelValues(modeID).Inc() }

// RecordEdge observes a computed edge_final_bps value.
func RecordEdge(edgeFinalBps float64) { EdgeFinalBps.Observe(edgeFinalBps) }

// RecordClose records a position close by reason.
func RecordClose(closeReason string) { ClosesTotal.WithLabelValues(closeReason).Inc() }

// RecordReconcileAdjustment records a reconciler adjustment by severity.
func RecordReconcileAdjustment(severity string) {
	ReconcileAdjustmentsTotal.WithLabelValues(severity).Inc()
}

// SetPanicActive reflects the panic sentinel's current state.
func SetPanicActive(active bool) {
	if active {
		PanicActive.Set(1)
	} else {
		PanicActive.Set(0)
	}
}

// SetPortfolioGauges refreshes the portfolio-level gauges from a snapshot.
func SetPortfolioGauges(openPositions int, equity, dayPnL float64, exposureByToken map[string]float64) {
	PositionsOpen.Set(float64(openPositions))
	EquityUSD.Set(equity)
	DayPnLUSD.Set(dayPnL)
	for mint, usd := range exposureByToken {
		ExposureUSD.WithLabelValues(mint).Set(usd)
	}
}
