package httpapi

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sonarwatch/copytrade-engine/internal/config"
	"github.com/sonarwatch/copytrade-engine/internal/panicguard"
	"github.com/sonarwatch/copytrade-engine/internal/risk"
	"github.com/sonarwatch/copytrade-engine/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubSignals struct{ records []types.SignalRecord }

func (s stubSignals) Recent() []types.SignalRecord { return s.records }

func TestHealthzReportsPanicState(t *testing.T) {
	sentinel := panicguard.New("", testLogger())
	r := NewRouter(nil, nil, sentinel)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var body map[string]any
	json.Unmarshal(w.Body.Bytes(), &body)
	if body["panic_engaged"] != false {
		t.Errorf("panic_engaged = %v, want false", body["panic_engaged"])
	}
}

func TestSignalsRecentReturnsRingContents(t *testing.T) {
	stub := stubSignals{records: []types.SignalRecord{{SignalID: "sig1", Decision: "ENTER"}}}
	r := NewRouter(nil, stub, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/signals/recent", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var body struct {
		Signals []types.SignalRecord `json:"signals"`
	}
	json.Unmarshal(w.Body.Bytes(), &body)
	if len(body.Signals) != 1 || body.Signals[0].SignalID != "sig1" {
		t.Errorf("signals = %+v, want one sig1 record", body.Signals)
	}
}

func TestSignalsRecentUnavailableWhenUnwired(t *testing.T) {
	r := NewRouter(nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/signals/recent", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestRiskSnapshotReturnsPortfolioState(t *testing.T) {
	cfg := config.RiskConfig{}
	manager := risk.NewManager(cfg, nil, types.PortfolioState{Equity: 5000}, testLogger())
	r := NewRouter(manager, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/risk/snapshot", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var snapshot types.PortfolioState
	json.Unmarshal(w.Body.Bytes(), &snapshot)
	if snapshot.Equity != 5000 {
		t.Errorf("Equity = %v, want 5000", snapshot.Equity)
	}
}

func TestMetricsEndpointServesPrometheusFormat(t *testing.T) {
	r := NewRouter(nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}
