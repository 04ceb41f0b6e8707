package router

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/sonarwatch/copytrade-engine/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newDryRunClient() *Client {
	return &Client{
		dryRun: true,
		rl:     NewRateLimiter(),
		logger: testLogger(),
	}
}

func TestDryRunSubmitFabricatesFill(t *testing.T) {
	c := newDryRunClient()

	req := SubmitRequest{SignalID: "sig1", Mint: "mint1", Side: types.Side("BUY"), SizeQuote: decimal.NewFromFloat(100), LimitPrice: decimal.NewFromFloat(0.5)}
	result, err := c.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if result.TxHash == "" {
		t.Error("TxHash is empty, want a fabricated dry-run hash")
	}
	if !result.FilledQuote.Equal(req.SizeQuote) {
		t.Errorf("FilledQuote = %v, want %v (full fill in dry_run)", result.FilledQuote, req.SizeQuote)
	}
}

func TestDryRunCancelIsNoOp(t *testing.T) {
	c := newDryRunClient()
	if err := c.Cancel(context.Background(), "tx1"); err != nil {
		t.Errorf("Cancel() error = %v, want nil in dry_run", err)
	}
}

func TestQuoteCallsRouterAndParsesResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/quote" {
			t.Errorf("path = %q, want /quote", r.URL.Path)
		}
		json.NewEncoder(w).Encode(Quote{Mint: "mint1", Price: decimal.NewFromFloat(0.42), SpreadBps: 25, LiquidityUSD: 5000})
	}))
	defer server.Close()

	c := NewClient(server.URL, false, testLogger())
	quote, err := c.Quote(context.Background(), "mint1", types.Side("BUY"))
	if err != nil {
		t.Fatalf("Quote() error = %v", err)
	}
	if quote.Mint != "mint1" || quote.SpreadBps != 25 {
		t.Errorf("quote = %+v, want mint1/25bps", quote)
	}
}

func TestSubmitNonDryRunPostsToRouter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/orders" {
			t.Errorf("method/path = %s %s, want POST /orders", r.Method, r.URL.Path)
		}
		json.NewEncoder(w).Encode(SubmitResult{TxHash: "tx-live-1", FilledQuote: decimal.NewFromFloat(100), FillPrice: decimal.NewFromFloat(0.5)})
	}))
	defer server.Close()

	c := NewClient(server.URL, false, testLogger())
	result, err := c.Submit(context.Background(), SubmitRequest{SignalID: "sig1", Mint: "mint1"})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if result.TxHash != "tx-live-1" {
		t.Errorf("TxHash = %q, want tx-live-1", result.TxHash)
	}
}

func TestPollStatusReturns5xxAsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := NewClient(server.URL, false, testLogger())
	c.http.SetRetryCount(0)

	if _, err := c.PollStatus(context.Background(), "tx1"); err == nil {
		t.Error("PollStatus() error = nil, want error on 500")
	}
}

func TestReorgCheckerTranslatesStatuses(t *testing.T) {
	cases := []struct {
		wire TxStatus
		want string
	}{
		{TxStatusFinalized, "FINALIZED"},
		{TxStatusConfirmed, "CONFIRMED"},
		{TxStatusFailed, "DROPPED"},
		{TxStatusPending, ""},
	}

	for _, c := range cases {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(struct {
				Status TxStatus `json:"status"`
			}{Status: c.wire})
		}))

		client := NewClient(server.URL, false, testLogger())
		checker := NewReorgChecker(client)
		status, err := checker.CheckStatus(context.Background(), "tx1")
		if err != nil {
			t.Fatalf("CheckStatus() error = %v", err)
		}
		if string(status) != c.want {
			t.Errorf("CheckStatus(%v) = %v, want %v", c.wire, status, c.want)
		}
		server.Close()
	}
}
