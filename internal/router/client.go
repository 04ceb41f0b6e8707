// Package router implements the execution adapter boundary: everything the
// core needs from the Solana order router (quote, submit, cancel, poll).
// The client is a thin resty wrapper, grounded on the teacher's
// exchange.Client — same retry-on-5xx policy, same rate-limited-then-call
// shape, same dry_run short-circuit on every mutating method — adapted
// from Polymarket's order/cancel-all/cancel-market surface to a quote +
// submit + cancel + poll surface.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"github.com/google/uuid"

	"github.com/sonarwatch/copytrade-engine/pkg/types"
)

// Quote is a router-provided fill estimate for a candidate order.
type Quote struct {
	Mint          string          `json:"mint"`
	Side          types.Side      `json:"side"`
	Price         decimal.Decimal `json:"price"`
	SpreadBps     float64         `json:"spread_bps"`
	LiquidityUSD  float64         `json:"liquidity_usd"`
}

// SubmitRequest is the order the router is asked to fill.
type SubmitRequest struct {
	SignalID    string          `json:"signal_id"`
	Mint        string          `json:"mint"`
	Side        types.Side      `json:"side"`
	SizeQuote   decimal.Decimal `json:"size_quote"`
	LimitPrice  decimal.Decimal `json:"limit_price"`
	UseJitoBundle bool          `json:"use_jito_bundle,omitempty"`
}

// SubmitResult is the router's response to a submitted order.
type SubmitResult struct {
	TxHash        string  `json:"tx_hash"`
	FilledQuote   decimal.Decimal `json:"filled_quote"`
	FillPrice     decimal.Decimal `json:"fill_price"`
	JitoRejected  bool    `json:"jito_bundle_rejected,omitempty"`
}

// TxStatus is the router's view of a submitted transaction's chain status.
type TxStatus string

const (
	TxStatusPending   TxStatus = "PENDING"
	TxStatusConfirmed TxStatus = "CONFIRMED"
	TxStatusFinalized TxStatus = "FINALIZED"
	TxStatusFailed    TxStatus = "FAILED"
)

// Client is the Solana order router REST client.
type Client struct {
	http   *resty.Client
	rl     *RateLimiter
	dryRun bool
	logger *slog.Logger
}

// NewClient creates a router client with retry and per-category rate
// limiting. baseURL and dryRun come from config.ChainConfig/config.Config.
func NewClient(baseURL string, dryRun bool, logger *slog.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json")

	return &Client{
		http:   httpClient,
		rl:     NewRateLimiter(),
		dryRun: dryRun,
		logger: logger.With("component", "router"),
	}
}

// Quote fetches a fill estimate for a candidate mint/side.
func (c *Client) Quote(ctx context.Context, mint string, side types.Side) (*Quote, error) {
	if err := c.rl.Submit.Wait(ctx); err != nil {
		return nil, err
	}

	var result Quote
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"mint": mint, "side": string(side)}).
		SetResult(&result).
		Get("/quote")
	if err != nil {
		return nil, fmt.Errorf("get quote: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("get quote: status %d: %s", resp.StatusCode(), resp.String())
	}
	return &result, nil
}

// Submit places a sized order. In dry_run it fabricates a fake fill at the
// requested limit price without making a network call, the same
// short-circuit the teacher's PostOrders/CancelOrders use.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	if c.dryRun {
		c.logger.Info("DRY-RUN: would submit order", "mint", req.Mint, "side", req.Side, "size", req.SizeQuote)
		return &SubmitResult{
			TxHash:      "dry-run-" + uuid.NewString(),
			FilledQuote: req.SizeQuote,
			FillPrice:   req.LimitPrice,
		}, nil
	}
	if err := c.rl.Submit.Wait(ctx); err != nil {
		return nil, err
	}

	var result SubmitResult
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&result).
		Post("/orders")
	if err != nil {
		return nil, fmt.Errorf("submit order: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("submit order: status %d: %s", resp.StatusCode(), resp.String())
	}

	c.logger.Info("order submitted", "signal_id", req.SignalID, "tx_hash", result.TxHash)
	return &result, nil
}

// Cancel requests cancellation of a pending/unconfirmed order.
func (c *Client) Cancel(ctx context.Context, txHash string) error {
	if c.dryRun {
		c.logger.Info("DRY-RUN: would cancel order", "tx_hash", txHash)
		return nil
	}
	if err := c.rl.Cancel.Wait(ctx); err != nil {
		return err
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"tx_hash": txHash}).
		Delete("/orders")
	if err != nil {
		return fmt.Errorf("cancel order: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("cancel order: status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

// PollStatus fetches the current chain status for a submitted transaction.
// It also satisfies internal/reorg.StatusChecker via the adapter in status.go.
func (c *Client) PollStatus(ctx context.Context, txHash string) (TxStatus, error) {
	if err := c.rl.Poll.Wait(ctx); err != nil {
		return "", err
	}

	var result struct {
		Status TxStatus `json:"status"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("tx_hash", txHash).
		SetResult(&result).
		Get("/tx-status")
	if err != nil {
		return "", fmt.Errorf("poll tx status: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("poll tx status: status %d: %s", resp.StatusCode(), resp.String())
	}
	return result.Status, nil
}

// BalanceLamports fetches the funding wallet's current on-chain balance,
// satisfying internal/reconcile.BalanceReader.
func (c *Client) BalanceLamports(ctx context.Context, wallet string) (int64, error) {
	if err := c.rl.Poll.Wait(ctx); err != nil {
		return 0, err
	}

	var result struct {
		Lamports int64 `json:"lamports"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("wallet", wallet).
		SetResult(&result).
		Get("/balance")
	if err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return 0, fmt.Errorf("get balance: status %d: %s", resp.StatusCode(), resp.String())
	}
	return result.Lamports, nil
}
