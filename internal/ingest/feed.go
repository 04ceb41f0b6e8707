// Package ingest implements the leader-trade feed: one goroutine per
// upstream WebSocket source, reconnecting with exponential backoff and
// normalizing raw wire messages into types.TradeEvent. The reconnect loop
// is adapted from the teacher's market/user WebSocket feeds — same
// backoff curve (1s doubling to 30s), same read-deadline-triggers-
// reconnect discipline — collapsed here to the single feed type this
// domain needs.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/sonarwatch/copytrade-engine/pkg/types"
)

const (
	readTimeout      = 90 * time.Second
	maxReconnectWait = 30 * time.Second
	eventBufferSize  = 256
)

// wireTradeEvent is the raw shape a leader-trade feed emits over the wire.
type wireTradeEvent struct {
	Schema      types.SchemaVersion `json:"schema"`
	TimestampMs int64               `json:"timestamp_ms"`
	Leader      string              `json:"leader_wallet"`
	Mint        string              `json:"mint"`
	Side        string              `json:"side"`
	Price       string              `json:"price"`
	Notional    string              `json:"notional_size"`
	Source      string              `json:"source_platform"`
	TxHash      string              `json:"tx_hash"`
	ImpulseCount int                `json:"impulse_count"`
	ImpulseMaxPct float64           `json:"impulse_max_pct"`
}

// Feed maintains one WebSocket connection to a leader-trade source,
// auto-reconnecting, and publishes normalized trade events.
type Feed struct {
	url    string
	source string
	logger *slog.Logger

	events chan types.TradeEvent
}

// New creates a feed for the given source label and WebSocket URL.
func New(url, source string, logger *slog.Logger) *Feed {
	return &Feed{
		url:    url,
		source: source,
		logger: logger.With("component", "ingest", "source", source),
		events: make(chan types.TradeEvent, eventBufferSize),
	}
}

// Events returns the channel normalized trade events are published on.
func (f *Feed) Events() <-chan types.TradeEvent { return f.events }

// Run connects and maintains the feed with exponential backoff until ctx
// is cancelled.
func (f *Feed) Run(ctx context.Context) error {
	backoff := time.Second

	for {
		err := f.connectAndRead(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		f.logger.Warn("feed disconnected, reconnecting", "error", err, "backoff", backoff)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxReconnectWait {
			backoff = maxReconnectWait
		}
	}
}

func (f *Feed) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	f.logger.Info("feed connected")

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		event, err := parse(msg, f.source)
		if err != nil {
			f.logger.Warn("dropping malformed trade event", "error", err)
			continue
		}

		select {
		case f.events <- event:
		default:
			f.logger.Warn("event buffer full, dropping trade event", "tx_hash", event.TxHash)
		}
	}
}

func parse(msg []byte, source string) (types.TradeEvent, error) {
	var wire wireTradeEvent
	if err := json.Unmarshal(msg, &wire); err != nil {
		return types.TradeEvent{}, fmt.Errorf("unmarshal trade event: %w", err)
	}

	price, err := decimalFromString(wire.Price)
	if err != nil {
		return types.TradeEvent{}, fmt.Errorf("parse price: %w", err)
	}
	notional, err := decimalFromString(wire.Notional)
	if err != nil {
		return types.TradeEvent{}, fmt.Errorf("parse notional_size: %w", err)
	}

	sourceLabel := wire.Source
	if sourceLabel == "" {
		sourceLabel = source
	}

	return types.TradeEvent{
		Schema:        wire.Schema,
		TimestampMs:   wire.TimestampMs,
		Leader:        wire.Leader,
		Mint:          wire.Mint,
		Side:          types.Side(wire.Side),
		Price:         price,
		NotionalUSD:   notional,
		Source:        sourceLabel,
		TxHash:        wire.TxHash,
		ImpulseCount:  wire.ImpulseCount,
		ImpulseMaxPct: wire.ImpulseMaxPct,
	}, nil
}

func decimalFromString(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
