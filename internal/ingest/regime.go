package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sonarwatch/copytrade-engine/pkg/types"
)

const regimeBufferSize = 16

// wireRegimeSample is the raw shape the regime timeline feed emits.
type wireRegimeSample struct {
	Schema    types.SchemaVersion `json:"schema"`
	Timestamp time.Time           `json:"timestamp"`
	Regime    float64             `json:"risk_regime"`
}

// RegimeFeed maintains one WebSocket connection to the externally supplied
// risk-regime timeline (spec.md §4.6/§6 "regime.source"), reconnecting with
// the same backoff discipline as Feed, and publishes each sample as it
// arrives.
type RegimeFeed struct {
	url    string
	logger *slog.Logger

	samples chan types.RegimeSample
}

// NewRegimeFeed creates a regime feed against the given WebSocket URL.
func NewRegimeFeed(url string, logger *slog.Logger) *RegimeFeed {
	return &RegimeFeed{
		url:     url,
		logger:  logger.With("component", "ingest", "source", "regime"),
		samples: make(chan types.RegimeSample, regimeBufferSize),
	}
}

// Samples returns the channel regime timeline samples are published on.
func (f *RegimeFeed) Samples() <-chan types.RegimeSample { return f.samples }

// Run connects and maintains the feed with exponential backoff until ctx
// is cancelled.
func (f *RegimeFeed) Run(ctx context.Context) error {
	backoff := time.Second

	for {
		err := f.connectAndRead(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		f.logger.Warn("regime feed disconnected, reconnecting", "error", err, "backoff", backoff)

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

func (f *RegimeFeed) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	f.logger.Info("regime feed connected")

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		var wire wireRegimeSample
		if err := json.Unmarshal(msg, &wire); err != nil {
			f.logger.Warn("dropping malformed regime sample", "error", err)
			continue
		}
		if wire.Regime < -1 || wire.Regime > 1 {
			f.logger.Warn("dropping out-of-range regime sample", "regime", wire.Regime)
			continue
		}

		sample := types.RegimeSample{Schema: wire.Schema, Timestamp: wire.Timestamp, Regime: wire.Regime}

		select {
		case f.samples <- sample:
		default:
			// Drop the oldest queued sample rather than block: only the
			// latest regime value matters, unlike trade events.
			select {
			case <-f.samples:
			default:
			}
			f.samples <- sample
		}
	}
}
