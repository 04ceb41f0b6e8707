package router

import (
	"context"

	"github.com/sonarwatch/copytrade-engine/internal/reorg"
)

// ReorgChecker adapts Client.PollStatus to internal/reorg.StatusChecker,
// translating the router's transaction lifecycle into the reorg guard's
// status vocabulary.
type ReorgChecker struct {
	client *Client
}

// NewReorgChecker wraps a router client for use as a reorg.StatusChecker.
func NewReorgChecker(client *Client) ReorgChecker {
	return ReorgChecker{client: client}
}

// CheckStatus implements reorg.StatusChecker.
func (c ReorgChecker) CheckStatus(ctx context.Context, txHash string) (reorg.Status, error) {
	status, err := c.client.PollStatus(ctx, txHash)
	if err != nil {
		return "", err
	}

	switch status {
	case TxStatusFinalized:
		return reorg.StatusFinalized, nil
	case TxStatusConfirmed:
		return reorg.StatusConfirmed, nil
	case TxStatusFailed:
		return reorg.StatusDropped, nil
	case TxStatusPending:
		// Still en route; not yet a terminal status the guard recognizes,
		// so it stays in Guard's pending set until a later poll resolves it.
		return "", nil
	default:
		return reorg.StatusReorged, nil
	}
}
