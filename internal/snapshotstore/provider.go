package snapshotstore

import (
	"context"

	"github.com/sonarwatch/copytrade-engine/pkg/types"
)

// Provider is the narrow external collaborator interface for a token-data
// source (spec.md §1 treats these as out-of-scope adapters). Implementations
// live behind resty/HTTP clients; the store only depends on this interface.
type Provider interface {
	// Name identifies the provider for logging and extra.provenance.
	Name() string
	// Fetch returns a snapshot for mint, or an error if the upstream call
	// failed. Fetch must not itself retry forever — bounded retry belongs
	// to the adapter's own transport configuration.
	Fetch(ctx context.Context, mint string) (types.TokenSnapshot, error)
}
