// Package chain defines the collaborator interfaces between the request
// orchestration core and the chain-specific clients. The core depends only
// on these interfaces; the evm and solana subpackages implement them.
package chain

import (
	"context"

	"github.com/soljesty/solana-evm-nft-bridge-relayer/internal/bridge/domain"
)

// EventSource subscribes to one chain's logs and pushes normalized events
// into the shared event channel until ctx is canceled. Implementations
// reconnect on dropped subscriptions and never panic on malformed logs.
type EventSource interface {
	Run(ctx context.Context) error
}

// CommandSink drains one chain's command queue and submits the matching
// transactions until ctx is canceled. A full queue blocks the producer; the
// sink never drops a command.
type CommandSink interface {
	Run(ctx context.Context) error
}

// Reporter receives transaction outcomes from a command sink. Implemented
// by the orchestrator.
type Reporter interface {
	RecordTransaction(ctx context.Context, requestID, txHash string) error
	ReportFailure(ctx context.Context, requestID, reason string) error
}

// Querier reads chain state on demand for input validation, metadata
// capture, and recovery re-checks.
type Querier interface {
	// ValidateAccount reports whether address is well-formed for this
	// chain.
	ValidateAccount(address string) error
	// LockPresent reports whether the bridge holds custody of the
	// request's origin token.
	LockPresent(ctx context.Context, request domain.Request) (bool, error)
	// MintExists reports whether a destination mint tied to the request
	// id already landed on this chain.
	MintExists(ctx context.Context, requestID string) (bool, error)
	// TokenMetadata fetches the origin token attributes.
	TokenMetadata(ctx context.Context, asset, tokenID string) (domain.TokenMetadata, error)
}
