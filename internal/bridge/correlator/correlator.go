// Package correlator translates normalized chain events into request
// signals. It is the only bridge between the two chains' event feeds and
// the orchestrator; unknown and duplicate events stop here.
package correlator

import (
	"context"
	"errors"
	"log"

	"github.com/soljesty/solana-evm-nft-bridge-relayer/internal/bridge/domain"
	"github.com/soljesty/solana-evm-nft-bridge-relayer/internal/storage"
)

// SignalApplier advances one request through the state machine. Implemented
// by the orchestrator.
type SignalApplier interface {
	ApplySignal(ctx context.Context, requestID string, signal domain.Signal) error
}

// RequestReader looks up requests for duplicate detection.
type RequestReader interface {
	GetRequest(ctx context.Context, id string) (domain.Request, error)
}

// Correlator consumes chain events and forwards derived signals.
type Correlator struct {
	reader  RequestReader
	applier SignalApplier
	events  <-chan domain.Event
}

// New creates a correlator draining events from the shared channel.
func New(reader RequestReader, applier SignalApplier, events <-chan domain.Event) (*Correlator, error) {
	if reader == nil {
		return nil, errors.New("request reader is required")
	}
	if applier == nil {
		return nil, errors.New("signal applier is required")
	}
	if events == nil {
		return nil, errors.New("event channel is required")
	}
	return &Correlator{reader: reader, applier: applier, events: events}, nil
}

// Run drains the event channel until ctx is canceled. Malformed, unknown,
// and duplicate events are logged and discarded; nothing that arrives on
// the channel can stop the loop.
func (c *Correlator) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-c.events:
			if !ok {
				return nil
			}
			c.handle(ctx, event)
		}
	}
}

// handle correlates one event to a request and forwards the derived signal.
func (c *Correlator) handle(ctx context.Context, event domain.Event) {
	if event.RequestID == "" {
		log.Printf("event without request id discarded chain=%s kind=%s", event.Chain, event.Kind)
		return
	}

	signal, ok := deriveSignal(event)
	if !ok {
		log.Printf("unhandled event kind discarded chain=%s kind=%s request_id=%s", event.Chain, event.Kind, event.RequestID)
		return
	}

	request, err := c.reader.GetRequest(ctx, event.RequestID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			log.Printf("event for unknown request discarded chain=%s kind=%s request_id=%s", event.Chain, event.Kind, event.RequestID)
			return
		}
		log.Printf("event lookup failed chain=%s request_id=%s err=%v", event.Chain, event.RequestID, err)
		return
	}

	if !applicable(request.Status, signal.Kind) {
		log.Printf("discarded-duplicate chain=%s kind=%s request_id=%s status=%s", event.Chain, event.Kind, event.RequestID, request.Status)
		return
	}

	if err := c.applier.ApplySignal(ctx, event.RequestID, signal); err != nil {
		log.Printf("apply signal failed request_id=%s signal=%s err=%v", event.RequestID, signal.Kind, err)
	}
}

// deriveSignal maps an event kind to the request signal it implies.
func deriveSignal(event domain.Event) (domain.Signal, bool) {
	switch event.Kind {
	case domain.EventNewRequest:
		return domain.LockConfirmed(domain.TokenMetadata{}), true
	case domain.EventTokenMinted:
		return domain.MintConfirmed(domain.Output{
			DestinationAsset:          event.Asset,
			DestinationTokenOrAccount: destinationArtifact(event),
		}), true
	default:
		return domain.Signal{}, false
	}
}

// destinationArtifact picks the minted token id on EVM and the destination
// token account on Solana.
func destinationArtifact(event domain.Event) string {
	if event.Chain == domain.ChainEVM && event.TokenID != "" {
		return event.TokenID
	}
	return event.Account
}

// applicable pre-filters signals against the current status so duplicate
// chain events are cheap to drop. The orchestrator re-checks under its
// per-id lock; this check only avoids pointless dispatches.
func applicable(status domain.Status, kind domain.SignalKind) bool {
	outcome := domain.Transition(status, domain.Signal{Kind: kind})
	return outcome.Applied
}
