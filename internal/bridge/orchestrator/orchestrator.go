// Package orchestrator owns every mutation of a transfer request. It
// serializes work per request id, drives the pure transition function,
// persists outcomes, and hands commands to the chain sinks.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/soljesty/solana-evm-nft-bridge-relayer/internal/bridge/domain"
	"github.com/soljesty/solana-evm-nft-bridge-relayer/internal/chain"
	platformerrors "github.com/soljesty/solana-evm-nft-bridge-relayer/internal/platform/errors"
	"github.com/soljesty/solana-evm-nft-bridge-relayer/internal/platform/id"
	"github.com/soljesty/solana-evm-nft-bridge-relayer/internal/platform/retry"
	"github.com/soljesty/solana-evm-nft-bridge-relayer/internal/storage"
	"github.com/soljesty/solana-evm-nft-bridge-relayer/internal/telemetry"
)

// errStale marks a signal that does not apply to the current status. It
// never leaves this package; stale signals are logged and dropped.
var errStale = errors.New("stale signal")

// Config wires the orchestrator's collaborators.
type Config struct {
	// Queriers provides read access per chain.
	Queriers map[domain.Chain]chain.Querier
	// Sinks provides the bounded command queue per chain.
	Sinks map[domain.Chain]chan<- domain.Command
	// FetchPolicy bounds metadata fetch retries. Defaults to
	// retry.Default.
	FetchPolicy retry.Policy
	// BaseContext scopes the mint pipelines spawned by lock
	// confirmations. Defaults to context.Background.
	BaseContext context.Context
	// Clock and NewID are injectable for tests.
	Clock func() time.Time
	NewID func() (string, error)
}

// Orchestrator coordinates the transfer request lifecycle.
type Orchestrator struct {
	store    storage.RequestStore
	audit    *telemetry.Emitter
	queriers map[domain.Chain]chain.Querier
	sinks    map[domain.Chain]chan<- domain.Command
	policy   retry.Policy
	base     context.Context
	clock    func() time.Time
	newID    func() (string, error)
	locks    *keyedMutex
	tracer   trace.Tracer

	pipelines sync.WaitGroup
}

// New creates an orchestrator over the given store and collaborators.
func New(store storage.RequestStore, audit *telemetry.Emitter, cfg Config) (*Orchestrator, error) {
	if store == nil {
		return nil, errors.New("request store is required")
	}
	if len(cfg.Queriers) == 0 {
		return nil, errors.New("chain queriers are required")
	}
	if len(cfg.Sinks) == 0 {
		return nil, errors.New("command sinks are required")
	}
	policy := cfg.FetchPolicy
	if policy == (retry.Policy{}) {
		policy = retry.Default
	}
	base := cfg.BaseContext
	if base == nil {
		base = context.Background()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	newID := cfg.NewID
	if newID == nil {
		newID = id.NewRequestID
	}
	return &Orchestrator{
		store:    store,
		audit:    audit,
		queriers: cfg.Queriers,
		sinks:    cfg.Sinks,
		policy:   policy,
		base:     base,
		clock:    clock,
		newID:    newID,
		locks:    newKeyedMutex(),
		tracer:   otel.Tracer("bridge/orchestrator"),
	}, nil
}

// Create validates a transfer, persists it in RequestReceived, and issues
// the origin-chain lock-verify command. Nothing is persisted when
// validation fails.
func (o *Orchestrator) Create(ctx context.Context, input domain.TransferInput) (domain.Request, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.Create")
	defer span.End()

	normalized, err := domain.NormalizeTransferInput(input)
	if err != nil {
		return domain.Request{}, platformerrors.Wrap(platformerrors.CodeInvalidInput, err.Error(), err)
	}

	origin, ok := o.queriers[normalized.OriginChain]
	if !ok {
		return domain.Request{}, platformerrors.New(platformerrors.CodeInvalidInput, fmt.Sprintf("unsupported origin chain %s", normalized.OriginChain))
	}
	destination, ok := o.queriers[normalized.OriginChain.Opposite()]
	if !ok {
		return domain.Request{}, platformerrors.New(platformerrors.CodeInvalidInput, fmt.Sprintf("unsupported destination chain %s", normalized.OriginChain.Opposite()))
	}
	if err := origin.ValidateAccount(normalized.OriginAsset); err != nil {
		return domain.Request{}, platformerrors.Wrap(platformerrors.CodeInvalidInput, fmt.Sprintf("invalid origin asset: %v", err), err)
	}
	if err := origin.ValidateAccount(normalized.OriginHolder); err != nil {
		return domain.Request{}, platformerrors.Wrap(platformerrors.CodeInvalidInput, fmt.Sprintf("invalid origin holder: %v", err), err)
	}
	if err := destination.ValidateAccount(normalized.DestinationAccount); err != nil {
		return domain.Request{}, platformerrors.Wrap(platformerrors.CodeInvalidInput, fmt.Sprintf("invalid destination account: %v", err), err)
	}

	requestID, err := o.newID()
	if err != nil {
		return domain.Request{}, platformerrors.Wrap(platformerrors.CodeUnknown, "generate request id", err)
	}
	fingerprint := id.TransferFingerprint(normalized.OriginAsset, normalized.OriginTokenID, normalized.OriginHolder)

	request, err := domain.NewRequest(requestID, fingerprint, normalized, o.clock())
	if err != nil {
		return domain.Request{}, platformerrors.Wrap(platformerrors.CodeInvalidInput, err.Error(), err)
	}

	if err := o.store.CreateRequest(ctx, request); err != nil {
		switch {
		case errors.Is(err, storage.ErrDuplicateTransfer):
			return domain.Request{}, platformerrors.Wrap(platformerrors.CodeDuplicateTransfer, "transfer already in flight for this token", err)
		case errors.Is(err, storage.ErrAlreadyExists):
			return domain.Request{}, platformerrors.Wrap(platformerrors.CodeAlreadyExists, "request id collision", err)
		default:
			return domain.Request{}, platformerrors.Wrap(platformerrors.CodeStorage, "persist request", err)
		}
	}
	span.SetAttributes(attribute.String("request.id", request.ID))

	command := domain.Command{
		RequestID: request.ID,
		Action:    domain.ActionLockVerify,
		Asset:     request.OriginAsset,
		TokenID:   request.OriginTokenID,
		Holder:    request.OriginHolder,
	}
	if err := o.dispatch(ctx, request.OriginChain, command); err != nil {
		// The request stays persisted; the recovery manager re-checks
		// the origin chain and times it out if the lock never lands.
		log.Printf("dispatch lock-verify request_id=%s chain=%s err=%v", request.ID, request.OriginChain, err)
	}

	o.emitAudit(ctx, request.ID, domain.StatusUnspecified, domain.StatusRequestReceived, "Created", "")
	log.Printf("request created request_id=%s origin=%s destination=%s", request.ID, request.OriginChain, request.DestinationChain)
	return request, nil
}

// ApplySignal advances a request through the state machine and runs any
// side effect. Unknown ids and stale or duplicate signals are logged and
// dropped; they are not errors to the event pipeline.
func (o *Orchestrator) ApplySignal(ctx context.Context, requestID string, signal domain.Signal) error {
	ctx, span := o.tracer.Start(ctx, "orchestrator.ApplySignal",
		trace.WithAttributes(
			attribute.String("request.id", requestID),
			attribute.String("signal", signal.Kind.String()),
		))
	defer span.End()

	unlock := o.locks.Lock(requestID)
	defer unlock()

	updated, outcome, err := o.transitionLocked(ctx, requestID, signal)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			log.Printf("signal for unknown request discarded request_id=%s signal=%s", requestID, signal.Kind)
			return nil
		case errors.Is(err, errStale):
			log.Printf("discarded-duplicate request_id=%s signal=%s", requestID, signal.Kind)
			return nil
		default:
			return platformerrors.Wrap(platformerrors.CodeStorage, "apply signal", err)
		}
	}

	log.Printf("processed request_id=%s signal=%s status=%s", requestID, signal.Kind, updated.Status)
	o.emitAudit(ctx, requestID, outcome.from, updated.Status, signal.Kind.String(), outcome.detail)

	if outcome.effect == domain.EffectFetchAndMint {
		o.startMintPipeline(requestID)
	}
	return nil
}

// transitionOutcome captures what a persisted transition changed.
type transitionOutcome struct {
	from   domain.Status
	effect domain.Effect
	detail string
}

// transitionLocked runs the read-modify-write for one signal. Callers hold
// the per-id lock.
func (o *Orchestrator) transitionLocked(ctx context.Context, requestID string, signal domain.Signal) (domain.Request, transitionOutcome, error) {
	var outcome transitionOutcome
	updated, err := o.store.UpdateRequest(ctx, requestID, func(request *domain.Request) error {
		result := domain.Transition(request.Status, signal)
		if !result.Applied {
			return errStale
		}
		outcome.from = request.Status
		outcome.effect = result.Effect
		outcome.detail = result.Error

		request.Status = result.Next
		request.UpdatedAt = o.clock().UTC()

		switch signal.Kind {
		case domain.SignalLockConfirmed, domain.SignalMintDispatched:
			if request.Metadata.IsZero() && !signal.Metadata.IsZero() {
				request.Metadata = signal.Metadata
			}
			if signal.Kind == domain.SignalMintDispatched {
				request.MintDispatchedAt = signal.DispatchedAt.UTC()
			}
		case domain.SignalMintConfirmed:
			// Recovery synthesizes confirmations without destination
			// artifacts; keep whatever is already recorded then.
			if signal.Output != (domain.Output{}) {
				request.Output = signal.Output
			}
		case domain.SignalTimeout, domain.SignalUnrecoverable:
			request.Error = result.Error
		}
		return nil
	})
	if err != nil {
		return domain.Request{}, outcome, err
	}
	return updated, outcome, nil
}

// Get fetches a request by id.
func (o *Orchestrator) Get(ctx context.Context, requestID string) (domain.Request, error) {
	request, err := o.store.GetRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.Request{}, platformerrors.Wrap(platformerrors.CodeNotFound, fmt.Sprintf("request %s not found", requestID), err)
		}
		return domain.Request{}, platformerrors.Wrap(platformerrors.CodeStorage, "load request", err)
	}
	return request, nil
}

// List returns a snapshot of all requests with the given status.
func (o *Orchestrator) List(ctx context.Context, status domain.Status) ([]domain.Request, error) {
	requests, err := o.store.ListByStatus(ctx, status)
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.CodeStorage, "list requests", err)
	}
	return requests, nil
}

// ListPending returns a snapshot of every non-terminal request.
func (o *Orchestrator) ListPending(ctx context.Context) ([]domain.Request, error) {
	var pending []domain.Request
	for _, status := range []domain.Status{domain.StatusRequestReceived, domain.StatusTokenReceived, domain.StatusTokenMinted} {
		requests, err := o.List(ctx, status)
		if err != nil {
			return nil, err
		}
		pending = append(pending, requests...)
	}
	return pending, nil
}

// ListCompleted returns a snapshot of all completed requests.
func (o *Orchestrator) ListCompleted(ctx context.Context) ([]domain.Request, error) {
	return o.List(ctx, domain.StatusCompleted)
}

// RecordTransaction appends a submitted chain transaction hash to a
// request. Sinks call it after each successful submission; it relies on the
// store's transactional update and must stay off the per-id lock, which a
// backpressured dispatch may hold while the sink is the one draining it.
func (o *Orchestrator) RecordTransaction(ctx context.Context, requestID, txHash string) error {
	if txHash == "" {
		return nil
	}
	_, err := o.store.UpdateRequest(ctx, requestID, func(request *domain.Request) error {
		request.TxHashes = append(request.TxHashes, txHash)
		request.UpdatedAt = o.clock().UTC()
		return nil
	})
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return platformerrors.Wrap(platformerrors.CodeStorage, "record transaction", err)
	}
	return nil
}

// ReportFailure cancels a request after a permanent chain failure.
func (o *Orchestrator) ReportFailure(ctx context.Context, requestID, reason string) error {
	return o.ApplySignal(ctx, requestID, domain.Unrecoverable(reason))
}

// StartMintPipeline re-runs the fetch-metadata-then-mint pipeline for a
// lock-confirmed request. The recovery manager uses it for requests whose
// pipeline was lost to a crash.
func (o *Orchestrator) StartMintPipeline(requestID string) {
	o.startMintPipeline(requestID)
}

// ResumeMint re-dispatches the mint command for a request already marked
// TokenMinted. Callers must have verified the destination chain holds no
// mint for the request id; the orchestrator trusts that check and only
// refreshes the dispatch timestamp.
func (o *Orchestrator) ResumeMint(ctx context.Context, requestID string) error {
	unlock := o.locks.Lock(requestID)
	request, err := o.store.GetRequest(ctx, requestID)
	if err != nil {
		unlock()
		if errors.Is(err, storage.ErrNotFound) {
			return platformerrors.Wrap(platformerrors.CodeNotFound, fmt.Sprintf("request %s not found", requestID), err)
		}
		return platformerrors.Wrap(platformerrors.CodeStorage, "load request", err)
	}
	if request.Status != domain.StatusTokenMinted {
		unlock()
		log.Printf("resume mint skipped request_id=%s status=%s", requestID, request.Status)
		return nil
	}
	// The queue send blocks on backpressure and the draining sink calls
	// back into RecordTransaction, so the per-id lock cannot be held across
	// the handoff.
	unlock()

	if err := o.dispatch(ctx, request.DestinationChain, mintCommand(request)); err != nil {
		return platformerrors.Wrap(platformerrors.CodeChainUnavailable, "dispatch mint", err)
	}

	// Stamp only after the handoff lands; a failed re-dispatch must not
	// push the next retry out by a full redispatch window.
	if _, err := o.store.UpdateRequest(ctx, requestID, func(request *domain.Request) error {
		request.MintDispatchedAt = o.clock().UTC()
		request.UpdatedAt = request.MintDispatchedAt
		return nil
	}); err != nil {
		return platformerrors.Wrap(platformerrors.CodeStorage, "refresh mint dispatch", err)
	}
	o.emitAudit(ctx, requestID, domain.StatusTokenMinted, domain.StatusTokenMinted, "MintRedispatched", "")
	log.Printf("mint re-dispatched request_id=%s chain=%s", requestID, request.DestinationChain)
	return nil
}

// FlagForReview marks a request for manual operator review without moving
// it through the state machine. Used by the recovery manager when the
// destination mint outcome cannot be determined before its deadline.
func (o *Orchestrator) FlagForReview(ctx context.Context, requestID, reason string) error {
	unlock := o.locks.Lock(requestID)
	defer unlock()

	var flagged bool
	updated, err := o.store.UpdateRequest(ctx, requestID, func(request *domain.Request) error {
		if request.NeedsReview {
			return nil
		}
		request.NeedsReview = true
		request.UpdatedAt = o.clock().UTC()
		flagged = true
		return nil
	})
	if err != nil {
		return platformerrors.Wrap(platformerrors.CodeStorage, "flag for review", err)
	}
	if flagged {
		o.emitAudit(ctx, requestID, updated.Status, updated.Status, "RecoveryAmbiguous", reason)
		log.Printf("request flagged for manual review request_id=%s reason=%s", requestID, reason)
	}
	return nil
}

// Wait blocks until all in-flight mint pipelines finish. Used during
// shutdown.
func (o *Orchestrator) Wait() {
	o.pipelines.Wait()
}

// startMintPipeline launches the fetch-metadata-then-mint goroutine for one
// request. The pipeline owns the blocking metadata fetch so the signal
// paths of other requests are never held up.
func (o *Orchestrator) startMintPipeline(requestID string) {
	o.pipelines.Add(1)
	go func() {
		defer o.pipelines.Done()
		if err := o.fetchAndMint(o.base, requestID); err != nil {
			log.Printf("mint pipeline failed request_id=%s err=%v", requestID, err)
		}
	}()
}

// fetchAndMint captures origin metadata and performs the one mint handoff.
// The TokenMinted marker is persisted before the command reaches the sink,
// so a crash at any point leaves a state recovery can reason about.
func (o *Orchestrator) fetchAndMint(ctx context.Context, requestID string) error {
	ctx, span := o.tracer.Start(ctx, "orchestrator.fetchAndMint",
		trace.WithAttributes(attribute.String("request.id", requestID)))
	defer span.End()

	request, err := o.store.GetRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if request.Status != domain.StatusTokenReceived {
		log.Printf("mint pipeline skipped request_id=%s status=%s", requestID, request.Status)
		return nil
	}

	metadata := request.Metadata
	if metadata.IsZero() {
		origin, ok := o.queriers[request.OriginChain]
		if !ok {
			return fmt.Errorf("no querier for chain %s", request.OriginChain)
		}
		metadata, err = retry.Do(ctx, o.policy, func() (domain.TokenMetadata, error) {
			return origin.TokenMetadata(ctx, request.OriginAsset, request.OriginTokenID)
		})
		if err != nil {
			return o.ApplySignal(ctx, requestID, domain.Unrecoverable(fmt.Sprintf("metadata fetch failed: %v", err)))
		}
	}

	unlock := o.locks.Lock(requestID)
	updated, outcome, err := o.transitionLocked(ctx, requestID, domain.MintDispatched(metadata, o.clock()))
	unlock()
	if err != nil {
		if errors.Is(err, errStale) {
			// A duplicate lock event or a racing recovery sweep already
			// moved the request; minting once is the whole point.
			log.Printf("mint handoff skipped request_id=%s", requestID)
			return nil
		}
		return err
	}
	o.emitAudit(ctx, requestID, outcome.from, updated.Status, domain.SignalMintDispatched.String(), "")

	// The lock is released before the send: the sink draining this queue
	// reports back through paths that contend for the same per-id
	// serialization.
	if err := o.dispatch(ctx, updated.DestinationChain, mintCommand(updated)); err != nil {
		// Marker is already persisted; recovery re-checks the
		// destination chain before any further attempt.
		return fmt.Errorf("dispatch mint: %w", err)
	}
	log.Printf("mint dispatched request_id=%s chain=%s", requestID, updated.DestinationChain)
	return nil
}

// dispatch hands a command to the chain's bounded queue, blocking for
// backpressure until the sink drains it or ctx is canceled.
func (o *Orchestrator) dispatch(ctx context.Context, target domain.Chain, command domain.Command) error {
	sink, ok := o.sinks[target]
	if !ok {
		return fmt.Errorf("no command sink for chain %s", target)
	}
	select {
	case sink <- command:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) emitAudit(ctx context.Context, requestID string, from, to domain.Status, signal, detail string) {
	event := storage.AuditEvent{
		RequestID: requestID,
		From:      from.String(),
		To:        to.String(),
		Signal:    signal,
		Detail:    detail,
	}
	if err := o.audit.Emit(ctx, event); err != nil {
		log.Printf("emit audit event request_id=%s err=%v", requestID, err)
	}
}

func mintCommand(request domain.Request) domain.Command {
	return domain.Command{
		RequestID:          request.ID,
		Action:             domain.ActionMint,
		Asset:              request.OriginAsset,
		TokenID:            request.OriginTokenID,
		DestinationAccount: request.DestinationAccount,
		Metadata:           request.Metadata,
	}
}
