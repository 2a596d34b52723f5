// Package recovery resumes or times out stalled transfer requests. It runs
// one sweep at startup and then periodically, so a crash at any point of
// the saga leaves no request stranded.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/soljesty/solana-evm-nft-bridge-relayer/internal/bridge/domain"
	"github.com/soljesty/solana-evm-nft-bridge-relayer/internal/chain"
	"github.com/soljesty/solana-evm-nft-bridge-relayer/internal/platform/timeouts"
	"github.com/soljesty/solana-evm-nft-bridge-relayer/internal/storage"
)

// Orchestrator is the slice of the orchestrator the recovery manager
// drives.
type Orchestrator interface {
	ApplySignal(ctx context.Context, requestID string, signal domain.Signal) error
	StartMintPipeline(requestID string)
	ResumeMint(ctx context.Context, requestID string) error
	FlagForReview(ctx context.Context, requestID, reason string) error
}

// Deadlines bounds how long each lifecycle stage may stall. Zero fields
// fall back to the shared timeout constants.
type Deadlines struct {
	LockConfirm         time.Duration
	MintDispatch        time.Duration
	MintConfirm         time.Duration
	MintRedispatchAfter time.Duration
	Staleness           time.Duration
	Interval            time.Duration
}

func (d Deadlines) normalized() Deadlines {
	if d.LockConfirm <= 0 {
		d.LockConfirm = timeouts.LockConfirm
	}
	if d.MintDispatch <= 0 {
		d.MintDispatch = timeouts.MintDispatch
	}
	if d.MintConfirm <= 0 {
		d.MintConfirm = timeouts.MintConfirm
	}
	if d.MintRedispatchAfter <= 0 {
		d.MintRedispatchAfter = timeouts.MintRedispatchAfter
	}
	if d.Staleness <= 0 {
		d.Staleness = timeouts.Staleness
	}
	if d.Interval <= 0 {
		d.Interval = timeouts.RecoveryInterval
	}
	return d
}

// Manager scans non-terminal requests and re-drives the orchestrator.
type Manager struct {
	store        storage.RequestStore
	orchestrator Orchestrator
	queriers     map[domain.Chain]chain.Querier
	deadlines    Deadlines
	clock        func() time.Time
}

// New creates a recovery manager.
func New(store storage.RequestStore, orchestrator Orchestrator, queriers map[domain.Chain]chain.Querier, deadlines Deadlines, clock func() time.Time) (*Manager, error) {
	if store == nil {
		return nil, errors.New("request store is required")
	}
	if orchestrator == nil {
		return nil, errors.New("orchestrator is required")
	}
	if len(queriers) == 0 {
		return nil, errors.New("chain queriers are required")
	}
	if clock == nil {
		clock = time.Now
	}
	return &Manager{
		store:        store,
		orchestrator: orchestrator,
		queriers:     queriers,
		deadlines:    deadlines.normalized(),
		clock:        clock,
	}, nil
}

// Run performs an immediate sweep and then one per interval until ctx is
// canceled.
func (m *Manager) Run(ctx context.Context) error {
	if err := m.Sweep(ctx); err != nil {
		log.Printf("recovery sweep failed err=%v", err)
	}

	ticker := time.NewTicker(m.deadlines.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := m.Sweep(ctx); err != nil {
				log.Printf("recovery sweep failed err=%v", err)
			}
		}
	}
}

// Sweep examines every non-terminal request once. Chain query failures are
// logged and leave the request for the next sweep; a sweep error is only
// returned when the store itself cannot be read.
func (m *Manager) Sweep(ctx context.Context) error {
	received, err := m.store.ListByStatus(ctx, domain.StatusRequestReceived)
	if err != nil {
		return fmt.Errorf("list received requests: %w", err)
	}
	for _, request := range received {
		m.recoverAwaitingLock(ctx, request)
	}

	lockConfirmed, err := m.store.ListByStatus(ctx, domain.StatusTokenReceived)
	if err != nil {
		return fmt.Errorf("list lock-confirmed requests: %w", err)
	}
	for _, request := range lockConfirmed {
		m.recoverAwaitingDispatch(ctx, request)
	}

	minted, err := m.store.ListByStatus(ctx, domain.StatusTokenMinted)
	if err != nil {
		return fmt.Errorf("list minted requests: %w", err)
	}
	for _, request := range minted {
		m.recoverAwaitingConfirmation(ctx, request)
	}

	return nil
}

// recoverAwaitingLock handles requests still waiting for the origin lock.
// The origin chain is queried, never guessed at: a lock that actually
// landed is confirmed even when its event was missed.
func (m *Manager) recoverAwaitingLock(ctx context.Context, request domain.Request) {
	age := m.clock().Sub(request.CreatedAt)
	if age <= m.deadlines.LockConfirm {
		return
	}

	origin, ok := m.queriers[request.OriginChain]
	if !ok {
		log.Printf("recovery has no querier request_id=%s chain=%s", request.ID, request.OriginChain)
		return
	}
	present, err := origin.LockPresent(ctx, request)
	if err != nil {
		log.Printf("recovery lock check failed request_id=%s err=%v", request.ID, err)
		if age <= m.deadlines.Staleness {
			return
		}
		// The origin has been unreachable for the whole staleness window;
		// no lock was ever confirmed, so nothing irreversible happened and
		// the request cancels rather than sit non-terminal forever.
		if err := m.orchestrator.ApplySignal(ctx, request.ID, domain.Timeout("recovery-timeout")); err != nil {
			log.Printf("recovery timeout failed request_id=%s err=%v", request.ID, err)
		}
		return
	}

	if present {
		log.Printf("recovery found missed lock request_id=%s", request.ID)
		if err := m.orchestrator.ApplySignal(ctx, request.ID, domain.LockConfirmed(domain.TokenMetadata{})); err != nil {
			log.Printf("recovery lock confirm failed request_id=%s err=%v", request.ID, err)
		}
		return
	}

	reason := "timeout"
	if age > m.deadlines.Staleness {
		reason = "recovery-timeout"
	}
	if err := m.orchestrator.ApplySignal(ctx, request.ID, domain.Timeout(reason)); err != nil {
		log.Printf("recovery timeout failed request_id=%s err=%v", request.ID, err)
	}
}

// recoverAwaitingDispatch restarts the mint pipeline for requests whose
// lock was confirmed but whose pipeline was lost before the mint handoff.
// No mint was ever attempted for these, so re-running is safe.
func (m *Manager) recoverAwaitingDispatch(ctx context.Context, request domain.Request) {
	now := m.clock()
	if now.Sub(request.CreatedAt) > m.deadlines.Staleness {
		if err := m.orchestrator.ApplySignal(ctx, request.ID, domain.Timeout("recovery-timeout")); err != nil {
			log.Printf("recovery timeout failed request_id=%s err=%v", request.ID, err)
		}
		return
	}
	if now.Sub(request.UpdatedAt) <= m.deadlines.MintDispatch {
		return
	}
	log.Printf("recovery restarting mint pipeline request_id=%s", request.ID)
	m.orchestrator.StartMintPipeline(request.ID)
}

// recoverAwaitingConfirmation handles requests with the mint-attempted
// marker set. The destination chain is always queried before any new mint
// command: this is the guard that keeps the irreversible action at most
// once.
func (m *Manager) recoverAwaitingConfirmation(ctx context.Context, request domain.Request) {
	destination, ok := m.queriers[request.DestinationChain]
	if !ok {
		log.Printf("recovery has no querier request_id=%s chain=%s", request.ID, request.DestinationChain)
		return
	}

	exists, err := destination.MintExists(ctx, request.ID)
	if err != nil {
		log.Printf("recovery mint check failed request_id=%s err=%v", request.ID, err)
		return
	}

	if exists {
		log.Printf("recovery found missed mint confirmation request_id=%s", request.ID)
		if err := m.orchestrator.ApplySignal(ctx, request.ID, domain.MintConfirmed(domain.Output{})); err != nil {
			log.Printf("recovery mint confirm failed request_id=%s err=%v", request.ID, err)
		}
		return
	}

	now := m.clock()
	dispatchedAt := request.MintDispatchedAt
	if dispatchedAt.IsZero() {
		dispatchedAt = request.UpdatedAt
	}

	if now.Sub(dispatchedAt) > m.deadlines.MintConfirm {
		// Canceling here would abandon a locked source token while the
		// mint outcome is unknown; hand the request to an operator
		// instead.
		if err := m.orchestrator.FlagForReview(ctx, request.ID, "mint unconfirmed past deadline"); err != nil {
			log.Printf("recovery review flag failed request_id=%s err=%v", request.ID, err)
		}
		return
	}

	if now.Sub(dispatchedAt) > m.deadlines.MintRedispatchAfter {
		if err := m.orchestrator.ResumeMint(ctx, request.ID); err != nil {
			log.Printf("recovery mint resume failed request_id=%s err=%v", request.ID, err)
		}
	}
}
