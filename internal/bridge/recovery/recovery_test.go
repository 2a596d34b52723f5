package recovery

import (
	"context"
	"testing"
	"time"

	"github.com/soljesty/solana-evm-nft-bridge-relayer/internal/bridge/domain"
	"github.com/soljesty/solana-evm-nft-bridge-relayer/internal/chain"
)

type fakeStore struct {
	requests []domain.Request
}

func (s *fakeStore) CreateRequest(context.Context, domain.Request) error { return nil }

func (s *fakeStore) GetRequest(_ context.Context, id string) (domain.Request, error) {
	for _, request := range s.requests {
		if request.ID == id {
			return request, nil
		}
	}
	return domain.Request{}, nil
}

func (s *fakeStore) UpdateRequest(context.Context, string, func(*domain.Request) error) (domain.Request, error) {
	return domain.Request{}, nil
}

func (s *fakeStore) ListByStatus(_ context.Context, status domain.Status) ([]domain.Request, error) {
	var matched []domain.Request
	for _, request := range s.requests {
		if request.Status == status {
			matched = append(matched, request)
		}
	}
	return matched, nil
}

type fakeQuerier struct {
	lockPresent bool
	lockErr     error
	mintExists  bool
	mintErr     error
}

func (q *fakeQuerier) ValidateAccount(string) error { return nil }

func (q *fakeQuerier) LockPresent(context.Context, domain.Request) (bool, error) {
	return q.lockPresent, q.lockErr
}

func (q *fakeQuerier) MintExists(context.Context, string) (bool, error) {
	return q.mintExists, q.mintErr
}

func (q *fakeQuerier) TokenMetadata(context.Context, string, string) (domain.TokenMetadata, error) {
	return domain.TokenMetadata{}, nil
}

type fakeOrchestrator struct {
	signals   []appliedSignal
	pipelines []string
	resumed   []string
	reviewed  []string
}

type appliedSignal struct {
	requestID string
	signal    domain.Signal
}

func (o *fakeOrchestrator) ApplySignal(_ context.Context, requestID string, signal domain.Signal) error {
	o.signals = append(o.signals, appliedSignal{requestID: requestID, signal: signal})
	return nil
}

func (o *fakeOrchestrator) StartMintPipeline(requestID string) {
	o.pipelines = append(o.pipelines, requestID)
}

func (o *fakeOrchestrator) ResumeMint(_ context.Context, requestID string) error {
	o.resumed = append(o.resumed, requestID)
	return nil
}

func (o *fakeOrchestrator) FlagForReview(_ context.Context, requestID, _ string) error {
	o.reviewed = append(o.reviewed, requestID)
	return nil
}

var sweepNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func testDeadlines() Deadlines {
	return Deadlines{
		LockConfirm:         10 * time.Minute,
		MintDispatch:        2 * time.Minute,
		MintConfirm:         10 * time.Minute,
		MintRedispatchAfter: 90 * time.Second,
		Staleness:           24 * time.Hour,
		Interval:            time.Second,
	}
}

func newManager(t *testing.T, store *fakeStore, core *fakeOrchestrator, evm, solana *fakeQuerier) *Manager {
	t.Helper()
	manager, err := New(store, core, map[domain.Chain]chain.Querier{
		domain.ChainEVM:    evm,
		domain.ChainSolana: solana,
	}, testDeadlines(), func() time.Time { return sweepNow })
	if err != nil {
		t.Fatalf("build recovery manager: %v", err)
	}
	return manager
}

func awaitingLockRequest(age time.Duration) domain.Request {
	return domain.Request{
		ID:               "req-1",
		OriginChain:      domain.ChainEVM,
		DestinationChain: domain.ChainSolana,
		Status:           domain.StatusRequestReceived,
		CreatedAt:        sweepNow.Add(-age),
		UpdatedAt:        sweepNow.Add(-age),
	}
}

func TestSweepLeavesFreshRequestsAlone(t *testing.T) {
	store := &fakeStore{requests: []domain.Request{awaitingLockRequest(time.Minute)}}
	core := &fakeOrchestrator{}
	manager := newManager(t, store, core, &fakeQuerier{}, &fakeQuerier{})

	if err := manager.Sweep(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(core.signals) != 0 || len(core.pipelines) != 0 {
		t.Fatalf("expected no action on fresh request, got %+v", core)
	}
}

func TestSweepConfirmsMissedLock(t *testing.T) {
	store := &fakeStore{requests: []domain.Request{awaitingLockRequest(time.Hour)}}
	core := &fakeOrchestrator{}
	manager := newManager(t, store, core, &fakeQuerier{lockPresent: true}, &fakeQuerier{})

	if err := manager.Sweep(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(core.signals) != 1 {
		t.Fatalf("expected one signal, got %d", len(core.signals))
	}
	if core.signals[0].signal.Kind != domain.SignalLockConfirmed {
		t.Fatalf("expected %q, got %q", domain.SignalLockConfirmed, core.signals[0].signal.Kind)
	}
}

func TestSweepTimesOutAbsentLock(t *testing.T) {
	store := &fakeStore{requests: []domain.Request{awaitingLockRequest(time.Hour)}}
	core := &fakeOrchestrator{}
	manager := newManager(t, store, core, &fakeQuerier{lockPresent: false}, &fakeQuerier{})

	if err := manager.Sweep(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(core.signals) != 1 {
		t.Fatalf("expected one signal, got %d", len(core.signals))
	}
	got := core.signals[0].signal
	if got.Kind != domain.SignalTimeout {
		t.Fatalf("expected %q, got %q", domain.SignalTimeout, got.Kind)
	}
	if got.Reason != "timeout" {
		t.Fatalf("expected reason %q, got %q", "timeout", got.Reason)
	}
}

func TestSweepMarksStaleRequestsWithRecoveryTimeout(t *testing.T) {
	store := &fakeStore{requests: []domain.Request{awaitingLockRequest(48 * time.Hour)}}
	core := &fakeOrchestrator{}
	manager := newManager(t, store, core, &fakeQuerier{lockPresent: false}, &fakeQuerier{})

	if err := manager.Sweep(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(core.signals) != 1 || core.signals[0].signal.Reason != "recovery-timeout" {
		t.Fatalf("expected recovery-timeout signal, got %+v", core.signals)
	}
}

func TestSweepSkipsActionOnLockQueryFailure(t *testing.T) {
	store := &fakeStore{requests: []domain.Request{awaitingLockRequest(time.Hour)}}
	core := &fakeOrchestrator{}
	evm := &fakeQuerier{lockErr: context.DeadlineExceeded}
	manager := newManager(t, store, core, evm, &fakeQuerier{})

	if err := manager.Sweep(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	// Unreachable chain must never time a request out; the next sweep
	// retries.
	if len(core.signals) != 0 {
		t.Fatalf("expected no signal while the chain is unreachable, got %+v", core.signals)
	}
}

func TestSweepCancelsStaleRequestWhenOriginUnreachable(t *testing.T) {
	store := &fakeStore{requests: []domain.Request{awaitingLockRequest(48 * time.Hour)}}
	core := &fakeOrchestrator{}
	evm := &fakeQuerier{lockErr: context.DeadlineExceeded}
	manager := newManager(t, store, core, evm, &fakeQuerier{})

	if err := manager.Sweep(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	// No lock was ever confirmed, so past the staleness ceiling the
	// request cancels even though the origin cannot be queried.
	if len(core.signals) != 1 {
		t.Fatalf("expected one signal, got %+v", core.signals)
	}
	got := core.signals[0].signal
	if got.Kind != domain.SignalTimeout || got.Reason != "recovery-timeout" {
		t.Fatalf("expected recovery-timeout, got %+v", got)
	}
}

func TestSweepRestartsLostMintPipeline(t *testing.T) {
	request := awaitingLockRequest(time.Hour)
	request.Status = domain.StatusTokenReceived
	store := &fakeStore{requests: []domain.Request{request}}
	core := &fakeOrchestrator{}
	manager := newManager(t, store, core, &fakeQuerier{}, &fakeQuerier{})

	if err := manager.Sweep(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(core.pipelines) != 1 || core.pipelines[0] != "req-1" {
		t.Fatalf("expected pipeline restart for req-1, got %+v", core.pipelines)
	}
}

func TestSweepConfirmsMintFoundOnDestination(t *testing.T) {
	request := awaitingLockRequest(time.Hour)
	request.Status = domain.StatusTokenMinted
	request.MintDispatchedAt = sweepNow.Add(-time.Hour)
	store := &fakeStore{requests: []domain.Request{request}}
	core := &fakeOrchestrator{}
	manager := newManager(t, store, core, &fakeQuerier{}, &fakeQuerier{mintExists: true})

	if err := manager.Sweep(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(core.signals) != 1 || core.signals[0].signal.Kind != domain.SignalMintConfirmed {
		t.Fatalf("expected mint confirmation, got %+v", core.signals)
	}
	if len(core.resumed) != 0 {
		t.Fatalf("expected no re-dispatch when the mint landed, got %+v", core.resumed)
	}
}

func TestSweepRedispatchesUnconfirmedMint(t *testing.T) {
	request := awaitingLockRequest(time.Hour)
	request.Status = domain.StatusTokenMinted
	request.MintDispatchedAt = sweepNow.Add(-3 * time.Minute)
	store := &fakeStore{requests: []domain.Request{request}}
	core := &fakeOrchestrator{}
	manager := newManager(t, store, core, &fakeQuerier{}, &fakeQuerier{mintExists: false})

	if err := manager.Sweep(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(core.resumed) != 1 || core.resumed[0] != "req-1" {
		t.Fatalf("expected mint re-dispatch for req-1, got %+v", core.resumed)
	}
}

func TestSweepRateLimitsRedispatch(t *testing.T) {
	request := awaitingLockRequest(time.Hour)
	request.Status = domain.StatusTokenMinted
	request.MintDispatchedAt = sweepNow.Add(-30 * time.Second)
	store := &fakeStore{requests: []domain.Request{request}}
	core := &fakeOrchestrator{}
	manager := newManager(t, store, core, &fakeQuerier{}, &fakeQuerier{mintExists: false})

	if err := manager.Sweep(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(core.resumed) != 0 {
		t.Fatalf("expected no re-dispatch within the redispatch window, got %+v", core.resumed)
	}
}

func TestSweepFlagsAmbiguousMintForReview(t *testing.T) {
	request := awaitingLockRequest(time.Hour)
	request.Status = domain.StatusTokenMinted
	request.MintDispatchedAt = sweepNow.Add(-time.Hour)
	store := &fakeStore{requests: []domain.Request{request}}
	core := &fakeOrchestrator{}
	manager := newManager(t, store, core, &fakeQuerier{}, &fakeQuerier{mintExists: false})

	if err := manager.Sweep(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	// A locked origin token with an unknown mint outcome must go to an
	// operator, never to cancellation.
	if len(core.reviewed) != 1 || core.reviewed[0] != "req-1" {
		t.Fatalf("expected review flag for req-1, got %+v", core.reviewed)
	}
	if len(core.signals) != 0 {
		t.Fatalf("expected no cancel signal, got %+v", core.signals)
	}
}

func TestSweepSkipsMintActionOnQueryFailure(t *testing.T) {
	request := awaitingLockRequest(time.Hour)
	request.Status = domain.StatusTokenMinted
	request.MintDispatchedAt = sweepNow.Add(-time.Hour)
	store := &fakeStore{requests: []domain.Request{request}}
	core := &fakeOrchestrator{}
	solana := &fakeQuerier{mintErr: context.DeadlineExceeded}
	manager := newManager(t, store, core, &fakeQuerier{}, solana)

	if err := manager.Sweep(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(core.resumed) != 0 || len(core.reviewed) != 0 || len(core.signals) != 0 {
		t.Fatalf("expected no action while the destination is unreachable, got %+v", core)
	}
}
