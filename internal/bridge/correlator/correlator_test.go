package correlator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/soljesty/solana-evm-nft-bridge-relayer/internal/bridge/domain"
	"github.com/soljesty/solana-evm-nft-bridge-relayer/internal/storage"
)

type fakeReader struct {
	requests map[string]domain.Request
}

func (r *fakeReader) GetRequest(_ context.Context, id string) (domain.Request, error) {
	request, ok := r.requests[id]
	if !ok {
		return domain.Request{}, storage.ErrNotFound
	}
	return request, nil
}

type fakeApplier struct {
	applied chan appliedSignal
}

type appliedSignal struct {
	requestID string
	signal    domain.Signal
}

func (a *fakeApplier) ApplySignal(_ context.Context, requestID string, signal domain.Signal) error {
	a.applied <- appliedSignal{requestID: requestID, signal: signal}
	return nil
}

func runCorrelator(t *testing.T, reader *fakeReader) (chan<- domain.Event, *fakeApplier, func()) {
	t.Helper()

	events := make(chan domain.Event, 8)
	applier := &fakeApplier{applied: make(chan appliedSignal, 8)}
	c, err := New(reader, applier, events)
	if err != nil {
		t.Fatalf("build correlator: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.Run(ctx)
	}()
	return events, applier, func() {
		cancel()
		<-done
	}
}

func expectSignal(t *testing.T, applier *fakeApplier) appliedSignal {
	t.Helper()
	select {
	case got := <-applier.applied:
		return got
	case <-time.After(time.Second):
		t.Fatal("expected a signal to be applied")
		return appliedSignal{}
	}
}

func expectNoSignal(t *testing.T, applier *fakeApplier) {
	t.Helper()
	select {
	case got := <-applier.applied:
		t.Fatalf("expected no signal, got %q for %q", got.signal.Kind, got.requestID)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestNewRequestEventBecomesLockConfirmation(t *testing.T) {
	reader := &fakeReader{requests: map[string]domain.Request{
		"req-1": {ID: "req-1", Status: domain.StatusRequestReceived},
	}}
	events, applier, stop := runCorrelator(t, reader)
	defer stop()

	events <- domain.Event{
		Kind:      domain.EventNewRequest,
		Chain:     domain.ChainEVM,
		RequestID: "req-1",
		Asset:     "0x90f79bf6eb2c4f870365e785982e1f101e93b906",
	}

	got := expectSignal(t, applier)
	if got.requestID != "req-1" {
		t.Fatalf("expected signal for req-1, got %q", got.requestID)
	}
	if got.signal.Kind != domain.SignalLockConfirmed {
		t.Fatalf("expected %q, got %q", domain.SignalLockConfirmed, got.signal.Kind)
	}
}

func TestTokenMintedEventCarriesDestinationOutput(t *testing.T) {
	reader := &fakeReader{requests: map[string]domain.Request{
		"req-1": {ID: "req-1", Status: domain.StatusTokenMinted},
	}}
	events, applier, stop := runCorrelator(t, reader)
	defer stop()

	events <- domain.Event{
		Kind:      domain.EventTokenMinted,
		Chain:     domain.ChainEVM,
		RequestID: "req-1",
		Asset:     "0x2279b7a0a67db372996a5fab50d91eaa73d2ebe6",
		Account:   "0x15d34aaf54267db7d7c367839aaf71a00a2c6a65",
		TokenID:   "42",
	}

	got := expectSignal(t, applier)
	if got.signal.Kind != domain.SignalMintConfirmed {
		t.Fatalf("expected %q, got %q", domain.SignalMintConfirmed, got.signal.Kind)
	}
	if got.signal.Output.DestinationAsset != "0x2279b7a0a67db372996a5fab50d91eaa73d2ebe6" {
		t.Fatalf("expected destination asset, got %q", got.signal.Output.DestinationAsset)
	}
	// On EVM the minted token id identifies the artifact.
	if got.signal.Output.DestinationTokenOrAccount != "42" {
		t.Fatalf("expected token id 42, got %q", got.signal.Output.DestinationTokenOrAccount)
	}
}

func TestSolanaMintedEventUsesAccountArtifact(t *testing.T) {
	reader := &fakeReader{requests: map[string]domain.Request{
		"req-1": {ID: "req-1", Status: domain.StatusTokenMinted},
	}}
	events, applier, stop := runCorrelator(t, reader)
	defer stop()

	events <- domain.Event{
		Kind:      domain.EventTokenMinted,
		Chain:     domain.ChainSolana,
		RequestID: "req-1",
		Asset:     "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
		Account:   "9aE476sH92Vz7DMPyq5WLPkrKWivxeuTKEFKd2sZZcde",
	}

	got := expectSignal(t, applier)
	if got.signal.Output.DestinationTokenOrAccount != "9aE476sH92Vz7DMPyq5WLPkrKWivxeuTKEFKd2sZZcde" {
		t.Fatalf("expected destination account, got %q", got.signal.Output.DestinationTokenOrAccount)
	}
}

func TestUnknownRequestEventIsDiscarded(t *testing.T) {
	reader := &fakeReader{requests: map[string]domain.Request{}}
	events, applier, stop := runCorrelator(t, reader)
	defer stop()

	events <- domain.Event{Kind: domain.EventNewRequest, Chain: domain.ChainEVM, RequestID: "ghost"}
	expectNoSignal(t, applier)
}

func TestEventWithoutRequestIDIsDiscarded(t *testing.T) {
	reader := &fakeReader{requests: map[string]domain.Request{}}
	events, applier, stop := runCorrelator(t, reader)
	defer stop()

	events <- domain.Event{Kind: domain.EventNewRequest, Chain: domain.ChainEVM}
	expectNoSignal(t, applier)
}

func TestDuplicateEventIsDiscarded(t *testing.T) {
	// Already past the lock; a replayed NewRequest event must not reach the
	// orchestrator.
	reader := &fakeReader{requests: map[string]domain.Request{
		"req-1": {ID: "req-1", Status: domain.StatusTokenMinted},
	}}
	events, applier, stop := runCorrelator(t, reader)
	defer stop()

	events <- domain.Event{Kind: domain.EventNewRequest, Chain: domain.ChainEVM, RequestID: "req-1"}
	expectNoSignal(t, applier)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	reader := &fakeReader{requests: map[string]domain.Request{}}
	events := make(chan domain.Event)
	applier := &fakeApplier{applied: make(chan appliedSignal, 1)}
	c, err := New(reader, applier, events)
	if err != nil {
		t.Fatalf("build correlator: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected %v, got %v", context.Canceled, err)
		}
	case <-time.After(time.Second):
		t.Fatal("expected run loop to stop")
	}
}
