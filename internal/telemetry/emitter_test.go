package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/soljesty/solana-evm-nft-bridge-relayer/internal/storage"
)

type fakeAuditStore struct {
	events []storage.AuditEvent
}

func (s *fakeAuditStore) AppendAuditEvent(_ context.Context, event storage.AuditEvent) error {
	s.events = append(s.events, event)
	return nil
}

func (s *fakeAuditStore) ListAuditEvents(context.Context, string) ([]storage.AuditEvent, error) {
	return s.events, nil
}

func TestEmitFillsTimestamp(t *testing.T) {
	store := &fakeAuditStore{}
	emitter := NewEmitter(store)
	emitter.clock = func() time.Time {
		return time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	}

	if err := emitter.Emit(context.Background(), storage.AuditEvent{RequestID: "req-1", Signal: "Created"}); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if len(store.events) != 1 {
		t.Fatalf("expected one event, got %d", len(store.events))
	}
	if store.events[0].Timestamp.IsZero() {
		t.Fatal("expected timestamp to be filled")
	}
}

func TestEmitKeepsExplicitTimestamp(t *testing.T) {
	store := &fakeAuditStore{}
	emitter := NewEmitter(store)

	stamped := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)
	if err := emitter.Emit(context.Background(), storage.AuditEvent{RequestID: "req-1", Timestamp: stamped}); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if !store.events[0].Timestamp.Equal(stamped) {
		t.Fatalf("expected timestamp %v, got %v", stamped, store.events[0].Timestamp)
	}
}

func TestEmitNilReceiverAndStore(t *testing.T) {
	var emitter *Emitter
	if err := emitter.Emit(context.Background(), storage.AuditEvent{}); err != nil {
		t.Fatalf("expected nil emitter to be a no-op, got %v", err)
	}
	if err := NewEmitter(nil).Emit(context.Background(), storage.AuditEvent{}); err != nil {
		t.Fatalf("expected nil store to be a no-op, got %v", err)
	}
}
