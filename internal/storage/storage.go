package storage

import (
	"context"
	"errors"
	"time"

	"github.com/soljesty/solana-evm-nft-bridge-relayer/internal/bridge/domain"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")

// ErrAlreadyExists indicates a record with the same id is already stored.
var ErrAlreadyExists = errors.New("record already exists")

// ErrDuplicateTransfer indicates another active request already covers the
// same token transfer fingerprint.
var ErrDuplicateTransfer = errors.New("transfer already in flight")

// RequestStore persists transfer requests. The store is the single source
// of truth for request status; all mutations go through UpdateRequest so
// the read-modify-write is atomic per id.
type RequestStore interface {
	// CreateRequest stores a new request and reserves its transfer
	// fingerprint in the same transaction.
	CreateRequest(ctx context.Context, request domain.Request) error
	// GetRequest fetches a request by id.
	GetRequest(ctx context.Context, id string) (domain.Request, error)
	// UpdateRequest applies mutate to the stored request inside one
	// storage transaction and returns the updated record. The status
	// index follows the mutation; terminal statuses release the
	// fingerprint reservation.
	UpdateRequest(ctx context.Context, id string, mutate func(*domain.Request) error) (domain.Request, error)
	// ListByStatus returns a snapshot of all requests with the given
	// status, served from the status index.
	ListByStatus(ctx context.Context, status domain.Status) ([]domain.Request, error)
}

// AuditEvent records one observed request transition for operator review.
type AuditEvent struct {
	RequestID string    `json:"request_id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Signal    string    `json:"signal"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// AuditStore persists the transition audit trail.
type AuditStore interface {
	AppendAuditEvent(ctx context.Context, event AuditEvent) error
	ListAuditEvents(ctx context.Context, requestID string) ([]AuditEvent, error)
}
