// Package bbolt provides a BoltDB-backed implementation of the relayer
// storage interfaces.
package bbolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"github.com/soljesty/solana-evm-nft-bridge-relayer/internal/bridge/domain"
	"github.com/soljesty/solana-evm-nft-bridge-relayer/internal/storage"
)

const (
	requestBucket  = "requests"
	statusBucket   = "status_idx"
	transferBucket = "transfers"
	auditBucket    = "audit"
)

// Store provides a BoltDB-backed request and audit store.
type Store struct {
	db *bbolt.DB
}

// Open opens a BoltDB-backed store at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	db, err := bbolt.Open(cleanPath, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open storage db: %w", err)
	}

	store := &Store{db: db}
	if err := store.ensureBuckets(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying BoltDB database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// CreateRequest persists a new request and reserves its transfer
// fingerprint in the same transaction.
func (s *Store) CreateRequest(ctx context.Context, request domain.Request) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(request.ID) == "" {
		return fmt.Errorf("request id is required")
	}

	payload, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		requests := tx.Bucket([]byte(requestBucket))
		if requests == nil {
			return fmt.Errorf("request bucket is missing")
		}
		if requests.Get(requestKey(request.ID)) != nil {
			return storage.ErrAlreadyExists
		}

		if request.Fingerprint != "" {
			transfers := tx.Bucket([]byte(transferBucket))
			if transfers == nil {
				return fmt.Errorf("transfer bucket is missing")
			}
			if holder := transfers.Get([]byte(request.Fingerprint)); holder != nil {
				return storage.ErrDuplicateTransfer
			}
			if err := transfers.Put([]byte(request.Fingerprint), []byte(request.ID)); err != nil {
				return fmt.Errorf("reserve transfer fingerprint: %w", err)
			}
		}

		if err := requests.Put(requestKey(request.ID), payload); err != nil {
			return fmt.Errorf("store request: %w", err)
		}

		index := tx.Bucket([]byte(statusBucket))
		if index == nil {
			return fmt.Errorf("status index bucket is missing")
		}
		return index.Put(statusKey(request.Status, request.ID), nil)
	})
}

// GetRequest fetches a request by id.
func (s *Store) GetRequest(ctx context.Context, id string) (domain.Request, error) {
	if err := ctx.Err(); err != nil {
		return domain.Request{}, err
	}
	if s == nil || s.db == nil {
		return domain.Request{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(id) == "" {
		return domain.Request{}, fmt.Errorf("request id is required")
	}

	var request domain.Request
	err := s.db.View(func(tx *bbolt.Tx) error {
		requests := tx.Bucket([]byte(requestBucket))
		if requests == nil {
			return fmt.Errorf("request bucket is missing")
		}
		payload := requests.Get(requestKey(id))
		if payload == nil {
			return storage.ErrNotFound
		}
		if err := json.Unmarshal(payload, &request); err != nil {
			return fmt.Errorf("unmarshal request: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.Request{}, err
	}
	return request, nil
}

// UpdateRequest applies mutate to the stored request inside one BoltDB
// transaction. The status index follows any status change; a mutation that
// lands on a terminal status releases the transfer fingerprint.
func (s *Store) UpdateRequest(ctx context.Context, id string, mutate func(*domain.Request) error) (domain.Request, error) {
	if err := ctx.Err(); err != nil {
		return domain.Request{}, err
	}
	if s == nil || s.db == nil {
		return domain.Request{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(id) == "" {
		return domain.Request{}, fmt.Errorf("request id is required")
	}
	if mutate == nil {
		return domain.Request{}, fmt.Errorf("mutate function is required")
	}

	var updated domain.Request
	err := s.db.Update(func(tx *bbolt.Tx) error {
		requests := tx.Bucket([]byte(requestBucket))
		if requests == nil {
			return fmt.Errorf("request bucket is missing")
		}
		payload := requests.Get(requestKey(id))
		if payload == nil {
			return storage.ErrNotFound
		}

		var request domain.Request
		if err := json.Unmarshal(payload, &request); err != nil {
			return fmt.Errorf("unmarshal request: %w", err)
		}
		previousStatus := request.Status

		if err := mutate(&request); err != nil {
			return err
		}
		if request.ID != id {
			return fmt.Errorf("request id is immutable")
		}

		next, err := json.Marshal(request)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		if err := requests.Put(requestKey(id), next); err != nil {
			return fmt.Errorf("store request: %w", err)
		}

		if request.Status != previousStatus {
			index := tx.Bucket([]byte(statusBucket))
			if index == nil {
				return fmt.Errorf("status index bucket is missing")
			}
			if err := index.Delete(statusKey(previousStatus, id)); err != nil {
				return fmt.Errorf("drop status index entry: %w", err)
			}
			if err := index.Put(statusKey(request.Status, id), nil); err != nil {
				return fmt.Errorf("store status index entry: %w", err)
			}

			if request.Status.Terminal() && request.Fingerprint != "" {
				transfers := tx.Bucket([]byte(transferBucket))
				if transfers == nil {
					return fmt.Errorf("transfer bucket is missing")
				}
				if err := transfers.Delete([]byte(request.Fingerprint)); err != nil {
					return fmt.Errorf("release transfer fingerprint: %w", err)
				}
			}
		}

		updated = request
		return nil
	})
	if err != nil {
		return domain.Request{}, err
	}
	return updated, nil
}

// ListByStatus returns a snapshot of all requests with the given status,
// resolved through the status index without a full scan.
func (s *Store) ListByStatus(ctx context.Context, status domain.Status) ([]domain.Request, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	var requests []domain.Request
	err := s.db.View(func(tx *bbolt.Tx) error {
		index := tx.Bucket([]byte(statusBucket))
		if index == nil {
			return fmt.Errorf("status index bucket is missing")
		}
		records := tx.Bucket([]byte(requestBucket))
		if records == nil {
			return fmt.Errorf("request bucket is missing")
		}

		prefix := statusPrefix(status)
		cursor := index.Cursor()
		for key, _ := cursor.Seek(prefix); key != nil && strings.HasPrefix(string(key), string(prefix)); key, _ = cursor.Next() {
			id := strings.TrimPrefix(string(key), string(prefix))
			payload := records.Get(requestKey(id))
			if payload == nil {
				// Index entry without a record; skip rather than fail
				// the whole listing.
				continue
			}
			var request domain.Request
			if err := json.Unmarshal(payload, &request); err != nil {
				return fmt.Errorf("unmarshal request %s: %w", id, err)
			}
			requests = append(requests, request)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return requests, nil
}

// AppendAuditEvent records a transition audit event for a request.
func (s *Store) AppendAuditEvent(ctx context.Context, event storage.AuditEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(event.RequestID) == "" {
		return fmt.Errorf("audit request id is required")
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		audit := tx.Bucket([]byte(auditBucket))
		if audit == nil {
			return fmt.Errorf("audit bucket is missing")
		}
		seq, err := audit.NextSequence()
		if err != nil {
			return fmt.Errorf("next audit sequence: %w", err)
		}
		return audit.Put(auditKey(event.RequestID, seq), payload)
	})
}

// ListAuditEvents returns the audit trail for a request in append order.
func (s *Store) ListAuditEvents(ctx context.Context, requestID string) ([]storage.AuditEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	var events []storage.AuditEvent
	err := s.db.View(func(tx *bbolt.Tx) error {
		audit := tx.Bucket([]byte(auditBucket))
		if audit == nil {
			return fmt.Errorf("audit bucket is missing")
		}
		prefix := []byte(requestID + "/")
		cursor := audit.Cursor()
		for key, payload := cursor.Seek(prefix); key != nil && strings.HasPrefix(string(key), string(prefix)); key, payload = cursor.Next() {
			var event storage.AuditEvent
			if err := json.Unmarshal(payload, &event); err != nil {
				return fmt.Errorf("unmarshal audit event: %w", err)
			}
			events = append(events, event)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (s *Store) ensureBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{requestBucket, statusBucket, transferBucket, auditBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create %s bucket: %w", name, err)
			}
		}
		return nil
	})
}

func requestKey(id string) []byte {
	return []byte(id)
}

func statusPrefix(status domain.Status) []byte {
	return []byte(status.String() + "/")
}

func statusKey(status domain.Status, id string) []byte {
	return append(statusPrefix(status), []byte(id)...)
}

func auditKey(requestID string, seq uint64) []byte {
	key := []byte(requestID + "/")
	var encoded [8]byte
	binary.BigEndian.PutUint64(encoded[:], seq)
	return append(key, encoded[:]...)
}
