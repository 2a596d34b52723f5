// Package storage defines the persistence interfaces for the relayer.
//
// It provides a high-level abstraction for storing transfer requests and
// their transition audit trail. Implementations of these interfaces (e.g.
// using bbolt) can be found in subpackages.
//
// # Error Types
//
// The package defines common error types used across storage
// implementations:
//   - ErrNotFound: indicates a requested record is missing.
//   - ErrAlreadyExists: indicates a request id collision on create.
//   - ErrDuplicateTransfer: indicates an active request already covers the
//     same transfer fingerprint.
package storage
