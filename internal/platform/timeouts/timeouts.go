// Package timeouts defines shared deadline and interval constants used
// across the relayer. Centralizing these values prevents drift between the
// orchestrator, the recovery manager, and the chain collaborators, and
// makes the durations discoverable.
package timeouts

import "time"

// LockConfirm is how long a request may sit in RequestReceived before the
// recovery manager re-checks the origin chain and, absent a lock, cancels.
const LockConfirm = 10 * time.Minute

// MintDispatch is how long a lock-confirmed request may sit without a mint
// attempt before the recovery manager re-runs the mint pipeline.
const MintDispatch = 2 * time.Minute

// MintConfirm is how long a dispatched mint may remain unconfirmed before
// the request is flagged for manual review.
const MintConfirm = 10 * time.Minute

// MintRedispatchAfter rate-limits mint re-dispatch after a verified-absent
// destination mint.
const MintRedispatchAfter = 90 * time.Second

// Staleness is the global ceiling for any non-terminal request with no
// viable recovery path.
const Staleness = 24 * time.Hour

// RecoveryInterval is the period between recovery sweeps.
const RecoveryInterval = 30 * time.Second

// ReadHeader limits how long the HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long servers wait for in-flight work during graceful
// shutdown.
const Shutdown = 5 * time.Second
