package domain

import "time"

// SignalKind enumerates the inputs that can advance a request.
type SignalKind int

const (
	// SignalUnspecified represents an invalid signal value.
	SignalUnspecified SignalKind = iota
	// SignalLockConfirmed reports the origin-chain lock landed.
	SignalLockConfirmed
	// SignalMintDispatched marks the mint command handoff to the
	// destination sink. Applied by the orchestrator itself, never by a
	// chain event.
	SignalMintDispatched
	// SignalMintConfirmed reports the destination-chain mint landed.
	SignalMintConfirmed
	// SignalTimeout reports a deadline expiry decided by the recovery
	// manager.
	SignalTimeout
	// SignalUnrecoverable reports a permanent failure.
	SignalUnrecoverable
)

var signalNames = map[SignalKind]string{
	SignalLockConfirmed:  "LockConfirmed",
	SignalMintDispatched: "MintDispatched",
	SignalMintConfirmed:  "MintConfirmed",
	SignalTimeout:        "Timeout",
	SignalUnrecoverable:  "UnrecoverableError",
}

// String returns the canonical signal name.
func (k SignalKind) String() string {
	if name, ok := signalNames[k]; ok {
		return name
	}
	return "Unspecified"
}

// Signal carries one lifecycle input for a request. Only the fields
// relevant to the kind are populated.
type Signal struct {
	Kind SignalKind

	// Metadata is carried by LockConfirmed when the producer already
	// fetched it (recovery re-checks), and by MintDispatched.
	Metadata TokenMetadata

	// Output is carried by MintConfirmed and records the destination
	// artifacts.
	Output Output

	// Reason is carried by Timeout and UnrecoverableError.
	Reason string

	// DispatchedAt is carried by MintDispatched.
	DispatchedAt time.Time
}

// LockConfirmed builds a lock confirmation signal.
func LockConfirmed(metadata TokenMetadata) Signal {
	return Signal{Kind: SignalLockConfirmed, Metadata: metadata}
}

// MintDispatched builds a mint handoff marker signal.
func MintDispatched(metadata TokenMetadata, at time.Time) Signal {
	return Signal{Kind: SignalMintDispatched, Metadata: metadata, DispatchedAt: at}
}

// MintConfirmed builds a mint confirmation signal.
func MintConfirmed(output Output) Signal {
	return Signal{Kind: SignalMintConfirmed, Output: output}
}

// Timeout builds a deadline expiry signal.
func Timeout(reason string) Signal {
	return Signal{Kind: SignalTimeout, Reason: reason}
}

// Unrecoverable builds a permanent failure signal.
func Unrecoverable(reason string) Signal {
	return Signal{Kind: SignalUnrecoverable, Reason: reason}
}
