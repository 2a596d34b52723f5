package domain

// Effect enumerates side effects a transition asks the orchestrator to run.
type Effect int

const (
	// EffectNone asks for no side effect.
	EffectNone Effect = iota
	// EffectFetchAndMint asks the orchestrator to fetch origin metadata
	// and dispatch the destination mint.
	EffectFetchAndMint
)

// Outcome is the result of applying a signal to a status.
type Outcome struct {
	// Next is the status after the transition. Equal to the current
	// status when Applied is false.
	Next Status
	// Effect is the side effect the orchestrator must run, if any.
	Effect Effect
	// Applied reports whether the signal advanced the request. Stale and
	// duplicate signals yield Applied=false and are dropped by callers.
	Applied bool
	// Error is the failure reason recorded on cancellation.
	Error string
}

// Transition is the pure state machine over (status, signal). It performs
// no I/O and never moves a request backward. Signals that do not apply to
// the current status, including anything aimed at a terminal status, come
// back with Applied=false.
func Transition(current Status, signal Signal) Outcome {
	stale := Outcome{Next: current}

	if current.Terminal() {
		return stale
	}

	switch signal.Kind {
	case SignalLockConfirmed:
		if current != StatusRequestReceived {
			return stale
		}
		return Outcome{Next: StatusTokenReceived, Effect: EffectFetchAndMint, Applied: true}
	case SignalMintDispatched:
		if current != StatusTokenReceived {
			return stale
		}
		return Outcome{Next: StatusTokenMinted, Applied: true}
	case SignalMintConfirmed:
		if current != StatusTokenReceived && current != StatusTokenMinted {
			return stale
		}
		return Outcome{Next: StatusCompleted, Applied: true}
	case SignalTimeout:
		reason := signal.Reason
		if reason == "" {
			reason = "timeout"
		}
		return Outcome{Next: StatusCanceled, Applied: true, Error: reason}
	case SignalUnrecoverable:
		return Outcome{Next: StatusCanceled, Applied: true, Error: signal.Reason}
	default:
		return stale
	}
}
