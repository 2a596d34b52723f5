package domain

// EventKind enumerates the normalized chain observations the relayer
// consumes. Chain-native logs are decoded into these variants once, at the
// collaborator boundary.
type EventKind int

const (
	// EventUnspecified represents an invalid event value.
	EventUnspecified EventKind = iota
	// EventNewRequest reports a bridge lock observed on a chain.
	EventNewRequest
	// EventTokenMinted reports a bridge mint observed on a chain.
	EventTokenMinted
)

var eventNames = map[EventKind]string{
	EventNewRequest:  "NewRequest",
	EventTokenMinted: "TokenMinted",
}

// String returns the canonical event name.
func (k EventKind) String() string {
	if name, ok := eventNames[k]; ok {
		return name
	}
	return "Unspecified"
}

// Event is a chain observation normalized for correlation. RequestID is the
// correlation key carried by the on-chain bridge programs.
type Event struct {
	Kind      EventKind
	Chain     Chain
	RequestID string

	// Asset is the token contract or mint the event refers to.
	Asset string
	// Account is the holder account on EventNewRequest and the
	// destination token account or owner on EventTokenMinted.
	Account string
	// TokenID is the destination token id on EVM mint events.
	TokenID string
	// TxHash is the transaction that produced the event, when known.
	TxHash string
}
