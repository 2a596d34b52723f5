package domain

// Action enumerates the outbound instructions a command sink accepts.
type Action int

const (
	// ActionUnspecified represents an invalid action value.
	ActionUnspecified Action = iota
	// ActionLockVerify registers the transfer with the origin-chain
	// bridge so custody of the token can be verified and locked.
	ActionLockVerify
	// ActionMint creates the equivalent token on the destination chain.
	// This is the irreversible action that must happen at most once per
	// request.
	ActionMint
)

var actionNames = map[Action]string{
	ActionLockVerify: "LockVerify",
	ActionMint:       "Mint",
}

// String returns the canonical action name.
func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return "Unspecified"
}

// Command is one outbound instruction for a chain command sink. Only the
// fields relevant to the action are populated.
type Command struct {
	RequestID string
	Action    Action

	// Asset, TokenID, and Holder describe the origin token for
	// ActionLockVerify.
	Asset   string
	TokenID string
	Holder  string

	// DestinationAccount and Metadata describe the mint target for
	// ActionMint.
	DestinationAccount string
	Metadata           TokenMetadata
}
