package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Chain identifies one of the two supported networks.
type Chain int

const (
	// ChainUnspecified represents an invalid chain value.
	ChainUnspecified Chain = iota
	// ChainEVM identifies the EVM network.
	ChainEVM
	// ChainSolana identifies the Solana network.
	ChainSolana
)

var chainNames = map[Chain]string{
	ChainEVM:    "EVM",
	ChainSolana: "SOLANA",
}

// String returns the canonical chain name.
func (c Chain) String() string {
	if name, ok := chainNames[c]; ok {
		return name
	}
	return "UNSPECIFIED"
}

// Opposite returns the other supported chain.
func (c Chain) Opposite() Chain {
	switch c {
	case ChainEVM:
		return ChainSolana
	case ChainSolana:
		return ChainEVM
	default:
		return ChainUnspecified
	}
}

// MarshalJSON encodes the chain as its canonical name.
func (c Chain) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON decodes a chain from its canonical name.
func (c *Chain) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseChain(name)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseChain maps a canonical chain name to its Chain value.
func ParseChain(name string) (Chain, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "EVM":
		return ChainEVM, nil
	case "SOLANA":
		return ChainSolana, nil
	default:
		return ChainUnspecified, fmt.Errorf("unknown chain %q", name)
	}
}

// Status describes where a request is in its lifecycle.
type Status int

const (
	// StatusUnspecified represents an invalid status value.
	StatusUnspecified Status = iota
	// StatusRequestReceived indicates the request was accepted and the
	// origin-chain lock is pending.
	StatusRequestReceived
	// StatusTokenReceived indicates the origin-chain lock was confirmed.
	StatusTokenReceived
	// StatusTokenMinted indicates the mint command was handed to the
	// destination chain; confirmation is still pending. This is the
	// "mint attempted" marker that crash recovery relies on.
	StatusTokenMinted
	// StatusCompleted indicates the destination-chain mint was confirmed.
	StatusCompleted
	// StatusCanceled indicates the request failed or timed out.
	StatusCanceled
)

var statusNames = map[Status]string{
	StatusRequestReceived: "RequestReceived",
	StatusTokenReceived:   "TokenReceived",
	StatusTokenMinted:     "TokenMinted",
	StatusCompleted:       "Completed",
	StatusCanceled:        "Canceled",
}

// String returns the canonical status name.
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "Unspecified"
}

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCanceled
}

// MarshalJSON encodes the status as its canonical name.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a status from its canonical name.
func (s *Status) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseStatus(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseStatus maps a canonical status name to its Status value.
func ParseStatus(name string) (Status, error) {
	for status, statusName := range statusNames {
		if statusName == strings.TrimSpace(name) {
			return status, nil
		}
	}
	return StatusUnspecified, fmt.Errorf("unknown status %q", name)
}

var (
	// ErrSameChain indicates origin and destination are the same network.
	ErrSameChain = errors.New("origin and destination chains must differ")
	// ErrEmptyAsset indicates a missing origin asset identity.
	ErrEmptyAsset = errors.New("origin asset is required")
	// ErrEmptyTokenID indicates a missing EVM token id.
	ErrEmptyTokenID = errors.New("token id is required for EVM assets")
	// ErrEmptyHolder indicates a missing origin holder account.
	ErrEmptyHolder = errors.New("origin holder account is required")
	// ErrEmptyDestination indicates a missing destination account.
	ErrEmptyDestination = errors.New("destination account is required")
)

// TokenMetadata holds the origin token attributes captured after lock
// confirmation. Once set it is never overwritten.
type TokenMetadata struct {
	Name   string `json:"name,omitempty"`
	Symbol string `json:"symbol,omitempty"`
	URI    string `json:"uri,omitempty"`
}

// IsZero reports whether no metadata has been captured yet.
func (m TokenMetadata) IsZero() bool {
	return m.Name == "" && m.Symbol == "" && m.URI == ""
}

// Output records the destination-chain artifacts created for a request.
type Output struct {
	DestinationAsset          string `json:"destination_contract_or_mint,omitempty"`
	DestinationTokenOrAccount string `json:"destination_token_id_or_account,omitempty"`
}

// TransferInput describes a new transfer submitted through the API.
type TransferInput struct {
	OriginChain        Chain  `json:"origin_network"`
	OriginAsset        string `json:"contract_or_mint"`
	OriginTokenID      string `json:"token_id"`
	OriginHolder       string `json:"token_owner"`
	DestinationAccount string `json:"destination_account"`
}

// NormalizeTransferInput trims and validates transfer input fields. Address
// well-formedness per chain is the orchestrator's concern; this only checks
// structural completeness.
func NormalizeTransferInput(input TransferInput) (TransferInput, error) {
	input.OriginAsset = strings.TrimSpace(input.OriginAsset)
	input.OriginTokenID = strings.TrimSpace(input.OriginTokenID)
	input.OriginHolder = strings.TrimSpace(input.OriginHolder)
	input.DestinationAccount = strings.TrimSpace(input.DestinationAccount)

	if input.OriginChain != ChainEVM && input.OriginChain != ChainSolana {
		return TransferInput{}, fmt.Errorf("unknown origin chain %q", input.OriginChain)
	}
	if input.OriginAsset == "" {
		return TransferInput{}, ErrEmptyAsset
	}
	if input.OriginChain == ChainEVM && input.OriginTokenID == "" {
		return TransferInput{}, ErrEmptyTokenID
	}
	if input.OriginHolder == "" {
		return TransferInput{}, ErrEmptyHolder
	}
	if input.DestinationAccount == "" {
		return TransferInput{}, ErrEmptyDestination
	}
	return input, nil
}

// Request is the persisted record for one cross-chain transfer.
type Request struct {
	ID                 string        `json:"id"`
	Fingerprint        string        `json:"fingerprint"`
	OriginChain        Chain         `json:"origin_network"`
	DestinationChain   Chain         `json:"destination_network"`
	OriginAsset        string        `json:"contract_or_mint"`
	OriginTokenID      string        `json:"token_id,omitempty"`
	OriginHolder       string        `json:"token_owner"`
	DestinationAccount string        `json:"destination_account"`
	Metadata           TokenMetadata `json:"metadata"`
	Status             Status        `json:"status"`
	Error              string        `json:"error,omitempty"`
	NeedsReview        bool          `json:"needs_review,omitempty"`
	TxHashes           []string      `json:"tx_hashes"`
	Output             Output        `json:"output"`
	MintDispatchedAt   time.Time     `json:"mint_dispatched_at,omitzero"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

// NewRequest builds a request in StatusRequestReceived from validated input.
func NewRequest(id, fingerprint string, input TransferInput, now time.Time) (Request, error) {
	if strings.TrimSpace(id) == "" {
		return Request{}, errors.New("request id is required")
	}
	normalized, err := NormalizeTransferInput(input)
	if err != nil {
		return Request{}, err
	}
	if normalized.OriginChain.Opposite() == ChainUnspecified {
		return Request{}, ErrSameChain
	}
	createdAt := now.UTC()
	return Request{
		ID:                 id,
		Fingerprint:        fingerprint,
		OriginChain:        normalized.OriginChain,
		DestinationChain:   normalized.OriginChain.Opposite(),
		OriginAsset:        normalized.OriginAsset,
		OriginTokenID:      normalized.OriginTokenID,
		OriginHolder:       normalized.OriginHolder,
		DestinationAccount: normalized.DestinationAccount,
		Status:             StatusRequestReceived,
		TxHashes:           []string{},
		CreatedAt:          createdAt,
		UpdatedAt:          createdAt,
	}, nil
}
