// Package id generates request identifiers and transfer fingerprints.
package id

import (
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
)

// NewRequestID returns a globally unique identifier for a new transfer
// request. The id is the sole correlation key across both chains, so it is
// random rather than derived from the token: re-bridging the same token
// later must produce a distinct request record.
func NewRequestID() (string, error) {
	generated, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return generated.String(), nil
}

// TransferFingerprint derives a stable key for a transfer of one token by
// one holder. Two requests with the same fingerprint describe the same
// transfer; the store rejects a second active request for a fingerprint
// already in flight. Fields are NUL-delimited so adjacent values cannot
// shift into each other.
func TransferFingerprint(asset, tokenID, holder string) string {
	var data []byte
	data = append(data, []byte(strings.TrimSpace(asset))...)
	data = append(data, 0)
	data = append(data, []byte(strings.TrimSpace(tokenID))...)
	data = append(data, 0)
	data = append(data, []byte(strings.TrimSpace(holder))...)
	return hexutil.Encode(crypto.Keccak256(data))
}
