package evm

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"github.com/soljesty/solana-evm-nft-bridge-relayer/internal/bridge/domain"
)

// Querier answers chain-state questions for recovery and validation.
type Querier struct {
	client *Client
}

// NewQuerier builds a querier over client.
func NewQuerier(client *Client) (*Querier, error) {
	if client == nil {
		return nil, fmt.Errorf("evm client is required")
	}
	return &Querier{client: client}, nil
}

// ValidateAccount checks that address is a well-formed EVM address.
func (q *Querier) ValidateAccount(address string) error {
	if !common.IsHexAddress(address) {
		return fmt.Errorf("invalid evm address %q", address)
	}
	return nil
}

// LockPresent reports whether the origin token is held by the bridge
// contract. Ownership is the lock: the bridge takes custody of the token
// when a request is registered.
func (q *Querier) LockPresent(ctx context.Context, request domain.Request) (bool, error) {
	token, err := q.client.token(request.OriginAsset)
	if err != nil {
		return false, err
	}
	tokenID, err := parseTokenID(request.OriginTokenID)
	if err != nil {
		return false, err
	}

	var out []interface{}
	opts := &bind.CallOpts{Context: ctx}
	if err := token.Call(opts, &out, "ownerOf", tokenID); err != nil {
		// ownerOf reverts for burned and nonexistent tokens; that is a
		// definite "not locked here", not a chain failure.
		if strings.Contains(err.Error(), "execution reverted") {
			return false, nil
		}
		return false, fmt.Errorf("read token owner: %w", err)
	}
	owner, ok := out[0].(common.Address)
	if !ok {
		return false, fmt.Errorf("owner is not an address")
	}
	return owner == q.client.bridgeAddress, nil
}

// MintExists reports whether the bridge contract has already processed a
// mint for requestID.
func (q *Querier) MintExists(ctx context.Context, requestID string) (bool, error) {
	var out []interface{}
	opts := &bind.CallOpts{Context: ctx}
	if err := q.client.bridge.Call(opts, &out, "requestProcessed", requestID); err != nil {
		return false, fmt.Errorf("read processed flag: %w", err)
	}
	processed, ok := out[0].(bool)
	if !ok {
		return false, fmt.Errorf("processed flag is not a bool")
	}
	return processed, nil
}

// TokenMetadata reads name, symbol, and token URI from the asset contract.
func (q *Querier) TokenMetadata(ctx context.Context, asset, tokenID string) (domain.TokenMetadata, error) {
	token, err := q.client.token(asset)
	if err != nil {
		return domain.TokenMetadata{}, err
	}
	parsedID, err := parseTokenID(tokenID)
	if err != nil {
		return domain.TokenMetadata{}, err
	}

	opts := &bind.CallOpts{Context: ctx}

	name, err := callString(opts, token, "name")
	if err != nil {
		return domain.TokenMetadata{}, fmt.Errorf("read token name: %w", err)
	}
	symbol, err := callString(opts, token, "symbol")
	if err != nil {
		return domain.TokenMetadata{}, fmt.Errorf("read token symbol: %w", err)
	}
	uri, err := callString(opts, token, "tokenURI", parsedID)
	if err != nil {
		return domain.TokenMetadata{}, fmt.Errorf("read token uri: %w", err)
	}

	return domain.TokenMetadata{Name: name, Symbol: symbol, URI: uri}, nil
}

func callString(opts *bind.CallOpts, contract *bind.BoundContract, method string, args ...interface{}) (string, error) {
	var out []interface{}
	if err := contract.Call(opts, &out, method, args...); err != nil {
		return "", err
	}
	value, ok := out[0].(string)
	if !ok {
		return "", fmt.Errorf("%s result is not a string", method)
	}
	return value, nil
}
