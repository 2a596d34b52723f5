package solana

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/soljesty/solana-evm-nft-bridge-relayer/internal/bridge/domain"
)

// Querier answers chain-state questions for recovery and validation.
type Querier struct {
	client *Client
}

// NewQuerier builds a querier over client.
func NewQuerier(client *Client) (*Querier, error) {
	if client == nil {
		return nil, fmt.Errorf("solana client is required")
	}
	return &Querier{client: client}, nil
}

// ValidateAccount checks that address is a well-formed Solana public key.
func (q *Querier) ValidateAccount(address string) error {
	if _, err := solana.PublicKeyFromBase58(address); err != nil {
		return fmt.Errorf("invalid solana address %q: %w", address, err)
	}
	return nil
}

// LockPresent reports whether the relayer's custody token account holds the
// origin NFT. A balance of exactly one is the lock.
func (q *Querier) LockPresent(ctx context.Context, request domain.Request) (bool, error) {
	mint, err := solana.PublicKeyFromBase58(request.OriginAsset)
	if err != nil {
		return false, fmt.Errorf("invalid mint address %q: %w", request.OriginAsset, err)
	}
	custody, _, err := solana.FindAssociatedTokenAddress(q.client.wallet.PublicKey(), mint)
	if err != nil {
		return false, fmt.Errorf("derive custody account: %w", err)
	}

	balance, err := q.client.rpc.GetTokenAccountBalance(ctx, custody, rpc.CommitmentFinalized)
	if err != nil {
		// The custody account is only created on lock; absence means no
		// lock, not a chain failure.
		if errors.Is(err, rpc.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("read custody balance: %w", err)
	}
	if balance == nil || balance.Value == nil {
		return false, nil
	}
	return balance.Value.Amount == "1", nil
}

// MintExists reports whether the bridge program already created the
// per-request record account, which it does in the same transaction as the
// mint.
func (q *Querier) MintExists(ctx context.Context, requestID string) (bool, error) {
	record, err := q.client.requestRecord(requestID)
	if err != nil {
		return false, err
	}

	info, err := q.client.rpc.GetAccountInfoWithOpts(ctx, record, &rpc.GetAccountInfoOpts{
		Commitment: rpc.CommitmentFinalized,
	})
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("read request record: %w", err)
	}
	return info != nil && info.Value != nil, nil
}

// TokenMetadata reads name, symbol, and URI from the Metaplex metadata
// account of the origin mint. The token id argument is unused on Solana;
// the mint address identifies the token.
func (q *Querier) TokenMetadata(ctx context.Context, asset, _ string) (domain.TokenMetadata, error) {
	mint, err := solana.PublicKeyFromBase58(asset)
	if err != nil {
		return domain.TokenMetadata{}, fmt.Errorf("invalid mint address %q: %w", asset, err)
	}
	metadata, err := metadataAccount(mint)
	if err != nil {
		return domain.TokenMetadata{}, err
	}

	info, err := q.client.rpc.GetAccountInfoWithOpts(ctx, metadata, &rpc.GetAccountInfoOpts{
		Commitment: rpc.CommitmentFinalized,
	})
	if err != nil {
		return domain.TokenMetadata{}, fmt.Errorf("read metadata account: %w", err)
	}
	if info == nil || info.Value == nil {
		return domain.TokenMetadata{}, fmt.Errorf("metadata account %s not found", metadata)
	}

	return decodeMetadata(info.Value.Data.GetBinary())
}

// decodeMetadata parses the leading fields of a Metaplex metadata account:
// a one-byte key, two pubkeys, then the padded name, symbol, and URI
// strings.
func decodeMetadata(data []byte) (domain.TokenMetadata, error) {
	const header = 1 + 32 + 32
	if len(data) < header {
		return domain.TokenMetadata{}, fmt.Errorf("short metadata account")
	}
	rest := data[header:]

	name, rest, err := readBorshString(rest)
	if err != nil {
		return domain.TokenMetadata{}, fmt.Errorf("decode metadata name: %w", err)
	}
	symbol, rest, err := readBorshString(rest)
	if err != nil {
		return domain.TokenMetadata{}, fmt.Errorf("decode metadata symbol: %w", err)
	}
	uri, _, err := readBorshString(rest)
	if err != nil {
		return domain.TokenMetadata{}, fmt.Errorf("decode metadata uri: %w", err)
	}

	return domain.TokenMetadata{Name: name, Symbol: symbol, URI: uri}, nil
}
