// Package solana implements the chain collaborator interfaces for the
// Solana side of the bridge.
package solana

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// metaplexMetadataProgram is the Token Metadata program that owns the
// metadata accounts the relayer reads.
var metaplexMetadataProgram = solana.MustPublicKeyFromBase58("metaqbxxUerdq28cj1RbAWkYQm3ybzjb6a8bt518x1s")

// Config describes the Solana connection.
type Config struct {
	RPCURL        string
	WSURL         string
	PrivateKey    string
	BridgeProgram string
	BlockExplorer string
}

// Client holds the Solana RPC connection, the relayer wallet, and the
// bridge program address. The WebSocket endpoint is dialed per
// subscription by the event source.
type Client struct {
	rpc           *rpc.Client
	wsURL         string
	wallet        solana.PrivateKey
	program       solana.PublicKey
	blockExplorer string
}

// Dial connects to the Solana RPC endpoint and prepares the wallet and
// program addresses.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.RPCURL) == "" {
		return nil, fmt.Errorf("solana rpc url is required")
	}

	wallet, err := solana.PrivateKeyFromBase58(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("parse solana private key: %w", err)
	}
	program, err := solana.PublicKeyFromBase58(cfg.BridgeProgram)
	if err != nil {
		return nil, fmt.Errorf("parse bridge program address: %w", err)
	}

	client := &Client{
		rpc:           rpc.New(cfg.RPCURL),
		wsURL:         cfg.WSURL,
		wallet:        wallet,
		program:       program,
		blockExplorer: cfg.BlockExplorer,
	}

	if _, err := client.rpc.GetHealth(ctx); err != nil {
		return nil, fmt.Errorf("solana rpc health: %w", err)
	}
	return client, nil
}

// BlockExplorer returns the configured explorer base URL.
func (c *Client) BlockExplorer() string {
	return c.blockExplorer
}

// requestRecord derives the per-request record account created by the
// bridge program. Its existence is the on-chain mint marker.
func (c *Client) requestRecord(requestID string) (solana.PublicKey, error) {
	address, _, err := solana.FindProgramAddress(
		[][]byte{[]byte("request"), []byte(requestID)},
		c.program,
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive request record: %w", err)
	}
	return address, nil
}

// metadataAccount derives the Metaplex metadata account for mint.
func metadataAccount(mint solana.PublicKey) (solana.PublicKey, error) {
	address, _, err := solana.FindProgramAddress(
		[][]byte{[]byte("metadata"), metaplexMetadataProgram.Bytes(), mint.Bytes()},
		metaplexMetadataProgram,
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive metadata account: %w", err)
	}
	return address, nil
}

// anchorDiscriminator computes the 8-byte discriminator Anchor prefixes
// instructions and events with.
func anchorDiscriminator(name string) [8]byte {
	sum := sha256.Sum256([]byte(name))
	var discriminator [8]byte
	copy(discriminator[:], sum[:8])
	return discriminator
}

// appendBorshString appends a u32 length-prefixed string.
func appendBorshString(data []byte, value string) []byte {
	data = binary.LittleEndian.AppendUint32(data, uint32(len(value)))
	return append(data, value...)
}

// readBorshString reads a u32 length-prefixed string and returns the rest
// of the buffer. Trailing NUL padding is trimmed; Metaplex pads metadata
// strings to fixed widths.
func readBorshString(data []byte) (string, []byte, error) {
	if len(data) < 4 {
		return "", nil, fmt.Errorf("short buffer for string length")
	}
	length := binary.LittleEndian.Uint32(data)
	data = data[4:]
	if uint32(len(data)) < length {
		return "", nil, fmt.Errorf("short buffer for string body")
	}
	value := strings.TrimRight(string(data[:length]), "\x00")
	return value, data[length:], nil
}
