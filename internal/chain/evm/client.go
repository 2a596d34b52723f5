// Package evm implements the chain collaborator interfaces for the EVM
// side of the bridge using go-ethereum.
package evm

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// bridgeABI is the relayer-facing surface of the bridge contract.
const bridgeABI = `[
	{"type":"function","name":"newBridgeRequest","stateMutability":"nonpayable","inputs":[{"name":"requestId","type":"string"},{"name":"tokenContract","type":"address"},{"name":"tokenOwner","type":"address"},{"name":"tokenId","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"mintToken","stateMutability":"nonpayable","inputs":[{"name":"requestId","type":"string"},{"name":"to","type":"address"},{"name":"tokenURI","type":"string"}],"outputs":[]},
	{"type":"function","name":"tokenAddress","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"requestProcessed","stateMutability":"view","inputs":[{"name":"requestId","type":"string"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"event","name":"NewRequest","anonymous":false,"inputs":[{"name":"requestId","type":"string","indexed":false},{"name":"tokenContract","type":"address","indexed":false},{"name":"tokenId","type":"uint256","indexed":false}]},
	{"type":"event","name":"TokenMinted","anonymous":false,"inputs":[{"name":"requestId","type":"string","indexed":false},{"name":"tokenContract","type":"address","indexed":false},{"name":"to","type":"address","indexed":false},{"name":"tokenId","type":"uint256","indexed":false}]}
]`

// erc721ABI is the subset of ERC-721 the relayer reads.
const erc721ABI = `[
	{"type":"function","name":"ownerOf","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"tokenURI","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"string"}]},
	{"type":"function","name":"name","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
	{"type":"function","name":"symbol","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]}
]`

// Config describes the EVM connection.
type Config struct {
	RPCURL         string
	WSURL          string
	PrivateKey     string
	BridgeContract string
	BlockExplorer  string
}

// Client holds the EVM connections and the parsed contract surfaces.
type Client struct {
	rpc           *ethclient.Client
	ws            *ethclient.Client
	key           *ecdsa.PrivateKey
	chainID       *big.Int
	bridgeAddress common.Address
	bridge        *bind.BoundContract
	bridgeABI     abi.ABI
	erc721ABI     abi.ABI
	blockExplorer string
}

// Dial connects to the EVM RPC and WebSocket endpoints and prepares the
// signer and contract bindings.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.RPCURL) == "" {
		return nil, fmt.Errorf("evm rpc url is required")
	}
	if !common.IsHexAddress(cfg.BridgeContract) {
		return nil, fmt.Errorf("invalid bridge contract address %q", cfg.BridgeContract)
	}

	rpcClient, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial evm rpc: %w", err)
	}

	var wsClient *ethclient.Client
	if strings.TrimSpace(cfg.WSURL) != "" {
		wsClient, err = ethclient.DialContext(ctx, cfg.WSURL)
		if err != nil {
			rpcClient.Close()
			return nil, fmt.Errorf("dial evm ws: %w", err)
		}
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		rpcClient.Close()
		return nil, fmt.Errorf("parse evm private key: %w", err)
	}

	chainID, err := rpcClient.ChainID(ctx)
	if err != nil {
		rpcClient.Close()
		return nil, fmt.Errorf("read evm chain id: %w", err)
	}

	parsedBridge, err := abi.JSON(strings.NewReader(bridgeABI))
	if err != nil {
		return nil, fmt.Errorf("parse bridge abi: %w", err)
	}
	parsedERC721, err := abi.JSON(strings.NewReader(erc721ABI))
	if err != nil {
		return nil, fmt.Errorf("parse erc721 abi: %w", err)
	}

	bridgeAddress := common.HexToAddress(cfg.BridgeContract)
	return &Client{
		rpc:           rpcClient,
		ws:            wsClient,
		key:           key,
		chainID:       chainID,
		bridgeAddress: bridgeAddress,
		bridge:        bind.NewBoundContract(bridgeAddress, parsedBridge, rpcClient, rpcClient, rpcClient),
		bridgeABI:     parsedBridge,
		erc721ABI:     parsedERC721,
		blockExplorer: cfg.BlockExplorer,
	}, nil
}

// Close releases the underlying connections.
func (c *Client) Close() {
	if c == nil {
		return
	}
	if c.rpc != nil {
		c.rpc.Close()
	}
	if c.ws != nil {
		c.ws.Close()
	}
}

// BlockExplorer returns the configured explorer base URL.
func (c *Client) BlockExplorer() string {
	return c.blockExplorer
}

// LatestBlock reads the current block number; used as a connection test at
// startup.
func (c *Client) LatestBlock(ctx context.Context) (uint64, error) {
	return c.rpc.BlockNumber(ctx)
}

// transactor builds signed transaction options for the relayer wallet.
func (c *Client) transactor(ctx context.Context) (*bind.TransactOpts, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(c.key, c.chainID)
	if err != nil {
		return nil, fmt.Errorf("build transactor: %w", err)
	}
	opts.Context = ctx
	return opts, nil
}

// token binds the ERC-721 read surface of an asset contract.
func (c *Client) token(asset string) (*bind.BoundContract, error) {
	if !common.IsHexAddress(asset) {
		return nil, fmt.Errorf("invalid token contract address %q", asset)
	}
	return bind.NewBoundContract(common.HexToAddress(asset), c.erc721ABI, c.rpc, c.rpc, c.rpc), nil
}

// parseTokenID parses a decimal token id into a uint256.
func parseTokenID(tokenID string) (*big.Int, error) {
	parsed, ok := new(big.Int).SetString(strings.TrimSpace(tokenID), 10)
	if !ok || parsed.Sign() < 0 {
		return nil, fmt.Errorf("invalid token id %q", tokenID)
	}
	return parsed, nil
}
