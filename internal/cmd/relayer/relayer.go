// Package relayer parses relayer command flags and launches the relayer
// runtime.
package relayer

import (
	"context"
	"flag"
	"time"

	entrypoint "github.com/soljesty/solana-evm-nft-bridge-relayer/internal/platform/cmd"
	relayerapp "github.com/soljesty/solana-evm-nft-bridge-relayer/internal/services/relayer/app"
)

// Config holds relayer command configuration.
type Config struct {
	HTTPPort   int    `env:"RELAYER_HTTP_PORT" envDefault:"8090"`
	HealthPort int    `env:"RELAYER_HEALTH_PORT" envDefault:"8091"`
	DBPath     string `env:"RELAYER_DB_PATH" envDefault:"data/relayer.db"`

	EVMRPCURL         string `env:"RELAYER_EVM_RPC_URL"`
	EVMWSURL          string `env:"RELAYER_EVM_WS_URL"`
	EVMPrivateKey     string `env:"RELAYER_EVM_PRIVATE_KEY"`
	EVMBridgeContract string `env:"RELAYER_EVM_BRIDGE_CONTRACT"`
	EVMBlockExplorer  string `env:"RELAYER_EVM_BLOCK_EXPLORER"`

	SolanaRPCURL        string `env:"RELAYER_SOLANA_RPC_URL"`
	SolanaWSURL         string `env:"RELAYER_SOLANA_WS_URL"`
	SolanaPrivateKey    string `env:"RELAYER_SOLANA_PRIVATE_KEY"`
	SolanaBridgeProgram string `env:"RELAYER_SOLANA_BRIDGE_PROGRAM"`
	SolanaBlockExplorer string `env:"RELAYER_SOLANA_BLOCK_EXPLORER"`

	RecoveryInterval time.Duration `env:"RELAYER_RECOVERY_INTERVAL" envDefault:"30s"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.HTTPPort, "http-port", cfg.HTTPPort, "The relayer HTTP API port")
	fs.IntVar(&cfg.HealthPort, "health-port", cfg.HealthPort, "The relayer health gRPC server port")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The relayer bbolt database path")
	fs.StringVar(&cfg.EVMRPCURL, "evm-rpc-url", cfg.EVMRPCURL, "The EVM JSON-RPC endpoint")
	fs.StringVar(&cfg.EVMWSURL, "evm-ws-url", cfg.EVMWSURL, "The EVM WebSocket endpoint")
	fs.StringVar(&cfg.EVMBridgeContract, "evm-bridge-contract", cfg.EVMBridgeContract, "The EVM bridge contract address")
	fs.StringVar(&cfg.SolanaRPCURL, "solana-rpc-url", cfg.SolanaRPCURL, "The Solana RPC endpoint")
	fs.StringVar(&cfg.SolanaWSURL, "solana-ws-url", cfg.SolanaWSURL, "The Solana WebSocket endpoint")
	fs.StringVar(&cfg.SolanaBridgeProgram, "solana-bridge-program", cfg.SolanaBridgeProgram, "The Solana bridge program address")
	fs.DurationVar(&cfg.RecoveryInterval, "recovery-interval", cfg.RecoveryInterval, "Interval between recovery sweeps")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the relayer runtime.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceRelayer, func(ctx context.Context) error {
		return relayerapp.Run(ctx, relayerapp.RuntimeConfig{
			HTTPPort:            cfg.HTTPPort,
			HealthPort:          cfg.HealthPort,
			DBPath:              cfg.DBPath,
			EVMRPCURL:           cfg.EVMRPCURL,
			EVMWSURL:            cfg.EVMWSURL,
			EVMPrivateKey:       cfg.EVMPrivateKey,
			EVMBridgeContract:   cfg.EVMBridgeContract,
			EVMBlockExplorer:    cfg.EVMBlockExplorer,
			SolanaRPCURL:        cfg.SolanaRPCURL,
			SolanaWSURL:         cfg.SolanaWSURL,
			SolanaPrivateKey:    cfg.SolanaPrivateKey,
			SolanaBridgeProgram: cfg.SolanaBridgeProgram,
			SolanaBlockExplorer: cfg.SolanaBlockExplorer,
			RecoveryInterval:    cfg.RecoveryInterval,
		})
	})
}
