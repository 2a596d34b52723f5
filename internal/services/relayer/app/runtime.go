// Package app wires the relayer runtime: storage, chain clients, the
// orchestration core, and the HTTP and health servers.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/soljesty/solana-evm-nft-bridge-relayer/internal/bridge/correlator"
	"github.com/soljesty/solana-evm-nft-bridge-relayer/internal/bridge/domain"
	"github.com/soljesty/solana-evm-nft-bridge-relayer/internal/bridge/orchestrator"
	"github.com/soljesty/solana-evm-nft-bridge-relayer/internal/bridge/recovery"
	"github.com/soljesty/solana-evm-nft-bridge-relayer/internal/chain"
	"github.com/soljesty/solana-evm-nft-bridge-relayer/internal/chain/evm"
	solanachain "github.com/soljesty/solana-evm-nft-bridge-relayer/internal/chain/solana"
	"github.com/soljesty/solana-evm-nft-bridge-relayer/internal/platform/timeouts"
	"github.com/soljesty/solana-evm-nft-bridge-relayer/internal/services/relayer/api/rest"
	storagebbolt "github.com/soljesty/solana-evm-nft-bridge-relayer/internal/storage/bbolt"
	"github.com/soljesty/solana-evm-nft-bridge-relayer/internal/telemetry"
)

// RuntimeConfig controls relayer startup and dependencies.
type RuntimeConfig struct {
	HTTPPort   int
	HealthPort int
	DBPath     string

	EVMRPCURL         string
	EVMWSURL          string
	EVMPrivateKey     string
	EVMBridgeContract string
	EVMBlockExplorer  string

	SolanaRPCURL        string
	SolanaWSURL         string
	SolanaPrivateKey    string
	SolanaBridgeProgram string
	SolanaBlockExplorer string

	RecoveryInterval time.Duration
}

const (
	defaultHTTPPort   = 8090
	defaultHealthPort = 8091
	defaultDBPath     = "data/relayer.db"

	// commandQueueSize bounds each chain's outbound queue. A full queue
	// blocks the producer rather than dropping the command.
	commandQueueSize = 64
	eventQueueSize   = 64
)

// Run starts the relayer and blocks until ctx is canceled or a component
// fails.
func Run(ctx context.Context, cfg RuntimeConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.HTTPPort <= 0 {
		cfg.HTTPPort = defaultHTTPPort
	}
	if cfg.HealthPort <= 0 {
		cfg.HealthPort = defaultHealthPort
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = defaultDBPath
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create relayer storage dir: %w", err)
		}
	}

	store, err := storagebbolt.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open relayer store: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			log.Printf("close relayer store: %v", closeErr)
		}
	}()

	evmClient, err := evm.Dial(ctx, evm.Config{
		RPCURL:         cfg.EVMRPCURL,
		WSURL:          cfg.EVMWSURL,
		PrivateKey:     cfg.EVMPrivateKey,
		BridgeContract: cfg.EVMBridgeContract,
		BlockExplorer:  cfg.EVMBlockExplorer,
	})
	if err != nil {
		return fmt.Errorf("dial evm: %w", err)
	}
	defer evmClient.Close()

	solanaClient, err := solanachain.Dial(ctx, solanachain.Config{
		RPCURL:        cfg.SolanaRPCURL,
		WSURL:         cfg.SolanaWSURL,
		PrivateKey:    cfg.SolanaPrivateKey,
		BridgeProgram: cfg.SolanaBridgeProgram,
		BlockExplorer: cfg.SolanaBlockExplorer,
	})
	if err != nil {
		return fmt.Errorf("dial solana: %w", err)
	}

	evmQuerier, err := evm.NewQuerier(evmClient)
	if err != nil {
		return err
	}
	solanaQuerier, err := solanachain.NewQuerier(solanaClient)
	if err != nil {
		return err
	}
	queriers := map[domain.Chain]chain.Querier{
		domain.ChainEVM:    evmQuerier,
		domain.ChainSolana: solanaQuerier,
	}

	events := make(chan domain.Event, eventQueueSize)
	evmCommands := make(chan domain.Command, commandQueueSize)
	solanaCommands := make(chan domain.Command, commandQueueSize)

	core, err := orchestrator.New(store, telemetry.NewEmitter(store), orchestrator.Config{
		Queriers: queriers,
		Sinks: map[domain.Chain]chan<- domain.Command{
			domain.ChainEVM:    evmCommands,
			domain.ChainSolana: solanaCommands,
		},
		BaseContext: ctx,
	})
	if err != nil {
		return fmt.Errorf("build orchestrator: %w", err)
	}
	defer core.Wait()

	evmEvents, err := evm.NewEventSource(evmClient, events)
	if err != nil {
		return fmt.Errorf("build evm event source: %w", err)
	}
	solanaEvents, err := solanachain.NewEventSource(solanaClient, events)
	if err != nil {
		return fmt.Errorf("build solana event source: %w", err)
	}
	evmSink, err := evm.NewCommandSink(evmClient, evmCommands, core)
	if err != nil {
		return fmt.Errorf("build evm command sink: %w", err)
	}
	solanaSink, err := solanachain.NewCommandSink(solanaClient, solanaCommands, core)
	if err != nil {
		return fmt.Errorf("build solana command sink: %w", err)
	}

	correlate, err := correlator.New(store, core, events)
	if err != nil {
		return fmt.Errorf("build correlator: %w", err)
	}
	sweeper, err := recovery.New(store, core, queriers, recovery.Deadlines{Interval: cfg.RecoveryInterval}, nil)
	if err != nil {
		return fmt.Errorf("build recovery manager: %w", err)
	}

	handler, err := rest.New(core, map[string]string{
		domain.ChainEVM.String():    evmClient.BlockExplorer(),
		domain.ChainSolana.String(): solanaClient.BlockExplorer(),
	})
	if err != nil {
		return fmt.Errorf("build api handler: %w", err)
	}
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           handler.Handler(),
		ReadHeaderTimeout: timeouts.ReadHeader,
	}

	healthListener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.HealthPort))
	if err != nil {
		return fmt.Errorf("listen on health port %d: %w", cfg.HealthPort, err)
	}
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus("relayer.runtime", grpc_health_v1.HealthCheckResponse_SERVING)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error { return evmEvents.Run(groupCtx) })
	group.Go(func() error { return solanaEvents.Run(groupCtx) })
	group.Go(func() error { return evmSink.Run(groupCtx) })
	group.Go(func() error { return solanaSink.Run(groupCtx) })
	group.Go(func() error { return correlate.Run(groupCtx) })
	group.Go(func() error { return sweeper.Run(groupCtx) })

	group.Go(func() error {
		log.Printf("relayer api listening at %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve api: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		log.Printf("relayer health listening at %v", healthListener.Addr())
		if err := grpcServer.Serve(healthListener); err != nil {
			return fmt.Errorf("serve health: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()

		healthServer.Shutdown()
		grpcServer.GracefulStop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("api shutdown: %v", err)
		}
		return groupCtx.Err()
	})

	err = group.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
