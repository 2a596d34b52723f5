package evm

import (
	"context"
	"fmt"
	"log"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/soljesty/solana-evm-nft-bridge-relayer/internal/bridge/domain"
	"github.com/soljesty/solana-evm-nft-bridge-relayer/internal/chain"
	"github.com/soljesty/solana-evm-nft-bridge-relayer/internal/platform/retry"
)

// CommandSink submits bridge transactions on the EVM chain.
type CommandSink struct {
	client   *Client
	commands <-chan domain.Command
	reporter chain.Reporter
}

// NewCommandSink builds a sink draining commands.
func NewCommandSink(client *Client, commands <-chan domain.Command, reporter chain.Reporter) (*CommandSink, error) {
	if client == nil {
		return nil, fmt.Errorf("evm client is required")
	}
	if commands == nil {
		return nil, fmt.Errorf("command channel is required")
	}
	if reporter == nil {
		return nil, fmt.Errorf("reporter is required")
	}
	return &CommandSink{client: client, commands: commands, reporter: reporter}, nil
}

// Run drains the command channel until ctx is canceled. Submission failures
// are reported back per request and never stop the loop.
func (s *CommandSink) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case command, ok := <-s.commands:
			if !ok {
				return nil
			}
			s.submit(ctx, command)
		}
	}
}

// submit signs and sends the transaction for one command, retrying
// transient failures, and reports the outcome.
func (s *CommandSink) submit(ctx context.Context, command domain.Command) {
	tx, err := retry.Do(ctx, retry.Submission, func() (*types.Transaction, error) {
		return s.send(ctx, command)
	})
	if err != nil {
		log.Printf("evm submit failed request_id=%s action=%s err=%v", command.RequestID, command.Action, err)
		// A mint can reach the chain even when the submit call errors, so
		// the request stays put for the recovery sweep, which checks the
		// destination before anything irreversible. Only the lock-verify
		// step, where nothing has been minted, cancels outright.
		if command.Action != domain.ActionLockVerify {
			return
		}
		if reportErr := s.reporter.ReportFailure(ctx, command.RequestID, err.Error()); reportErr != nil {
			log.Printf("evm failure report failed request_id=%s err=%v", command.RequestID, reportErr)
		}
		return
	}

	log.Printf("evm transaction sent request_id=%s action=%s tx=%s", command.RequestID, command.Action, tx.Hash())
	if err := s.reporter.RecordTransaction(ctx, command.RequestID, tx.Hash().Hex()); err != nil {
		log.Printf("evm transaction record failed request_id=%s err=%v", command.RequestID, err)
	}
}

// send builds the contract call matching the command action.
func (s *CommandSink) send(ctx context.Context, command domain.Command) (*types.Transaction, error) {
	opts, err := s.client.transactor(ctx)
	if err != nil {
		return nil, retry.Permanent(err)
	}

	switch command.Action {
	case domain.ActionLockVerify:
		if !common.IsHexAddress(command.Asset) {
			return nil, retry.Permanent(fmt.Errorf("invalid token contract %q", command.Asset))
		}
		if !common.IsHexAddress(command.Holder) {
			return nil, retry.Permanent(fmt.Errorf("invalid holder address %q", command.Holder))
		}
		tokenID, err := parseTokenID(command.TokenID)
		if err != nil {
			return nil, retry.Permanent(err)
		}
		return s.client.bridge.Transact(opts, "newBridgeRequest",
			command.RequestID,
			common.HexToAddress(command.Asset),
			common.HexToAddress(command.Holder),
			tokenID,
		)

	case domain.ActionMint:
		if !common.IsHexAddress(command.DestinationAccount) {
			return nil, retry.Permanent(fmt.Errorf("invalid destination address %q", command.DestinationAccount))
		}
		return s.client.bridge.Transact(opts, "mintToken",
			command.RequestID,
			common.HexToAddress(command.DestinationAccount),
			command.Metadata.URI,
		)
	}

	return nil, retry.Permanent(fmt.Errorf("unknown action %d", command.Action))
}
