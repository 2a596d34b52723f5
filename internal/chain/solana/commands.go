package solana

import (
	"context"
	"fmt"
	"log"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/soljesty/solana-evm-nft-bridge-relayer/internal/bridge/domain"
	"github.com/soljesty/solana-evm-nft-bridge-relayer/internal/chain"
	"github.com/soljesty/solana-evm-nft-bridge-relayer/internal/platform/retry"
)

var (
	newRequestDiscriminator = anchorDiscriminator("global:new_request")
	mintTokenDiscriminator  = anchorDiscriminator("global:mint_token")
)

// CommandSink submits bridge program transactions on Solana.
type CommandSink struct {
	client   *Client
	commands <-chan domain.Command
	reporter chain.Reporter
}

// NewCommandSink builds a sink draining commands.
func NewCommandSink(client *Client, commands <-chan domain.Command, reporter chain.Reporter) (*CommandSink, error) {
	if client == nil {
		return nil, fmt.Errorf("solana client is required")
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
	signature, err := retry.Do(ctx, retry.Submission, func() (solana.Signature, error) {
		return s.send(ctx, command)
	})
	if err != nil {
		log.Printf("solana submit failed request_id=%s action=%s err=%v", command.RequestID, command.Action, err)
		// A mint can reach the chain even when the submit call errors, so
		// the request stays put for the recovery sweep, which checks the
		// destination before anything irreversible. Only the lock-verify
		// step, where nothing has been minted, cancels outright.
		if command.Action != domain.ActionLockVerify {
			return
		}
		if reportErr := s.reporter.ReportFailure(ctx, command.RequestID, err.Error()); reportErr != nil {
			log.Printf("solana failure report failed request_id=%s err=%v", command.RequestID, reportErr)
		}
		return
	}

	log.Printf("solana transaction sent request_id=%s action=%s tx=%s", command.RequestID, command.Action, signature)
	if err := s.reporter.RecordTransaction(ctx, command.RequestID, signature.String()); err != nil {
		log.Printf("solana transaction record failed request_id=%s err=%v", command.RequestID, err)
	}
}

// send builds, signs, and submits the instruction matching the command.
func (s *CommandSink) send(ctx context.Context, command domain.Command) (solana.Signature, error) {
	instruction, err := s.instruction(command)
	if err != nil {
		return solana.Signature{}, retry.Permanent(err)
	}

	blockhash, err := s.client.rpc.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("latest blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(
		[]solana.Instruction{instruction},
		blockhash.Value.Blockhash,
		solana.TransactionPayer(s.client.wallet.PublicKey()),
	)
	if err != nil {
		return solana.Signature{}, retry.Permanent(fmt.Errorf("build transaction: %w", err))
	}

	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(s.client.wallet.PublicKey()) {
			return &s.client.wallet
		}
		return nil
	})
	if err != nil {
		return solana.Signature{}, retry.Permanent(fmt.Errorf("sign transaction: %w", err))
	}

	signature, err := s.client.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: rpc.CommitmentFinalized,
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("send transaction: %w", err)
	}
	return signature, nil
}

// instruction encodes the bridge program call for one command.
func (s *CommandSink) instruction(command domain.Command) (solana.Instruction, error) {
	record, err := s.client.requestRecord(command.RequestID)
	if err != nil {
		return nil, err
	}

	switch command.Action {
	case domain.ActionLockVerify:
		mint, err := solana.PublicKeyFromBase58(command.Asset)
		if err != nil {
			return nil, fmt.Errorf("invalid mint address %q: %w", command.Asset, err)
		}
		holder, err := solana.PublicKeyFromBase58(command.Holder)
		if err != nil {
			return nil, fmt.Errorf("invalid holder address %q: %w", command.Holder, err)
		}
		custody, _, err := solana.FindAssociatedTokenAddress(s.client.wallet.PublicKey(), mint)
		if err != nil {
			return nil, fmt.Errorf("derive custody account: %w", err)
		}

		data := append([]byte{}, newRequestDiscriminator[:]...)
		data = appendBorshString(data, command.RequestID)

		return solana.NewInstruction(s.client.program, solana.AccountMetaSlice{
			solana.Meta(s.client.wallet.PublicKey()).SIGNER().WRITE(),
			solana.Meta(mint),
			solana.Meta(holder),
			solana.Meta(custody).WRITE(),
			solana.Meta(record).WRITE(),
			solana.Meta(solana.TokenProgramID),
			solana.Meta(solana.SystemProgramID),
		}, data), nil

	case domain.ActionMint:
		destination, err := solana.PublicKeyFromBase58(command.DestinationAccount)
		if err != nil {
			return nil, fmt.Errorf("invalid destination address %q: %w", command.DestinationAccount, err)
		}

		data := append([]byte{}, mintTokenDiscriminator[:]...)
		data = appendBorshString(data, command.RequestID)
		data = appendBorshString(data, command.Metadata.Name)
		data = appendBorshString(data, command.Metadata.Symbol)
		data = appendBorshString(data, command.Metadata.URI)

		return solana.NewInstruction(s.client.program, solana.AccountMetaSlice{
			solana.Meta(s.client.wallet.PublicKey()).SIGNER().WRITE(),
			solana.Meta(destination).WRITE(),
			solana.Meta(record).WRITE(),
			solana.Meta(metaplexMetadataProgram),
			solana.Meta(solana.TokenProgramID),
			solana.Meta(solana.SystemProgramID),
		}, data), nil
	}

	return nil, fmt.Errorf("unknown action %d", command.Action)
}
