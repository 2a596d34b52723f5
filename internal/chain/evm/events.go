package evm

import (
	"context"
	"fmt"
	"log"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/soljesty/solana-evm-nft-bridge-relayer/internal/bridge/domain"
	"github.com/soljesty/solana-evm-nft-bridge-relayer/internal/platform/retry"
)

// EventSource streams bridge contract logs and publishes normalized events.
type EventSource struct {
	client *Client
	events chan<- domain.Event
}

// NewEventSource builds an event source publishing onto events.
func NewEventSource(client *Client, events chan<- domain.Event) (*EventSource, error) {
	if client == nil {
		return nil, fmt.Errorf("evm client is required")
	}
	if client.ws == nil {
		return nil, fmt.Errorf("evm ws endpoint is required for event streaming")
	}
	if events == nil {
		return nil, fmt.Errorf("event channel is required")
	}
	return &EventSource{client: client, events: events}, nil
}

// Run subscribes to bridge contract logs until ctx is canceled. Dropped
// subscriptions are re-established with backoff; missed events during the
// gap are recovered by the periodic sweeps, not replayed here.
func (s *EventSource) Run(ctx context.Context) error {
	for {
		if err := s.stream(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("evm log stream lost err=%v", err)
		}

		_, err := retry.Do(ctx, retry.Reconnect, func() (struct{}, error) {
			_, err := s.client.ws.BlockNumber(ctx)
			return struct{}{}, err
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("evm reconnect failed err=%v", err)
		}
	}
}

// stream holds one log subscription open and decodes everything it yields.
func (s *EventSource) stream(ctx context.Context) error {
	newRequestTopic := s.client.bridgeABI.Events["NewRequest"].ID
	tokenMintedTopic := s.client.bridgeABI.Events["TokenMinted"].ID

	query := ethereum.FilterQuery{
		Addresses: []common.Address{s.client.bridgeAddress},
		Topics:    [][]common.Hash{{newRequestTopic, tokenMintedTopic}},
	}

	logs := make(chan types.Log, 16)
	sub, err := s.client.ws.SubscribeFilterLogs(ctx, query, logs)
	if err != nil {
		return fmt.Errorf("subscribe bridge logs: %w", err)
	}
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			return fmt.Errorf("bridge log subscription: %w", err)
		case vLog := <-logs:
			event, err := s.decode(vLog, newRequestTopic, tokenMintedTopic)
			if err != nil {
				log.Printf("evm log decode failed tx=%s err=%v", vLog.TxHash, err)
				continue
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case s.events <- event:
			}
		}
	}
}

// decode unpacks one bridge contract log into a normalized event.
func (s *EventSource) decode(vLog types.Log, newRequestTopic, tokenMintedTopic common.Hash) (domain.Event, error) {
	if len(vLog.Topics) == 0 {
		return domain.Event{}, fmt.Errorf("log without topics")
	}

	switch vLog.Topics[0] {
	case newRequestTopic:
		values, err := s.client.bridgeABI.Unpack("NewRequest", vLog.Data)
		if err != nil {
			return domain.Event{}, fmt.Errorf("unpack NewRequest: %w", err)
		}
		requestID, ok := values[0].(string)
		if !ok {
			return domain.Event{}, fmt.Errorf("NewRequest request id is not a string")
		}
		tokenContract, ok := values[1].(common.Address)
		if !ok {
			return domain.Event{}, fmt.Errorf("NewRequest token contract is not an address")
		}
		tokenID, ok := values[2].(*big.Int)
		if !ok {
			return domain.Event{}, fmt.Errorf("NewRequest token id is not a uint256")
		}
		return domain.Event{
			Kind:      domain.EventNewRequest,
			Chain:     domain.ChainEVM,
			RequestID: requestID,
			Asset:     tokenContract.Hex(),
			TokenID:   tokenID.String(),
			TxHash:    vLog.TxHash.Hex(),
		}, nil

	case tokenMintedTopic:
		values, err := s.client.bridgeABI.Unpack("TokenMinted", vLog.Data)
		if err != nil {
			return domain.Event{}, fmt.Errorf("unpack TokenMinted: %w", err)
		}
		requestID, ok := values[0].(string)
		if !ok {
			return domain.Event{}, fmt.Errorf("TokenMinted request id is not a string")
		}
		tokenContract, ok := values[1].(common.Address)
		if !ok {
			return domain.Event{}, fmt.Errorf("TokenMinted token contract is not an address")
		}
		to, ok := values[2].(common.Address)
		if !ok {
			return domain.Event{}, fmt.Errorf("TokenMinted recipient is not an address")
		}
		tokenID, ok := values[3].(*big.Int)
		if !ok {
			return domain.Event{}, fmt.Errorf("TokenMinted token id is not a uint256")
		}
		return domain.Event{
			Kind:      domain.EventTokenMinted,
			Chain:     domain.ChainEVM,
			RequestID: requestID,
			Asset:     tokenContract.Hex(),
			Account:   to.Hex(),
			TokenID:   tokenID.String(),
			TxHash:    vLog.TxHash.Hex(),
		}, nil
	}

	return domain.Event{}, fmt.Errorf("unknown topic %s", vLog.Topics[0])
}
