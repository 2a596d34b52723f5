package solana

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/ws"

	"github.com/soljesty/solana-evm-nft-bridge-relayer/internal/bridge/domain"
	"github.com/soljesty/solana-evm-nft-bridge-relayer/internal/platform/retry"
)

const programDataPrefix = "Program data: "

var (
	newRequestEventDiscriminator  = anchorDiscriminator("event:NewRequestEvent")
	tokenMintedEventDiscriminator = anchorDiscriminator("event:TokenMintedEvent")
)

// EventSource streams bridge program logs and publishes normalized events.
type EventSource struct {
	client *Client
	events chan<- domain.Event
}

// NewEventSource builds an event source publishing onto events.
func NewEventSource(client *Client, events chan<- domain.Event) (*EventSource, error) {
	if client == nil {
		return nil, fmt.Errorf("solana client is required")
	}
	if strings.TrimSpace(client.wsURL) == "" {
		return nil, fmt.Errorf("solana ws endpoint is required for event streaming")
	}
	if events == nil {
		return nil, fmt.Errorf("event channel is required")
	}
	return &EventSource{client: client, events: events}, nil
}

// Run subscribes to logs mentioning the bridge program until ctx is
// canceled, redialing with backoff when the stream drops. Events missed
// during a gap are recovered by the periodic sweeps.
func (s *EventSource) Run(ctx context.Context) error {
	for {
		err := s.stream(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Printf("solana log stream lost err=%v", err)
	}
}

// stream dials the WebSocket endpoint and holds one log subscription open.
func (s *EventSource) stream(ctx context.Context) error {
	wsClient, err := retry.Do(ctx, retry.Reconnect, func() (*ws.Client, error) {
		return ws.Connect(ctx, s.client.wsURL)
	})
	if err != nil {
		return fmt.Errorf("dial solana ws: %w", err)
	}
	defer wsClient.Close()

	sub, err := wsClient.LogsSubscribeMentions(s.client.program, rpc.CommitmentFinalized)
	if err != nil {
		return fmt.Errorf("subscribe program logs: %w", err)
	}
	defer sub.Unsubscribe()

	for {
		got, err := sub.Recv(ctx)
		if err != nil {
			return fmt.Errorf("program log subscription: %w", err)
		}
		if got == nil || got.Value.Err != nil {
			continue
		}

		for _, line := range got.Value.Logs {
			event, ok := s.decode(line, got.Value.Signature)
			if !ok {
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

// decode parses one log line. Only Anchor event lines emitted by the
// bridge program become events; everything else is skipped silently
// because program logs are mostly noise.
func (s *EventSource) decode(line string, signature solana.Signature) (domain.Event, bool) {
	if !strings.HasPrefix(line, programDataPrefix) {
		return domain.Event{}, false
	}

	payload, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(line, programDataPrefix))
	if err != nil || len(payload) < 8 {
		return domain.Event{}, false
	}

	var discriminator [8]byte
	copy(discriminator[:], payload[:8])

	var kind domain.EventKind
	switch discriminator {
	case newRequestEventDiscriminator:
		kind = domain.EventNewRequest
	case tokenMintedEventDiscriminator:
		kind = domain.EventTokenMinted
	default:
		return domain.Event{}, false
	}

	mint, account, requestID, err := decodeEventBody(payload[8:])
	if err != nil {
		log.Printf("solana event decode failed kind=%s tx=%s err=%v", kind, signature, err)
		return domain.Event{}, false
	}

	return domain.Event{
		Kind:      kind,
		Chain:     domain.ChainSolana,
		RequestID: requestID,
		Asset:     mint.String(),
		Account:   account.String(),
		TxHash:    signature.String(),
	}, true
}

// decodeEventBody reads the shared event layout: mint pubkey, subject
// account pubkey, then the request id as a borsh string.
func decodeEventBody(data []byte) (mint, account solana.PublicKey, requestID string, err error) {
	if len(data) < 64 {
		return solana.PublicKey{}, solana.PublicKey{}, "", fmt.Errorf("short event body")
	}
	mint = solana.PublicKeyFromBytes(data[:32])
	account = solana.PublicKeyFromBytes(data[32:64])
	requestID, _, err = readBorshString(data[64:])
	if err != nil {
		return solana.PublicKey{}, solana.PublicKey{}, "", err
	}
	return mint, account, requestID, nil
}
