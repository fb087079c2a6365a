package websockets

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/websocket"
	"github.com/pokt-network/poktroll/pkg/polylog"

	"github.com/buildwithgrove/ledgerclient/qos/jsonrpc"
)

const headsBufferSize = 16

// HeadSubscriber subscribes to the heights of new blocks with eth_subscribe("newHeads").
type HeadSubscriber struct {
	Logger polylog.Logger

	// URL is the websocket URL of the endpoint, e.g. wss://host/ws.
	URL string

	// Headers are sent with the websocket handshake, e.g. for authorization.
	Headers http.Header
}

// subscriptionNotification is the push message of an eth_subscribe subscription.
type subscriptionNotification struct {
	Method string `json:"method"`
	Params struct {
		Subscription string `json:"subscription"`
		Result       struct {
			Number hexutil.Uint64 `json:"number"`
		} `json:"result"`
	} `json:"params"`
}

// SubscribeNewHeads returns a channel receiving the height of every new block.
//
// The channel is closed when ctx is done or the connection is lost; the subscriber does
// not reconnect. Heights are dropped rather than queued if the receiver falls behind.
func (s *HeadSubscriber) SubscribeNewHeads(ctx context.Context) (<-chan uint64, error) {
	logger := s.Logger.With("component", "head_subscriber")

	conn, err := Dial(ctx, logger, s.URL, s.Headers)
	if err != nil {
		return nil, err
	}

	subscriptionID, err := subscribe(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	logger.Info().Str("subscription", subscriptionID).Msg("subscribed to new heads")

	frames := readFrames(ctx, logger, conn, headsBufferSize)

	heads := make(chan uint64, headsBufferSize)
	go func() {
		defer close(heads)

		for frame := range frames {
			var notification subscriptionNotification
			if err := json.Unmarshal(frame, &notification); err != nil {
				logger.Debug().Err(err).Msg("ignoring undecodable websocket message")
				continue
			}
			if notification.Method != "eth_subscription" || notification.Params.Subscription != subscriptionID {
				continue
			}

			select {
			case heads <- uint64(notification.Params.Result.Number):
			default:
			}
		}
	}()

	return heads, nil
}

// subscribe sends the eth_subscribe request and returns the subscription ID.
func subscribe(conn *websocket.Conn) (string, error) {
	req, err := jsonrpc.NewRequest("eth_subscribe", []any{"newHeads"})
	if err != nil {
		return "", err
	}

	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return "", err
	}
	if err := conn.WriteJSON(req); err != nil {
		return "", fmt.Errorf("sending eth_subscribe: %w", err)
	}

	if err := conn.SetReadDeadline(time.Now().Add(handshakeTimeout)); err != nil {
		return "", err
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		return "", fmt.Errorf("reading eth_subscribe response: %w", err)
	}

	var response jsonrpc.Response
	if err := json.Unmarshal(data, &response); err != nil {
		return "", fmt.Errorf("%w: %v", ErrSubscriptionMalformed, err)
	}
	if err := response.Validate(req.ID); err != nil {
		return "", fmt.Errorf("%w: %v", ErrSubscriptionMalformed, err)
	}
	if response.Error != nil {
		return "", fmt.Errorf("%w: %w", ErrSubscriptionRejected, response.Error)
	}

	var subscriptionID string
	if err := response.UnmarshalResult(&subscriptionID); err != nil || subscriptionID == "" {
		return "", fmt.Errorf("%w: missing subscription ID", ErrSubscriptionMalformed)
	}
	return subscriptionID, nil
}
