package websockets

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pokt-network/poktroll/pkg/polylog/polyzero"
	"github.com/stretchr/testify/require"
)

// newHeadsServer answers eth_subscribe with reply, then pushes a notification for each of notifications.
// reply is formatted with the request ID.
func newHeadsServer(t *testing.T, reply string, notifications ...string) string {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Error("Error during connection upgrade:", err)
			return
		}
		defer conn.Close()

		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var req map[string]json.RawMessage
		if err := json.Unmarshal(data, &req); err != nil {
			t.Error("Error decoding subscription request:", err)
			return
		}
		if string(req["method"]) != `"eth_subscribe"` || string(req["params"]) != `["newHeads"]` {
			t.Errorf("unexpected subscription request: %s", data)
			return
		}

		if err := conn.WriteMessage(websocket.TextMessage, []byte(fmt.Sprintf(reply, req["id"]))); err != nil {
			return
		}
		for _, notification := range notifications {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(notification)); err != nil {
				return
			}
		}

		// Hold the connection until the client closes it.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(server.Close)

	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func headNotification(subscription string, number string) string {
	return fmt.Sprintf(`{"jsonrpc":"2.0","method":"eth_subscription","params":{"subscription":%q,"result":{"number":%q,"hash":"0x01"}}}`, subscription, number)
}

func Test_SubscribeNewHeads(t *testing.T) {
	c := require.New(t)

	url := newHeadsServer(t,
		`{"jsonrpc":"2.0","id":%s,"result":"0xabc"}`,
		headNotification("0xabc", "0x10"),
		`not json`,
		headNotification("0xother", "0x99"),
		headNotification("0xabc", "0x11"),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	subscriber := &HeadSubscriber{Logger: polyzero.NewLogger(), URL: url, Headers: http.Header{}}
	heads, err := subscriber.SubscribeNewHeads(ctx)
	c.NoError(err)

	var received []uint64
	timeout := time.After(2 * time.Second)
	for len(received) < 2 {
		select {
		case height := <-heads:
			received = append(received, height)
		case <-timeout:
			t.Fatal("Timeout waiting for new heads")
		}
	}
	c.Equal([]uint64{0x10, 0x11}, received)

	cancel()
	select {
	case _, ok := <-heads:
		c.False(ok, "expected the heads channel to be closed")
	case <-time.After(2 * time.Second):
		t.Fatal("heads channel was not closed after cancellation")
	}
}

func Test_SubscribeNewHeads_Rejected(t *testing.T) {
	url := newHeadsServer(t, `{"jsonrpc":"2.0","id":%s,"error":{"code":-32601,"message":"subscriptions not supported"}}`)

	subscriber := &HeadSubscriber{Logger: polyzero.NewLogger(), URL: url}
	heads, err := subscriber.SubscribeNewHeads(context.Background())
	require.ErrorIs(t, err, ErrSubscriptionRejected)
	require.Nil(t, heads)
}

func Test_SubscribeNewHeads_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{
			name:  "not json",
			reply: `subscribed%.0s`,
		},
		{
			name:  "mismatched id",
			reply: `{"jsonrpc":"2.0","id":"other%s","result":"0xabc"}`,
		},
		{
			name:  "missing subscription id",
			reply: `{"jsonrpc":"2.0","id":%s,"result":""}`,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			url := newHeadsServer(t, test.reply)

			subscriber := &HeadSubscriber{Logger: polyzero.NewLogger(), URL: url}
			_, err := subscriber.SubscribeNewHeads(context.Background())
			require.ErrorIs(t, err, ErrSubscriptionMalformed)
		})
	}
}
