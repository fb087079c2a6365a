// Package websockets subscribes to new block headers over a ledger endpoint's websocket.
package websockets

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pokt-network/poktroll/pkg/polylog"
)

const (
	handshakeTimeout = 10 * time.Second
	writeTimeout     = 10 * time.Second

	// A connection with no pong for pongTimeout is considered dead.
	// pingInterval must be shorter than pongTimeout.
	pongTimeout  = 30 * time.Second
	pingInterval = (pongTimeout * 9) / 10
)

// Dial opens a websocket connection to the endpoint at websocketURL, sending headers with the handshake.
func Dial(ctx context.Context, logger polylog.Logger, websocketURL string, headers http.Header) (*websocket.Conn, error) {
	u, err := url.Parse(websocketURL)
	if err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshakeTimeout,
	}

	conn, resp, err := dialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dialing websocket endpoint %s: handshake answered with HTTP %d: %w", u.Host, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dialing websocket endpoint %s: %w", u.Host, err)
	}

	logger.Debug().Str("endpoint_host", u.Host).Msg("connected to websocket endpoint")
	return conn, nil
}

// readFrames reads the text frames of conn in the background and keeps conn alive with pings.
//
// The returned channel is closed once conn is lost or ctx is done, at which point
// conn is closed. Non-text frames are dropped.
func readFrames(ctx context.Context, logger polylog.Logger, conn *websocket.Conn, buffer int) <-chan []byte {
	ctx, cancel := context.WithCancel(ctx)
	frames := make(chan []byte, buffer)

	// Set before the first read: the pong handler runs inside ReadMessage.
	_ = conn.SetReadDeadline(time.Now().Add(pongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	go func() {
		<-ctx.Done()
		// Unblocks the pending ReadMessage.
		conn.Close()
	}()

	go ping(ctx, cancel, logger, conn)

	go func() {
		defer close(frames)
		defer cancel()

		for {
			messageType, data, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() == nil {
					logger.Info().Err(err).Msg("websocket connection lost")
				}
				return
			}
			if messageType != websocket.TextMessage {
				continue
			}

			select {
			case frames <- data:
			case <-ctx.Done():
				return
			}
		}
	}()

	return frames
}

// ping sends a ping every pingInterval until ctx is done, and gives up on the connection
// if a ping cannot be written.
// See: https://pkg.go.dev/github.com/gorilla/websocket#hdr-Control_Messages
func ping(ctx context.Context, cancel context.CancelFunc, logger polylog.Logger, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				logger.Warn().Err(err).Msg("failed to ping websocket endpoint")
				cancel()
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
