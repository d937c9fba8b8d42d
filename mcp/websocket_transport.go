// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketTransport dials a WebSocket server and carries JSON-RPC messages
// as text frames, one message per frame. This core implements only the
// client side of WebSocket (§1 Scope): there is no WebSocketServerTransport.
type WebSocketTransport struct {
	// URL is the WebSocket server URL (e.g. "ws://localhost:8080/mcp" or
	// "wss://example.com/mcp").
	URL string

	// Dialer is the WebSocket dialer to use. If nil, websocket.DefaultDialer
	// is used.
	Dialer *websocket.Dialer

	// Header specifies additional HTTP headers to send during the
	// handshake (e.g. a bearer Authorization header).
	Header http.Header

	// Subprotocol, if set, is offered during the handshake. Left empty by
	// default: the wire spec does not mandate one, and earlier drafts of
	// this transport hardcoded "mcp", which not every server recognizes.
	Subprotocol string
}

// Connect dials the configured URL.
func (t *WebSocketTransport) Connect(ctx context.Context) (Conn, error) {
	dialer := t.Dialer
	if dialer == nil {
		d := *websocket.DefaultDialer
		dialer = &d
	}
	if t.Subprotocol != "" {
		dialer.Subprotocols = []string{t.Subprotocol}
	}

	conn, resp, err := dialer.DialContext(ctx, t.URL, t.Header)
	if err != nil {
		detail := "dial failed"
		if resp != nil {
			detail = fmt.Sprintf("dial failed (status %d)", resp.StatusCode)
		}
		return nil, &TransportError{Kind: Unreachable, Detail: detail, Err: err}
	}

	return &websocketConnection{conn: conn, sessionID: randText()}, nil
}

// websocketConnection implements Conn over a single WebSocket.
type websocketConnection struct {
	conn      *websocket.Conn
	sessionID string
	mu        sync.Mutex // serializes Write
	closeOnce sync.Once
}

// Read blocks for the next text frame and decodes it. A binary frame is a
// protocol violation: every MCP transport is a JSON text protocol.
func (c *websocketConnection) Read(ctx context.Context) (JSONRPCMessage, error) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			c.conn.Close()
		case <-done:
		}
	}()

	messageType, data, err := c.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return nil, io.EOF
		}
		return nil, &TransportError{Kind: IO, Detail: "websocket read failed", Err: err}
	}
	if messageType != websocket.TextMessage {
		return nil, fmt.Errorf("mcp: binary websocket frame: %w", ErrProtocolViolation)
	}

	msg, err := DecodeMessage(data)
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// Write sends msg as a single text frame.
func (c *websocketConnection) Write(ctx context.Context, msg JSONRPCMessage) error {
	data, err := EncodeMessage(msg)
	if err != nil {
		return fmt.Errorf("mcp: encoding message: %w", err)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if deadline, ok := ctx.Deadline(); ok {
		c.conn.SetWriteDeadline(deadline)
		defer c.conn.SetWriteDeadline(time.Time{})
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return &TransportError{Kind: IO, Detail: "websocket write failed", Err: err}
	}
	return nil
}

func (c *websocketConnection) Close() error {
	var err error
	c.closeOnce.Do(func() { err = c.conn.Close() })
	return err
}

// SessionID satisfies sessionIDer for observability; WebSocket has no
// protocol-level session concept, so this is a locally generated label.
func (c *websocketConnection) SessionID() string {
	return c.sessionID
}
