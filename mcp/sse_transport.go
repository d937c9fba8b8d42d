// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// SseTransport is the classic two-channel SSE transport (§4.2): a long-lived
// GET holds the server-to-client stream open, and the server advertises a
// companion URL for client-to-server POSTs in the stream's first event
// (name "endpoint", data the URL, absolute or relative to Endpoint). If
// that event does not arrive within EndpointEventTimeout, Connect fails
// with ErrTransportUnidirectional, unless SendFallback is "reuse-url".
type SseTransport struct {
	// Endpoint is the URL the initial GET is issued against.
	Endpoint string
	// Client is the HTTP client used for both the GET and POSTs. If nil,
	// http.DefaultClient is used.
	Client *http.Client
	// TokenSource, if set, attaches an OAuth2 bearer token to every request.
	TokenSource oauth2.TokenSource
	// Header holds additional headers sent on every request.
	Header http.Header
	// EndpointEventTimeout bounds how long Connect waits for the server's
	// "endpoint" event before giving up. Zero means 10 seconds.
	EndpointEventTimeout time.Duration
	// SendFallback selects what happens when EndpointEventTimeout elapses
	// without an "endpoint" event. "" (or "none") fails Connect with
	// ErrTransportUnidirectional. "reuse-url" instead treats Endpoint
	// itself as the POST URL, for servers that expect a single endpoint to
	// carry both directions.
	SendFallback string
}

// Connect implements Transport: it opens the event stream and blocks until
// either the "endpoint" event arrives or EndpointEventTimeout elapses,
// whichever fields the connection in a state where Write is meaningful.
func (t *SseTransport) Connect(ctx context.Context) (Conn, error) {
	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	timeout := t.EndpointEventTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	conn := &sseConnection{
		transport:    t,
		client:       client,
		incoming:     make(chan JSONRPCMessage, 64),
		done:         make(chan struct{}),
		endpointSeen: make(chan struct{}),
		broken:       make(chan struct{}),
	}

	resp, err := conn.openStream(ctx, "")
	if err != nil {
		return nil, &TransportError{Kind: Unreachable, Detail: "opening event stream", Err: err}
	}
	conn.mu.Lock()
	conn.resp = resp
	conn.mu.Unlock()

	go conn.pump(resp)

	select {
	case <-conn.endpointSeen:
	case <-time.After(timeout):
		if t.SendFallback == "reuse-url" {
			conn.setPostURL(t.Endpoint)
			return conn, nil
		}
		conn.Close()
		return nil, &TransportError{Kind: Handshake, Detail: "server never advertised a POST endpoint", Err: ErrTransportUnidirectional}
	case <-ctx.Done():
		conn.Close()
		return nil, ctx.Err()
	}

	return conn, nil
}

type sseConnection struct {
	transport *SseTransport
	client    *http.Client

	incoming chan JSONRPCMessage

	mu          sync.Mutex
	postURL     string
	lastEventID string
	resp        *http.Response // the GET currently being read by pump, for Close to abort

	endpointOnce sync.Once
	endpointSeen chan struct{}

	closeOnce sync.Once
	done      chan struct{}
	closeErr  error

	// brokenOnce/broken/brokenErr surface an unexpected stream break (read
	// error, unexpected EOF) to Read exactly once. Unlike the rest of the
	// teacher's transports, this stream used to reconnect internally with
	// its own backoff; it no longer does (§4.4, §4.6): a break is reported
	// to the Connection FSM like any other transport's, and the FSM alone
	// decides whether and how to reconnect.
	brokenOnce sync.Once
	broken     chan struct{}
	brokenErr  error
}

func (c *sseConnection) applyHeaders(req *http.Request, accept string) error {
	for k, vs := range c.transport.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", accept)
	if c.transport.TokenSource != nil {
		tok, err := c.transport.TokenSource.Token()
		if err != nil {
			return fmt.Errorf("mcp: fetching oauth2 token: %w", err)
		}
		tok.SetAuthHeader(req)
	}
	return nil
}

func (c *sseConnection) openStream(ctx context.Context, lastEventID string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.transport.Endpoint, nil)
	if err != nil {
		return nil, err
	}
	if err := c.applyHeaders(req, "text/event-stream"); err != nil {
		return nil, err
	}
	if lastEventID != "" {
		req.Header.Set("Last-Event-ID", lastEventID)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("event stream returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return resp, nil
}

// pump reads events from resp's body until the stream ends, errors, or Close
// is called. It does not reconnect: a break surfaces through Read as an
// error so the Connection FSM's own Reconnecting state (§4.4) and
// failNonIdempotent/drainIdempotent replay policy (§4.6) govern what happens
// next, exactly as for every other transport.
func (c *sseConnection) pump(resp *http.Response) {
	err := c.consume(resp)
	select {
	case <-c.done:
		return // Close was called; no break to report.
	default:
	}
	c.brokenOnce.Do(func() {
		c.brokenErr = err
		close(c.broken)
	})
}

// consume reads events from resp until the stream ends or an error occurs.
// It returns nil only when the connection was deliberately closed.
func (c *sseConnection) consume(resp *http.Response) error {
	defer resp.Body.Close()
	for evt, err := range scanEvents(resp.Body) {
		if err != nil {
			if err == io.EOF {
				return fmt.Errorf("event stream ended")
			}
			return err
		}
		if evt.id != "" {
			c.mu.Lock()
			c.lastEventID = evt.id
			c.mu.Unlock()
		}
		if evt.name == "endpoint" {
			c.setPostURL(strings.TrimSpace(string(evt.data)))
			continue
		}

		msg, decErr := DecodeMessage(evt.data)
		if decErr != nil {
			continue // Malformed frame from a misbehaving server; skip it.
		}
		select {
		case c.incoming <- msg:
		case <-c.done:
			return nil
		}
	}
	return fmt.Errorf("event stream closed")
}

func (c *sseConnection) setPostURL(raw string) {
	c.mu.Lock()
	c.postURL = raw
	c.mu.Unlock()
	c.endpointOnce.Do(func() { close(c.endpointSeen) })
}

func (c *sseConnection) Read(ctx context.Context) (JSONRPCMessage, error) {
	// Prefer any message already buffered over reporting a break: the peer
	// may have sent its last few frames right before the stream ended.
	select {
	case msg := <-c.incoming:
		return msg, nil
	default:
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, io.EOF
	case msg := <-c.incoming:
		return msg, nil
	case <-c.broken:
		select {
		case msg := <-c.incoming:
			return msg, nil
		default:
		}
		select {
		case <-c.done:
			return nil, io.EOF
		default:
		}
		return nil, &TransportError{Kind: IO, Detail: "sse event stream ended unexpectedly", Err: c.brokenErr}
	}
}

func (c *sseConnection) Write(ctx context.Context, msg JSONRPCMessage) error {
	c.mu.Lock()
	postURL := c.postURL
	c.mu.Unlock()
	if postURL == "" {
		return ErrTransportUnidirectional
	}

	data, err := EncodeMessage(msg)
	if err != nil {
		return fmt.Errorf("mcp: encoding message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, postURL, bytes.NewReader(data))
	if err != nil {
		return &TransportError{Kind: IO, Detail: "building POST request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if err := c.applyHeaders(req, "application/json"); err != nil {
		return &TransportError{Kind: IO, Detail: "attaching headers", Err: err}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return &TransportError{Kind: IO, Detail: "POST failed", Err: err}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &TransportError{Kind: IO, Detail: fmt.Sprintf("server returned %s", resp.Status)}
	}
	return nil
}

func (c *sseConnection) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.postURL
}

func (c *sseConnection) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.mu.Lock()
		resp := c.resp
		c.mu.Unlock()
		if resp != nil {
			resp.Body.Close()
		}
	})
	return c.closeErr
}
