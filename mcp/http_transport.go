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

	"golang.org/x/oauth2"
)

// HttpTransport is the plain request/response wire transport (§4.2): every
// outbound message is one HTTP POST, and a request's matching response (if
// any) arrives as that POST's body. There is no server-initiated push on
// this transport; a server that wants to send notifications or sampling
// requests needs SseTransport or WebSocketTransport instead.
type HttpTransport struct {
	// Endpoint is the URL every message is POSTed to.
	Endpoint string
	// Client is the HTTP client used for requests. If nil, http.DefaultClient
	// is used.
	Client *http.Client
	// TokenSource, if set, attaches an OAuth2 bearer token to every request
	// (§11 domain stack: golang.org/x/oauth2, attachment only, no flow).
	TokenSource oauth2.TokenSource
	// Header holds additional headers sent on every request (e.g. API keys).
	Header http.Header
	// MaxBodyBytes bounds how much of a response body is read. See
	// effectiveMaxBodyBytes for the zero/negative semantics.
	MaxBodyBytes int64
}

// Connect implements Transport. It issues a single GET against Endpoint to
// confirm the server is reachable before handing back a live Connection;
// a network-level failure or a non-2xx status here is Unreachable.
func (t *HttpTransport) Connect(ctx context.Context) (Conn, error) {
	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}

	probe, err := http.NewRequestWithContext(ctx, http.MethodGet, t.Endpoint, nil)
	if err != nil {
		return nil, &TransportError{Kind: Unreachable, Detail: "building probe request", Err: err}
	}
	t.applyHeaders(ctx, probe)
	resp, err := client.Do(probe)
	if err != nil {
		return nil, &TransportError{Kind: Unreachable, Detail: "probing endpoint", Err: err}
	}
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &TransportError{Kind: Unreachable, Detail: fmt.Sprintf("endpoint returned %s", resp.Status)}
	}

	return &httpConnection{
		transport: t,
		client:    client,
		incoming:  make(chan JSONRPCMessage, 64),
		done:      make(chan struct{}),
	}, nil
}

func (t *HttpTransport) applyHeaders(ctx context.Context, req *http.Request) error {
	for k, vs := range t.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if t.TokenSource != nil {
		tok, err := t.TokenSource.Token()
		if err != nil {
			return fmt.Errorf("mcp: fetching oauth2 token: %w", err)
		}
		tok.SetAuthHeader(req)
	}
	return nil
}

type httpConnection struct {
	transport *HttpTransport
	client    *http.Client

	incoming chan JSONRPCMessage

	closeOnce sync.Once
	done      chan struct{}
	closeErr  error
}

// Read implements Conn by draining responses that Write has already
// decoded. Messages a server never answers (notifications) never appear
// here; Write for those returns as soon as the POST completes.
func (c *httpConnection) Read(ctx context.Context) (JSONRPCMessage, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, io.EOF
	case msg := <-c.incoming:
		return msg, nil
	}
}

// Write POSTs msg and, if the response body carries a JSON-RPC message
// (true for requests; servers answer notifications with an empty body),
// decodes it and makes it available to Read.
func (c *httpConnection) Write(ctx context.Context, msg JSONRPCMessage) error {
	data, err := EncodeMessage(msg)
	if err != nil {
		return fmt.Errorf("mcp: encoding message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.transport.Endpoint, bytes.NewReader(data))
	if err != nil {
		return &TransportError{Kind: IO, Detail: "building POST request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if err := c.transport.applyHeaders(ctx, req); err != nil {
		return &TransportError{Kind: IO, Detail: "attaching headers", Err: err}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return &TransportError{Kind: IO, Detail: "POST failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return &TransportError{
			Kind:   IO,
			Detail: fmt.Sprintf("server returned %s", resp.Status),
			Err:    fmt.Errorf("%s", strings.TrimSpace(string(body))),
		}
	}
	if resp.ContentLength == 0 {
		return nil
	}

	body, err := io.ReadAll(limitBody(resp.Body, effectiveMaxBodyBytes(c.transport.MaxBodyBytes)))
	if err != nil {
		return &TransportError{Kind: IO, Detail: "reading response body", Err: err}
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}

	reply, err := DecodeMessage(body)
	if err != nil {
		return fmt.Errorf("mcp: decoding response: %w", err)
	}

	select {
	case c.incoming <- reply:
	case <-c.done:
		return ErrTransportClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (c *httpConnection) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return c.closeErr
}
