// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"io"
	"sync"

	"github.com/relaywire/mcpcore/jsonrpc"
)

// fakeConn is an in-memory Conn: test code drives the "server" side by
// reading what the Connection wrote from outbox and pushing replies onto
// incoming, without any real transport underneath.
type fakeConn struct {
	incoming chan JSONRPCMessage
	outbox   chan JSONRPCMessage

	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		incoming: make(chan JSONRPCMessage, 16),
		outbox:   make(chan JSONRPCMessage, 16),
		closed:   make(chan struct{}),
	}
}

func (c *fakeConn) Read(ctx context.Context) (JSONRPCMessage, error) {
	select {
	case m, ok := <-c.incoming:
		if !ok {
			return nil, io.EOF
		}
		return m, nil
	case <-c.closed:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *fakeConn) Write(ctx context.Context, msg JSONRPCMessage) error {
	select {
	case c.outbox <- msg:
		return nil
	case <-c.closed:
		return ErrTransportClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

// deliver pushes msg onto the read side, as if the "server" sent it.
func (c *fakeConn) deliver(msg JSONRPCMessage) {
	select {
	case c.incoming <- msg:
	case <-c.closed:
	}
}

// next blocks for the next message the Connection wrote, or nil if conn
// was closed first.
func (c *fakeConn) next() JSONRPCMessage {
	select {
	case m := <-c.outbox:
		return m
	case <-c.closed:
		return nil
	}
}

// connectOutcome is one scripted result of a fakeTransport.Connect call.
type connectOutcome struct {
	conn *fakeConn
	err  error
}

// fakeTransport hands out scripted connections in order, repeating the
// last one once the script is exhausted.
type fakeTransport struct {
	mu      sync.Mutex
	script  []connectOutcome
	attempt int
}

func newFakeTransport(outcomes ...connectOutcome) *fakeTransport {
	return &fakeTransport{script: outcomes}
}

func (t *fakeTransport) Connect(ctx context.Context) (Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	i := t.attempt
	if i >= len(t.script) {
		i = len(t.script) - 1
	}
	t.attempt++
	o := t.script[i]
	if o.err != nil {
		return nil, o.err
	}
	return o.conn, nil
}

// autoServe runs a background goroutine that answers every message the
// Connection writes to conn's outbox using handle, until conn is closed.
// It always answers initialize and ping itself unless handle intercepts
// them first by returning true.
func autoServe(conn *fakeConn, handle func(msg JSONRPCMessage) (handled bool)) {
	go func() {
		for {
			msg := conn.next()
			if msg == nil {
				return
			}
			if handle != nil && handle(msg) {
				continue
			}
			switch m := msg.(type) {
			case *jsonrpc.Request:
				switch m.Method {
				case methodInitialize:
					conn.deliver(&jsonrpc.Response{ID: m.ID, Result: &InitializeResult{
						ProtocolVersion: protocolVersion,
						ServerInfo:      &Implementation{Name: "fakeServer", Version: "1.0.0"},
						Capabilities: &ServerCapabilities{
							Tools:     &ToolCapabilities{},
							Resources: &ResourceCapabilities{},
							Prompts:   &PromptCapabilities{},
						},
					}})
				case methodPing:
					conn.deliver(&jsonrpc.Response{ID: m.ID, Result: &EmptyResult{}})
				}
			}
		}
	}()
}
