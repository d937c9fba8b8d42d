// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/relaywire/mcpcore/jsonrpc"
)

// managerConnectFake registers name on m against a scripted fakeTransport,
// bypassing ServerInfo.newTransport (which only builds real transports).
func managerConnectFake(t *testing.T, m *Manager, name string, tt Transport) *Connection {
	t.Helper()
	info := &ServerInfo{Name: name, Command: "true"}
	c, err := newConnection(info, m)
	if err != nil {
		t.Fatalf("newConnection: %v", err)
	}
	c.transport = tt
	m.mu.Lock()
	m.conns[name] = c
	m.mu.Unlock()
	c.Start()
	return c
}

func drainEvent(t *testing.T, m *Manager, want EventKind, timeout time.Duration) Event {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case e := <-m.Events():
			if e.Kind == want {
				return e
			}
		case <-deadline:
			t.Fatalf("timed out waiting for event %s", want)
		}
	}
}

func TestManagerConnectGetListDisconnect(t *testing.T) {
	m := NewManager()
	conn := newFakeConn()
	autoServe(conn, nil)
	tt := newFakeTransport(connectOutcome{conn: conn})

	c := managerConnectFake(t, m, "svc", tt)
	waitForState(t, c, StateReady, time.Second)

	got, ok := m.Get("svc")
	if !ok || got != c {
		t.Fatalf("Get(svc) = %v, %v", got, ok)
	}
	if names := m.List(); len(names) != 1 || names[0] != "svc" {
		t.Fatalf("List() = %v", names)
	}

	if err := m.Disconnect("svc"); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if _, ok := m.Get("svc"); ok {
		t.Fatalf("Get(svc) after Disconnect still present")
	}
	if c.Status() != StateClosed {
		t.Fatalf("Status() after Disconnect = %s, want closed", c.Status())
	}
}

func TestManagerConnectDuplicateNameFails(t *testing.T) {
	m := NewManager()
	conn := newFakeConn()
	autoServe(conn, nil)
	tt := newFakeTransport(connectOutcome{conn: conn})
	managerConnectFake(t, m, "svc", tt)

	_, err := m.Connect(&ServerInfo{Name: "svc"})
	if !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("Connect duplicate name err = %v, want ErrAlreadyExists", err)
	}
}

func TestManagerEmitsLifecycleEvents(t *testing.T) {
	m := NewManager()
	conn := newFakeConn()
	autoServe(conn, nil)
	tt := newFakeTransport(connectOutcome{conn: conn})

	managerConnectFake(t, m, "svc", tt)
	drainEvent(t, m, EventConnecting, time.Second)
	drainEvent(t, m, EventEstablished, time.Second)
}

func TestManagerDisposeClosesEventsAfterEveryConnection(t *testing.T) {
	m := NewManager()
	for _, name := range []string{"a", "b"} {
		conn := newFakeConn()
		autoServe(conn, nil)
		tt := newFakeTransport(connectOutcome{conn: conn})
		c := managerConnectFake(t, m, name, tt)
		waitForState(t, c, StateReady, time.Second)
	}

	done := make(chan struct{})
	go func() {
		m.Dispose()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Dispose did not return")
	}

	for name := range m.conns {
		t.Fatalf("connection %q still registered after Dispose", name)
	}
	if _, ok := <-m.Events(); ok {
		t.Fatal("Events channel still open after Dispose")
	}
}

// stuckConn answers the initialize handshake but then never unblocks Read,
// and never observes ctx cancellation — a transport whose driver goroutine
// can never exit on its own, the scenario a shutdown grace exists for.
type stuckConn struct {
	incoming chan JSONRPCMessage
}

func newStuckConn() *stuckConn {
	return &stuckConn{incoming: make(chan JSONRPCMessage, 4)}
}

func (c *stuckConn) Read(ctx context.Context) (JSONRPCMessage, error) {
	return <-c.incoming, nil
}

func (c *stuckConn) Write(ctx context.Context, msg JSONRPCMessage) error {
	if req, ok := msg.(*jsonrpc.Request); ok && req.Method == methodInitialize {
		c.incoming <- &jsonrpc.Response{ID: req.ID, Result: &InitializeResult{
			ProtocolVersion: protocolVersion,
			ServerInfo:      &Implementation{Name: "stuckServer", Version: "1.0.0"},
			Capabilities:    &ServerCapabilities{},
		}}
	}
	return nil
}

// Close deliberately does not unblock Read: a Conn whose Close can't actually
// abort an in-flight read is exactly what forces Connection.Close to hang.
func (c *stuckConn) Close() error { return nil }

type stuckTransport struct{ conn Conn }

func (t *stuckTransport) Connect(ctx context.Context) (Conn, error) { return t.conn, nil }

// TestManagerDisposeForcesPastShutdownGrace confirms Dispose returns within
// its shutdown grace even when a Connection.Close call never returns,
// instead of blocking on it forever.
func TestManagerDisposeForcesPastShutdownGrace(t *testing.T) {
	m := NewManager()
	m.ShutdownGraceMs = 50
	c := managerConnectFake(t, m, "stuck", &stuckTransport{conn: newStuckConn()})
	waitForState(t, c, StateReady, time.Second)

	done := make(chan struct{})
	go func() {
		m.Dispose()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Dispose blocked on a Connection.Close that never returns, want it to force past ShutdownGraceMs")
	}
}
