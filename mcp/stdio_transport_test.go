// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"testing"
	"time"

	"github.com/relaywire/mcpcore/jsonrpc"
)

// TestStdioTransportRoundTrip launches `cat` as the child: whatever this
// core writes to its stdin comes back unchanged on stdout, giving a real
// subprocess round trip without depending on an actual MCP server binary.
func TestStdioTransportRoundTrip(t *testing.T) {
	tr := &StdioTransport{Command: "cat"}
	conn, err := tr.Connect(context.Background())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer conn.Close()

	req := &jsonrpc.Request{ID: jsonrpc.NewNumberID(7), Method: methodPing}
	if err := conn.Write(context.Background(), req); err != nil {
		t.Fatalf("Write: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	msg, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	echoed, ok := msg.(*jsonrpc.Request)
	if !ok || echoed.Method != methodPing {
		t.Fatalf("Read = %+v, want echoed ping request", msg)
	}
}

func TestStdioTransportCloseTerminatesChild(t *testing.T) {
	tr := &StdioTransport{Command: "cat", KillGrace: 100 * time.Millisecond}
	conn, err := tr.Connect(context.Background())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestStdioTransportConnectRejectsMissingCommand(t *testing.T) {
	tr := &StdioTransport{Command: "definitely-not-a-real-executable-xyz"}
	if _, err := tr.Connect(context.Background()); err == nil {
		t.Fatal("Connect succeeded for a nonexistent executable, want error")
	}
}
