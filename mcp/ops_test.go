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

func readyConnWithCapabilities(t *testing.T, caps *ServerCapabilities, handle func(msg JSONRPCMessage) bool) *Connection {
	t.Helper()
	conn := newFakeConn()
	autoServe(conn, func(msg JSONRPCMessage) bool {
		if handle != nil && handle(msg) {
			return true
		}
		if req, ok := msg.(*jsonrpc.Request); ok && req.Method == methodInitialize {
			conn.deliver(&jsonrpc.Response{ID: req.ID, Result: &InitializeResult{
				ProtocolVersion: protocolVersion,
				ServerInfo:      &Implementation{Name: "fakeServer", Version: "1.0.0"},
				Capabilities:    caps,
			}})
			return true
		}
		return false
	})
	tt := newFakeTransport(connectOutcome{conn: conn})
	c := newTestConnection(t, &ServerInfo{Name: "svc"}, tt, nil)
	waitForState(t, c, StateReady, time.Second)
	return c
}

func TestOpsCapabilityGating(t *testing.T) {
	c := readyConnWithCapabilities(t, &ServerCapabilities{}, nil)

	if _, err := ListTools(context.Background(), c, "", nil); !errors.Is(err, ErrCapabilityUnsupported) {
		t.Errorf("ListTools err = %v, want ErrCapabilityUnsupported", err)
	}
	if _, err := ListResources(context.Background(), c, "", nil); !errors.Is(err, ErrCapabilityUnsupported) {
		t.Errorf("ListResources err = %v, want ErrCapabilityUnsupported", err)
	}
	if _, err := ListPrompts(context.Background(), c, "", nil); !errors.Is(err, ErrCapabilityUnsupported) {
		t.Errorf("ListPrompts err = %v, want ErrCapabilityUnsupported", err)
	}
}

func TestOpsCallToolRoundTrip(t *testing.T) {
	conn := newFakeConn()
	autoServe(conn, func(msg JSONRPCMessage) bool {
		req, ok := msg.(*jsonrpc.Request)
		if !ok {
			return false
		}
		switch req.Method {
		case methodCallTool:
			conn.deliver(&jsonrpc.Response{ID: req.ID, Result: &CallToolResult{
				Content: []Content{&TextContent{Text: "pong"}},
			}})
			return true
		}
		return false
	})
	tt := newFakeTransport(connectOutcome{conn: conn})
	c2 := newTestConnection(t, &ServerInfo{Name: "svc2"}, tt, nil)
	waitForState(t, c2, StateReady, time.Second)

	result, err := CallTool(context.Background(), c2, "echo", map[string]any{"x": 1}, nil)
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if len(result.Content) != 1 {
		t.Fatalf("CallTool result.Content = %+v", result.Content)
	}
}

func TestOpsListRootsDisabledByStrictRootsDirection(t *testing.T) {
	conn := newFakeConn()
	autoServe(conn, nil)
	tt := newFakeTransport(connectOutcome{conn: conn})
	c := newTestConnection(t, &ServerInfo{Name: "svc", StrictRootsDirection: true}, tt, nil)
	waitForState(t, c, StateReady, time.Second)

	if _, err := ListRoots(context.Background(), c, nil); err == nil {
		t.Fatal("ListRoots succeeded with StrictRootsDirection set, want error")
	}
}

func TestOpsListToolsPagination(t *testing.T) {
	pages := map[string]*ListToolsResult{
		"": {Tools: []*Tool{{Name: "a"}}, NextCursor: "p2"},
		"p2": {Tools: []*Tool{{Name: "b"}}},
	}
	conn := newFakeConn()
	autoServe(conn, func(msg JSONRPCMessage) bool {
		req, ok := msg.(*jsonrpc.Request)
		if !ok || req.Method != methodListTools {
			return false
		}
		params := req.Params.(*ListToolsParams)
		page := pages[params.Cursor]
		conn.deliver(&jsonrpc.Response{ID: req.ID, Result: page})
		return true
	})
	tt := newFakeTransport(connectOutcome{conn: conn})
	c := newTestConnection(t, &ServerInfo{Name: "svc"}, tt, nil)
	waitForState(t, c, StateReady, time.Second)

	var names []string
	cursor := ""
	for {
		page, err := ListTools(context.Background(), c, cursor, nil)
		if err != nil {
			t.Fatalf("ListTools: %v", err)
		}
		for _, tool := range page.Tools {
			names = append(names, tool.Name)
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Fatalf("paginated tool names = %v", names)
	}
}
