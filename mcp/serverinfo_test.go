// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"testing"
	"time"
)

func TestServerInfoEffectiveDefaults(t *testing.T) {
	var s ServerInfo
	if got, want := s.effectiveTimeout(), DefaultTimeoutMs*time.Millisecond; got != want {
		t.Errorf("effectiveTimeout = %v, want %v", got, want)
	}
	if got, want := s.effectiveReconnectBase(), DefaultReconnectBaseMs*time.Millisecond; got != want {
		t.Errorf("effectiveReconnectBase = %v, want %v", got, want)
	}
	if got, want := s.effectiveReconnectCap(), DefaultReconnectCapMs*time.Millisecond; got != want {
		t.Errorf("effectiveReconnectCap = %v, want %v", got, want)
	}
	if d, on := s.effectiveHeartbeat(); !on || d != DefaultHeartbeatMs*time.Millisecond {
		t.Errorf("effectiveHeartbeat = %v, %v", d, on)
	}
	if got := s.effectiveQueueMaxSize(); got != DefaultQueueMaxSize {
		t.Errorf("effectiveQueueMaxSize = %d, want %d", got, DefaultQueueMaxSize)
	}
	if got := s.effectiveRateLimiter(); got != nil {
		t.Errorf("effectiveRateLimiter = %v, want nil (unthrottled)", got)
	}
}

func TestServerInfoNegativeHeartbeatDisables(t *testing.T) {
	s := ServerInfo{HeartbeatMs: -1}
	if _, on := s.effectiveHeartbeat(); on {
		t.Fatal("effectiveHeartbeat reported enabled for negative HeartbeatMs")
	}
}

func TestServerInfoRateLimiterDefaultsBurstToOne(t *testing.T) {
	s := ServerInfo{RateLimitPerSecond: 5}
	limiter := s.effectiveRateLimiter()
	if limiter == nil {
		t.Fatal("effectiveRateLimiter = nil, want a limiter")
	}
	if b := limiter.Burst(); b != 1 {
		t.Fatalf("Burst() = %d, want 1", b)
	}
}

func TestServerInfoNewTransportValidatesRequiredFields(t *testing.T) {
	cases := []struct {
		name string
		info ServerInfo
	}{
		{"stdio without Command", ServerInfo{Name: "s", Type: TransportStdio}},
		{"http without URL", ServerInfo{Name: "s", Type: TransportHTTP}},
		{"sse without URL", ServerInfo{Name: "s", Type: TransportSSE}},
		{"websocket without URL", ServerInfo{Name: "s", Type: TransportWebSocket}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := tc.info.newTransport(); err == nil {
				t.Fatal("newTransport succeeded, want validation error")
			}
		})
	}
}

func TestServerInfoNewTransportBuildsEachKind(t *testing.T) {
	cases := []struct {
		name string
		info ServerInfo
	}{
		{"stdio", ServerInfo{Name: "s", Type: TransportStdio, Command: "echo"}},
		{"http", ServerInfo{Name: "s", Type: TransportHTTP, URL: "http://localhost/mcp"}},
		{"sse", ServerInfo{Name: "s", Type: TransportSSE, URL: "http://localhost/sse"}},
		{"websocket", ServerInfo{Name: "s", Type: TransportWebSocket, URL: "ws://localhost/ws"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tr, err := tc.info.newTransport()
			if err != nil {
				t.Fatalf("newTransport: %v", err)
			}
			if tr == nil {
				t.Fatal("newTransport returned nil Transport with no error")
			}
		})
	}
}

func TestServerInfoNewTransportWiresWSSubprotocol(t *testing.T) {
	info := ServerInfo{Name: "s", Type: TransportWebSocket, URL: "ws://localhost/ws", WSSubprotocol: "mcp"}
	tr, err := info.newTransport()
	if err != nil {
		t.Fatalf("newTransport: %v", err)
	}
	ws, ok := tr.(*WebSocketTransport)
	if !ok {
		t.Fatalf("newTransport returned %T, want *WebSocketTransport", tr)
	}
	if ws.Subprotocol != "mcp" {
		t.Fatalf("Subprotocol = %q, want %q", ws.Subprotocol, "mcp")
	}
}

func TestServerInfoNewTransportWiresSSESendFallback(t *testing.T) {
	info := ServerInfo{Name: "s", Type: TransportSSE, URL: "http://localhost/sse", SSESendFallback: "reuse-url"}
	tr, err := info.newTransport()
	if err != nil {
		t.Fatalf("newTransport: %v", err)
	}
	sse, ok := tr.(*SseTransport)
	if !ok {
		t.Fatalf("newTransport returned %T, want *SseTransport", tr)
	}
	if sse.SendFallback != "reuse-url" {
		t.Fatalf("SendFallback = %q, want %q", sse.SendFallback, "reuse-url")
	}
}

func TestServerInfoEffectiveStrictRootsDirection(t *testing.T) {
	var off ServerInfo
	if off.effectiveStrictRootsDirection() {
		t.Fatal("effectiveStrictRootsDirection = true for zero-value ServerInfo, want false")
	}
	on := ServerInfo{StrictRootsDirection: true}
	if !on.effectiveStrictRootsDirection() {
		t.Fatal("effectiveStrictRootsDirection = false with StrictRootsDirection set, want true")
	}
}
