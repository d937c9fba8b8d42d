// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"fmt"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/relaywire/mcpcore/internal/mcpgodebug"
)

// TransportKind selects which of the four wire transports a ServerInfo
// connects over.
type TransportKind int

const (
	// TransportStdio launches Command as a subprocess and exchanges
	// newline-delimited JSON over its stdin/stdout.
	TransportStdio TransportKind = iota
	// TransportHTTP POSTs each outbound message to URL and reads the
	// matching response, if any, from that POST's body.
	TransportHTTP
	// TransportSSE opens a long-lived GET to URL for the server-to-client
	// stream and POSTs client-to-server messages to the endpoint the
	// server advertises over that stream.
	TransportSSE
	// TransportWebSocket dials URL and exchanges JSON-RPC as WebSocket text
	// frames.
	TransportWebSocket
)

func (k TransportKind) String() string {
	switch k {
	case TransportStdio:
		return "stdio"
	case TransportHTTP:
		return "http"
	case TransportSSE:
		return "sse"
	case TransportWebSocket:
		return "websocket"
	default:
		return "unknown"
	}
}

// Default configuration values (§6 External Interfaces). Zero-valued
// ServerInfo fields fall back to these through the effective* helpers, the
// same pattern as effectiveMaxBodyBytes in http_limits.go.
const (
	DefaultTimeoutMs          = 30_000
	DefaultReconnectBaseMs    = 500
	DefaultReconnectCapMs     = 30_000
	DefaultHeartbeatMs        = 30_000
	DefaultHeartbeatTimeoutMs = 10_000
	DefaultQueueMaxSize       = defaultQueueMaxSize
	DefaultMaxFrameBytes      = maxStdioFrameBytes
	DefaultKillGraceMs        = int(defaultKillGrace / time.Millisecond)
)

// ServerInfo is the configuration unit a Manager connects: one named MCP
// server, the transport it speaks, and every tunable governing timeouts,
// reconnection, and queueing for that connection (§3 Data Model, §6
// External Interfaces).
type ServerInfo struct {
	// Name uniquely identifies this server within a Manager; it prefixes
	// every namespaced tool/resource/prompt id this server contributes.
	Name string
	// Type selects the transport.
	Type TransportKind

	// Command, Args, Env, Dir configure TransportStdio.
	Command string
	Args    []string
	Env     map[string]string
	Dir     string

	// URL configures TransportHTTP, TransportSSE, and TransportWebSocket.
	URL string
	// Headers are attached to every request these transports make.
	Headers map[string]string
	// TokenSource, if set, attaches an OAuth2 bearer token to every
	// request on TransportHTTP, TransportSSE, and TransportWebSocket.
	TokenSource oauth2.TokenSource

	// TimeoutMs bounds how long a single request waits for a response
	// before failing with ErrTimeout. Zero means DefaultTimeoutMs.
	TimeoutMs int
	// MaxRetries bounds reconnect attempts before a connection gives up
	// and transitions to Closed permanently. Zero means unlimited.
	MaxRetries int
	// ReconnectBaseMs and ReconnectCapMs parameterize the exponential
	// backoff used between reconnect attempts (§4.6). Zero means
	// DefaultReconnectBaseMs / DefaultReconnectCapMs.
	ReconnectBaseMs int
	ReconnectCapMs  int
	// HeartbeatMs is the interval between ping heartbeats while Ready.
	// Zero means DefaultHeartbeatMs; negative disables heartbeats.
	HeartbeatMs int
	// HeartbeatTimeoutMs bounds how long a heartbeat ping waits for a
	// reply. Zero means DefaultHeartbeatTimeoutMs.
	HeartbeatTimeoutMs int
	// QueueMaxSize bounds the outbound user-frame queue (§4.6). Zero
	// means DefaultQueueMaxSize.
	QueueMaxSize int
	// MaxFrameBytes caps how much of each HTTP response body TransportHTTP
	// reads (it becomes HttpTransport.MaxBodyBytes; zero means
	// DefaultMaxBodyBytes). It does not change the stdio line limit, which
	// is always DefaultMaxFrameBytes.
	MaxFrameBytes int
	// KillGraceMs is how long a stdio child is given to exit after
	// SIGTERM before SIGKILL. Zero means DefaultKillGraceMs.
	KillGraceMs int

	// RateLimitPerSecond, if positive, caps the rate at which this
	// connection issues outbound user requests (tools/call, resources/read,
	// and the like); control traffic (initialize, ping, cancellation) is
	// never throttled. Zero or negative means unlimited.
	RateLimitPerSecond float64
	// RateLimitBurst is the token bucket's burst size. Zero means 1.
	RateLimitBurst int

	// WSSubprotocol overrides the WebSocket subprotocol offered during the
	// handshake for TransportWebSocket. Empty means none is offered.
	WSSubprotocol string

	// SSESendFallback selects what TransportSSE does when a server never
	// advertises an "endpoint" event for client-to-server POSTs. "" (or
	// "none") fails the connection with ErrTransportUnidirectional, the
	// strict reading of the classic two-channel transport. "reuse-url"
	// instead reuses the opening GET URL for POSTs, for servers that expect
	// a single endpoint to carry both directions.
	SSESendFallback string

	// StrictRootsDirection disables the ListRoots function's outbound
	// roots/list request when set, enforcing the
	// reading of the MCP spec where roots/list only ever flows
	// server-to-client. Process-wide default comes from
	// MCPGODEBUG=roots_list_strict=1 when this is left false.
	StrictRootsDirection bool

	// SamplingHandler, if set, answers inbound sampling/createMessage
	// requests for this connection. Registering it here (rather than via
	// Connection.OnSampling after the fact) is what makes it safe to use
	// through Manager.Connect, which starts the connection immediately on
	// return: the handler is wired in at construction, before Start's
	// goroutine can ever read it.
	SamplingHandler SamplingHandler
	// RootsHandler, if set, answers inbound roots/list requests for this
	// connection. Same construction-time wiring rationale as
	// SamplingHandler.
	RootsHandler RootsHandler

	// Logger receives process-level diagnostics for this connection. Nil
	// discards everything.
	Logger Logger
}

func (s *ServerInfo) effectiveTimeout() time.Duration {
	if s.TimeoutMs <= 0 {
		return DefaultTimeoutMs * time.Millisecond
	}
	return time.Duration(s.TimeoutMs) * time.Millisecond
}

func (s *ServerInfo) effectiveReconnectBase() time.Duration {
	if s.ReconnectBaseMs <= 0 {
		return DefaultReconnectBaseMs * time.Millisecond
	}
	return time.Duration(s.ReconnectBaseMs) * time.Millisecond
}

func (s *ServerInfo) effectiveReconnectCap() time.Duration {
	if s.ReconnectCapMs <= 0 {
		return DefaultReconnectCapMs * time.Millisecond
	}
	return time.Duration(s.ReconnectCapMs) * time.Millisecond
}

// effectiveHeartbeat reports the heartbeat interval and whether heartbeats
// are enabled at all (disabled when HeartbeatMs is explicitly negative).
func (s *ServerInfo) effectiveHeartbeat() (time.Duration, bool) {
	if s.HeartbeatMs < 0 {
		return 0, false
	}
	if s.HeartbeatMs == 0 {
		return DefaultHeartbeatMs * time.Millisecond, true
	}
	return time.Duration(s.HeartbeatMs) * time.Millisecond, true
}

func (s *ServerInfo) effectiveHeartbeatTimeout() time.Duration {
	if s.HeartbeatTimeoutMs <= 0 {
		return DefaultHeartbeatTimeoutMs * time.Millisecond
	}
	return time.Duration(s.HeartbeatTimeoutMs) * time.Millisecond
}

func (s *ServerInfo) effectiveQueueMaxSize() int {
	if s.QueueMaxSize <= 0 {
		return DefaultQueueMaxSize
	}
	return s.QueueMaxSize
}

func (s *ServerInfo) effectiveKillGrace() time.Duration {
	if s.KillGraceMs <= 0 {
		return time.Duration(DefaultKillGraceMs) * time.Millisecond
	}
	return time.Duration(s.KillGraceMs) * time.Millisecond
}

// effectiveRateLimiter returns a token-bucket limiter for this server's
// outbound user requests, or nil if unthrottled.
func (s *ServerInfo) effectiveRateLimiter() *rate.Limiter {
	if s.RateLimitPerSecond <= 0 {
		return nil
	}
	burst := s.RateLimitBurst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(s.RateLimitPerSecond), burst)
}

// effectiveStrictRootsDirection reports whether outbound roots/list should
// be disabled, combining the per-server opt-in with the process-wide
// MCPGODEBUG=roots_list_strict=1 default.
func (s *ServerInfo) effectiveStrictRootsDirection() bool {
	if s.StrictRootsDirection {
		return true
	}
	return mcpgodebug.Value("roots_list_strict") == "1"
}

func (s *ServerInfo) logger() Logger {
	if s.Logger == nil {
		return nopLogger{}
	}
	return s.Logger
}

// newTransport builds the Transport this ServerInfo describes.
func (s *ServerInfo) newTransport() (Transport, error) {
	switch s.Type {
	case TransportStdio:
		if s.Command == "" {
			return nil, fmt.Errorf("mcp: server %q: stdio transport requires Command", s.Name)
		}
		return &StdioTransport{
			Command:   s.Command,
			Args:      s.Args,
			Env:       s.Env,
			Dir:       s.Dir,
			KillGrace: s.effectiveKillGrace(),
			Logger:    s.logger(),
		}, nil
	case TransportHTTP:
		if s.URL == "" {
			return nil, fmt.Errorf("mcp: server %q: http transport requires URL", s.Name)
		}
		return &HttpTransport{
			Endpoint:     s.URL,
			TokenSource:  s.TokenSource,
			Header:       toHeader(s.Headers),
			MaxBodyBytes: int64(s.MaxFrameBytes),
		}, nil
	case TransportSSE:
		if s.URL == "" {
			return nil, fmt.Errorf("mcp: server %q: sse transport requires URL", s.Name)
		}
		return &SseTransport{
			Endpoint:     s.URL,
			TokenSource:  s.TokenSource,
			Header:       toHeader(s.Headers),
			SendFallback: s.SSESendFallback,
		}, nil
	case TransportWebSocket:
		if s.URL == "" {
			return nil, fmt.Errorf("mcp: server %q: websocket transport requires URL", s.Name)
		}
		return &WebSocketTransport{
			URL:         s.URL,
			Header:      toHeader(s.Headers),
			Subprotocol: s.WSSubprotocol,
		}, nil
	default:
		return nil, fmt.Errorf("mcp: server %q: unknown transport kind %v", s.Name, s.Type)
	}
}
