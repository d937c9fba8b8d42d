// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"fmt"

	"github.com/relaywire/mcpcore/jsonrpc"
)

// JSONRPCMessage is the wire message type exchanged over every transport.
type JSONRPCMessage = jsonrpc.Message

// JSONRPCID aliases the JSON-RPC id type used to correlate requests with
// responses.
type JSONRPCID = jsonrpc.ID

// JSONRPCRequest and JSONRPCResponse alias the corresponding jsonrpc types,
// so that transport code can type-switch on messages without importing the
// jsonrpc package directly.
type (
	JSONRPCRequest      = jsonrpc.Request
	JSONRPCResponse     = jsonrpc.Response
	JSONRPCNotification = jsonrpc.Notification
)

// EncodeMessage and DecodeMessage are the jsonrpc codec as every transport
// here uses it; a malformed message decodes to an error that also matches
// ErrProtocolViolation.
func EncodeMessage(msg JSONRPCMessage) ([]byte, error) { return jsonrpc.EncodeMessage(msg) }

func DecodeMessage(data []byte) (JSONRPCMessage, error) {
	msg, err := jsonrpc.DecodeMessage(data)
	if err != nil && jsonrpc.IsProtocolViolation(err) {
		return nil, fmt.Errorf("%w: %w", ErrProtocolViolation, err)
	}
	return msg, err
}

// A Transport establishes a logical wire connection to one MCP server.
// Connect may be called more than once over the lifetime of a Transport
// value (the reconnect loop in Connection calls it again on every reconnect
// attempt); each call produces an independent Conn.
type Transport interface {
	Connect(ctx context.Context) (Conn, error)
}

// A Conn is a single, live duplex channel of JSON-RPC messages to or from
// one MCP server. Read is only ever called by one goroutine at a time
// (Connection's read pump); Write may be called concurrently with Read, but
// concurrent Writes are serialized by the caller.
type Conn interface {
	// Read blocks until a message arrives, ctx is done, or the connection is
	// closed, in which case it returns io.EOF.
	Read(ctx context.Context) (JSONRPCMessage, error)
	// Write sends msg, blocking only as long as required to hand it to the
	// underlying transport.
	Write(ctx context.Context, msg JSONRPCMessage) error
	// Close tears down the connection. It is safe to call more than once.
	Close() error
}

// sessionIDer is implemented by connections that can report a session
// label: SSE reports the POST URL it was given, WebSocket a locally
// generated label. Stdio and HTTP connections do not implement it.
type sessionIDer interface {
	SessionID() string
}
