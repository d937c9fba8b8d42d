// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package jsonrpc implements the JSON-RPC 2.0 message envelope used by the
// Model Context Protocol: requests, responses, notifications, and the
// standard error codes, plus encoding and decoding helpers shared by every
// wire transport (stdio, HTTP, SSE, WebSocket).
package jsonrpc

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	ijson "github.com/relaywire/mcpcore/internal/json"
	"github.com/relaywire/mcpcore/internal/jsonrpc2"
)

// JSONRPC_VERSION is the only protocol version value this package emits or
// accepts.
const JSONRPC_VERSION = "2.0"

// Standard JSON-RPC 2.0 error codes (https://www.jsonrpc.org/specification#error_object).
const (
	PARSE_ERROR      = -32700
	INVALID_REQUEST  = -32600
	METHOD_NOT_FOUND = -32601
	INVALID_PARAMS   = -32602
	INTERNAL_ERROR   = -32603

	// CodeInvalidParams is an alias kept for readability at call sites that
	// build parameter-validation errors.
	CodeInvalidParams = INVALID_PARAMS
)

// ID identifies a request and its matching response. Per the JSON-RPC 2.0
// spec an id is a string, a number, or null; this type preserves whichever
// of the two non-null forms the peer used so that responses round-trip the
// same wire representation the request carried.
type ID struct {
	str    string
	num    int64
	isStr  bool
	isNum  bool
}

// NewStringID returns an ID holding a string value.
func NewStringID(s string) ID { return ID{str: s, isStr: true} }

// NewNumberID returns an ID holding an integer value.
func NewNumberID(n int64) ID { return ID{num: n, isNum: true} }

// IsValid reports whether the ID was set (as opposed to an absent id, which
// marks a notification).
func (id ID) IsValid() bool { return id.isStr || id.isNum }

// Int64 returns the ID's integer value and true if it was constructed with
// NewNumberID; otherwise it returns false.
func (id ID) Int64() (int64, bool) { return id.num, id.isNum }

// Value returns the ID's underlying string or int64 value, for embedding in
// a params struct that references a request id by its wire representation
// (e.g. a cancellation notification's requestId). Returns nil for a zero ID.
func (id ID) Value() any {
	switch {
	case id.isStr:
		return id.str
	case id.isNum:
		return id.num
	default:
		return nil
	}
}

// String renders the ID for logging and map keys, regardless of its
// underlying representation.
func (id ID) String() string {
	switch {
	case id.isStr:
		return id.str
	case id.isNum:
		return fmt.Sprintf("%d", id.num)
	default:
		return ""
	}
}

func (id ID) MarshalJSON() ([]byte, error) {
	switch {
	case id.isStr:
		return ijson.Marshal(id.str)
	case id.isNum:
		return ijson.Marshal(id.num)
	default:
		return []byte("null"), nil
	}
}

func (id *ID) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*id = ID{}
		return nil
	}
	var s string
	if err := ijson.Unmarshal(data, &s); err == nil {
		*id = NewStringID(s)
		return nil
	}
	var n int64
	if err := ijson.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("jsonrpc: id must be a string or number: %w", err)
	}
	*id = NewNumberID(n)
	return nil
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int64  `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// NewError constructs an *Error with the given code, message, and optional
// data payload.
func NewError(code int64, message string, data any) *Error {
	return &Error{Code: code, Message: message, Data: data}
}

// Message is implemented by Request, Response, and Notification. It is the
// unit the wire codec (§4.1 of the design) frames and unframes.
type Message interface {
	isJSONRPCMessage()
}

// Messages is a convenience slice type, used where several messages are
// handled together.
type Messages []Message

// Request is a JSON-RPC request: it carries an id and expects exactly one
// matching Response.
type Request struct {
	ID     ID     `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

func (*Request) isJSONRPCMessage() {}

// Notification is a JSON-RPC request with no id: it never receives a
// response.
type Notification struct {
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

func (*Notification) isJSONRPCMessage() {}

// Response is a JSON-RPC response: exactly one of Result or Error is set.
type Response struct {
	ID     ID     `json:"id"`
	Result any    `json:"result,omitempty"`
	Error  *Error `json:"error,omitempty"`
}

func (*Response) isJSONRPCMessage() {}

// wireMessage is the superset envelope used only for marshalling and
// unmarshalling; callers never see it directly.
type wireMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *ID             `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  any             `json:"params,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// EncodeMessage renders msg as a single JSON object, the form every
// transport in §4.2 places on the wire (one line on stdio, one HTTP body,
// one SSE `data:` payload, one WebSocket text frame).
func EncodeMessage(msg Message) ([]byte, error) {
	w := wireMessage{JSONRPC: JSONRPC_VERSION}
	switch m := msg.(type) {
	case *Request:
		id := m.ID
		w.ID = &id
		w.Method = m.Method
		w.Params = m.Params
	case *Notification:
		w.Method = m.Method
		w.Params = m.Params
	case *Response:
		id := m.ID
		w.ID = &id
		w.Result = m.Result
		w.Error = m.Error
	default:
		return nil, fmt.Errorf("jsonrpc: unknown message type %T", msg)
	}
	return ijson.Marshal(w)
}

// EncodeMessageTo writes the encoded message to w, a convenience for
// transports that frame directly onto an io.Writer (e.g. stdio's
// newline-delimited writer).
func EncodeMessageTo(w io.Writer, msg Message) error {
	data, err := EncodeMessage(msg)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// DecodeMessage parses a single JSON-RPC 2.0 message, classifying it as a
// Request, Notification, or Response by the presence of id/method/result/error,
// and rejects malformed envelopes per §4.1 and §7 (ProtocolViolation).
func DecodeMessage(data []byte) (Message, error) {
	var w wireMessage
	if err := jsonrpc2.StrictUnmarshal(data, &w); err != nil {
		// A duplicate case-variant key or a case-insensitive field match is
		// the message-smuggling shape jsonrpc2.StrictUnmarshal exists to
		// catch; never re-admit it through a lenient decode.
		if errors.Is(err, jsonrpc2.ErrPossibleSmuggling) {
			return nil, fmt.Errorf("jsonrpc: decode: %w: %w", errProtocolViolation, err)
		}
		// Otherwise fall back to a lenient decode: servers in the wild send
		// extra fields the strict decoder would reject outright (e.g. a
		// custom "meta" field at the envelope level); only the
		// jsonrpc/id/method shape is load-bearing here.
		if err2 := ijson.Unmarshal(data, &w); err2 != nil {
			return nil, fmt.Errorf("jsonrpc: decode: %w", err)
		}
	}
	if w.JSONRPC != JSONRPC_VERSION {
		return nil, fmt.Errorf("jsonrpc: missing or invalid \"jsonrpc\" field: %w", errProtocolViolation)
	}
	switch {
	case w.Method != "" && w.ID == nil:
		return &Notification{Method: w.Method, Params: w.Params}, nil
	case w.Method != "" && w.ID != nil:
		return &Request{ID: *w.ID, Method: w.Method, Params: w.Params}, nil
	case w.ID != nil && (w.Result != nil || w.Error != nil):
		if w.Result != nil && w.Error != nil {
			return nil, fmt.Errorf("jsonrpc: response has both result and error: %w", errProtocolViolation)
		}
		return &Response{ID: *w.ID, Result: w.Result, Error: w.Error}, nil
	default:
		return nil, fmt.Errorf("jsonrpc: message is neither request, notification, nor response: %w", errProtocolViolation)
	}
}

// errProtocolViolation is a sentinel so callers outside this package can
// test decode failures with errors.Is without importing mcp's error
// taxonomy (which itself wraps this sentinel as mcp.ErrProtocolViolation).
var errProtocolViolation = errors.New("malformed jsonrpc message")

// IsProtocolViolation reports whether err (or a wrapped cause) is a framing
// or envelope violation raised by DecodeMessage.
func IsProtocolViolation(err error) bool {
	return errors.Is(err, errProtocolViolation)
}
