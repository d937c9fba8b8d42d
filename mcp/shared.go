// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import "reflect"

// Meta holds the protocol's reserved "_meta" object, attached to most
// params and results so clients and servers can exchange out-of-band
// metadata (notably the progress token).
type Meta map[string]any

// progressTokenKey is the well-known _meta key carrying a progress token,
// per the MCP spec's notifications/progress mechanism.
const progressTokenKey = "progressToken"

// Params is implemented by every request/notification parameter type in
// protocol.go. isParams is an unexported marker restricting implementers to
// this package; GetProgressToken/SetProgressToken give Protocol Ops and the
// Correlator uniform access to the progress token carried in Meta, without
// a type switch over every params type.
type Params interface {
	isParams()
	GetProgressToken() any
	SetProgressToken(any)
}

// Result is implemented by every result type in protocol.go.
type Result interface {
	isResult()
}

// getProgressToken and setProgressToken operate on the embedded Meta field
// that every params type carries. They're implemented with reflection,
// once, rather than by hand in each of the dozens of params types.
func getProgressToken(params any) any {
	v := reflect.ValueOf(params)
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	f := v.FieldByName("Meta")
	if !f.IsValid() {
		return nil
	}
	m, ok := f.Interface().(Meta)
	if !ok || m == nil {
		return nil
	}
	return m[progressTokenKey]
}

func setProgressToken(params any, token any) {
	v := reflect.ValueOf(params)
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return
		}
		v = v.Elem()
	}
	f := v.FieldByName("Meta")
	if !f.IsValid() || !f.CanSet() {
		return
	}
	m, _ := f.Interface().(Meta)
	if m == nil {
		m = Meta{}
	}
	m[progressTokenKey] = token
	f.Set(reflect.ValueOf(m))
}

// EmptyResult is the result of a protocol operation that carries no
// payload on success (ping, initialized). The wire value is "{}".
type EmptyResult struct{}

func (EmptyResult) isResult() {}

// ClientRequest wraps a request sent to the client by a server: the only
// two methods servers may send inbound are sampling/createMessage and
// roots/list (§4.5). Connection is the originating connection, so a
// registered handler can inspect its ServerInfo or capabilities if needed.
type ClientRequest[P Params] struct {
	Connection *Connection
	Params     P
}

// CreateMessageRequest is the inbound sampling/createMessage request
// dispatched to a host-registered SamplingHandler.
type CreateMessageRequest = ClientRequest[*CreateMessageParams]

// ListRootsRequest is the inbound roots/list request dispatched to a
// host-registered RootsHandler.
type ListRootsRequest = ClientRequest[*ListRootsParams]
