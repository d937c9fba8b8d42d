// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/relaywire/mcpcore/jsonrpc"
	"golang.org/x/tools/txtar"
)

// A conformanceTest checks JSON-level conformance of the outbound requests
// the Connection sends for a named operation, and its handling of a scripted
// server response, against a fixed sequence of JSON-RPC messages recorded in
// a txtar archive. The initialize handshake is always message 0 on both
// sides; message 1 carries the operation this test exercises.
//
// Conformance tests are loaded from testdata/conformance/client/*.txtar.
type conformanceTest struct {
	name   string
	server []jsonrpc.Message
	client []jsonrpc.Message
}

func decodeConformanceMessages(data []byte) ([]jsonrpc.Message, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	var msgs []jsonrpc.Message
	for dec.More() {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, err
		}
		m, err := jsonrpc.DecodeMessage(raw)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

func loadConformanceTests(t *testing.T, dir string) []*conformanceTest {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var tests []*conformanceTest
	for _, e := range entries {
		if !strings.HasSuffix(e.Name(), ".txtar") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		archive := txtar.Parse(data)
		test := &conformanceTest{name: strings.TrimSuffix(e.Name(), ".txtar")}
		for _, f := range archive.Files {
			msgs, err := decodeConformanceMessages(f.Data)
			if err != nil {
				t.Fatalf("%s: decoding %s: %v", path, f.Name, err)
			}
			switch f.Name {
			case "server":
				test.server = msgs
			case "client":
				test.client = msgs
			default:
				t.Fatalf("%s: unknown archive section %q", path, f.Name)
			}
		}
		if len(test.server) < 2 || len(test.client) < 2 {
			t.Fatalf("%s: need an initialize pair plus one operation pair", path)
		}
		tests = append(tests, test)
	}
	return tests
}

// TestClientConformance drives the Connection against each testdata archive:
// it answers the implicit initialize handshake with the archive's server[0],
// invokes the operation the archive names, asserts the outbound request
// matches client[1], answers it with server[1], and checks the decoded
// result against it. This is the client-side counterpart to the teacher
// SDK's (server-only) conformance suite.
func TestClientConformance(t *testing.T) {
	tests := loadConformanceTests(t, filepath.Join("testdata", "conformance", "client"))
	if len(tests) == 0 {
		t.Fatal("no conformance tests found")
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			runClientConformanceTest(t, test)
		})
	}
}

func runClientConformanceTest(t *testing.T, test *conformanceTest) {
	t.Helper()

	initResp, ok := test.server[0].(*jsonrpc.Response)
	if !ok {
		t.Fatalf("first server message must be the initialize response")
	}
	opResp, ok := test.server[1].(*jsonrpc.Response)
	if !ok {
		t.Fatalf("second server message must be the operation response")
	}
	opReq, ok := test.client[1].(*jsonrpc.Request)
	if !ok {
		t.Fatalf("second client message must be the operation request")
	}

	conn := newFakeConn()
	tt := newFakeTransport(connectOutcome{conn: conn})
	c := newTestConnection(t, &ServerInfo{Name: "conformance", HeartbeatMs: -1}, tt, nil)

	initReqMsg := conn.next()
	req, ok := initReqMsg.(*jsonrpc.Request)
	if !ok || req.Method != methodInitialize {
		t.Fatalf("first outbound message = %#v, want an initialize request", initReqMsg)
	}
	conn.deliver(&jsonrpc.Response{ID: req.ID, Result: initResp.Result, Error: initResp.Error})
	waitForState(t, c, StateReady, time.Second)

	// The Connection writes notifications/initialized right after the
	// handshake, before any operation request; drain it first.
	if n := conn.next(); n == nil {
		t.Fatalf("connection closed before notifications/initialized")
	} else if note, ok := n.(*jsonrpc.Notification); !ok || note.Method != notificationInitialized {
		t.Fatalf("message after initialize = %#v, want notifications/initialized", n)
	}

	type opOutcome struct {
		raw json.RawMessage
		err error
	}
	results := make(chan opOutcome, 1)
	go func() {
		raw, err := invokeConformanceOp(context.Background(), c, test.name)
		results <- opOutcome{raw, err}
	}()

	outReqMsg := conn.next()
	outReq, ok := outReqMsg.(*jsonrpc.Request)
	if !ok {
		t.Fatalf("second outbound message = %#v, want a request", outReqMsg)
	}
	if outReq.Method != opReq.Method {
		t.Fatalf("outbound method = %q, want %q", outReq.Method, opReq.Method)
	}
	if !jsonEquivalent(outReq.Params, opReq.Params) {
		t.Fatalf("outbound params = %#v, want %#v", outReq.Params, opReq.Params)
	}
	conn.deliver(&jsonrpc.Response{ID: outReq.ID, Result: opResp.Result, Error: opResp.Error})

	res := <-results
	if opResp.Error != nil {
		if res.err == nil {
			t.Fatalf("operation succeeded, want error %v", opResp.Error)
		}
		return
	}
	if res.err != nil {
		t.Fatalf("operation failed: %v", res.err)
	}
	if res.raw != nil && !jsonEquivalent(res.raw, opResp.Result) {
		t.Fatalf("result = %s, want %s", res.raw, mustMarshal(opResp.Result))
	}
}

// invokeConformanceOp calls the Protocol Op named by a conformance test,
// marshaling its typed result back to JSON for comparison against the
// archive's scripted response.
func invokeConformanceOp(ctx context.Context, c *Connection, name string) (json.RawMessage, error) {
	switch name {
	case "tools_list":
		res, err := ListTools(ctx, c, "", nil)
		if err != nil {
			return nil, err
		}
		return mustMarshal(res), nil
	case "tools_call":
		res, err := CallTool(ctx, c, "echo", map[string]any{"text": "hi"}, nil)
		if err != nil {
			return nil, err
		}
		return mustMarshal(res), nil
	case "resources_read":
		res, err := ReadResource(ctx, c, "file:///info.txt", nil)
		if err != nil {
			return nil, err
		}
		return mustMarshal(res), nil
	case "ping":
		return nil, Ping(ctx, c, nil)
	default:
		return nil, fmt.Errorf("no conformance op wired for %q", name)
	}
}

func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

// jsonEquivalent reports whether a and b marshal to the same JSON value,
// ignoring field order and concrete Go type.
func jsonEquivalent(a, b any) bool {
	na, err := normalizeJSON(a)
	if err != nil {
		return false
	}
	nb, err := normalizeJSON(b)
	if err != nil {
		return false
	}
	return reflect.DeepEqual(na, nb)
}

func normalizeJSON(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
