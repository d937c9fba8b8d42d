// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/relaywire/mcpcore/jsonrpc"
)

// sseTestServer serves a GET event stream on / (advertising its own URL as
// the endpoint when advertiseEndpoint is set) and answers every POST with
// 202 Accepted without writing anything to the stream.
func sseTestServer(t *testing.T, advertiseEndpoint bool) *httptest.Server {
	t.Helper()
	var mux http.ServeMux
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			flusher, ok := w.(http.Flusher)
			if !ok {
				t.Fatal("ResponseWriter does not support flushing")
			}
			w.Header().Set("Content-Type", "text/event-stream")
			w.WriteHeader(http.StatusOK)
			if advertiseEndpoint {
				writeEvent(w, event{name: "endpoint", data: []byte(r.URL.String())})
				flusher.Flush()
			}
			<-r.Context().Done()
		case http.MethodPost:
			w.WriteHeader(http.StatusAccepted)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
	return httptest.NewServer(&mux)
}

func TestSseTransportConnectsWhenEndpointAdvertised(t *testing.T) {
	srv := sseTestServer(t, true)
	defer srv.Close()

	tr := &SseTransport{Endpoint: srv.URL, EndpointEventTimeout: time.Second}
	conn, err := tr.Connect(context.Background())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer conn.Close()

	req := &jsonrpc.Request{ID: jsonrpc.NewNumberID(1), Method: methodPing}
	if err := conn.Write(context.Background(), req); err != nil {
		t.Fatalf("Write: %v", err)
	}
}

func TestSseTransportFailsWithoutEndpointByDefault(t *testing.T) {
	srv := sseTestServer(t, false)
	defer srv.Close()

	tr := &SseTransport{Endpoint: srv.URL, EndpointEventTimeout: 50 * time.Millisecond}
	_, err := tr.Connect(context.Background())
	if !errors.Is(err, ErrTransportUnidirectional) {
		t.Fatalf("Connect err = %v, want ErrTransportUnidirectional", err)
	}
}

// TestSseTransportReadSurfacesStreamBreak confirms that when the server
// closes the event stream unexpectedly, Read returns an error instead of
// silently reconnecting in the background — the Connection FSM, not the
// transport, owns reconnection.
func TestSseTransportReadSurfacesStreamBreak(t *testing.T) {
	var mux http.ServeMux
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			flusher, ok := w.(http.Flusher)
			if !ok {
				t.Fatal("ResponseWriter does not support flushing")
			}
			w.Header().Set("Content-Type", "text/event-stream")
			w.WriteHeader(http.StatusOK)
			writeEvent(w, event{name: "endpoint", data: []byte(r.URL.String())})
			flusher.Flush()
			// Close the stream immediately instead of holding it open: a
			// misbehaving or restarting server.
		case http.MethodPost:
			w.WriteHeader(http.StatusAccepted)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
	srv := httptest.NewServer(&mux)
	defer srv.Close()

	tr := &SseTransport{Endpoint: srv.URL, EndpointEventTimeout: time.Second}
	conn, err := tr.Connect(context.Background())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := conn.Read(ctx); err == nil {
		t.Fatal("Read returned nil error after the server closed the stream, want a break error")
	} else if errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Read timed out waiting for a break error instead of reporting one: %v", err)
	}
}

func TestSseTransportReuseURLFallbackWhenNoEndpointEvent(t *testing.T) {
	srv := sseTestServer(t, false)
	defer srv.Close()

	tr := &SseTransport{
		Endpoint:             srv.URL,
		EndpointEventTimeout: 50 * time.Millisecond,
		SendFallback:         "reuse-url",
	}
	conn, err := tr.Connect(context.Background())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer conn.Close()

	req := &jsonrpc.Request{ID: jsonrpc.NewNumberID(1), Method: methodPing}
	if err := conn.Write(context.Background(), req); err != nil {
		t.Fatalf("Write with reuse-url fallback: %v", err)
	}
}
