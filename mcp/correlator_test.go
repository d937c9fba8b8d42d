// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"errors"
	"testing"

	"github.com/relaywire/mcpcore/jsonrpc"
)

func TestCorrelatorResolveRoutesById(t *testing.T) {
	c := newCorrelator()
	id, call := c.allocate(methodPing, &PingParams{}, false, nil)

	resp := &jsonrpc.Response{ID: id, Result: &EmptyResult{}}
	if !c.resolve(resp) {
		t.Fatal("resolve reported no matching call")
	}
	select {
	case res := <-call.done:
		if res.err != nil {
			t.Fatalf("unexpected error: %v", res.err)
		}
	default:
		t.Fatal("call.done not signaled")
	}
}

func TestCorrelatorResolveUnmatchedIdIsNotAnError(t *testing.T) {
	c := newCorrelator()
	resp := &jsonrpc.Response{ID: jsonrpc.NewNumberID(999), Result: &EmptyResult{}}
	if c.resolve(resp) {
		t.Fatal("resolve matched an id that was never allocated")
	}
}

func TestCorrelatorResolveCarriesRemoteError(t *testing.T) {
	c := newCorrelator()
	id, call := c.allocate(methodCallTool, &CallToolParams{Name: "x"}, false, nil)
	resp := &jsonrpc.Response{ID: id, Error: jsonrpc.NewError(-32000, "boom", nil)}
	if !c.resolve(resp) {
		t.Fatal("resolve reported no matching call")
	}
	res := <-call.done
	var remote *RemoteError
	if !errors.As(res.err, &remote) || remote.Message != "boom" {
		t.Fatalf("err = %v, want RemoteError{boom}", res.err)
	}
}

func TestCorrelatorDrainIdempotentLeavesNonIdempotentPending(t *testing.T) {
	c := newCorrelator()
	_, idemCall := c.allocate(methodListTools, &ListToolsParams{}, true, nil)
	_, nonIdemCall := c.allocate(methodCallTool, &CallToolParams{Name: "x"}, false, nil)

	drained := c.drainIdempotent()
	if len(drained) != 1 || drained[0] != idemCall {
		t.Fatalf("drainIdempotent = %v, want [idemCall]", drained)
	}

	c.failNonIdempotent()
	res := <-nonIdemCall.done
	if !errors.Is(res.err, ErrDisconnectedDuringCall) {
		t.Fatalf("non-idempotent call err = %v, want ErrDisconnectedDuringCall", res.err)
	}

	// The idempotent call was drained out of the pending set, so
	// failNonIdempotent must not resolve it; requeueing it is the caller's
	// job.
	select {
	case <-idemCall.done:
		t.Fatal("idempotent call resolved by failNonIdempotent")
	default:
	}
}

func TestCorrelatorFailAllResolvesEveryPendingCall(t *testing.T) {
	c := newCorrelator()
	_, call1 := c.allocate(methodListTools, &ListToolsParams{}, true, nil)
	_, call2 := c.allocate(methodCallTool, &CallToolParams{Name: "x"}, false, nil)

	c.failAll(ErrDisconnected)

	for _, call := range []*pendingCall{call1, call2} {
		res := <-call.done
		if !errors.Is(res.err, ErrDisconnected) {
			t.Fatalf("err = %v, want ErrDisconnected", res.err)
		}
	}
}

func TestCorrelatorForgetDropsCallWithoutResolving(t *testing.T) {
	c := newCorrelator()
	id, call := c.allocate(methodPing, &PingParams{}, false, nil)
	c.forget(id)

	resp := &jsonrpc.Response{ID: id, Result: &EmptyResult{}}
	if c.resolve(resp) {
		t.Fatal("resolve matched a forgotten id")
	}
	select {
	case <-call.done:
		t.Fatal("forgotten call's done channel was signaled")
	default:
	}
}

func TestCorrelatorProgressRoutesToRegisteredToken(t *testing.T) {
	c := newCorrelator()
	var got []float64
	params := &CallToolParams{Name: "x"}
	params.SetProgressToken("tok-1")
	c.allocate(methodCallTool, params, false, func(progress, total float64, message string) {
		got = append(got, progress)
	})

	c.dispatchProgress("tok-1", 0.5, 1, "halfway")
	c.dispatchProgress("tok-1", 1, 1, "done")

	if len(got) != 2 || got[0] != 0.5 || got[1] != 1 {
		t.Fatalf("progress callbacks = %v", got)
	}
}
