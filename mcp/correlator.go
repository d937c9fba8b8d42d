// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"fmt"
	"sync"
	"sync/atomic"

	internaljson "github.com/relaywire/mcpcore/internal/json"
	"github.com/relaywire/mcpcore/jsonrpc"
)

// ProgressHandler is invoked for each notifications/progress frame that
// carries the progress token of an in-flight call.
type ProgressHandler func(progress, total float64, message string)

// pendingCall is the Correlator's bookkeeping for one outstanding request
// (§3 PendingCall, §4.3).
type pendingCall struct {
	id         jsonrpc.ID
	method     string
	idempotent bool
	params     Params // retained for replay after reconnect
	done       chan callResult
	onProgress ProgressHandler
}

// callResult is the Correlator's internal resolution of a pendingCall:
// result holds the re-encoded JSON-RPC response (decoded into a concrete
// result type one level up, in ops.go), or err is set on failure.
type callResult struct {
	result []byte
	err    error
}

// correlator assigns monotonically increasing request ids and routes
// responses back to their PendingCall by id (§4.3). It never assumes FIFO
// response ordering. A response whose id matches no pending call,
// including a second response for an id already resolved, is ignored;
// duplicate ids are not reported as a protocol violation.
type correlator struct {
	nextID atomic.Int64

	mu      sync.Mutex
	pending map[int64]*pendingCall
	byToken map[string]*pendingCall // progress token -> call, for progress routing
}

func newCorrelator() *correlator {
	return &correlator{
		pending: make(map[int64]*pendingCall),
		byToken: make(map[string]*pendingCall),
	}
}

// allocate reserves the next id for method/params and registers a
// pendingCall, returning the id to use on the wire and the channel that
// will receive its resolution.
func (c *correlator) allocate(method string, params Params, idempotent bool, onProgress ProgressHandler) (jsonrpc.ID, *pendingCall) {
	n := c.nextID.Add(1)
	id := jsonrpc.NewNumberID(n)
	call := &pendingCall{
		id:         id,
		method:     method,
		idempotent: idempotent,
		params:     params,
		done:       make(chan callResult, 1),
		onProgress: onProgress,
	}

	c.mu.Lock()
	c.pending[n] = call
	if onProgress != nil {
		if tok := getProgressToken(params); tok != nil {
			if s, ok := tok.(string); ok {
				c.byToken[s] = call
			}
		}
	}
	c.mu.Unlock()

	return id, call
}

// resolve completes the pending call for resp's id, if any. It reports
// whether a matching call was found; an unmatched response id from the
// wire is not itself an error (it may be a stray late reply after a
// timeout), and a repeated id is indistinguishable from such a reply and
// is likewise ignored.
func (c *correlator) resolve(resp *jsonrpc.Response) bool {
	n, ok := idAsInt(resp.ID)
	if !ok {
		return false
	}

	c.mu.Lock()
	call, ok := c.pending[n]
	if ok {
		delete(c.pending, n)
		c.forgetProgressLocked(call)
	}
	c.mu.Unlock()
	if !ok {
		return false
	}

	var res callResult
	if resp.Error != nil {
		res.err = &RemoteError{Code: resp.Error.Code, Message: resp.Error.Message, Data: resp.Error.Data}
	} else {
		data, err := internaljson.Marshal(resp.Result)
		if err != nil {
			res.err = fmt.Errorf("mcp: re-encoding result: %w", err)
		} else {
			res.result = data
		}
	}
	call.done <- res
	return true
}

// dispatchProgress routes a notifications/progress frame to the call whose
// progress token matches, if any is currently pending.
func (c *correlator) dispatchProgress(token any, progress, total float64, message string) {
	s, ok := token.(string)
	if !ok {
		return
	}
	c.mu.Lock()
	call, ok := c.byToken[s]
	c.mu.Unlock()
	if ok && call.onProgress != nil {
		call.onProgress(progress, total, message)
	}
}

// forget removes id from the pending set without resolving it, used when a
// call is abandoned locally (timeout, cancellation).
func (c *correlator) forget(id jsonrpc.ID) {
	n, ok := idAsInt(id)
	if !ok {
		return
	}
	c.mu.Lock()
	if call, ok := c.pending[n]; ok {
		delete(c.pending, n)
		c.forgetProgressLocked(call)
	}
	c.mu.Unlock()
}

func (c *correlator) forgetProgressLocked(call *pendingCall) {
	if call.onProgress == nil {
		return
	}
	if tok := getProgressToken(call.params); tok != nil {
		if s, ok := tok.(string); ok {
			delete(c.byToken, s)
		}
	}
}

// drainIdempotent removes and returns every pending call registered as
// idempotent, for re-enqueueing on reconnect (§4.6). Non-idempotent calls
// are left for the caller to fail with DisconnectedDuringCall.
func (c *correlator) drainIdempotent() []*pendingCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*pendingCall
	for n, call := range c.pending {
		if call.idempotent {
			out = append(out, call)
			delete(c.pending, n)
			c.forgetProgressLocked(call)
		}
	}
	return out
}

// failAll resolves every still-pending call with err, used on connection
// close or disposal.
func (c *correlator) failAll(err error) {
	c.mu.Lock()
	calls := make([]*pendingCall, 0, len(c.pending))
	for n, call := range c.pending {
		calls = append(calls, call)
		delete(c.pending, n)
	}
	c.byToken = make(map[string]*pendingCall)
	c.mu.Unlock()

	for _, call := range calls {
		call.done <- callResult{err: err}
	}
}

// failNonIdempotent resolves every pending non-idempotent call with
// DisconnectedDuringCall, used on unexpected disconnect (§4.6).
func (c *correlator) failNonIdempotent() {
	c.mu.Lock()
	var calls []*pendingCall
	for n, call := range c.pending {
		if !call.idempotent {
			calls = append(calls, call)
			delete(c.pending, n)
			c.forgetProgressLocked(call)
		}
	}
	c.mu.Unlock()

	for _, call := range calls {
		call.done <- callResult{err: ErrDisconnectedDuringCall}
	}
}

func idAsInt(id jsonrpc.ID) (int64, bool) {
	return id.Int64()
}
