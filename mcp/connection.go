// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	internaljson "github.com/relaywire/mcpcore/internal/json"
	"github.com/relaywire/mcpcore/jsonrpc"
	"golang.org/x/time/rate"
)

// protocolVersion is the MCP protocol version string this core speaks in
// its initialize request. moduleVersion identifies this core in the
// clientInfo it sends.
const (
	protocolVersion = "2024-11-05"
	moduleVersion   = "0.1.0"
)

// State is one node of the Connection FSM (§4.4).
type State int

const (
	// StateIdle is the state before Start is first called.
	StateIdle State = iota
	// StateConnecting means Transport.Connect is in flight.
	StateConnecting
	// StateInitializing means the transport is live and the initialize
	// handshake is in flight.
	StateInitializing
	// StateReady means initialize completed; requests send immediately.
	StateReady
	// StateDegraded means two consecutive heartbeats have failed; the
	// connection is still usable, a successful heartbeat returns it to Ready,
	// and a third consecutive failure forces a reconnect.
	StateDegraded
	// StateReconnecting means the live connection was lost and a new
	// Transport.Connect attempt is scheduled or in flight, after backoff.
	StateReconnecting
	// StateClosed is terminal: Close was called, or MaxRetries was
	// exceeded. No further transitions occur.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateDegraded:
		return "degraded"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// eventSink receives Connection lifecycle and traffic notifications for
// Manager's event stream (§4.7). A nil sink is replaced with a no-op one so
// Connection never needs to check for nil.
type eventSink interface {
	stateChanged(name string, from, to State)
	messageSent(name, method string)
	messageReceived(name, method string)
	connectionError(name string, err error)
	connectionFailed(name string, err error)
}

type nopSink struct{}

func (nopSink) stateChanged(string, State, State) {}
func (nopSink) messageSent(string, string)        {}
func (nopSink) messageReceived(string, string)    {}
func (nopSink) connectionError(string, error)     {}
func (nopSink) connectionFailed(string, error)    {}

// SamplingHandler answers an inbound sampling/createMessage request, the one
// server-initiated call this client-role core accepts (§1 Scope).
type SamplingHandler func(context.Context, *CreateMessageRequest) (*CreateMessageResult, error)

// RootsHandler answers an inbound roots/list request.
type RootsHandler func(context.Context, *ListRootsRequest) (*ListRootsResult, error)

// Connection is one server's connection: the FSM owner, the single
// Transport it reconnects against, its request Correlator, and its
// outbound queue. A Connection is created by Manager.Connect and is not
// meant to be constructed directly outside the package.
type Connection struct {
	name      string
	info      *ServerInfo
	transport Transport
	sink      eventSink

	corr    *correlator
	queue   *outboundQueue
	limiter *rate.Limiter // nil means unthrottled

	mu            sync.Mutex
	state         State
	conn          Conn
	writeMu       sync.Mutex
	serverInfo    *Implementation
	capabilities  *ServerCapabilities
	attempt       int
	heartbeatFail int
	samplingFn    SamplingHandler
	rootsFn       RootsHandler

	ctx    context.Context
	cancel context.CancelFunc
	closed chan struct{}
}

func newConnection(info *ServerInfo, sink eventSink) (*Connection, error) {
	transport, err := info.newTransport()
	if err != nil {
		return nil, err
	}
	if sink == nil {
		sink = nopSink{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Connection{
		name:      info.Name,
		info:      info,
		transport: transport,
		sink:      sink,
		corr:      newCorrelator(),
		queue:     newOutboundQueue(info.effectiveQueueMaxSize()),
		limiter:   info.effectiveRateLimiter(),
		state:     StateIdle,
		samplingFn: info.SamplingHandler,
		rootsFn:    info.RootsHandler,
		ctx:        ctx,
		cancel:     cancel,
		closed:     make(chan struct{}),
	}, nil
}

// OnSampling registers the handler invoked for inbound sampling/createMessage
// requests. It must be called before Start to avoid a race with the read
// pump; through Manager.Connect, which starts the connection immediately,
// set ServerInfo.SamplingHandler instead.
func (c *Connection) OnSampling(fn SamplingHandler) { c.samplingFn = fn }

// OnRoots registers the handler invoked for inbound roots/list requests.
func (c *Connection) OnRoots(fn RootsHandler) { c.rootsFn = fn }

// Start launches the connect-and-run loop in a background goroutine and
// returns immediately (§5 Concurrency Model: the Manager's caller API is
// non-blocking).
func (c *Connection) Start() {
	go c.run()
}

// Status reports the FSM's current state.
func (c *Connection) Status() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Capabilities reports the server's advertised capabilities, or nil if
// initialize has not yet completed.
func (c *Connection) Capabilities() *ServerCapabilities {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capabilities
}

// ServerImplementation reports the server's self-reported Implementation, or nil if
// initialize has not yet completed.
func (c *Connection) ServerImplementation() *Implementation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverInfo
}

func (c *Connection) setState(to State) {
	c.mu.Lock()
	from := c.state
	c.state = to
	c.mu.Unlock()
	if from != to {
		c.sink.stateChanged(c.name, from, to)
	}
}

// run is the FSM driver: connect, initialize, pump reads, heartbeat, and on
// any break reconnect with backoff, until Close is called or MaxRetries is
// exceeded.
func (c *Connection) run() {
	defer close(c.closed)
	for {
		if c.ctx.Err() != nil {
			c.setState(StateClosed)
			return
		}

		c.setState(StateConnecting)
		conn, err := c.transport.Connect(c.ctx)
		if err != nil {
			c.sink.connectionError(c.name, err)
			if !c.scheduleRetry() {
				c.failPermanently(fmt.Errorf("mcp: %s: %w", c.name, ErrInitFailed))
				return
			}
			continue
		}

		if !c.initializeAndServe(conn) {
			if !c.scheduleRetry() {
				if c.ctx.Err() != nil {
					c.setState(StateClosed)
				} else {
					c.failPermanently(fmt.Errorf("mcp: %s: %w", c.name, ErrInitFailed))
				}
				return
			}
			continue
		}
		// initializeAndServe only returns true when the Connection was
		// closed out from under it; the loop exits via ctx.Err() above.
	}
}

// scheduleRetry waits out the reconnect backoff and reports whether another
// attempt should be made (false means MaxRetries was exceeded or Close was
// called while waiting).
func (c *Connection) scheduleRetry() bool {
	c.mu.Lock()
	c.attempt++
	attempt := c.attempt
	c.mu.Unlock()

	if c.info.MaxRetries > 0 && attempt > c.info.MaxRetries {
		return false
	}

	c.setState(StateReconnecting)
	delay := reconnectBackoff(attempt-1, c.info.effectiveReconnectBase(), c.info.effectiveReconnectCap())
	select {
	case <-time.After(delay):
		return true
	case <-c.ctx.Done():
		return false
	}
}

// initializeAndServe drives one live Conn through Initializing, Ready (and
// Degraded), until it breaks or is closed. It returns true only when the
// break was a deliberate Close, signalling run to stop looping.
func (c *Connection) initializeAndServe(conn Conn) bool {
	c.setState(StateInitializing)

	result, err := c.doInitialize(conn)
	if err != nil {
		conn.Close()
		c.sink.connectionError(c.name, fmt.Errorf("%w: %v", ErrInitFailed, err))
		return false
	}

	c.mu.Lock()
	c.conn = conn
	c.serverInfo = result.ServerInfo
	c.capabilities = result.Capabilities
	c.attempt = 0
	c.heartbeatFail = 0
	c.mu.Unlock()

	c.writeRaw(conn, &jsonrpc.Notification{Method: notificationInitialized})
	c.sink.messageSent(c.name, notificationInitialized)

	c.setState(StateReady)
	c.replayQueued(conn)

	readDone := make(chan error, 1)
	go func() { readDone <- c.readPump(conn) }()

	heartbeatInterval, heartbeatOn := c.info.effectiveHeartbeat()
	var ticker *time.Ticker
	var tickerC <-chan time.Time
	if heartbeatOn {
		ticker = time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		tickerC = ticker.C
	}

	for {
		select {
		case <-c.ctx.Done():
			conn.Close()
			<-readDone
			c.corr.failAll(ErrDisconnected)
			return true
		case err := <-readDone:
			conn.Close()
			c.onBreak(err)
			return false
		case <-tickerC:
			if !c.heartbeat(conn) {
				conn.Close()
				<-readDone
				c.onBreak(ErrTimeout)
				return false
			}
		}
	}
}

// doInitialize sends the initialize request directly on conn (bypassing the
// queue: initialize is the one call issued before Ready) and returns its
// result.
func (c *Connection) doInitialize(conn Conn) (*InitializeResult, error) {
	params := &InitializeParams{
		ProtocolVersion: protocolVersion,
		ClientInfo:      &Implementation{Name: "mcpcore", Version: moduleVersion},
		Capabilities:    &ClientCapabilities{},
	}
	id, call := c.corr.allocate(methodInitialize, params, false, nil)
	req := &jsonrpc.Request{ID: id, Method: methodInitialize, Params: params}

	ctx, cancel := context.WithTimeout(c.ctx, c.info.effectiveTimeout())
	defer cancel()

	if err := conn.Write(ctx, req); err != nil {
		c.corr.forget(id)
		return nil, err
	}

	for {
		msg, err := conn.Read(ctx)
		if err != nil {
			c.corr.forget(id)
			return nil, err
		}
		if resp, ok := msg.(*jsonrpc.Response); ok {
			if !c.corr.resolve(resp) {
				continue
			}
			select {
			case res := <-call.done:
				if res.err != nil {
					return nil, res.err
				}
				var result InitializeResult
				if err := internaljson.Unmarshal(res.result, &result); err != nil {
					return nil, fmt.Errorf("mcp: decoding initialize result: %w", err)
				}
				return &result, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		// Anything other than our own response before initialize completes
		// is unexpected traffic; ignore it rather than failing the handshake.
	}
}

// readPump drains conn until it errors or reaches EOF, dispatching each
// message to the correlator or to the inbound server-request handlers.
func (c *Connection) readPump(conn Conn) error {
	for {
		msg, err := conn.Read(c.ctx)
		if err != nil {
			return err
		}
		c.dispatch(conn, msg)
	}
}

func (c *Connection) dispatch(conn Conn, msg JSONRPCMessage) {
	switch m := msg.(type) {
	case *jsonrpc.Response:
		c.corr.resolve(m)
	case *jsonrpc.Request:
		c.sink.messageReceived(c.name, m.Method)
		c.handleServerRequest(conn, m)
	case *jsonrpc.Notification:
		c.sink.messageReceived(c.name, m.Method)
		c.handleNotification(m)
	}
}

func (c *Connection) handleNotification(n *jsonrpc.Notification) {
	if n.Method != notificationProgress {
		return
	}
	var params ProgressNotificationParams
	if err := remarshal(n.Params, &params); err != nil {
		return
	}
	c.corr.handleProgressNotification(&params)
}

// handleServerRequest answers the two methods a server may send inbound
// (§1 Scope, §4.5): sampling/createMessage and roots/list. Anything else is
// answered with method-not-found, since this core never acts as a general
// JSON-RPC server.
func (c *Connection) handleServerRequest(conn Conn, req *jsonrpc.Request) {
	ctx, cancel := context.WithTimeout(c.ctx, c.info.effectiveTimeout())
	defer cancel()

	switch req.Method {
	case methodCreateMessage:
		if c.samplingFn == nil {
			c.respondMethodNotFound(conn, req)
			return
		}
		var params CreateMessageParams
		if err := remarshal(req.Params, &params); err != nil {
			c.respondError(conn, req, -32602, "invalid params")
			return
		}
		result, err := c.samplingFn(ctx, &CreateMessageRequest{Connection: c, Params: &params})
		c.respond(conn, req, result, err)
	case methodListRoots:
		if c.rootsFn == nil {
			c.respondMethodNotFound(conn, req)
			return
		}
		var params ListRootsParams
		if err := remarshal(req.Params, &params); err != nil {
			c.respondError(conn, req, -32602, "invalid params")
			return
		}
		result, err := c.rootsFn(ctx, &ListRootsRequest{Connection: c, Params: &params})
		c.respond(conn, req, result, err)
	default:
		c.respondMethodNotFound(conn, req)
	}
}

func (c *Connection) respond(conn Conn, req *jsonrpc.Request, result Result, err error) {
	if err != nil {
		c.respondError(conn, req, -32603, err.Error())
		return
	}
	resp := &jsonrpc.Response{ID: req.ID, Result: result}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.Write(c.ctx, resp)
}

func (c *Connection) respondError(conn Conn, req *jsonrpc.Request, code int64, message string) {
	resp := &jsonrpc.Response{ID: req.ID, Error: jsonrpc.NewError(code, message, nil)}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.Write(c.ctx, resp)
}

func (c *Connection) respondMethodNotFound(conn Conn, req *jsonrpc.Request) {
	c.respondError(conn, req, -32601, fmt.Sprintf("method not found: %s", req.Method))
}

// heartbeat sends a ping and waits up to heartbeatTimeoutMs for a reply. Two
// consecutive failures move the connection to Degraded; a third forces the
// caller to tear down the transport (§4.4, §5).
func (c *Connection) heartbeat(conn Conn) bool {
	ctx, cancel := context.WithTimeout(c.ctx, c.info.effectiveHeartbeatTimeout())
	defer cancel()

	_, err := c.sendAndWait(ctx, conn, methodPing, &PingParams{}, false, nil)

	c.mu.Lock()
	if err != nil {
		c.heartbeatFail++
		fail := c.heartbeatFail
		c.mu.Unlock()
		if fail >= 3 {
			return false
		}
		if fail >= 2 {
			c.setState(StateDegraded)
		}
		return true
	}
	c.heartbeatFail = 0
	c.mu.Unlock()
	if c.Status() == StateDegraded {
		c.setState(StateReady)
	}
	return true
}

// onBreak handles the live Conn going away unexpectedly: non-idempotent
// in-flight calls fail immediately, idempotent ones are requeued for replay
// once a new Conn is Ready.
func (c *Connection) onBreak(err error) {
	c.mu.Lock()
	c.conn = nil
	c.heartbeatFail = 0
	c.mu.Unlock()

	c.sink.connectionError(c.name, err)
	c.corr.failNonIdempotent()
	for _, call := range c.corr.drainIdempotent() {
		call := call
		c.queue.push(&outboundFrame{
			class: classUser,
			send:  func() error { return c.resend(call) },
			onDrop: func(dropErr error) {
				call.done <- callResult{err: dropErr}
			},
		})
	}
}

// resend re-issues a pendingCall's original request on the now-current live
// Conn, reusing its already-allocated id.
func (c *Connection) resend(call *pendingCall) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrDisconnected
	}
	req := &jsonrpc.Request{ID: call.id, Method: call.method, Params: call.params}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.Write(c.ctx, req)
}

// replayQueued flushes every frame queued while disconnected onto the
// freshly Ready conn, control frames first.
func (c *Connection) replayQueued(conn Conn) {
	for _, f := range c.queue.drain() {
		if err := f.send(); err != nil && f.onDrop != nil {
			f.onDrop(err)
		}
	}
}

func (c *Connection) writeRaw(conn Conn, msg JSONRPCMessage) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.Write(c.ctx, msg)
}

// failPermanently fails every pending and queued call with err and moves to
// Closed. Used when MaxRetries is exceeded.
func (c *Connection) failPermanently(err error) {
	c.corr.failAll(err)
	c.queue.failAll(err)
	c.setState(StateClosed)
	c.sink.connectionFailed(c.name, err)
}

// Request issues method with params and blocks until a response, ctx is
// done, or the connection fails it (§4.3, §4.6). idempotent controls
// whether this call survives a disconnect by replay (true) or fails fast
// with ErrDisconnectedDuringCall / ErrDisconnected (false).
func (c *Connection) Request(ctx context.Context, method string, params Params, idempotent bool, onProgress ProgressHandler) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	c.mu.Lock()
	state := c.state
	conn := c.conn
	c.mu.Unlock()

	if state == StateClosed {
		return nil, ErrDisconnected
	}

	if state == StateReady || state == StateDegraded {
		return c.sendAndWait(ctx, conn, method, params, idempotent, onProgress)
	}

	if !idempotent {
		return nil, ErrDisconnected
	}

	id, call := c.corr.allocate(method, params, true, onProgress)
	req := &jsonrpc.Request{ID: id, Method: method, Params: params}
	c.queue.push(&outboundFrame{
		class: classUser,
		send: func() error {
			c.mu.Lock()
			liveConn := c.conn
			c.mu.Unlock()
			if liveConn == nil {
				return ErrDisconnected
			}
			c.writeMu.Lock()
			defer c.writeMu.Unlock()
			return liveConn.Write(c.ctx, req)
		},
		onDrop: func(err error) { call.done <- callResult{err: err} },
	})

	select {
	case res := <-call.done:
		if res.err != nil {
			return nil, res.err
		}
		return res.result, nil
	case <-ctx.Done():
		c.corr.forget(id)
		c.sendCancelled(id, ctx.Err())
		return nil, callCtxErr(ctx.Err())
	}
}

// sendAndWait allocates an id, writes req on conn immediately, and waits for
// its resolution or ctx's deadline (whichever is sooner).
func (c *Connection) sendAndWait(ctx context.Context, conn Conn, method string, params Params, idempotent bool, onProgress ProgressHandler) ([]byte, error) {
	if conn == nil {
		return nil, ErrDisconnected
	}
	id, call := c.corr.allocate(method, params, idempotent, onProgress)
	req := &jsonrpc.Request{ID: id, Method: method, Params: params}

	c.writeMu.Lock()
	err := conn.Write(ctx, req)
	c.writeMu.Unlock()
	if err != nil {
		c.corr.forget(id)
		return nil, err
	}
	c.sink.messageSent(c.name, method)

	select {
	case res := <-call.done:
		if res.err != nil {
			return nil, res.err
		}
		return res.result, nil
	case <-ctx.Done():
		c.corr.forget(id)
		c.sendCancelled(id, ctx.Err())
		return nil, callCtxErr(ctx.Err())
	}
}

// sendCancelled writes a best-effort notifications/cancelled frame for id
// (§4.3, §4.6): the call is already being failed locally regardless of
// whether the peer ever sees this, so a write failure here is swallowed.
func (c *Connection) sendCancelled(id jsonrpc.ID, cause error) {
	c.mu.Lock()
	conn := c.conn
	state := c.state
	c.mu.Unlock()
	if conn == nil || (state != StateReady && state != StateDegraded) {
		return
	}
	n := &jsonrpc.Notification{
		Method: notificationCancelled,
		Params: &CancelledParams{RequestID: id.Value(), Reason: cause.Error()},
	}
	c.writeRaw(conn, n)
}

// callCtxErr maps a call's ctx.Err() to the documented taxonomy: a deadline
// surfaces as ErrTimeout, any other cancellation (caller cancel, parent
// cancel) as ErrCancelled.
func callCtxErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %w", ErrCancelled, err)
}

// Notify sends a fire-and-forget notification. If the connection is not
// Ready, the notification is simply dropped: notifications carry no
// response to fail, and replaying a stale cancellation or log line after
// reconnect would be meaningless.
func (c *Connection) Notify(ctx context.Context, method string, params Params) error {
	c.mu.Lock()
	conn := c.conn
	state := c.state
	c.mu.Unlock()
	if state != StateReady && state != StateDegraded {
		return nil
	}
	n := &jsonrpc.Notification{Method: method, Params: params}
	if err := c.writeRaw(conn, n); err != nil {
		return err
	}
	c.sink.messageSent(c.name, method)
	return nil
}

// Close tears the connection down permanently: the background run loop
// exits, any live Conn is closed, and every pending/queued call fails with
// ErrDisconnected.
func (c *Connection) Close() error {
	c.cancel()
	<-c.closed
	c.corr.failAll(ErrDisconnected)
	c.queue.failAll(ErrDisconnected)
	return nil
}
