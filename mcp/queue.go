// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"math/rand"
	"sync"
	"time"
)

// priorityClass distinguishes control frames (ping, initialize,
// notifications/initialized, cancellation), which always jump user frames,
// from ordinary user requests and notifications (§4.6 OutboundQueue).
type priorityClass int

const (
	classUser priorityClass = iota
	classControl
)

// outboundFrame is one entry in the outbound queue: an already-encoded
// wire frame plus enough bookkeeping to fail it with QueueOverflow if it's
// dropped before being sent.
type outboundFrame struct {
	class   priorityClass
	enqueue time.Time
	send    func() error // hands the frame to the live Transport connection
	onDrop  func(error)  // called instead of send if this frame is evicted
}

// defaultQueueMaxSize is queueMaxSize's default: unbounded for control
// frames, 100 for user frames.
const defaultQueueMaxSize = 100

// outboundQueue is the bounded FIFO held while a Connection is not Ready
// (§4.6). Control frames are unbounded and always drain before user
// frames; user frames are bounded by maxUser, and overflow drops the
// oldest user frame.
type outboundQueue struct {
	maxUser int

	mu      sync.Mutex
	control []*outboundFrame
	user    []*outboundFrame
}

func newOutboundQueue(maxUser int) *outboundQueue {
	if maxUser <= 0 {
		maxUser = defaultQueueMaxSize
	}
	return &outboundQueue{maxUser: maxUser}
}

// push enqueues f. If f is a user frame and the queue is already at
// capacity, the oldest user frame is evicted and its onDrop is invoked
// with ErrQueueOverflow.
func (q *outboundQueue) push(f *outboundFrame) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if f.class == classControl {
		q.control = append(q.control, f)
		return
	}

	if len(q.user) >= q.maxUser {
		dropped := q.user[0]
		q.user = q.user[1:]
		if dropped.onDrop != nil {
			go dropped.onDrop(ErrQueueOverflow)
		}
	}
	q.user = append(q.user, f)
}

// drain removes and returns every queued frame, control frames first, each
// in original enqueue order, ready to be replayed on a Ready transition.
func (q *outboundQueue) drain() []*outboundFrame {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]*outboundFrame, 0, len(q.control)+len(q.user))
	out = append(out, q.control...)
	out = append(out, q.user...)
	q.control = nil
	q.user = nil
	return out
}

// failAll drops every queued frame, calling onDrop with err for each.
func (q *outboundQueue) failAll(err error) {
	for _, f := range q.drain() {
		if f.onDrop != nil {
			f.onDrop(err)
		}
	}
}

// reconnectBackoff computes the delay before reconnect attempt n (0-based),
// per §4.6: delay = min(baseMs * 2^n, capMs) with ±25% uniform jitter.
func reconnectBackoff(attempt int, base, cap time.Duration) time.Duration {
	d := base
	for i := 0; i < attempt; i++ {
		if d >= cap {
			d = cap
			break
		}
		d *= 2
		if d > cap {
			d = cap
		}
	}
	jitterRange := float64(d) * 0.5
	jitter := (rand.Float64() - 0.5) * jitterRange
	result := time.Duration(float64(d) + jitter)
	if result < 0 {
		result = 0
	}
	return result
}
