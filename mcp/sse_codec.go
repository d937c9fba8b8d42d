// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"iter"
	"net/http"
)

// event is a single parsed Server-Sent Event. Only the fields the MCP
// streamable/SSE transports use are kept: every frame this core sends is a
// "message" event carrying one JSON-RPC message as data, identified by an
// id used for Last-Event-ID resumption.
type event struct {
	name string
	id   string
	data []byte
}

// writeEvent writes evt to w in the SSE wire format and flushes it if w
// supports flushing, so the peer observes it immediately rather than
// buffered.
func writeEvent(w io.Writer, evt event) (int, error) {
	var buf bytes.Buffer
	if evt.name != "" {
		fmt.Fprintf(&buf, "event: %s\n", evt.name)
	}
	if evt.id != "" {
		fmt.Fprintf(&buf, "id: %s\n", evt.id)
	}
	for _, line := range bytes.Split(evt.data, []byte("\n")) {
		buf.WriteString("data: ")
		buf.Write(line)
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')

	n, err := w.Write(buf.Bytes())
	if err == nil {
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}
	return n, err
}

// scanEvents reads a Server-Sent Events stream from r, yielding one event
// per "message" block (a run of lines terminated by a blank line). Fields
// other than "event", "id", and "data" (e.g. "retry") are accepted and
// ignored, per the SSE spec. The sequence ends after yielding a final
// (zero, io.EOF) pair when r is exhausted, or (zero, err) on a read error.
func scanEvents(r io.Reader) iter.Seq2[event, error] {
	return func(yield func(event, error) bool) {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

		var cur event
		var data bytes.Buffer
		haveData := false

		flush := func() (event, bool) {
			if cur.name == "" && !haveData {
				return event{}, false
			}
			if cur.name == "" {
				cur.name = "message"
			}
			if haveData {
				b := data.Bytes()
				cur.data = append([]byte(nil), bytes.TrimSuffix(b, []byte("\n"))...)
			}
			out := cur
			cur = event{}
			data.Reset()
			haveData = false
			return out, true
		}

		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				if evt, ok := flush(); ok {
					if !yield(evt, nil) {
						return
					}
				}
				continue
			}
			field, value, _ := bytes.Cut([]byte(line), []byte(":"))
			value = bytes.TrimPrefix(value, []byte(" "))
			switch string(field) {
			case "event":
				cur.name = string(value)
			case "id":
				cur.id = string(value)
			case "data":
				data.Write(value)
				data.WriteByte('\n')
				haveData = true
			default:
				// retry, comments (lines starting with ':'), and unknown fields
				// are accepted and ignored.
			}
		}

		if err := scanner.Err(); err != nil {
			yield(event{}, err)
			return
		}
		if evt, ok := flush(); ok {
			if !yield(evt, nil) {
				return
			}
		}
		yield(event{}, io.EOF)
	}
}
