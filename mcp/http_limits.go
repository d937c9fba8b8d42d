// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import "io"

// DefaultMaxBodyBytes is the default maximum size (in bytes) this core will
// read from an HTTP or SSE response body before giving up on a misbehaving
// or malicious server.
const DefaultMaxBodyBytes int64 = 1_000_000

// effectiveMaxBodyBytes converts a user-configured maxBodyBytes value to an
// effective limit.
//
// Semantics:
//   - maxBodyBytes == 0: use DefaultMaxBodyBytes
//   - maxBodyBytes  < 0: no limit
//   - maxBodyBytes  > 0: use maxBodyBytes
func effectiveMaxBodyBytes(maxBodyBytes int64) int64 {
	switch {
	case maxBodyBytes == 0:
		return DefaultMaxBodyBytes
	case maxBodyBytes < 0:
		return 0
	default:
		return maxBodyBytes
	}
}

// limitBody wraps r so reading stops with io.EOF after limit bytes (a
// longer body is silently truncated), unless limit is 0 or negative
// (meaning unlimited).
func limitBody(r io.Reader, limit int64) io.Reader {
	if limit <= 0 {
		return r
	}
	return io.LimitReader(r, limit)
}
