// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

// handleProgressNotification is called by a Connection's read pump for
// every inbound notifications/progress frame. It has no return value: an
// unmatched progress token (a stray or late notification) is silently
// dropped rather than surfaced as an error, since progress is advisory.
func (c *correlator) handleProgressNotification(params *ProgressNotificationParams) {
	c.dispatchProgress(params.ProgressToken, params.Progress, params.Total, params.Message)
}
