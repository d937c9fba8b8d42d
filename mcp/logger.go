// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

// Logger is the optional diagnostic sink a host can attach through
// ServerInfo.Logger or directly to a StdioTransport. It is deliberately
// minimal: this core reports everything load-bearing through Manager's
// typed Event stream, and Logger exists only for process-level diagnostics
// a host wants in its own log (stderr lines from stdio children and
// kill-escalation warnings).
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// nopLogger discards everything; used when a component is not given a
// Logger so call sites never need a nil check.
type nopLogger struct{}

func (nopLogger) Debugf(string, ...any) {}
func (nopLogger) Infof(string, ...any)  {}
func (nopLogger) Warnf(string, ...any)  {}
func (nopLogger) Errorf(string, ...any) {}
