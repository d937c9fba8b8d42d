// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"fmt"

	internaljson "github.com/relaywire/mcpcore/internal/json"
)

// CallOptions customizes a single Protocol Op invocation. The zero value
// requests no progress reporting. Whether a call is replayed after a
// reconnect is fixed per operation, not set here.
type CallOptions struct {
	// OnProgress, if set, is invoked for every notifications/progress frame
	// that carries this call's progress token.
	OnProgress ProgressHandler
}

// doCall issues method with params and decodes the raw result into out;
// capability gating (§4.5) is done by each operation before it calls
// doCall. idempotent
// controls replay-on-reconnect semantics (§4.6): list/read/get operations
// are idempotent; tools/call and sampling/createMessage are not.
func doCall(ctx context.Context, c *Connection, method string, params Params, idempotent bool, opts *CallOptions, out Result) error {
	var onProgress ProgressHandler
	if opts != nil {
		onProgress = opts.OnProgress
	}
	data, err := c.Request(ctx, method, params, idempotent, onProgress)
	if err != nil {
		return err
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := internaljson.Unmarshal(data, out); err != nil {
		return fmt.Errorf("mcp: decoding %s result: %w", method, err)
	}
	return nil
}

func requireTools(c *Connection) error {
	caps := c.Capabilities()
	if caps == nil || caps.Tools == nil {
		return fmt.Errorf("%w: tools", ErrCapabilityUnsupported)
	}
	return nil
}

func requireResources(c *Connection) error {
	caps := c.Capabilities()
	if caps == nil || caps.Resources == nil {
		return fmt.Errorf("%w: resources", ErrCapabilityUnsupported)
	}
	return nil
}

func requirePrompts(c *Connection) error {
	caps := c.Capabilities()
	if caps == nil || caps.Prompts == nil {
		return fmt.Errorf("%w: prompts", ErrCapabilityUnsupported)
	}
	return nil
}

// ListTools returns the tool catalog the server advertises, a single page
// at a time; pass the previous result's NextCursor to page forward.
func ListTools(ctx context.Context, c *Connection, cursor string, opts *CallOptions) (*ListToolsResult, error) {
	if err := requireTools(c); err != nil {
		return nil, err
	}
	var out ListToolsResult
	if err := doCall(ctx, c, methodListTools, &ListToolsParams{Cursor: cursor}, true, opts, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CallTool invokes a tool by name. It is never replayed after a disconnect:
// a tool call may have side effects, so a dropped in-flight call fails with
// ErrDisconnectedDuringCall rather than silently retrying (§4.6).
func CallTool(ctx context.Context, c *Connection, name string, arguments any, opts *CallOptions) (*CallToolResult, error) {
	if err := requireTools(c); err != nil {
		return nil, err
	}
	var out CallToolResult
	params := &CallToolParams{Name: name, Arguments: arguments}
	if err := doCall(ctx, c, methodCallTool, params, false, opts, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListResources returns the resource catalog the server advertises.
func ListResources(ctx context.Context, c *Connection, cursor string, opts *CallOptions) (*ListResourcesResult, error) {
	if err := requireResources(c); err != nil {
		return nil, err
	}
	var out ListResourcesResult
	if err := doCall(ctx, c, methodListResources, &ListResourcesParams{Cursor: cursor}, true, opts, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListResourceTemplates returns the RFC 6570 URI templates the server
// advertises for parameterized resource access.
func ListResourceTemplates(ctx context.Context, c *Connection, cursor string, opts *CallOptions) (*ListResourceTemplatesResult, error) {
	if err := requireResources(c); err != nil {
		return nil, err
	}
	var out ListResourceTemplatesResult
	if err := doCall(ctx, c, methodListResourceTemplates, &ListResourceTemplatesParams{Cursor: cursor}, true, opts, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ReadResource fetches the contents of one resource by URI.
func ReadResource(ctx context.Context, c *Connection, uri string, opts *CallOptions) (*ReadResourceResult, error) {
	if err := requireResources(c); err != nil {
		return nil, err
	}
	var out ReadResourceResult
	if err := doCall(ctx, c, methodReadResource, &ReadResourceParams{URI: uri}, true, opts, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListPrompts returns the prompt catalog the server advertises.
func ListPrompts(ctx context.Context, c *Connection, cursor string, opts *CallOptions) (*ListPromptsResult, error) {
	if err := requirePrompts(c); err != nil {
		return nil, err
	}
	var out ListPromptsResult
	if err := doCall(ctx, c, methodListPrompts, &ListPromptsParams{Cursor: cursor}, true, opts, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetPrompt resolves a named prompt template with the given arguments.
func GetPrompt(ctx context.Context, c *Connection, name string, arguments map[string]string, opts *CallOptions) (*GetPromptResult, error) {
	if err := requirePrompts(c); err != nil {
		return nil, err
	}
	var out GetPromptResult
	params := &GetPromptParams{Name: name, Arguments: arguments}
	if err := doCall(ctx, c, methodGetPrompt, params, true, opts, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListRoots is issued by a host wanting a server's view of its own root
// list echoed back; in this client-role core it is exposed for
// completeness, though roots/list normally flows server-to-client (§4.5)
// and is answered by a RootsHandler, not called outbound. Disabled by
// ServerInfo.StrictRootsDirection (or MCPGODEBUG=roots_list_strict=1) for
// deployments that enforce the strict reading.
func ListRoots(ctx context.Context, c *Connection, opts *CallOptions) (*ListRootsResult, error) {
	if c.info.effectiveStrictRootsDirection() {
		return nil, fmt.Errorf("mcp: outbound roots/list disabled (strict roots direction)")
	}
	var out ListRootsResult
	if err := doCall(ctx, c, methodListRoots, &ListRootsParams{}, true, opts, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Ping issues a liveness check and blocks until the server replies or ctx
// is done. Connection's own heartbeat sends the same ping request through
// its internal path, not through this function; exposing it lets a host
// probe liveness on demand too.
func Ping(ctx context.Context, c *Connection, opts *CallOptions) error {
	return doCall(ctx, c, methodPing, &PingParams{}, true, opts, nil)
}
