// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"

	internaljson "github.com/relaywire/mcpcore/internal/json"
)

// decodeToolSchema parses the raw JSON Schema a server advertised for a
// tool's input or output into a typed *jsonschema.Schema for display and
// catalog storage in Discovery. It is intentionally NOT resolved or used
// for validation: this core forwards tool arguments to the server as-is
// and leaves argument validation to the server, so there is no need to pay
// for $ref resolution or build a Resolved validator (see Non-goals).
func decodeToolSchema(raw any) (*jsonschema.Schema, error) {
	if raw == nil {
		return nil, nil
	}
	data, err := internaljson.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("mcp: marshaling tool schema: %w", err)
	}
	var schema jsonschema.Schema
	if err := internaljson.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("mcp: decoding tool schema: %w", err)
	}
	return &schema, nil
}
