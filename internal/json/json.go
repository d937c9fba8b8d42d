// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package json provides internal JSON utilities.
//
// It fronts github.com/segmentio/encoding/json rather than the standard
// library: the wire codec (package jsonrpc) calls Marshal/Unmarshal on every
// frame of every connection, and segmentio/encoding is a drop-in encoder
// with materially lower allocation overhead on that hot path.
package json

import (
	"bytes"
	"fmt"

	segjson "github.com/segmentio/encoding/json"
)

// RawMessage is re-exported so callers needn't import both this package and
// encoding/json to hold an unparsed JSON value.
type RawMessage = segjson.RawMessage

func Unmarshal(data []byte, v any) error {
	rest, err := segjson.Parse(data, v, segjson.DontMatchCaseInsensitiveStructFields)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(rest)) != 0 {
		return fmt.Errorf("json: invalid character after top-level value")
	}
	return nil
}

func Marshal(v any) ([]byte, error) {
	return segjson.Marshal(v)
}
