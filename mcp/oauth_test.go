// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"testing"

	internaltesting "github.com/relaywire/mcpcore/internal/testing"
)

func TestStaticTokenAlwaysReturnsTheSameBearer(t *testing.T) {
	ts := StaticToken("sk-fake-123")
	tok, err := ts.Token()
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if tok.AccessToken != "sk-fake-123" || tok.TokenType != "Bearer" {
		t.Fatalf("Token = %+v", tok)
	}
}

func TestClientCredentialsTokenFetchesFromAuthServer(t *testing.T) {
	auth := internaltesting.NewFakeAuthServer()
	auth.RegisterClient("client-id", "client-secret")
	auth.Start()
	defer auth.Stop()

	ts := ClientCredentialsToken(context.Background(), "client-id", "client-secret", auth.TokenURL())
	tok, err := ts.Token()
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if tok.AccessToken == "" || tok.TokenType != "Bearer" {
		t.Fatalf("Token = %+v", tok)
	}

	// ReuseTokenSource caches: a second call against the same source must
	// not mint a fresh token while the cached one remains valid.
	tok2, err := ts.Token()
	if err != nil {
		t.Fatalf("Token (cached): %v", err)
	}
	if tok2.AccessToken != tok.AccessToken {
		t.Fatalf("token source did not reuse the cached token")
	}
}

func TestClientCredentialsTokenRejectsUnknownClient(t *testing.T) {
	auth := internaltesting.NewFakeAuthServer()
	auth.RegisterClient("client-id", "client-secret")
	auth.Start()
	defer auth.Stop()

	ts := ClientCredentialsToken(context.Background(), "wrong-id", "wrong-secret", auth.TokenURL())
	if _, err := ts.Token(); err == nil {
		t.Fatal("Token succeeded for an unregistered client")
	}
}
