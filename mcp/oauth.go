// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// StaticToken returns a TokenSource that always hands back token as a
// bearer credential, for servers authenticated with a long-lived API key
// rather than a full OAuth2 flow.
func StaticToken(token string) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
}

// ClientCredentialsToken builds a caching TokenSource that exchanges a
// client id/secret for a bearer token against tokenURL and transparently
// refreshes it as it nears expiry, for servers authenticated via the
// OAuth2 client-credentials grant (§6 External Interfaces: ServerInfo's
// TokenSource field accepts anything satisfying oauth2.TokenSource).
func ClientCredentialsToken(ctx context.Context, clientID, clientSecret, tokenURL string, scopes ...string) oauth2.TokenSource {
	cfg := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
		Scopes:       scopes,
	}
	return oauth2.ReuseTokenSource(nil, cfg.TokenSource(ctx))
}
