package testing

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const tokenExpiry = time.Hour

var jwtSigningKey = []byte("fake-secret-key")

type authCodeInfo struct {
	codeChallenge string
	redirectURI   string
}

// FakeAuthServer is a fake OAuth2 authorization server supporting the
// authorization-code+PKCE grant (for the teacher's own client flow) and the
// client-credentials grant (for mcp.ClientCredentialsToken). It listens on
// an OS-assigned loopback port so concurrent test packages never collide.
type FakeAuthServer struct {
	listener  net.Listener
	server    *http.Server
	authCodes map[string]authCodeInfo
	clients   map[string]string // client id -> client secret, for client_credentials
}

// NewFakeAuthServer returns a server not yet listening; call Start. Any
// client id/secret pair registered via RegisterClient is accepted by the
// client_credentials grant.
func NewFakeAuthServer() *FakeAuthServer {
	server := &FakeAuthServer{
		authCodes: make(map[string]authCodeInfo),
		clients:   make(map[string]string),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/oauth-authorization-server", server.handleMetadata)
	mux.HandleFunc("/authorize", server.handleAuthorize)
	mux.HandleFunc("/token", server.handleToken)
	server.server = &http.Server{Handler: mux}
	return server
}

// RegisterClient authorizes clientID/clientSecret for the client_credentials
// grant against this server's /token endpoint.
func (s *FakeAuthServer) RegisterClient(clientID, clientSecret string) {
	s.clients[clientID] = clientSecret
}

// Start binds an OS-assigned loopback port and begins serving. Issuer and
// TokenURL are only valid after Start returns.
func (s *FakeAuthServer) Start() {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		log.Fatalf("fake auth server: listen: %v", err)
	}
	s.listener = l
	go func() {
		if err := s.server.Serve(l); err != http.ErrServerClosed {
			log.Fatalf("Serve(): %v", err)
		}
	}()
}

func (s *FakeAuthServer) Stop() {
	if err := s.server.Close(); err != nil {
		log.Printf("Failed to stop server: %v", err)
	}
}

// Issuer returns this server's base URL, valid only after Start.
func (s *FakeAuthServer) Issuer() string {
	return "http://" + s.listener.Addr().String()
}

// TokenURL returns the client-credentials/authorization-code token
// endpoint, valid only after Start.
func (s *FakeAuthServer) TokenURL() string {
	return s.Issuer() + "/token"
}

func (s *FakeAuthServer) handleMetadata(w http.ResponseWriter, r *http.Request) {
	issuer := s.Issuer()
	metadata := map[string]any{
		"issuer":                                issuer,
		"authorization_endpoint":                issuer + "/authorize",
		"token_endpoint":                        issuer + "/token",
		"jwks_uri":                              issuer + "/.well-known/jwks.json",
		"scopes_supported":                      []string{"openid", "profile", "email"},
		"response_types_supported":              []string{"code"},
		"grant_types_supported":                 []string{"authorization_code", "client_credentials"},
		"token_endpoint_auth_methods_supported": []string{"none", "client_secret_post"},
		"code_challenge_methods_supported":      []string{"S256"},
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(metadata)
}

func (s *FakeAuthServer) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	responseType := query.Get("response_type")
	redirectURI := query.Get("redirect_uri")
	codeChallenge := query.Get("code_challenge")
	codeChallengeMethod := query.Get("code_challenge_method")

	if responseType != "code" {
		http.Error(w, "unsupported_response_type", http.StatusBadRequest)
		return
	}
	if redirectURI == "" {
		http.Error(w, "invalid_request", http.StatusBadRequest)
		return
	}
	if codeChallenge == "" || codeChallengeMethod != "S256" {
		http.Error(w, "invalid_request", http.StatusBadRequest)
		return
	}

	authCode := "fake-auth-code-" + fmt.Sprintf("%d", time.Now().UnixNano())
	s.authCodes[authCode] = authCodeInfo{
		codeChallenge: codeChallenge,
		redirectURI:   redirectURI,
	}

	redirectURL := fmt.Sprintf("%s?code=%s&state=%s", redirectURI, authCode, query.Get("state"))
	http.Redirect(w, r, redirectURL, http.StatusFound)
}

func (s *FakeAuthServer) handleToken(w http.ResponseWriter, r *http.Request) {
	r.ParseForm()
	switch r.Form.Get("grant_type") {
	case "authorization_code":
		s.handleAuthCodeGrant(w, r)
	case "client_credentials":
		s.handleClientCredentialsGrant(w, r)
	default:
		http.Error(w, "unsupported_grant_type", http.StatusBadRequest)
	}
}

func (s *FakeAuthServer) handleAuthCodeGrant(w http.ResponseWriter, r *http.Request) {
	code := r.Form.Get("code")
	redirectURI := r.Form.Get("redirect_uri")
	codeVerifier := r.Form.Get("code_verifier")

	info, ok := s.authCodes[code]
	if !ok {
		http.Error(w, "invalid_grant", http.StatusBadRequest)
		return
	}
	delete(s.authCodes, code)

	if info.redirectURI != redirectURI {
		http.Error(w, "invalid_grant", http.StatusBadRequest)
		return
	}

	hasher := sha256.New()
	hasher.Write([]byte(codeVerifier))
	calculatedChallenge := base64.RawURLEncoding.EncodeToString(hasher.Sum(nil))
	if calculatedChallenge != info.codeChallenge {
		http.Error(w, "invalid_grant", http.StatusBadRequest)
		return
	}

	s.issueToken(w, "fake-user-id")
}

func (s *FakeAuthServer) handleClientCredentialsGrant(w http.ResponseWriter, r *http.Request) {
	clientID := r.Form.Get("client_id")
	clientSecret := r.Form.Get("client_secret")
	want, ok := s.clients[clientID]
	if !ok || want != clientSecret {
		http.Error(w, "invalid_client", http.StatusUnauthorized)
		return
	}
	s.issueToken(w, clientID)
}

func (s *FakeAuthServer) issueToken(w http.ResponseWriter, subject string) {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss": s.Issuer(),
		"sub": subject,
		"aud": "fake-client-id",
		"exp": now.Add(tokenExpiry).Unix(),
		"iat": now.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	accessToken, err := token.SignedString(jwtSigningKey)
	if err != nil {
		http.Error(w, "server_error", http.StatusInternalServerError)
		return
	}

	tokenResponse := map[string]any{
		"access_token": accessToken,
		"token_type":   "Bearer",
		"expires_in":   int(tokenExpiry.Seconds()),
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(tokenResponse)
}
