package oauth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/giantswarm/descope-store-mcp/internal/testutil"
	"github.com/giantswarm/descope-store-mcp/providers"
	"github.com/giantswarm/descope-store-mcp/providers/mock"
	"github.com/giantswarm/descope-store-mcp/server"
)

// protected returns a gated handler that records what reached it.
func protected(env *testEnv) (http.Handler, *[]context.Context) {
	var seen []context.Context
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	return env.handler.ValidateToken(next), &seen
}

func userToken(t *testing.T, env *testEnv) string {
	t.Helper()
	client := env.registerClient(t, `{"redirect_uris":["http://localhost:4000/cb"],"token_endpoint_auth_method":"none"}`)
	clientID := client["client_id"].(string)
	challenge, verifier := testutil.GeneratePKCEPair()
	code := env.authorizationCode(t, clientID, challenge)

	rec := env.do(tokenRequest(url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {testRedirectURI},
		"client_id":     {clientID},
		"code_verifier": {verifier},
	}))
	if rec.Code != http.StatusOK {
		t.Fatalf("token status = %d, body = %s", rec.Code, rec.Body.String())
	}
	return decodeJSON(t, rec)["access_token"].(string)
}

func bearerRequest(path, token string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func TestValidateToken_PublicPaths(t *testing.T) {
	env := newTestEnv(t)
	gate, seen := protected(env)

	for _, path := range []string{"/", "/health", "/healthz", "/metrics", "/login", "/oauth/token", "/oauth/callback", "/.well-known/oauth-protected-resource"} {
		t.Run(path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			gate.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
			if rec.Code != http.StatusNoContent {
				t.Errorf("status = %d, want pass-through", rec.Code)
			}
		})
	}
	if len(*seen) != 8 {
		t.Errorf("%d requests reached the handler", len(*seen))
	}

	rec := httptest.NewRecorder()
	gate.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/mcp", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("/mcp status = %d, want 401", rec.Code)
	}
}

func TestValidateToken_Rejections(t *testing.T) {
	env := newTestEnv(t)
	gate, seen := protected(env)

	tests := []struct {
		name   string
		header string
	}{
		{name: "missing header", header: ""},
		{name: "wrong scheme", header: "Basic dXNlcjpwYXNz"},
		{name: "empty bearer", header: "Bearer "},
		{name: "unknown token", header: "Bearer does-not-exist"},
		{name: "former demo token", header: "Bearer demo-token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			gate.ServeHTTP(rec, req)

			assertOAuthErrorResponse(t, rec, http.StatusUnauthorized, server.ErrorCodeInvalidToken)
			challenge := rec.Header().Get("WWW-Authenticate")
			if !strings.HasPrefix(challenge, "Bearer ") ||
				!strings.Contains(challenge, `resource_metadata="`+testIssuer+`/.well-known/oauth-protected-resource"`) {
				t.Errorf("WWW-Authenticate = %q", challenge)
			}
			body := decodeJSON(t, rec)
			if body["authorization_endpoint"] != testIssuer+"/oauth/authorize" || body["token_endpoint"] != testIssuer+"/oauth/token" {
				t.Errorf("body hints = %v", body)
			}
		})
	}
	if len(*seen) != 0 {
		t.Error("rejected requests must not reach the handler")
	}
}

func TestValidateToken_UserToken(t *testing.T) {
	env := newTestEnv(t)
	gate, seen := protected(env)
	token := userToken(t, env)

	rec := httptest.NewRecorder()
	gate.ServeHTTP(rec, bearerRequest("/mcp", token))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	ctx := (*seen)[0]
	info, ok := TokenInfoFromContext(ctx)
	if !ok || !info.HasScope(server.ScopeOrdersWrite) || info.GrantType != server.GrantTypeAuthorizationCode {
		t.Errorf("token info = %+v", info)
	}
	user, ok := UserInfoFromContext(ctx)
	if !ok || user.Email != mock.DefaultUser.Email {
		t.Errorf("user info = %+v", user)
	}
}

func TestValidateToken_ClientCredentialsToken(t *testing.T) {
	env := newTestEnv(t)
	gate, seen := protected(env)

	client := env.registerClient(t, `{"redirect_uris":["http://localhost:4000/cb"],"grant_types":["client_credentials"]}`)
	rec := env.do(tokenRequest(url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {client["client_id"].(string)},
		"client_secret": {client["client_secret"].(string)},
		"scope":         {"products:read"},
	}))
	token := decodeJSON(t, rec)["access_token"].(string)

	rec = httptest.NewRecorder()
	gate.ServeHTTP(rec, bearerRequest("/mcp", token))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rec.Code)
	}
	ctx := (*seen)[0]
	if _, ok := UserInfoFromContext(ctx); ok {
		t.Error("machine tokens carry no user")
	}
	info, _ := TokenInfoFromContext(ctx)
	if info.HasScope(server.ScopeOrdersWrite) {
		t.Error("scope should be limited to products:read")
	}
}

func TestValidateToken_Expiry(t *testing.T) {
	env := newTestEnv(t)
	gate, _ := protected(env)
	token := userToken(t, env)

	env.clock.Advance(3599 * time.Second)
	rec := httptest.NewRecorder()
	gate.ServeHTTP(rec, bearerRequest("/mcp", token))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status at T+3599s = %d", rec.Code)
	}

	env.clock.Advance(2 * time.Second)
	rec = httptest.NewRecorder()
	gate.ServeHTTP(rec, bearerRequest("/mcp", token))
	assertOAuthErrorResponse(t, rec, http.StatusUnauthorized, server.ErrorCodeInvalidToken)
}

func TestValidateToken_RevokedSession(t *testing.T) {
	env := newTestEnv(t)
	gate, _ := protected(env)
	token := userToken(t, env)

	env.provider.ValidateSessionFunc = func(ctx context.Context, session string) (*providers.UserInfo, error) {
		return nil, providers.ErrSessionInvalid
	}

	rec := httptest.NewRecorder()
	gate.ServeHTTP(rec, bearerRequest("/mcp", token))
	assertOAuthErrorResponse(t, rec, http.StatusUnauthorized, server.ErrorCodeInvalidToken)
}

func TestValidateToken_ProviderOutage(t *testing.T) {
	env := newTestEnv(t)
	gate, _ := protected(env)
	token := userToken(t, env)

	env.provider.ValidateSessionFunc = func(ctx context.Context, session string) (*providers.UserInfo, error) {
		return nil, errors.New("dial tcp: connection refused")
	}

	rec := httptest.NewRecorder()
	gate.ServeHTTP(rec, bearerRequest("/mcp", token))
	assertOAuthErrorResponse(t, rec, http.StatusInternalServerError, server.ErrorCodeServerError)
	if got := rec.Header().Get("WWW-Authenticate"); got != "" {
		t.Errorf("WWW-Authenticate = %q, an outage must not look like a dead token", got)
	}
}

func TestSetPublicPaths(t *testing.T) {
	env := newTestEnv(t)
	env.handler.SetPublicPaths([]string{"/status", "/docs/"})

	tests := []struct {
		path   string
		public bool
	}{
		{"/status", true},
		{"/docs/", true},
		{"/docs/api", true},
		{"/health", false},
		{"/", false},
		{"/statusx", false},
	}
	for _, tt := range tests {
		if got := env.handler.isPublicPath(tt.path); got != tt.public {
			t.Errorf("isPublicPath(%q) = %v, want %v", tt.path, got, tt.public)
		}
	}
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	if _, ok := TokenInfoFromContext(ctx); ok {
		t.Error("empty context has no token info")
	}
	if _, ok := UserInfoFromContext(ContextWithUserInfo(ctx, nil)); ok {
		t.Error("a nil user is not a user")
	}

	user := &providers.UserInfo{ID: "u1", Email: "u1@example.com"}
	got, ok := UserInfoFromContext(ContextWithUserInfo(ctx, user))
	if !ok || got != user {
		t.Errorf("UserInfoFromContext() = %v, %v", got, ok)
	}
}
