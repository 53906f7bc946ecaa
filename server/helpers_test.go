package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/url"
	"testing"
	"time"

	"github.com/giantswarm/descope-store-mcp/internal/testutil"
	"github.com/giantswarm/descope-store-mcp/providers/mock"
	"github.com/giantswarm/descope-store-mcp/storage"
	"github.com/giantswarm/descope-store-mcp/storage/memory"
)

const (
	testIssuer      = "https://store-mcp.example.com"
	testRedirectURI = "http://localhost:4000/cb"
)

type testEnv struct {
	srv      *Server
	store    *memory.Store
	provider *mock.MockProvider
	clock    *testutil.MockTime
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T, opts ...func(*Config)) *testEnv {
	t.Helper()

	clock := testutil.NewMockTime(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	store := memory.New()
	store.SetClock(clock.Now)
	provider := mock.NewMockProvider()

	cfg := &Config{
		Issuer:                testIssuer,
		DefaultSocialProvider: "google",
	}
	for _, opt := range opts {
		opt(cfg)
	}

	srv, err := New(provider, store, store, store, cfg, discardLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	srv.SetClock(clock.Now)

	return &testEnv{srv: srv, store: store, provider: provider, clock: clock}
}

func (e *testEnv) register(t *testing.T, req ClientRegistration) (*storage.Client, string) {
	t.Helper()
	if len(req.RedirectURIs) == 0 {
		req.RedirectURIs = []string{testRedirectURI}
	}
	client, secret, err := e.srv.RegisterClient(context.Background(), req)
	if err != nil {
		t.Fatalf("RegisterClient() error = %v", err)
	}
	return client, secret
}

// authorize runs the authorization endpoint and the identity provider
// callback, returning the code and state delivered to the client.
func (e *testEnv) authorize(t *testing.T, clientID, challenge, clientState string) (code, state string) {
	t.Helper()
	ctx := context.Background()

	result, err := e.srv.Authorize(ctx, AuthorizationRequest{
		ClientID:            clientID,
		RedirectURI:         testRedirectURI,
		ResponseType:        "code",
		State:               clientState,
		CodeChallenge:       challenge,
		CodeChallengeMethod: PKCEMethodS256,
	})
	if err != nil {
		t.Fatalf("Authorize() error = %v", err)
	}

	providerState := queryParam(t, result.RedirectURL, "state")
	redirect, err := e.srv.Callback(ctx, providerState, "idp-code", "")
	if err != nil {
		t.Fatalf("Callback() error = %v", err)
	}

	return queryParam(t, redirect, "code"), queryParam(t, redirect, "state")
}

func queryParam(t *testing.T, rawURL, key string) string {
	t.Helper()
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("invalid URL %q: %v", rawURL, err)
	}
	return u.Query().Get(key)
}

// requireOAuthError asserts that err is an *OAuthError with the given code.
func requireOAuthError(t *testing.T, err error, code string) *OAuthError {
	t.Helper()
	var oauthErr *OAuthError
	if !errors.As(err, &oauthErr) {
		t.Fatalf("error = %v (%T), want *OAuthError %s", err, err, code)
	}
	if oauthErr.Code != code {
		t.Fatalf("error code = %q (%v), want %q", oauthErr.Code, oauthErr, code)
	}
	return oauthErr
}

var errTest = errors.New("database connection refused at 10.0.0.5")
