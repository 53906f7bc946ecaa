package oauth

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/giantswarm/descope-store-mcp/internal/testutil"
	"github.com/giantswarm/descope-store-mcp/providers/mock"
	"github.com/giantswarm/descope-store-mcp/server"
	"github.com/giantswarm/descope-store-mcp/storage/memory"
)

const (
	testIssuer      = "https://store-mcp.example.com"
	testRedirectURI = "http://localhost:4000/cb"
)

type testEnv struct {
	handler  *Handler
	srv      *server.Server
	provider *mock.MockProvider
	clock    *testutil.MockTime
	mux      *http.ServeMux
}

func newTestEnv(t *testing.T, opts ...func(*server.Config)) *testEnv {
	t.Helper()

	clock := testutil.NewMockTime(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	store := memory.New()
	store.SetClock(clock.Now)
	provider := mock.NewMockProvider()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := &server.Config{Issuer: testIssuer, DefaultSocialProvider: "google"}
	for _, opt := range opts {
		opt(cfg)
	}
	srv, err := server.New(provider, store, store, store, cfg, logger)
	if err != nil {
		t.Fatalf("server.New() error = %v", err)
	}
	srv.SetClock(clock.Now)

	h := NewHandler(srv, logger)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	return &testEnv{handler: h, srv: srv, provider: provider, clock: clock, mux: mux}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) registerClient(t *testing.T, body string) map[string]any {
	t.Helper()
	rec := e.do(httptest.NewRequest(http.MethodPost, "/oauth/register", strings.NewReader(body)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d, body = %s", rec.Code, rec.Body.String())
	}
	return decodeJSON(t, rec)
}

// authorizationCode drives authorize and callback over HTTP and returns the
// code delivered to the client.
func (e *testEnv) authorizationCode(t *testing.T, clientID, challenge string) string {
	t.Helper()

	q := url.Values{
		"client_id":             {clientID},
		"redirect_uri":          {testRedirectURI},
		"response_type":         {"code"},
		"state":                 {"client-state"},
		"code_challenge":        {challenge},
		"code_challenge_method": {"S256"},
	}
	rec := e.do(httptest.NewRequest(http.MethodGet, "/oauth/authorize?"+q.Encode(), nil))
	if rec.Code != http.StatusFound {
		t.Fatalf("authorize status = %d, body = %s", rec.Code, rec.Body.String())
	}
	providerState := locationParam(t, rec, "state")

	rec = e.do(httptest.NewRequest(http.MethodGet, "/oauth/callback?code=idp-code&state="+url.QueryEscape(providerState), nil))
	if rec.Code != http.StatusFound {
		t.Fatalf("callback status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if got := locationParam(t, rec, "state"); got != "client-state" {
		t.Fatalf("callback state = %q, want client-state", got)
	}
	return locationParam(t, rec, "code")
}

func tokenRequest(form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/oauth/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func locationParam(t *testing.T, rec *httptest.ResponseRecorder, key string) string {
	t.Helper()
	loc, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("invalid Location header: %v", err)
	}
	return loc.Query().Get(key)
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not JSON: %v: %s", err, rec.Body.String())
	}
	return body
}

func assertOAuthErrorResponse(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("status = %d, want %d, body = %s", rec.Code, status, rec.Body.String())
	}
	body := decodeJSON(t, rec)
	if body["error"] != code {
		t.Fatalf("error = %v, want %s", body["error"], code)
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("error responses must carry security headers")
	}
}
