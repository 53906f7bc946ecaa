package oauth

import (
	"encoding/json"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/time/rate"

	"github.com/giantswarm/descope-store-mcp/instrumentation"
	"github.com/giantswarm/descope-store-mcp/security"
	"github.com/giantswarm/descope-store-mcp/server"
	"github.com/giantswarm/descope-store-mcp/storage"
)

const (
	// maxRequestBodySize bounds registration and token request bodies.
	maxRequestBodySize = 64 << 10

	// rejectionLogInterval throttles repeated bearer rejection warnings.
	rejectionLogInterval = 10 * time.Second
)

// Handler serves the OAuth HTTP endpoints and the bearer gate.
type Handler struct {
	server *server.Server
	logger *slog.Logger
	tracer trace.Tracer

	publicPaths []string

	// rejectionLog throttles bearer rejection warnings so a client retrying
	// with a dead token cannot flood the log.
	rejectionLog *rate.Sometimes
}

// NewHandler creates a new HTTP handler
func NewHandler(srv *server.Server, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}

	h := &Handler{
		server:       srv,
		logger:       logger,
		tracer:       noop.NewTracerProvider().Tracer("oauth"),
		publicPaths:  DefaultPublicPaths(),
		rejectionLog: &rate.Sometimes{First: 3, Interval: rejectionLogInterval},
	}

	if srv.Instrumentation != nil {
		h.tracer = srv.Instrumentation.Tracer("http")
	}

	return h
}

// RegisterRoutes mounts every OAuth endpoint and the health check on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/.well-known/oauth-authorization-server", h.ServeAuthorizationServerMetadata)
	mux.HandleFunc("/.well-known/oauth-protected-resource", h.ServeProtectedResourceMetadata)
	mux.HandleFunc("/oauth/register", h.ServeClientRegistration)
	mux.HandleFunc("/oauth/authorize", h.ServeAuthorization)
	mux.HandleFunc("/oauth/callback", h.ServeCallback)
	mux.HandleFunc("/oauth/token", h.ServeToken)
	mux.HandleFunc("/login", h.ServeLogin)
	mux.HandleFunc("/health", h.ServeHealth)
	mux.HandleFunc("/healthz", h.ServeHealth)
}

// ServeAuthorizationServerMetadata serves RFC 8414 metadata.
func (h *Handler) ServeAuthorizationServerMetadata(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	cfg := h.server.Config
	h.writeJSON(w, http.StatusOK, map[string]any{
		"issuer":                                cfg.Issuer,
		"authorization_endpoint":                cfg.AuthorizationEndpoint(),
		"token_endpoint":                        cfg.TokenEndpoint(),
		"registration_endpoint":                 cfg.RegistrationEndpoint(),
		"scopes_supported":                      cfg.SupportedScopes,
		"response_types_supported":              []string{server.ResponseTypeCode},
		"grant_types_supported":                 []string{server.GrantTypeAuthorizationCode, server.GrantTypeClientCredentials, server.GrantTypeRefreshToken},
		"code_challenge_methods_supported":      []string{server.PKCEMethodS256},
		"token_endpoint_auth_methods_supported": []string{server.TokenEndpointAuthMethodBasic, server.TokenEndpointAuthMethodPost, server.TokenEndpointAuthMethodNone},
	})
}

// ServeProtectedResourceMetadata serves RFC 9728 Protected Resource Metadata
// for the MCP endpoint.
func (h *Handler) ServeProtectedResourceMetadata(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	cfg := h.server.Config
	h.writeJSON(w, http.StatusOK, map[string]any{
		"resource":                 cfg.ResourceIdentifier,
		"authorization_servers":    []string{cfg.Issuer},
		"scopes_supported":         cfg.SupportedScopes,
		"bearer_methods_supported": []string{"header"},
	})
}

// ServeHealth reports liveness. It does not contact the identity provider.
func (h *Handler) ServeHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type clientRegistrationRequest struct {
	ClientName              string   `json:"client_name"`
	RedirectURIs            []string `json:"redirect_uris"`
	GrantTypes              []string `json:"grant_types"`
	ResponseTypes           []string `json:"response_types"`
	Scope                   string   `json:"scope"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method"`
}

// ServeClientRegistration handles dynamic client registration (RFC 7591).
func (h *Handler) ServeClientRegistration(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	ctx, span := h.tracer.Start(r.Context(), "oauth.http.register")
	defer span.End()

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req clientRegistrationRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.recordHTTPMetrics(r, "register", http.StatusBadRequest, startTime)
		h.writeError(w, server.ErrInvalidRequest("request body must be a JSON client metadata document"))
		return
	}

	client, secret, err := h.server.RegisterClient(ctx, server.ClientRegistration{
		ClientName:              req.ClientName,
		RedirectURIs:            req.RedirectURIs,
		GrantTypes:              req.GrantTypes,
		ResponseTypes:           req.ResponseTypes,
		Scope:                   req.Scope,
		TokenEndpointAuthMethod: req.TokenEndpointAuthMethod,
	})
	if err != nil {
		oauthErr := server.AsOAuthError(err)
		instrumentation.RecordError(span, err)
		h.recordHTTPMetrics(r, "register", oauthErr.Status, startTime)
		h.writeError(w, oauthErr)
		return
	}

	instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrClientID, client.ClientID))
	instrumentation.SetSpanSuccess(span)
	h.recordHTTPMetrics(r, "register", http.StatusCreated, startTime)
	h.writeRegistrationResponse(w, client, secret)
}

func (h *Handler) writeRegistrationResponse(w http.ResponseWriter, client *storage.Client, clientSecret string) {
	response := map[string]any{
		"client_id":                  client.ClientID,
		"client_id_issued_at":        client.CreatedAt.Unix(),
		"client_name":                client.ClientName,
		"redirect_uris":              client.RedirectURIs,
		"grant_types":                client.GrantTypes,
		"response_types":             client.ResponseTypes,
		"scope":                      client.Scope,
		"token_endpoint_auth_method": client.TokenEndpointAuthMethod,
	}
	if clientSecret != "" {
		response["client_secret"] = clientSecret
		// RFC 7591: 0 means the secret does not expire.
		response["client_secret_expires_at"] = 0
	}

	h.writeJSON(w, http.StatusCreated, response)
}

// ServeAuthorization handles OAuth authorization requests
func (h *Handler) ServeAuthorization(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	ctx, span := h.tracer.Start(r.Context(), "oauth.http.authorization")
	defer span.End()

	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	result, err := h.server.Authorize(ctx, server.AuthorizationRequest{
		ClientID:            q.Get("client_id"),
		RedirectURI:         q.Get("redirect_uri"),
		ResponseType:        q.Get("response_type"),
		Scope:               q.Get("scope"),
		State:               q.Get("state"),
		CodeChallenge:       q.Get("code_challenge"),
		CodeChallengeMethod: q.Get("code_challenge_method"),
		SocialProvider:      q.Get("provider"),
	})
	if err != nil {
		instrumentation.RecordError(span, err)
		h.respondFlowError(w, r, "authorization", err, startTime)
		return
	}

	if result.NeedsProviderChoice {
		h.recordHTTPMetrics(r, "authorization", http.StatusOK, startTime)
		h.renderLoginPage(w, r.URL.Query())
		return
	}

	instrumentation.SetSpanSuccess(span)
	h.recordHTTPMetrics(r, "authorization", http.StatusFound, startTime)
	http.Redirect(w, r, result.RedirectURL, http.StatusFound)
}

// ServeCallback handles the identity provider callback
func (h *Handler) ServeCallback(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	ctx, span := h.tracer.Start(r.Context(), "oauth.http.callback")
	defer span.End()

	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	redirectURL, err := h.server.Callback(ctx, q.Get("state"), q.Get("code"), q.Get("error"))
	if err != nil {
		instrumentation.RecordError(span, err)
		h.respondFlowError(w, r, "callback", err, startTime)
		return
	}

	instrumentation.SetSpanSuccess(span)
	h.recordHTTPMetrics(r, "callback", http.StatusFound, startTime)
	http.Redirect(w, r, redirectURL, http.StatusFound)
}

// respondFlowError delivers a browser-facing error. Once the client's
// redirect URI is verified the error goes back to the client; before that
// the user agent gets a JSON body.
func (h *Handler) respondFlowError(w http.ResponseWriter, r *http.Request, endpoint string, err error, startTime time.Time) {
	oauthErr := server.AsOAuthError(err)
	if oauthErr.Status >= http.StatusInternalServerError {
		h.logger.Error("OAuth flow failed", "endpoint", endpoint, "error", err)
	}

	if target, ok := oauthErr.RedirectURL(); ok {
		h.recordHTTPMetrics(r, endpoint, http.StatusFound, startTime)
		http.Redirect(w, r, target, http.StatusFound)
		return
	}

	h.recordHTTPMetrics(r, endpoint, oauthErr.Status, startTime)
	h.writeError(w, oauthErr)
}

// tokenRequest mirrors the token endpoint parameters for JSON bodies.
type tokenRequest struct {
	GrantType    string `json:"grant_type"`
	Code         string `json:"code"`
	RedirectURI  string `json:"redirect_uri"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	CodeVerifier string `json:"code_verifier"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
}

// ServeToken handles the token endpoint. Bodies may be form- or
// JSON-encoded; client credentials may also arrive via HTTP Basic.
func (h *Handler) ServeToken(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	ctx, span := h.tracer.Start(r.Context(), "oauth.http.token")
	defer span.End()

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	req, err := h.parseTokenRequest(w, r)
	if err != nil {
		h.recordHTTPMetrics(r, "token", http.StatusBadRequest, startTime)
		h.writeError(w, server.AsOAuthError(err))
		return
	}
	instrumentation.SetSpanAttributes(span,
		attribute.String(instrumentation.AttrGrantType, req.GrantType),
		attribute.String(instrumentation.AttrClientID, req.ClientID))

	resp, err := h.server.Token(ctx, req)
	if err != nil {
		oauthErr := server.AsOAuthError(err)
		instrumentation.RecordError(span, err)
		if oauthErr.Status >= http.StatusInternalServerError {
			h.logger.Error("Token request failed", "grant_type", req.GrantType, "error", err)
		} else {
			h.logger.Debug("Token request rejected",
				"grant_type", req.GrantType,
				"client_id", req.ClientID,
				"error", oauthErr.Code)
		}
		h.recordHTTPMetrics(r, "token", oauthErr.Status, startTime)
		h.writeError(w, oauthErr)
		return
	}

	instrumentation.SetSpanSuccess(span)
	h.recordHTTPMetrics(r, "token", http.StatusOK, startTime)
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) parseTokenRequest(w http.ResponseWriter, r *http.Request) (server.TokenRequest, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var body tokenRequest
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return server.TokenRequest{}, server.ErrInvalidRequest("failed to parse request")
		}
	} else {
		if err := r.ParseForm(); err != nil {
			return server.TokenRequest{}, server.ErrInvalidRequest("failed to parse request")
		}
		body = tokenRequest{
			GrantType:    r.PostForm.Get("grant_type"),
			Code:         r.PostForm.Get("code"),
			RedirectURI:  r.PostForm.Get("redirect_uri"),
			ClientID:     r.PostForm.Get("client_id"),
			ClientSecret: r.PostForm.Get("client_secret"),
			CodeVerifier: r.PostForm.Get("code_verifier"),
			RefreshToken: r.PostForm.Get("refresh_token"),
			Scope:        r.PostForm.Get("scope"),
		}
	}

	if id, secret, ok := basicAuth(r); ok {
		if body.ClientID != "" && body.ClientID != id {
			return server.TokenRequest{}, server.ErrInvalidRequest("client_id does not match the authenticated client")
		}
		if body.ClientSecret != "" {
			return server.TokenRequest{}, server.ErrInvalidRequest("client credentials must be sent only once")
		}
		body.ClientID, body.ClientSecret = id, secret
	}

	return server.TokenRequest(body), nil
}

// basicAuth returns HTTP Basic client credentials, which RFC 6749 2.3.1
// requires to be form-encoded before base64.
func basicAuth(r *http.Request) (id, secret string, ok bool) {
	rawID, rawSecret, ok := r.BasicAuth()
	if !ok {
		return "", "", false
	}
	id, err := url.QueryUnescape(rawID)
	if err != nil {
		return "", "", false
	}
	secret, err = url.QueryUnescape(rawSecret)
	if err != nil {
		return "", "", false
	}
	return id, secret, true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	security.SetSecurityHeaders(w, h.server.Config.Issuer)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes {error, error_description}. Descriptions of server
// errors are generic; the cause is only logged.
func (h *Handler) writeError(w http.ResponseWriter, oauthErr *server.OAuthError) {
	h.writeJSON(w, oauthErr.Status, map[string]string{
		"error":             oauthErr.Code,
		"error_description": oauthErr.Description,
	})
}

func (h *Handler) recordHTTPMetrics(r *http.Request, endpoint string, status int, startTime time.Time) {
	if h.server.Instrumentation == nil {
		return
	}
	duration := float64(time.Since(startTime).Microseconds()) / 1000
	h.server.Instrumentation.Metrics().RecordHTTPRequest(r.Context(), r.Method, endpoint, status, duration)
}
