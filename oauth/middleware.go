package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/giantswarm/descope-store-mcp/internal/util"
	"github.com/giantswarm/descope-store-mcp/providers"
	"github.com/giantswarm/descope-store-mcp/security"
	"github.com/giantswarm/descope-store-mcp/server"
)

const tokenTypeBearer = "Bearer"

// DefaultPublicPaths are served without a bearer token. Entries ending in
// "/" match every path below them; "/" itself only matches the root.
func DefaultPublicPaths() []string {
	return []string{
		"/",
		"/health",
		"/healthz",
		"/metrics",
		"/login",
		"/.well-known/oauth-authorization-server",
		"/.well-known/oauth-protected-resource",
		"/oauth/",
	}
}

// SetPublicPaths replaces the bearer gate allow-list.
func (h *Handler) SetPublicPaths(paths []string) {
	h.publicPaths = append([]string(nil), paths...)
}

func (h *Handler) isPublicPath(path string) bool {
	for _, p := range h.publicPaths {
		switch {
		case p == path:
			return true
		case p != "/" && strings.HasSuffix(p, "/") && strings.HasPrefix(path, p):
			return true
		}
	}
	return false
}

// TokenInfo describes the bearer token behind an authenticated request.
type TokenInfo struct {
	ClientID  string
	Scopes    []string
	GrantType string
	ExpiresAt time.Time
}

// HasScope reports whether the token was granted scope.
func (t *TokenInfo) HasScope(scope string) bool {
	return slices.Contains(t.Scopes, scope)
}

type contextKey string

const (
	tokenInfoKey contextKey = "token_info"
	userInfoKey  contextKey = "user_info"
)

// TokenInfoFromContext retrieves the validated token from the request context
func TokenInfoFromContext(ctx context.Context) (*TokenInfo, bool) {
	info, ok := ctx.Value(tokenInfoKey).(*TokenInfo)
	return info, ok && info != nil
}

// UserInfoFromContext retrieves user info from the request context. It is
// absent for client_credentials tokens.
func UserInfoFromContext(ctx context.Context) (*providers.UserInfo, bool) {
	userInfo, ok := ctx.Value(userInfoKey).(*providers.UserInfo)
	return userInfo, ok && userInfo != nil
}

// ContextWithTokenInfo returns a context carrying info.
// Only ValidateToken and tests should call it.
func ContextWithTokenInfo(ctx context.Context, info *TokenInfo) context.Context {
	return context.WithValue(ctx, tokenInfoKey, info)
}

// ContextWithUserInfo returns a context carrying userInfo.
// Only ValidateToken and tests should call it.
func ContextWithUserInfo(ctx context.Context, userInfo *providers.UserInfo) context.Context {
	return context.WithValue(ctx, userInfoKey, userInfo)
}

// ValidateToken is middleware that admits requests to non-public paths only
// with a valid bearer token. Tokens bound to an identity provider session
// are re-checked with the provider on every request.
func (h *Handler) ValidateToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		accessToken, ok := extractBearerToken(r)
		if !ok {
			h.reject(w, r, "missing_token", "Missing or malformed Authorization header", nil)
			return
		}

		access, user, err := h.server.ValidateAccessToken(ctx, accessToken)
		if err != nil {
			oauthErr := server.AsOAuthError(err)
			if oauthErr.Status >= http.StatusInternalServerError {
				h.logger.Error("Token validation failed", "error", err)
				h.writeError(w, oauthErr)
				return
			}
			h.reject(w, r, rejectionReason(err), oauthErr.Description, err)
			return
		}

		ctx = ContextWithTokenInfo(ctx, &TokenInfo{
			ClientID:  access.ClientID,
			Scopes:    util.ParseScope(access.Scope),
			GrantType: access.GrantType,
			ExpiresAt: access.ExpiresAt,
		})
		if user != nil {
			ctx = ContextWithUserInfo(ctx, user)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// extractBearerToken extracts the Bearer token from the Authorization header.
func extractBearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, tokenTypeBearer) {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, providers.ErrSessionInvalid):
		return "session_invalid"
	default:
		var oauthErr *server.OAuthError
		if errors.As(err, &oauthErr) && strings.Contains(oauthErr.Description, "expired") {
			return "expired"
		}
		return "invalid"
	}
}

// reject writes a 401 invalid_token challenge pointing at the protected
// resource metadata, with endpoint hints in the body.
func (h *Handler) reject(w http.ResponseWriter, r *http.Request, reason, description string, cause error) {
	ctx := r.Context()
	if h.server.Instrumentation != nil {
		h.server.Instrumentation.Metrics().RecordBearerRejected(ctx, reason)
	}
	h.rejectionLog.Do(func() {
		h.logger.Warn("Bearer token rejected",
			"reason", reason,
			"path", r.URL.Path,
			"ip", security.GetClientIP(r, h.server.Config.TrustProxy),
			"request_id", security.GetRequestID(ctx),
			"error", cause)
	})

	cfg := h.server.Config
	security.SetSecurityHeaders(w, cfg.Issuer)
	w.Header().Set("WWW-Authenticate", fmt.Sprintf(
		`%s resource_metadata="%s", error="%s", error_description="%s"`,
		tokenTypeBearer, cfg.ProtectedResourceMetadataEndpoint(), server.ErrorCodeInvalidToken, description))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":                  server.ErrorCodeInvalidToken,
		"error_description":      description,
		"authorization_endpoint": cfg.AuthorizationEndpoint(),
		"token_endpoint":         cfg.TokenEndpoint(),
	})
}
