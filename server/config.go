package server

import (
	"log/slog"
	"strings"
	"time"
)

// Scopes understood by the store tools.
const (
	ScopeProductsRead = "products:read"
	ScopeOrdersWrite  = "orders:write"
)

// Config holds OAuth server configuration
type Config struct {
	// Issuer is the server's issuer identifier (base URL)
	Issuer string

	// ResourceIdentifier is the protected MCP resource (RFC 9728).
	// Default: Issuer + "/mcp"
	ResourceIdentifier string

	// AuthorizationCodeTTL is how long authorization codes are valid
	AuthorizationCodeTTL int64 // seconds, default: 600 (10 minutes)

	// AccessTokenTTL is how long access tokens are valid
	AccessTokenTTL int64 // seconds, default: 3600 (1 hour)

	// RefreshTokenTTL is how long refresh tokens are valid
	RefreshTokenTTL int64 // seconds, default: 2592000 (30 days)

	// OAuthStateTTL bounds the round trip through the identity provider
	OAuthStateTTL int64 // seconds, default: 600 (10 minutes)

	// ProviderTimeout bounds every identity provider call
	ProviderTimeout time.Duration // default: 10s

	// SupportedScopes lists the scopes clients may register and request.
	// Default: [products:read orders:write]
	SupportedScopes []string

	// DefaultScopes is the scope set of client_credentials grants before
	// intersecting with the request. Default: SupportedScopes
	DefaultScopes []string

	// DefaultSocialProvider is used when an authorization request names
	// none. Empty means the login page lets the user choose.
	DefaultSocialProvider string

	// AllowInsecureHTTP allows a non-localhost http:// issuer.
	// WARNING: tokens and client secrets travel in clear text.
	AllowInsecureHTTP bool

	// TrustProxy enables trusting X-Forwarded-For and X-Real-IP headers
	// WARNING: Only enable if behind a trusted reverse proxy
	TrustProxy bool
}

// applySecureDefaults fills unset values. Explicitly insecure settings are
// kept but logged.
func applySecureDefaults(config *Config, logger *slog.Logger) *Config {
	config.Issuer = strings.TrimRight(config.Issuer, "/")
	if config.ResourceIdentifier == "" && config.Issuer != "" {
		config.ResourceIdentifier = config.Issuer + "/mcp"
	}

	applyTimeDefaults(config)

	if len(config.SupportedScopes) == 0 {
		config.SupportedScopes = []string{ScopeProductsRead, ScopeOrdersWrite}
	}
	if len(config.DefaultScopes) == 0 {
		config.DefaultScopes = append([]string(nil), config.SupportedScopes...)
	}

	logSecurityWarnings(config, logger)
	return config
}

// applyTimeDefaults sets default values for time-based configuration
func applyTimeDefaults(config *Config) {
	if config.AuthorizationCodeTTL == 0 {
		config.AuthorizationCodeTTL = 600
	}
	if config.AccessTokenTTL == 0 {
		config.AccessTokenTTL = 3600
	}
	if config.RefreshTokenTTL == 0 {
		config.RefreshTokenTTL = 2592000
	}
	if config.OAuthStateTTL == 0 {
		config.OAuthStateTTL = 600
	}
	if config.ProviderTimeout == 0 {
		config.ProviderTimeout = 10 * time.Second
	}
}

// logSecurityWarnings logs warnings for insecure configuration settings
func logSecurityWarnings(config *Config, logger *slog.Logger) {
	if config.TrustProxy {
		logger.Warn("Trusting proxy headers for client IPs",
			"risk", "Spoofed X-Forwarded-For values if no proxy strips them",
			"recommendation", "Enable only behind a reverse proxy you control")
	}
	if config.AccessTokenTTL > 86400 {
		logger.Warn("Long-lived access tokens configured",
			"access_token_ttl", config.AccessTokenTTL,
			"recommendation", "Keep access tokens short-lived and use refresh tokens")
	}
}

// AuthorizationEndpoint returns the full URL of the authorization endpoint.
func (c *Config) AuthorizationEndpoint() string {
	return c.Issuer + "/oauth/authorize"
}

// TokenEndpoint returns the full URL of the token endpoint.
func (c *Config) TokenEndpoint() string {
	return c.Issuer + "/oauth/token"
}

// RegistrationEndpoint returns the full URL of the dynamic client
// registration endpoint.
func (c *Config) RegistrationEndpoint() string {
	return c.Issuer + "/oauth/register"
}

// CallbackEndpoint returns the URL the identity provider redirects back to.
func (c *Config) CallbackEndpoint() string {
	return c.Issuer + "/oauth/callback"
}

// ProtectedResourceMetadataEndpoint returns the RFC 9728 metadata URL
// advertised in WWW-Authenticate challenges.
func (c *Config) ProtectedResourceMetadataEndpoint() string {
	return c.Issuer + "/.well-known/oauth-protected-resource"
}
