package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/giantswarm/descope-store-mcp/providers"
	"github.com/giantswarm/descope-store-mcp/security"
)

// Validate checks the configuration needed by the HTTP server. The stdio
// server only needs the store API; see ValidateStdio.
func (c *Config) Validate() error {
	var errs []error

	if c.Descope.ProjectID == "" {
		errs = append(errs, fmt.Errorf("descope project ID is required (%s)", EnvDescopeProjectID))
	}
	errs = append(errs, c.validateStore()...)

	issuer, err := url.Parse(c.Server.Issuer)
	if err != nil || issuer.Scheme == "" || issuer.Host == "" {
		errs = append(errs, fmt.Errorf("issuer %q must be an absolute URL", c.Server.Issuer))
	}

	switch c.Server.Transport {
	case TransportStreamableHTTP, TransportSSE:
	default:
		errs = append(errs, fmt.Errorf("unknown transport %q (want %s or %s)", c.Server.Transport, TransportStreamableHTTP, TransportSSE))
	}

	switch c.Storage.Type {
	case StorageMemory:
	case StorageValkey:
		if c.Storage.Valkey.Address == "" {
			errs = append(errs, errors.New("valkey address is required when storage type is valkey"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage type %q", c.Storage.Type))
	}

	if c.OAuth.EncryptionKey != "" {
		if _, err := security.KeyFromBase64(c.OAuth.EncryptionKey); err != nil {
			errs = append(errs, fmt.Errorf("invalid encryption key: %w", err))
		}
	}

	if p := c.OAuth.DefaultSocialProvider; p != "" {
		if _, err := providers.ParseSocialProvider(p); err != nil {
			errs = append(errs, err)
		}
	}

	for name, d := range map[string]int64{
		"authorizationCodeTTL": int64(c.OAuth.AuthorizationCodeTTL),
		"accessTokenTTL":       int64(c.OAuth.AccessTokenTTL),
		"refreshTokenTTL":      int64(c.OAuth.RefreshTokenTTL),
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("oauth.%s must not be negative", name))
		}
	}

	return errors.Join(errs...)
}

// ValidateStdio checks the configuration needed by the stdio server.
func (c *Config) ValidateStdio() error {
	return errors.Join(c.validateStore()...)
}

func (c *Config) validateStore() []error {
	if c.Store.URL == "" {
		return []error{fmt.Errorf("store API URL is required (%s)", EnvStoreAPIURL)}
	}
	u, err := url.Parse(c.Store.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return []error{fmt.Errorf("store API URL %q must be an absolute URL", c.Store.URL)}
	}
	return nil
}

// ParseLogLevel maps a level name to a slog.Level.
func ParseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}
