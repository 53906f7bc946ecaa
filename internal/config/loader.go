package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Environment variables read by ApplyEnv.
const (
	EnvDescopeProjectID    = "DESCOPE_PROJECT_ID"
	EnvDescopeClientSecret = "DESCOPE_CLIENT_SECRET"
	EnvDescopeBaseURL      = "DESCOPE_BASE_URL"
	EnvStoreAPIURL         = "STORE_API_URL"
	EnvStoreAPIKey         = "STORE_API_KEY"
	EnvValkeyAddr          = "VALKEY_ADDR"
	EnvValkeyPassword      = "VALKEY_PASSWORD"
	EnvEncryptionKey       = "OAUTH_ENCRYPTION_KEY"
	EnvIssuer              = "ISSUER"
	EnvPort                = "PORT"
)

// Load reads the YAML file at path over the defaults and applies the
// environment. An empty path or a missing file yields defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("error loading config from %s: %w", path, err)
			}
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyEnv overrides values from the environment. Setting VALKEY_ADDR
// selects the valkey backend.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	set(EnvDescopeProjectID, &c.Descope.ProjectID)
	set(EnvDescopeClientSecret, &c.Descope.ClientSecret)
	set(EnvDescopeBaseURL, &c.Descope.BaseURL)
	set(EnvStoreAPIURL, &c.Store.URL)
	set(EnvStoreAPIKey, &c.Store.APIKey)
	set(EnvValkeyPassword, &c.Storage.Valkey.Password)
	set(EnvEncryptionKey, &c.OAuth.EncryptionKey)
	set(EnvIssuer, &c.Server.Issuer)

	if v, ok := lookup(EnvValkeyAddr); ok && v != "" {
		c.Storage.Valkey.Address = v
		c.Storage.Type = StorageValkey
	}

	if v, ok := lookup(EnvPort); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			return fmt.Errorf("invalid %s %q", EnvPort, v)
		}
		c.Server.ListenAddr = ":" + v
	}
	return nil
}

// Marshal renders cfg as YAML with secrets redacted.
func (c Config) Marshal() ([]byte, error) {
	redact := func(s *string) {
		if *s != "" {
			*s = "REDACTED"
		}
	}
	redact(&c.Descope.ClientSecret)
	redact(&c.Store.APIKey)
	redact(&c.Storage.Valkey.Password)
	redact(&c.OAuth.EncryptionKey)
	return yaml.Marshal(c)
}
