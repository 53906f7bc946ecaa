package config

import (
	"encoding/base64"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func envFrom(m map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

// clearEnv blanks the variables the Load tests assert on; ApplyEnv ignores
// empty values.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{EnvPort, EnvValkeyAddr, EnvDescopeBaseURL, EnvIssuer} {
		t.Setenv(key, "")
	}
}

func validConfig() Config {
	cfg := Default()
	cfg.Descope.ProjectID = "P2abc"
	cfg.Store.URL = "https://store.example.com"
	return cfg
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	def := Default()
	assert.Equal(t, def.Server.ListenAddr, cfg.Server.ListenAddr)
	assert.Equal(t, TransportStreamableHTTP, cfg.Server.Transport)
	assert.Equal(t, time.Hour, cfg.OAuth.AccessTokenTTL)
	assert.Equal(t, StorageMemory, cfg.Storage.Type)
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  listenAddr: ":9090"
  issuer: https://store-mcp.example.com
  transport: sse
oauth:
  accessTokenTTL: 30m
  defaultSocialProvider: github
descope:
  projectID: P2file
store:
  url: https://store.example.com
  timeout: 5s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.ListenAddr)
	assert.Equal(t, TransportSSE, cfg.Server.Transport)
	assert.Equal(t, 30*time.Minute, cfg.OAuth.AccessTokenTTL)
	assert.Equal(t, 10*time.Minute, cfg.OAuth.AuthorizationCodeTTL, "unset values keep their default")
	assert.Equal(t, "github", cfg.OAuth.DefaultSocialProvider)
	assert.Equal(t, 5*time.Second, cfg.Store.Timeout)
	assert.Equal(t, DefaultDescopeBaseURL, cfg.Descope.BaseURL)
}

func TestLoad_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unterminated"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(envFrom(map[string]string{
		EnvDescopeProjectID:    "P2env",
		EnvDescopeClientSecret: "descope-secret",
		EnvStoreAPIURL:         "https://store.example.com",
		EnvStoreAPIKey:         "store-key",
		EnvValkeyAddr:          "valkey:6379",
		EnvIssuer:              "https://mcp.example.com",
		EnvPort:                "3000",
		EnvDescopeBaseURL:      "",
	}))
	require.NoError(t, err)

	assert.Equal(t, "P2env", cfg.Descope.ProjectID)
	assert.Equal(t, "descope-secret", cfg.Descope.ClientSecret)
	assert.Equal(t, DefaultDescopeBaseURL, cfg.Descope.BaseURL, "empty variables are ignored")
	assert.Equal(t, "store-key", cfg.Store.APIKey)
	assert.Equal(t, StorageValkey, cfg.Storage.Type)
	assert.Equal(t, "valkey:6379", cfg.Storage.Valkey.Address)
	assert.Equal(t, "https://mcp.example.com", cfg.Server.Issuer)
	assert.Equal(t, ":3000", cfg.Server.ListenAddr)

	err = cfg.ApplyEnv(envFrom(map[string]string{EnvPort: "http"}))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	key := base64.StdEncoding.EncodeToString(make([]byte, 32))

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "valid with valkey and key", mutate: func(c *Config) {
			c.Storage.Type = StorageValkey
			c.OAuth.EncryptionKey = key
		}},
		{name: "missing project", mutate: func(c *Config) { c.Descope.ProjectID = "" }, wantErr: "descope project ID is required"},
		{name: "missing store", mutate: func(c *Config) { c.Store.URL = "" }, wantErr: "store API URL is required"},
		{name: "relative store", mutate: func(c *Config) { c.Store.URL = "/api" }, wantErr: "must be an absolute URL"},
		{name: "bad issuer", mutate: func(c *Config) { c.Server.Issuer = "store-mcp" }, wantErr: "issuer"},
		{name: "bad transport", mutate: func(c *Config) { c.Server.Transport = "websocket" }, wantErr: "unknown transport"},
		{name: "bad storage", mutate: func(c *Config) { c.Storage.Type = "postgres" }, wantErr: "unknown storage type"},
		{name: "valkey without address", mutate: func(c *Config) {
			c.Storage.Type = StorageValkey
			c.Storage.Valkey.Address = ""
		}, wantErr: "valkey address is required"},
		{name: "short key", mutate: func(c *Config) { c.OAuth.EncryptionKey = "c2hvcnQ=" }, wantErr: "invalid encryption key"},
		{name: "unknown social provider", mutate: func(c *Config) { c.OAuth.DefaultSocialProvider = "myspace" }, wantErr: "unknown social provider"},
		{name: "negative ttl", mutate: func(c *Config) { c.OAuth.AccessTokenTTL = -time.Second }, wantErr: "accessTokenTTL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	cfg := Default()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), EnvDescopeProjectID)
	assert.Contains(t, err.Error(), EnvStoreAPIURL)
}

func TestValidateStdio(t *testing.T) {
	cfg := Default()
	cfg.Store.URL = "https://store.example.com"
	assert.NoError(t, cfg.ValidateStdio(), "stdio does not need the identity provider")

	cfg.Store.URL = ""
	assert.Error(t, cfg.ValidateStdio())
}

func TestMarshalRedactsSecrets(t *testing.T) {
	cfg := validConfig()
	cfg.Descope.ClientSecret = "descope-secret"
	cfg.Store.APIKey = "store-key"
	cfg.Storage.Valkey.Password = "valkey-pass"

	data, err := cfg.Marshal()
	require.NoError(t, err)
	out := string(data)
	for _, secret := range []string{"descope-secret", "store-key", "valkey-pass"} {
		assert.NotContains(t, out, secret)
	}
	assert.Equal(t, 3, strings.Count(out, "REDACTED"))
	assert.Equal(t, "descope-secret", cfg.Descope.ClientSecret, "the receiver is not modified")

	var back Config
	require.NoError(t, yaml.Unmarshal(data, &back))
	assert.Equal(t, cfg.Store.URL, back.Store.URL)
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"":        slog.LevelInfo,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLogLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLogLevel("verbose")
	assert.Error(t, err)
}
