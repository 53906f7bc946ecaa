package config

import "time"

// Transports served by the serve command.
const (
	TransportStreamableHTTP = "streamable-http"
	TransportSSE            = "sse"
)

// Storage backends.
const (
	StorageMemory = "memory"
	StorageValkey = "valkey"
)

// Log formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Config is the complete server configuration.
type Config struct {
	Server          ServerConfig          `yaml:"server"`
	OAuth           OAuthConfig           `yaml:"oauth"`
	Descope         DescopeConfig         `yaml:"descope"`
	Store           StoreConfig           `yaml:"store"`
	Storage         StorageConfig         `yaml:"storage"`
	Instrumentation InstrumentationConfig `yaml:"instrumentation"`
	Log             LogConfig             `yaml:"log"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	ListenAddr string `yaml:"listenAddr"`

	// Issuer is the public base URL of this server.
	Issuer string `yaml:"issuer"`

	// Transport is streamable-http (served at /mcp) or sse (/sse + /message).
	Transport string `yaml:"transport"`

	TrustProxy        bool `yaml:"trustProxy"`
	AllowInsecureHTTP bool `yaml:"allowInsecureHTTP"`

	// PublicPaths overrides the bearer gate allow-list.
	PublicPaths []string `yaml:"publicPaths,omitempty"`

	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// OAuthConfig configures the authorization server.
type OAuthConfig struct {
	AuthorizationCodeTTL time.Duration `yaml:"authorizationCodeTTL"`
	AccessTokenTTL       time.Duration `yaml:"accessTokenTTL"`
	RefreshTokenTTL      time.Duration `yaml:"refreshTokenTTL"`

	// DefaultSocialProvider skips the login page when set.
	DefaultSocialProvider string `yaml:"defaultSocialProvider"`

	// EncryptionKey is a base64 AES-256 key sealing identities at rest in
	// valkey.
	EncryptionKey string `yaml:"encryptionKey,omitempty"`
}

// DescopeConfig configures the identity provider.
type DescopeConfig struct {
	ProjectID    string        `yaml:"projectID"`
	ClientSecret string        `yaml:"clientSecret,omitempty"`
	BaseURL      string        `yaml:"baseURL"`
	Timeout      time.Duration `yaml:"timeout"`
}

// StoreConfig configures the external store API.
type StoreConfig struct {
	URL     string        `yaml:"url"`
	APIKey  string        `yaml:"apiKey,omitempty"`
	Timeout time.Duration `yaml:"timeout"`
}

// StorageConfig selects where OAuth state lives.
type StorageConfig struct {
	Type   string       `yaml:"type"`
	Valkey ValkeyConfig `yaml:"valkey"`
}

// ValkeyConfig configures the valkey backend.
type ValkeyConfig struct {
	Address   string `yaml:"address"`
	Password  string `yaml:"password,omitempty"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"keyPrefix"`
	TLS       bool   `yaml:"tls"`
}

// InstrumentationConfig configures OpenTelemetry.
type InstrumentationConfig struct {
	Enabled         bool   `yaml:"enabled"`
	MetricsExporter string `yaml:"metricsExporter"`
	TracesExporter  string `yaml:"tracesExporter"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}
