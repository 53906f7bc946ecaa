package config

import "time"

const (
	DefaultListenAddr      = ":8080"
	DefaultIssuer          = "http://localhost:8080"
	DefaultDescopeBaseURL  = "https://api.descope.com"
	DefaultShutdownTimeout = 10 * time.Second
	DefaultUpstreamTimeout = 10 * time.Second
)

// Default returns the configuration used when nothing is configured.
func Default() Config {
	return Config{
		Server: ServerConfig{
			ListenAddr:      DefaultListenAddr,
			Issuer:          DefaultIssuer,
			Transport:       TransportStreamableHTTP,
			ShutdownTimeout: DefaultShutdownTimeout,
		},
		OAuth: OAuthConfig{
			AuthorizationCodeTTL: 10 * time.Minute,
			AccessTokenTTL:       time.Hour,
			RefreshTokenTTL:      30 * 24 * time.Hour,
		},
		Descope: DescopeConfig{
			BaseURL: DefaultDescopeBaseURL,
			Timeout: DefaultUpstreamTimeout,
		},
		Store: StoreConfig{
			Timeout: DefaultUpstreamTimeout,
		},
		Storage: StorageConfig{
			Type: StorageMemory,
			Valkey: ValkeyConfig{
				Address:   "localhost:6379",
				KeyPrefix: "store-mcp:",
			},
		},
		Instrumentation: InstrumentationConfig{
			Enabled:         true,
			MetricsExporter: "prometheus",
			TracesExporter:  "none",
		},
		Log: LogConfig{
			Level:  "info",
			Format: LogFormatText,
		},
	}
}
