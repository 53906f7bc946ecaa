package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/oauth2"

	"github.com/giantswarm/descope-store-mcp/instrumentation"
	"github.com/giantswarm/descope-store-mcp/providers"
	"github.com/giantswarm/descope-store-mcp/security"
	"github.com/giantswarm/descope-store-mcp/storage"
)

// tokenIDLogLength is how much of a token or code may appear in logs.
const tokenIDLogLength = 8

// Server implements the OAuth 2.1 server logic (provider-agnostic).
// It coordinates the OAuth flow using a Provider and storage backends.
type Server struct {
	provider        providers.Provider
	tokenStore      storage.TokenStore
	clientStore     storage.ClientStore
	flowStore       storage.FlowStore
	Logger          *slog.Logger
	Config          *Config
	Instrumentation *instrumentation.Instrumentation
	tracer          trace.Tracer
	now             security.Clock
}

// New creates a new OAuth server.
//
// The provider and all three stores are required. A nil config is replaced by
// the zero Config, after which unset fields take their secure defaults: a
// ten minute authorization code lifetime, one hour access tokens and thirty
// day refresh tokens. A nil logger falls back to slog.Default.
//
// The memory and Valkey backends each implement storage.Store, so callers
// usually pass the same value for every store:
//
//	store := memory.New()
//	srv, err := server.New(provider, store, store, store, cfg, logger)
func New(
	provider providers.Provider,
	tokenStore storage.TokenStore,
	clientStore storage.ClientStore,
	flowStore storage.FlowStore,
	config *Config,
	logger *slog.Logger,
) (*Server, error) {
	if provider == nil {
		return nil, fmt.Errorf("provider is required")
	}
	if tokenStore == nil {
		return nil, fmt.Errorf("token store is required")
	}
	if clientStore == nil {
		return nil, fmt.Errorf("client store is required")
	}
	if flowStore == nil {
		return nil, fmt.Errorf("flow store is required")
	}
	if config == nil {
		config = &Config{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	config = applySecureDefaults(config, logger)

	if config.DefaultSocialProvider != "" {
		if _, err := providers.ParseSocialProvider(config.DefaultSocialProvider); err != nil {
			return nil, fmt.Errorf("invalid default social provider: %w", err)
		}
	}

	srv := &Server{
		provider:    provider,
		tokenStore:  tokenStore,
		clientStore: clientStore,
		flowStore:   flowStore,
		Config:      config,
		Logger:      logger,
		tracer:      noop.NewTracerProvider().Tracer(""),
		now:         security.SystemClock,
	}

	if err := srv.validateHTTPSEnforcement(); err != nil {
		return nil, err
	}

	return srv, nil
}

// SetInstrumentation enables tracing and metrics.
func (s *Server) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.Instrumentation = inst
	if inst != nil {
		s.tracer = inst.Tracer("server")
	}
}

// SetClock replaces the clock used for expiry timestamps.
func (s *Server) SetClock(clock security.Clock) {
	s.now = clock
}

// Provider returns the identity provider.
func (s *Server) Provider() providers.Provider {
	return s.provider
}

// recordMetrics runs fn when instrumentation is enabled.
func (s *Server) recordMetrics(fn func(m *instrumentation.Metrics)) {
	if s.Instrumentation != nil {
		fn(s.Instrumentation.Metrics())
	}
}

// callProvider bounds a provider call with ProviderTimeout and records its
// duration.
func (s *Server) callProvider(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.Config.ProviderTimeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)
	durationMs := float64(time.Since(start).Microseconds()) / 1000
	s.recordMetrics(func(m *instrumentation.Metrics) {
		m.RecordProviderAPICall(ctx, s.provider.Name(), operation, durationMs, err)
	})
	return err
}

// generateRandomToken returns 32 random bytes, base64url-encoded. It is used
// for codes, tokens, states and secrets.
func generateRandomToken() string {
	return oauth2.GenerateVerifier()
}
