package cmd

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/giantswarm/descope-store-mcp/catalog"
	"github.com/giantswarm/descope-store-mcp/instrumentation"
	"github.com/giantswarm/descope-store-mcp/internal/config"
	"github.com/giantswarm/descope-store-mcp/oauth"
	"github.com/giantswarm/descope-store-mcp/providers/descope"
	"github.com/giantswarm/descope-store-mcp/security"
	"github.com/giantswarm/descope-store-mcp/server"
	"github.com/giantswarm/descope-store-mcp/storage"
	"github.com/giantswarm/descope-store-mcp/storage/memory"
	"github.com/giantswarm/descope-store-mcp/storage/valkey"
	"github.com/giantswarm/descope-store-mcp/tools"
)

const (
	serverName = "descope-store-mcp"

	providerHealthTimeout = 5 * time.Second
	readHeaderTimeout     = 10 * time.Second
	idleTimeout           = 120 * time.Second
	sseKeepAliveInterval  = 30 * time.Second
)

var (
	serveListenAddr string
	serveTransport  string
	serveIssuer     string
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the MCP tools over HTTP behind the OAuth 2.1 server",
		Long: `Starts the HTTP server with the OAuth 2.1 authorization server endpoints,
the login page and the MCP endpoint. The MCP endpoint is /mcp for the
streamable-http transport and /sse plus /message for the sse transport.
Every MCP request needs a bearer token issued by this server.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}

	cmd.Flags().StringVar(&serveListenAddr, "listen", "", "listen address, e.g. :8080")
	cmd.Flags().StringVar(&serveTransport, "transport", "", "MCP transport: streamable-http or sse")
	cmd.Flags().StringVar(&serveIssuer, "issuer", "", "public base URL of this server")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveListenAddr != "" {
		cfg.Server.ListenAddr = serveListenAddr
	}
	if serveTransport != "" {
		cfg.Server.Transport = serveTransport
	}
	if serveIssuer != "" {
		cfg.Server.Issuer = serveIssuer
	}

	logger, err := newLogger(cfg.Log, os.Stderr)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, logger)
}

// serve builds every component from cfg and runs the HTTP server until ctx
// is cancelled.
func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	inst, err := instrumentation.New(instrumentation.Config{
		ServiceName:     serverName,
		ServiceVersion:  GetVersion(),
		Enabled:         cfg.Instrumentation.Enabled,
		MetricsExporter: cfg.Instrumentation.MetricsExporter,
		TracesExporter:  cfg.Instrumentation.TracesExporter,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize instrumentation: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := inst.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Instrumentation shutdown failed", "error", err)
		}
	}()

	store, closeStore, err := newStore(cfg, logger, inst)
	if err != nil {
		return err
	}
	defer closeStore()

	issuer := strings.TrimRight(cfg.Server.Issuer, "/")
	oauthCfg := &server.Config{
		Issuer:                issuer,
		AuthorizationCodeTTL:  int64(cfg.OAuth.AuthorizationCodeTTL.Seconds()),
		AccessTokenTTL:        int64(cfg.OAuth.AccessTokenTTL.Seconds()),
		RefreshTokenTTL:       int64(cfg.OAuth.RefreshTokenTTL.Seconds()),
		ProviderTimeout:       cfg.Descope.Timeout,
		DefaultSocialProvider: cfg.OAuth.DefaultSocialProvider,
		AllowInsecureHTTP:     cfg.Server.AllowInsecureHTTP,
		TrustProxy:            cfg.Server.TrustProxy,
	}
	if cfg.Server.Transport == config.TransportSSE {
		oauthCfg.ResourceIdentifier = issuer + "/sse"
	}

	provider, err := descope.NewProvider(&descope.Config{
		ProjectID:    cfg.Descope.ProjectID,
		ClientSecret: cfg.Descope.ClientSecret,
		RedirectURL:  oauthCfg.CallbackEndpoint(),
		BaseURL:      cfg.Descope.BaseURL,
		HTTPClient:   &http.Client{Timeout: cfg.Descope.Timeout},
	})
	if err != nil {
		return fmt.Errorf("failed to create descope provider: %w", err)
	}
	checkProvider(ctx, provider, logger)

	srv, err := server.New(provider, store, store, store, oauthCfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create oauth server: %w", err)
	}
	srv.SetInstrumentation(inst)

	handler := oauth.NewHandler(srv, logger)
	if len(cfg.Server.PublicPaths) > 0 {
		handler.SetPublicPaths(cfg.Server.PublicPaths)
	}

	mcpSrv, err := newMCPServer(cfg, logger, inst, true)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())
	mountMCP(mux, mcpSrv, handler, cfg)

	httpServer := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           security.RequestIDMiddleware(mux),
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
		// No WriteTimeout: MCP responses may stream for the life of a session.
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting MCP server",
			"addr", cfg.Server.ListenAddr,
			"issuer", srv.Config.Issuer,
			"transport", cfg.Server.Transport,
			"storage", cfg.Storage.Type)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down MCP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// newStore returns the configured storage backend and a func that releases
// it.
func newStore(cfg *config.Config, logger *slog.Logger, inst *instrumentation.Instrumentation) (storage.Store, func(), error) {
	switch cfg.Storage.Type {
	case config.StorageValkey:
		vcfg := valkey.Config{
			Address:   cfg.Storage.Valkey.Address,
			Password:  cfg.Storage.Valkey.Password,
			DB:        cfg.Storage.Valkey.DB,
			KeyPrefix: cfg.Storage.Valkey.KeyPrefix,
			Logger:    logger,
		}
		if cfg.Storage.Valkey.TLS {
			vcfg.TLS = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		store, err := valkey.New(vcfg)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create valkey storage: %w", err)
		}
		if cfg.OAuth.EncryptionKey != "" {
			key, err := security.KeyFromBase64(cfg.OAuth.EncryptionKey)
			if err != nil {
				store.Close()
				return nil, nil, err
			}
			enc, err := security.NewEncryptor(key)
			if err != nil {
				store.Close()
				return nil, nil, err
			}
			store.SetEncryptor(enc)
		} else {
			logger.Warn("Linked sessions are stored unencrypted in Valkey",
				"recommendation", "Set "+config.EnvEncryptionKey)
		}
		return store, store.Close, nil

	default:
		store := memory.New()
		store.SetLogger(logger)
		store.SetInstrumentation(inst)
		if cfg.OAuth.EncryptionKey != "" {
			logger.Info("Encryption key ignored by in-memory storage")
		}
		return store, func() {}, nil
	}
}

// checkProvider logs whether Descope is reachable. Startup continues either
// way; requests fail on their own if it stays down.
func checkProvider(ctx context.Context, provider *descope.Provider, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(ctx, providerHealthTimeout)
	defer cancel()
	if err := provider.HealthCheck(ctx); err != nil {
		logger.Warn("Identity provider health check failed", "provider", provider.Name(), "error", err)
		return
	}
	logger.Debug("Identity provider reachable", "provider", provider.Name())
}

// newMCPServer creates the MCP server with the store tools registered.
func newMCPServer(cfg *config.Config, logger *slog.Logger, inst *instrumentation.Instrumentation, enforceScopes bool) (*mcpserver.MCPServer, error) {
	client, err := catalog.New(catalog.Config{
		BaseURL: cfg.Store.URL,
		APIKey:  cfg.Store.APIKey,
		Timeout: cfg.Store.Timeout,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create store API client: %w", err)
	}
	client.SetInstrumentation(inst)

	s := mcpserver.NewMCPServer(
		serverName,
		GetVersion(),
		mcpserver.WithToolCapabilities(false),
		mcpserver.WithRecovery(),
	)

	t := tools.New(client, tools.Options{EnforceScopes: enforceScopes}, logger)
	t.SetInstrumentation(inst)
	t.Register(s)
	return s, nil
}

// mountMCP adds the MCP transport endpoints behind bearer token validation.
func mountMCP(mux *http.ServeMux, s *mcpserver.MCPServer, handler *oauth.Handler, cfg *config.Config) {
	switch cfg.Server.Transport {
	case config.TransportSSE:
		sse := mcpserver.NewSSEServer(
			s,
			mcpserver.WithBaseURL(strings.TrimRight(cfg.Server.Issuer, "/")),
			mcpserver.WithSSEEndpoint("/sse"),
			mcpserver.WithMessageEndpoint("/message"),
			mcpserver.WithKeepAlive(true),
			mcpserver.WithKeepAliveInterval(sseKeepAliveInterval),
		)
		mux.Handle("/sse", handler.ValidateToken(sse))
		mux.Handle("/message", handler.ValidateToken(sse))

	default:
		mux.Handle("/mcp", handler.ValidateToken(mcpserver.NewStreamableHTTPServer(s)))
	}
}
