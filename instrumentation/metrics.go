package instrumentation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds every metric instrument the server records.
type Metrics struct {
	// HTTP layer
	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram

	// OAuth flows
	AuthorizationStarted metric.Int64Counter
	CallbackProcessed    metric.Int64Counter
	CodeExchanged        metric.Int64Counter
	TokenIssued          metric.Int64Counter
	TokenRefreshed       metric.Int64Counter
	ClientRegistered     metric.Int64Counter

	// Security
	PKCEValidationFailed metric.Int64Counter
	CodeReuseDetected    metric.Int64Counter
	BearerRejected       metric.Int64Counter

	// Storage
	StorageOperationTotal    metric.Int64Counter
	StorageOperationDuration metric.Float64Histogram
	StorageSizeClients       metric.Int64ObservableGauge
	StorageSizeTokens        metric.Int64ObservableGauge
	StorageSizeCodes         metric.Int64ObservableGauge

	// Identity provider
	ProviderAPICallsTotal metric.Int64Counter
	ProviderAPIDuration   metric.Float64Histogram

	// MCP tools and the catalog API behind them
	ToolCallsTotal       metric.Int64Counter
	ToolCallDuration     metric.Float64Histogram
	CatalogAPICallsTotal metric.Int64Counter
	CatalogAPIDuration   metric.Float64Histogram
}

type instrumentBuilder struct {
	meter metric.Meter
	err   error
}

func (b *instrumentBuilder) counter(name, desc, unit string) metric.Int64Counter {
	c, err := b.meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit))
	if err != nil && b.err == nil {
		b.err = fmt.Errorf("failed to create %s counter: %w", name, err)
	}
	return c
}

func (b *instrumentBuilder) histogram(name, desc string) metric.Float64Histogram {
	h, err := b.meter.Float64Histogram(name, metric.WithDescription(desc), metric.WithUnit("ms"))
	if err != nil && b.err == nil {
		b.err = fmt.Errorf("failed to create %s histogram: %w", name, err)
	}
	return h
}

func (b *instrumentBuilder) gauge(name, desc, unit string) metric.Int64ObservableGauge {
	g, err := b.meter.Int64ObservableGauge(name, metric.WithDescription(desc), metric.WithUnit(unit))
	if err != nil && b.err == nil {
		b.err = fmt.Errorf("failed to create %s gauge: %w", name, err)
	}
	return g
}

func newMetrics(inst *Instrumentation) (*Metrics, error) {
	m := &Metrics{}

	httpB := &instrumentBuilder{meter: inst.Meter("http")}
	m.HTTPRequestsTotal = httpB.counter("oauth.http.requests.total", "Total number of HTTP requests", "{request}")
	m.HTTPRequestDuration = httpB.histogram("oauth.http.request.duration", "HTTP request duration in milliseconds")

	serverB := &instrumentBuilder{meter: inst.Meter("server")}
	m.AuthorizationStarted = serverB.counter("oauth.authorization.started", "Authorization flows started", "{flow}")
	m.CallbackProcessed = serverB.counter("oauth.callback.processed", "Identity provider callbacks processed", "{callback}")
	m.CodeExchanged = serverB.counter("oauth.code.exchanged", "Authorization codes exchanged for tokens", "{exchange}")
	m.TokenIssued = serverB.counter("oauth.token.issued", "Access tokens issued", "{token}")
	m.TokenRefreshed = serverB.counter("oauth.token.refreshed", "Refresh grants served", "{refresh}")
	m.ClientRegistered = serverB.counter("oauth.client.registered", "Clients registered", "{client}")
	m.PKCEValidationFailed = serverB.counter("oauth.pkce.validation_failed", "PKCE verification failures", "{failure}")
	m.CodeReuseDetected = serverB.counter("oauth.code.reuse_detected", "Redemptions of unknown or already used codes", "{attempt}")
	m.BearerRejected = serverB.counter("oauth.bearer.rejected", "Protected requests rejected by the bearer gate", "{request}")

	storageB := &instrumentBuilder{meter: inst.Meter("storage")}
	m.StorageOperationTotal = storageB.counter("storage.operation.total", "Storage operations", "{operation}")
	m.StorageOperationDuration = storageB.histogram("storage.operation.duration", "Storage operation duration in milliseconds")
	m.StorageSizeClients = storageB.gauge("storage.clients.count", "Registered clients", "{client}")
	m.StorageSizeTokens = storageB.gauge("storage.tokens.count", "Stored access tokens", "{token}")
	m.StorageSizeCodes = storageB.gauge("storage.codes.count", "Stored authorization codes", "{code}")

	providerB := &instrumentBuilder{meter: inst.Meter("provider")}
	m.ProviderAPICallsTotal = providerB.counter("provider.api.calls.total", "Identity provider API calls", "{call}")
	m.ProviderAPIDuration = providerB.histogram("provider.api.duration", "Identity provider API call duration in milliseconds")

	toolsB := &instrumentBuilder{meter: inst.Meter("tools")}
	m.ToolCallsTotal = toolsB.counter("mcp.tool.calls.total", "MCP tool calls", "{call}")
	m.ToolCallDuration = toolsB.histogram("mcp.tool.call.duration", "MCP tool call duration in milliseconds")

	catalogB := &instrumentBuilder{meter: inst.Meter("catalog")}
	m.CatalogAPICallsTotal = catalogB.counter("catalog.api.calls.total", "Catalog API calls", "{call}")
	m.CatalogAPIDuration = catalogB.histogram("catalog.api.duration", "Catalog API call duration in milliseconds")

	for _, b := range []*instrumentBuilder{httpB, serverB, storageB, providerB, toolsB, catalogB} {
		if b.err != nil {
			return nil, b.err
		}
	}

	return m, nil
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, endpoint string, statusCode int, durationMs float64) {
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("endpoint", endpoint),
		attribute.Int("status", statusCode),
	)
	m.HTTPRequestsTotal.Add(ctx, 1, attrs)
	m.HTTPRequestDuration.Record(ctx, durationMs, metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("endpoint", endpoint),
	))
}

// RecordAuthorizationStarted records a started authorization flow.
func (m *Metrics) RecordAuthorizationStarted(ctx context.Context, clientID, provider string) {
	m.AuthorizationStarted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("client_id", clientID),
		attribute.String("provider", provider),
	))
}

// RecordCallbackProcessed records an identity provider callback.
func (m *Metrics) RecordCallbackProcessed(ctx context.Context, provider string, success bool) {
	m.CallbackProcessed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("result", resultLabel(success)),
	))
}

// RecordCodeExchange records an authorization code redemption.
func (m *Metrics) RecordCodeExchange(ctx context.Context, clientID string) {
	m.CodeExchanged.Add(ctx, 1, metric.WithAttributes(attribute.String("client_id", clientID)))
}

// RecordTokenIssued records an issued access token.
func (m *Metrics) RecordTokenIssued(ctx context.Context, grantType string) {
	m.TokenIssued.Add(ctx, 1, metric.WithAttributes(attribute.String("grant_type", grantType)))
}

// RecordTokenRefresh records a refresh grant.
func (m *Metrics) RecordTokenRefresh(ctx context.Context, success bool) {
	m.TokenRefreshed.Add(ctx, 1, metric.WithAttributes(attribute.String("result", resultLabel(success))))
}

// RecordClientRegistration records a dynamic client registration.
func (m *Metrics) RecordClientRegistration(ctx context.Context, clientType string) {
	m.ClientRegistered.Add(ctx, 1, metric.WithAttributes(attribute.String("client_type", clientType)))
}

// RecordPKCEValidationFailed records a failed PKCE check.
func (m *Metrics) RecordPKCEValidationFailed(ctx context.Context, method string) {
	m.PKCEValidationFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("method", method)))
}

// RecordCodeReuseDetected records a redemption of an unknown or spent code.
func (m *Metrics) RecordCodeReuseDetected(ctx context.Context) {
	m.CodeReuseDetected.Add(ctx, 1)
}

// RecordBearerRejected records a request rejected by the bearer gate.
func (m *Metrics) RecordBearerRejected(ctx context.Context, reason string) {
	m.BearerRejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordStorageOperation records a storage operation.
func (m *Metrics) RecordStorageOperation(ctx context.Context, operation, result string, durationMs float64) {
	m.StorageOperationTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("result", result),
	))
	m.StorageOperationDuration.Record(ctx, durationMs, metric.WithAttributes(
		attribute.String("operation", operation),
	))
}

// RecordProviderAPICall records a call to the identity provider.
func (m *Metrics) RecordProviderAPICall(ctx context.Context, provider, operation string, durationMs float64, err error) {
	m.ProviderAPICallsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("operation", operation),
		attribute.String("result", resultLabel(err == nil)),
	))
	m.ProviderAPIDuration.Record(ctx, durationMs, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("operation", operation),
	))
}

// RecordToolCall records an MCP tool invocation.
func (m *Metrics) RecordToolCall(ctx context.Context, tool string, success bool, durationMs float64) {
	m.ToolCallsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("result", resultLabel(success)),
	))
	m.ToolCallDuration.Record(ctx, durationMs, metric.WithAttributes(attribute.String("tool", tool)))
}

// RecordCatalogAPICall records an outbound catalog API call.
func (m *Metrics) RecordCatalogAPICall(ctx context.Context, operation string, statusCode int, durationMs float64) {
	m.CatalogAPICallsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.Int("status", statusCode),
	))
	m.CatalogAPIDuration.Record(ctx, durationMs, metric.WithAttributes(attribute.String("operation", operation)))
}
