// Package instrumentation wires OpenTelemetry metrics and traces for the
// store server.
//
// Metrics are exported in Prometheus format through the otel Prometheus
// exporter; mount promhttp.HandlerFor on /metrics with the same registry.
// Traces can be printed with the stdout exporter while developing.
//
//	inst, err := instrumentation.New(instrumentation.Config{
//		Enabled:         true,
//		ServiceName:     "descope-store-mcp",
//		ServiceVersion:  version,
//		MetricsExporter: instrumentation.ExporterPrometheus,
//	})
//	if err != nil {
//		return err
//	}
//	defer inst.Shutdown(context.Background())
//
// Instrument names are grouped by layer: oauth.* for the authorization
// server, mcp.tool.* for tool calls, catalog.api.* for the outbound store
// API, provider.api.* for the identity provider and storage.* for stores.
//
// Never record credential values (tokens, codes, secrets) as attributes.
package instrumentation
