package instrumentation

import (
	"context"
	"errors"
	"testing"
)

// Recording against no-op and SDK providers must never panic.
func TestMetricsRecorders(t *testing.T) {
	for _, enabled := range []bool{false, true} {
		inst, err := New(Config{Enabled: enabled})
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}

		ctx := context.Background()
		m := inst.Metrics()

		m.RecordHTTPRequest(ctx, "POST", "/oauth/token", 200, 12.5)
		m.RecordAuthorizationStarted(ctx, "mcp_client_1", "google")
		m.RecordCallbackProcessed(ctx, "github", false)
		m.RecordCodeExchange(ctx, "mcp_client_1")
		m.RecordTokenIssued(ctx, "client_credentials")
		m.RecordTokenRefresh(ctx, true)
		m.RecordClientRegistration(ctx, "public")
		m.RecordPKCEValidationFailed(ctx, "S256")
		m.RecordCodeReuseDetected(ctx)
		m.RecordBearerRejected(ctx, "expired")
		m.RecordStorageOperation(ctx, "consume_auth_code", "success", 0.2)
		m.RecordProviderAPICall(ctx, "descope", "exchange_code", 120, errors.New("boom"))
		m.RecordToolCall(ctx, "compare_products", false, 30)
		m.RecordCatalogAPICall(ctx, "get_product", 404, 8)

		_ = inst.Shutdown(ctx)
	}
}
