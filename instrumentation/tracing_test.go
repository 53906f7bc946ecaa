package instrumentation

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestSpanHelpersAreNilSafe(t *testing.T) {
	RecordError(nil, errors.New("x"))
	SetSpanSuccess(nil)
	SetSpanAttributes(nil, attribute.String("k", "v"))
	AddOAuthFlowAttributes(nil, "client", "user", "scope")
	AddHTTPAttributes(nil, "GET", "/health", 200)
}

func TestSpanHelpersWithRealSpan(t *testing.T) {
	inst, err := New(Config{Enabled: false})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, span := inst.Tracer("server").Start(context.Background(), "test")
	defer span.End()

	AddOAuthFlowAttributes(span, "mcp_client_1", "", "products:read")
	AddHTTPAttributes(span, "POST", "/oauth/token", 400)
	RecordError(span, errors.New("invalid_grant"))
	RecordError(span, nil)
	SetSpanSuccess(span)
}
