package instrumentation

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name:   "disabled",
			config: Config{Enabled: false},
		},
		{
			name:   "enabled without exporters",
			config: Config{Enabled: true, ServiceName: "test-service", ServiceVersion: "1.0.0"},
		},
		{
			name: "prometheus exporter",
			config: Config{
				Enabled:              true,
				MetricsExporter:      ExporterPrometheus,
				PrometheusRegisterer: prometheus.NewRegistry(),
			},
		},
		{
			name: "stdout traces",
			config: Config{
				Enabled:        true,
				TracesExporter: ExporterStdout,
				TraceWriter:    &bytes.Buffer{},
			},
		},
		{
			name:    "unknown metrics exporter",
			config:  Config{Enabled: true, MetricsExporter: "otlp-carrier-pigeon"},
			wantErr: true,
		},
		{
			name:    "unknown traces exporter",
			config:  Config{Enabled: true, TracesExporter: "jaeger"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst, err := New(tt.config)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			defer func() { _ = inst.Shutdown(context.Background()) }()

			if inst.Meter("http") == nil || inst.Tracer("server") == nil {
				t.Error("expected non-nil meter and tracer")
			}
			if inst.Metrics() == nil {
				t.Error("Metrics() returned nil")
			}
			if inst.MeterProvider() == nil || inst.TracerProvider() == nil {
				t.Error("expected non-nil providers")
			}
		})
	}
}

func TestPrometheusExport(t *testing.T) {
	reg := prometheus.NewRegistry()
	inst, err := New(Config{
		Enabled:              true,
		MetricsExporter:      ExporterPrometheus,
		PrometheusRegisterer: reg,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() { _ = inst.Shutdown(context.Background()) }()

	ctx := context.Background()
	inst.Metrics().RecordClientRegistration(ctx, "confidential")
	inst.Metrics().RecordToolCall(ctx, "search_products", true, 12)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	want := map[string]bool{"oauth_client_registered": false, "mcp_tool_calls": false}
	for _, mf := range families {
		for prefix := range want {
			if strings.HasPrefix(mf.GetName(), prefix) {
				want[prefix] = true
			}
		}
	}
	for prefix, found := range want {
		if !found {
			t.Errorf("no metric family with prefix %q exported", prefix)
		}
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	inst, err := New(Config{Enabled: true, TracesExporter: ExporterStdout, TraceWriter: &bytes.Buffer{}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := inst.Shutdown(context.Background()); err != nil {
		t.Errorf("first Shutdown() error = %v", err)
	}
	if err := inst.Shutdown(context.Background()); err != nil {
		t.Errorf("second Shutdown() error = %v", err)
	}
}

func TestRegisterStorageSizeCallbacks(t *testing.T) {
	reg := prometheus.NewRegistry()
	inst, err := New(Config{Enabled: true, MetricsExporter: ExporterPrometheus, PrometheusRegisterer: reg})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() { _ = inst.Shutdown(context.Background()) }()

	err = inst.RegisterStorageSizeCallbacks(
		func() int64 { return 3 },
		func() int64 { return 7 },
		nil,
	)
	if err != nil {
		t.Fatalf("RegisterStorageSizeCallbacks() error = %v", err)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, mf := range families {
		if strings.HasPrefix(mf.GetName(), "storage_tokens_count") {
			if got := mf.GetMetric()[0].GetGauge().GetValue(); got != 7 {
				t.Errorf("storage tokens gauge = %v, want 7", got)
			}
			return
		}
	}
	t.Error("storage tokens gauge not exported")
}
