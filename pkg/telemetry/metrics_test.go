package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tessera-run/tessera/pkg/engine"
)

func TestMetrics_Observer(t *testing.T) {
	cfg := DefaultConfig().Metrics
	cfg.Enabled = true

	m, err := NewMetrics(cfg)
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}

	m.ObserveResolution(engine.KindType, 3, 2, time.Millisecond)
	m.ObserveResolution(engine.KindType, 1, 0, time.Millisecond)
	m.ObserveSkipped("Contoso.Missing", engine.ErrCodeTypeLoad)
	m.ObserveSkipped("Contoso.Broken", "")
	m.ObservePolicyDefault("Tessera.OwnerAttribute")

	if got := testutil.ToFloat64(m.resolutions.WithLabelValues("type")); got != 2 {
		t.Errorf("Expected 2 type resolutions, got %v", got)
	}
	if got := testutil.ToFloat64(m.markersSkipped.WithLabelValues(engine.ErrCodeTypeLoad)); got != 1 {
		t.Errorf("Expected 1 TYPE_LOAD skip, got %v", got)
	}
	if got := testutil.ToFloat64(m.markersSkipped.WithLabelValues("unknown")); got != 1 {
		t.Errorf("Expected 1 unknown skip, got %v", got)
	}
	if got := testutil.ToFloat64(m.policyDefaults.WithLabelValues("Tessera.OwnerAttribute")); got != 1 {
		t.Errorf("Expected 1 policy default, got %v", got)
	}
}

func TestMetrics_Disabled(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}

	// Every recorder must be a no-op.
	m.ObserveResolution(engine.KindMethod, 1, 1, time.Millisecond)
	m.ObserveSkipped("x", "y")
	m.ObservePolicyDefault("x")
	m.RecordDiscovery("succeeded", time.Second)
	m.SetTestsDiscovered("Contoso.Tests", 3)
	m.RecordViolation("timeout-positive", "error")
	m.RecordCache(1, 1)

	if m.Gatherer() != nil {
		t.Error("Expected no gatherer for disabled metrics")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "default", mutate: func(*Config) {}},
		{name: "development", mutate: func(c *Config) { *c = *DevelopmentConfig() }},
		{name: "ci", mutate: func(c *Config) { *c = *CIConfig() }},
		{name: "bad level", mutate: func(c *Config) { c.Logging.Level = "loud" }, wantErr: true},
		{name: "bad format", mutate: func(c *Config) { c.Logging.Format = "xml" }, wantErr: true},
		{name: "bad exporter", mutate: func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.Exporter = "jaeger"
		}, wantErr: true},
		{name: "bad sampling", mutate: func(c *Config) { c.Tracing.SamplingRate = 2 }, wantErr: true},
		{name: "metrics without address", mutate: func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.ListenAddress = ""
		}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("Expected error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Expected no error, got: %v", err)
			}
		})
	}
}
