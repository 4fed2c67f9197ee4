package telemetry_test

import (
	"context"
	"fmt"

	"github.com/tessera-run/tessera/pkg/telemetry"
)

// Example_basicSetup demonstrates basic telemetry setup.
func Example_basicSetup() {
	cfg := telemetry.DefaultConfig()
	cfg.ServiceVersion = "1.0.0"

	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		panic(err)
	}
	defer tel.Shutdown(context.Background())

	ctx := tel.WithContext(context.Background())
	telemetry.FromContext(ctx).Info("Discovery started")

	// Output can vary, so we don't specify output for this example
}

// Example_runInstrumentation demonstrates wrapping a discovery run.
func Example_runInstrumentation() {
	tel, _ := telemetry.NewTelemetry(telemetry.DefaultConfig())
	defer tel.Shutdown(context.Background())

	ctx := telemetry.WithRunContext(tel.WithContext(context.Background()), "run-123", 2)

	op := telemetry.StartOperation(ctx, "discovery.assembly")
	op.Logger.WithAssembly("Contoso.Tests").Debug("Enumerating types")
	op.End(nil)

	telemetry.EndRunContext(ctx, 42, nil)
}

// Example_configValidation shows the validation of an OTLP configuration.
func Example_configValidation() {
	cfg := telemetry.CIConfig()
	cfg.Tracing.Endpoint = ""

	err := cfg.Validate()
	fmt.Println(err)

	// Output:
	// otlp exporter requires an endpoint
}
