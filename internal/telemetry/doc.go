// Package telemetry provides OpenTelemetry tracing and metrics for ragd.
//
// New installs global tracer and meter providers that export over OTLP
// (gRPC or HTTP). When disabled it hands out the global no-op providers, so
// callers never branch on whether telemetry is on.
//
//	tel, err := telemetry.New(ctx, telemetry.FromConfig(cfg.Telemetry, version))
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	tracer := tel.Tracer("ragd/pipeline")
//
// Tests use NewTestTelemetry, which records spans and metrics in memory.
package telemetry
