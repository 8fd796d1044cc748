// Package observability wires OpenTelemetry tracing and metrics for
// dockerkit.
//
// Tracing:
//
//	tp, err := observability.InitTracer(ctx, observability.DefaultTracerConfig("dockerkit"))
//	defer tp.Shutdown(ctx)
//
//	ctx, span := observability.StartSpan(ctx, observability.SpanProcessExecute)
//	defer span.End()
//
// Metrics:
//
//	mp, err := observability.InitMeter(ctx, observability.DefaultMeterConfig("dockerkit"))
//	defer mp.Shutdown(ctx)
//
//	pm, err := observability.NewProcessMetrics(observability.Meter("dockerkit"))
//	pm.RecordStart(ctx, "docker", "blocking")
//
// Both providers are optional. Without them the global no-op providers are
// used and nothing is exported.
package observability
