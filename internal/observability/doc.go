// Package observability builds the process logger and tracer provider for
// the payment control plane.
//
// This package implements:
//   - Structured logging (zap), JSON in production and console in development
//   - OpenTelemetry tracing over OTLP/HTTP, opt-in through OTEL_ENDPOINT
//   - Correlation id propagation into log fields
package observability
