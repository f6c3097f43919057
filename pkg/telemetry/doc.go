// Package telemetry groups the gateway's observability concerns.
//
// Subpackages:
//
//   - logging: slog setup with secret redaction and a runtime-adjustable
//     level
//   - metrics: Prometheus collectors and the /metrics handler
package telemetry
