// Package server provides the HTTP status API for a running batch.
//
// It exposes:
//
//   - REST API: job records as JSON at "/api/jobs" and "/api/jobs/{name}"
//   - Server-Sent Events: real-time record updates at "/api/sse"
//   - Metrics: Prometheus exposition at "/metrics" when configured
//
// The server supports graceful shutdown via context cancellation, with a
// 5-second timeout for in-flight requests.
package server
