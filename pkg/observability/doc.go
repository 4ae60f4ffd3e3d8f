// Package observability provides structured logging, Prometheus metrics,
// and health checks for the audit service.
//
// Logging uses a slog-backed JSON logger with context helpers for request
// IDs. Metrics cover capture volume, store operations, retention cleanup,
// and analytics query latency under the changeledger_ prefix. Health checks
// probe the audit database and the optional Redis cache.
package observability
