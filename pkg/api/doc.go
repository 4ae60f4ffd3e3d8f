// Package api exposes the audit log store and analytics reports over
// HTTP.
//
// # Overview
//
// The server registers three groups of routes: audit log reads under
// /api/v1/audit-logs (get by id, paginated listing, property changes,
// export, retention cleanup), the five analytics reports under the same
// prefix, and operational endpoints (/healthz, /readyz).
//
// Handlers validate query parameters before touching the store;
// out-of-range values are rejected with 400, never silently corrected.
// Analytics endpoints default their date range to the last seven days.
//
// # Usage Example
//
//	server := api.NewServer(st, svc, api.ServerConfig{
//		Logger:  logger,
//		Metrics: metrics,
//		Health:  observability.NewHealthChecker(db, nil),
//	})
//	http.ListenAndServe(":8080", server)
//
// # Related Packages
//
//   - pkg/store: the log store the read endpoints query
//   - pkg/analytics: the report service behind the analytics endpoints
//   - pkg/observability: request logging, metrics, and health probes
package api
