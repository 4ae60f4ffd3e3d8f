// Package config loads application configuration from environment
// variables.
//
// # Overview
//
// All settings use the CHANGELEDGER_ prefix and fall back to sensible
// defaults. Configuration covers the HTTP server, the audit log
// database, the capture policy, retention cleanup, the analytics cache,
// and observability.
//
// LoadConfig validates the result; an invalid combination (unknown
// database driver, redis cache without a URL, out-of-range retention
// batch size) fails startup rather than being silently corrected.
//
// # Usage Example
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//	opts := cfg.Audit.Options()
//
// # Related Packages
//
//   - pkg/audit: the capture policy built from AuditConfig
//   - pkg/store: the dialect selected by DatabaseConfig
package config
