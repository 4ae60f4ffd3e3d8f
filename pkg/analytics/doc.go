// Package analytics computes aggregate reports over stored audit logs.
//
// # Overview
//
// Five read-only reports cover the common questions asked of an audit
// trail: what happened to one entity (EntityChangeSummary), who is making
// changes (UserActivityAnalysis), which entities churn the most
// (MostModifiedEntities), how change volume trends over time
// (EntityChangesTrend), and how a single user works (UserChangeBehavior).
//
// Reports validate their requests before touching the store and return a
// well-formed zero-valued response when no records match the filter. Trend
// series are dense: every bucket in range appears, zero-filled, including a
// series for every enumerated change state.
//
// Rankings order by count descending with ties broken by name ascending.
// Averages round half away from zero to two decimals.
//
// # Caching
//
// Results can be cached behind the Cache interface, keyed by a fingerprint
// of the report name and request parameters. MemoryCache wraps an
// expirable LRU for single-instance deployments; RedisCache shares results
// across instances. Cache failures degrade to a recomputation, never to an
// error.
//
// # Related Packages
//
//   - pkg/store: supplies the date-bounded record sets reports aggregate
//   - pkg/api: exposes each report as an HTTP endpoint
package analytics
