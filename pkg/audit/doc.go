// Package audit contains the change-capture core: the policy that decides
// which entity changes are recorded, and the capture engine that turns a
// snapshot of pending changes into audit log records.
//
// # Overview
//
// The host application's change tracker reports pending changes as a
// ChangeSet: one EntityEntry per changed entity, each carrying the change
// state, the primary key, and per-property original/current values. Capture
// runs synchronously inside the host's save operation and stages Log records
// that the host persists in the same transaction (see pkg/store.Recorder).
//
// # Usage Example
//
// Capture pending changes:
//
//	capturer := audit.NewCapturer(audit.DefaultOptions(), metrics)
//	logs := capturer.Capture(changeSet, audit.RequestContext{
//		CorrelationID: &correlationID,
//		UserID:        &userID,
//	})
//
// Policy checks are plain methods on Options:
//
//	opts.ShouldLogEntity("users")        // include/exclude lists
//	opts.IsSensitiveProperty("Password") // masked in stored values
//
// # Masking and Truncation
//
// Values of sensitive properties are replaced with Options.MaskPattern
// before storage. Values longer than Options.MaxValueLength are cut and
// suffixed with a truncation marker. For newly added entities the original
// value is always recorded as absent.
//
// # Related Packages
//
//   - pkg/store: persistence and retention for captured records
//   - pkg/analytics: aggregated reports over stored records
package audit
