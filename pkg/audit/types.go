package audit

import (
	"time"
)

// Log is one audit record for one entity in one save operation.
// A log owns its property changes: deleting the log deletes them.
type Log struct {
	ID         string `json:"id"`
	EntityID   string `json:"entity_id"`
	EntityName string `json:"entity_name"`
	State      State  `json:"state"`

	// Opaque caller-supplied identifiers for cross-request grouping
	CorrelationID *string `json:"correlation_id,omitempty"`
	SessionID     *string `json:"session_id,omitempty"`
	SnapshotID    *string `json:"snapshot_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	CreatorID *string   `json:"creator_id,omitempty"`

	PropertyChanges []*PropertyChange `json:"property_changes"`
}

// PropertyChange records one property's old and new value within a Log.
// Values may be masked, truncated, or absent depending on policy.
type PropertyChange struct {
	ID           string  `json:"id"`
	AuditLogID   string  `json:"audit_log_id"`
	PropertyName string  `json:"property_name"`
	PropertyType string  `json:"property_type"`
	NewValue     *string `json:"new_value,omitempty"`

	// OriginalValue is always absent for added entities
	OriginalValue *string `json:"original_value,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	CreatorID *string   `json:"creator_id,omitempty"`
}

// RequestContext carries the ambient identifiers of the request that
// triggered a save operation. All fields are optional; they are passed
// explicitly rather than read from implicit request-scoped state.
type RequestContext struct {
	CorrelationID *string
	SessionID     *string
	SnapshotID    *string
	UserID        *string
}

// PropertyEntry describes one property of a pending entity change as
// reported by the host's change tracker.
type PropertyEntry struct {
	// Name is the property name
	Name string

	// TypeName is the fully-qualified declared type of the property
	TypeName string

	// OriginalValue is the value before the change (nil if none)
	OriginalValue interface{}

	// CurrentValue is the value after the change (nil if none)
	CurrentValue interface{}

	// Excluded marks the property as registered for exclusion from
	// processing, independent of Options
	Excluded bool
}

// EntityEntry describes one pending entity change.
type EntityEntry struct {
	// EntityType is the stable logical type name the host registered
	// for the entity
	EntityType string

	// TableName is the logical table the entity maps to
	TableName string

	// State is the entity's change state at save time
	State State

	// PrimaryKey is the entity's primary-key value before the save
	PrimaryKey interface{}

	// Excluded marks the whole entity as registered for exclusion from
	// processing, independent of Options
	Excluded bool

	Properties []PropertyEntry
}

// ChangeSet is the snapshot of pending changes the host's change tracker
// reports at save time. The capture engine consumes it in order; order only
// affects record ordering within the staged batch, not correctness.
type ChangeSet struct {
	Entries []EntityEntry
}
