package audit

import (
	"strings"
)

// DefaultMaskPattern replaces sensitive values in stored records
const DefaultMaskPattern = "***MASKED***"

// DefaultMaxValueLength bounds stored value length; longer values are
// truncated with TruncationSuffix appended
const DefaultMaxValueLength = 5000

// TruncationSuffix marks a stored value that was cut at MaxValueLength
const TruncationSuffix = "... (truncated)"

// Options is the process-wide audit configuration. It is immutable after
// startup; all policy methods are pure and safe for concurrent use.
type Options struct {
	// Enabled turns capture on or off globally
	Enabled bool

	// MaskPattern replaces values of sensitive properties
	MaskPattern string

	// SensitiveProperties are property names whose values are masked,
	// matched case-insensitively
	SensitiveProperties []string

	// ExcludedProperties maps an entity type name to property names that
	// are never logged for that entity, matched case-insensitively
	ExcludedProperties map[string][]string

	// IncludedEntities restricts logging to the listed entity type names.
	// Empty means all entities are logged.
	IncludedEntities []string

	// ExcludedEntities lists entity type names that are never logged.
	// Exclusion wins over inclusion.
	ExcludedEntities []string

	// LogChangeDetails stores old/new values when true; when false only
	// the fact that a property changed is recorded
	LogChangeDetails bool

	// MaxValueLength bounds the stored length of a single value
	MaxValueLength int

	// LoggedStates are the change states that produce records
	LoggedStates []State
}

// DefaultOptions returns the stock configuration: capture enabled, common
// credential-ish property names masked, full change details up to 5000
// characters, and added/modified/deleted states logged.
func DefaultOptions() *Options {
	return &Options{
		Enabled:     true,
		MaskPattern: DefaultMaskPattern,
		SensitiveProperties: []string{
			"Password", "Token", "Secret", "ApiKey", "Key", "Credential",
			"Ssn", "Credit", "Card", "SecurityCode", "Pin", "Authorization",
		},
		ExcludedProperties: make(map[string][]string),
		LogChangeDetails:   true,
		MaxValueLength:     DefaultMaxValueLength,
		LoggedStates:       []State{StateAdded, StateModified, StateDeleted},
	}
}

// ShouldLogState reports whether entities in the given state produce records
func (o *Options) ShouldLogState(state State) bool {
	for _, s := range o.LoggedStates {
		if s == state {
			return true
		}
	}
	return false
}

// ShouldLogEntity reports whether the entity type is audited. An entity on
// the excluded list is never audited; otherwise an empty included list means
// every entity is audited.
func (o *Options) ShouldLogEntity(entityType string) bool {
	for _, name := range o.ExcludedEntities {
		if name == entityType {
			return false
		}
	}
	if len(o.IncludedEntities) == 0 {
		return true
	}
	for _, name := range o.IncludedEntities {
		if name == entityType {
			return true
		}
	}
	return false
}

// ShouldLogProperty reports whether the property is audited for the entity
// type. Property names are compared case-insensitively.
func (o *Options) ShouldLogProperty(entityType, propertyName string) bool {
	excluded, ok := o.ExcludedProperties[entityType]
	if !ok {
		return true
	}
	for _, name := range excluded {
		if strings.EqualFold(name, propertyName) {
			return false
		}
	}
	return true
}

// IsSensitiveProperty reports whether the property's values are masked.
// Property names are compared case-insensitively.
func (o *Options) IsSensitiveProperty(propertyName string) bool {
	for _, name := range o.SensitiveProperties {
		if strings.EqualFold(name, propertyName) {
			return true
		}
	}
	return false
}
