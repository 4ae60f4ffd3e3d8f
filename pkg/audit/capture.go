package audit

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/changeledger/changeledger/pkg/observability"
)

// unknownValue stands in for an entity id, table name, or property value
// that could not be determined
const unknownValue = "Unknown"

// Capturer turns a ChangeSet into staged audit Log records according to the
// configured Options. It holds no mutable state and is safe for concurrent
// use from parallel save operations.
type Capturer struct {
	opts    *Options
	metrics *observability.Metrics
	now     func() time.Time
}

// NewCapturer creates a capture engine. metrics may be nil.
func NewCapturer(opts *Options, metrics *observability.Metrics) *Capturer {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &Capturer{
		opts:    opts,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Capture stages one Log per eligible entity in the change set. It runs
// synchronously inside the host's save operation and only stages records;
// persisting them in the host's transaction is the caller's responsibility
// (see pkg/store.Recorder).
func (c *Capturer) Capture(changes ChangeSet, reqCtx RequestContext) []*Log {
	if !c.opts.Enabled {
		return nil
	}

	var logs []*Log
	for i := range changes.Entries {
		entry := &changes.Entries[i]

		if entry.Excluded || !c.opts.ShouldLogEntity(entry.EntityType) || !c.opts.ShouldLogState(entry.State) {
			continue
		}

		logs = append(logs, c.captureEntity(entry, reqCtx))
	}

	if c.metrics != nil {
		for _, log := range logs {
			c.metrics.CapturedLogsTotal.WithLabelValues(log.State.String()).Inc()
			c.metrics.CapturedPropertyChangesTotal.Add(float64(len(log.PropertyChanges)))
		}
	}

	return logs
}

// captureEntity builds the Log record for a single pending entity change
func (c *Capturer) captureEntity(entry *EntityEntry, reqCtx RequestContext) *Log {
	capturedAt := c.now()

	entityName := entry.TableName
	if entityName == "" {
		entityName = unknownValue
	}

	log := &Log{
		ID:            uuid.NewString(),
		EntityID:      entityID(entry.PrimaryKey),
		EntityName:    entityName,
		State:         entry.State,
		CorrelationID: reqCtx.CorrelationID,
		SessionID:     reqCtx.SessionID,
		SnapshotID:    reqCtx.SnapshotID,
		CreatedAt:     capturedAt,
		CreatorID:     reqCtx.UserID,
	}

	for _, prop := range entry.Properties {
		if prop.Excluded || !c.opts.ShouldLogProperty(entry.EntityType, prop.Name) {
			continue
		}

		oldValue := formatValue(prop.OriginalValue)
		newValue := formatValue(prop.CurrentValue)

		// Comparison happens before masking: a sensitive property whose
		// value did not change is still skipped.
		if entry.State != StateAdded && stringPtrEqual(oldValue, newValue) {
			continue
		}

		if c.opts.IsSensitiveProperty(prop.Name) {
			mask := c.opts.MaskPattern
			newValue = &mask
			if entry.State == StateAdded {
				oldValue = nil
			} else {
				oldMask := c.opts.MaskPattern
				oldValue = &oldMask
			}
		}

		oldValue = c.truncate(oldValue)
		newValue = c.truncate(newValue)

		if !c.opts.LogChangeDetails {
			oldValue = nil
			newValue = nil
		}

		// Added entities never carry an original value
		if entry.State == StateAdded {
			oldValue = nil
		}

		log.PropertyChanges = append(log.PropertyChanges, &PropertyChange{
			ID:            uuid.NewString(),
			AuditLogID:    log.ID,
			PropertyName:  prop.Name,
			PropertyType:  prop.TypeName,
			NewValue:      newValue,
			OriginalValue: oldValue,
			CreatedAt:     capturedAt,
			CreatorID:     reqCtx.UserID,
		})
	}

	return log
}

// truncate cuts a value at MaxValueLength and appends the truncation marker
func (c *Capturer) truncate(value *string) *string {
	if value == nil || c.opts.MaxValueLength <= 0 {
		return value
	}
	runes := []rune(*value)
	if len(runes) <= c.opts.MaxValueLength {
		return value
	}
	cut := string(runes[:c.opts.MaxValueLength]) + TruncationSuffix
	return &cut
}

// entityID serializes a primary-key value, falling back to unknownValue
// when the key is missing
func entityID(key interface{}) string {
	id := formatValue(key)
	if id == nil || *id == "" {
		return unknownValue
	}
	return *id
}

// formatValue renders a raw tracker value as a string. A nil value stays
// nil; a value whose formatting fails degrades to unknownValue rather than
// aborting the whole entity's record.
func formatValue(value interface{}) (formatted *string) {
	if value == nil {
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			fallback := unknownValue
			formatted = &fallback
		}
	}()

	var s string
	switch v := value.(type) {
	case string:
		s = v
	case fmt.Stringer:
		s = v.String()
	case time.Time:
		s = v.UTC().Format(time.RFC3339Nano)
	case []byte:
		s = string(v)
	case error:
		s = v.Error()
	default:
		s = fmt.Sprintf("%v", v)
	}
	return &s
}

func stringPtrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
