package analytics

import (
	"errors"
	"fmt"
	"time"

	"github.com/changeledger/changeledger/pkg/audit"
)

// DefaultRangeDays is the lookback applied when a request carries no
// explicit date range
const DefaultRangeDays = 7

// Validation errors surfaced before any query runs
var (
	ErrInvalidDateRange  = errors.New("start date must not be after end date")
	ErrMissingEntityID   = errors.New("entity id is required")
	ErrMissingEntityName = errors.New("entity name is required")
	ErrMissingUserID     = errors.New("user id is required")
)

// DateRange bounds the record set a report aggregates over, inclusive on
// both ends
type DateRange struct {
	Start time.Time `json:"start_date"`
	End   time.Time `json:"end_date"`
}

// DefaultDateRange returns the last DefaultRangeDays days through now
func DefaultDateRange(now time.Time) DateRange {
	return DateRange{
		Start: now.AddDate(0, 0, -DefaultRangeDays),
		End:   now,
	}
}

// Validate rejects an inverted range
func (r DateRange) Validate() error {
	if r.Start.After(r.End) {
		return ErrInvalidDateRange
	}
	return nil
}

// TimeGrouping selects the bucket granularity of a trend series
type TimeGrouping string

const (
	GroupHourly  TimeGrouping = "hourly"
	GroupDaily   TimeGrouping = "daily"
	GroupWeekly  TimeGrouping = "weekly"
	GroupMonthly TimeGrouping = "monthly"
)

// ParseTimeGrouping validates a grouping string; empty defaults to daily
func ParseTimeGrouping(raw string) (TimeGrouping, error) {
	switch TimeGrouping(raw) {
	case GroupHourly, GroupDaily, GroupWeekly, GroupMonthly:
		return TimeGrouping(raw), nil
	case "":
		return GroupDaily, nil
	}
	return "", fmt.Errorf("unknown time grouping %q", raw)
}

// PropertyChangeFrequency is one property's change count within a report,
// grouped by name and declared type
type PropertyChangeFrequency struct {
	PropertyName string `json:"property_name"`
	PropertyType string `json:"property_type"`
	ChangeCount  int    `json:"change_count"`
}

// EntityChangeSummaryRequest identifies one entity and the range to
// summarize
type EntityChangeSummaryRequest struct {
	EntityID   string
	EntityName string
	Range      DateRange
}

// Validate rejects missing identifiers and inverted ranges
func (r EntityChangeSummaryRequest) Validate() error {
	if r.EntityID == "" {
		return ErrMissingEntityID
	}
	if r.EntityName == "" {
		return ErrMissingEntityName
	}
	return r.Range.Validate()
}

// EntityChangeSummary describes one entity's change history within a range.
// Modification fields are nil when the entity's latest record is a delete.
type EntityChangeSummary struct {
	EntityID   string `json:"entity_id"`
	EntityName string `json:"entity_name"`

	CreatedAt *time.Time `json:"created_at,omitempty"`
	CreatorID *string    `json:"creator_id,omitempty"`

	LastModifiedAt *time.Time `json:"last_modified_at,omitempty"`
	LastModifierID *string    `json:"last_modifier_id,omitempty"`

	TotalChanges int `json:"total_changes"`

	MostChangedProperties []PropertyChangeFrequency `json:"most_changed_properties"`
}

// UserActivityAnalysisRequest selects the records a user-activity report
// aggregates over
type UserActivityAnalysisRequest struct {
	Range      DateRange
	UserID     string
	EntityName string

	// MinActivityCount drops users with fewer changes from the ranking
	MinActivityCount *int
}

func (r UserActivityAnalysisRequest) Validate() error {
	return r.Range.Validate()
}

// UserActivity is one user's aggregate within a user-activity report
type UserActivity struct {
	UserID           string         `json:"user_id"`
	ChangeCount      int            `json:"change_count"`
	LastActivityTime time.Time      `json:"last_activity_time"`
	ChangesByEntity  map[string]int `json:"changes_by_entity"`
	ChangesByState   map[string]int `json:"changes_by_state"`
}

// UserActivityAnalysis summarizes who changed what within a range.
// TotalChangeCount covers every matching record; TotalActiveUsers and
// AverageChangesPerUser only count users that pass MinActivityCount.
type UserActivityAnalysis struct {
	TotalActiveUsers      int            `json:"total_active_users"`
	TotalChangeCount      int            `json:"total_change_count"`
	MostActiveUsers       []UserActivity `json:"most_active_users"`
	AverageChangesPerUser float64        `json:"average_changes_per_user"`

	// ActivityDistribution maps ISO dates to change counts
	ActivityDistribution map[string]int `json:"activity_distribution"`
}

// MostModifiedEntitiesRequest selects the records an entity ranking
// aggregates over
type MostModifiedEntitiesRequest struct {
	Range       DateRange
	EntityNames []string
	UserID      string
}

func (r MostModifiedEntitiesRequest) Validate() error {
	return r.Range.Validate()
}

// ModifiedEntity is one entity's aggregate within a ranking
type ModifiedEntity struct {
	EntityID          string         `json:"entity_id"`
	EntityName        string         `json:"entity_name"`
	ChangeCount       int            `json:"change_count"`
	LastModified      time.Time      `json:"last_modified"`
	UniqueUserCount   int            `json:"unique_user_count"`
	StateDistribution map[string]int `json:"state_distribution"`
}

// MostModifiedEntities ranks entities by change volume within a range
type MostModifiedEntities struct {
	Period              DateRange        `json:"analysis_period"`
	Entities            []ModifiedEntity `json:"most_modified_entities"`
	ChangesByEntityName map[string]int   `json:"changes_by_entity_name"`
}

// EntityChangesTrendRequest selects one entity type's change series
type EntityChangesTrendRequest struct {
	EntityName string
	Range      DateRange
	Grouping   TimeGrouping

	// PropertyNames limits the per-property series; empty auto-selects the
	// five most changed properties in range
	PropertyNames []string
}

func (r EntityChangesTrendRequest) Validate() error {
	if r.EntityName == "" {
		return ErrMissingEntityName
	}
	return r.Range.Validate()
}

// TimeSeriesPoint is one bucket of a dense series
type TimeSeriesPoint struct {
	Bucket time.Time `json:"bucket"`
	Value  int       `json:"value"`
}

// EntityChangesTrend is a dense time series of one entity type's changes.
// Every bucket in range appears, zero-filled; ChangesByState carries a
// series for every enumerated state.
type EntityChangesTrend struct {
	EntityName        string                       `json:"entity_name"`
	Period            DateRange                    `json:"analysis_period"`
	ChangesByInterval []TimeSeriesPoint            `json:"changes_by_interval"`
	ChangesByState    map[string][]TimeSeriesPoint `json:"changes_by_state"`
	ChangesByProperty map[string][]TimeSeriesPoint `json:"changes_by_property"`
}

// UserChangeBehaviorRequest selects one user's change records
type UserChangeBehaviorRequest struct {
	UserID      string
	Range       DateRange
	EntityNames []string
	States      []audit.State
}

func (r UserChangeBehaviorRequest) Validate() error {
	if r.UserID == "" {
		return ErrMissingUserID
	}
	return r.Range.Validate()
}

// UserChangeBehavior describes when and what one user changes. Hour and
// weekday distributions are zero-filled across all 24 hours and 7 days.
type UserChangeBehavior struct {
	UserID string    `json:"user_id"`
	Period DateRange `json:"analysis_period"`

	TotalChanges int `json:"total_changes"`

	ChangesByHourOfDay map[int]int    `json:"changes_by_hour_of_day"`
	ChangesByDayOfWeek map[string]int `json:"changes_by_day_of_week"`
	ChangesByEntity    map[string]int `json:"changes_by_entity"`
	ChangesByState     map[string]int `json:"changes_by_state"`

	MostModifiedEntities  []ModifiedEntity          `json:"most_modified_entities"`
	MostChangedProperties []PropertyChangeFrequency `json:"most_changed_properties"`
}
