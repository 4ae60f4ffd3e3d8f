package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/changeledger/changeledger/pkg/audit"
)

// ErrNotFound is returned when a lookup by id matches no audit log
var ErrNotFound = errors.New("audit log not found")

// Pagination bounds for GetPage
const (
	DefaultPerPage = 25
	MaxPerPage     = 100
)

// Execer is the subset of *sql.DB and *sql.Tx the store needs to stage
// records. Hosts pass their own transaction so staged records commit or
// roll back with the triggering save.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// SortOrder is the direction of a sorted listing
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// ListFilter narrows and pages a listing of audit logs. Zero values mean
// "no filter". Page is 1-based; PerPage is clamped to [1, MaxPerPage].
type ListFilter struct {
	EntityID      string
	EntityName    string
	State         *audit.State
	CreatorID     string
	CorrelationID string
	SessionID     string
	SnapshotID    string
	StartDate     *time.Time
	EndDate       *time.Time

	SortBy    string
	SortOrder SortOrder

	Page    int
	PerPage int
}

// AnalysisFilter selects the date-bounded record set an analytics report
// aggregates over. StartDate and EndDate are required; the rest narrow the
// set further.
type AnalysisFilter struct {
	StartDate time.Time
	EndDate   time.Time

	EntityID    string
	EntityName  string
	EntityNames []string
	CreatorID   string
	States      []audit.State
}

// Store persists and queries audit log records
type Store interface {
	// Insert stages the given logs and their property changes. Passing the
	// host's transaction as exec makes the records part of the host's unit
	// of work; passing nil wraps the batch in the store's own transaction.
	Insert(ctx context.Context, exec Execer, logs []*audit.Log) error

	// GetByID returns the log with its property changes, or ErrNotFound
	GetByID(ctx context.Context, id string) (*audit.Log, error)

	// GetPage returns one page of filtered logs plus the total match count
	GetPage(ctx context.Context, filter ListFilter) ([]*audit.Log, int, error)

	// PropertyChangesFor returns a log's property changes ordered by
	// property name
	PropertyChangesFor(ctx context.Context, auditLogID string) ([]*audit.PropertyChange, error)

	// ListForAnalysis returns all matching logs, property changes eagerly
	// loaded, ordered by creation time ascending
	ListForAnalysis(ctx context.Context, filter AnalysisFilter) ([]*audit.Log, error)

	// DeleteOlderThan removes logs created before cutoff in batches of
	// batchSize ordered by creation time ascending, optionally archiving
	// each batch first. It returns the number of logs deleted; a batch
	// failure stops the loop and reports partial progress alongside the
	// error. Cancellation between batches stops the loop without error.
	DeleteOlderThan(ctx context.Context, cutoff time.Time, batchSize int, archive bool) (int, error)
}
