package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/changeledger/changeledger/pkg/audit"
	"github.com/changeledger/changeledger/pkg/observability"
)

// cleanupPauseEvery is the number of cleanup batches between pauses
const cleanupPauseEvery = 5

// cleanupPause bounds sustained cleanup load on the database
const cleanupPause = 500 * time.Millisecond

// Config wires a DBStore's collaborators. Archiver, Logger, and Metrics
// are optional.
type Config struct {
	Dialect  Dialect
	Archiver Archiver
	Logger   *observability.Logger
	Metrics  *observability.Metrics
}

// DBStore implements Store on database/sql. One implementation serves both
// PostgreSQL (lib/pq) and SQLite (mattn/go-sqlite3); the dialect only
// affects DDL and placeholder style.
type DBStore struct {
	db       *sql.DB
	dialect  Dialect
	archiver Archiver
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// NewDBStore creates a database-backed audit log store and ensures the
// schema exists.
func NewDBStore(db *sql.DB, cfg Config) (*DBStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if cfg.Dialect == "" {
		cfg.Dialect = DialectPostgres
	}

	s := &DBStore{
		db:       db,
		dialect:  cfg.Dialect,
		archiver: cfg.Archiver,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
	}

	if _, err := db.Exec(cfg.Dialect.schema()); err != nil {
		return nil, fmt.Errorf("failed to ensure audit schema: %w", err)
	}

	return s, nil
}

const insertLogQuery = `
	INSERT INTO audit_logs (
		id, entity_id, entity_name, state,
		correlation_id, session_id, snapshot_id,
		created_at, creator_id
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`

const insertChangeQuery = `
	INSERT INTO entity_property_changes (
		id, audit_log_id, property_name, property_type,
		new_value, original_value, created_at, creator_id
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`

// Insert stages logs and their property changes through exec. When exec is
// nil the batch runs in its own transaction on the store's connection.
func (s *DBStore) Insert(ctx context.Context, exec Execer, logs []*audit.Log) (err error) {
	defer func(start time.Time) { s.metrics.ObserveStoreOperation("insert", start, err) }(time.Now())

	if len(logs) == 0 {
		return nil
	}

	if exec == nil {
		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}
		defer tx.Rollback()

		if err = s.insertAll(ctx, tx, logs); err != nil {
			return err
		}
		return tx.Commit()
	}

	return s.insertAll(ctx, exec, logs)
}

func (s *DBStore) insertAll(ctx context.Context, exec Execer, logs []*audit.Log) error {
	logQuery := s.dialect.rebind(insertLogQuery)
	changeQuery := s.dialect.rebind(insertChangeQuery)

	for _, log := range logs {
		if _, err := exec.ExecContext(ctx, logQuery,
			log.ID, log.EntityID, log.EntityName, log.State.String(),
			log.CorrelationID, log.SessionID, log.SnapshotID,
			log.CreatedAt, log.CreatorID,
		); err != nil {
			return fmt.Errorf("failed to insert audit log %s: %w", log.ID, err)
		}

		for _, change := range log.PropertyChanges {
			if _, err := exec.ExecContext(ctx, changeQuery,
				change.ID, change.AuditLogID, change.PropertyName, change.PropertyType,
				change.NewValue, change.OriginalValue, change.CreatedAt, change.CreatorID,
			); err != nil {
				return fmt.Errorf("failed to insert property change %s: %w", change.ID, err)
			}
		}
	}
	return nil
}

const selectLogColumns = `
	id, entity_id, entity_name, state,
	correlation_id, session_id, snapshot_id,
	created_at, creator_id
`

// GetByID returns one log with its property changes, or ErrNotFound
func (s *DBStore) GetByID(ctx context.Context, id string) (log *audit.Log, err error) {
	defer func(start time.Time) { s.metrics.ObserveStoreOperation("get_by_id", start, err) }(time.Now())

	query := s.dialect.rebind("SELECT " + selectLogColumns + " FROM audit_logs WHERE id = ?")
	row := s.db.QueryRowContext(ctx, query, id)

	log, err = scanLogRow(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}

	if err = s.attachPropertyChanges(ctx, []*audit.Log{log}); err != nil {
		return nil, err
	}
	return log, nil
}

// GetPage returns one page of filtered logs plus the total match count
func (s *DBStore) GetPage(ctx context.Context, filter ListFilter) (logs []*audit.Log, total int, err error) {
	defer func(start time.Time) { s.metrics.ObserveStoreOperation("get_page", start, err) }(time.Now())

	where, args := buildListWhere(filter)

	countQuery := s.dialect.rebind("SELECT COUNT(*) FROM audit_logs" + where)
	if err = s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count audit logs: %w", err)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	perPage := filter.PerPage
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}

	query := "SELECT " + selectLogColumns + " FROM audit_logs" + where +
		" ORDER BY " + sortClause(filter.SortBy, filter.SortOrder) +
		" LIMIT ? OFFSET ?"
	args = append(args, perPage, (page-1)*perPage)

	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query audit logs: %w", err)
	}
	defer rows.Close()

	logs, err = scanLogRows(rows)
	if err != nil {
		return nil, 0, err
	}

	if err = s.attachPropertyChanges(ctx, logs); err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}

// PropertyChangesFor returns a log's property changes ordered by property
// name
func (s *DBStore) PropertyChangesFor(ctx context.Context, auditLogID string) (changes []*audit.PropertyChange, err error) {
	defer func(start time.Time) { s.metrics.ObserveStoreOperation("property_changes_for", start, err) }(time.Now())

	query := s.dialect.rebind(`
		SELECT id, audit_log_id, property_name, property_type,
			new_value, original_value, created_at, creator_id
		FROM entity_property_changes
		WHERE audit_log_id = ?
		ORDER BY property_name ASC
	`)

	rows, err := s.db.QueryContext(ctx, query, auditLogID)
	if err != nil {
		return nil, fmt.Errorf("failed to query property changes: %w", err)
	}
	defer rows.Close()

	return scanChangeRows(rows)
}

// ListForAnalysis returns all matching logs with property changes eagerly
// loaded, ordered by creation time ascending
func (s *DBStore) ListForAnalysis(ctx context.Context, filter AnalysisFilter) (logs []*audit.Log, err error) {
	defer func(start time.Time) { s.metrics.ObserveStoreOperation("list_for_analysis", start, err) }(time.Now())

	var conditions []string
	var args []interface{}

	conditions = append(conditions, "created_at >= ?", "created_at <= ?")
	args = append(args, filter.StartDate, filter.EndDate)

	if filter.EntityID != "" {
		conditions = append(conditions, "entity_id = ?")
		args = append(args, filter.EntityID)
	}
	if filter.EntityName != "" {
		conditions = append(conditions, "entity_name = ?")
		args = append(args, filter.EntityName)
	}
	if len(filter.EntityNames) > 0 {
		conditions = append(conditions, "entity_name IN ("+placeholders(len(filter.EntityNames))+")")
		for _, name := range filter.EntityNames {
			args = append(args, name)
		}
	}
	if filter.CreatorID != "" {
		conditions = append(conditions, "creator_id = ?")
		args = append(args, filter.CreatorID)
	}
	if len(filter.States) > 0 {
		conditions = append(conditions, "state IN ("+placeholders(len(filter.States))+")")
		for _, state := range filter.States {
			args = append(args, state.String())
		}
	}

	query := "SELECT " + selectLogColumns + " FROM audit_logs WHERE " +
		strings.Join(conditions, " AND ") + " ORDER BY created_at ASC"

	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}
	defer rows.Close()

	logs, err = scanLogRows(rows)
	if err != nil {
		return nil, err
	}

	if err = s.attachPropertyChanges(ctx, logs); err != nil {
		return nil, err
	}
	return logs, nil
}

// DeleteOlderThan removes logs created before cutoff in batches. Property
// changes go with their logs via cascade. A batch failure stops the loop
// and reports the partial count alongside the error; cancellation between
// batches stops the loop and reports partial progress without error.
func (s *DBStore) DeleteOlderThan(ctx context.Context, cutoff time.Time, batchSize int, archive bool) (int, error) {
	if batchSize < 1 {
		batchSize = 100
	}

	selectQuery := s.dialect.rebind(
		"SELECT id FROM audit_logs WHERE created_at < ? ORDER BY created_at ASC LIMIT ?")

	total := 0
	batches := 0
	for {
		if ctx.Err() != nil {
			s.logInfo("cleanup cancelled", total)
			return total, nil
		}

		ids, err := s.selectBatchIDs(ctx, selectQuery, cutoff, batchSize)
		if err != nil {
			s.logBatchFailure(err, total)
			return total, err
		}
		if len(ids) == 0 {
			return total, nil
		}

		if archive && s.archiver != nil {
			if err := s.archiveBatch(ctx, ids); err != nil {
				s.logBatchFailure(err, total)
				return total, err
			}
		}

		deleted, err := s.deleteBatch(ctx, ids)
		if err != nil {
			s.logBatchFailure(err, total)
			return total, err
		}
		total += deleted
		if s.metrics != nil {
			s.metrics.CleanupDeletedTotal.Add(float64(deleted))
		}

		batches++
		if batches%cleanupPauseEvery == 0 {
			select {
			case <-time.After(cleanupPause):
			case <-ctx.Done():
				s.logInfo("cleanup cancelled", total)
				return total, nil
			}
		}
	}
}

func (s *DBStore) selectBatchIDs(ctx context.Context, query string, cutoff time.Time, batchSize int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, cutoff, batchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to select cleanup batch: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan cleanup batch: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *DBStore) archiveBatch(ctx context.Context, ids []string) error {
	logs, err := s.logsByIDs(ctx, ids)
	if err != nil {
		return err
	}
	if err := s.archiver.Archive(ctx, logs); err != nil {
		return fmt.Errorf("failed to archive cleanup batch: %w", err)
	}
	if s.metrics != nil {
		s.metrics.CleanupArchivedTotal.Add(float64(len(logs)))
	}
	return nil
}

func (s *DBStore) deleteBatch(ctx context.Context, ids []string) (int, error) {
	query := s.dialect.rebind(
		"DELETE FROM audit_logs WHERE id IN (" + placeholders(len(ids)) + ")")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete cleanup batch: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

func (s *DBStore) logsByIDs(ctx context.Context, ids []string) ([]*audit.Log, error) {
	query := "SELECT " + selectLogColumns + " FROM audit_logs WHERE id IN (" +
		placeholders(len(ids)) + ") ORDER BY created_at ASC"
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}
	defer rows.Close()

	logs, err := scanLogRows(rows)
	if err != nil {
		return nil, err
	}
	if err := s.attachPropertyChanges(ctx, logs); err != nil {
		return nil, err
	}
	return logs, nil
}

// attachPropertyChanges eagerly loads the property changes of the given
// logs in one query, ordered by property name within each log
func (s *DBStore) attachPropertyChanges(ctx context.Context, logs []*audit.Log) error {
	if len(logs) == 0 {
		return nil
	}

	byID := make(map[string]*audit.Log, len(logs))
	args := make([]interface{}, 0, len(logs))
	for _, log := range logs {
		byID[log.ID] = log
		args = append(args, log.ID)
	}

	query := s.dialect.rebind(`
		SELECT id, audit_log_id, property_name, property_type,
			new_value, original_value, created_at, creator_id
		FROM entity_property_changes
		WHERE audit_log_id IN (` + placeholders(len(logs)) + `)
		ORDER BY audit_log_id, property_name ASC
	`)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to query property changes: %w", err)
	}
	defer rows.Close()

	changes, err := scanChangeRows(rows)
	if err != nil {
		return err
	}

	for _, change := range changes {
		if log, ok := byID[change.AuditLogID]; ok {
			log.PropertyChanges = append(log.PropertyChanges, change)
		}
	}
	return nil
}

func (s *DBStore) logBatchFailure(err error, deletedSoFar int) {
	if s.metrics != nil {
		s.metrics.CleanupBatchFailures.Inc()
	}
	if s.logger != nil {
		s.logger.WithError(err).WithField("deleted", deletedSoFar).Error("cleanup batch failed")
	}
}

func (s *DBStore) logInfo(message string, deletedSoFar int) {
	if s.logger != nil {
		s.logger.WithField("deleted", deletedSoFar).Info(message)
	}
}

// buildListWhere translates a ListFilter into a WHERE clause
func buildListWhere(filter ListFilter) (string, []interface{}) {
	var conditions []string
	var args []interface{}

	add := func(condition string, value interface{}) {
		conditions = append(conditions, condition)
		args = append(args, value)
	}

	if filter.EntityID != "" {
		add("entity_id = ?", filter.EntityID)
	}
	if filter.EntityName != "" {
		add("entity_name = ?", filter.EntityName)
	}
	if filter.State != nil {
		add("state = ?", filter.State.String())
	}
	if filter.CreatorID != "" {
		add("creator_id = ?", filter.CreatorID)
	}
	if filter.CorrelationID != "" {
		add("correlation_id = ?", filter.CorrelationID)
	}
	if filter.SessionID != "" {
		add("session_id = ?", filter.SessionID)
	}
	if filter.SnapshotID != "" {
		add("snapshot_id = ?", filter.SnapshotID)
	}
	if filter.StartDate != nil {
		add("created_at >= ?", *filter.StartDate)
	}
	if filter.EndDate != nil {
		add("created_at <= ?", *filter.EndDate)
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

// sortColumns whitelists sortable columns to keep the ORDER BY clause safe
var sortColumns = map[string]string{
	"id":             "id",
	"entity_id":      "entity_id",
	"entity_name":    "entity_name",
	"state":          "state",
	"correlation_id": "correlation_id",
	"session_id":     "session_id",
	"snapshot_id":    "snapshot_id",
	"created_at":     "created_at",
	"creator_id":     "creator_id",
}

func sortClause(sortBy string, order SortOrder) string {
	column, ok := sortColumns[sortBy]
	if !ok {
		column = "created_at"
	}
	dir := "DESC"
	if order == SortAsc {
		dir = "ASC"
	}
	return column + " " + dir
}

// placeholders returns n comma-separated ? markers
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanLogRow(row rowScanner) (*audit.Log, error) {
	var log audit.Log
	var stateName string
	var correlationID, sessionID, snapshotID, creatorID sql.NullString

	err := row.Scan(
		&log.ID, &log.EntityID, &log.EntityName, &stateName,
		&correlationID, &sessionID, &snapshotID,
		&log.CreatedAt, &creatorID,
	)
	if err != nil {
		return nil, err
	}

	state, err := audit.ParseState(stateName)
	if err != nil {
		return nil, fmt.Errorf("failed to scan audit log %s: %w", log.ID, err)
	}
	log.State = state
	log.CorrelationID = nullableString(correlationID)
	log.SessionID = nullableString(sessionID)
	log.SnapshotID = nullableString(snapshotID)
	log.CreatorID = nullableString(creatorID)
	return &log, nil
}

func scanLogRows(rows *sql.Rows) ([]*audit.Log, error) {
	logs := make([]*audit.Log, 0)
	for rows.Next() {
		log, err := scanLogRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		logs = append(logs, log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit logs: %w", err)
	}
	return logs, nil
}

func scanChangeRows(rows *sql.Rows) ([]*audit.PropertyChange, error) {
	changes := make([]*audit.PropertyChange, 0)
	for rows.Next() {
		var change audit.PropertyChange
		var newValue, originalValue, creatorID sql.NullString

		err := rows.Scan(
			&change.ID, &change.AuditLogID, &change.PropertyName, &change.PropertyType,
			&newValue, &originalValue, &change.CreatedAt, &creatorID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan property change: %w", err)
		}

		change.NewValue = nullableString(newValue)
		change.OriginalValue = nullableString(originalValue)
		change.CreatorID = nullableString(creatorID)
		changes = append(changes, &change)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating property changes: %w", err)
	}
	return changes, nil
}

func nullableString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
