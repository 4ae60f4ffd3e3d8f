package store

// Dialect selects the SQL flavor the store speaks
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// postgresSchema creates the audit tables on PostgreSQL
const postgresSchema = `
CREATE TABLE IF NOT EXISTS audit_logs (
	id VARCHAR(36) PRIMARY KEY,
	entity_id VARCHAR(255) NOT NULL,
	entity_name VARCHAR(255) NOT NULL,
	state VARCHAR(20) NOT NULL,
	correlation_id VARCHAR(64),
	session_id VARCHAR(64),
	snapshot_id VARCHAR(64),
	created_at TIMESTAMP WITH TIME ZONE NOT NULL,
	creator_id VARCHAR(64)
);

CREATE TABLE IF NOT EXISTS entity_property_changes (
	id VARCHAR(36) PRIMARY KEY,
	audit_log_id VARCHAR(36) NOT NULL REFERENCES audit_logs(id) ON DELETE CASCADE,
	property_name VARCHAR(255) NOT NULL,
	property_type VARCHAR(255) NOT NULL,
	new_value TEXT,
	original_value TEXT,
	created_at TIMESTAMP WITH TIME ZONE NOT NULL,
	creator_id VARCHAR(64)
);

-- Indexes for the filtered listing and analytics lookups
CREATE INDEX IF NOT EXISTS idx_audit_logs_entity_id ON audit_logs(entity_id);
CREATE INDEX IF NOT EXISTS idx_audit_logs_entity_name ON audit_logs(entity_name);
CREATE INDEX IF NOT EXISTS idx_audit_logs_state ON audit_logs(state);
CREATE INDEX IF NOT EXISTS idx_audit_logs_correlation_id ON audit_logs(correlation_id);
CREATE INDEX IF NOT EXISTS idx_audit_logs_session_id ON audit_logs(session_id);
CREATE INDEX IF NOT EXISTS idx_audit_logs_snapshot_id ON audit_logs(snapshot_id);
CREATE INDEX IF NOT EXISTS idx_audit_logs_created_at ON audit_logs(created_at);
CREATE INDEX IF NOT EXISTS idx_audit_logs_creator_id ON audit_logs(creator_id);
CREATE INDEX IF NOT EXISTS idx_entity_property_changes_audit_log_id ON entity_property_changes(audit_log_id);
`

// sqliteSchema creates the audit tables on SQLite. Cascade deletes require
// the connection to enable foreign keys (dsn option _foreign_keys=on).
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS audit_logs (
	id TEXT PRIMARY KEY,
	entity_id TEXT NOT NULL,
	entity_name TEXT NOT NULL,
	state TEXT NOT NULL,
	correlation_id TEXT,
	session_id TEXT,
	snapshot_id TEXT,
	created_at TIMESTAMP NOT NULL,
	creator_id TEXT
);

CREATE TABLE IF NOT EXISTS entity_property_changes (
	id TEXT PRIMARY KEY,
	audit_log_id TEXT NOT NULL REFERENCES audit_logs(id) ON DELETE CASCADE,
	property_name TEXT NOT NULL,
	property_type TEXT NOT NULL,
	new_value TEXT,
	original_value TEXT,
	created_at TIMESTAMP NOT NULL,
	creator_id TEXT
);

CREATE INDEX IF NOT EXISTS idx_audit_logs_entity_id ON audit_logs(entity_id);
CREATE INDEX IF NOT EXISTS idx_audit_logs_entity_name ON audit_logs(entity_name);
CREATE INDEX IF NOT EXISTS idx_audit_logs_state ON audit_logs(state);
CREATE INDEX IF NOT EXISTS idx_audit_logs_correlation_id ON audit_logs(correlation_id);
CREATE INDEX IF NOT EXISTS idx_audit_logs_session_id ON audit_logs(session_id);
CREATE INDEX IF NOT EXISTS idx_audit_logs_snapshot_id ON audit_logs(snapshot_id);
CREATE INDEX IF NOT EXISTS idx_audit_logs_created_at ON audit_logs(created_at);
CREATE INDEX IF NOT EXISTS idx_audit_logs_creator_id ON audit_logs(creator_id);
CREATE INDEX IF NOT EXISTS idx_entity_property_changes_audit_log_id ON entity_property_changes(audit_log_id);
`

// schema returns the DDL for the dialect
func (d Dialect) schema() string {
	if d == DialectSQLite {
		return sqliteSchema
	}
	return postgresSchema
}

// rebind rewrites ? placeholders into the dialect's positional form.
// Queries in this package are written with ?; PostgreSQL needs $N.
func (d Dialect) rebind(query string) string {
	if d != DialectPostgres {
		return query
	}
	out := make([]byte, 0, len(query)+8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] != '?' {
			out = append(out, query[i])
			continue
		}
		n++
		out = append(out, '$')
		out = appendInt(out, n)
	}
	return string(out)
}

func appendInt(b []byte, n int) []byte {
	if n >= 10 {
		b = appendInt(b, n/10)
	}
	return append(b, byte('0'+n%10))
}
