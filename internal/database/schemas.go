package database

// Embedded schema definitions, one per database. Each schema is idempotent
// (CREATE IF NOT EXISTS) so Migrate can run on every startup.

const auditSchema = `
CREATE TABLE IF NOT EXISTS audit_entries (
    idx             INTEGER PRIMARY KEY,
    input_hash      TEXT NOT NULL,
    output_hash     TEXT NOT NULL,
    action          TEXT NOT NULL,
    policy_version  TEXT NOT NULL,
    timestamp       TEXT NOT NULL,
    monotonic       INTEGER NOT NULL,
    prev_entry_hash TEXT NOT NULL,
    entry_hash      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_entries_action ON audit_entries(action);
CREATE INDEX IF NOT EXISTS idx_audit_entries_entry_hash ON audit_entries(entry_hash);
`

const datasetsSchema = `
CREATE TABLE IF NOT EXISTS datasets (
    version             TEXT PRIMARY KEY,
    default_correlation REAL NOT NULL,
    params              BLOB NOT NULL,
    correlations        BLOB NOT NULL,
    created_at          INTEGER NOT NULL
);
`

// schemaFor maps database names to their embedded schema
func schemaFor(name string) (string, bool) {
	switch name {
	case "audit":
		return auditSchema, true
	case "datasets":
		return datasetsSchema, true
	default:
		return "", false
	}
}
