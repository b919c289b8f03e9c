package audit

import (
	"database/sql"
	"fmt"

	"github.com/foliorank/foliorank/internal/domain"
	"github.com/rs/zerolog"
)

// SQLRepository persists the chain in the audit database (ledger profile:
// synchronous FULL, append-only). It implements only append and ordered
// read; there is deliberately no update or delete.
type SQLRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewSQLRepository creates a repository over the audit database.
func NewSQLRepository(db *sql.DB, log zerolog.Logger) *SQLRepository {
	return &SQLRepository{
		db:  db,
		log: log.With().Str("repository", "audit").Logger(),
	}
}

// Append inserts one entry. The primary key on idx makes double-appends
// at the same index fail loudly instead of silently forking the chain.
func (r *SQLRepository) Append(entry domain.AuditEntry) error {
	_, err := r.db.Exec(`
		INSERT INTO audit_entries
		(idx, input_hash, output_hash, action, policy_version, timestamp, monotonic, prev_entry_hash, entry_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		entry.Index,
		entry.InputHash,
		entry.OutputHash,
		string(entry.Action),
		entry.PolicyVersion,
		entry.Timestamp,
		entry.Monotonic,
		entry.PrevEntryHash,
		entry.EntryHash,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

// List returns all entries in chain order.
func (r *SQLRepository) List() ([]domain.AuditEntry, error) {
	rows, err := r.db.Query(`
		SELECT idx, input_hash, output_hash, action, policy_version, timestamp, monotonic, prev_entry_hash, entry_hash
		FROM audit_entries
		ORDER BY idx ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.AuditEntry
	for rows.Next() {
		var entry domain.AuditEntry
		var action string
		if err := rows.Scan(
			&entry.Index,
			&entry.InputHash,
			&entry.OutputHash,
			&action,
			&entry.PolicyVersion,
			&entry.Timestamp,
			&entry.Monotonic,
			&entry.PrevEntryHash,
			&entry.EntryHash,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entry.Action = domain.Action(action)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// ReadRange returns entries with from <= idx < to, in chain order.
func (r *SQLRepository) ReadRange(from, to int64) ([]domain.AuditEntry, error) {
	rows, err := r.db.Query(`
		SELECT idx, input_hash, output_hash, action, policy_version, timestamp, monotonic, prev_entry_hash, entry_hash
		FROM audit_entries
		WHERE idx >= ? AND idx < ?
		ORDER BY idx ASC
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit range: %w", err)
	}
	defer rows.Close()

	var entries []domain.AuditEntry
	for rows.Next() {
		var entry domain.AuditEntry
		var action string
		if err := rows.Scan(
			&entry.Index,
			&entry.InputHash,
			&entry.OutputHash,
			&action,
			&entry.PolicyVersion,
			&entry.Timestamp,
			&entry.Monotonic,
			&entry.PrevEntryHash,
			&entry.EntryHash,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entry.Action = domain.Action(action)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Last returns the newest entry, or nil for an empty chain.
func (r *SQLRepository) Last() (*domain.AuditEntry, error) {
	row := r.db.QueryRow(`
		SELECT idx, input_hash, output_hash, action, policy_version, timestamp, monotonic, prev_entry_hash, entry_hash
		FROM audit_entries
		ORDER BY idx DESC
		LIMIT 1
	`)

	var entry domain.AuditEntry
	var action string
	err := row.Scan(
		&entry.Index,
		&entry.InputHash,
		&entry.OutputHash,
		&action,
		&entry.PolicyVersion,
		&entry.Timestamp,
		&entry.Monotonic,
		&entry.PrevEntryHash,
		&entry.EntryHash,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger tail: %w", err)
	}
	entry.Action = domain.Action(action)
	return &entry, nil
}

// Count returns the number of persisted entries.
func (r *SQLRepository) Count() (int64, error) {
	var count int64
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM audit_entries`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count audit entries: %w", err)
	}
	return count, nil
}
