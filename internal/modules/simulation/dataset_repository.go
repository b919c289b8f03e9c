package simulation

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/foliorank/foliorank/internal/domain"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// DatasetRepository persists dataset snapshots in the datasets database.
// Asset parameters and correlation tables are stored as msgpack blobs;
// a version row is written once and never updated.
type DatasetRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewDatasetRepository creates a repository over the datasets database.
func NewDatasetRepository(db *sql.DB, log zerolog.Logger) *DatasetRepository {
	return &DatasetRepository{
		db:  db,
		log: log.With().Str("repository", "datasets").Logger(),
	}
}

// Read loads one dataset version. Implements the engine's Store contract.
func (r *DatasetRepository) Read(version string) (*Dataset, error) {
	row := r.db.QueryRow(`
		SELECT version, default_correlation, params, correlations
		FROM datasets
		WHERE version = ?
	`, version)

	var (
		d          Dataset
		paramsBlob []byte
		corrBlob   []byte
	)
	err := row.Scan(&d.Version, &d.DefaultCorrelation, &paramsBlob, &corrBlob)
	if err == sql.ErrNoRows {
		return nil, &domain.UnknownDatasetError{DatasetVersion: version}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset %s: %w", version, err)
	}

	if err := msgpack.Unmarshal(paramsBlob, &d.Assets); err != nil {
		return nil, fmt.Errorf("failed to decode dataset %s params: %w", version, err)
	}
	if err := msgpack.Unmarshal(corrBlob, &d.Correlations); err != nil {
		return nil, fmt.Errorf("failed to decode dataset %s correlations: %w", version, err)
	}

	// Persisted correlation keys must name two known assets.
	for key := range d.Correlations {
		a, b := splitCorrelationKey(key)
		if _, ok := d.Assets[a]; !ok {
			return nil, fmt.Errorf("dataset %s: correlation key %q references unknown asset %q", version, key, a)
		}
		if _, ok := d.Assets[b]; !ok {
			return nil, fmt.Errorf("dataset %s: correlation key %q references unknown asset %q", version, key, b)
		}
	}
	return &d, nil
}

// Save persists a dataset snapshot. Existing versions are left untouched:
// datasets are immutable once published.
func (r *DatasetRepository) Save(d *Dataset) error {
	paramsBlob, err := msgpack.Marshal(d.Assets)
	if err != nil {
		return fmt.Errorf("failed to encode dataset %s params: %w", d.Version, err)
	}
	corrBlob, err := msgpack.Marshal(d.Correlations)
	if err != nil {
		return fmt.Errorf("failed to encode dataset %s correlations: %w", d.Version, err)
	}

	_, err = r.db.Exec(`
		INSERT OR IGNORE INTO datasets (version, default_correlation, params, correlations, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, d.Version, d.DefaultCorrelation, paramsBlob, corrBlob, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to save dataset %s: %w", d.Version, err)
	}
	return nil
}

// Versions lists the persisted dataset versions in lexicographic order.
func (r *DatasetRepository) Versions() ([]string, error) {
	rows, err := r.db.Query(`SELECT version FROM datasets ORDER BY version ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list dataset versions: %w", err)
	}
	defer rows.Close()

	var versions []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan dataset version: %w", err)
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// SeedBuiltins writes the built-in snapshots if they are not yet present.
func (r *DatasetRepository) SeedBuiltins() error {
	for _, d := range BuiltinDatasets() {
		if err := r.Save(d); err != nil {
			return err
		}
	}
	r.log.Debug().Msg("Built-in datasets seeded")
	return nil
}
