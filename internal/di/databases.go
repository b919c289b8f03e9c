package di

import (
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/foliorank/foliorank/internal/config"
	"github.com/foliorank/foliorank/internal/database"
)

// Databases groups the two SQLite databases by concern: the append-only
// audit ledger and the immutable dataset snapshots.
type Databases struct {
	Audit    *database.DB
	Datasets *database.DB
}

// OpenDatabases opens and migrates both databases under cfg.DataDir. The
// audit database runs the ledger profile (synchronous FULL, append-only
// workload); datasets use the standard profile.
func OpenDatabases(cfg *config.Config, log zerolog.Logger) (*Databases, error) {
	auditDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "audit.db"),
		Profile: database.ProfileLedger,
		Name:    "audit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}
	if err := auditDB.Migrate(); err != nil {
		auditDB.Close()
		return nil, fmt.Errorf("failed to migrate audit database: %w", err)
	}

	datasetsDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "datasets.db"),
		Profile: database.ProfileStandard,
		Name:    "datasets",
	})
	if err != nil {
		auditDB.Close()
		return nil, fmt.Errorf("failed to open datasets database: %w", err)
	}
	if err := datasetsDB.Migrate(); err != nil {
		auditDB.Close()
		datasetsDB.Close()
		return nil, fmt.Errorf("failed to migrate datasets database: %w", err)
	}

	log.Info().Str("data_dir", cfg.DataDir).Msg("Databases opened")

	return &Databases{Audit: auditDB, Datasets: datasetsDB}, nil
}

// Close closes both databases, returning the first error seen.
func (d *Databases) Close() error {
	var firstErr error
	if err := d.Audit.Close(); err != nil {
		firstErr = err
	}
	if err := d.Datasets.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
