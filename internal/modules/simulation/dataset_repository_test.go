package simulation

import (
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foliorank/foliorank/internal/database"
	"github.com/foliorank/foliorank/internal/domain"
)

func newTestRepository(t *testing.T) *DatasetRepository {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()),
		Profile: database.ProfileStandard,
		Name:    "datasets",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate())
	return NewDatasetRepository(db.Conn(), zerolog.Nop())
}

func TestDatasetRepository_SeedAndRead(t *testing.T) {
	repo := newTestRepository(t)
	require.NoError(t, repo.SeedBuiltins())

	// Seeding twice leaves the published snapshots untouched.
	require.NoError(t, repo.SeedBuiltins())

	versions, err := repo.Versions()
	require.NoError(t, err)
	assert.Equal(t, []string{"v1.0", "v1.1"}, versions)

	d, err := repo.Read("v1.1")
	require.NoError(t, err)
	assert.Equal(t, 0.25, d.DefaultCorrelation)
	assert.Equal(t, 0.85, d.Corr("small_cap", "large_cap"))

	_, err = repo.Read("v9.9")
	var unknown *domain.UnknownDatasetError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "v9.9", unknown.DatasetVersion)
}

func TestDatasetRepository_RejectsUnknownCorrelationAsset(t *testing.T) {
	repo := newTestRepository(t)

	bad := &Dataset{
		Version: "v8.0",
		Assets: map[string]AssetParams{
			"large_cap": {ExpectedReturn: 8.0, Volatility: 18.0},
			"gov_bonds": {ExpectedReturn: 2.0, Volatility: 1.5},
		},
		DefaultCorrelation: 0.25,
		Correlations: map[string]float64{
			CorrelationKey("large_cap", "crypto"): 0.5,
		},
	}
	require.NoError(t, repo.Save(bad))

	_, err := repo.Read("v8.0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown asset "crypto"`)
}
