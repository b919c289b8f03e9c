package simulation

import (
	"github.com/foliorank/foliorank/internal/domain"
)

// MemoryStore holds datasets in memory. Seeded once at construction and
// immutable afterwards; safe for concurrent reads.
type MemoryStore struct {
	datasets map[string]*Dataset
}

// NewMemoryStore creates a store holding the given datasets.
func NewMemoryStore(datasets ...*Dataset) *MemoryStore {
	s := &MemoryStore{datasets: make(map[string]*Dataset, len(datasets))}
	for _, d := range datasets {
		s.datasets[d.Version] = d
	}
	return s
}

// Read returns the dataset for a version.
func (s *MemoryStore) Read(version string) (*Dataset, error) {
	d, ok := s.datasets[version]
	if !ok {
		return nil, &domain.UnknownDatasetError{DatasetVersion: version}
	}
	return d, nil
}

// Versions returns the available dataset versions.
func (s *MemoryStore) Versions() []string {
	versions := make([]string, 0, len(s.datasets))
	for v := range s.datasets {
		versions = append(versions, v)
	}
	return versions
}

// BuiltinDatasets returns the dataset snapshots shipped with the binary.
//
// v1.0 is the reference snapshot: three broad asset classes with unit
// pairwise correlation, so portfolio volatility reduces to the weighted
// sum of per-asset volatilities.
//
// v1.1 widens the universe and carries an explicit correlation table.
func BuiltinDatasets() []*Dataset {
	v10 := &Dataset{
		Version: "v1.0",
		Assets: map[string]AssetParams{
			"large_cap": {ExpectedReturn: 8.0, Volatility: 18.0},
			"gov_bonds": {ExpectedReturn: 2.0, Volatility: 1.5},
			"cash":      {ExpectedReturn: 0.0, Volatility: 0.0},
		},
		DefaultCorrelation: 1.0,
		Correlations:       map[string]float64{},
	}

	v11 := &Dataset{
		Version: "v1.1",
		Assets: map[string]AssetParams{
			"large_cap":   {ExpectedReturn: 8.0, Volatility: 18.0},
			"small_cap":   {ExpectedReturn: 10.5, Volatility: 24.0},
			"intl_equity": {ExpectedReturn: 7.0, Volatility: 20.0},
			"gov_bonds":   {ExpectedReturn: 2.0, Volatility: 1.5},
			"corp_bonds":  {ExpectedReturn: 3.2, Volatility: 5.0},
			"reits":       {ExpectedReturn: 6.5, Volatility: 17.0},
			"gold":        {ExpectedReturn: 4.0, Volatility: 15.0},
			"cash":        {ExpectedReturn: 0.0, Volatility: 0.0},
		},
		DefaultCorrelation: 0.25,
		Correlations: map[string]float64{
			CorrelationKey("large_cap", "small_cap"):   0.85,
			CorrelationKey("large_cap", "intl_equity"): 0.75,
			CorrelationKey("small_cap", "intl_equity"): 0.70,
			CorrelationKey("gov_bonds", "corp_bonds"):  0.60,
			CorrelationKey("large_cap", "gov_bonds"):   -0.10,
			CorrelationKey("large_cap", "gold"):        -0.05,
			CorrelationKey("large_cap", "reits"):       0.65,
		},
	}

	return []*Dataset{v10, v11}
}
