package simulation

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foliorank/foliorank/internal/domain"
)

func balancedSpec() domain.PortfolioSpec {
	return domain.PortfolioSpec{
		Name: "balanced",
		Assets: []domain.Asset{
			{Symbol: "large_cap", Weight: 0.5},
			{Symbol: "gov_bonds", Weight: 0.4},
			{Symbol: "cash", Weight: 0.1},
		},
		Constraints: domain.Constraints{
			MaxWeight: 0.6,
			Extra:     map[string]float64{"horizon_years": 10},
		},
	}
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	return NewEngine(NewMemoryStore(BuiltinDatasets()...), zerolog.Nop())
}

func TestSimulateBalancedReference(t *testing.T) {
	engine := newTestEngine(t)

	result, err := engine.Simulate(balancedSpec(), "v1.0")
	require.NoError(t, err)

	// 0.5*8.0 + 0.4*2.0 + 0.1*0.0 = 4.8; with unit correlation the
	// volatility collapses to 0.5*18.0 + 0.4*1.5 = 9.6.
	assert.Equal(t, 4.8, result.ExpectedReturn)
	assert.Equal(t, 9.6, result.Volatility)
	assert.Equal(t, domain.HorizonLongTerm, result.TimeHorizon)
	assert.Equal(t, "v1.0", result.DatasetVersion)
	assert.Equal(t, EngineVersion, result.EngineVersion)
	assert.NotEmpty(t, result.PortfolioRef)
}

func TestSimulateDeterministic(t *testing.T) {
	engine := newTestEngine(t)
	spec := balancedSpec()

	first, err := engine.Simulate(spec, "v1.1")
	require.NoError(t, err)
	second, err := engine.Simulate(spec, "v1.1")
	require.NoError(t, err)

	firstJSON, err := domain.CanonicalJSON(first)
	require.NoError(t, err)
	secondJSON, err := domain.CanonicalJSON(second)
	require.NoError(t, err)
	assert.Equal(t, firstJSON, secondJSON)
}

func TestSimulateUnknownDataset(t *testing.T) {
	engine := newTestEngine(t)

	_, err := engine.Simulate(balancedSpec(), "v9.9")
	var unknownErr *domain.UnknownDatasetError
	require.ErrorAs(t, err, &unknownErr)
	assert.Equal(t, "v9.9", unknownErr.DatasetVersion)
}

func TestSimulateAssetMissingFromDataset(t *testing.T) {
	engine := newTestEngine(t)

	spec := domain.PortfolioSpec{
		Name: "exotic",
		Assets: []domain.Asset{
			{Symbol: "large_cap", Weight: 0.5},
			{Symbol: "crypto", Weight: 0.5},
		},
	}

	_, err := engine.Simulate(spec, "v1.0")
	var simErr *domain.SimulationError
	require.ErrorAs(t, err, &simErr)
	assert.Contains(t, simErr.Detail, "crypto")
}

func TestSimulateNegativeCorrelationReducesVolatility(t *testing.T) {
	engine := newTestEngine(t)

	spec := domain.PortfolioSpec{
		Name: "hedged",
		Assets: []domain.Asset{
			{Symbol: "large_cap", Weight: 0.5},
			{Symbol: "gov_bonds", Weight: 0.5},
		},
	}

	result, err := engine.Simulate(spec, "v1.1")
	require.NoError(t, err)

	// With rho = -0.10 the cross term subtracts, so the portfolio sits
	// below the weighted sum of volatilities (0.5*18.0 + 0.5*1.5 = 9.75).
	assert.Less(t, result.Volatility, 9.75)
	assert.Greater(t, result.Volatility, 0.0)
}

func TestHorizonMapping(t *testing.T) {
	cases := []struct {
		name  string
		extra map[string]float64
		want  domain.TimeHorizon
	}{
		{"absent defaults to medium", nil, domain.HorizonMediumTerm},
		{"one year is short", map[string]float64{"horizon_years": 1}, domain.HorizonShortTerm},
		{"just under three is short", map[string]float64{"horizon_years": 2.9}, domain.HorizonShortTerm},
		{"three is medium", map[string]float64{"horizon_years": 3}, domain.HorizonMediumTerm},
		{"seven is medium", map[string]float64{"horizon_years": 7}, domain.HorizonMediumTerm},
		{"above seven is long", map[string]float64{"horizon_years": 7.5}, domain.HorizonLongTerm},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := horizonFor(domain.Constraints{Extra: tc.extra})
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestServiceCachesPerSpecAndDataset(t *testing.T) {
	store := NewMemoryStore(BuiltinDatasets()...)
	counting := &countingStore{inner: store}
	engine := NewEngine(counting, zerolog.Nop())
	svc := NewService(engine, zerolog.Nop())

	spec := balancedSpec()

	first, err := svc.Simulate(spec, "v1.0")
	require.NoError(t, err)
	second, err := svc.Simulate(spec, "v1.0")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, counting.reads, "identical pair must compute once")

	// A different dataset version is a different pair.
	_, err = svc.Simulate(spec, "v1.1")
	require.NoError(t, err)
	assert.Equal(t, 2, counting.reads)
}

func TestServiceDoesNotCacheErrors(t *testing.T) {
	store := NewMemoryStore(BuiltinDatasets()...)
	counting := &countingStore{inner: store}
	svc := NewService(NewEngine(counting, zerolog.Nop()), zerolog.Nop())

	_, err := svc.Simulate(balancedSpec(), "v9.9")
	require.Error(t, err)
	_, err = svc.Simulate(balancedSpec(), "v9.9")
	require.Error(t, err)
	assert.Equal(t, 2, counting.reads)
}

type countingStore struct {
	inner *MemoryStore
	reads int
}

func (c *countingStore) Read(version string) (*Dataset, error) {
	c.reads++
	return c.inner.Read(version)
}
