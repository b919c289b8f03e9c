package planning

import (
	"context"
	"strings"

	"github.com/foliorank/foliorank/internal/domain"
	"github.com/foliorank/foliorank/internal/modules/mcp"
	"github.com/foliorank/foliorank/internal/modules/schemas"
)

// StubGenerator maps briefs onto fixed allocation templates. It is
// deterministic: the same brief always yields the same spec, so planned
// portfolios hash identically across runs.
type StubGenerator struct{}

// NewStubGenerator creates the template-based generator.
func NewStubGenerator() *StubGenerator {
	return &StubGenerator{}
}

// Generate selects a template by keyword. Aggressive or growth briefs get
// the equity-heavy split, conservative or bond briefs the defensive one,
// everything else the balanced default.
func (g *StubGenerator) Generate(_ context.Context, _ domain.Action, prompt string) (mcp.Payload, error) {
	lower := strings.ToLower(prompt)

	var spec domain.PortfolioSpec
	switch {
	case strings.Contains(lower, "aggressive") || strings.Contains(lower, "growth"):
		spec = domain.PortfolioSpec{
			Name: "aggressive_growth",
			Assets: []domain.Asset{
				{Symbol: "large_cap", Weight: 0.7},
				{Symbol: "gov_bonds", Weight: 0.2},
				{Symbol: "cash", Weight: 0.1},
			},
		}
	case strings.Contains(lower, "conservative") || strings.Contains(lower, "bond"):
		spec = domain.PortfolioSpec{
			Name: "conservative_income",
			Assets: []domain.Asset{
				{Symbol: "large_cap", Weight: 0.2},
				{Symbol: "gov_bonds", Weight: 0.6},
				{Symbol: "cash", Weight: 0.2},
			},
		}
	default:
		spec = domain.PortfolioSpec{
			Name: "balanced",
			Assets: []domain.Asset{
				{Symbol: "large_cap", Weight: 0.5},
				{Symbol: "gov_bonds", Weight: 0.4},
				{Symbol: "cash", Weight: 0.1},
			},
		}
	}
	spec.Constraints = domain.Constraints{
		MaxWeight: defaultMaxWeight(spec),
		Extra:     map[string]float64{"horizon_years": 10},
	}

	return mcp.Payload{
		Structured:    spec,
		SchemaID:      schemas.SchemaPortfolio,
		SchemaVersion: schemas.VersionPortfolioV1,
	}, nil
}

// defaultMaxWeight caps single positions just above the template's
// largest weight so the cap binds without invalidating the template.
func defaultMaxWeight(spec domain.PortfolioSpec) float64 {
	max := 0.0
	for _, asset := range spec.Assets {
		if asset.Weight > max {
			max = asset.Weight
		}
	}
	if max <= 0.6 {
		return 0.6
	}
	return max
}
