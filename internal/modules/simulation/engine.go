package simulation

import (
	"fmt"
	"math"

	"github.com/foliorank/foliorank/internal/domain"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
)

// EngineVersion tags results with the frozen computation: ordered weighted
// sum for return, full covariance quadratic form for volatility, metrics
// rounded to four decimal places. Any change to the formula or the
// rounding rule requires a new version string.
const EngineVersion = "sim_v1"

// Store is the immutable, versioned dataset collaborator.
type Store interface {
	// Read returns the dataset for a version, or *domain.UnknownDatasetError.
	Read(version string) (*Dataset, error)
}

// Engine computes simulation metrics. Stateless and safe for concurrent
// use; all state lives in the dataset store.
type Engine struct {
	store Store
	log   zerolog.Logger
}

// NewEngine creates a simulation engine over a dataset store.
func NewEngine(store Store, log zerolog.Logger) *Engine {
	return &Engine{
		store: store,
		log:   log.With().Str("service", "simulation").Logger(),
	}
}

// Simulate derives the result metrics for a validated spec against one
// dataset version. Expected return is the weighted sum of per-asset
// returns; volatility is sqrt of the quadratic form over per-asset
// volatilities and pairwise correlations. Both loops follow the spec's
// declared asset order.
func (e *Engine) Simulate(spec domain.PortfolioSpec, datasetVersion string) (*domain.SimulationResult, error) {
	dataset, err := e.store.Read(datasetVersion)
	if err != nil {
		return nil, err
	}

	for _, asset := range spec.Assets {
		if _, ok := dataset.Assets[asset.Symbol]; !ok {
			return nil, &domain.SimulationError{
				DatasetVersion: datasetVersion,
				Detail:         fmt.Sprintf("asset %q not present in dataset", asset.Symbol),
			}
		}
	}

	n := len(spec.Assets)
	weights := make([]float64, n)
	sigmas := make([]float64, n)

	expectedReturn := 0.0
	for i, asset := range spec.Assets {
		params := dataset.Assets[asset.Symbol]
		weights[i] = asset.Weight
		sigmas[i] = params.Volatility
		expectedReturn += asset.Weight * params.ExpectedReturn
	}

	// Correlation matrix in spec order. SymDense storage is dense and
	// indexed, so reads below happen in the exact loop order written.
	corr := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			corr.SetSym(i, j, dataset.Corr(spec.Assets[i].Symbol, spec.Assets[j].Symbol))
		}
	}

	variance := 0.0
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			variance += weights[i] * weights[j] * sigmas[i] * sigmas[j] * corr.At(i, j)
		}
	}
	if variance < 0 {
		// Guard against tiny negative values from float cancellation with
		// strongly negative correlations.
		variance = 0
	}
	volatility := math.Sqrt(variance)

	ref, err := domain.HashPayload(spec)
	if err != nil {
		return nil, fmt.Errorf("failed to hash portfolio spec: %w", err)
	}

	result := &domain.SimulationResult{
		PortfolioRef:   ref,
		DatasetVersion: datasetVersion,
		ExpectedReturn: round4(expectedReturn),
		Volatility:     round4(volatility),
		TimeHorizon:    horizonFor(spec.Constraints),
		EngineVersion:  EngineVersion,
	}

	e.log.Debug().
		Str("portfolio_ref", ref).
		Str("dataset_version", datasetVersion).
		Float64("expected_return", result.ExpectedReturn).
		Float64("volatility", result.Volatility).
		Msg("Simulation completed")

	return result, nil
}

// horizonFor maps the horizon_years constraint onto the horizon enum:
// under 3 years short, 3 to 7 medium, over 7 long. Absent means medium.
func horizonFor(constraints domain.Constraints) domain.TimeHorizon {
	years, ok := constraints.HorizonYears()
	if !ok {
		return domain.HorizonMediumTerm
	}
	switch {
	case years < 3:
		return domain.HorizonShortTerm
	case years <= 7:
		return domain.HorizonMediumTerm
	default:
		return domain.HorizonLongTerm
	}
}

// round4 applies the fixed rounding rule of EngineVersion.
func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
