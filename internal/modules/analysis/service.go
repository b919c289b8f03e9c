// Package analysis produces gated, descriptive views of dataset
// parameters and simulation results. All prose is rendered from neutral
// templates and passes the enforcement gate before leaving the service.
package analysis

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/foliorank/foliorank/internal/domain"
	"github.com/foliorank/foliorank/internal/modules/mcp"
	"github.com/foliorank/foliorank/internal/modules/simulation"
)

// MarketReport is the descriptive summary of one dataset version.
type MarketReport struct {
	DatasetVersion     string  `json:"dataset_version"`
	AssetCount         int     `json:"asset_count"`
	MeanExpectedReturn float64 `json:"mean_expected_return"`
	ReturnStdDev       float64 `json:"return_std_dev"`
	MeanVolatility     float64 `json:"mean_volatility"`
	VolatilityStdDev   float64 `json:"volatility_std_dev"`
	HighestReturnAsset string  `json:"highest_return_asset"`
	LowestRiskAsset    string  `json:"lowest_risk_asset"`
	Narrative          string  `json:"narrative"`
}

// Service computes dataset statistics and renders gated narratives.
type Service struct {
	store simulation.Store
	gate  *mcp.Gate
	log   zerolog.Logger
}

// NewService creates an analysis service.
func NewService(store simulation.Store, gate *mcp.Gate, log zerolog.Logger) *Service {
	return &Service{
		store: store,
		gate:  gate,
		log:   log.With().Str("service", "analysis").Logger(),
	}
}

// AnalyzeMarket summarizes a dataset version. Statistics run over the
// dataset's sorted symbol order so repeated calls are byte-identical.
func (s *Service) AnalyzeMarket(datasetVersion string) (*MarketReport, error) {
	dataset, err := s.store.Read(datasetVersion)
	if err != nil {
		return nil, err
	}

	symbols := dataset.Symbols()
	if len(symbols) == 0 {
		return nil, &domain.SimulationError{DatasetVersion: datasetVersion, Detail: "dataset has no assets"}
	}
	returns := make([]float64, len(symbols))
	vols := make([]float64, len(symbols))
	highestReturn, lowestRisk := symbols[0], symbols[0]
	for i, symbol := range symbols {
		params := dataset.Assets[symbol]
		returns[i] = params.ExpectedReturn
		vols[i] = params.Volatility
		if params.ExpectedReturn > dataset.Assets[highestReturn].ExpectedReturn {
			highestReturn = symbol
		}
		if params.Volatility < dataset.Assets[lowestRisk].Volatility {
			lowestRisk = symbol
		}
	}

	report := &MarketReport{
		DatasetVersion:     datasetVersion,
		AssetCount:         len(symbols),
		MeanExpectedReturn: round4(stat.Mean(returns, nil)),
		ReturnStdDev:       round4(sampleStdDev(returns)),
		MeanVolatility:     round4(stat.Mean(vols, nil)),
		VolatilityStdDev:   round4(sampleStdDev(vols)),
		HighestReturnAsset: highestReturn,
		LowestRiskAsset:    lowestRisk,
	}
	report.Narrative = fmt.Sprintf(
		"Dataset %s covers %d asset classes with a mean expected return of %.2f%% and mean volatility of %.2f%%. "+
			"The highest modeled return belongs to %s and the lowest modeled volatility to %s. "+
			"All figures are historical model parameters, not forecasts.",
		report.DatasetVersion, report.AssetCount,
		report.MeanExpectedReturn, report.MeanVolatility,
		report.HighestReturnAsset, report.LowestRiskAsset,
	)

	decision, err := s.gate.CheckOutput(domain.ActionMarketAnalysis, mcp.Payload{
		Text:       report.Narrative,
		Structured: report,
	})
	if err != nil {
		return nil, err
	}
	report.Narrative = decision.Payload.Text

	s.log.Debug().
		Str("dataset_version", datasetVersion).
		Int("assets", report.AssetCount).
		Msg("Market analysis completed")

	return report, nil
}

// Explain renders the neutral explanation of one simulation result and
// gates it under the explanation action.
func (s *Service) Explain(portfolioName string, result domain.SimulationResult) (string, error) {
	text := fmt.Sprintf(
		"Simulation of portfolio %q against dataset %s produced an expected return of %.1f%% "+
			"with volatility of %.1f%% over a %s horizon. "+
			"These values are deterministic model outputs and carry no predictive claim.",
		portfolioName, result.DatasetVersion,
		result.ExpectedReturn, result.Volatility, result.TimeHorizon,
	)

	decision, err := s.gate.CheckOutput(domain.ActionExplanation, mcp.Payload{Text: text})
	if err != nil {
		return "", err
	}
	return decision.Payload.Text, nil
}

// sampleStdDev is zero for a single observation instead of NaN.
func sampleStdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	return stat.StdDev(values, nil)
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
