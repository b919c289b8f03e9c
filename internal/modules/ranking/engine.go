// Package ranking compares simulated portfolios under a frozen scoring
// profile. Scores are relative to the candidate set, not absolute
// quality; reordering equal inputs never changes their scores.
package ranking

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/foliorank/foliorank/internal/domain"
	"github.com/foliorank/foliorank/internal/modules/mcp"
	"github.com/foliorank/foliorank/internal/modules/schemas"
)

// ProfileV1Balanced is the only scoring profile. Its weights and
// normalization are frozen; a different weighting is a new profile name.
const ProfileV1Balanced = "v1_balanced"

// ReportSchemaVersion tags ranking reports.
const ReportSchemaVersion = "ranking_report_v1"

// v1_balanced component weights. They sum to 1; the final score is the
// weighted sum scaled to 0..100.
const (
	weightReturn       = 0.40
	weightRisk         = 0.30
	weightDrawdown     = 0.20
	weightStability    = 0.05
	weightCompleteness = 0.05
)

// drawdownPlaceholder stands in until the engine produces drawdown
// estimates. TODO: replace with simulated max drawdown once the engine
// carries path-level metrics.
const drawdownPlaceholder = 0.5

// RankedItem is one scored candidate, in descending score order.
type RankedItem struct {
	Rank      int                      `json:"rank"`
	ID        string                   `json:"id"`
	Score     float64                  `json:"score"`
	Result    *domain.SimulationResult `json:"result"`
	Notes     string                   `json:"notes"`
	Portfolio domain.PortfolioSpec     `json:"portfolio"`
}

// RejectedItem records a candidate excluded before scoring.
type RejectedItem struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// Report is the full outcome of one comparison request.
type Report struct {
	SchemaVersion   string         `json:"schema_version"`
	Profile         string         `json:"profile"`
	DatasetVersion  string         `json:"dataset_version"`
	TotalCandidates int            `json:"total_candidates"`
	ValidCandidates int            `json:"valid_candidates"`
	Ranked          []RankedItem   `json:"ranked"`
	Rejected        []RejectedItem `json:"rejected,omitempty"`
	GeneratedAt     time.Time      `json:"generated_at"`
}

// Simulator produces metrics for a validated spec.
type Simulator interface {
	Simulate(spec domain.PortfolioSpec, datasetVersion string) (*domain.SimulationResult, error)
}

// Engine scores rank bundles. Candidate notes pass back through the
// enforcement gate before they reach the report.
type Engine struct {
	sim  Simulator
	gate *mcp.Gate
	log  zerolog.Logger
}

// NewEngine creates a comparison engine.
func NewEngine(sim Simulator, gate *mcp.Gate, log zerolog.Logger) *Engine {
	return &Engine{
		sim:  sim,
		gate: gate,
		log:  log.With().Str("service", "ranking").Logger(),
	}
}

// Rank simulates and scores every candidate in the bundle. Structurally
// invalid candidates and candidates the dataset cannot simulate are
// rejected with a reason; an unknown dataset version fails the whole
// request. Ties keep the bundle's input order.
func (e *Engine) Rank(bundle domain.RankBundle, datasetVersion string) (*Report, error) {
	if bundle.Version != domain.RankBundleVersion {
		return nil, fmt.Errorf("unsupported rank bundle version %q", bundle.Version)
	}
	if len(bundle.Items) == 0 {
		return nil, fmt.Errorf("rank bundle has no candidates")
	}
	seen := make(map[string]struct{}, len(bundle.Items))
	for _, item := range bundle.Items {
		if item.ID == "" {
			return nil, fmt.Errorf("rank bundle item missing id")
		}
		if _, dup := seen[item.ID]; dup {
			return nil, fmt.Errorf("duplicate rank bundle item id %q", item.ID)
		}
		seen[item.ID] = struct{}{}
	}

	type candidate struct {
		item   domain.RankItem
		result *domain.SimulationResult
	}
	valid := make([]candidate, 0, len(bundle.Items))
	rejected := make([]RejectedItem, 0)

	for _, item := range bundle.Items {
		if schemaErr := schemas.CheckPortfolio(item.Portfolio); schemaErr != nil {
			rejected = append(rejected, RejectedItem{ID: item.ID, Reason: schemaErr.Error()})
			continue
		}
		result, err := e.sim.Simulate(item.Portfolio, datasetVersion)
		if err != nil {
			var unknownErr *domain.UnknownDatasetError
			if errors.As(err, &unknownErr) {
				return nil, err
			}
			rejected = append(rejected, RejectedItem{ID: item.ID, Reason: err.Error()})
			continue
		}
		valid = append(valid, candidate{item: item, result: result})
	}

	results := make([]*domain.SimulationResult, len(valid))
	for i, c := range valid {
		results[i] = c.result
	}
	scores := scoreBalanced(results)

	ranked := make([]RankedItem, len(valid))
	for i, c := range valid {
		notes, err := e.gatedNotes(c.item.Portfolio.Name, scores[i], c.result)
		if err != nil {
			return nil, err
		}
		ranked[i] = RankedItem{
			ID:        c.item.ID,
			Score:     scores[i],
			Result:    c.result,
			Notes:     notes,
			Portfolio: c.item.Portfolio,
		}
	}

	// Stable sort on score alone: equal scores keep bundle order.
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	for i := range ranked {
		ranked[i].Rank = i + 1
	}

	e.log.Info().
		Str("dataset_version", datasetVersion).
		Int("candidates", len(bundle.Items)).
		Int("ranked", len(ranked)).
		Int("rejected", len(rejected)).
		Msg("Ranking completed")

	return &Report{
		SchemaVersion:   ReportSchemaVersion,
		Profile:         ProfileV1Balanced,
		DatasetVersion:  datasetVersion,
		TotalCandidates: len(bundle.Items),
		ValidCandidates: len(valid),
		Ranked:          ranked,
		Rejected:        rejected,
		GeneratedAt:     time.Now().UTC(),
	}, nil
}

// gatedNotes renders the neutral notes template and passes it through the
// output gate. A gate rejection of the template itself would mean the
// policy denylist drifted; the fallback text is substituted so the report
// still carries no unchecked prose.
func (e *Engine) gatedNotes(name string, score float64, result *domain.SimulationResult) (string, error) {
	text := fmt.Sprintf(
		"Portfolio %q achieved a ranking score of %.1f. Simulation showed expected return of %.1f%% with volatility of %.1f%%. This ranking reflects simulation-based comparison metrics.",
		name, score, result.ExpectedReturn, result.Volatility,
	)
	decision, err := e.gate.CheckOutput(domain.ActionSimulation, mcp.Payload{Text: text})
	if err != nil {
		var violation *domain.ViolationError
		if errors.As(err, &violation) {
			return decision.Fallback, nil
		}
		return "", err
	}
	return decision.Payload.Text, nil
}

// scoreBalanced applies the v1_balanced profile to a candidate set.
// Return, risk, and stability are min-max normalized across the set
// (identical values normalize to 0.5, risk inverted so lower volatility
// scores higher). Drawdown uses the fixed placeholder and completeness
// the raw fraction of populated result fields.
func scoreBalanced(results []*domain.SimulationResult) []float64 {
	n := len(results)
	if n == 0 {
		return nil
	}

	returns := make([]float64, n)
	vols := make([]float64, n)
	stabilities := make([]float64, n)
	for i, r := range results {
		returns[i] = r.ExpectedReturn
		vols[i] = r.Volatility
		stabilities[i] = 1.0 / (1.0 + r.Volatility)
	}

	normReturns := minMaxNormalize(returns)
	normRisks := minMaxNormalize(vols)
	normStabilities := minMaxNormalize(stabilities)

	scores := make([]float64, n)
	for i, r := range results {
		score := weightReturn*normReturns[i] +
			weightRisk*(1.0-normRisks[i]) +
			weightDrawdown*drawdownPlaceholder +
			weightStability*normStabilities[i] +
			weightCompleteness*completeness(r)
		scores[i] = round2(score * 100.0)
	}
	return scores
}

// minMaxNormalize maps values onto [0, 1]. An all-identical set maps to
// 0.5 so degenerate inputs neither dominate nor vanish.
func minMaxNormalize(values []float64) []float64 {
	min, max := values[0], values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	out := make([]float64, len(values))
	if max == min {
		for i := range out {
			out[i] = 0.5
		}
		return out
	}
	for i, v := range values {
		out[i] = (v - min) / (max - min)
	}
	return out
}

// completeness is the populated fraction of the four result fields the
// profile inspects.
func completeness(r *domain.SimulationResult) float64 {
	fields := 0
	if r.PortfolioRef != "" {
		fields++
	}
	if r.DatasetVersion != "" {
		fields++
	}
	if r.TimeHorizon != "" {
		fields++
	}
	if r.EngineVersion != "" {
		fields++
	}
	return float64(fields) / 4.0
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
