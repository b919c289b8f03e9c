// Package domain provides core domain models and types.
package domain

import "time"

// Action represents a gated operation type. The allowed set is fixed;
// anything outside it is rejected unconditionally by the enforcement gate.
type Action string

const (
	ActionPortfolioDesign Action = "portfolio_design"
	ActionMarketAnalysis  Action = "market_analysis"
	ActionSimulation      Action = "simulation"
	ActionExplanation     Action = "explanation"
	ActionAudit           Action = "audit"
)

// KnownActions is the complete enumeration of actions the system understands.
// Policy rule sets may allow a subset, never a superset.
var KnownActions = []Action{
	ActionPortfolioDesign,
	ActionMarketAnalysis,
	ActionSimulation,
	ActionExplanation,
	ActionAudit,
}

// IsKnownAction reports whether a is one of the five enumerated actions.
func IsKnownAction(a Action) bool {
	for _, known := range KnownActions {
		if a == known {
			return true
		}
	}
	return false
}

// TimeHorizon represents the investment horizon of a simulation result.
type TimeHorizon string

const (
	HorizonShortTerm  TimeHorizon = "short_term"
	HorizonMediumTerm TimeHorizon = "medium_term"
	HorizonLongTerm   TimeHorizon = "long_term"
)

// WeightEpsilon is the tolerance for the weights-sum-to-one invariant.
const WeightEpsilon = 1e-6

// Asset is a single position in a portfolio specification.
// Order within a spec is significant: all numeric reductions iterate
// assets in declared order so results are bit-identical across runs.
type Asset struct {
	Symbol string  `json:"symbol"`
	Weight float64 `json:"weight"`
}

// Constraints holds the structural constraints of a portfolio spec.
// MaxWeight of zero means "no per-asset cap". Extra carries additional
// numeric-or-boolean constraints (booleans encoded as 0/1), keyed by name.
type Constraints struct {
	MaxWeight float64            `json:"max_weight"`
	Extra     map[string]float64 `json:"extra,omitempty"`
}

// HorizonYears returns the horizon_years constraint and whether it was set.
func (c Constraints) HorizonYears() (float64, bool) {
	if c.Extra == nil {
		return 0, false
	}
	v, ok := c.Extra["horizon_years"]
	return v, ok
}

// PortfolioSpec is a validated, immutable portfolio composition.
// It is created by the planning path and consumed by the simulation and
// comparison engines. Treat as a value: copy on hand-off, never mutate.
type PortfolioSpec struct {
	Name        string      `json:"name"`
	Assets      []Asset     `json:"assets"`
	Constraints Constraints `json:"constraints"`
}

// Clone returns a deep copy of the spec.
func (s PortfolioSpec) Clone() PortfolioSpec {
	out := PortfolioSpec{Name: s.Name, Constraints: Constraints{MaxWeight: s.Constraints.MaxWeight}}
	out.Assets = make([]Asset, len(s.Assets))
	copy(out.Assets, s.Assets)
	if s.Constraints.Extra != nil {
		out.Constraints.Extra = make(map[string]float64, len(s.Constraints.Extra))
		for k, v := range s.Constraints.Extra {
			out.Constraints.Extra[k] = v
		}
	}
	return out
}

// SimulationResult holds the deterministic output metrics for one
// (PortfolioSpec, dataset version) pair. ExpectedReturn and Volatility
// are percentages rounded to four decimal places; the rounding rule is
// part of the EngineVersion contract.
type SimulationResult struct {
	PortfolioRef   string      `json:"portfolio_ref"`
	DatasetVersion string      `json:"dataset_version"`
	ExpectedReturn float64     `json:"expected_return"`
	Volatility     float64     `json:"volatility"`
	TimeHorizon    TimeHorizon `json:"time_horizon"`
	EngineVersion  string      `json:"engine_version"`
}

// ViolationReason classifies why the enforcement gate rejected a payload.
type ViolationReason string

const (
	ReasonForbiddenTerm    ViolationReason = "forbidden_term"
	ReasonDisallowedAction ViolationReason = "disallowed_action"
	ReasonSchemaViolation  ViolationReason = "schema_violation"
	ReasonPatternMatch     ViolationReason = "pattern_match"
)

// ViolationRecord is created only on a rejected action. RedactedExcerpt is
// bounded and sanitized: the matched term is masked and the surrounding
// context truncated, so the record never carries the full violating payload.
type ViolationRecord struct {
	AttemptedAction Action          `json:"attempted_action"`
	Reason          ViolationReason `json:"reason"`
	RedactedExcerpt string          `json:"redacted_excerpt"`
	Timestamp       time.Time       `json:"timestamp"`
}

// AuditEntry is one hash-chained, timestamped record of a gated action.
// Entries are append-only and never mutated; EntryHash covers
// PrevEntryHash, so any retroactive edit breaks every later digest.
type AuditEntry struct {
	Index         int64  `json:"index"`
	InputHash     string `json:"input_hash"`
	OutputHash    string `json:"output_hash"`
	Action        Action `json:"action"`
	PolicyVersion string `json:"policy_version"`
	Timestamp     string `json:"timestamp"`       // wall clock, RFC3339Nano UTC
	Monotonic     int64  `json:"monotonic"`       // nanoseconds since ledger start
	PrevEntryHash string `json:"prev_entry_hash"` // empty for the genesis entry
	EntryHash     string `json:"entry_hash"`
}

// RankItem is one candidate in a rank bundle.
type RankItem struct {
	ID        string        `json:"id"`
	Portfolio PortfolioSpec `json:"portfolio"`
}

// RankBundle is the canonical multi-portfolio container for comparison
// requests. Transient: consumed by the comparison engine, never persisted.
// Item order is significant for tie-breaking.
type RankBundle struct {
	Version string     `json:"version"`
	Items   []RankItem `json:"items"`
}

// RankBundleVersion is the only bundle version the comparison engine accepts.
const RankBundleVersion = "v0.1"
