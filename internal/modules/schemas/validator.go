// Package schemas provides versioned structural validation for every
// payload that crosses the enforcement gate. Validation is total: unknown
// fields, wrong types, and out-of-range values are errors, never coerced.
// Published schema versions are immutable; a payload must declare the
// version it targets and unknown versions are rejected, not guessed.
package schemas

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/foliorank/foliorank/internal/domain"
)

// Schema identifiers and their published versions.
const (
	SchemaPortfolio        = "portfolio"
	SchemaSimulationResult = "simulation_result"
	SchemaRankBundle       = "rank_bundle"
	SchemaExportBundle     = "export_bundle"

	VersionPortfolioV1        = "v1"
	VersionSimulationResultV1 = "v1"
	VersionRankBundleV01      = "v0.1"
	VersionExportBundleV1     = "v1"
)

// validateFunc checks one decoded payload, returning nil or the first
// structural failure found.
type validateFunc func(raw []byte) *domain.SchemaError

// Registry maps (schema id, version) pairs to validators. The registry is
// built once at construction and never mutated afterwards.
type Registry struct {
	validators map[string]validateFunc
}

// NewRegistry returns a registry with all published schema versions.
func NewRegistry() *Registry {
	r := &Registry{validators: make(map[string]validateFunc)}
	r.validators[key(SchemaPortfolio, VersionPortfolioV1)] = validatePortfolioV1
	r.validators[key(SchemaSimulationResult, VersionSimulationResultV1)] = validateSimulationResultV1
	r.validators[key(SchemaRankBundle, VersionRankBundleV01)] = validateRankBundleV01
	r.validators[key(SchemaExportBundle, VersionExportBundleV1)] = validateExportBundleV1
	return r
}

func key(id, version string) string {
	return id + "/" + version
}

// Validate checks payload against the named schema version. The payload
// may be a domain value, a map, or raw JSON bytes; anything else, or any
// structural failure, yields a *domain.SchemaError.
func (r *Registry) Validate(payload any, schemaID, schemaVersion string) error {
	fn, ok := r.validators[key(schemaID, schemaVersion)]
	if !ok {
		return &domain.SchemaError{
			SchemaID:      schemaID,
			SchemaVersion: schemaVersion,
			Field:         "schema_version",
			Expected:      "a published schema version",
			Actual:        fmt.Sprintf("%s/%s", schemaID, schemaVersion),
		}
	}

	raw, err := toJSON(payload)
	if err != nil {
		return &domain.SchemaError{
			SchemaID:      schemaID,
			SchemaVersion: schemaVersion,
			Field:         "payload",
			Expected:      "a JSON-serializable document",
			Actual:        err.Error(),
		}
	}

	if serr := fn(raw); serr != nil {
		serr.SchemaID = schemaID
		serr.SchemaVersion = schemaVersion
		return serr
	}
	return nil
}

func toJSON(payload any) ([]byte, error) {
	switch v := payload.(type) {
	case []byte:
		return v, nil
	case json.RawMessage:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return domain.CanonicalJSON(payload)
	}
}

// decodeStrict unmarshals raw into target rejecting unknown fields.
func decodeStrict(raw []byte, target any) *domain.SchemaError {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return &domain.SchemaError{
			Field:    "payload",
			Expected: "document matching the declared schema",
			Actual:   err.Error(),
		}
	}
	return nil
}

func validatePortfolioV1(raw []byte) *domain.SchemaError {
	var spec domain.PortfolioSpec
	if serr := decodeStrict(raw, &spec); serr != nil {
		return serr
	}
	return CheckPortfolio(spec)
}

// CheckPortfolio enforces the portfolio invariants on an already-decoded
// spec: non-empty assets, unique symbols, weights in [0,1] summing to one
// within epsilon, and the per-asset max_weight cap.
func CheckPortfolio(spec domain.PortfolioSpec) *domain.SchemaError {
	if spec.Name == "" {
		return &domain.SchemaError{Field: "name", Expected: "non-empty string", Actual: "empty"}
	}
	if len(spec.Assets) == 0 {
		return &domain.SchemaError{Field: "assets", Expected: "at least one asset", Actual: "empty sequence"}
	}

	maxWeight := spec.Constraints.MaxWeight
	if maxWeight < 0 || maxWeight > 1 {
		return &domain.SchemaError{
			Field:    "constraints.max_weight",
			Expected: "value in [0, 1]",
			Actual:   formatFloat(maxWeight),
		}
	}

	seen := make(map[string]bool, len(spec.Assets))
	sum := 0.0
	for i, asset := range spec.Assets {
		field := fmt.Sprintf("assets[%d]", i)
		if asset.Symbol == "" {
			return &domain.SchemaError{Field: field + ".symbol", Expected: "non-empty string", Actual: "empty"}
		}
		if seen[asset.Symbol] {
			return &domain.SchemaError{Field: field + ".symbol", Expected: "unique symbol", Actual: asset.Symbol}
		}
		seen[asset.Symbol] = true

		if asset.Weight < 0 || asset.Weight > 1 || math.IsNaN(asset.Weight) {
			return &domain.SchemaError{
				Field:    field + ".weight",
				Expected: "value in [0, 1]",
				Actual:   formatFloat(asset.Weight),
			}
		}
		if maxWeight > 0 && asset.Weight > maxWeight {
			return &domain.SchemaError{
				Field:    field + ".weight",
				Expected: "value <= max_weight " + formatFloat(maxWeight),
				Actual:   formatFloat(asset.Weight),
			}
		}
		sum += asset.Weight
	}

	if math.Abs(sum-1.0) > domain.WeightEpsilon {
		return &domain.SchemaError{
			Field:    "assets",
			Expected: "weights summing to 1.0 within 1e-6",
			Actual:   formatFloat(sum),
		}
	}
	return nil
}

func validateSimulationResultV1(raw []byte) *domain.SchemaError {
	var result domain.SimulationResult
	if serr := decodeStrict(raw, &result); serr != nil {
		return serr
	}
	return CheckSimulationResult(result)
}

// CheckSimulationResult enforces the result invariants on a decoded value.
func CheckSimulationResult(result domain.SimulationResult) *domain.SchemaError {
	if result.PortfolioRef == "" {
		return &domain.SchemaError{Field: "portfolio_ref", Expected: "non-empty hash", Actual: "empty"}
	}
	if result.DatasetVersion == "" {
		return &domain.SchemaError{Field: "dataset_version", Expected: "non-empty string", Actual: "empty"}
	}
	if result.Volatility < 0 || math.IsNaN(result.Volatility) {
		return &domain.SchemaError{
			Field:    "volatility",
			Expected: "non-negative value",
			Actual:   formatFloat(result.Volatility),
		}
	}
	switch result.TimeHorizon {
	case domain.HorizonShortTerm, domain.HorizonMediumTerm, domain.HorizonLongTerm:
	default:
		return &domain.SchemaError{
			Field:    "time_horizon",
			Expected: "one of short_term, medium_term, long_term",
			Actual:   string(result.TimeHorizon),
		}
	}
	if result.EngineVersion == "" {
		return &domain.SchemaError{Field: "engine_version", Expected: "non-empty string", Actual: "empty"}
	}
	return nil
}

func validateRankBundleV01(raw []byte) *domain.SchemaError {
	var bundle domain.RankBundle
	if serr := decodeStrict(raw, &bundle); serr != nil {
		return serr
	}
	if bundle.Version != domain.RankBundleVersion {
		return &domain.SchemaError{
			Field:    "version",
			Expected: domain.RankBundleVersion,
			Actual:   bundle.Version,
		}
	}
	if len(bundle.Items) == 0 {
		return &domain.SchemaError{Field: "items", Expected: "at least one item", Actual: "empty sequence"}
	}
	seen := make(map[string]bool, len(bundle.Items))
	for i, item := range bundle.Items {
		field := fmt.Sprintf("items[%d]", i)
		if item.ID == "" {
			return &domain.SchemaError{Field: field + ".id", Expected: "non-empty string", Actual: "empty"}
		}
		if seen[item.ID] {
			return &domain.SchemaError{Field: field + ".id", Expected: "unique id", Actual: item.ID}
		}
		seen[item.ID] = true
		if serr := CheckPortfolio(item.Portfolio); serr != nil {
			serr.Field = field + ".portfolio." + serr.Field
			return serr
		}
	}
	return nil
}

// exportBundleV1 mirrors the interchange document for a single result.
type exportBundleV1 struct {
	PortfolioSpec    domain.PortfolioSpec    `json:"portfolio_spec"`
	SimulationResult domain.SimulationResult `json:"simulation_result"`
	AuditHash        string                  `json:"audit_hash"`
	SchemaVersion    string                  `json:"schema_version"`
	MCPVersion       string                  `json:"mcp_version"`
}

func validateExportBundleV1(raw []byte) *domain.SchemaError {
	var bundle exportBundleV1
	if serr := decodeStrict(raw, &bundle); serr != nil {
		return serr
	}
	if bundle.SchemaVersion != "export_bundle_v1" {
		return &domain.SchemaError{Field: "schema_version", Expected: "export_bundle_v1", Actual: bundle.SchemaVersion}
	}
	if bundle.MCPVersion == "" {
		return &domain.SchemaError{Field: "mcp_version", Expected: "non-empty string", Actual: "empty"}
	}
	if bundle.AuditHash == "" {
		return &domain.SchemaError{Field: "audit_hash", Expected: "non-empty hash", Actual: "empty"}
	}
	if serr := CheckPortfolio(bundle.PortfolioSpec); serr != nil {
		serr.Field = "portfolio_spec." + serr.Field
		return serr
	}
	if serr := CheckSimulationResult(bundle.SimulationResult); serr != nil {
		serr.Field = "simulation_result." + serr.Field
		return serr
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
