// Package export produces and consumes the interchange document pairing
// a portfolio spec with its simulation result and provenance. Bundles are
// self-describing: schema version, policy version, and the audit hash of
// the recording entry travel with the data.
package export

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/foliorank/foliorank/internal/domain"
	"github.com/foliorank/foliorank/internal/modules/schemas"
)

// BundleSchemaVersion identifies the interchange format.
const BundleSchemaVersion = "export_bundle_v1"

// Bundle is the exported document.
type Bundle struct {
	PortfolioSpec    domain.PortfolioSpec    `json:"portfolio_spec"`
	SimulationResult domain.SimulationResult `json:"simulation_result"`
	AuditHash        string                  `json:"audit_hash"`
	SchemaVersion    string                  `json:"schema_version"`
	MCPVersion       string                  `json:"mcp_version"`
}

// Service builds and parses bundles.
type Service struct {
	registry *schemas.Registry
	log      zerolog.Logger
}

// NewService creates an export service.
func NewService(registry *schemas.Registry, log zerolog.Logger) *Service {
	return &Service{
		registry: registry,
		log:      log.With().Str("service", "export").Logger(),
	}
}

// Export assembles a bundle and returns its canonical JSON encoding.
// auditHash is the entry hash of the audit record that gated the result;
// policyVersion is the policy the result was produced under.
func (s *Service) Export(spec domain.PortfolioSpec, result domain.SimulationResult, auditHash, policyVersion string) ([]byte, error) {
	bundle := Bundle{
		PortfolioSpec:    spec.Clone(),
		SimulationResult: result,
		AuditHash:        auditHash,
		SchemaVersion:    BundleSchemaVersion,
		MCPVersion:       policyVersion,
	}
	if err := s.registry.Validate(bundle, schemas.SchemaExportBundle, schemas.VersionExportBundleV1); err != nil {
		return nil, err
	}

	raw, err := domain.CanonicalJSON(bundle)
	if err != nil {
		return nil, fmt.Errorf("failed to encode export bundle: %w", err)
	}

	s.log.Info().
		Str("portfolio", spec.Name).
		Str("dataset_version", result.DatasetVersion).
		Msg("Bundle exported")

	return raw, nil
}

// Import parses and validates a bundle document. The bundle must pass the
// full schema check before any field is trusted.
func (s *Service) Import(raw []byte) (*Bundle, error) {
	if err := s.registry.Validate(raw, schemas.SchemaExportBundle, schemas.VersionExportBundleV1); err != nil {
		return nil, err
	}
	var bundle Bundle
	if err := json.Unmarshal(raw, &bundle); err != nil {
		return nil, fmt.Errorf("failed to decode export bundle: %w", err)
	}
	return &bundle, nil
}
