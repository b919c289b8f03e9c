package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/foliorank/foliorank/internal/domain"
	"github.com/foliorank/foliorank/internal/modules/mcp"
	"github.com/foliorank/foliorank/internal/modules/planning"
	"github.com/foliorank/foliorank/internal/modules/ranking"
	"github.com/foliorank/foliorank/internal/modules/schemas"
)

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "healthy",
		"service":        "foliorank",
		"policy_version": s.container.PolicyStore.Version(),
	})
}

type simulateRequest struct {
	Portfolio      domain.PortfolioSpec `json:"portfolio"`
	DatasetVersion string               `json:"dataset_version"`
}

// handleSimulate gates the request, runs the engine, and gates the result.
func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	var req simulateRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	result, decision, ok := s.gatedSimulate(w, req)
	if !ok {
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"result":     result,
		"audit_hash": decision.Entry.EntryHash,
	})
}

// gatedSimulate runs the full simulate pipeline: input gate, engine,
// output gate. On failure the response has already been written.
func (s *Server) gatedSimulate(w http.ResponseWriter, req simulateRequest) (*domain.SimulationResult, *mcp.Decision, bool) {
	if req.DatasetVersion == "" {
		s.writeError(w, http.StatusBadRequest, "dataset_version is required")
		return nil, nil, false
	}

	gate := s.container.Gate
	if decision, err := gate.CheckInput(domain.ActionSimulation, mcp.Payload{
		Structured:    req.Portfolio,
		SchemaID:      schemas.SchemaPortfolio,
		SchemaVersion: schemas.VersionPortfolioV1,
	}); err != nil {
		s.writeGateError(w, decision, err)
		return nil, nil, false
	}

	result, err := s.container.SimulationSvc.Simulate(req.Portfolio, req.DatasetVersion)
	if err != nil {
		s.writeDomainError(w, err)
		return nil, nil, false
	}

	decision, err := gate.CheckOutput(domain.ActionSimulation, mcp.Payload{
		Structured:    result,
		SchemaID:      schemas.SchemaSimulationResult,
		SchemaVersion: schemas.VersionSimulationResultV1,
	})
	if err != nil {
		s.writeGateError(w, decision, err)
		return nil, nil, false
	}
	return result, decision, true
}

// handlePlan runs the gated design pipeline.
func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	var req planning.Request
	if !s.decodeBody(w, r, &req) {
		return
	}

	spec, err := s.container.PlanningSvc.Plan(r.Context(), req)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{"portfolio": spec})
}

type rankRequest struct {
	Bundle         *domain.RankBundle    `json:"bundle,omitempty"`
	Portfolio      *domain.PortfolioSpec `json:"portfolio,omitempty"`
	DatasetVersion string                `json:"dataset_version"`
}

// handleRank ranks a bundle, auto-wrapping a bare portfolio.
func (s *Server) handleRank(w http.ResponseWriter, r *http.Request) {
	var req rankRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.DatasetVersion == "" {
		s.writeError(w, http.StatusBadRequest, "dataset_version is required")
		return
	}

	var bundle domain.RankBundle
	switch {
	case req.Bundle != nil:
		bundle = *req.Bundle
	case req.Portfolio != nil:
		bundle = ranking.BundleOf(*req.Portfolio)
	default:
		s.writeError(w, http.StatusBadRequest, "either bundle or portfolio is required")
		return
	}

	// No declared schema here: candidate-level failures belong in the
	// report's rejected list, not in a bundle-wide refusal.
	if decision, err := s.container.Gate.CheckInput(domain.ActionSimulation, mcp.Payload{Structured: bundle}); err != nil {
		s.writeGateError(w, decision, err)
		return
	}

	report, err := s.container.RankingEngine.Rank(bundle, req.DatasetVersion)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, report)
}

type validateRequest struct {
	Payload       json.RawMessage `json:"payload"`
	SchemaID      string          `json:"schema_id"`
	SchemaVersion string          `json:"schema_version"`
}

// handleValidate runs a payload through the schema registry.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	if err := s.container.SchemaRegistry.Validate(req.Payload, req.SchemaID, req.SchemaVersion); err != nil {
		var schemaErr *domain.SchemaError
		if errors.As(err, &schemaErr) {
			s.writeJSON(w, http.StatusOK, map[string]interface{}{
				"valid": false,
				"error": map[string]string{
					"field":    schemaErr.Field,
					"expected": schemaErr.Expected,
					"actual":   schemaErr.Actual,
				},
			})
			return
		}
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{"valid": true})
}

// handleExport simulates a portfolio and emits the interchange bundle.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var req simulateRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	result, decision, ok := s.gatedSimulate(w, req)
	if !ok {
		return
	}

	raw, err := s.container.ExportSvc.Export(req.Portfolio, *result, decision.Entry.EntryHash, s.container.PolicyStore.Version())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(raw); err != nil {
		s.log.Error().Err(err).Msg("Failed to write export bundle")
	}
}

// handleImport validates and parses an interchange bundle.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	bundle, err := s.container.ExportSvc.Import(raw)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, bundle)
}

// handleAnalyzeMarket summarizes a dataset version.
func (s *Server) handleAnalyzeMarket(w http.ResponseWriter, r *http.Request) {
	dataset := r.URL.Query().Get("dataset")
	if dataset == "" {
		s.writeError(w, http.StatusBadRequest, "dataset query parameter is required")
		return
	}

	if decision, err := s.container.Gate.CheckInput(domain.ActionMarketAnalysis, mcp.Payload{Text: dataset}); err != nil {
		s.writeGateError(w, decision, err)
		return
	}

	report, err := s.container.AnalysisSvc.AnalyzeMarket(dataset)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

type explainRequest struct {
	PortfolioName string                  `json:"portfolio_name"`
	Result        domain.SimulationResult `json:"result"`
}

// handleExplain renders the gated explanation of a simulation result.
func (s *Server) handleExplain(w http.ResponseWriter, r *http.Request) {
	var req explainRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	if decision, err := s.container.Gate.CheckInput(domain.ActionExplanation, mcp.Payload{
		Text:          req.PortfolioName,
		Structured:    req.Result,
		SchemaID:      schemas.SchemaSimulationResult,
		SchemaVersion: schemas.VersionSimulationResultV1,
	}); err != nil {
		s.writeGateError(w, decision, err)
		return
	}

	text, err := s.container.AnalysisSvc.Explain(req.PortfolioName, req.Result)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"explanation": text})
}

// handleDatasets lists available dataset versions.
func (s *Server) handleDatasets(w http.ResponseWriter, r *http.Request) {
	versions, err := s.container.DatasetRepo.Versions()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"versions": versions})
}

// handlePolicy reports the active policy surface.
func (s *Server) handlePolicy(w http.ResponseWriter, r *http.Request) {
	rules := s.container.PolicyStore.Current()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"version":         rules.Version,
		"allowed_actions": rules.AllowedActions,
	})
}

// handleAuditEntries returns the full ledger in index order.
func (s *Server) handleAuditEntries(w http.ResponseWriter, r *http.Request) {
	entries, err := s.container.AuditLedger.Entries()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
}

// handleAuditVerify re-walks the hash chain.
func (s *Server) handleAuditVerify(w http.ResponseWriter, r *http.Request) {
	if err := s.container.AuditLedger.VerifyChain(); err != nil {
		var broken *domain.ChainBrokenError
		if errors.As(err, &broken) {
			s.writeJSON(w, http.StatusConflict, map[string]interface{}{
				"intact":   false,
				"at_index": broken.AtIndex,
				"detail":   broken.Detail,
			})
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"intact": true})
}

// decodeBody decodes a JSON request body, writing a 400 on failure.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, target interface{}) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(target); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// writeGateError renders a gate rejection: the caller receives only the
// fallback text and the violation classification, never the payload.
func (s *Server) writeGateError(w http.ResponseWriter, decision *mcp.Decision, err error) {
	var violation *domain.ViolationError
	if errors.As(err, &violation) && decision != nil {
		s.writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"allowed":  false,
			"fallback": decision.Fallback,
			"violation": map[string]interface{}{
				"attempted_action": violation.Record.AttemptedAction,
				"reason":           violation.Record.Reason,
			},
		})
		return
	}
	s.writeDomainError(w, err)
}

// writeDomainError maps typed domain errors onto HTTP statuses.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	var (
		schemaErr  *domain.SchemaError
		violation  *domain.ViolationError
		unknownErr *domain.UnknownDatasetError
		timeout    *domain.GenerationTimeoutError
		broken     *domain.ChainBrokenError
	)
	switch {
	case errors.As(err, &schemaErr):
		s.writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":    "schema_violation",
			"field":    schemaErr.Field,
			"expected": schemaErr.Expected,
			"actual":   schemaErr.Actual,
		})
	case errors.As(err, &violation):
		s.writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"allowed":  false,
			"fallback": s.container.Gate.FallbackText(),
			"violation": map[string]interface{}{
				"attempted_action": violation.Record.AttemptedAction,
				"reason":           violation.Record.Reason,
			},
		})
	case errors.As(err, &unknownErr):
		s.writeError(w, http.StatusNotFound, unknownErr.Error())
	case errors.As(err, &timeout):
		s.writeError(w, http.StatusGatewayTimeout, timeout.Error())
	case errors.As(err, &broken):
		s.writeError(w, http.StatusConflict, broken.Error())
	default:
		s.log.Error().Err(err).Msg("Request failed")
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
