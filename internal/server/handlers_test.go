package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foliorank/foliorank/internal/config"
	"github.com/foliorank/foliorank/internal/di"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	cfg := &config.Config{
		DataDir:           t.TempDir(),
		LogLevel:          "disabled",
		Port:              0,
		GenerationTimeout: time.Second,
		VerifyInterval:    "@every 1h",
	}
	container, err := di.Wire(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { container.Close() })

	return New(Config{
		Log:       zerolog.Nop(),
		Config:    cfg,
		Container: container,
		Port:      cfg.Port,
		DevMode:   true,
	})
}

func doJSON(t *testing.T, s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func balancedPortfolio() map[string]interface{} {
	return map[string]interface{}{
		"name": "balanced",
		"assets": []map[string]interface{}{
			{"symbol": "large_cap", "weight": 0.5},
			{"symbol": "gov_bonds", "weight": 0.4},
			{"symbol": "cash", "weight": 0.1},
		},
		"constraints": map[string]interface{}{
			"max_weight": 0.6,
			"extra":      map[string]float64{"horizon_years": 10},
		},
	}
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "v0.1", body["policy_version"])
}

func TestHandleSimulate(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/simulate", map[string]interface{}{
		"portfolio":       balancedPortfolio(),
		"dataset_version": "v1.0",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Result struct {
			ExpectedReturn float64 `json:"expected_return"`
			Volatility     float64 `json:"volatility"`
			TimeHorizon    string  `json:"time_horizon"`
		} `json:"result"`
		AuditHash string `json:"audit_hash"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 4.8, body.Result.ExpectedReturn)
	assert.Equal(t, 9.6, body.Result.Volatility)
	assert.Equal(t, "long_term", body.Result.TimeHorizon)
	assert.NotEmpty(t, body.AuditHash)
}

func TestHandleSimulateUnknownDataset(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/simulate", map[string]interface{}{
		"portfolio":       balancedPortfolio(),
		"dataset_version": "v9.9",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleSimulateRejectsForbiddenContent(t *testing.T) {
	s := newTestServer(t)

	portfolio := balancedPortfolio()
	portfolio["name"] = "guaranteed return special"

	rec := doJSON(t, s, http.MethodPost, "/api/v1/simulate", map[string]interface{}{
		"portfolio":       portfolio,
		"dataset_version": "v1.0",
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var body struct {
		Allowed  bool   `json:"allowed"`
		Fallback string `json:"fallback"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Allowed)
	assert.NotEmpty(t, body.Fallback)
	assert.NotContains(t, body.Fallback, "guaranteed")
}

func TestHandlePlan(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/plan", map[string]interface{}{
		"brief": "aggressive growth for a decade",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Portfolio struct {
			Name   string `json:"name"`
			Assets []struct {
				Symbol string  `json:"symbol"`
				Weight float64 `json:"weight"`
			} `json:"assets"`
		} `json:"portfolio"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "aggressive_growth", body.Portfolio.Name)
	require.Len(t, body.Portfolio.Assets, 3)
	assert.Equal(t, 0.7, body.Portfolio.Assets[0].Weight)
}

func TestHandleRankAutoWrapsPortfolio(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/rank", map[string]interface{}{
		"portfolio":       balancedPortfolio(),
		"dataset_version": "v1.0",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		SchemaVersion string `json:"schema_version"`
		Ranked        []struct {
			Rank  int     `json:"rank"`
			Score float64 `json:"score"`
		} `json:"ranked"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ranking_report_v1", body.SchemaVersion)
	require.Len(t, body.Ranked, 1)
	assert.Equal(t, 1, body.Ranked[0].Rank)
}

func TestHandleRankRejectsForbiddenBundle(t *testing.T) {
	s := newTestServer(t)

	portfolio := balancedPortfolio()
	portfolio["name"] = "guaranteed return fund"

	rec := doJSON(t, s, http.MethodPost, "/api/v1/rank", map[string]interface{}{
		"portfolio":       portfolio,
		"dataset_version": "v1.0",
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "guaranteed return")

	var body struct {
		Allowed  bool   `json:"allowed"`
		Fallback string `json:"fallback"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Allowed)
	assert.NotEmpty(t, body.Fallback)

	// The rejected attempt leaves an input-side ledger entry.
	rec = doJSON(t, s, http.MethodGet, "/api/v1/audit/entries", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listing struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	assert.Equal(t, 1, listing.Count)
}

func TestHandleRankKeepsCandidateRejectionsInReport(t *testing.T) {
	s := newTestServer(t)

	overweight := map[string]interface{}{
		"name": "overweight",
		"assets": []map[string]interface{}{
			{"symbol": "large_cap", "weight": 0.9},
			{"symbol": "cash", "weight": 0.4},
		},
	}
	rec := doJSON(t, s, http.MethodPost, "/api/v1/rank", map[string]interface{}{
		"bundle": map[string]interface{}{
			"version": "v0.1",
			"items": []map[string]interface{}{
				{"id": "ok", "portfolio": balancedPortfolio()},
				{"id": "bad", "portfolio": overweight},
			},
		},
		"dataset_version": "v1.0",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var report struct {
		Ranked []struct {
			ID string `json:"id"`
		} `json:"ranked"`
		Rejected []struct {
			ID     string `json:"id"`
			Reason string `json:"reason"`
		} `json:"rejected"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	require.Len(t, report.Ranked, 1)
	assert.Equal(t, "ok", report.Ranked[0].ID)
	require.Len(t, report.Rejected, 1)
	assert.Equal(t, "bad", report.Rejected[0].ID)
	assert.Contains(t, report.Rejected[0].Reason, "weight")
}

func TestHandleAnalysisRejectsForbiddenInput(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/api/v1/analysis/market?dataset=guaranteed+return", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())

	rec = doJSON(t, s, http.MethodPost, "/api/v1/explain", map[string]interface{}{
		"portfolio_name": "this fund cannot lose",
		"result": map[string]interface{}{
			"portfolio_ref":   "ref",
			"dataset_version": "v1.0",
			"expected_return": 4.8,
			"volatility":      9.6,
			"time_horizon":    "long_term",
			"engine_version":  "sim_v1",
		},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
}

func TestHandleValidate(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/validate", map[string]interface{}{
		"payload":        balancedPortfolio(),
		"schema_id":      "portfolio",
		"schema_version": "v1",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["valid"])

	bad := balancedPortfolio()
	bad["assets"] = []map[string]interface{}{{"symbol": "large_cap", "weight": 0.3}}
	rec = doJSON(t, s, http.MethodPost, "/api/v1/validate", map[string]interface{}{
		"payload":        bad,
		"schema_id":      "portfolio",
		"schema_version": "v1",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["valid"])
}

func TestHandleExportImportRoundTrip(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/v1/export", map[string]interface{}{
		"portfolio":       balancedPortfolio(),
		"dataset_version": "v1.0",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/import", bytes.NewReader(rec.Body.Bytes()))
	req.Header.Set("Content-Type", "application/json")
	importRec := httptest.NewRecorder()
	s.Router().ServeHTTP(importRec, req)
	require.Equal(t, http.StatusOK, importRec.Code, importRec.Body.String())

	var bundle struct {
		SchemaVersion string `json:"schema_version"`
		MCPVersion    string `json:"mcp_version"`
		AuditHash     string `json:"audit_hash"`
	}
	require.NoError(t, json.Unmarshal(importRec.Body.Bytes(), &bundle))
	assert.Equal(t, "export_bundle_v1", bundle.SchemaVersion)
	assert.Equal(t, "v0.1", bundle.MCPVersion)
	assert.NotEmpty(t, bundle.AuditHash)
}

func TestHandleAuditEndpoints(t *testing.T) {
	s := newTestServer(t)

	doJSON(t, s, http.MethodPost, "/api/v1/simulate", map[string]interface{}{
		"portfolio":       balancedPortfolio(),
		"dataset_version": "v1.0",
	})

	rec := doJSON(t, s, http.MethodGet, "/api/v1/audit/entries", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listing struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	assert.Equal(t, 2, listing.Count)

	rec = doJSON(t, s, http.MethodPost, "/api/v1/audit/verify", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var verify map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &verify))
	assert.Equal(t, true, verify["intact"])
}

func TestHandleAnalysisEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/api/v1/analysis/market?dataset=v1.0", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var report struct {
		AssetCount int    `json:"asset_count"`
		Narrative  string `json:"narrative"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, 3, report.AssetCount)
	assert.NotEmpty(t, report.Narrative)

	rec = doJSON(t, s, http.MethodPost, "/api/v1/explain", map[string]interface{}{
		"portfolio_name": "balanced",
		"result": map[string]interface{}{
			"portfolio_ref":   "ref",
			"dataset_version": "v1.0",
			"expected_return": 4.8,
			"volatility":      9.6,
			"time_horizon":    "long_term",
			"engine_version":  "sim_v1",
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var explain map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &explain))
	assert.Contains(t, explain["explanation"], "4.8")
}

func TestHandleDatasetsAndPolicy(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/api/v1/datasets", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var datasets struct {
		Versions []string `json:"versions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &datasets))
	assert.Contains(t, datasets.Versions, "v1.0")
	assert.Contains(t, datasets.Versions, "v1.1")

	rec = doJSON(t, s, http.MethodGet, "/api/v1/policy", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var pol struct {
		Version        string   `json:"version"`
		AllowedActions []string `json:"allowed_actions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pol))
	assert.Equal(t, "v0.1", pol.Version)
	assert.Contains(t, pol.AllowedActions, "simulation")
}
