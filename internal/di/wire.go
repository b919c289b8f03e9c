// Package di wires configuration, databases, repositories, and services
// into a single container. Construction order follows the dependency
// graph: databases, then repositories, then the gate, then the services
// that sit behind it.
package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/foliorank/foliorank/internal/config"
	"github.com/foliorank/foliorank/internal/modules/analysis"
	"github.com/foliorank/foliorank/internal/modules/audit"
	"github.com/foliorank/foliorank/internal/modules/export"
	"github.com/foliorank/foliorank/internal/modules/mcp"
	"github.com/foliorank/foliorank/internal/modules/planning"
	"github.com/foliorank/foliorank/internal/modules/policy"
	"github.com/foliorank/foliorank/internal/modules/ranking"
	"github.com/foliorank/foliorank/internal/modules/schemas"
	"github.com/foliorank/foliorank/internal/modules/simulation"
)

// Container holds every wired service. Handlers and jobs pull their
// dependencies from here instead of constructing their own.
type Container struct {
	Databases *Databases

	PolicyStore    *policy.Store
	SchemaRegistry *schemas.Registry
	AuditLedger    *audit.Ledger
	Gate           *mcp.Gate

	DatasetRepo   *simulation.DatasetRepository
	SimulationSvc *simulation.Service
	RankingEngine *ranking.Engine
	PlanningSvc   *planning.Service
	AnalysisSvc   *analysis.Service
	ExportSvc     *export.Service
}

// Wire builds the full container. The caller owns the container and must
// Close it on shutdown.
func Wire(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	dbs, err := OpenDatabases(cfg, log)
	if err != nil {
		return nil, err
	}

	ruleSet := policy.DefaultRuleSet()
	if cfg.PolicyPath != "" {
		ruleSet, err = policy.LoadFile(cfg.PolicyPath)
		if err != nil {
			dbs.Close()
			return nil, fmt.Errorf("failed to load policy file: %w", err)
		}
	}
	policyStore, err := policy.NewStore(ruleSet)
	if err != nil {
		dbs.Close()
		return nil, err
	}

	registry := schemas.NewRegistry()

	ledger, err := audit.New(audit.NewSQLRepository(dbs.Audit.Conn(), log), log)
	if err != nil {
		dbs.Close()
		return nil, fmt.Errorf("failed to open audit ledger: %w", err)
	}

	gate := mcp.NewGate(policyStore, registry, ledger, log)

	datasetRepo := simulation.NewDatasetRepository(dbs.Datasets.Conn(), log)
	if err := datasetRepo.SeedBuiltins(); err != nil {
		dbs.Close()
		return nil, fmt.Errorf("failed to seed builtin datasets: %w", err)
	}

	simEngine := simulation.NewEngine(datasetRepo, log)
	simSvc := simulation.NewService(simEngine, log)

	return &Container{
		Databases:      dbs,
		PolicyStore:    policyStore,
		SchemaRegistry: registry,
		AuditLedger:    ledger,
		Gate:           gate,
		DatasetRepo:    datasetRepo,
		SimulationSvc:  simSvc,
		RankingEngine:  ranking.NewEngine(simSvc, gate, log),
		PlanningSvc:    planning.NewService(gate, planning.NewStubGenerator(), cfg.GenerationTimeout, log),
		AnalysisSvc:    analysis.NewService(datasetRepo, gate, log),
		ExportSvc:      export.NewService(registry, log),
	}, nil
}

// Close releases container resources.
func (c *Container) Close() error {
	return c.Databases.Close()
}
