// Package main is the foliorank command line interface. Every operation
// runs through the same wired container as the HTTP server, so CLI use
// is gated and audited identically.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/foliorank/foliorank/internal/config"
	"github.com/foliorank/foliorank/internal/di"
	"github.com/foliorank/foliorank/internal/domain"
	"github.com/foliorank/foliorank/internal/modules/mcp"
	"github.com/foliorank/foliorank/internal/modules/planning"
	"github.com/foliorank/foliorank/internal/modules/ranking"
	"github.com/foliorank/foliorank/internal/modules/schemas"
	"github.com/foliorank/foliorank/pkg/logger"
)

const usage = `usage: foliorank <command> [flags]

commands:
  plan      design a portfolio from a brief
  validate  check a payload against a schema version
  simulate  run the deterministic engine on a portfolio
  analyze   summarize a dataset's parameters
  rank      score and order portfolios in a bundle
  export    simulate and emit an interchange bundle
  import    validate and parse an interchange bundle
  verify    re-walk the audit hash chain
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "foliorank: %v\n", err)
		os.Exit(1)
	}

	// CLI runs log to stderr only when asked; stdout stays machine-readable.
	log := zerolog.Nop()
	if cfg.DevMode {
		log = logger.New(logger.Config{Level: cfg.LogLevel, Pretty: true})
	}

	container, err := di.Wire(cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "foliorank: %v\n", err)
		os.Exit(1)
	}
	defer container.Close()

	cmd, args := os.Args[1], os.Args[2:]
	if err := run(container, cmd, args); err != nil {
		fmt.Fprintf(os.Stderr, "foliorank: %v\n", err)
		os.Exit(1)
	}
}

func run(c *di.Container, cmd string, args []string) error {
	switch cmd {
	case "plan":
		return runPlan(c, args)
	case "validate":
		return runValidate(c, args)
	case "simulate":
		return runSimulate(c, args)
	case "analyze":
		return runAnalyze(c, args)
	case "rank":
		return runRank(c, args)
	case "export":
		return runExport(c, args)
	case "import":
		return runImport(c, args)
	case "verify":
		return runVerify(c)
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func runPlan(c *di.Container, args []string) error {
	fs := flag.NewFlagSet("plan", flag.ExitOnError)
	brief := fs.String("brief", "", "design brief")
	fs.Parse(args)
	if *brief == "" {
		return fmt.Errorf("plan: -brief is required")
	}

	spec, err := c.PlanningSvc.Plan(context.Background(), planning.Request{Brief: *brief})
	if err != nil {
		return err
	}
	return printJSON(spec)
}

func runValidate(c *di.Container, args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	file := fs.String("file", "", "payload file")
	schemaID := fs.String("schema", schemas.SchemaPortfolio, "schema id")
	version := fs.String("schema-version", schemas.VersionPortfolioV1, "schema version")
	fs.Parse(args)

	raw, err := readInput(*file)
	if err != nil {
		return err
	}

	if err := c.SchemaRegistry.Validate(raw, *schemaID, *version); err != nil {
		return err
	}
	return printJSON(map[string]bool{"valid": true})
}

func runSimulate(c *di.Container, args []string) error {
	fs := flag.NewFlagSet("simulate", flag.ExitOnError)
	file := fs.String("file", "", "portfolio spec file")
	dataset := fs.String("dataset", "v1.0", "dataset version")
	fs.Parse(args)

	spec, err := readPortfolio(*file)
	if err != nil {
		return err
	}

	result, _, err := gatedSimulate(c, spec, *dataset)
	if err != nil {
		return err
	}
	return printJSON(result)
}

func runAnalyze(c *di.Container, args []string) error {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	dataset := fs.String("dataset", "v1.0", "dataset version")
	fs.Parse(args)

	if _, err := c.Gate.CheckInput(domain.ActionMarketAnalysis, mcp.Payload{Text: *dataset}); err != nil {
		return err
	}

	report, err := c.AnalysisSvc.AnalyzeMarket(*dataset)
	if err != nil {
		return err
	}
	return printJSON(report)
}

func runRank(c *di.Container, args []string) error {
	fs := flag.NewFlagSet("rank", flag.ExitOnError)
	file := fs.String("file", "", "rank bundle or single portfolio file")
	dataset := fs.String("dataset", "v1.0", "dataset version")
	fs.Parse(args)

	raw, err := readInput(*file)
	if err != nil {
		return err
	}

	// Accept either a bundle or a bare spec, which gets wrapped.
	var bundle domain.RankBundle
	if err := json.Unmarshal(raw, &bundle); err != nil || bundle.Version == "" {
		var spec domain.PortfolioSpec
		if err := json.Unmarshal(raw, &spec); err != nil {
			return fmt.Errorf("rank: input is neither a bundle nor a portfolio: %w", err)
		}
		bundle = ranking.BundleOf(spec)
	}

	if _, err := c.Gate.CheckInput(domain.ActionSimulation, mcp.Payload{Structured: bundle}); err != nil {
		return err
	}

	report, err := c.RankingEngine.Rank(bundle, *dataset)
	if err != nil {
		return err
	}
	return printJSON(report)
}

func runExport(c *di.Container, args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	file := fs.String("file", "", "portfolio spec file")
	dataset := fs.String("dataset", "v1.0", "dataset version")
	fs.Parse(args)

	spec, err := readPortfolio(*file)
	if err != nil {
		return err
	}

	result, auditHash, err := gatedSimulate(c, spec, *dataset)
	if err != nil {
		return err
	}

	raw, err := c.ExportSvc.Export(spec, *result, auditHash, c.PolicyStore.Version())
	if err != nil {
		return err
	}
	fmt.Println(string(raw))
	return nil
}

func runImport(c *di.Container, args []string) error {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	file := fs.String("file", "", "bundle file")
	fs.Parse(args)

	raw, err := readInput(*file)
	if err != nil {
		return err
	}

	bundle, err := c.ExportSvc.Import(raw)
	if err != nil {
		return err
	}
	return printJSON(bundle)
}

func runVerify(c *di.Container) error {
	if err := c.AuditLedger.VerifyChain(); err != nil {
		return err
	}
	count, err := c.AuditLedger.Count()
	if err != nil {
		return err
	}
	return printJSON(map[string]interface{}{"intact": true, "entries": count})
}

// gatedSimulate mirrors the HTTP pipeline: input gate, engine, output
// gate. Returns the result and the audit hash of the output decision.
func gatedSimulate(c *di.Container, spec domain.PortfolioSpec, dataset string) (*domain.SimulationResult, string, error) {
	if _, err := c.Gate.CheckInput(domain.ActionSimulation, mcp.Payload{
		Structured:    spec,
		SchemaID:      schemas.SchemaPortfolio,
		SchemaVersion: schemas.VersionPortfolioV1,
	}); err != nil {
		return nil, "", err
	}

	result, err := c.SimulationSvc.Simulate(spec, dataset)
	if err != nil {
		return nil, "", err
	}

	decision, err := c.Gate.CheckOutput(domain.ActionSimulation, mcp.Payload{
		Structured:    result,
		SchemaID:      schemas.SchemaSimulationResult,
		SchemaVersion: schemas.VersionSimulationResultV1,
	})
	if err != nil {
		return nil, "", err
	}
	return result, decision.Entry.EntryHash, nil
}

// readInput reads a file, or stdin when no path is given.
func readInput(path string) ([]byte, error) {
	if path == "" {
		raw, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return raw, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return raw, nil
}

func readPortfolio(path string) (domain.PortfolioSpec, error) {
	var spec domain.PortfolioSpec
	raw, err := readInput(path)
	if err != nil {
		return spec, err
	}
	if err := json.Unmarshal(raw, &spec); err != nil {
		return spec, fmt.Errorf("failed to parse portfolio spec: %w", err)
	}
	return spec, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
