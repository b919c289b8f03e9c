// Package planning turns a design brief into a validated portfolio spec.
// The generative step is untrusted: its input is gated before generation
// and its output is gated, schema-checked, and audited before anything
// leaves the service.
package planning

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/foliorank/foliorank/internal/domain"
	"github.com/foliorank/foliorank/internal/modules/mcp"
	"github.com/foliorank/foliorank/internal/modules/schemas"
)

// Request is one portfolio design brief.
type Request struct {
	Brief string `json:"brief"`
}

// Service runs the gated design pipeline.
type Service struct {
	gate      *mcp.Gate
	generator mcp.Generator
	timeout   time.Duration
	log       zerolog.Logger
}

// NewService creates a planning service. Timeout bounds each generation
// attempt; a timed-out attempt surfaces *domain.GenerationTimeoutError
// and may be retried by the caller as a fresh attempt.
func NewService(gate *mcp.Gate, generator mcp.Generator, timeout time.Duration, log zerolog.Logger) *Service {
	return &Service{
		gate:      gate,
		generator: generator,
		timeout:   timeout,
		log:       log.With().Str("service", "planning").Logger(),
	}
}

// Plan produces a validated portfolio spec for the brief. The brief is
// gated on the way in, generation runs under the service timeout, and the
// produced spec is gated and schema-validated on the way out.
func (s *Service) Plan(ctx context.Context, req Request) (*domain.PortfolioSpec, error) {
	if _, err := s.gate.CheckInput(domain.ActionPortfolioDesign, mcp.Payload{Text: req.Brief}); err != nil {
		return nil, err
	}

	decision, err := s.gate.GenerateChecked(ctx, s.generator, domain.ActionPortfolioDesign, req.Brief, s.timeout)
	if err != nil {
		return nil, err
	}

	spec, ok := decision.Payload.Structured.(domain.PortfolioSpec)
	if !ok {
		return nil, fmt.Errorf("generator produced %T, want portfolio spec", decision.Payload.Structured)
	}
	// The gate only schema-checks what the payload declares; a generator
	// that omitted the declaration must not slip an invalid spec through.
	if serr := schemas.CheckPortfolio(spec); serr != nil {
		serr.SchemaID = schemas.SchemaPortfolio
		serr.SchemaVersion = schemas.VersionPortfolioV1
		return nil, serr
	}

	s.log.Info().
		Str("portfolio", spec.Name).
		Int("assets", len(spec.Assets)).
		Msg("Portfolio designed")

	out := spec.Clone()
	return &out, nil
}
