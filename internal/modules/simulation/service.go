package simulation

import (
	"sync"

	"github.com/foliorank/foliorank/internal/domain"
	"github.com/rs/zerolog"
)

// Service wraps the engine with a result cache so each
// (portfolio, dataset version) pair is computed exactly once per process.
// The engine is deterministic, so the cache changes nothing observable
// beyond avoiding recomputation.
type Service struct {
	engine *Engine
	log    zerolog.Logger

	mu      sync.Mutex
	results map[string]*domain.SimulationResult
}

// NewService creates a simulation service over an engine.
func NewService(engine *Engine, log zerolog.Logger) *Service {
	return &Service{
		engine:  engine,
		log:     log.With().Str("service", "simulation").Logger(),
		results: make(map[string]*domain.SimulationResult),
	}
}

// Simulate returns the cached result when the identical pair was already
// computed, otherwise runs the engine and caches. Errors are never cached:
// an unknown dataset stays fatal per request, not per process.
func (s *Service) Simulate(spec domain.PortfolioSpec, datasetVersion string) (*domain.SimulationResult, error) {
	ref, err := domain.HashPayload(spec)
	if err != nil {
		return nil, err
	}
	cacheKey := ref + "|" + datasetVersion

	s.mu.Lock()
	if cached, ok := s.results[cacheKey]; ok {
		s.mu.Unlock()
		out := *cached
		return &out, nil
	}
	s.mu.Unlock()

	result, err := s.engine.Simulate(spec, datasetVersion)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.results[cacheKey] = result
	s.mu.Unlock()

	out := *result
	return &out, nil
}
