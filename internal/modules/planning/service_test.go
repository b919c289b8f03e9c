package planning

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foliorank/foliorank/internal/domain"
	"github.com/foliorank/foliorank/internal/modules/audit"
	"github.com/foliorank/foliorank/internal/modules/mcp"
	"github.com/foliorank/foliorank/internal/modules/policy"
	"github.com/foliorank/foliorank/internal/modules/schemas"
)

func newTestService(t *testing.T) (*Service, *audit.Ledger) {
	t.Helper()
	store, err := policy.NewStore(policy.DefaultRuleSet())
	require.NoError(t, err)
	ledger, err := audit.New(audit.NewMemoryRepository(), zerolog.Nop())
	require.NoError(t, err)
	gate := mcp.NewGate(store, schemas.NewRegistry(), ledger, zerolog.Nop())
	return NewService(gate, NewStubGenerator(), time.Second, zerolog.Nop()), ledger
}

func TestPlanBalancedDefault(t *testing.T) {
	svc, ledger := newTestService(t)

	spec, err := svc.Plan(context.Background(), Request{Brief: "a simple diversified allocation"})
	require.NoError(t, err)

	assert.Equal(t, "balanced", spec.Name)
	require.Len(t, spec.Assets, 3)
	assert.Equal(t, 0.5, spec.Assets[0].Weight)
	assert.Equal(t, 0.6, spec.Constraints.MaxWeight)
	years, ok := spec.Constraints.HorizonYears()
	require.True(t, ok)
	assert.Equal(t, 10.0, years)

	// One entry for the gated brief, one for the gated output.
	count, err := ledger.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestPlanKeywordTemplates(t *testing.T) {
	svc, _ := newTestService(t)

	aggressive, err := svc.Plan(context.Background(), Request{Brief: "Aggressive growth please"})
	require.NoError(t, err)
	assert.Equal(t, "aggressive_growth", aggressive.Name)
	assert.Equal(t, 0.7, aggressive.Assets[0].Weight)
	assert.Equal(t, 0.7, aggressive.Constraints.MaxWeight)

	conservative, err := svc.Plan(context.Background(), Request{Brief: "mostly bonds"})
	require.NoError(t, err)
	assert.Equal(t, "conservative_income", conservative.Name)
	assert.Equal(t, 0.6, conservative.Assets[1].Weight)
}

func TestPlanIsDeterministic(t *testing.T) {
	svc, _ := newTestService(t)

	first, err := svc.Plan(context.Background(), Request{Brief: "balanced portfolio"})
	require.NoError(t, err)
	second, err := svc.Plan(context.Background(), Request{Brief: "balanced portfolio"})
	require.NoError(t, err)

	firstHash, err := domain.HashPayload(first)
	require.NoError(t, err)
	secondHash, err := domain.HashPayload(second)
	require.NoError(t, err)
	assert.Equal(t, firstHash, secondHash)
}

func TestPlanRejectsForbiddenBrief(t *testing.T) {
	svc, ledger := newTestService(t)

	_, err := svc.Plan(context.Background(), Request{Brief: "design something with guaranteed returns"})
	var violation *domain.ViolationError
	require.ErrorAs(t, err, &violation)

	// The rejection itself is audited; generation never ran.
	count, err := ledger.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

type stalledGenerator struct{}

func (stalledGenerator) Generate(ctx context.Context, _ domain.Action, _ string) (mcp.Payload, error) {
	<-ctx.Done()
	return mcp.Payload{}, ctx.Err()
}

func TestPlanGenerationTimeout(t *testing.T) {
	store, err := policy.NewStore(policy.DefaultRuleSet())
	require.NoError(t, err)
	ledger, err := audit.New(audit.NewMemoryRepository(), zerolog.Nop())
	require.NoError(t, err)
	gate := mcp.NewGate(store, schemas.NewRegistry(), ledger, zerolog.Nop())
	svc := NewService(gate, stalledGenerator{}, 10*time.Millisecond, zerolog.Nop())

	_, err = svc.Plan(context.Background(), Request{Brief: "balanced"})
	var timeoutErr *domain.GenerationTimeoutError
	require.ErrorAs(t, err, &timeoutErr)

	// Only the input check was recorded; the timed-out attempt produced
	// no output to audit.
	count, err := ledger.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

type malformedGenerator struct{}

func (malformedGenerator) Generate(context.Context, domain.Action, string) (mcp.Payload, error) {
	return mcp.Payload{Structured: domain.PortfolioSpec{
		Name:   "broken",
		Assets: []domain.Asset{{Symbol: "large_cap", Weight: 0.3}},
	}}, nil
}

func TestPlanRejectsMalformedGeneration(t *testing.T) {
	store, err := policy.NewStore(policy.DefaultRuleSet())
	require.NoError(t, err)
	ledger, err := audit.New(audit.NewMemoryRepository(), zerolog.Nop())
	require.NoError(t, err)
	gate := mcp.NewGate(store, schemas.NewRegistry(), ledger, zerolog.Nop())
	svc := NewService(gate, malformedGenerator{}, time.Second, zerolog.Nop())

	_, err = svc.Plan(context.Background(), Request{Brief: "balanced"})
	var schemaErr *domain.SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, "assets", schemaErr.Field)
}
