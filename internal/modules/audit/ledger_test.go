package audit

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/foliorank/foliorank/internal/database"
	"github.com/foliorank/foliorank/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLedger(t *testing.T) (*Ledger, *MemoryRepository) {
	t.Helper()
	repo := NewMemoryRepository()
	ledger, err := New(repo, zerolog.Nop())
	require.NoError(t, err)
	return ledger, repo
}

func TestLedger_RecordChainsEntries(t *testing.T) {
	ledger, _ := newLedger(t)

	first, err := ledger.Record(domain.ActionSimulation, "input-a", "output-a", "v0.1")
	require.NoError(t, err)
	second, err := ledger.Record(domain.ActionAudit, "input-b", "output-b", "v0.1")
	require.NoError(t, err)

	assert.Equal(t, int64(0), first.Index)
	assert.Empty(t, first.PrevEntryHash)
	assert.Equal(t, int64(1), second.Index)
	assert.Equal(t, first.EntryHash, second.PrevEntryHash)
	assert.Equal(t, "v0.1", second.PolicyVersion)
	assert.Equal(t, second.EntryHash, ledger.LastHash())
	assert.Len(t, first.InputHash, 64)
}

func TestLedger_IdenticalPayloadsHashIdentically(t *testing.T) {
	ledger, _ := newLedger(t)

	spec := domain.PortfolioSpec{Name: "x", Assets: []domain.Asset{{Symbol: "cash", Weight: 1}}}
	a, err := ledger.Record(domain.ActionSimulation, spec, "out", "v0.1")
	require.NoError(t, err)
	b, err := ledger.Record(domain.ActionSimulation, spec, "out", "v0.1")
	require.NoError(t, err)

	assert.Equal(t, a.InputHash, b.InputHash)
	assert.Equal(t, a.OutputHash, b.OutputHash)
	assert.NotEqual(t, a.EntryHash, b.EntryHash, "chain position must differentiate digests")
}

func TestLedger_VerifyChain_Ok(t *testing.T) {
	ledger, _ := newLedger(t)

	for i := 0; i < 25; i++ {
		_, err := ledger.Record(domain.ActionSimulation, fmt.Sprintf("in-%d", i), fmt.Sprintf("out-%d", i), "v0.1")
		require.NoError(t, err)
	}
	assert.NoError(t, ledger.VerifyChain())
}

func TestLedger_VerifyChain_DetectsTampering(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.AuditEntry)
	}{
		{"input hash", func(e *domain.AuditEntry) { e.InputHash = "0000" }},
		{"output hash", func(e *domain.AuditEntry) { e.OutputHash = "0000" }},
		{"action", func(e *domain.AuditEntry) { e.Action = domain.ActionAudit }},
		{"policy version", func(e *domain.AuditEntry) { e.PolicyVersion = "v9" }},
		{"timestamp", func(e *domain.AuditEntry) { e.Timestamp = "2001-01-01T00:00:00Z" }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ledger, repo := newLedger(t)
			for i := 0; i < 5; i++ {
				_, err := ledger.Record(domain.ActionSimulation, i, i*2, "v0.1")
				require.NoError(t, err)
			}

			repo.Tamper(2, tc.mutate)

			err := ledger.VerifyChain()
			var broken *domain.ChainBrokenError
			require.True(t, errors.As(err, &broken))
			assert.Equal(t, int64(2), broken.AtIndex)
		})
	}
}

func TestLedger_HaltsAfterBrokenChain(t *testing.T) {
	ledger, repo := newLedger(t)
	for i := 0; i < 3; i++ {
		_, err := ledger.Record(domain.ActionSimulation, i, i, "v0.1")
		require.NoError(t, err)
	}

	repo.Tamper(1, func(e *domain.AuditEntry) { e.OutputHash = "f00d" })
	require.Error(t, ledger.VerifyChain())

	// New writes must be refused until operator intervention.
	_, err := ledger.Record(domain.ActionSimulation, "x", "y", "v0.1")
	var broken *domain.ChainBrokenError
	require.True(t, errors.As(err, &broken))
	assert.Equal(t, int64(1), broken.AtIndex)
}

func TestLedger_ConcurrentAppendsKeepTotalOrder(t *testing.T) {
	ledger, _ := newLedger(t)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := ledger.Record(domain.ActionSimulation, n, n, "v0.1")
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	require.NoError(t, ledger.VerifyChain())

	entries, err := ledger.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 50)
	seen := make(map[string]bool)
	for _, entry := range entries {
		assert.False(t, seen[entry.PrevEntryHash], "no two entries may claim the same predecessor")
		seen[entry.PrevEntryHash] = true
	}
}

func TestLedger_ResumesFromPersistedTail(t *testing.T) {
	repo := NewMemoryRepository()
	first, err := New(repo, zerolog.Nop())
	require.NoError(t, err)
	entry, err := first.Record(domain.ActionAudit, "a", "b", "v0.1")
	require.NoError(t, err)

	resumed, err := New(repo, zerolog.Nop())
	require.NoError(t, err)
	next, err := resumed.Record(domain.ActionAudit, "c", "d", "v0.1")
	require.NoError(t, err)

	assert.Equal(t, int64(1), next.Index)
	assert.Equal(t, entry.EntryHash, next.PrevEntryHash)
	assert.NoError(t, resumed.VerifyChain())
}

func TestSQLRepository_RoundTrip(t *testing.T) {
	db, err := database.New(database.Config{
		Path:    "file:audit_repo_test?mode=memory&cache=shared",
		Profile: database.ProfileLedger,
		Name:    "audit",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate())

	repo := NewSQLRepository(db.Conn(), zerolog.Nop())
	ledger, err := New(repo, zerolog.Nop())
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		_, err := ledger.Record(domain.ActionExplanation, i, i+1, "v0.1")
		require.NoError(t, err)
	}

	require.NoError(t, ledger.VerifyChain())

	count, err := repo.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(4), count)

	middle, err := repo.ReadRange(1, 3)
	require.NoError(t, err)
	require.Len(t, middle, 2)
	assert.Equal(t, int64(1), middle[0].Index)
	assert.Equal(t, int64(2), middle[1].Index)

	last, err := repo.Last()
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, int64(3), last.Index)
}
