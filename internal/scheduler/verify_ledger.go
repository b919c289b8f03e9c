package scheduler

import (
	"github.com/rs/zerolog"

	"github.com/foliorank/foliorank/internal/modules/audit"
)

// VerifyLedgerJob re-walks the audit hash chain. A broken chain halts the
// ledger, so a failed sweep means the system stops accepting gated
// actions until an operator investigates.
type VerifyLedgerJob struct {
	ledger *audit.Ledger
	log    zerolog.Logger
}

// NewVerifyLedgerJob creates the periodic integrity sweep.
func NewVerifyLedgerJob(ledger *audit.Ledger, log zerolog.Logger) *VerifyLedgerJob {
	return &VerifyLedgerJob{
		ledger: ledger,
		log:    log.With().Str("job", "verify_ledger").Logger(),
	}
}

// Name returns the job name.
func (j *VerifyLedgerJob) Name() string {
	return "verify_ledger"
}

// Run verifies the full chain.
func (j *VerifyLedgerJob) Run() error {
	if err := j.ledger.VerifyChain(); err != nil {
		return err
	}

	count, err := j.ledger.Count()
	if err != nil {
		return err
	}
	j.log.Debug().Int64("entries", count).Msg("Audit chain verified")
	return nil
}
