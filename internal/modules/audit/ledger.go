// Package audit maintains the hash-chained, append-only record of every
// gated decision. Each entry's digest covers the previous entry's digest,
// so any retroactive edit changes every subsequent digest and is caught
// by chain verification.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/foliorank/foliorank/internal/domain"
	"github.com/rs/zerolog"
)

// Repository is the persistence collaborator: append plus ordered read.
// No update or delete exists in the contract.
type Repository interface {
	Append(entry domain.AuditEntry) error
	List() ([]domain.AuditEntry, error)
	Last() (*domain.AuditEntry, error)
	Count() (int64, error)
}

// Ledger serializes appends so the chain has a total order: no two entries
// may claim the same previous hash. Once a broken chain is detected the
// ledger refuses new writes until an operator intervenes.
type Ledger struct {
	mu       sync.Mutex
	repo     Repository
	log      zerolog.Logger
	start    time.Time // monotonic reference point
	lastHash string
	nextIdx  int64
	halted   bool
	haltErr  error
}

// New creates a ledger over the given repository, resuming the chain from
// the last persisted entry if one exists.
func New(repo Repository, log zerolog.Logger) (*Ledger, error) {
	l := &Ledger{
		repo:  repo,
		log:   log.With().Str("service", "audit_ledger").Logger(),
		start: time.Now(),
	}

	last, err := repo.Last()
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger tail: %w", err)
	}
	if last != nil {
		l.lastHash = last.EntryHash
		l.nextIdx = last.Index + 1
	}
	return l, nil
}

// Record hashes the canonical serialization of both payloads, stamps the
// entry with wall-clock and monotonic time, chains it to the previous
// entry, and appends it. Entries commit in arrival order.
func (l *Ledger) Record(action domain.Action, inputPayload, outputPayload any, policyVersion string) (*domain.AuditEntry, error) {
	inputHash, err := domain.HashPayload(inputPayload)
	if err != nil {
		return nil, fmt.Errorf("failed to hash input payload: %w", err)
	}
	outputHash, err := domain.HashPayload(outputPayload)
	if err != nil {
		return nil, fmt.Errorf("failed to hash output payload: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.halted {
		return nil, l.haltErr
	}

	entry := domain.AuditEntry{
		Index:         l.nextIdx,
		InputHash:     inputHash,
		OutputHash:    outputHash,
		Action:        action,
		PolicyVersion: policyVersion,
		Timestamp:     time.Now().UTC().Format(time.RFC3339Nano),
		Monotonic:     time.Since(l.start).Nanoseconds(),
		PrevEntryHash: l.lastHash,
	}
	entry.EntryHash = entryDigest(entry)

	if err := l.repo.Append(entry); err != nil {
		return nil, fmt.Errorf("failed to append audit entry %d: %w", entry.Index, err)
	}

	l.lastHash = entry.EntryHash
	l.nextIdx++

	l.log.Debug().
		Int64("index", entry.Index).
		Str("action", string(action)).
		Str("policy_version", policyVersion).
		Msg("Audit entry recorded")

	return &entry, nil
}

// VerifyChain recomputes every digest and checks the prev-hash linkage.
// On a mismatch it returns ChainBrokenError at the offending index and
// halts further writes.
func (l *Ledger) VerifyChain() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := l.repo.List()
	if err != nil {
		return fmt.Errorf("failed to read ledger for verification: %w", err)
	}

	prevHash := ""
	for i, entry := range entries {
		if entry.Index != int64(i) {
			return l.halt(int64(i), fmt.Sprintf("expected index %d, found %d", i, entry.Index))
		}
		if entry.PrevEntryHash != prevHash {
			return l.halt(entry.Index, "previous-entry hash does not match chain")
		}
		if recomputed := entryDigest(entry); recomputed != entry.EntryHash {
			return l.halt(entry.Index, "stored digest does not match recomputed digest")
		}
		prevHash = entry.EntryHash
	}
	return nil
}

func (l *Ledger) halt(index int64, detail string) error {
	err := &domain.ChainBrokenError{AtIndex: index, Detail: detail}
	l.halted = true
	l.haltErr = err
	l.log.Error().Int64("index", index).Str("detail", detail).Msg("Audit chain broken, halting writes")
	return err
}

// Entries returns the full ordered chain.
func (l *Ledger) Entries() ([]domain.AuditEntry, error) {
	return l.repo.List()
}

// Count returns the number of chained entries.
func (l *Ledger) Count() (int64, error) {
	return l.repo.Count()
}

// LastHash returns the digest of the newest entry, or empty for an empty
// chain. Used as the audit reference in export bundles.
func (l *Ledger) LastHash() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastHash
}

// entryDigest computes the chained digest over the fields fixed by the
// ledger contract. The separator prevents ambiguity between adjacent
// variable-length fields.
func entryDigest(entry domain.AuditEntry) string {
	h := sha256.New()
	h.Write([]byte(entry.PrevEntryHash))
	h.Write([]byte{'|'})
	h.Write([]byte(entry.InputHash))
	h.Write([]byte{'|'})
	h.Write([]byte(entry.OutputHash))
	h.Write([]byte{'|'})
	h.Write([]byte(entry.Timestamp))
	h.Write([]byte{'|'})
	h.Write([]byte(strconv.FormatInt(entry.Monotonic, 10)))
	h.Write([]byte{'|'})
	h.Write([]byte(entry.Action))
	h.Write([]byte{'|'})
	h.Write([]byte(entry.PolicyVersion))
	return hex.EncodeToString(h.Sum(nil))
}
