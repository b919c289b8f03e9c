package audit

import (
	"sync"

	"github.com/foliorank/foliorank/internal/domain"
)

// MemoryRepository is an in-memory repository for tests and ephemeral
// runs. Same append-plus-ordered-read contract as the SQL repository.
type MemoryRepository struct {
	mu      sync.RWMutex
	entries []domain.AuditEntry
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

// Append stores one entry.
func (r *MemoryRepository) Append(entry domain.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

// List returns a copy of all entries in chain order.
func (r *MemoryRepository) List() ([]domain.AuditEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.AuditEntry, len(r.entries))
	copy(out, r.entries)
	return out, nil
}

// Last returns the newest entry, or nil for an empty chain.
func (r *MemoryRepository) Last() (*domain.AuditEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.entries) == 0 {
		return nil, nil
	}
	entry := r.entries[len(r.entries)-1]
	return &entry, nil
}

// Count returns the number of stored entries.
func (r *MemoryRepository) Count() (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.entries)), nil
}

// Tamper overwrites the entry at index for chain-integrity tests.
func (r *MemoryRepository) Tamper(index int64, mutate func(*domain.AuditEntry)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if index >= 0 && index < int64(len(r.entries)) {
		mutate(&r.entries[index])
	}
}
