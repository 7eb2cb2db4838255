// Package execlog defines the append-only execution log sink and an
// in-memory implementation for development and tests.
package execlog

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/leadrun/leadrun/pkg/models"
)

// Sink appends node-level execution records. Entries are never mutated after
// write; the read path serves the audit/replay UI.
type Sink interface {
	Append(ctx context.Context, entry models.ExecutionLogEntry) error
	EntriesByLead(ctx context.Context, leadID string) ([]models.ExecutionLogEntry, error)
	EntriesByFlow(ctx context.Context, flowID string) ([]models.ExecutionLogEntry, error)
}

// NewEntryID generates an identifier for a log entry.
func NewEntryID() string {
	return "log-" + uuid.New().String()
}

// MemorySink keeps entries in memory, in append order.
type MemorySink struct {
	mu      sync.RWMutex
	entries []models.ExecutionLogEntry
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Append(_ context.Context, entry models.ExecutionLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = NewEntryID()
	}

	s.entries = append(s.entries, entry)

	return nil
}

func (s *MemorySink) EntriesByLead(_ context.Context, leadID string) ([]models.ExecutionLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]models.ExecutionLogEntry, 0)

	for _, entry := range s.entries {
		if entry.LeadID == leadID {
			entries = append(entries, entry)
		}
	}

	return entries, nil
}

func (s *MemorySink) EntriesByFlow(_ context.Context, flowID string) ([]models.ExecutionLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]models.ExecutionLogEntry, 0)

	for _, entry := range s.entries {
		if entry.FlowID == flowID {
			entries = append(entries, entry)
		}
	}

	return entries, nil
}

// All returns every entry in append order.
func (s *MemorySink) All() []models.ExecutionLogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]models.ExecutionLogEntry(nil), s.entries...)
}
