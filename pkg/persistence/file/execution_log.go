package file

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/leadrun/leadrun/pkg/execlog"
	"github.com/leadrun/leadrun/pkg/models"
)

const execlogDir = "execlog"

// Append writes one immutable execution log entry.
func (p *Persistence) Append(_ context.Context, entry models.ExecutionLogEntry) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if entry.ID == "" {
		entry.ID = execlog.NewEntryID()
	}

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	return p.write(execlogDir, entry.ID, entry)
}

// EntriesByLead returns a lead's log entries in timestamp order.
func (p *Persistence) EntriesByLead(_ context.Context, leadID string) ([]models.ExecutionLogEntry, error) {
	return p.entries(func(entry models.ExecutionLogEntry) bool {
		return entry.LeadID == leadID
	})
}

// EntriesByFlow returns a flow's log entries in timestamp order.
func (p *Persistence) EntriesByFlow(_ context.Context, flowID string) ([]models.ExecutionLogEntry, error) {
	return p.entries(func(entry models.ExecutionLogEntry) bool {
		return entry.FlowID == flowID
	})
}

func (p *Persistence) entries(match func(models.ExecutionLogEntry) bool) ([]models.ExecutionLogEntry, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	entries := make([]models.ExecutionLogEntry, 0)

	err := p.readEach(execlogDir, func(data []byte) error {
		var entry models.ExecutionLogEntry

		err := json.Unmarshal(data, &entry)
		if err != nil {
			return fmt.Errorf("failed to decode log entry: %w", err)
		}

		if match(entry) {
			entries = append(entries, entry)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})

	return entries, nil
}
