package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/leadrun/leadrun/pkg/execlog"
	"github.com/leadrun/leadrun/pkg/models"
)

// ExecutionLogRepository stores the append-only execution log.
type ExecutionLogRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewExecutionLogRepository creates a new execution log repository.
func NewExecutionLogRepository(db *sql.DB, logger *slog.Logger) *ExecutionLogRepository {
	return &ExecutionLogRepository{db: db, logger: logger}
}

// Append stores one log entry. Entries are never updated.
func (r *ExecutionLogRepository) Append(ctx context.Context, entry models.ExecutionLogEntry) error {
	if entry.ID == "" {
		entry.ID = execlog.NewEntryID()
	}

	query := `
		INSERT INTO execution_log (id, flow_id, lead_id, node_id, status, message, ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.ExecContext(ctx, query,
		entry.ID,
		entry.FlowID,
		entry.LeadID,
		entry.NodeID,
		string(entry.Status),
		entry.Message,
		entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to append execution log entry %s: %w", entry.ID, err)
	}

	return nil
}

// ByLead returns the execution log entries recorded for a lead, oldest first.
func (r *ExecutionLogRepository) ByLead(ctx context.Context, leadID string) ([]models.ExecutionLogEntry, error) {
	return r.query(ctx, `lead_id`, leadID)
}

// ByFlow returns the execution log entries recorded for a flow, oldest first.
func (r *ExecutionLogRepository) ByFlow(ctx context.Context, flowID string) ([]models.ExecutionLogEntry, error) {
	return r.query(ctx, `flow_id`, flowID)
}

func (r *ExecutionLogRepository) query(ctx context.Context, column, value string) ([]models.ExecutionLogEntry, error) {
	query := fmt.Sprintf(`
		SELECT
			id
		  , flow_id
		  , lead_id
		  , node_id
		  , status
		  , message
		  , ts
		FROM execution_log
		WHERE %s = $1
		ORDER BY ts ASC
	`, column)

	rows, err := r.db.QueryContext(ctx, query, value)
	if err != nil {
		return nil, fmt.Errorf("failed to query execution log: %w", err)
	}

	defer func(ctx context.Context, r *ExecutionLogRepository) {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}(ctx, r)

	entries := make([]models.ExecutionLogEntry, 0)

	for rows.Next() {
		entry, err := scanLogEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution log entry: %w", err)
		}

		entries = append(entries, entry)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating execution log: %w", err)
	}

	return entries, nil
}

func scanLogEntry(rows *sql.Rows) (models.ExecutionLogEntry, error) {
	var (
		entry  models.ExecutionLogEntry
		status string
	)

	err := rows.Scan(
		&entry.ID,
		&entry.FlowID,
		&entry.LeadID,
		&entry.NodeID,
		&status,
		&entry.Message,
		&entry.Timestamp,
	)
	if err != nil {
		return models.ExecutionLogEntry{}, err
	}

	entry.Status = models.ExecutionStatus(status)

	return entry, nil
}
