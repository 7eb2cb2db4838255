package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/leadrun/leadrun/pkg/models"
	"github.com/leadrun/leadrun/pkg/persistence"
)

// FlowRepository handles flow-related database operations.
type FlowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewFlowRepository creates a new flow repository.
func NewFlowRepository(db *sql.DB, logger *slog.Logger) *FlowRepository {
	return &FlowRepository{db: db, logger: logger}
}

const flowColumns = `
	id
  , name
  , trigger
  , nodes
  , edges
  , is_active
  , executions_count
  , created_at
  , updated_at
`

// GetAll returns all flows, newest first.
func (r *FlowRepository) GetAll(ctx context.Context) ([]*models.Flow, error) {
	query := `SELECT ` + flowColumns + ` FROM flows ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query flows: %w", err)
	}

	defer func(ctx context.Context, r *FlowRepository) {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}(ctx, r)

	flows := make([]*models.Flow, 0)

	for rows.Next() {
		flow, err := r.scanFlow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan flow: %w", err)
		}

		flows = append(flows, flow)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating flows: %w", err)
	}

	return flows, nil
}

// GetByID returns a flow by its ID.
func (r *FlowRepository) GetByID(ctx context.Context, id string) (*models.Flow, error) {
	query := `SELECT ` + flowColumns + ` FROM flows WHERE id = $1`

	flow, err := r.scanFlow(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewFlowError("FlowByID", id, persistence.ErrFlowNotFound)
		}

		return nil, persistence.NewFlowError("FlowByID", id, err)
	}

	return flow, nil
}

// GetByTrigger returns active flows registered for the given trigger.
func (r *FlowRepository) GetByTrigger(ctx context.Context, trigger models.FlowTrigger) ([]*models.Flow, error) {
	query := `
		SELECT ` + flowColumns + `
		FROM flows
		WHERE trigger = $1 AND is_active = true
		ORDER BY created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, string(trigger))
	if err != nil {
		return nil, fmt.Errorf("failed to query flows by trigger: %w", err)
	}

	defer func(ctx context.Context, r *FlowRepository) {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}(ctx, r)

	flows := make([]*models.Flow, 0)

	for rows.Next() {
		flow, err := r.scanFlow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan flow: %w", err)
		}

		flows = append(flows, flow)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating flows: %w", err)
	}

	return flows, nil
}

// Save inserts or updates a flow.
func (r *FlowRepository) Save(ctx context.Context, flow *models.Flow) error {
	now := time.Now().UTC()

	if flow.ID == "" {
		flow.ID = uuid.New().String()
	}

	if flow.CreatedAt.IsZero() {
		flow.CreatedAt = now
	}

	flow.UpdatedAt = now

	nodesJSON, err := json.Marshal(flow.Nodes)
	if err != nil {
		return persistence.NewFlowError("SaveFlow", flow.ID, fmt.Errorf("failed to marshal nodes: %w", err))
	}

	edgesJSON, err := json.Marshal(flow.Edges)
	if err != nil {
		return persistence.NewFlowError("SaveFlow", flow.ID, fmt.Errorf("failed to marshal edges: %w", err))
	}

	query := `
		INSERT INTO flows (id, name, trigger, nodes, edges, is_active, executions_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			trigger = EXCLUDED.trigger,
			nodes = EXCLUDED.nodes,
			edges = EXCLUDED.edges,
			is_active = EXCLUDED.is_active,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		flow.ID,
		flow.Name,
		string(flow.Trigger),
		nodesJSON,
		edgesJSON,
		flow.IsActive,
		flow.ExecutionsCount,
		flow.CreatedAt,
		flow.UpdatedAt,
	)
	if err != nil {
		return persistence.NewFlowError("SaveFlow", flow.ID, err)
	}

	return nil
}

// IncrementExecutions bumps the executions counter in a single statement so
// concurrent runs never lose increments.
func (r *FlowRepository) IncrementExecutions(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE flows SET executions_count = executions_count + 1, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return persistence.NewFlowError("IncrementFlowExecutions", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewFlowError("IncrementFlowExecutions", id, err)
	}

	if affected == 0 {
		return persistence.NewFlowError("IncrementFlowExecutions", id, persistence.ErrFlowNotFound)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *FlowRepository) scanFlow(row rowScanner) (*models.Flow, error) {
	var (
		flow      models.Flow
		trigger   string
		nodesJSON []byte
		edgesJSON []byte
	)

	err := row.Scan(
		&flow.ID,
		&flow.Name,
		&trigger,
		&nodesJSON,
		&edgesJSON,
		&flow.IsActive,
		&flow.ExecutionsCount,
		&flow.CreatedAt,
		&flow.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	flow.Trigger = models.FlowTrigger(trigger)

	err = json.Unmarshal(nodesJSON, &flow.Nodes)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal nodes: %w", err)
	}

	err = json.Unmarshal(edgesJSON, &flow.Edges)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal edges: %w", err)
	}

	return &flow, nil
}
