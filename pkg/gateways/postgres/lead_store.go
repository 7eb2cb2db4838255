// Package postgres provides a PostgreSQL-backed lead store. It owns the lead,
// tag and stage-history tables; in deployments where the CRM manages those
// tables itself, the migration set here bootstraps development and staging
// databases.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	// PostgreSQL driver.
	_ "github.com/lib/pq"

	"github.com/leadrun/leadrun/pkg/gateways"
	"github.com/leadrun/leadrun/pkg/models"
	"github.com/leadrun/leadrun/pkg/persistence/sqlbase"
)

// LeadStore implements gateways.LeadStore on PostgreSQL.
type LeadStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewLeadStore connects to the lead database and runs schema migrations.
// Migrations are tracked in a dedicated table so the lead store can share a
// database with the automation store.
func NewLeadStore(ctx context.Context, logger *slog.Logger, databaseURL string) (*LeadStore, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to lead database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping lead database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManagerWithTable(logger, database, "lead_schema_migrations", migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run lead store migrations: %w", err)
	}

	return &LeadStore{db: database, logger: logger}, nil
}

// Close closes the database connection.
func (s *LeadStore) Close() error {
	return s.db.Close()
}

// HealthCheck pings the database.
func (s *LeadStore) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const leadColumns = `
	id
  , name
  , phone
  , stage_id
  , responsible_id
  , channel_id
  , messenger_id
  , attributes
  , created_at
  , updated_at
`

// LeadByID returns the lead with its tags. The row and its tag set are read
// in one transaction so condition evaluation sees a coherent snapshot.
func (s *LeadStore) LeadByID(ctx context.Context, id string) (*models.Lead, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to begin lead read: %w", err)
	}

	defer func() {
		_ = tx.Rollback()
	}()

	query := `SELECT ` + leadColumns + ` FROM leads WHERE id = $1`

	lead, err := scanLead(tx.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("lead %s: %w", id, gateways.ErrLeadNotFound)
		}

		return nil, fmt.Errorf("failed to read lead %s: %w", id, err)
	}

	tags, err := s.leadTags(ctx, tx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to read tags for lead %s: %w", id, err)
	}

	lead.Tags = tags

	return lead, nil
}

// SetStage updates the lead's current stage.
func (s *LeadStore) SetStage(ctx context.Context, leadID, stageID string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE leads SET stage_id = $2, updated_at = NOW() WHERE id = $1`,
		leadID, stageID)
	if err != nil {
		return fmt.Errorf("failed to set stage for lead %s: %w", leadID, err)
	}

	return s.requireLead(result, leadID)
}

// AppendStageHistory records a stage transition.
func (s *LeadStore) AppendStageHistory(ctx context.Context, change models.StageChange) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO stage_history (lead_id, from_stage_id, to_stage_id, author_id, changed_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		change.LeadID, change.FromStageID, change.ToStageID, change.AuthorID, change.ChangedAt)
	if err != nil {
		return fmt.Errorf("failed to append stage history for lead %s: %w", change.LeadID, err)
	}

	return nil
}

// AddTag attaches a tag to the lead. Adding an already-present tag is a
// no-op.
func (s *LeadStore) AddTag(ctx context.Context, leadID, tagID string) error {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO lead_tags (lead_id, tag_id)
		 SELECT id, $2 FROM leads WHERE id = $1
		 ON CONFLICT (lead_id, tag_id) DO NOTHING`,
		leadID, tagID)
	if err != nil {
		return fmt.Errorf("failed to add tag %s to lead %s: %w", tagID, leadID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to add tag %s to lead %s: %w", tagID, leadID, err)
	}

	if affected == 0 {
		// Either the lead is missing or the tag was already attached;
		// only the former is an error.
		return s.checkLeadExists(ctx, leadID)
	}

	return nil
}

// RemoveTag detaches a tag from the lead. Removing an absent tag is a no-op.
func (s *LeadStore) RemoveTag(ctx context.Context, leadID, tagID string) error {
	err := s.checkLeadExists(ctx, leadID)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`DELETE FROM lead_tags WHERE lead_id = $1 AND tag_id = $2`,
		leadID, tagID)
	if err != nil {
		return fmt.Errorf("failed to remove tag %s from lead %s: %w", tagID, leadID, err)
	}

	return nil
}

// SetResponsible updates the user responsible for the lead.
func (s *LeadStore) SetResponsible(ctx context.Context, leadID, userID string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE leads SET responsible_id = $2, updated_at = NOW() WHERE id = $1`,
		leadID, userID)
	if err != nil {
		return fmt.Errorf("failed to set responsible for lead %s: %w", leadID, err)
	}

	return s.requireLead(result, leadID)
}

// SaveLead upserts a lead record. Tags are managed through AddTag and
// RemoveTag and are left untouched.
func (s *LeadStore) SaveLead(ctx context.Context, lead *models.Lead) error {
	attributes, err := json.Marshal(lead.Attributes)
	if err != nil {
		return fmt.Errorf("failed to marshal attributes for lead %s: %w", lead.ID, err)
	}

	now := time.Now().UTC()

	createdAt := lead.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	query := `
		INSERT INTO leads (` + leadColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			phone = EXCLUDED.phone,
			stage_id = EXCLUDED.stage_id,
			responsible_id = EXCLUDED.responsible_id,
			channel_id = EXCLUDED.channel_id,
			messenger_id = EXCLUDED.messenger_id,
			attributes = EXCLUDED.attributes,
			updated_at = EXCLUDED.updated_at
	`

	_, err = s.db.ExecContext(ctx, query,
		lead.ID, lead.Name, lead.Phone, lead.StageID, lead.ResponsibleID,
		lead.ChannelID, lead.MessengerID, attributes, createdAt, now)
	if err != nil {
		return fmt.Errorf("failed to save lead %s: %w", lead.ID, err)
	}

	return nil
}

// SaveTag upserts a tag definition.
func (s *LeadStore) SaveTag(ctx context.Context, tag models.Tag) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tags (id, name) VALUES ($1, $2)
		 ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`,
		tag.ID, tag.Name)
	if err != nil {
		return fmt.Errorf("failed to save tag %s: %w", tag.ID, err)
	}

	return nil
}

func (s *LeadStore) leadTags(ctx context.Context, tx *sql.Tx, leadID string) ([]models.Tag, error) {
	query := `
		SELECT lt.tag_id, COALESCE(t.name, '')
		FROM lead_tags lt
		LEFT JOIN tags t ON t.id = lt.tag_id
		WHERE lt.lead_id = $1
		ORDER BY lt.tag_id
	`

	rows, err := tx.QueryContext(ctx, query, leadID)
	if err != nil {
		return nil, err
	}

	defer func(ctx context.Context, r *sql.Rows) {
		err := r.Close()
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to close rows", "error", err)
		}
	}(ctx, rows)

	var tags []models.Tag

	for rows.Next() {
		var tag models.Tag

		err := rows.Scan(&tag.ID, &tag.Name)
		if err != nil {
			return nil, err
		}

		tags = append(tags, tag)
	}

	return tags, rows.Err()
}

func (s *LeadStore) checkLeadExists(ctx context.Context, leadID string) error {
	var exists bool

	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM leads WHERE id = $1)`, leadID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check lead %s: %w", leadID, err)
	}

	if !exists {
		return fmt.Errorf("lead %s: %w", leadID, gateways.ErrLeadNotFound)
	}

	return nil
}

func (s *LeadStore) requireLead(result sql.Result, leadID string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update lead %s: %w", leadID, err)
	}

	if affected == 0 {
		return fmt.Errorf("lead %s: %w", leadID, gateways.ErrLeadNotFound)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLead(row rowScanner) (*models.Lead, error) {
	var (
		lead       models.Lead
		attributes []byte
	)

	err := row.Scan(
		&lead.ID, &lead.Name, &lead.Phone, &lead.StageID, &lead.ResponsibleID,
		&lead.ChannelID, &lead.MessengerID, &attributes,
		&lead.CreatedAt, &lead.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if len(attributes) > 0 {
		err = json.Unmarshal(attributes, &lead.Attributes)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal attributes: %w", err)
		}
	}

	return &lead, nil
}
