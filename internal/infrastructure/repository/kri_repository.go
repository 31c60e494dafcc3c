package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	domainerrors "github.com/meridianrisk/raf-engine/internal/domain/errors"
	"github.com/meridianrisk/raf-engine/internal/domain/kri"
)

// KRIRepository persists KRI definitions and their append-only observations.
type KRIRepository struct {
	db DBTX
}

func NewKRIRepository(db DBTX) *KRIRepository {
	return &KRIRepository{db: db}
}

func (r *KRIRepository) Create(ctx context.Context, d *kri.Definition) error {
	query := `
		INSERT INTO kri_definitions (
			id, organization_id, code, name, unit, frequency,
			amber_threshold, red_threshold, enabled, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.db.Exec(ctx, query,
		d.ID, d.OrganizationID, d.Code, d.Name, d.Unit, d.Frequency.String(),
		d.AmberThreshold, d.RedThreshold, d.Enabled, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domainerrors.NewConflictError(fmt.Sprintf("KRI with code %s already exists", d.Code))
		}
		return fmt.Errorf("failed to create KRI definition: %w", err)
	}

	return nil
}

func (r *KRIRepository) GetByID(ctx context.Context, id uuid.UUID) (*kri.Definition, error) {
	query := `
		SELECT id, organization_id, code, name, unit, frequency,
		       amber_threshold, red_threshold, enabled, created_at, updated_at
		FROM kri_definitions
		WHERE id = $1
	`

	var d kri.Definition
	var frequency string

	err := r.db.QueryRow(ctx, query, id).Scan(
		&d.ID, &d.OrganizationID, &d.Code, &d.Name, &d.Unit, &frequency,
		&d.AmberThreshold, &d.RedThreshold, &d.Enabled, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, domainerrors.ErrKRINotFound
		}
		return nil, fmt.Errorf("failed to get KRI definition: %w", err)
	}

	d.Frequency, err = kri.ParseFrequency(frequency)
	if err != nil {
		return nil, fmt.Errorf("stored KRI %s: %w", d.ID, err)
	}

	return &d, nil
}

// SetEnabled soft-enables or soft-disables a definition. Definitions are
// never hard-deleted while referenced, to preserve alert provenance.
func (r *KRIRepository) SetEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	query := `
		UPDATE kri_definitions
		SET enabled = $2, updated_at = $3
		WHERE id = $1
	`

	tag, err := r.db.Exec(ctx, query, id, enabled, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update KRI definition: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return domainerrors.ErrKRINotFound
	}

	return nil
}

// LatestObservation returns the most recent observation for a KRI measured
// at or before asOf, or nil when the KRI has never been observed.
func (r *KRIRepository) LatestObservation(ctx context.Context, kriID uuid.UUID, asOf time.Time) (*kri.Observation, error) {
	query := `
		SELECT id, kri_id, value, measured_at, notes, created_at
		FROM kri_observations
		WHERE kri_id = $1 AND measured_at <= $2
		ORDER BY measured_at DESC
		LIMIT 1
	`

	var o kri.Observation
	err := r.db.QueryRow(ctx, query, kriID, asOf).Scan(
		&o.ID, &o.KRIID, &o.Value, &o.MeasuredAt, &o.Notes, &o.CreatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest observation: %w", err)
	}

	return &o, nil
}

// ListObservations returns observations for a KRI ordered oldest to newest.
func (r *KRIRepository) ListObservations(ctx context.Context, kriID uuid.UUID, limit int) ([]*kri.Observation, error) {
	query := `
		SELECT id, kri_id, value, measured_at, notes, created_at
		FROM (
			SELECT id, kri_id, value, measured_at, notes, created_at
			FROM kri_observations
			WHERE kri_id = $1
			ORDER BY measured_at DESC
			LIMIT $2
		) recent
		ORDER BY measured_at ASC
	`

	rows, err := r.db.Query(ctx, query, kriID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list observations: %w", err)
	}
	defer rows.Close()

	var observations []*kri.Observation
	for rows.Next() {
		var o kri.Observation
		if err := rows.Scan(&o.ID, &o.KRIID, &o.Value, &o.MeasuredAt, &o.Notes, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan observation: %w", err)
		}
		observations = append(observations, &o)
	}

	return observations, rows.Err()
}
