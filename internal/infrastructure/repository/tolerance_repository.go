package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/meridianrisk/raf-engine/internal/domain/appetite"
	domainerrors "github.com/meridianrisk/raf-engine/internal/domain/errors"
)

// ToleranceRepository persists tolerance limit configuration and the cached
// read-side columns the synchronizer maintains.
type ToleranceRepository struct {
	db DBTX
}

func NewToleranceRepository(db DBTX) *ToleranceRepository {
	return &ToleranceRepository{db: db}
}

const toleranceColumns = `
	id, organization_id, statement_id, metric_name, unit, direction,
	soft_limit, hard_limit, target_value, kri_id, enabled,
	latest_value, latest_observed_at, last_status, created_at, updated_at
`

func (r *ToleranceRepository) Create(ctx context.Context, t *appetite.ToleranceLimit) error {
	query := `
		INSERT INTO tolerance_limits (` + toleranceColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	_, err := r.db.Exec(ctx, query,
		t.ID, t.OrganizationID, t.StatementID, t.MetricName, t.Unit, t.Direction.String(),
		t.SoftLimit, t.HardLimit, t.Target, t.PrimaryKRIID, t.Enabled,
		t.LatestValue, t.LatestObservedAt, t.LastStatus.String(), t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create tolerance limit: %w", err)
	}

	return nil
}

func (r *ToleranceRepository) GetByID(ctx context.Context, id uuid.UUID) (*appetite.ToleranceLimit, error) {
	query := `SELECT ` + toleranceColumns + ` FROM tolerance_limits WHERE id = $1`

	t, err := scanTolerance(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if isNoRows(err) {
			return nil, domainerrors.ErrToleranceNotFound
		}
		return nil, fmt.Errorf("failed to get tolerance limit: %w", err)
	}

	return t, nil
}

// ListEnabledByOrganization returns the enabled limits a full sweep covers,
// in stable creation order.
func (r *ToleranceRepository) ListEnabledByOrganization(ctx context.Context, orgID uuid.UUID) ([]*appetite.ToleranceLimit, error) {
	query := `
		SELECT ` + toleranceColumns + `
		FROM tolerance_limits
		WHERE organization_id = $1 AND enabled
		ORDER BY created_at, id
	`

	return r.list(ctx, query, orgID)
}

// ListByIDs returns the named limits; unknown IDs are silently absent.
func (r *ToleranceRepository) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*appetite.ToleranceLimit, error) {
	query := `
		SELECT ` + toleranceColumns + `
		FROM tolerance_limits
		WHERE id = ANY($1)
		ORDER BY created_at, id
	`

	return r.list(ctx, query, ids)
}

// ListEnabledByPrimaryKRI returns the enabled limits whose evaluation
// depends on the given KRI.
func (r *ToleranceRepository) ListEnabledByPrimaryKRI(ctx context.Context, kriID uuid.UUID) ([]*appetite.ToleranceLimit, error) {
	query := `
		SELECT ` + toleranceColumns + `
		FROM tolerance_limits
		WHERE kri_id = $1 AND enabled
		ORDER BY created_at, id
	`

	return r.list(ctx, query, kriID)
}

// UpdateLastStatus refreshes the cached status column after a sweep
// evaluated the limit.
func (r *ToleranceRepository) UpdateLastStatus(ctx context.Context, id uuid.UUID, status appetite.RAGStatus) error {
	query := `
		UPDATE tolerance_limits
		SET last_status = $2, updated_at = $3
		WHERE id = $1
	`

	tag, err := r.db.Exec(ctx, query, id, status.String(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update tolerance status: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return domainerrors.ErrToleranceNotFound
	}

	return nil
}

func (r *ToleranceRepository) list(ctx context.Context, query string, args ...any) ([]*appetite.ToleranceLimit, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tolerance limits: %w", err)
	}
	defer rows.Close()

	var limits []*appetite.ToleranceLimit
	for rows.Next() {
		t, err := scanTolerance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tolerance limit: %w", err)
		}
		limits = append(limits, t)
	}

	return limits, rows.Err()
}

func scanTolerance(row pgx.Row) (*appetite.ToleranceLimit, error) {
	var t appetite.ToleranceLimit
	var direction, lastStatus string

	err := row.Scan(
		&t.ID, &t.OrganizationID, &t.StatementID, &t.MetricName, &t.Unit, &direction,
		&t.SoftLimit, &t.HardLimit, &t.Target, &t.PrimaryKRIID, &t.Enabled,
		&t.LatestValue, &t.LatestObservedAt, &lastStatus, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	// Malformed stored values degrade to UNKNOWN at evaluation time rather
	// than failing the read.
	if t.Direction, err = appetite.ParseDirection(direction); err != nil {
		t.Direction = appetite.Direction(-1)
	}
	if t.LastStatus, err = appetite.ParseRAGStatus(lastStatus); err != nil {
		t.LastStatus = appetite.StatusUnknown
	}

	return &t, nil
}
