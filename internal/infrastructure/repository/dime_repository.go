package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/meridianrisk/raf-engine/internal/domain/control"
)

// DIMERepository persists per-control DIME scores.
type DIMERepository struct {
	db DBTX
}

func NewDIMERepository(db DBTX) *DIMERepository {
	return &DIMERepository{db: db}
}

// Upsert stores a control's score, replacing any previous rating.
func (r *DIMERepository) Upsert(ctx context.Context, s *control.DIMEScore) error {
	query := `
		INSERT INTO dime_scores (
			id, organization_id, control_id, design, implementation,
			monitoring, effectiveness, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (control_id) DO UPDATE SET
			design = EXCLUDED.design,
			implementation = EXCLUDED.implementation,
			monitoring = EXCLUDED.monitoring,
			effectiveness = EXCLUDED.effectiveness,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.Exec(ctx, query,
		s.ID, s.OrganizationID, s.ControlID, s.Design, s.Implementation,
		s.Monitoring, s.Effectiveness, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert DIME score: %w", err)
	}

	return nil
}

// ListByOrganization returns all scored controls for the rollup.
func (r *DIMERepository) ListByOrganization(ctx context.Context, orgID uuid.UUID) ([]*control.DIMEScore, error) {
	query := `
		SELECT id, organization_id, control_id, design, implementation,
		       monitoring, effectiveness, created_at, updated_at
		FROM dime_scores
		WHERE organization_id = $1
		ORDER BY control_id
	`

	rows, err := r.db.Query(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list DIME scores: %w", err)
	}
	defer rows.Close()

	var scores []*control.DIMEScore
	for rows.Next() {
		var s control.DIMEScore
		if err := rows.Scan(
			&s.ID, &s.OrganizationID, &s.ControlID, &s.Design, &s.Implementation,
			&s.Monitoring, &s.Effectiveness, &s.CreatedAt, &s.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan DIME score: %w", err)
		}
		scores = append(scores, &s)
	}

	return scores, rows.Err()
}
