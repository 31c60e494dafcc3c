package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/meridianrisk/raf-engine/internal/domain/appetite"
)

// BreachRepository persists appetite breaches and their companion alerts.
type BreachRepository struct {
	db DBTX
}

func NewBreachRepository(db DBTX) *BreachRepository {
	return &BreachRepository{db: db}
}

func (r *BreachRepository) Create(ctx context.Context, b *appetite.Breach) error {
	query := `
		INSERT INTO appetite_breaches (
			id, tolerance_id, run_id, period, rag_level,
			consecutive_count, windowed_count, detected_at, resolved_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.Exec(ctx, query,
		b.ID, b.ToleranceID, b.RunID, b.Period, b.Level.String(),
		b.ConsecutiveCount, b.WindowedCount, b.DetectedAt, b.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create appetite breach: %w", err)
	}

	return nil
}

// ResolveAboveSeverity stamps resolved_at on every unresolved breach of the
// tolerance limit whose level is strictly more severe than the given
// severity, and returns how many were resolved. De-escalating RED to AMBER
// resolves the RED breach while the AMBER one stays open; returning to GREEN
// (severity 0) resolves everything.
func (r *BreachRepository) ResolveAboveSeverity(ctx context.Context, toleranceID uuid.UUID, severity int, at time.Time) (int, error) {
	var levels []string
	switch {
	case severity <= 0:
		levels = []string{appetite.StatusAmber.String(), appetite.StatusRed.String()}
	case severity == 1:
		levels = []string{appetite.StatusRed.String()}
	default:
		return 0, nil
	}

	query := `
		UPDATE appetite_breaches
		SET resolved_at = $3
		WHERE tolerance_id = $1 AND resolved_at IS NULL AND rag_level = ANY($2)
	`

	tag, err := r.db.Exec(ctx, query, toleranceID, levels, at.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to resolve appetite breaches: %w", err)
	}

	return int(tag.RowsAffected()), nil
}

// ListByTolerance returns breaches for a limit, newest first.
func (r *BreachRepository) ListByTolerance(ctx context.Context, toleranceID uuid.UUID, limit int) ([]*appetite.Breach, error) {
	query := `
		SELECT id, tolerance_id, run_id, period, rag_level,
		       consecutive_count, windowed_count, detected_at, resolved_at
		FROM appetite_breaches
		WHERE tolerance_id = $1
		ORDER BY detected_at DESC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, toleranceID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list appetite breaches: %w", err)
	}
	defer rows.Close()

	var breaches []*appetite.Breach
	for rows.Next() {
		var b appetite.Breach
		var level string
		if err := rows.Scan(
			&b.ID, &b.ToleranceID, &b.RunID, &b.Period, &level,
			&b.ConsecutiveCount, &b.WindowedCount, &b.DetectedAt, &b.ResolvedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan appetite breach: %w", err)
		}

		if b.Level, err = appetite.ParseRAGStatus(level); err != nil {
			return nil, fmt.Errorf("stored breach %s: %w", b.ID, err)
		}
		breaches = append(breaches, &b)
	}

	return breaches, rows.Err()
}

// CreateAlert materializes the notification-worthy companion event of a
// breach transition.
func (r *BreachRepository) CreateAlert(ctx context.Context, a *appetite.Alert) error {
	query := `
		INSERT INTO kri_alerts (
			id, tolerance_id, kri_id, rag_level, message, triggered_at
		) VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.Exec(ctx, query,
		a.ID, a.ToleranceID, a.KRIID, a.Level.String(), a.Message, a.TriggeredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create KRI alert: %w", err)
	}

	return nil
}
