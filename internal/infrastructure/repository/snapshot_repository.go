package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/meridianrisk/raf-engine/internal/domain/appetite"
)

// SnapshotRepository persists the append-only per-run status history.
type SnapshotRepository struct {
	db DBTX
}

func NewSnapshotRepository(db DBTX) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// Append writes a snapshot and reports whether a row was actually inserted.
// Snapshots are content-addressed by (tolerance_id, run_id): re-running a
// sweep for the same run is a no-op, which is what makes retry-by-rerun
// safe. When inserted is false the caller must skip breach/alert side
// effects too.
func (r *SnapshotRepository) Append(ctx context.Context, s *appetite.StatusSnapshot) (inserted bool, err error) {
	query := `
		INSERT INTO tolerance_status_snapshots (
			id, tolerance_id, run_id, status, value, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tolerance_id, run_id) DO NOTHING
	`

	tag, err := r.db.Exec(ctx, query,
		s.ID, s.ToleranceID, s.RunID, s.Status.String(), s.Value, s.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to append status snapshot: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// StatusHistory returns the most recent statuses for a tolerance limit,
// ordered oldest to newest, capped at limit entries.
func (r *SnapshotRepository) StatusHistory(ctx context.Context, toleranceID uuid.UUID, limit int) ([]appetite.RAGStatus, error) {
	query := `
		SELECT status
		FROM (
			SELECT status, created_at, id
			FROM tolerance_status_snapshots
			WHERE tolerance_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.db.Query(ctx, query, toleranceID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load status history: %w", err)
	}
	defer rows.Close()

	var history []appetite.RAGStatus
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan status: %w", err)
		}

		status, err := appetite.ParseRAGStatus(raw)
		if err != nil {
			return nil, fmt.Errorf("stored snapshot for tolerance %s: %w", toleranceID, err)
		}
		history = append(history, status)
	}

	return history, rows.Err()
}
