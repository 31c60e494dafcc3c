package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridianrisk/raf-engine/internal/domain/kri"
)

// SyncRepository is the transactional boundary of the KRI-tolerance
// synchronizer: recording an observation and refreshing the cached latest
// value of every referencing tolerance limit commit or roll back as one
// unit, so a reader can never observe a half-updated cache.
type SyncRepository struct {
	pool *pgxpool.Pool
}

func NewSyncRepository(pool *pgxpool.Pool) *SyncRepository {
	return &SyncRepository{pool: pool}
}

// RecordObservation appends the observation and updates the latest-value
// cache of every enabled tolerance limit whose primary KRI matches,
// returning the IDs of the affected limits so the caller can trigger a
// scoped re-evaluation for exactly those.
//
// The update is guarded against out-of-order recording: a backfilled
// observation older than the current cached measurement leaves the cache
// untouched (the limit still gets re-evaluated against the true latest).
func (r *SyncRepository) RecordObservation(ctx context.Context, obs *kri.Observation) ([]uuid.UUID, error) {
	var affected []uuid.UUID

	err := pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		insertQuery := `
			INSERT INTO kri_observations (
				id, kri_id, value, measured_at, notes, created_at
			) VALUES ($1, $2, $3, $4, $5, $6)
		`

		if _, err := tx.Exec(ctx, insertQuery,
			obs.ID, obs.KRIID, obs.Value, obs.MeasuredAt, obs.Notes, obs.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to insert observation: %w", err)
		}

		updateQuery := `
			UPDATE tolerance_limits
			SET latest_value = $2, latest_observed_at = $3, updated_at = now()
			WHERE kri_id = $1 AND enabled
			  AND (latest_observed_at IS NULL OR latest_observed_at <= $3)
		`

		if _, err := tx.Exec(ctx, updateQuery, obs.KRIID, obs.Value, obs.MeasuredAt); err != nil {
			return fmt.Errorf("failed to update cached latest values: %w", err)
		}

		selectQuery := `
			SELECT id FROM tolerance_limits
			WHERE kri_id = $1 AND enabled
			ORDER BY created_at, id
		`

		rows, err := tx.Query(ctx, selectQuery, obs.KRIID)
		if err != nil {
			return fmt.Errorf("failed to select affected tolerance limits: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var id uuid.UUID
			if err := rows.Scan(&id); err != nil {
				return fmt.Errorf("failed to scan tolerance ID: %w", err)
			}
			affected = append(affected, id)
		}

		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	return affected, nil
}
