package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	domainerrors "github.com/meridianrisk/raf-engine/internal/domain/errors"
	"github.com/meridianrisk/raf-engine/internal/domain/recalc"
	"github.com/meridianrisk/raf-engine/internal/infrastructure/telemetry"
)

// RecalcRunRepository persists recalculation runs. The runs table doubles as
// the per-organization advisory lock: a partial unique index on
// organization_id WHERE outcome = 'running' guarantees at most one active
// run per organization, even across independent processes.
type RecalcRunRepository struct {
	db      DBTX
	logger  *zap.Logger
	metrics *telemetry.Metrics
}

// NewRecalcRunRepository builds the run repository. metrics may be nil.
func NewRecalcRunRepository(db DBTX, logger *zap.Logger, metrics *telemetry.Metrics) *RecalcRunRepository {
	return &RecalcRunRepository{db: db, logger: logger, metrics: metrics}
}

// Acquire attempts to take the organization's recalculation lock by creating
// a run in running state. Acquisition is non-blocking: if another run is
// active and not stale, the caller gets a contention error immediately.
// A run left in running state past the staleness timeout is treated as
// abandoned: it is marked failed and its lock reclaimed as a single step.
func (r *RecalcRunRepository) Acquire(ctx context.Context, run *recalc.Run, staleness time.Duration) error {
	// Reclaim any abandoned lock first. The reclamation and the insert
	// below race safely: the partial unique index arbitrates.
	reclaimQuery := `
		UPDATE recalc_runs
		SET outcome = 'failed', completed_at = $3,
		    error_detail = 'lock reclaimed: run exceeded staleness timeout'
		WHERE organization_id = $1 AND outcome = 'running' AND started_at <= $2
	`

	now := time.Now().UTC()
	tag, err := r.db.Exec(ctx, reclaimQuery, run.OrganizationID, now.Add(-staleness), now)
	if err != nil {
		return fmt.Errorf("failed to reclaim stale recalc lock: %w", err)
	}
	if tag.RowsAffected() > 0 {
		r.metrics.StaleLockReclaimed()
		r.logger.Warn("reclaimed stale recalculation lock",
			zap.String("organization_id", run.OrganizationID.String()),
			zap.Int64("orphaned_runs", tag.RowsAffected()))
	}

	insertQuery := `
		INSERT INTO recalc_runs (
			id, organization_id, lock_token, started_at, outcome, scope
		)
		SELECT $1, $2, $3, $4, 'running', $5
		WHERE NOT EXISTS (
			SELECT 1 FROM recalc_runs
			WHERE organization_id = $2 AND outcome = 'running'
		)
	`

	tag, err = r.db.Exec(ctx, insertQuery,
		run.ID, run.OrganizationID, run.LockToken, run.StartedAt, scopeArray(run.Scope),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domainerrors.ErrRecalcInProgress
		}
		return fmt.Errorf("failed to acquire recalc lock: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return domainerrors.ErrRecalcInProgress
	}

	return nil
}

// Complete finalizes a run and releases the organization lock in one step.
func (r *RecalcRunRepository) Complete(ctx context.Context, runID uuid.UUID, outcome recalc.Outcome, effectiveness *decimal.Decimal, skipped []uuid.UUID, errorDetail *string) error {
	if outcome == recalc.OutcomeRunning {
		return fmt.Errorf("cannot complete a run with outcome running")
	}

	query := `
		UPDATE recalc_runs
		SET outcome = $2, completed_at = $3, control_effectiveness = $4,
		    skipped_tolerances = $5, error_detail = $6
		WHERE id = $1 AND outcome = 'running'
	`

	tag, err := r.db.Exec(ctx, query,
		runID, outcome.String(), time.Now().UTC(), effectiveness, scopeArray(skipped), errorDetail,
	)
	if err != nil {
		return fmt.Errorf("failed to complete recalc run: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return domainerrors.ErrRunNotFound
	}

	return nil
}

// Latest returns the most recent run for an organization, or nil when none
// has ever executed. Backs the "last recalculated at / currently running"
// indicator.
func (r *RecalcRunRepository) Latest(ctx context.Context, orgID uuid.UUID) (*recalc.Run, error) {
	query := `
		SELECT id, organization_id, lock_token, started_at, completed_at,
		       outcome, scope, control_effectiveness, skipped_tolerances, error_detail
		FROM recalc_runs
		WHERE organization_id = $1
		ORDER BY started_at DESC
		LIMIT 1
	`

	var run recalc.Run
	var outcome string
	var scope, skipped []uuid.UUID

	err := r.db.QueryRow(ctx, query, orgID).Scan(
		&run.ID, &run.OrganizationID, &run.LockToken, &run.StartedAt, &run.CompletedAt,
		&outcome, &scope, &run.ControlEffectiveness, &skipped, &run.ErrorDetail,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load latest recalc run: %w", err)
	}

	run.Scope = scope
	run.SkippedTolerances = skipped
	if run.Outcome, err = recalc.ParseOutcome(outcome); err != nil {
		return nil, fmt.Errorf("stored run %s: %w", run.ID, err)
	}

	return &run, nil
}

// scopeArray normalizes an empty scope to NULL so full sweeps are
// distinguishable from empty scoped runs.
func scopeArray(ids []uuid.UUID) any {
	if len(ids) == 0 {
		return nil
	}
	return ids
}
