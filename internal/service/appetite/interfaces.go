package appetite

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridianrisk/raf-engine/internal/domain/appetite"
	"github.com/meridianrisk/raf-engine/internal/domain/control"
	"github.com/meridianrisk/raf-engine/internal/domain/kri"
	"github.com/meridianrisk/raf-engine/internal/domain/recalc"
)

// Service drives tolerance evaluation, the KRI-tolerance synchronizer and
// the per-organization recalculation sweep.
type Service interface {
	// RecordObservation appends a KRI measurement, atomically refreshes
	// the cached latest value of every referencing tolerance limit, and
	// triggers a scoped re-evaluation for exactly those limits.
	RecordObservation(ctx context.Context, input RecordObservationInput) (*kri.Observation, error)

	// RecalculateOrganization runs a full sweep over every enabled
	// tolerance limit of the organization, guarded by the exclusive
	// per-organization lock.
	RecalculateOrganization(ctx context.Context, orgID uuid.UUID) (*recalc.Run, error)

	// RecalculateTolerances is the scoped fast path: same lock, same
	// per-limit stepping, restricted to the given limits.
	RecalculateTolerances(ctx context.Context, orgID uuid.UUID, toleranceIDs []uuid.UUID) (*recalc.Run, error)

	// EvaluateTolerance computes the current RAG status of one limit
	// on demand, without a sweep and without persisted side effects.
	EvaluateTolerance(ctx context.Context, toleranceID uuid.UUID) (appetite.Evaluation, error)

	// AcquireRecalcLock and CompleteRecalcRun are the two operations an
	// external driver needs to run a sweep under its own control.
	AcquireRecalcLock(ctx context.Context, orgID uuid.UUID) (*recalc.Run, error)
	CompleteRecalcRun(ctx context.Context, runID uuid.UUID, outcome recalc.Outcome) error

	// LatestRun backs the "last recalculated at / currently running"
	// indicator.
	LatestRun(ctx context.Context, orgID uuid.UUID) (*recalc.Run, error)

	// Read-only trend queries for dashboards.
	ConsecutiveBreachPeriods(ctx context.Context, toleranceID uuid.UUID) (int, error)
	BreachesInWindow(ctx context.Context, toleranceID uuid.UUID, window int) (int, error)
	ListBreaches(ctx context.Context, toleranceID uuid.UUID, limit int) ([]*appetite.Breach, error)
}

// RecordObservationInput carries a new KRI measurement.
type RecordObservationInput struct {
	KRIID      uuid.UUID
	Value      decimal.Decimal
	MeasuredAt time.Time
	Notes      *string
}

// ToleranceRepository provides tolerance limit configuration.
type ToleranceRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*appetite.ToleranceLimit, error)
	ListEnabledByOrganization(ctx context.Context, orgID uuid.UUID) ([]*appetite.ToleranceLimit, error)
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*appetite.ToleranceLimit, error)
	UpdateLastStatus(ctx context.Context, id uuid.UUID, status appetite.RAGStatus) error
}

// KRIRepository provides KRI definitions and observation lookups.
type KRIRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*kri.Definition, error)
	LatestObservation(ctx context.Context, kriID uuid.UUID, asOf time.Time) (*kri.Observation, error)
}

// ObservationRecorder is the synchronizer's transactional write path.
type ObservationRecorder interface {
	RecordObservation(ctx context.Context, obs *kri.Observation) (affected []uuid.UUID, err error)
}

// SnapshotRepository persists the append-only status history.
type SnapshotRepository interface {
	Append(ctx context.Context, s *appetite.StatusSnapshot) (inserted bool, err error)
	StatusHistory(ctx context.Context, toleranceID uuid.UUID, limit int) ([]appetite.RAGStatus, error)
}

// BreachRepository persists breaches and their companion alerts.
type BreachRepository interface {
	Create(ctx context.Context, b *appetite.Breach) error
	ResolveAboveSeverity(ctx context.Context, toleranceID uuid.UUID, severity int, at time.Time) (int, error)
	ListByTolerance(ctx context.Context, toleranceID uuid.UUID, limit int) ([]*appetite.Breach, error)
	CreateAlert(ctx context.Context, a *appetite.Alert) error
}

// RunRepository owns the recalc audit trail and the organization lock.
type RunRepository interface {
	Acquire(ctx context.Context, run *recalc.Run, staleness time.Duration) error
	Complete(ctx context.Context, runID uuid.UUID, outcome recalc.Outcome, effectiveness *decimal.Decimal, skipped []uuid.UUID, errorDetail *string) error
	Latest(ctx context.Context, orgID uuid.UUID) (*recalc.Run, error)
}

// DIMERepository provides the scored controls for the effectiveness rollup.
type DIMERepository interface {
	ListByOrganization(ctx context.Context, orgID uuid.UUID) ([]*control.DIMEScore, error)
}

// StatusBadgeCache is the optional read-side badge cache; a nil cache
// disables it.
type StatusBadgeCache interface {
	SetBadge(ctx context.Context, toleranceID uuid.UUID, eval appetite.Evaluation, computedAt time.Time) error
}
