package appetite

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meridianrisk/raf-engine/internal/domain/appetite"
	"github.com/meridianrisk/raf-engine/internal/domain/control"
	domainerrors "github.com/meridianrisk/raf-engine/internal/domain/errors"
	"github.com/meridianrisk/raf-engine/internal/domain/kri"
	"github.com/meridianrisk/raf-engine/internal/domain/recalc"
	"github.com/meridianrisk/raf-engine/internal/infrastructure/telemetry"
)

// Config carries the evaluation policy knobs the service needs.
type Config struct {
	// BreachWindow is the trailing period count for the windowed breach
	// count recorded on new breaches.
	BreachWindow int

	// LockStaleness is how long a running sweep may hold the
	// per-organization lock before it is treated as abandoned.
	LockStaleness time.Duration

	// SweepParallelism bounds concurrent per-limit evaluation inside one
	// sweep. Limits have no data dependency on each other; each limit's
	// rows are only written by the single active sweep.
	SweepParallelism int

	// HistoryDepth caps how much status history is loaded per limit.
	HistoryDepth int
}

// service implements the Service interface
type service struct {
	tolerances ToleranceRepository
	kris       KRIRepository
	recorder   ObservationRecorder
	snapshots  SnapshotRepository
	breaches   BreachRepository
	runs       RunRepository
	dimes      DIMERepository
	badges     StatusBadgeCache
	metrics    *telemetry.Metrics
	logger     *zap.Logger
	cfg        Config
}

// NewService creates the appetite evaluation service. badges and metrics
// may be nil.
func NewService(
	tolerances ToleranceRepository,
	kris KRIRepository,
	recorder ObservationRecorder,
	snapshots SnapshotRepository,
	breaches BreachRepository,
	runs RunRepository,
	dimes DIMERepository,
	badges StatusBadgeCache,
	metrics *telemetry.Metrics,
	logger *zap.Logger,
	cfg Config,
) Service {
	if cfg.BreachWindow <= 0 {
		cfg.BreachWindow = 12
	}
	if cfg.LockStaleness <= 0 {
		cfg.LockStaleness = 15 * time.Minute
	}
	if cfg.SweepParallelism <= 0 {
		cfg.SweepParallelism = 1
	}
	if cfg.HistoryDepth < cfg.BreachWindow {
		cfg.HistoryDepth = cfg.BreachWindow
	}

	return &service{
		tolerances: tolerances,
		kris:       kris,
		recorder:   recorder,
		snapshots:  snapshots,
		breaches:   breaches,
		runs:       runs,
		dimes:      dimes,
		badges:     badges,
		metrics:    metrics,
		logger:     logger,
		cfg:        cfg,
	}
}

// RecalculateOrganization runs a full sweep for one organization.
func (s *service) RecalculateOrganization(ctx context.Context, orgID uuid.UUID) (*recalc.Run, error) {
	run, err := s.acquire(ctx, orgID, nil)
	if err != nil {
		return nil, err
	}

	limits, err := s.tolerances.ListEnabledByOrganization(ctx, orgID)
	if err != nil {
		return run, s.failRun(ctx, run, domainerrors.Wrap(err, "listing tolerance limits"))
	}

	return s.sweep(ctx, run, limits)
}

// RecalculateTolerances is the scoped fast path used after an observation
// lands. It takes the same per-organization lock as a full sweep, so the
// two can never interleave.
func (s *service) RecalculateTolerances(ctx context.Context, orgID uuid.UUID, toleranceIDs []uuid.UUID) (*recalc.Run, error) {
	if len(toleranceIDs) == 0 {
		return nil, domainerrors.NewValidationError("EMPTY_SCOPE", "scoped recalculation requires at least one tolerance limit")
	}

	run, err := s.acquire(ctx, orgID, toleranceIDs)
	if err != nil {
		return nil, err
	}

	limits, err := s.tolerances.ListByIDs(ctx, toleranceIDs)
	if err != nil {
		return run, s.failRun(ctx, run, domainerrors.Wrap(err, "listing scoped tolerance limits"))
	}

	// Scope rows to the locked organization; disabled limits are not
	// re-evaluated.
	scoped := limits[:0]
	for _, limit := range limits {
		if limit.OrganizationID == orgID && limit.Enabled {
			scoped = append(scoped, limit)
		}
	}

	return s.sweep(ctx, run, scoped)
}

// AcquireRecalcLock exposes lock acquisition for external sweep drivers.
func (s *service) AcquireRecalcLock(ctx context.Context, orgID uuid.UUID) (*recalc.Run, error) {
	return s.acquire(ctx, orgID, nil)
}

// CompleteRecalcRun finalizes an externally driven run and releases its
// lock.
func (s *service) CompleteRecalcRun(ctx context.Context, runID uuid.UUID, outcome recalc.Outcome) error {
	return s.runs.Complete(ctx, runID, outcome, nil, nil, nil)
}

// LatestRun returns the most recent run for an organization, or nil.
func (s *service) LatestRun(ctx context.Context, orgID uuid.UUID) (*recalc.Run, error) {
	return s.runs.Latest(ctx, orgID)
}

// EvaluateTolerance computes the current status of one limit without a
// sweep. No snapshots, breaches or alerts are written.
func (s *service) EvaluateTolerance(ctx context.Context, toleranceID uuid.UUID) (appetite.Evaluation, error) {
	limit, err := s.tolerances.GetByID(ctx, toleranceID)
	if err != nil {
		return appetite.Evaluation{}, err
	}

	obs, err := s.latestObservation(ctx, limit, time.Now().UTC())
	if err != nil {
		return appetite.Evaluation{}, err
	}

	return appetite.Evaluate(limit, obs), nil
}

// ConsecutiveBreachPeriods returns the current uninterrupted breach streak
// for a tolerance limit.
func (s *service) ConsecutiveBreachPeriods(ctx context.Context, toleranceID uuid.UUID) (int, error) {
	history, err := s.snapshots.StatusHistory(ctx, toleranceID, s.cfg.HistoryDepth)
	if err != nil {
		return 0, err
	}
	return appetite.ConsecutiveBreachStreak(history), nil
}

// BreachesInWindow counts breach periods within the trailing window; a
// non-positive window falls back to the configured policy window.
func (s *service) BreachesInWindow(ctx context.Context, toleranceID uuid.UUID, window int) (int, error) {
	if window <= 0 {
		window = s.cfg.BreachWindow
	}

	depth := s.cfg.HistoryDepth
	if window > depth {
		depth = window
	}

	history, err := s.snapshots.StatusHistory(ctx, toleranceID, depth)
	if err != nil {
		return 0, err
	}
	return appetite.BreachesInWindow(history, window), nil
}

// ListBreaches returns recorded breaches for a tolerance limit, newest
// first.
func (s *service) ListBreaches(ctx context.Context, toleranceID uuid.UUID, limit int) ([]*appetite.Breach, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.breaches.ListByTolerance(ctx, toleranceID, limit)
}

// acquire creates the run row and takes the organization lock as one atomic
// step. Contention is an expected condition and is not logged as an error.
func (s *service) acquire(ctx context.Context, orgID uuid.UUID, scope []uuid.UUID) (*recalc.Run, error) {
	run, err := recalc.NewRun(orgID, scope)
	if err != nil {
		return nil, domainerrors.NewValidationError("INVALID_ORGANIZATION", err.Error())
	}

	if err := s.runs.Acquire(ctx, run, s.cfg.LockStaleness); err != nil {
		if domainerrors.IsContention(err) {
			s.metrics.LockContended()
			s.logger.Info("recalculation already in progress",
				zap.String("organization_id", orgID.String()))
		}
		return nil, err
	}

	return run, nil
}

// sweep evaluates every limit, records snapshots and breach transitions,
// recomputes the DIME rollup and finalizes the run. Per-limit read failures
// are isolated; a failed write aborts the sweep with everything written so
// far left intact.
func (s *service) sweep(ctx context.Context, run *recalc.Run, limits []*appetite.ToleranceLimit) (*recalc.Run, error) {
	start := time.Now()

	var (
		mu       sync.Mutex
		skipped  []uuid.UUID
		fatalErr error
	)

	sem := make(chan struct{}, s.cfg.SweepParallelism)
	var wg sync.WaitGroup

	for _, limit := range limits {
		mu.Lock()
		aborted := fatalErr != nil
		mu.Unlock()
		if aborted {
			break
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(limit *appetite.ToleranceLimit) {
			defer wg.Done()
			defer func() { <-sem }()

			skip, err := s.evaluateAndRecord(ctx, run, limit)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case skip:
				skipped = append(skipped, limit.ID)
				s.metrics.LimitSkipped()
				s.logger.Warn("tolerance limit skipped during sweep",
					zap.String("run_id", run.ID.String()),
					zap.String("tolerance_id", limit.ID.String()),
					zap.Error(err))
			case err != nil && fatalErr == nil:
				fatalErr = err
			}
		}(limit)
	}
	wg.Wait()

	if fatalErr != nil {
		return run, s.failRunSkipped(ctx, run, skipped, fatalErr)
	}

	scores, err := s.dimes.ListByOrganization(ctx, run.OrganizationID)
	if err != nil {
		return run, s.failRunSkipped(ctx, run, skipped, domainerrors.Wrap(err, "loading DIME scores"))
	}
	effectiveness := control.Rollup(scores)

	if err := s.runs.Complete(ctx, run.ID, recalc.OutcomeCompleted, effectiveness, skipped, nil); err != nil {
		return run, domainerrors.Wrap(err, "finalizing recalc run")
	}

	now := time.Now().UTC()
	run.Outcome = recalc.OutcomeCompleted
	run.CompletedAt = &now
	run.ControlEffectiveness = effectiveness
	run.SkippedTolerances = skipped

	s.metrics.ObserveSweep(time.Since(start))
	s.logger.Info("recalculation sweep completed",
		zap.String("run_id", run.ID.String()),
		zap.String("organization_id", run.OrganizationID.String()),
		zap.Int("limits_evaluated", len(limits)-len(skipped)),
		zap.Int("limits_skipped", len(skipped)),
		zap.Duration("duration", time.Since(start)))

	return run, nil
}

// evaluateAndRecord runs one limit through the evaluator, appends the
// snapshot and records breach transitions. skip=true means the limit's
// evaluation failed in a recoverable way and the sweep should continue
// without it; a non-nil error with skip=false is fatal to the sweep.
func (s *service) evaluateAndRecord(ctx context.Context, run *recalc.Run, limit *appetite.ToleranceLimit) (skip bool, err error) {
	now := time.Now().UTC()

	obs, err := s.latestObservation(ctx, limit, now)
	if err != nil {
		return true, err
	}

	eval := appetite.Evaluate(limit, obs)

	history, err := s.snapshots.StatusHistory(ctx, limit.ID, s.cfg.HistoryDepth)
	if err != nil {
		return true, err
	}

	snapshot, err := appetite.NewStatusSnapshot(limit.ID, run.ID, eval)
	if err != nil {
		return true, err
	}

	inserted, err := s.snapshots.Append(ctx, snapshot)
	if err != nil {
		return false, domainerrors.Wrap(err, "appending status snapshot")
	}
	if !inserted {
		// Snapshot for this (tolerance, run) already exists: a rerun of
		// the same run. All side effects were taken the first time.
		return false, nil
	}

	if err := s.recordTransition(ctx, run, limit, history, eval, now); err != nil {
		return false, err
	}

	if err := s.tolerances.UpdateLastStatus(ctx, limit.ID, eval.Status); err != nil {
		return false, domainerrors.Wrap(err, "updating cached status")
	}

	if s.badges != nil {
		if err := s.badges.SetBadge(ctx, limit.ID, eval, now); err != nil {
			s.logger.Warn("badge cache update failed",
				zap.String("tolerance_id", limit.ID.String()),
				zap.Error(err))
		}
	}

	s.metrics.LimitEvaluated()
	return false, nil
}

// recordTransition materializes breach/alert rows when severity strictly
// increases and resolves open breaches when it decreases. Re-evaluating an
// unchanged status is a strict no-op.
func (s *service) recordTransition(ctx context.Context, run *recalc.Run, limit *appetite.ToleranceLimit, history []appetite.RAGStatus, eval appetite.Evaluation, now time.Time) error {
	prevSeverity := 0
	if len(history) > 0 {
		prevSeverity = history[len(history)-1].Severity()
	}
	newSeverity := eval.Status.Severity()

	switch {
	case newSeverity > prevSeverity:
		withNew := append(append([]appetite.RAGStatus{}, history...), eval.Status)
		streak := appetite.ConsecutiveBreachStreak(withNew)
		windowed := appetite.BreachesInWindow(withNew, s.cfg.BreachWindow)

		breach, err := appetite.NewBreach(limit.ID, run.ID, eval.Status, streak, windowed, now)
		if err != nil {
			return err
		}
		if err := s.breaches.Create(ctx, breach); err != nil {
			return domainerrors.Wrap(err, "recording appetite breach")
		}

		alert, err := appetite.NewAlert(limit, eval.Status, now)
		if err != nil {
			return err
		}
		if err := s.breaches.CreateAlert(ctx, alert); err != nil {
			return domainerrors.Wrap(err, "recording KRI alert")
		}

		s.metrics.BreachOpened(eval.Status.String())
		s.logger.Warn("tolerance breach recorded",
			zap.String("tolerance_id", limit.ID.String()),
			zap.String("metric", limit.MetricName),
			zap.String("level", eval.Status.String()),
			zap.Int("consecutive", streak),
			zap.Int("windowed", windowed))

	case newSeverity < prevSeverity:
		resolved, err := s.breaches.ResolveAboveSeverity(ctx, limit.ID, newSeverity, now)
		if err != nil {
			return domainerrors.Wrap(err, "resolving appetite breaches")
		}
		for i := 0; i < resolved; i++ {
			s.metrics.BreachResolved()
		}
	}

	return nil
}

// latestObservation resolves the limit's latest applicable observation;
// limits without a primary KRI have none by definition.
func (s *service) latestObservation(ctx context.Context, limit *appetite.ToleranceLimit, asOf time.Time) (*kri.Observation, error) {
	if limit.PrimaryKRIID == nil {
		return nil, nil
	}
	return s.kris.LatestObservation(ctx, *limit.PrimaryKRIID, asOf)
}

// failRun marks the run failed and releases the lock, keeping partial
// progress intact for audit.
func (s *service) failRun(ctx context.Context, run *recalc.Run, cause error) error {
	return s.failRunSkipped(ctx, run, nil, cause)
}

func (s *service) failRunSkipped(ctx context.Context, run *recalc.Run, skipped []uuid.UUID, cause error) error {
	detail := cause.Error()
	if err := s.runs.Complete(ctx, run.ID, recalc.OutcomeFailed, nil, skipped, &detail); err != nil {
		s.logger.Error("failed to finalize failed recalc run",
			zap.String("run_id", run.ID.String()),
			zap.Error(err))
	}

	now := time.Now().UTC()
	run.Outcome = recalc.OutcomeFailed
	run.CompletedAt = &now
	run.SkippedTolerances = skipped
	run.ErrorDetail = &detail

	s.logger.Error("recalculation sweep failed",
		zap.String("run_id", run.ID.String()),
		zap.String("organization_id", run.OrganizationID.String()),
		zap.Error(cause))

	return fmt.Errorf("recalculation sweep failed: %w", cause)
}
