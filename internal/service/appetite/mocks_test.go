package appetite

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridianrisk/raf-engine/internal/domain/appetite"
	"github.com/meridianrisk/raf-engine/internal/domain/control"
	domainerrors "github.com/meridianrisk/raf-engine/internal/domain/errors"
	"github.com/meridianrisk/raf-engine/internal/domain/kri"
	"github.com/meridianrisk/raf-engine/internal/domain/recalc"
)

// The sweep is stateful end to end (history feeds transition decisions), so
// these are in-memory fakes rather than expectation mocks: each one mirrors
// the semantics of its pgx counterpart closely enough for scenario tests.

type fakeToleranceRepo struct {
	mu     sync.Mutex
	limits map[uuid.UUID]*appetite.ToleranceLimit
}

func newFakeToleranceRepo() *fakeToleranceRepo {
	return &fakeToleranceRepo{limits: make(map[uuid.UUID]*appetite.ToleranceLimit)}
}

func (r *fakeToleranceRepo) add(l *appetite.ToleranceLimit) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limits[l.ID] = l
}

func (r *fakeToleranceRepo) GetByID(_ context.Context, id uuid.UUID) (*appetite.ToleranceLimit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.limits[id]
	if !ok {
		return nil, domainerrors.ErrToleranceNotFound
	}
	cp := *l
	return &cp, nil
}

func (r *fakeToleranceRepo) ListEnabledByOrganization(_ context.Context, orgID uuid.UUID) ([]*appetite.ToleranceLimit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*appetite.ToleranceLimit
	for _, l := range r.limits {
		if l.OrganizationID == orgID && l.Enabled {
			cp := *l
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (r *fakeToleranceRepo) ListByIDs(_ context.Context, ids []uuid.UUID) ([]*appetite.ToleranceLimit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*appetite.ToleranceLimit
	for _, id := range ids {
		if l, ok := r.limits[id]; ok {
			cp := *l
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeToleranceRepo) UpdateLastStatus(_ context.Context, id uuid.UUID, status appetite.RAGStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.limits[id]
	if !ok {
		return domainerrors.ErrToleranceNotFound
	}
	l.LastStatus = status
	return nil
}

type fakeKRIRepo struct {
	mu           sync.Mutex
	definitions  map[uuid.UUID]*kri.Definition
	observations []*kri.Observation

	latestErr map[uuid.UUID]error // per-KRI injected read failures
}

func newFakeKRIRepo() *fakeKRIRepo {
	return &fakeKRIRepo{
		definitions: make(map[uuid.UUID]*kri.Definition),
		latestErr:   make(map[uuid.UUID]error),
	}
}

func (r *fakeKRIRepo) addDefinition(d *kri.Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.definitions[d.ID] = d
}

func (r *fakeKRIRepo) addObservation(o *kri.Observation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observations = append(r.observations, o)
}

func (r *fakeKRIRepo) GetByID(_ context.Context, id uuid.UUID) (*kri.Definition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.definitions[id]
	if !ok {
		return nil, domainerrors.ErrKRINotFound
	}
	cp := *d
	return &cp, nil
}

func (r *fakeKRIRepo) LatestObservation(_ context.Context, kriID uuid.UUID, asOf time.Time) (*kri.Observation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.latestErr[kriID]; err != nil {
		return nil, err
	}

	var latest *kri.Observation
	for _, o := range r.observations {
		if o.KRIID != kriID || o.MeasuredAt.After(asOf) {
			continue
		}
		if latest == nil || o.MeasuredAt.After(latest.MeasuredAt) {
			latest = o
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

// fakeRecorder implements ObservationRecorder against the fake repos,
// mirroring the transactional sync repository.
type fakeRecorder struct {
	kris       *fakeKRIRepo
	tolerances *fakeToleranceRepo
	err        error
}

func (r *fakeRecorder) RecordObservation(_ context.Context, obs *kri.Observation) ([]uuid.UUID, error) {
	if r.err != nil {
		return nil, r.err
	}

	r.kris.addObservation(obs)

	r.tolerances.mu.Lock()
	defer r.tolerances.mu.Unlock()
	var affected []uuid.UUID
	for _, l := range r.tolerances.limits {
		if l.PrimaryKRIID != nil && *l.PrimaryKRIID == obs.KRIID && l.Enabled {
			v := obs.Value
			at := obs.MeasuredAt
			l.LatestValue = &v
			l.LatestObservedAt = &at
			affected = append(affected, l.ID)
		}
	}
	return affected, nil
}

type fakeSnapshotRepo struct {
	mu        sync.Mutex
	snapshots []*appetite.StatusSnapshot
	appendErr error
}

func (r *fakeSnapshotRepo) Append(_ context.Context, s *appetite.StatusSnapshot) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.appendErr != nil {
		return false, r.appendErr
	}
	for _, existing := range r.snapshots {
		if existing.ToleranceID == s.ToleranceID && existing.RunID == s.RunID {
			return false, nil
		}
	}
	r.snapshots = append(r.snapshots, s)
	return true, nil
}

func (r *fakeSnapshotRepo) StatusHistory(_ context.Context, toleranceID uuid.UUID, limit int) ([]appetite.RAGStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var history []appetite.RAGStatus
	for _, s := range r.snapshots {
		if s.ToleranceID == toleranceID {
			history = append(history, s.Status)
		}
	}
	if len(history) > limit {
		history = history[len(history)-limit:]
	}
	return history, nil
}

func (r *fakeSnapshotRepo) statusesFor(toleranceID uuid.UUID) []appetite.RAGStatus {
	history, _ := r.StatusHistory(context.Background(), toleranceID, 1<<30)
	return history
}

type fakeBreachRepo struct {
	mu        sync.Mutex
	breaches  []*appetite.Breach
	alerts    []*appetite.Alert
	createErr error
}

func (r *fakeBreachRepo) Create(_ context.Context, b *appetite.Breach) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	cp := *b
	r.breaches = append(r.breaches, &cp)
	return nil
}

func (r *fakeBreachRepo) ResolveAboveSeverity(_ context.Context, toleranceID uuid.UUID, severity int, at time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	resolved := 0
	for _, b := range r.breaches {
		if b.ToleranceID != toleranceID || b.ResolvedAt != nil {
			continue
		}
		if b.Level.Severity() > severity {
			b.Resolve(at)
			resolved++
		}
	}
	return resolved, nil
}

func (r *fakeBreachRepo) ListByTolerance(_ context.Context, toleranceID uuid.UUID, limit int) ([]*appetite.Breach, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*appetite.Breach
	for i := len(r.breaches) - 1; i >= 0 && len(out) < limit; i-- {
		if r.breaches[i].ToleranceID == toleranceID {
			cp := *r.breaches[i]
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeBreachRepo) CreateAlert(_ context.Context, a *appetite.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *a
	r.alerts = append(r.alerts, &cp)
	return nil
}

// fakeRunRepo mirrors the CAS-on-insert lock semantics of the pg
// repository, including stale-lock reclamation.
type fakeRunRepo struct {
	mu   sync.Mutex
	runs []*recalc.Run
}

func (r *fakeRunRepo) Acquire(_ context.Context, run *recalc.Run, staleness time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	for _, existing := range r.runs {
		if existing.OrganizationID != run.OrganizationID || existing.Outcome != recalc.OutcomeRunning {
			continue
		}
		if existing.IsStale(staleness, now) {
			existing.Outcome = recalc.OutcomeFailed
			existing.CompletedAt = &now
			detail := "lock reclaimed: run exceeded staleness timeout"
			existing.ErrorDetail = &detail
			continue
		}
		return domainerrors.ErrRecalcInProgress
	}

	cp := *run
	r.runs = append(r.runs, &cp)
	return nil
}

func (r *fakeRunRepo) Complete(_ context.Context, runID uuid.UUID, outcome recalc.Outcome, effectiveness *decimal.Decimal, skipped []uuid.UUID, errorDetail *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, run := range r.runs {
		if run.ID == runID && run.Outcome == recalc.OutcomeRunning {
			now := time.Now().UTC()
			run.Outcome = outcome
			run.CompletedAt = &now
			run.ControlEffectiveness = effectiveness
			run.SkippedTolerances = skipped
			run.ErrorDetail = errorDetail
			return nil
		}
	}
	return domainerrors.ErrRunNotFound
}

func (r *fakeRunRepo) Latest(_ context.Context, orgID uuid.UUID) (*recalc.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *recalc.Run
	for _, run := range r.runs {
		if run.OrganizationID != orgID {
			continue
		}
		if latest == nil || run.StartedAt.After(latest.StartedAt) {
			latest = run
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (r *fakeRunRepo) get(runID uuid.UUID) *recalc.Run {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, run := range r.runs {
		if run.ID == runID {
			cp := *run
			return &cp
		}
	}
	return nil
}

type fakeDIMERepo struct {
	mu     sync.Mutex
	scores []*control.DIMEScore
}

func (r *fakeDIMERepo) ListByOrganization(_ context.Context, orgID uuid.UUID) ([]*control.DIMEScore, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*control.DIMEScore
	for _, s := range r.scores {
		if s.OrganizationID == orgID {
			out = append(out, s)
		}
	}
	return out, nil
}
