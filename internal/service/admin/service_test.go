package admin

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/meridianrisk/raf-engine/internal/domain/appetite"
	"github.com/meridianrisk/raf-engine/internal/domain/control"
	domainerrors "github.com/meridianrisk/raf-engine/internal/domain/errors"
	"github.com/meridianrisk/raf-engine/internal/domain/kri"
)

type fakeKRIStore struct {
	created      []*kri.Definition
	enabledCalls map[uuid.UUID]bool
	observations []*kri.Observation
	getErr       error
}

func (s *fakeKRIStore) Create(_ context.Context, d *kri.Definition) error {
	s.created = append(s.created, d)
	return nil
}

func (s *fakeKRIStore) GetByID(_ context.Context, id uuid.UUID) (*kri.Definition, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	for _, d := range s.created {
		if d.ID == id {
			return d, nil
		}
	}
	return nil, domainerrors.ErrKRINotFound
}

func (s *fakeKRIStore) SetEnabled(_ context.Context, id uuid.UUID, enabled bool) error {
	if s.enabledCalls == nil {
		s.enabledCalls = make(map[uuid.UUID]bool)
	}
	s.enabledCalls[id] = enabled
	return nil
}

func (s *fakeKRIStore) ListObservations(_ context.Context, kriID uuid.UUID, limit int) ([]*kri.Observation, error) {
	var out []*kri.Observation
	for _, o := range s.observations {
		if o.KRIID == kriID && len(out) < limit {
			out = append(out, o)
		}
	}
	return out, nil
}

type fakeToleranceStore struct {
	created   []*appetite.ToleranceLimit
	byKRI     []*appetite.ToleranceLimit
	byKRIErr  error
	createErr error
}

func (s *fakeToleranceStore) Create(_ context.Context, t *appetite.ToleranceLimit) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.created = append(s.created, t)
	return nil
}

func (s *fakeToleranceStore) ListEnabledByPrimaryKRI(context.Context, uuid.UUID) ([]*appetite.ToleranceLimit, error) {
	return s.byKRI, s.byKRIErr
}

type fakeDIMEStore struct {
	upserted []*control.DIMEScore
}

func (s *fakeDIMEStore) Upsert(_ context.Context, score *control.DIMEScore) error {
	s.upserted = append(s.upserted, score)
	return nil
}

type fakeInvalidator struct {
	invalidated []uuid.UUID
}

func (f *fakeInvalidator) Invalidate(_ context.Context, id uuid.UUID) error {
	f.invalidated = append(f.invalidated, id)
	return nil
}

func TestCreateKRI(t *testing.T) {
	kris := &fakeKRIStore{}
	svc := NewService(kris, &fakeToleranceStore{}, &fakeDIMEStore{}, nil, zap.NewNop())

	def, err := svc.CreateKRI(context.Background(), CreateKRIInput{
		OrganizationID: uuid.New(),
		Code:           "OPS-LOSS-01",
		Name:           "Monthly operational loss",
		Unit:           "USD",
		Frequency:      "monthly",
		AmberThreshold: decimal.RequireFromString("50000"),
		RedThreshold:   decimal.RequireFromString("100000"),
	})
	require.NoError(t, err)
	assert.True(t, def.Enabled)
	assert.Equal(t, kri.FrequencyMonthly, def.Frequency)
	require.Len(t, kris.created, 1)
}

func TestCreateKRI_InvalidFrequency(t *testing.T) {
	svc := NewService(&fakeKRIStore{}, &fakeToleranceStore{}, &fakeDIMEStore{}, nil, zap.NewNop())

	_, err := svc.CreateKRI(context.Background(), CreateKRIInput{
		OrganizationID: uuid.New(),
		Code:           "X",
		Name:           "x",
		Frequency:      "hourly",
	})
	require.Error(t, err)
	assert.True(t, domainerrors.IsType(err, domainerrors.ErrorTypeValidation))
}

func TestSetKRIEnabled_DisableInvalidatesBadges(t *testing.T) {
	kriID := uuid.New()
	limit, err := appetite.NewToleranceLimit(uuid.New(), uuid.New(), "loss", "USD",
		appetite.DirectionAbove, decimal.RequireFromString("1"), decimal.RequireFromString("2"))
	require.NoError(t, err)

	kris := &fakeKRIStore{}
	tolerances := &fakeToleranceStore{byKRI: []*appetite.ToleranceLimit{limit}}
	badges := &fakeInvalidator{}
	svc := NewService(kris, tolerances, &fakeDIMEStore{}, badges, zap.NewNop())

	require.NoError(t, svc.SetKRIEnabled(context.Background(), kriID, false))
	assert.Equal(t, map[uuid.UUID]bool{kriID: false}, kris.enabledCalls)
	assert.Equal(t, []uuid.UUID{limit.ID}, badges.invalidated)
}

func TestSetKRIEnabled_EnableSkipsInvalidation(t *testing.T) {
	kris := &fakeKRIStore{}
	badges := &fakeInvalidator{}
	svc := NewService(kris, &fakeToleranceStore{}, &fakeDIMEStore{}, badges, zap.NewNop())

	require.NoError(t, svc.SetKRIEnabled(context.Background(), uuid.New(), true))
	assert.Empty(t, badges.invalidated)
}

func TestSetKRIEnabled_ListFailureIsNotFatal(t *testing.T) {
	tolerances := &fakeToleranceStore{byKRIErr: errors.New("db down")}
	svc := NewService(&fakeKRIStore{}, tolerances, &fakeDIMEStore{}, &fakeInvalidator{}, zap.NewNop())

	assert.NoError(t, svc.SetKRIEnabled(context.Background(), uuid.New(), false))
}

func TestListObservations(t *testing.T) {
	kris := &fakeKRIStore{}
	svc := NewService(kris, &fakeToleranceStore{}, &fakeDIMEStore{}, nil, zap.NewNop())

	def, err := svc.CreateKRI(context.Background(), CreateKRIInput{
		OrganizationID: uuid.New(),
		Code:           "OPS-01",
		Name:           "ops",
		Frequency:      "daily",
	})
	require.NoError(t, err)

	obs, err := kri.NewObservation(def.ID, decimal.RequireFromString("5"), time.Now().UTC(), nil)
	require.NoError(t, err)
	kris.observations = append(kris.observations, obs)

	got, err := svc.ListObservations(context.Background(), def.ID, 0)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	_, err = svc.ListObservations(context.Background(), uuid.New(), 10)
	assert.True(t, domainerrors.IsType(err, domainerrors.ErrorTypeNotFound))
}

func TestCreateTolerance(t *testing.T) {
	tolerances := &fakeToleranceStore{}
	svc := NewService(&fakeKRIStore{}, tolerances, &fakeDIMEStore{}, nil, zap.NewNop())

	kriID := uuid.New()
	limit, err := svc.CreateTolerance(context.Background(), CreateToleranceInput{
		OrganizationID: uuid.New(),
		StatementID:    uuid.New(),
		MetricName:     "operational loss",
		Unit:           "USD",
		Direction:      "above",
		SoftLimit:      decimal.RequireFromString("50"),
		HardLimit:      decimal.RequireFromString("80"),
		PrimaryKRIID:   &kriID,
	})
	require.NoError(t, err)
	require.NotNil(t, limit.PrimaryKRIID)
	assert.Equal(t, kriID, *limit.PrimaryKRIID)
	require.Len(t, tolerances.created, 1)
}

func TestCreateTolerance_Outside(t *testing.T) {
	svc := NewService(&fakeKRIStore{}, &fakeToleranceStore{}, &fakeDIMEStore{}, nil, zap.NewNop())

	target := decimal.RequireFromString("100")
	limit, err := svc.CreateTolerance(context.Background(), CreateToleranceInput{
		OrganizationID: uuid.New(),
		StatementID:    uuid.New(),
		MetricName:     "FX exposure",
		Unit:           "%",
		Direction:      "outside",
		SoftLimit:      decimal.RequireFromString("5"),
		HardLimit:      decimal.RequireFromString("10"),
		Target:         &target,
	})
	require.NoError(t, err)
	require.NotNil(t, limit.Target)
	assert.True(t, limit.Target.Equal(target))

	// Outside without a target is rejected.
	_, err = svc.CreateTolerance(context.Background(), CreateToleranceInput{
		OrganizationID: uuid.New(),
		StatementID:    uuid.New(),
		MetricName:     "FX exposure",
		Direction:      "outside",
		SoftLimit:      decimal.RequireFromString("5"),
		HardLimit:      decimal.RequireFromString("10"),
	})
	assert.True(t, domainerrors.IsType(err, domainerrors.ErrorTypeValidation))
}

func TestCreateTolerance_InvalidDirection(t *testing.T) {
	svc := NewService(&fakeKRIStore{}, &fakeToleranceStore{}, &fakeDIMEStore{}, nil, zap.NewNop())

	_, err := svc.CreateTolerance(context.Background(), CreateToleranceInput{
		OrganizationID: uuid.New(),
		StatementID:    uuid.New(),
		MetricName:     "x",
		Direction:      "sideways",
		SoftLimit:      decimal.RequireFromString("1"),
		HardLimit:      decimal.RequireFromString("2"),
	})
	assert.True(t, domainerrors.IsType(err, domainerrors.ErrorTypeValidation))
}

func TestScoreControl(t *testing.T) {
	dimes := &fakeDIMEStore{}
	svc := NewService(&fakeKRIStore{}, &fakeToleranceStore{}, dimes, nil, zap.NewNop())

	score, err := svc.ScoreControl(context.Background(), ScoreControlInput{
		OrganizationID: uuid.New(),
		ControlID:      uuid.New(),
		Design:         3,
		Implementation: 2,
		Monitoring:     1,
		Effectiveness:  2,
	})
	require.NoError(t, err)
	assert.Equal(t, 8, score.Total())
	require.Len(t, dimes.upserted, 1)

	_, err = svc.ScoreControl(context.Background(), ScoreControlInput{
		OrganizationID: uuid.New(),
		ControlID:      uuid.New(),
		Design:         4,
	})
	assert.True(t, domainerrors.IsType(err, domainerrors.ErrorTypeValidation))
}
