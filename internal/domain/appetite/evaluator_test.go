package appetite

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianrisk/raf-engine/internal/domain/kri"
)

// newTestLimit builds an enabled limit with a linked KRI without going
// through threshold validation, so malformed configurations can be exercised
// too.
func newTestLimit(t *testing.T, direction Direction, soft, hard string) *ToleranceLimit {
	t.Helper()
	kriID := uuid.New()
	return &ToleranceLimit{
		ID:             uuid.New(),
		OrganizationID: uuid.New(),
		StatementID:    uuid.New(),
		MetricName:     "operational loss",
		Unit:           "USD",
		Direction:      direction,
		SoftLimit:      decimal.RequireFromString(soft),
		HardLimit:      decimal.RequireFromString(hard),
		PrimaryKRIID:   &kriID,
		Enabled:        true,
		LastStatus:     StatusNoData,
	}
}

func newTestObservation(t *testing.T, kriID uuid.UUID, value string) *kri.Observation {
	t.Helper()
	obs, err := kri.NewObservation(kriID, decimal.RequireFromString(value), time.Now(), nil)
	require.NoError(t, err)
	return obs
}

func TestEvaluate_DirectionAbove(t *testing.T) {
	limit := newTestLimit(t, DirectionAbove, "50", "80")

	tests := []struct {
		name  string
		value string
		want  RAGStatus
	}{
		{"well below soft limit", "40", StatusGreen},
		{"just below soft limit", "49.999", StatusGreen},
		{"exactly at soft limit", "50", StatusAmber},
		{"between limits", "65", StatusAmber},
		{"just below hard limit", "79.999", StatusAmber},
		{"exactly at hard limit", "80", StatusRed},
		{"above hard limit", "120", StatusRed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs := newTestObservation(t, *limit.PrimaryKRIID, tt.value)
			eval := Evaluate(limit, obs)
			assert.Equal(t, tt.want, eval.Status)
			require.NotNil(t, eval.Value)
			assert.True(t, eval.Value.Equal(obs.Value))
		})
	}
}

func TestEvaluate_DirectionBelow(t *testing.T) {
	limit := newTestLimit(t, DirectionBelow, "50", "20")

	tests := []struct {
		name  string
		value string
		want  RAGStatus
	}{
		{"well above soft limit", "70", StatusGreen},
		{"just above soft limit", "50.001", StatusGreen},
		{"exactly at soft limit", "50", StatusAmber},
		{"between limits", "35", StatusAmber},
		{"just above hard limit", "20.001", StatusAmber},
		{"exactly at hard limit", "20", StatusRed},
		{"below hard limit", "5", StatusRed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs := newTestObservation(t, *limit.PrimaryKRIID, tt.value)
			eval := Evaluate(limit, obs)
			assert.Equal(t, tt.want, eval.Status)
		})
	}
}

func TestEvaluate_DirectionOutside(t *testing.T) {
	limit := newTestLimit(t, DirectionOutside, "5", "10")
	target := decimal.RequireFromString("100")
	limit.Target = &target

	tests := []struct {
		name  string
		value string
		want  RAGStatus
	}{
		{"on target", "100", StatusGreen},
		{"inside soft band above", "103", StatusGreen},
		{"inside soft band below", "97", StatusGreen},
		{"exactly at soft band edge", "105", StatusAmber},
		{"inside hard band below", "92", StatusAmber},
		{"exactly at hard band edge", "90", StatusRed},
		{"outside hard band above", "115", StatusRed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs := newTestObservation(t, *limit.PrimaryKRIID, tt.value)
			eval := Evaluate(limit, obs)
			assert.Equal(t, tt.want, eval.Status)
		})
	}
}

func TestEvaluate_DataAbsence(t *testing.T) {
	t.Run("no primary KRI linked", func(t *testing.T) {
		limit := newTestLimit(t, DirectionAbove, "50", "80")
		limit.PrimaryKRIID = nil

		eval := Evaluate(limit, nil)
		assert.Equal(t, StatusNoKRI, eval.Status)
		assert.Nil(t, eval.Value)
	})

	t.Run("KRI linked but never observed", func(t *testing.T) {
		limit := newTestLimit(t, DirectionAbove, "50", "80")

		eval := Evaluate(limit, nil)
		assert.Equal(t, StatusNoData, eval.Status)
		assert.Nil(t, eval.Value)
	})

	t.Run("NO_KRI takes precedence over missing observation", func(t *testing.T) {
		limit := newTestLimit(t, DirectionAbove, "50", "80")
		limit.PrimaryKRIID = nil

		eval := Evaluate(limit, nil)
		assert.Equal(t, StatusNoKRI, eval.Status)
	})
}

func TestEvaluate_MalformedConfiguration(t *testing.T) {
	tests := []struct {
		name  string
		limit func(t *testing.T) *ToleranceLimit
	}{
		{
			name: "above with hard limit below soft limit",
			limit: func(t *testing.T) *ToleranceLimit {
				return newTestLimit(t, DirectionAbove, "80", "50")
			},
		},
		{
			name: "below with hard limit above soft limit",
			limit: func(t *testing.T) *ToleranceLimit {
				return newTestLimit(t, DirectionBelow, "20", "50")
			},
		},
		{
			name: "outside without target",
			limit: func(t *testing.T) *ToleranceLimit {
				return newTestLimit(t, DirectionOutside, "5", "10")
			},
		},
		{
			name: "outside with soft band wider than hard band",
			limit: func(t *testing.T) *ToleranceLimit {
				l := newTestLimit(t, DirectionOutside, "10", "5")
				target := decimal.RequireFromString("100")
				l.Target = &target
				return l
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limit := tt.limit(t)
			obs := newTestObservation(t, *limit.PrimaryKRIID, "60")

			eval := Evaluate(limit, obs)
			assert.Equal(t, StatusUnknown, eval.Status, "malformed config must surface UNKNOWN, never a guessed status")
		})
	}
}

func TestEvaluate_IsPure(t *testing.T) {
	limit := newTestLimit(t, DirectionAbove, "50", "80")
	obs := newTestObservation(t, *limit.PrimaryKRIID, "65")

	first := Evaluate(limit, obs)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Evaluate(limit, obs))
	}
}
