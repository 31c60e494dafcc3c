package appetite

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewToleranceLimit(t *testing.T) {
	orgID := uuid.New()
	statementID := uuid.New()

	tests := []struct {
		name          string
		orgID         uuid.UUID
		statementID   uuid.UUID
		metricName    string
		direction     Direction
		soft          string
		hard          string
		expectedError string
	}{
		{
			name:        "valid above limit",
			orgID:       orgID,
			statementID: statementID,
			metricName:  "operational loss",
			direction:   DirectionAbove,
			soft:        "50",
			hard:        "80",
		},
		{
			name:        "valid below limit",
			orgID:       orgID,
			statementID: statementID,
			metricName:  "liquidity coverage",
			direction:   DirectionBelow,
			soft:        "110",
			hard:        "100",
		},
		{
			name:        "equal soft and hard limits allowed",
			orgID:       orgID,
			statementID: statementID,
			metricName:  "single threshold",
			direction:   DirectionAbove,
			soft:        "75",
			hard:        "75",
		},
		{
			name:          "nil organization",
			orgID:         uuid.Nil,
			statementID:   statementID,
			metricName:    "operational loss",
			direction:     DirectionAbove,
			soft:          "50",
			hard:          "80",
			expectedError: "organization ID cannot be nil",
		},
		{
			name:          "nil statement",
			orgID:         orgID,
			statementID:   uuid.Nil,
			metricName:    "operational loss",
			direction:     DirectionAbove,
			soft:          "50",
			hard:          "80",
			expectedError: "statement ID cannot be nil",
		},
		{
			name:          "empty metric name",
			orgID:         orgID,
			statementID:   statementID,
			metricName:    "  ",
			direction:     DirectionAbove,
			soft:          "50",
			hard:          "80",
			expectedError: "metric name cannot be empty",
		},
		{
			name:          "above with inverted thresholds",
			orgID:         orgID,
			statementID:   statementID,
			metricName:    "operational loss",
			direction:     DirectionAbove,
			soft:          "80",
			hard:          "50",
			expectedError: "must be >= soft limit",
		},
		{
			name:          "below with inverted thresholds",
			orgID:         orgID,
			statementID:   statementID,
			metricName:    "liquidity coverage",
			direction:     DirectionBelow,
			soft:          "100",
			hard:          "110",
			expectedError: "must be <= soft limit",
		},
		{
			name:          "outside requires a target",
			orgID:         orgID,
			statementID:   statementID,
			metricName:    "FX exposure",
			direction:     DirectionOutside,
			soft:          "5",
			hard:          "10",
			expectedError: "requires a target value",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limit, err := NewToleranceLimit(
				tt.orgID, tt.statementID, tt.metricName, "USD", tt.direction,
				decimal.RequireFromString(tt.soft), decimal.RequireFromString(tt.hard),
			)

			if tt.expectedError != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectedError)
				return
			}

			require.NoError(t, err)
			assert.NotEqual(t, uuid.Nil, limit.ID)
			assert.True(t, limit.Enabled)
			assert.Nil(t, limit.PrimaryKRIID)
			assert.Equal(t, StatusNoKRI, limit.LastStatus)
		})
	}
}

func TestToleranceLimit_LinkPrimaryKRI(t *testing.T) {
	limit, err := NewToleranceLimit(
		uuid.New(), uuid.New(), "operational loss", "USD", DirectionAbove,
		decimal.RequireFromString("50"), decimal.RequireFromString("80"),
	)
	require.NoError(t, err)

	require.Error(t, limit.LinkPrimaryKRI(uuid.Nil))

	kriID := uuid.New()
	require.NoError(t, limit.LinkPrimaryKRI(kriID))
	require.NotNil(t, limit.PrimaryKRIID)
	assert.Equal(t, kriID, *limit.PrimaryKRIID)

	limit.UnlinkPrimaryKRI()
	assert.Nil(t, limit.PrimaryKRIID)
}

func TestParseDirection(t *testing.T) {
	for _, d := range []Direction{DirectionAbove, DirectionBelow, DirectionOutside} {
		parsed, err := ParseDirection(d.String())
		require.NoError(t, err)
		assert.Equal(t, d, parsed)
	}

	_, err := ParseDirection("sideways")
	assert.Error(t, err)
}

func TestParseRAGStatus(t *testing.T) {
	for _, s := range []RAGStatus{StatusGreen, StatusAmber, StatusRed, StatusNoData, StatusNoKRI, StatusUnknown} {
		parsed, err := ParseRAGStatus(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
	}

	_, err := ParseRAGStatus("purple")
	assert.Error(t, err)
}
