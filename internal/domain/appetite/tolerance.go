package appetite

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Direction determines which side of the threshold pair is the unhealthy one.
type Direction int

const (
	DirectionAbove Direction = iota
	DirectionBelow
	DirectionOutside
)

func (d Direction) String() string {
	switch d {
	case DirectionAbove:
		return "above"
	case DirectionBelow:
		return "below"
	case DirectionOutside:
		return "outside"
	default:
		return "unknown"
	}
}

// ParseDirection converts a stored direction string to its enum value.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(s) {
	case "above":
		return DirectionAbove, nil
	case "below":
		return DirectionBelow, nil
	case "outside":
		return DirectionOutside, nil
	default:
		return DirectionAbove, fmt.Errorf("invalid direction: %q", s)
	}
}

// ToleranceLimit is a configured soft/hard threshold pair belonging to one
// organization and one risk-appetite statement. PrimaryKRIID is a weak lookup
// reference: the KRI's lifecycle is fully independent, and disabling or
// unlinking it only degrades evaluation to NO_KRI or NO_DATA.
//
// For DirectionOutside, SoftLimit and HardLimit are half-widths of a band
// around TargetValue; the soft band sits inside the hard band.
type ToleranceLimit struct {
	ID             uuid.UUID `json:"id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	StatementID    uuid.UUID `json:"statement_id"`

	MetricName string           `json:"metric_name"`
	Unit       string           `json:"unit"`
	Direction  Direction        `json:"direction"`
	SoftLimit  decimal.Decimal  `json:"soft_limit"`
	HardLimit  decimal.Decimal  `json:"hard_limit"`
	Target     *decimal.Decimal `json:"target,omitempty"`

	PrimaryKRIID *uuid.UUID `json:"primary_kri_id,omitempty"`
	Enabled      bool       `json:"enabled"`

	// Cached read-side values maintained by the synchronizer; the
	// observation history remains the source of truth.
	LatestValue      *decimal.Decimal `json:"latest_value,omitempty"`
	LatestObservedAt *time.Time       `json:"latest_observed_at,omitempty"`
	LastStatus       RAGStatus        `json:"last_status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewToleranceLimit(orgID, statementID uuid.UUID, metricName, unit string, direction Direction, soft, hard decimal.Decimal) (*ToleranceLimit, error) {
	return newToleranceLimit(orgID, statementID, metricName, unit, direction, soft, hard, nil)
}

// NewOutsideToleranceLimit builds a band limit around target; soft and hard
// are half-widths, the soft band inside the hard band.
func NewOutsideToleranceLimit(orgID, statementID uuid.UUID, metricName, unit string, target, soft, hard decimal.Decimal) (*ToleranceLimit, error) {
	return newToleranceLimit(orgID, statementID, metricName, unit, DirectionOutside, soft, hard, &target)
}

func newToleranceLimit(orgID, statementID uuid.UUID, metricName, unit string, direction Direction, soft, hard decimal.Decimal, target *decimal.Decimal) (*ToleranceLimit, error) {
	if orgID == uuid.Nil {
		return nil, fmt.Errorf("organization ID cannot be nil")
	}

	if statementID == uuid.Nil {
		return nil, fmt.Errorf("statement ID cannot be nil")
	}

	if strings.TrimSpace(metricName) == "" {
		return nil, fmt.Errorf("metric name cannot be empty")
	}

	limit := &ToleranceLimit{
		ID:             uuid.New(),
		OrganizationID: orgID,
		StatementID:    statementID,
		MetricName:     metricName,
		Unit:           unit,
		Direction:      direction,
		SoftLimit:      soft,
		HardLimit:      hard,
		Target:         target,
		Enabled:        true,
		LastStatus:     StatusNoKRI,
	}

	if err := limit.ValidateThresholds(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	limit.CreatedAt = now
	limit.UpdatedAt = now
	return limit, nil
}

// ValidateThresholds checks that the hard limit is at least as severe as the
// soft limit in the configured direction. Administrator edits go through this
// at write time; the evaluator re-checks at evaluation time and reports
// UNKNOWN instead of guessing when stored configuration is malformed.
func (t *ToleranceLimit) ValidateThresholds() error {
	switch t.Direction {
	case DirectionAbove:
		if t.HardLimit.LessThan(t.SoftLimit) {
			return fmt.Errorf("hard limit %s must be >= soft limit %s for direction above", t.HardLimit, t.SoftLimit)
		}
	case DirectionBelow:
		if t.HardLimit.GreaterThan(t.SoftLimit) {
			return fmt.Errorf("hard limit %s must be <= soft limit %s for direction below", t.HardLimit, t.SoftLimit)
		}
	case DirectionOutside:
		if t.Target == nil {
			return fmt.Errorf("direction outside requires a target value")
		}
		if t.SoftLimit.IsNegative() || t.HardLimit.IsNegative() {
			return fmt.Errorf("band widths cannot be negative")
		}
		if t.HardLimit.LessThan(t.SoftLimit) {
			return fmt.Errorf("hard band width %s must be >= soft band width %s", t.HardLimit, t.SoftLimit)
		}
	default:
		return fmt.Errorf("invalid direction")
	}
	return nil
}

// LinkPrimaryKRI sets the weak reference to the KRI used for evaluation.
func (t *ToleranceLimit) LinkPrimaryKRI(kriID uuid.UUID) error {
	if kriID == uuid.Nil {
		return fmt.Errorf("KRI ID cannot be nil")
	}
	t.PrimaryKRIID = &kriID
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// UnlinkPrimaryKRI removes the KRI reference; the limit evaluates to NO_KRI
// until relinked.
func (t *ToleranceLimit) UnlinkPrimaryKRI() {
	t.PrimaryKRIID = nil
	t.UpdatedAt = time.Now().UTC()
}
