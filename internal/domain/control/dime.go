package control

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// maxDIMEPoints is the highest total a control can score: four dimensions,
// each rated 0-3.
const maxDIMEPoints = 12

// DIMEScore rates one control across the Design, Implementation, Monitoring
// and Effectiveness dimensions.
type DIMEScore struct {
	ID             uuid.UUID `json:"id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	ControlID      uuid.UUID `json:"control_id"`

	Design         int `json:"design"`
	Implementation int `json:"implementation"`
	Monitoring     int `json:"monitoring"`
	Effectiveness  int `json:"effectiveness"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewDIMEScore(orgID, controlID uuid.UUID, design, implementation, monitoring, effectiveness int) (*DIMEScore, error) {
	if orgID == uuid.Nil {
		return nil, fmt.Errorf("organization ID cannot be nil")
	}

	if controlID == uuid.Nil {
		return nil, fmt.Errorf("control ID cannot be nil")
	}

	for name, v := range map[string]int{
		"design":         design,
		"implementation": implementation,
		"monitoring":     monitoring,
		"effectiveness":  effectiveness,
	} {
		if v < 0 || v > 3 {
			return nil, fmt.Errorf("%s score must be between 0 and 3, got %d", name, v)
		}
	}

	now := time.Now().UTC()
	return &DIMEScore{
		ID:             uuid.New(),
		OrganizationID: orgID,
		ControlID:      controlID,
		Design:         design,
		Implementation: implementation,
		Monitoring:     monitoring,
		Effectiveness:  effectiveness,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// Total is the summed points across all four dimensions.
func (s *DIMEScore) Total() int {
	return s.Design + s.Implementation + s.Monitoring + s.Effectiveness
}

// Rollup computes the organization-wide control effectiveness as the mean
// DIME total expressed as a percentage of the 12-point maximum, rounded to
// two decimal places. Returns nil when no controls are scored.
func Rollup(scores []*DIMEScore) *decimal.Decimal {
	if len(scores) == 0 {
		return nil
	}

	total := decimal.Zero
	for _, s := range scores {
		total = total.Add(decimal.NewFromInt(int64(s.Total())))
	}

	max := decimal.NewFromInt(int64(maxDIMEPoints * len(scores)))
	pct := total.Div(max).Mul(decimal.NewFromInt(100)).Round(2)
	return &pct
}
