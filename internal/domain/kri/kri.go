package kri

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Definition is an administrator-managed Key Risk Indicator. Definitions are
// long-lived configuration: edits are allowed, hard deletes are not while any
// observation or alert references them. Disabling is the soft-delete path.
type Definition struct {
	ID             uuid.UUID       `json:"id"`
	OrganizationID uuid.UUID       `json:"organization_id"`
	Code           string          `json:"code"`
	Name           string          `json:"name"`
	Unit           string          `json:"unit"`
	Frequency      Frequency       `json:"frequency"`
	AmberThreshold decimal.Decimal `json:"amber_threshold"`
	RedThreshold   decimal.Decimal `json:"red_threshold"`
	Enabled        bool            `json:"enabled"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Frequency int

const (
	FrequencyDaily Frequency = iota
	FrequencyWeekly
	FrequencyMonthly
	FrequencyQuarterly
)

func (f Frequency) String() string {
	switch f {
	case FrequencyDaily:
		return "daily"
	case FrequencyWeekly:
		return "weekly"
	case FrequencyMonthly:
		return "monthly"
	case FrequencyQuarterly:
		return "quarterly"
	default:
		return "unknown"
	}
}

// ParseFrequency converts a stored frequency string to its enum value.
func ParseFrequency(s string) (Frequency, error) {
	switch strings.ToLower(s) {
	case "daily":
		return FrequencyDaily, nil
	case "weekly":
		return FrequencyWeekly, nil
	case "monthly":
		return FrequencyMonthly, nil
	case "quarterly":
		return FrequencyQuarterly, nil
	default:
		return FrequencyMonthly, fmt.Errorf("invalid collection frequency: %q", s)
	}
}

func NewDefinition(orgID uuid.UUID, code, name, unit string, frequency Frequency, amber, red decimal.Decimal) (*Definition, error) {
	if orgID == uuid.Nil {
		return nil, fmt.Errorf("organization ID cannot be nil")
	}

	code = strings.TrimSpace(code)
	if code == "" {
		return nil, fmt.Errorf("KRI code cannot be empty")
	}

	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("KRI name cannot be empty")
	}

	switch frequency {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyQuarterly:
		// Valid frequencies
	default:
		return nil, fmt.Errorf("invalid collection frequency")
	}

	now := time.Now().UTC()
	return &Definition{
		ID:             uuid.New(),
		OrganizationID: orgID,
		Code:           code,
		Name:           name,
		Unit:           unit,
		Frequency:      frequency,
		AmberThreshold: amber,
		RedThreshold:   red,
		Enabled:        true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// Disable soft-disables the definition. Historical observations and alert
// provenance stay intact; referencing tolerance limits degrade to NO_DATA
// once their cached value ages out.
func (d *Definition) Disable() {
	d.Enabled = false
	d.UpdatedAt = time.Now().UTC()
}

func (d *Definition) Enable() {
	d.Enabled = true
	d.UpdatedAt = time.Now().UTC()
}

// Observation is a single recorded measurement of a KRI. Observations are
// append-only: once recorded they are never mutated, which makes any
// historical RAG decision exactly replayable.
type Observation struct {
	ID         uuid.UUID       `json:"id"`
	KRIID      uuid.UUID       `json:"kri_id"`
	Value      decimal.Decimal `json:"value"`
	MeasuredAt time.Time       `json:"measured_at"`
	Notes      *string         `json:"notes,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

func NewObservation(kriID uuid.UUID, value decimal.Decimal, measuredAt time.Time, notes *string) (*Observation, error) {
	if kriID == uuid.Nil {
		return nil, fmt.Errorf("KRI ID cannot be nil")
	}

	if measuredAt.IsZero() {
		return nil, fmt.Errorf("measurement timestamp cannot be zero")
	}

	return &Observation{
		ID:         uuid.New(),
		KRIID:      kriID,
		Value:      value,
		MeasuredAt: measuredAt.UTC(),
		Notes:      notes,
		CreatedAt:  time.Now().UTC(),
	}, nil
}
