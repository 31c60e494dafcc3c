package recalc

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Outcome is the lifecycle state of a recalculation run.
type Outcome int

const (
	OutcomeRunning Outcome = iota
	OutcomeCompleted
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRunning:
		return "running"
	case OutcomeCompleted:
		return "completed"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ParseOutcome converts a stored outcome string to its enum value.
func ParseOutcome(s string) (Outcome, error) {
	switch strings.ToLower(s) {
	case "running":
		return OutcomeRunning, nil
	case "completed":
		return OutcomeCompleted, nil
	case "failed":
		return OutcomeFailed, nil
	default:
		return OutcomeFailed, fmt.Errorf("invalid run outcome: %q", s)
	}
}

// Run is one execution of the per-organization recalculation sweep. The row
// doubles as the advisory lock: while a non-stale run is in OutcomeRunning,
// no second sweep may start for the same organization. A run stuck in
// running past the staleness timeout is treated as abandoned and marked
// failed by the next acquirer.
type Run struct {
	ID             uuid.UUID `json:"id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	LockToken      uuid.UUID `json:"lock_token"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Outcome     Outcome    `json:"outcome"`

	// Scope is the set of tolerance limits the run covered; empty means a
	// full organization sweep.
	Scope []uuid.UUID `json:"scope,omitempty"`

	// ControlEffectiveness is the DIME rollup computed at completion.
	ControlEffectiveness *decimal.Decimal `json:"control_effectiveness,omitempty"`

	// SkippedTolerances lists limits whose evaluation failed and was
	// isolated; the sweep continued without them.
	SkippedTolerances []uuid.UUID `json:"skipped_tolerances,omitempty"`

	ErrorDetail *string `json:"error_detail,omitempty"`
}

func NewRun(orgID uuid.UUID, scope []uuid.UUID) (*Run, error) {
	if orgID == uuid.Nil {
		return nil, fmt.Errorf("organization ID cannot be nil")
	}

	return &Run{
		ID:             uuid.New(),
		OrganizationID: orgID,
		LockToken:      uuid.New(),
		StartedAt:      time.Now().UTC(),
		Outcome:        OutcomeRunning,
		Scope:          scope,
	}, nil
}

// IsStale reports whether a running run has held the lock longer than the
// configured staleness timeout and may be forcibly reclaimed.
func (r *Run) IsStale(timeout time.Duration, now time.Time) bool {
	if r.Outcome != OutcomeRunning {
		return false
	}
	return now.Sub(r.StartedAt) > timeout
}

// IsActive reports whether the run currently holds the organization lock.
func (r *Run) IsActive(timeout time.Duration, now time.Time) bool {
	return r.Outcome == OutcomeRunning && !r.IsStale(timeout, now)
}
