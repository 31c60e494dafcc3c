package appetite

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// StatusSnapshot records the RAG status a recalculation run computed for one
// tolerance limit. Snapshots are append-only and keyed by
// (tolerance_id, run_id), which makes re-running a failed sweep idempotent:
// the second write for the same pair is a no-op.
type StatusSnapshot struct {
	ID          uuid.UUID        `json:"id"`
	ToleranceID uuid.UUID        `json:"tolerance_id"`
	RunID       uuid.UUID        `json:"run_id"`
	Status      RAGStatus        `json:"status"`
	Value       *decimal.Decimal `json:"value,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

func NewStatusSnapshot(toleranceID, runID uuid.UUID, eval Evaluation) (*StatusSnapshot, error) {
	if toleranceID == uuid.Nil {
		return nil, fmt.Errorf("tolerance ID cannot be nil")
	}

	if runID == uuid.Nil {
		return nil, fmt.Errorf("run ID cannot be nil")
	}

	return &StatusSnapshot{
		ID:          uuid.New(),
		ToleranceID: toleranceID,
		RunID:       runID,
		Status:      eval.Status,
		Value:       eval.Value,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// Breach marks that a tolerance limit's status escalated into AMBER or RED.
// A breach is mutated exactly once, to set ResolvedAt when a later snapshot
// de-escalates below its level.
type Breach struct {
	ID          uuid.UUID `json:"id"`
	ToleranceID uuid.UUID `json:"tolerance_id"`
	RunID       uuid.UUID `json:"run_id"`
	Period      string    `json:"period"`
	Level       RAGStatus `json:"level"`

	ConsecutiveCount int `json:"consecutive_count"`
	WindowedCount    int `json:"windowed_count"`

	DetectedAt time.Time  `json:"detected_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

func NewBreach(toleranceID, runID uuid.UUID, level RAGStatus, consecutive, windowed int, detectedAt time.Time) (*Breach, error) {
	if toleranceID == uuid.Nil {
		return nil, fmt.Errorf("tolerance ID cannot be nil")
	}

	if !level.IsBreach() {
		return nil, fmt.Errorf("breach level must be amber or red, got %s", level)
	}

	if detectedAt.IsZero() {
		detectedAt = time.Now().UTC()
	}

	return &Breach{
		ID:               uuid.New(),
		ToleranceID:      toleranceID,
		RunID:            runID,
		Period:           detectedAt.UTC().Format("2006-01"),
		Level:            level,
		ConsecutiveCount: consecutive,
		WindowedCount:    windowed,
		DetectedAt:       detectedAt.UTC(),
	}, nil
}

// Resolve stamps the breach as returned to a less severe status.
func (b *Breach) Resolve(at time.Time) {
	at = at.UTC()
	b.ResolvedAt = &at
}

// Alert is the notification-worthy companion event of a breach. The core
// only materializes alert rows; delivery belongs to the surrounding system.
type Alert struct {
	ID          uuid.UUID  `json:"id"`
	ToleranceID uuid.UUID  `json:"tolerance_id"`
	KRIID       *uuid.UUID `json:"kri_id,omitempty"`
	Level       RAGStatus  `json:"level"`
	Message     string     `json:"message"`
	TriggeredAt time.Time  `json:"triggered_at"`
}

func NewAlert(limit *ToleranceLimit, level RAGStatus, triggeredAt time.Time) (*Alert, error) {
	if limit == nil {
		return nil, fmt.Errorf("tolerance limit cannot be nil")
	}

	if !level.IsBreach() {
		return nil, fmt.Errorf("alert level must be amber or red, got %s", level)
	}

	return &Alert{
		ID:          uuid.New(),
		ToleranceID: limit.ID,
		KRIID:       limit.PrimaryKRIID,
		Level:       level,
		Message:     fmt.Sprintf("tolerance limit %q entered %s", limit.MetricName, level),
		TriggeredAt: triggeredAt.UTC(),
	}, nil
}
