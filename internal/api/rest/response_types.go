package rest

import (
	"time"

	"github.com/google/uuid"

	"github.com/meridianrisk/raf-engine/internal/domain/appetite"
	"github.com/meridianrisk/raf-engine/internal/domain/kri"
	"github.com/meridianrisk/raf-engine/internal/domain/recalc"
)

// ErrorResponse is the error body for all failed requests.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string              `json:"code"`
	Message string              `json:"message"`
	Fields  map[string][]string `json:"fields,omitempty"`
}

// RunResponse is the wire form of a recalculation run. Enum fields are
// rendered as their string names.
type RunResponse struct {
	ID                   uuid.UUID   `json:"id"`
	OrganizationID       uuid.UUID   `json:"organization_id"`
	Outcome              string      `json:"outcome"`
	StartedAt            time.Time   `json:"started_at"`
	CompletedAt          *time.Time  `json:"completed_at,omitempty"`
	Scope                []uuid.UUID `json:"scope,omitempty"`
	ControlEffectiveness *string     `json:"control_effectiveness,omitempty"`
	SkippedTolerances    []uuid.UUID `json:"skipped_tolerances,omitempty"`
	ErrorDetail          *string     `json:"error_detail,omitempty"`
}

func newRunResponse(run *recalc.Run) RunResponse {
	resp := RunResponse{
		ID:                run.ID,
		OrganizationID:    run.OrganizationID,
		Outcome:           run.Outcome.String(),
		StartedAt:         run.StartedAt,
		CompletedAt:       run.CompletedAt,
		Scope:             run.Scope,
		SkippedTolerances: run.SkippedTolerances,
		ErrorDetail:       run.ErrorDetail,
	}
	if run.ControlEffectiveness != nil {
		v := run.ControlEffectiveness.String()
		resp.ControlEffectiveness = &v
	}
	return resp
}

// StatusResponse is the RAG badge for one tolerance limit.
type StatusResponse struct {
	ToleranceID uuid.UUID `json:"tolerance_id"`
	Status      string    `json:"status"`
	Value       *string   `json:"value,omitempty"`
	Cached      bool      `json:"cached"`
}

func newStatusResponse(toleranceID uuid.UUID, eval appetite.Evaluation, cached bool) StatusResponse {
	resp := StatusResponse{
		ToleranceID: toleranceID,
		Status:      eval.Status.String(),
		Cached:      cached,
	}
	if eval.Value != nil {
		v := eval.Value.String()
		resp.Value = &v
	}
	return resp
}

// BreachResponse is the wire form of one recorded breach.
type BreachResponse struct {
	ID               uuid.UUID  `json:"id"`
	ToleranceID      uuid.UUID  `json:"tolerance_id"`
	RunID            uuid.UUID  `json:"run_id"`
	Period           string     `json:"period"`
	Level            string     `json:"level"`
	ConsecutiveCount int        `json:"consecutive_count"`
	WindowedCount    int        `json:"windowed_count"`
	DetectedAt       time.Time  `json:"detected_at"`
	ResolvedAt       *time.Time `json:"resolved_at,omitempty"`
}

// BreachListResponse carries the breach rows together with the trend
// counters dashboards render next to them.
type BreachListResponse struct {
	Breaches                 []BreachResponse `json:"breaches"`
	ConsecutiveBreachPeriods int              `json:"consecutive_breach_periods"`
	BreachesInWindow         int              `json:"breaches_in_window"`
}

func newBreachResponse(b *appetite.Breach) BreachResponse {
	return BreachResponse{
		ID:               b.ID,
		ToleranceID:      b.ToleranceID,
		RunID:            b.RunID,
		Period:           b.Period,
		Level:            b.Level.String(),
		ConsecutiveCount: b.ConsecutiveCount,
		WindowedCount:    b.WindowedCount,
		DetectedAt:       b.DetectedAt,
		ResolvedAt:       b.ResolvedAt,
	}
}

// ObservationResponse is the wire form of a recorded KRI observation.
type ObservationResponse struct {
	ID         uuid.UUID `json:"id"`
	KRIID      uuid.UUID `json:"kri_id"`
	Value      string    `json:"value"`
	MeasuredAt time.Time `json:"measured_at"`
	Notes      *string   `json:"notes,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func newObservationResponse(obs *kri.Observation) ObservationResponse {
	return ObservationResponse{
		ID:         obs.ID,
		KRIID:      obs.KRIID,
		Value:      obs.Value.String(),
		MeasuredAt: obs.MeasuredAt,
		Notes:      obs.Notes,
		CreatedAt:  obs.CreatedAt,
	}
}
