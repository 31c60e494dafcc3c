package rest

import "time"

// RecordObservationRequest is the body of POST /kris/{id}/observations.
type RecordObservationRequest struct {
	Value      string    `json:"value" validate:"required,decimal"`
	MeasuredAt time.Time `json:"measured_at" validate:"required"`
	Notes      *string   `json:"notes,omitempty" validate:"omitempty,max=2000"`
}
