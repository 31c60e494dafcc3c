package rest

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	domainerrors "github.com/meridianrisk/raf-engine/internal/domain/errors"
	"github.com/meridianrisk/raf-engine/internal/domain/kri"
	adminsvc "github.com/meridianrisk/raf-engine/internal/service/admin"
)

// CreateKRIRequest is the body of POST /kris.
type CreateKRIRequest struct {
	OrganizationID uuid.UUID `json:"organization_id" validate:"required"`
	Code           string    `json:"code" validate:"required,max=64"`
	Name           string    `json:"name" validate:"required"`
	Unit           string    `json:"unit" validate:"max=32"`
	Frequency      string    `json:"frequency" validate:"required,oneof=daily weekly monthly quarterly"`
	AmberThreshold string    `json:"amber_threshold" validate:"required,decimal"`
	RedThreshold   string    `json:"red_threshold" validate:"required,decimal"`
}

// SetKRIEnabledRequest is the body of PUT /kris/{id}/enabled.
type SetKRIEnabledRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

// CreateToleranceRequest is the body of POST /tolerances.
type CreateToleranceRequest struct {
	OrganizationID uuid.UUID  `json:"organization_id" validate:"required"`
	StatementID    uuid.UUID  `json:"statement_id" validate:"required"`
	MetricName     string     `json:"metric_name" validate:"required"`
	Unit           string     `json:"unit" validate:"max=32"`
	Direction      string     `json:"direction" validate:"required,oneof=above below outside"`
	SoftLimit      string     `json:"soft_limit" validate:"required,decimal"`
	HardLimit      string     `json:"hard_limit" validate:"required,decimal"`
	Target         *string    `json:"target,omitempty" validate:"omitempty,decimal"`
	PrimaryKRIID   *uuid.UUID `json:"primary_kri_id,omitempty"`
}

// ScoreControlRequest is the body of PUT /controls/{id}/dime.
type ScoreControlRequest struct {
	OrganizationID uuid.UUID `json:"organization_id" validate:"required"`
	Design         int       `json:"design" validate:"min=0,max=3"`
	Implementation int       `json:"implementation" validate:"min=0,max=3"`
	Monitoring     int       `json:"monitoring" validate:"min=0,max=3"`
	Effectiveness  int       `json:"effectiveness" validate:"min=0,max=3"`
}

// KRIResponse is the wire form of a KRI definition.
type KRIResponse struct {
	ID             uuid.UUID `json:"id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	Code           string    `json:"code"`
	Name           string    `json:"name"`
	Unit           string    `json:"unit"`
	Frequency      string    `json:"frequency"`
	AmberThreshold string    `json:"amber_threshold"`
	RedThreshold   string    `json:"red_threshold"`
	Enabled        bool      `json:"enabled"`
	CreatedAt      time.Time `json:"created_at"`
}

func newKRIResponse(d *kri.Definition) KRIResponse {
	return KRIResponse{
		ID:             d.ID,
		OrganizationID: d.OrganizationID,
		Code:           d.Code,
		Name:           d.Name,
		Unit:           d.Unit,
		Frequency:      d.Frequency.String(),
		AmberThreshold: d.AmberThreshold.String(),
		RedThreshold:   d.RedThreshold.String(),
		Enabled:        d.Enabled,
		CreatedAt:      d.CreatedAt,
	}
}

// ToleranceResponse is the wire form of a tolerance limit.
type ToleranceResponse struct {
	ID             uuid.UUID  `json:"id"`
	OrganizationID uuid.UUID  `json:"organization_id"`
	StatementID    uuid.UUID  `json:"statement_id"`
	MetricName     string     `json:"metric_name"`
	Unit           string     `json:"unit"`
	Direction      string     `json:"direction"`
	SoftLimit      string     `json:"soft_limit"`
	HardLimit      string     `json:"hard_limit"`
	Target         *string    `json:"target,omitempty"`
	PrimaryKRIID   *uuid.UUID `json:"primary_kri_id,omitempty"`
	Enabled        bool       `json:"enabled"`
	LastStatus     string     `json:"last_status"`
}

func (h *Handler) handleCreateKRI(w http.ResponseWriter, r *http.Request) {
	var req CreateKRIRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	amber, _ := decimal.NewFromString(req.AmberThreshold)
	red, _ := decimal.NewFromString(req.RedThreshold)

	def, err := h.admin.CreateKRI(r.Context(), adminsvc.CreateKRIInput{
		OrganizationID: req.OrganizationID,
		Code:           req.Code,
		Name:           req.Name,
		Unit:           req.Unit,
		Frequency:      req.Frequency,
		AmberThreshold: amber,
		RedThreshold:   red,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, newKRIResponse(def))
}

func (h *Handler) handleSetKRIEnabled(w http.ResponseWriter, r *http.Request) {
	kriID, ok := h.pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req SetKRIEnabledRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.admin.SetKRIEnabled(r.Context(), kriID, *req.Enabled); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"enabled": *req.Enabled})
}

func (h *Handler) handleListObservations(w http.ResponseWriter, r *http.Request) {
	kriID, ok := h.pathUUID(w, r, "id")
	if !ok {
		return
	}

	observations, err := h.admin.ListObservations(r.Context(), kriID, queryInt(r, "limit", 100))
	if err != nil {
		h.writeError(w, err)
		return
	}

	out := make([]ObservationResponse, 0, len(observations))
	for _, obs := range observations {
		out = append(out, newObservationResponse(obs))
	}
	h.writeJSON(w, http.StatusOK, map[string][]ObservationResponse{"observations": out})
}

func (h *Handler) handleCreateTolerance(w http.ResponseWriter, r *http.Request) {
	var req CreateToleranceRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	soft, _ := decimal.NewFromString(req.SoftLimit)
	hard, _ := decimal.NewFromString(req.HardLimit)

	input := adminsvc.CreateToleranceInput{
		OrganizationID: req.OrganizationID,
		StatementID:    req.StatementID,
		MetricName:     req.MetricName,
		Unit:           req.Unit,
		Direction:      req.Direction,
		SoftLimit:      soft,
		HardLimit:      hard,
		PrimaryKRIID:   req.PrimaryKRIID,
	}
	if req.Target != nil {
		target, err := decimal.NewFromString(*req.Target)
		if err != nil {
			h.writeError(w, domainerrors.NewValidationError("INVALID_TARGET", "target must be a decimal number"))
			return
		}
		input.Target = &target
	}

	limit, err := h.admin.CreateTolerance(r.Context(), input)
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := ToleranceResponse{
		ID:             limit.ID,
		OrganizationID: limit.OrganizationID,
		StatementID:    limit.StatementID,
		MetricName:     limit.MetricName,
		Unit:           limit.Unit,
		Direction:      limit.Direction.String(),
		SoftLimit:      limit.SoftLimit.String(),
		HardLimit:      limit.HardLimit.String(),
		PrimaryKRIID:   limit.PrimaryKRIID,
		Enabled:        limit.Enabled,
		LastStatus:     limit.LastStatus.String(),
	}
	if limit.Target != nil {
		v := limit.Target.String()
		resp.Target = &v
	}
	h.writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) handleScoreControl(w http.ResponseWriter, r *http.Request) {
	controlID, ok := h.pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req ScoreControlRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	score, err := h.admin.ScoreControl(r.Context(), adminsvc.ScoreControlInput{
		OrganizationID: req.OrganizationID,
		ControlID:      controlID,
		Design:         req.Design,
		Implementation: req.Implementation,
		Monitoring:     req.Monitoring,
		Effectiveness:  req.Effectiveness,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"control_id": score.ControlID,
		"total":      score.Total(),
	})
}
