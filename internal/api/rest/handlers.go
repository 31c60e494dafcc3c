package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/meridianrisk/raf-engine/internal/domain/appetite"
	domainerrors "github.com/meridianrisk/raf-engine/internal/domain/errors"
	adminsvc "github.com/meridianrisk/raf-engine/internal/service/admin"
	appetitesvc "github.com/meridianrisk/raf-engine/internal/service/appetite"
)

const maxBodySize = 1 << 20 // 1MB

// BadgeReader is the read side of the status badge cache; nil disables the
// cache fast path and every status request falls through to evaluation.
type BadgeReader interface {
	GetBadge(ctx context.Context, toleranceID uuid.UUID) (appetite.RAGStatus, bool, error)
}

// Handler carries the HTTP handlers for the appetite API.
type Handler struct {
	service   appetitesvc.Service
	admin     adminsvc.Service
	badges    BadgeReader
	validator *validator.Validate
	logger    *zap.Logger
}

func NewHandler(service appetitesvc.Service, admin adminsvc.Service, badges BadgeReader, logger *zap.Logger) *Handler {
	v := validator.New()
	v.RegisterValidation("decimal", validateDecimal)

	return &Handler{
		service:   service,
		admin:     admin,
		badges:    badges,
		validator: v,
		logger:    logger,
	}
}

func validateDecimal(fl validator.FieldLevel) bool {
	_, err := decimal.NewFromString(fl.Field().String())
	return err == nil
}

// handleTriggerRecalc starts a full sweep for an organization. The sweep
// runs inline; a second caller while it runs gets 409.
func (h *Handler) handleTriggerRecalc(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.pathUUID(w, r, "id")
	if !ok {
		return
	}

	run, err := h.service.RecalculateOrganization(r.Context(), orgID)
	if err != nil && run == nil {
		h.writeError(w, err)
		return
	}
	// A failed run is still reported with its audit row; the outcome and
	// error detail tell the caller what happened.
	h.writeJSON(w, http.StatusAccepted, newRunResponse(run))
}

// handleLatestRun returns the most recent recalculation run for an
// organization.
func (h *Handler) handleLatestRun(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.pathUUID(w, r, "id")
	if !ok {
		return
	}

	run, err := h.service.LatestRun(r.Context(), orgID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if run == nil {
		h.writeError(w, domainerrors.ErrRunNotFound)
		return
	}
	h.writeJSON(w, http.StatusOK, newRunResponse(run))
}

// handleToleranceStatus serves the RAG badge, from cache when possible.
func (h *Handler) handleToleranceStatus(w http.ResponseWriter, r *http.Request) {
	toleranceID, ok := h.pathUUID(w, r, "id")
	if !ok {
		return
	}

	if h.badges != nil {
		status, hit, err := h.badges.GetBadge(r.Context(), toleranceID)
		if err != nil {
			h.logger.Warn("badge cache read failed, falling back to evaluation",
				zap.String("tolerance_id", toleranceID.String()),
				zap.Error(err))
		} else if hit {
			h.writeJSON(w, http.StatusOK, newStatusResponse(toleranceID, appetite.Evaluation{Status: status}, true))
			return
		}
	}

	eval, err := h.service.EvaluateTolerance(r.Context(), toleranceID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, newStatusResponse(toleranceID, eval, false))
}

// handleListBreaches returns recorded breaches plus the trend counters.
func (h *Handler) handleListBreaches(w http.ResponseWriter, r *http.Request) {
	toleranceID, ok := h.pathUUID(w, r, "id")
	if !ok {
		return
	}

	limit := queryInt(r, "limit", 50)
	window := queryInt(r, "window", 0)

	breaches, err := h.service.ListBreaches(r.Context(), toleranceID, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}

	streak, err := h.service.ConsecutiveBreachPeriods(r.Context(), toleranceID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	windowed, err := h.service.BreachesInWindow(r.Context(), toleranceID, window)
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := BreachListResponse{
		Breaches:                 make([]BreachResponse, 0, len(breaches)),
		ConsecutiveBreachPeriods: streak,
		BreachesInWindow:         windowed,
	}
	for _, b := range breaches {
		resp.Breaches = append(resp.Breaches, newBreachResponse(b))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// handleRecordObservation appends a KRI measurement and triggers the scoped
// re-evaluation of referencing tolerance limits.
func (h *Handler) handleRecordObservation(w http.ResponseWriter, r *http.Request) {
	kriID, ok := h.pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req RecordObservationRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	value, err := decimal.NewFromString(req.Value)
	if err != nil {
		h.writeError(w, domainerrors.NewValidationError("INVALID_VALUE", "value must be a decimal number"))
		return
	}

	obs, err := h.service.RecordObservation(r.Context(), appetitesvc.RecordObservationInput{
		KRIID:      kriID,
		Value:      value,
		MeasuredAt: req.MeasuredAt,
		Notes:      req.Notes,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, newObservationResponse(obs))
}

func (h *Handler) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// pathUUID extracts and parses a UUID path segment, writing a 400 on
// failure.
func (h *Handler) pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		h.writeError(w, domainerrors.NewValidationError("INVALID_ID", "path parameter "+name+" must be a UUID"))
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

// decodeAndValidate reads the JSON body into dst and runs struct
// validation, writing a 400 with per-field details on failure.
func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodySize)
	defer body.Close()

	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			h.writeError(w, domainerrors.NewValidationError("EMPTY_BODY", "request body is required"))
			return false
		}
		h.writeError(w, domainerrors.NewValidationError("MALFORMED_BODY", err.Error()))
		return false
	}

	if err := h.validator.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make(map[string][]string, len(verrs))
			for _, fe := range verrs {
				fields[fe.Field()] = append(fields[fe.Field()], fe.Tag())
			}
			h.writeFieldError(w, fields)
			return false
		}
		h.writeError(w, domainerrors.NewValidationError("INVALID_BODY", err.Error()))
		return false
	}

	return true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := domainerrors.GetStatusCode(err)
	detail := ErrorDetail{Code: "INTERNAL_ERROR", Message: "internal server error"}

	var appErr *domainerrors.AppError
	if errors.As(err, &appErr) {
		detail.Code = appErr.Code
		detail.Message = appErr.Message
	} else {
		h.logger.Error("unhandled error", zap.Error(err))
	}

	h.writeJSON(w, status, ErrorResponse{Error: detail})
}

func (h *Handler) writeFieldError(w http.ResponseWriter, fields map[string][]string) {
	h.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: ErrorDetail{
		Code:    "VALIDATION_FAILED",
		Message: "request validation failed",
		Fields:  fields,
	}})
}
