package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/warp/leave-ledger/generic"
)

// =============================================================================
// ERROR MAPPING
// =============================================================================

// statusFor maps an error kind to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, generic.ErrInvalidType):
		return http.StatusUnprocessableEntity
	case errors.Is(err, generic.ErrInvalidDateRange),
		errors.Is(err, generic.ErrHalfDayMismatch),
		errors.Is(err, generic.ErrZeroDuration),
		errors.Is(err, generic.ErrInsufficientBalance),
		errors.Is(err, generic.ErrInvalidStatus),
		errors.Is(err, generic.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, generic.ErrOverlappingRequest),
		errors.Is(err, generic.ErrNotPending),
		errors.Is(err, generic.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, generic.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, generic.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, generic.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, generic.ErrTransactionAborted):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

var messages = map[string]string{
	"InvalidType":         "Invalid leave type",
	"InvalidDateRange":    "Invalid date range",
	"HalfDayMismatch":     "Half-day leave must be a single date with part AM or PM",
	"ZeroDuration":        "Selected dates contain no business days",
	"OverlappingRequest":  "Overlapping leave exists",
	"InsufficientBalance": "Insufficient leave balance",
	"NotFound":            "Not found",
	"NotPending":          "Request is not pending",
	"Forbidden":           "Forbidden",
	"Unauthenticated":     "Authentication required",
	"TransactionAborted":  "Temporarily unavailable, please retry",
	"InvalidStatus":       "Invalid status filter",
	"InvalidAmount":       "Invalid amount",
	"AlreadyExists":       "Already exists",
}

// writeDomainError writes err with the status and body of its kind.
// Internal errors are logged and their text is not sent to the client.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	kind := generic.Kind(err)

	resp := ErrorResponse{Error: messages[kind], Code: kind}
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err))
		resp.Error = "Internal server error"
		resp.Code = ""
		writeJSON(w, status, resp)
		return
	}
	resp.Details = err.Error()

	var ib *generic.InsufficientBalanceError
	if errors.As(err, &ib) {
		available, requested := ib.Available.Float64(), ib.Requested.Float64()
		resp.Available = &available
		resp.Requested = &requested
	}
	var oe *generic.OverlapError
	if errors.As(err, &oe) {
		resp.Existing = &LeaveRef{
			ID:        string(oe.ExistingID),
			StartDate: oe.Existing.Start.String(),
			EndDate:   oe.Existing.End.String(),
			Status:    oe.ExistingStatus,
		}
	}
	if generic.IsRetryable(err) {
		resp.Retryable = true
		w.Header().Set("Retry-After", "1")
	}

	writeJSON(w, status, resp)
}

// writeValidationError reports struct tag failures as a list of fields.
func writeValidationError(w http.ResponseWriter, err error) {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	fields := make([]FieldError, 0, len(ve))
	for _, fe := range ve {
		fields = append(fields, FieldError{Field: fe.Field(), Rule: fe.Tag()})
	}
	writeJSON(w, http.StatusBadRequest, ErrorResponse{
		Error:   "Validation failed",
		Code:    "ValidationFailed",
		Details: fields,
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
