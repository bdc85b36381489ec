package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-playground/validator/v10"

	"otportal/filer"
	"otportal/models"
	"otportal/policy"
	"otportal/session"
	"otportal/workflow"
)

// ErrorPayload is the boundary error shape.
type ErrorPayload struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		if err := json.NewEncoder(w).Encode(body); err != nil {
			log.Printf("[handlers] encode response: %v", err)
		}
	}
}

func writeErrorPayload(w http.ResponseWriter, status int, code, message string, details interface{}) {
	writeJSON(w, status, ErrorPayload{Code: code, Message: message, Details: details})
}

// WriteError maps domain errors onto status codes and error codes. Unknown
// failures are logged with request context and surface as an opaque 500.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	var blockErr *policy.BlockError
	var validationErr *workflow.ValidationError
	var fieldErrs validator.ValidationErrors

	switch {
	case errors.As(err, &blockErr):
		writeErrorPayload(w, http.StatusConflict, "policy_block", "overtime limit exceeded", map[string]interface{}{
			"category":  blockErr.Category,
			"total":     blockErr.Total.StringFixed(2),
			"threshold": blockErr.Threshold.StringFixed(2),
		})
	case errors.As(err, &validationErr):
		writeErrorPayload(w, http.StatusBadRequest, "validation_error", validationErr.Error(), map[string]string{
			"field": validationErr.Field,
		})
	case errors.As(err, &fieldErrs):
		details := make(map[string]string, len(fieldErrs))
		for _, fe := range fieldErrs {
			details[fe.Field()] = fe.Tag()
		}
		writeErrorPayload(w, http.StatusBadRequest, "validation_error", "invalid request payload", details)
	case errors.Is(err, workflow.ErrOverlap):
		writeErrorPayload(w, http.StatusConflict, "conflict_overlap", err.Error(), nil)
	case errors.Is(err, workflow.ErrInvalidTransition):
		writeErrorPayload(w, http.StatusConflict, "invalid_transition", err.Error(), nil)
	case errors.Is(err, workflow.ErrNotFound), errors.Is(err, errNotFound):
		writeErrorPayload(w, http.StatusNotFound, "not_found", "resource not found", nil)
	case errors.Is(err, session.ErrDeveloperProtected):
		writeErrorPayload(w, http.StatusForbidden, "forbidden_developer_protection", err.Error(), nil)
	case errors.Is(err, session.ErrUnauthorized), errors.Is(err, session.ErrExpired), errors.Is(err, session.ErrBadIdentityToken):
		writeErrorPayload(w, http.StatusUnauthorized, "not_authenticated", "authentication required", nil)
	case errors.Is(err, session.ErrPermissionDenied), errors.Is(err, workflow.ErrNotAuthorized):
		writeErrorPayload(w, http.StatusForbidden, "permission_denied", "insufficient rights", nil)
	case filer.Transient(err), errors.Is(err, models.ErrNoActiveSMBConfig):
		writeErrorPayload(w, http.StatusServiceUnavailable, "filer_unavailable", "artifact filer unavailable", nil)
	case errors.Is(err, models.ErrRecommendedAboveMax):
		writeErrorPayload(w, http.StatusBadRequest, "validation_error", err.Error(), nil)
	default:
		log.Printf("[handlers] %s %s: unhandled error: %v", r.Method, r.URL.Path, err)
		writeErrorPayload(w, http.StatusInternalServerError, "server_error", "internal server error", nil)
	}
}

var errNotFound = errors.New("not found")
