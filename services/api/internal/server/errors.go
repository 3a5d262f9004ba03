package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"studyhub/internal/util"
	"studyhub/pkg/domain"
	"studyhub/pkg/limits"
	"studyhub/services/api/internal/app"
	"studyhub/services/api/internal/identity"
	"studyhub/services/api/internal/quota"
)

const (
	codeValidationFailed     = "VALIDATION_FAILED"
	codeQuotaExceeded        = "QUOTA_EXCEEDED"
	codeInvalidToken         = "AUTH_INVALID_TOKEN"
	codeInvalidCredentials   = "AUTH_INVALID_CREDENTIALS"
	codeEmailExists          = "AUTH_EMAIL_EXISTS"
	codeProviderUnavailable  = "AUTH_PROVIDER_UNAVAILABLE"
	codeForbidden            = "FORBIDDEN"
	codeSubjectNotFound      = "SUBJECT_NOT_FOUND"
	codeNoteNotFound         = "NOTE_NOT_FOUND"
	codeFlashcardSetNotFound = "FLASHCARD_SET_NOT_FOUND"
	codeNoteNotReady         = "NOTE_NOT_READY"
	codeRateLimited          = "RATE_LIMITED"
	codeInternal             = "SYSTEM_INTERNAL_ERROR"
)

type errorBody struct {
	Error     string              `json:"error"`
	Code      string              `json:"code"`
	RequestID string              `json:"requestId,omitempty"`
	Field     string              `json:"field,omitempty"`
	Kind      domain.ResourceKind `json:"kind,omitempty"`
	Limit     int64               `json:"limit,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeErrorBody(w http.ResponseWriter, r *http.Request, status int, body errorBody) {
	body.RequestID = util.RequestIDFromRequest(r)
	writeJSON(w, status, body)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	writeErrorBody(w, r, status, errorBody{Error: msg, Code: code})
}

// writeAppError maps an application error onto a status and error code.
// Anything unrecognised is logged and reported as a generic 500.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	var validation *limits.ValidationError
	var exceeded *quota.ExceededError
	var provider *identity.APIError
	switch {
	case errors.As(err, &validation):
		writeErrorBody(w, r, http.StatusBadRequest, errorBody{
			Error: validation.Error(),
			Code:  codeValidationFailed,
			Field: validation.Field,
			Limit: validation.Limit,
		})
	case errors.As(err, &exceeded):
		writeErrorBody(w, r, http.StatusForbidden, errorBody{
			Error: exceeded.Error(),
			Code:  codeQuotaExceeded,
			Kind:  exceeded.Kind,
			Limit: int64(exceeded.Limit),
		})
	case errors.Is(err, app.ErrUnauthorized):
		writeError(w, r, http.StatusUnauthorized, codeInvalidToken, "unauthorized")
	case errors.Is(err, app.ErrForbidden):
		writeError(w, r, http.StatusForbidden, codeForbidden, "forbidden")
	case errors.Is(err, app.ErrSubjectNotFound):
		writeError(w, r, http.StatusNotFound, codeSubjectNotFound, "subject not found")
	case errors.Is(err, app.ErrNoteNotFound):
		writeError(w, r, http.StatusNotFound, codeNoteNotFound, "note not found")
	case errors.Is(err, app.ErrFlashcardSetNotFound):
		writeError(w, r, http.StatusNotFound, codeFlashcardSetNotFound, "flashcard set not found")
	case errors.Is(err, app.ErrNoteNotReady):
		writeError(w, r, http.StatusConflict, codeNoteNotReady, "note file is not available yet")
	case errors.As(err, &provider):
		writeProviderError(w, r, provider)
	default:
		util.LoggerFromContext(r.Context()).Error("request failed", "path", r.URL.Path, "err", err)
		writeError(w, r, http.StatusInternalServerError, codeInternal, "internal server error")
	}
}

func writeProviderError(w http.ResponseWriter, r *http.Request, err *identity.APIError) {
	switch {
	case err.Code == identity.CodeEmailExists:
		writeError(w, r, http.StatusConflict, codeEmailExists, "an account with this email already exists")
	case err.Code == identity.CodeWeakPassword:
		writeErrorBody(w, r, http.StatusBadRequest, errorBody{Error: "password is too weak", Code: codeValidationFailed, Field: "password"})
	case err.Code == identity.CodeTooManyAttempts:
		writeError(w, r, http.StatusTooManyRequests, codeRateLimited, "too many attempts, try again later")
	case identity.IsCredentialError(err):
		writeError(w, r, http.StatusUnauthorized, codeInvalidCredentials, "invalid email or password")
	default:
		util.LoggerFromContext(r.Context()).Error("identity provider error", "code", err.Code, "status", err.Status, "err", err)
		writeError(w, r, http.StatusBadGateway, codeProviderUnavailable, "identity provider unavailable")
	}
}
