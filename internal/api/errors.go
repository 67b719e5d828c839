package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/aiox-platform/mailgate/internal/mail"
)

type AppError struct {
	Code      int        `json:"-"`
	Message   string     `json:"error"`
	Details   []string   `json:"details,omitempty"`
	ResetTime *time.Time `json:"reset_time,omitempty"`
}

func (e *AppError) Error() string {
	return e.Message
}

var (
	ErrBadRequest      = &AppError{Code: http.StatusBadRequest, Message: "bad request"}
	ErrUnauthorized    = &AppError{Code: http.StatusUnauthorized, Message: "unauthorized"}
	ErrForbidden       = &AppError{Code: http.StatusForbidden, Message: "forbidden"}
	ErrNotFound        = &AppError{Code: http.StatusNotFound, Message: "not found"}
	ErrInternalServer  = &AppError{Code: http.StatusInternalServerError, Message: "internal server error"}
	ErrInvalidAPIKey   = &AppError{Code: http.StatusUnauthorized, Message: "invalid or missing API key"}
	ErrAdminRequired   = &AppError{Code: http.StatusForbidden, Message: "operation requires an admin API key"}
	ErrPremiumRequired = &AppError{Code: http.StatusForbidden, Message: "operation requires the premium tier"}
	ErrInvalidJSON     = &AppError{Code: http.StatusBadRequest, Message: "request body must be valid JSON"}
)

func NewBadRequestError(msg string) *AppError {
	return &AppError{Code: http.StatusBadRequest, Message: msg}
}

func NewNotFoundError(msg string) *AppError {
	return &AppError{Code: http.StatusNotFound, Message: msg}
}

func NewValidationError(details ...string) *AppError {
	return &AppError{Code: http.StatusBadRequest, Message: "validation failed", Details: details}
}

// NewQuotaExceededError reports a denied send with the instant the quota frees up.
func NewQuotaExceededError(reason string, resetTime *time.Time) *AppError {
	return &AppError{Code: http.StatusTooManyRequests, Message: reason, ResetTime: resetTime}
}

// NewSendFailedError reports a transport-level failure to the caller.
func NewSendFailedError(msg string) *AppError {
	return &AppError{Code: http.StatusBadGateway, Message: "email failed to send: " + msg}
}

func HandleError(w http.ResponseWriter, err error) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		if appErr.ResetTime != nil {
			secs := int(time.Until(*appErr.ResetTime).Seconds())
			w.Header().Set("Retry-After", strconv.Itoa(max(secs, 1)))
		}
		writeJSON(w, appErr.Code, Response{Error: appErr.Message, Details: appErr.Details, ResetTime: appErr.ResetTime})
		return
	}
	var verr *mail.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusBadRequest, Response{Error: "validation failed", Details: verr.Fields})
		return
	}
	JSONErrorMessage(w, http.StatusInternalServerError, "internal server error")
}
