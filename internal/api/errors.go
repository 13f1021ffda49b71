package api

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"
)

type AppError struct {
	Code    int    `json:"-"`
	Message string `json:"error"`
	// RetryAfter, when positive, is sent as a Retry-After header in whole seconds.
	RetryAfter time.Duration `json:"-"`
}

func (e *AppError) Error() string {
	return e.Message
}

var (
	ErrBadRequest       = &AppError{Code: http.StatusBadRequest, Message: "bad request"}
	ErrUnauthorized     = &AppError{Code: http.StatusUnauthorized, Message: "unauthorized"}
	ErrNotFound         = &AppError{Code: http.StatusNotFound, Message: "not found"}
	ErrMethodNotAllowed = &AppError{Code: http.StatusMethodNotAllowed, Message: "method not allowed"}
	ErrInternalServer   = &AppError{Code: http.StatusInternalServerError, Message: "internal server error"}
	ErrInvalidToken     = &AppError{Code: http.StatusUnauthorized, Message: "invalid or expired token"}
	ErrServiceBusy      = &AppError{Code: http.StatusServiceUnavailable, Message: "service busy, try again shortly"}
	ErrUpstream         = &AppError{Code: http.StatusBadGateway, Message: "assistant unavailable"}
)

func NewBadRequestError(msg string) *AppError {
	return &AppError{Code: http.StatusBadRequest, Message: msg}
}

func NewNotFoundError(msg string) *AppError {
	return &AppError{Code: http.StatusNotFound, Message: msg}
}

func NewValidationError(msg string) *AppError {
	return &AppError{Code: http.StatusBadRequest, Message: msg}
}

func NewTooManyRequestsError(msg string, retryAfter time.Duration) *AppError {
	return &AppError{Code: http.StatusTooManyRequests, Message: msg, RetryAfter: retryAfter}
}

func HandleError(w http.ResponseWriter, err error) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		if appErr.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(appErr.RetryAfter)))
		}
		JSONErrorMessage(w, appErr.Code, appErr.Message)
		return
	}
	JSONErrorMessage(w, http.StatusInternalServerError, "internal server error")
}

// retryAfterSeconds rounds up so clients never retry before the window resets.
func retryAfterSeconds(d time.Duration) int {
	return int(math.Ceil(d.Seconds()))
}
