package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unique error code
type ErrorCode int

// AppError represents an application error
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Detail  string    `json:"detail,omitempty"`
	Err     error     `json:"-"`
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches any AppError carrying the same code, so callers can write
// errors.Is(err, errors.ErrAuthorizationDenied) regardless of detail.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// HTTPStatus maps the code to the status the API answers with.
func (e *AppError) HTTPStatus() int {
	switch e.Code {
	case ErrAuthorizationDeniedCode:
		return http.StatusForbidden
	case ErrInvalidDateCode, ErrInvalidRequestCode, ErrBadRequest:
		return http.StatusBadRequest
	case ErrNotFound:
		return http.StatusNotFound
	case ErrUnauthorized:
		return http.StatusUnauthorized
	case ErrSchedulingFailedCode, ErrCancellationFailedCode, ErrRetrievalFailedCode:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Common error codes
const (
	ErrNotFound ErrorCode = iota + 1000
	ErrBadRequest
	ErrUnauthorized
	ErrForbidden
	ErrInternal
)

// Notification error codes
const (
	ErrAuthorizationDeniedCode ErrorCode = iota + 2000
	ErrInvalidDateCode
	ErrSchedulingFailedCode
	ErrCancellationFailedCode
	ErrRetrievalFailedCode
	ErrInvalidRequestCode
)

// Sentinels for errors.Is checks.
var (
	ErrAuthorizationDenied = &AppError{Code: ErrAuthorizationDeniedCode}
	ErrInvalidDate         = &AppError{Code: ErrInvalidDateCode}
	ErrSchedulingFailed    = &AppError{Code: ErrSchedulingFailedCode}
	ErrCancellationFailed  = &AppError{Code: ErrCancellationFailedCode}
	ErrRetrievalFailed     = &AppError{Code: ErrRetrievalFailedCode}
	ErrInvalidRequest      = &AppError{Code: ErrInvalidRequestCode}
)

// Kind returns a short label for metrics and logs.
func (e *AppError) Kind() string {
	switch e.Code {
	case ErrAuthorizationDeniedCode:
		return "authorization_denied"
	case ErrInvalidDateCode:
		return "invalid_date"
	case ErrSchedulingFailedCode:
		return "scheduling_failed"
	case ErrCancellationFailedCode:
		return "cancellation_failed"
	case ErrRetrievalFailedCode:
		return "retrieval_failed"
	case ErrInvalidRequestCode:
		return "invalid_request"
	case ErrNotFound:
		return "not_found"
	case ErrBadRequest:
		return "bad_request"
	case ErrUnauthorized:
		return "unauthorized"
	default:
		return "internal"
	}
}

// Notification error constructors

func AuthorizationDenied() *AppError {
	return &AppError{
		Code:    ErrAuthorizationDeniedCode,
		Message: "Notification permission was denied. Please enable notifications in Settings.",
	}
}

func InvalidDate() *AppError {
	return &AppError{
		Code:    ErrInvalidDateCode,
		Message: "The scheduled date must be in the future.",
	}
}

func SchedulingFailed(err error) *AppError {
	return withDetail(ErrSchedulingFailedCode, "Failed to schedule notification", err)
}

func CancellationFailed(err error) *AppError {
	return withDetail(ErrCancellationFailedCode, "Failed to cancel notification", err)
}

func RetrievalFailed(err error) *AppError {
	return withDetail(ErrRetrievalFailedCode, "Failed to retrieve notifications", err)
}

func InvalidRequest(err error) *AppError {
	return withDetail(ErrInvalidRequestCode, "Invalid notification request", err)
}

func withDetail(code ErrorCode, prefix string, err error) *AppError {
	detail := "unknown error"
	if err != nil {
		detail = err.Error()
	}
	return &AppError{
		Code:    code,
		Message: fmt.Sprintf("%s: %s", prefix, detail),
		Detail:  detail,
		Err:     err,
	}
}

// Error constructors
func NewNotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Err:     err,
	}
}

func NewBadRequest(message string, err error) *AppError {
	return &AppError{
		Code:    ErrBadRequest,
		Message: message,
		Err:     err,
	}
}

func NewInternal(err error) *AppError {
	return &AppError{
		Code:    ErrInternal,
		Message: "internal server error",
		Err:     err,
	}
}

func Unauthorized(err error) *AppError {
	return &AppError{
		Code:    ErrUnauthorized,
		Message: "unauthorized",
		Err:     err,
	}
}

// As extracts an *AppError from err's chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
