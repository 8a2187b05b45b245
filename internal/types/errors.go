package types

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Complete error code constants.
// All packages MUST use these constants instead of hardcoded strings.
const (
	// Validation (400). Raised locally, before any network call.
	ErrCodeValidationMissingField  ErrorCode = "validation_missing_required_field"
	ErrCodeValidationNotNumeric    ErrorCode = "validation_not_numeric"
	ErrCodeValidationOutOfSet      ErrorCode = "validation_value_not_allowed"
	ErrCodeValidationUnknownField  ErrorCode = "validation_unknown_field"
	ErrCodeValidationEmptyCity     ErrorCode = "validation_empty_city"
	ErrCodeValidationCoordinates   ErrorCode = "validation_invalid_coordinates"
	ErrCodeValidationNoPredictions ErrorCode = "validation_no_prediction_data"
	ErrCodeValidationReportFormat  ErrorCode = "validation_invalid_report_format"
	ErrCodeValidationInvalidJSON   ErrorCode = "validation_invalid_json"

	// Not Found (404)
	ErrCodeNotFoundSession ErrorCode = "not_found_session"
	ErrCodeNotFoundRoute   ErrorCode = "not_found_route"

	// Method Not Allowed (405)
	ErrCodeMethodNotAllowed ErrorCode = "method_not_allowed"

	// Conflict (409). Workflow is not in a state that allows the action.
	ErrCodeConflictPredictionPending ErrorCode = "conflict_prediction_pending"
	ErrCodeConflictNotReady          ErrorCode = "conflict_prediction_not_ready"
	ErrCodeConflictExportPending     ErrorCode = "conflict_export_pending"
	ErrCodeConflictSuperseded        ErrorCode = "conflict_superseded"

	// Upstream (502). One per RemoteErrorKind.
	ErrCodeUpstreamNetwork   ErrorCode = "upstream_network"
	ErrCodeUpstreamRejected  ErrorCode = "upstream_rejected"
	ErrCodeUpstreamMalformed ErrorCode = "upstream_malformed"

	// Internal (500)
	ErrCodeInternalUnexpected ErrorCode = "internal_unexpected_error"
)

// HTTPStatus maps an ErrorCode to its corresponding HTTP status code.
// Returns 500 for unrecognized error codes as a safe default.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound
	case c == ErrCodeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case strings.HasPrefix(s, "conflict_"):
		return http.StatusConflict
	case strings.HasPrefix(s, "upstream_"):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// IsValidation reports whether the code belongs to the local validation family.
func (c ErrorCode) IsValidation() bool {
	return strings.HasPrefix(string(c), "validation_")
}

// AppError is the standard application error type used throughout the module.
// Validation failures, remote failures and workflow conflicts are all expressed
// as AppError so callers can use errors.As and the HTTP facade can render a
// consistent envelope.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code corresponding to this error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithDetails returns a copy of the error with the provided details merged in.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     e.Err,
		Details: merged,
	}
}

// NewAppError creates a new AppError with the given code, message, and optional
// underlying error.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewAppErrorWithDetails creates a new AppError with structured details.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: details,
	}
}

// NewValidationError builds a local validation failure for a single field.
func NewValidationError(code ErrorCode, field, message string) *AppError {
	if field == "" {
		return NewAppError(code, message, nil)
	}
	return NewAppErrorWithDetails(code, message, nil, map[string]any{"field": field})
}

// IsValidationError reports whether err is (or wraps) a local validation failure.
func IsValidationError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code.IsValidation()
}

// RemoteErrorKind classifies failures of a remote call.
type RemoteErrorKind string

const (
	RemoteNetwork        RemoteErrorKind = "network"
	RemoteServerRejected RemoteErrorKind = "server_rejected"
	RemoteMalformed      RemoteErrorKind = "malformed"
)

// Code returns the upstream error code for the kind.
func (k RemoteErrorKind) Code() ErrorCode {
	switch k {
	case RemoteNetwork:
		return ErrCodeUpstreamNetwork
	case RemoteServerRejected:
		return ErrCodeUpstreamRejected
	default:
		return ErrCodeUpstreamMalformed
	}
}

// NewRemoteError creates an AppError for a failed remote call. status is the
// HTTP status of the response, or 0 when no response was received.
func NewRemoteError(kind RemoteErrorKind, message string, status int, err error) *AppError {
	details := map[string]any{"kind": string(kind)}
	if status != 0 {
		details["status"] = status
	}
	return NewAppErrorWithDetails(kind.Code(), message, err, details)
}

// RemoteKind extracts the RemoteErrorKind from err. ok is false when err is not
// a remote failure.
func RemoteKind(err error) (kind RemoteErrorKind, ok bool) {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return "", false
	}
	switch appErr.Code {
	case ErrCodeUpstreamNetwork:
		return RemoteNetwork, true
	case ErrCodeUpstreamRejected:
		return RemoteServerRejected, true
	case ErrCodeUpstreamMalformed:
		return RemoteMalformed, true
	}
	return "", false
}

// ErrStaleResponse marks a result that arrived after a newer call of the same
// kind was issued. It is used internally by the workflow and never surfaced.
var ErrStaleResponse = errors.New("stale response discarded")
