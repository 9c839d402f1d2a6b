package domain

import (
	"errors"
	"net/http"
)

// Sentinel errors for the domain layer.
var (
	ErrNotFound  = errors.New("domain: not found")
	ErrConflict  = errors.New("domain: conflict")
	ErrForbidden = errors.New("domain: forbidden")

	// ErrDuplicate is returned by repositories when a unique key already exists.
	ErrDuplicate = errors.New("domain: duplicate")
	// ErrSealed is returned by repositories when a write targets a sealed entity.
	ErrSealed = errors.New("domain: sealed")
	// ErrQuarantined is returned by repositories when a write targets a quarantined draft.
	ErrQuarantined = errors.New("domain: quarantined")
)

// ErrorCode is the stable, machine-readable code returned to API clients.
type ErrorCode string

const (
	CodeMissingRequiredMetadata ErrorCode = "MISSING_REQUIRED_METADATA"
	CodeMissingScopeTargetID    ErrorCode = "MISSING_SCOPE_TARGET_ID"
	CodeInvalidPayload          ErrorCode = "INVALID_PAYLOAD"
	CodeUnsupportedCombination  ErrorCode = "UNSUPPORTED_METHOD_DATASET_COMBINATION"
	CodeValidationFailed        ErrorCode = "VALIDATION_FAILED"
	CodeSealedImmutable         ErrorCode = "SEALED_IMMUTABLE"
	CodeIdempotencyConflict     ErrorCode = "IDEMPOTENCY_CONFLICT"
	CodeDraftQuarantined        ErrorCode = "DRAFT_QUARANTINED"
	CodeInvalidTransition       ErrorCode = "INVALID_TRANSITION"
	CodeNotFound                ErrorCode = "NOT_FOUND"
	CodeForbidden               ErrorCode = "FORBIDDEN"
	CodeInternal                ErrorCode = "INTERNAL"
)

// HTTPStatus maps an error code to the HTTP status it is reported with.
func (c ErrorCode) HTTPStatus() int {
	switch c {
	case CodeMissingRequiredMetadata, CodeMissingScopeTargetID, CodeInvalidPayload,
		CodeUnsupportedCombination, CodeValidationFailed:
		return http.StatusUnprocessableEntity
	case CodeSealedImmutable, CodeIdempotencyConflict, CodeDraftQuarantined, CodeInvalidTransition:
		return http.StatusConflict
	case CodeNotFound:
		return http.StatusNotFound
	case CodeForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// Error is a rejection with a stable code. Field names the offending input, if any.
type Error struct {
	Code    ErrorCode
	Field   string
	Message string
}

func (e *Error) Error() string {
	if e.Field != "" {
		return string(e.Code) + ": " + e.Field + ": " + e.Message
	}
	return string(e.Code) + ": " + e.Message
}

// NewError creates an Error without a field.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewFieldError creates an Error attributed to a single input field.
func NewFieldError(code ErrorCode, field, message string) *Error {
	return &Error{Code: code, Field: field, Message: message}
}

// CodeOf extracts the ErrorCode carried by err. Errors without a code map to
// NOT_FOUND, CONFLICT-style sentinels or INTERNAL.
func CodeOf(err error) ErrorCode {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrSealed):
		return CodeSealedImmutable
	case errors.Is(err, ErrQuarantined):
		return CodeDraftQuarantined
	case errors.Is(err, ErrForbidden):
		return CodeForbidden
	default:
		return CodeInternal
	}
}
