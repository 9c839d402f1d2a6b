package v1

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/danielgtaylor/huma/v2"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/evidra/internal/domain"
)

// APIError is the problem body returned for every failed request.
type APIError struct {
	Title         string              `json:"title"`
	Status        int                 `json:"status"`
	Detail        string              `json:"detail,omitempty"`
	ErrorCode     domain.ErrorCode    `json:"error_code,omitempty"`
	Field         string              `json:"field,omitempty"`
	CorrelationID string              `json:"correlation_id,omitempty"`
	Errors        []*huma.ErrorDetail `json:"errors,omitempty"`
}

func (e *APIError) Error() string  { return e.Detail }
func (e *APIError) GetStatus() int { return e.Status }

// ContentType marks the body as an RFC 9457 problem document.
func (e *APIError) ContentType(string) string { return "application/problem+json" }

// codeForStatus picks the error code for rejections raised by huma itself,
// such as schema validation failures.
func codeForStatus(status int) domain.ErrorCode {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return domain.CodeValidationFailed
	case http.StatusForbidden:
		return domain.CodeForbidden
	case http.StatusNotFound:
		return domain.CodeNotFound
	case http.StatusInternalServerError:
		return domain.CodeInternal
	default:
		return ""
	}
}

var installErrorsOnce sync.Once

// UseProblemErrors makes huma render its own errors as APIError. Call once
// before serving; repeated calls are no-ops.
func UseProblemErrors() {
	installErrorsOnce.Do(func() {
		huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
			apiErr := &APIError{
				Title:     http.StatusText(status),
				Status:    status,
				Detail:    msg,
				ErrorCode: codeForStatus(status),
			}
			for _, err := range errs {
				if err == nil {
					continue
				}
				var detail *huma.ErrorDetail
				if errors.As(err, &detail) {
					apiErr.Errors = append(apiErr.Errors, detail)
					continue
				}
				if status >= http.StatusInternalServerError {
					// Internal causes are logged, never returned.
					log.Error().Err(err).Int("status", status).Msg(msg)
					continue
				}
				apiErr.Errors = append(apiErr.Errors, &huma.ErrorDetail{Message: err.Error()})
			}
			return apiErr
		}
	})
}

// problem converts a service error into an APIError. Coded domain errors keep
// their code and field; anything unexpected becomes an opaque 500.
func problem(ctx context.Context, err error) error {
	code := domain.CodeOf(err)
	apiErr := &APIError{
		Status:        code.HTTPStatus(),
		ErrorCode:     code,
		CorrelationID: domain.CorrelationID(ctx),
	}
	apiErr.Title = http.StatusText(apiErr.Status)

	var de *domain.Error
	switch {
	case errors.As(err, &de):
		apiErr.Detail = de.Message
		apiErr.Field = de.Field
	case code == domain.CodeInternal:
		log.Error().Err(err).Str("correlation_id", apiErr.CorrelationID).Msg("request failed")
		apiErr.Detail = "internal error"
	default:
		apiErr.Detail = http.StatusText(apiErr.Status)
	}

	return apiErr
}

// reject builds a coded error for checks performed in the handler itself.
func reject(ctx context.Context, code domain.ErrorCode, detail string) error {
	return problem(ctx, domain.NewError(code, detail))
}
