package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/gosuda/evidra/internal/domain"
)

// problem mirrors the API error body so rejections raised before a handler
// runs look the same as handler errors.
type problem struct {
	Title         string           `json:"title"`
	Status        int              `json:"status"`
	Detail        string           `json:"detail"`
	ErrorCode     domain.ErrorCode `json:"error_code,omitempty"`
	CorrelationID string           `json:"correlation_id,omitempty"`
}

func writeProblem(w http.ResponseWriter, r *http.Request, status int, code domain.ErrorCode, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(problem{
		Title:         http.StatusText(status),
		Status:        status,
		Detail:        detail,
		ErrorCode:     code,
		CorrelationID: domain.CorrelationID(r.Context()),
	})
}
