package middleware

import (
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/gosuda/evidra/internal/domain"
)

// CorrelationHeader echoes the correlation id back to clients.
const CorrelationHeader = "X-Correlation-ID"

// Correlation attaches a correlation id to the request context and response.
// It reuses chi's request id when RequestID runs first, and otherwise accepts
// a client-supplied X-Correlation-ID or generates one.
func Correlation() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(CorrelationHeader)
			if id == "" {
				id = chimw.GetReqID(r.Context())
			}
			if id == "" || len(id) > 128 {
				id = uuid.NewString()
			}

			w.Header().Set(CorrelationHeader, id)
			next.ServeHTTP(w, r.WithContext(domain.WithCorrelationID(r.Context(), id)))
		})
	}
}
