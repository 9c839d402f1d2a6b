package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/gosuda/evidra/internal/domain"
)

// RequireTenant rejects requests whose session carries no tenant.
func RequireTenant() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tid, ok := TenantIDFromContext(r.Context())
			if !ok || tid == uuid.Nil {
				writeProblem(w, r, http.StatusForbidden, domain.CodeForbidden, "valid tenant required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
