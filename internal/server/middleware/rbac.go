package middleware

import (
	"net/http"

	"github.com/gosuda/evidra/internal/domain"
)

// RequireRole returns middleware that checks if the authenticated user has one
// of the allowed roles. It must be chained after Auth.
//
// Returns 401 when no role is in context and 403 with error_code FORBIDDEN
// when the role is not allowed.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role, ok := RoleFromContext(r.Context())
			if !ok || role == "" {
				writeProblem(w, r, http.StatusUnauthorized, "", "authentication required")
				return
			}

			if _, match := allowed[role]; !match {
				writeProblem(w, r, http.StatusForbidden, domain.CodeForbidden, "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin is a convenience wrapper for RequireRole(domain.RoleAdmin).
func RequireAdmin() func(http.Handler) http.Handler {
	return RequireRole(domain.RoleAdmin)
}
