package middleware

import (
	"net/http"

	"campus-issue-reporting/pkg/report"
	"campus-issue-reporting/pkg/response"
)

// RequireRole ensures the authenticated actor has one of the allowed roles.
// It must run after AuthMiddleware or OptionalAuth.
func RequireRole(allowedRoles ...report.Role) func(http.Handler) http.Handler {
	allowed := make(map[report.Role]bool, len(allowedRoles))
	for _, r := range allowedRoles {
		allowed[r] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := r.Context().Value(ActorContextKey).(report.Actor)
			if !ok {
				response.Error(w, http.StatusUnauthorized, "Unauthorized", "")
				return
			}

			if !allowed[actor.Role] {
				response.Error(w, http.StatusForbidden, "Forbidden", "Insufficient role")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Chain applies middlewares so that the first one listed is the outermost.
func Chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
