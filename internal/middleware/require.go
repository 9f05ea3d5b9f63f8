package middleware

import (
	"net/http"

	"studio-backend/internal/access"
)

// Require rejects callers whose role lacks c. It must run after
// JWTAuth.Middleware.
func Require(policy *access.Policy, c access.Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller := GetCaller(r.Context())
			if !policy.Allows(caller.Role, c) {
				writeError(w, http.StatusForbidden, "FORBIDDEN", "You do not have permission to perform this action", r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
