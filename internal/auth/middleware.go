package auth

import "net/http"

// RequireAdmin wraps a handler so it 403s any caller not on allowlist,
// re-deriving admin status from the Principal already placed in the
// request context by WithAuthenticated rather than trusting any role
// or is_admin claim baked into the bearer token itself.
func RequireAdmin(allowlist *AdminAllowlist) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := PrincipalFromContext(r.Context())
			if err != nil || !allowlist.IsAdmin(p) {
				http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
