package testutil

import (
	"net/http"

	"relay/pkg/domain"
	"relay/pkg/platform/middleware/auth"
)

// AsPrincipal attaches p to the request the way RequireAuth would.
func AsPrincipal(req *http.Request, p domain.Principal) *http.Request {
	return req.WithContext(auth.WithPrincipal(req.Context(), p))
}

// PrincipalMiddleware authenticates every request as p. Useful for mounting
// admin handlers on a bare router in tests.
func PrincipalMiddleware(p domain.Principal) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, AsPrincipal(r, p))
		})
	}
}
