package server

import (
	"net/http"

	"github.com/tjfontaine/server-kit/internal/auth"
	"github.com/tjfontaine/server-kit/internal/core/domain"
)

// AuthMiddleware validates the bearer credential of every request with v.
// Failures are answered directly with a JSON error (401, or 403 for forbidden
// credentials) and the inner handler is not called. Accepted requests are
// forwarded unchanged. A nil validator disables the layer.
func AuthMiddleware(v auth.Validator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if v == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if authErr := auth.Authenticate(r.Context(), v, r); authErr != nil {
				AddLogField(r.Context(), "auth_failure", authErr.Kind.String())

				status := authErr.HTTPStatusCode()
				if status == http.StatusUnauthorized {
					w.Header().Set("WWW-Authenticate", "Bearer")
				}
				domain.WriteError(w, status, authErr.Error())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
