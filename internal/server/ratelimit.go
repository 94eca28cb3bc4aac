package server

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"github.com/tjfontaine/server-kit/internal/core/domain"
	"github.com/tjfontaine/server-kit/internal/ratelimit"
)

// rateLimitedResponse is the body of every 429 written by this package.
var rateLimitedResponse = domain.NewErrorResponse("TOO_MANY_REQUESTS", "Rate limit exceeded")

func writeRateLimited(w http.ResponseWriter) {
	domain.WriteResponse(w, http.StatusTooManyRequests, rateLimitedResponse)
}

// RateLimitMiddleware admits requests while the shared bucket has tokens.
// Rejected requests get a 429 JSON error with Retry-After and never reach the
// inner handler. Admitted requests carry X-RateLimit-Limit and
// X-RateLimit-Remaining. A nil limiter disables the layer.
func RateLimitMiddleware(l *ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if l == nil {
			return next
		}
		limit := strconv.Itoa(l.Capacity())

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-RateLimit-Limit", limit)

			if !l.Allow() {
				AddLogField(r.Context(), "rate_limited", "true")
				h.Set("X-RateLimit-Remaining", "0")
				h.Set("Retry-After", strconv.Itoa(retryAfterSeconds(l.RetryAfter())))
				writeRateLimited(w)
				return
			}

			h.Set("X-RateLimit-Remaining", strconv.Itoa(l.Remaining()))
			next.ServeHTTP(w, r)
		})
	}
}

// retryAfterSeconds rounds d up to whole seconds, never below one.
func retryAfterSeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

// KeyedRateLimitMiddleware limits each client IP to requests per window using a
// sliding window counter. It complements the shared bucket for per-caller fairness.
func KeyedRateLimitMiddleware(requests int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(
		requests,
		window,
		httprate.WithKeyFuncs(httprate.KeyByRealIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			AddLogField(r.Context(), "rate_limited", "client")
			writeRateLimited(w)
		}),
	)
}
