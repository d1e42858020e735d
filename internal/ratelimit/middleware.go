package ratelimit

import (
	"math"
	"net/http"
	"strconv"

	"github.com/codr1/leaguedesk/internal/api/authz"
)

// Middleware rejects requests over budget with 429 and a Retry-After
// header. It must run after the operator is placed in the context.
func (l *Limiter) Middleware(trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var operatorID string
			if operator := authz.OperatorFromContext(r.Context()); operator != nil && !operator.Anonymous {
				operatorID = operator.ID
			}
			ip := GetClientIP(r, trustProxy)

			result := l.Allow(operatorID, ip)
			if !result.Allowed {
				LogRateLimitExceeded(r.Context(), operatorID, ip, result.Reason)
				seconds := int(math.Ceil(result.RetryAfter.Seconds()))
				w.Header().Set("Retry-After", strconv.Itoa(max(seconds, 1)))
				http.Error(w, "Too many requests, slow down", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
