package auth

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/codr1/leaguedesk/internal/api/authz"
)

const anonymousOperatorID = "anonymous"

// RequireOperator guards write endpoints. When required is false a request
// without a session runs as an anonymous operator, which is how local
// development and kiosk setups work.
func RequireOperator(required bool, tenant string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if !required && authz.OperatorFromContext(ctx) == nil {
				ctx = authz.ContextWithOperator(ctx, &authz.Operator{
					ID:        anonymousOperatorID,
					Anonymous: true,
				})
				r = r.WithContext(ctx)
			}

			if err := authz.RequireOperator(ctx, tenant); err != nil {
				logger := log.Ctx(ctx)
				switch {
				case errors.Is(err, authz.ErrUnauthenticated):
					logger.Warn().Str("path", r.URL.Path).Msg("Operator access denied: unauthenticated")
					http.Error(w, "Unauthorized", http.StatusUnauthorized)
				case errors.Is(err, authz.ErrForbidden):
					logger.Warn().Str("path", r.URL.Path).Str("tenant", tenant).Msg("Operator access denied: forbidden")
					http.Error(w, "Forbidden", http.StatusForbidden)
				default:
					logger.Error().Err(err).Msg("Operator access denied: error")
					http.Error(w, "Failed to authorize request", http.StatusInternalServerError)
				}
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
