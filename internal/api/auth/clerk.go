package auth

import (
	"net/http"
	"strings"

	"github.com/clerk/clerk-sdk-go/v2"
	"github.com/clerk/clerk-sdk-go/v2/jwt"
	"github.com/rs/zerolog/log"

	"github.com/codr1/leaguedesk/internal/api/authz"
)

const sessionCookieName = "__session"

// clerkInitialized indicates whether the Clerk SDK has been initialized
var clerkInitialized bool

// InitClerk initializes Clerk SDK with the secret key
func InitClerk(secretKey string) {
	if secretKey == "" {
		log.Warn().Msg("Clerk secret key not configured")
		return
	}
	clerk.SetKey(secretKey)
	clerkInitialized = true
	log.Info().Msg("Clerk SDK initialized")
}

// sessionToken returns the bearer token, falling back to the Clerk session
// cookie used by browser screens.
func sessionToken(r *http.Request) string {
	if header := strings.TrimSpace(r.Header.Get("Authorization")); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// WithClerkSession is middleware that validates Clerk session tokens
// and adds session claims and the operator to the request context
func WithClerkSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !clerkInitialized {
			next.ServeHTTP(w, r)
			return
		}

		token := sessionToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := jwt.Verify(r.Context(), &jwt.VerifyParams{
			Token: token,
		})
		if err != nil {
			log.Ctx(r.Context()).Debug().Err(err).Msg("Invalid Clerk session token")
			next.ServeHTTP(w, r)
			return
		}

		ctx := clerk.ContextWithSessionClaims(r.Context(), claims)
		ctx = authz.ContextWithOperator(ctx, operatorFromClaims(claims))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func operatorFromClaims(claims *clerk.SessionClaims) *authz.Operator {
	if claims == nil {
		return nil
	}
	return &authz.Operator{
		ID:               claims.Subject,
		SessionID:        claims.SessionID,
		OrganizationSlug: claims.ActiveOrganizationSlug,
		Role:             claims.ActiveOrganizationRole,
	}
}
