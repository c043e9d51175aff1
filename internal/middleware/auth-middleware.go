package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"world-chat/internal/auth"

	"github.com/rs/zerolog"
)

type contextKey string

const principalKey contextKey = "principal"

func getIP(r *http.Request) string {
	forwarded := r.Header.Get("X-Forwarded-For")
	if forwarded != "" {
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Authenticate resolves an optional verified principal from the `token` query
// parameter or the access_token cookie. Requests without a token pass through
// as guests; a present but invalid token is rejected. A nil verifier disables
// token handling entirely.
func Authenticate(verifier *auth.Verifier, log zerolog.Logger) func(http.Handler) http.Handler {
	log = log.With().Str("component", "auth").Logger()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if verifier == nil {
				next.ServeHTTP(w, r)
				return
			}

			token := r.URL.Query().Get("token")
			if token == "" {
				if cookie, err := r.Cookie("access_token"); err == nil {
					token = cookie.Value
				}
			}
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			principal, err := verifier.Verify(token)
			if err != nil {
				log.Warn().Err(err).Str("ip", getIP(r)).Msg("rejected token")
				http.Error(w, "Session expired or invalid", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), principalKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func PrincipalFrom(ctx context.Context) (*auth.Principal, bool) {
	p, ok := ctx.Value(principalKey).(*auth.Principal)
	return p, ok && p != nil
}

// ClientIP exposes the forwarded-aware remote address for logging.
func ClientIP(r *http.Request) string {
	return getIP(r)
}
