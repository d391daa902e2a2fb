package middleware

import (
	"net/http"
	"strings"

	"github.com/hongminglow/ondata-be/internal/auth"
	"github.com/hongminglow/ondata-be/internal/http/respond"
	"github.com/hongminglow/ondata-be/internal/service"
)

// Authenticator verifies a bearer token.
type Authenticator interface {
	Authenticate(token string) (auth.Identity, error)
}

// RequireAuth rejects requests without a valid bearer token and attaches
// the caller identity to the request context otherwise.
func RequireAuth(authn Authenticator, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok {
			respond.Error(w, http.StatusUnauthorized, "missing or malformed authorization header")
			return
		}
		id, err := authn.Authenticate(token)
		if err != nil {
			respond.Error(w, http.StatusUnauthorized, service.Message(err, "invalid token"))
			return
		}
		next(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
	}
}

func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}
