package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/ginzlabs/tg-ai-agent/internal/api/shared"
)

// SecretAuth authenticates requests by comparing a shared secret carried in
// a configurable header. The same middleware guards the backend API
// (X-API-Key), the provider webhook (X-Webhook-Secret) and the bot's
// internal endpoints (X-Secret-Token).
type SecretAuth struct {
	headerName string
	secret     string
}

// NewSecretAuth creates a SecretAuth for the given header and secret.
func NewSecretAuth(headerName, secret string) *SecretAuth {
	if headerName == "" || secret == "" {
		panic("secret auth requires a header name and a secret")
	}
	return &SecretAuth{headerName: headerName, secret: secret}
}

// Require rejects requests whose secret header does not match.
func (m *SecretAuth) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get(m.headerName)
		if got == "" {
			shared.RespondWithError(w, r, http.StatusUnauthorized, m.headerName+" header required")
			return
		}

		if subtle.ConstantTimeCompare([]byte(got), []byte(m.secret)) != 1 {
			slog.Warn("rejected request with invalid secret",
				slog.String("header", m.headerName),
				slog.String("path", r.URL.Path),
				slog.String("remote_addr", r.RemoteAddr))
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Invalid credentials")
			return
		}

		next.ServeHTTP(w, r)
	})
}
