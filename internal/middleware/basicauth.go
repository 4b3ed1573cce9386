package middleware

import (
	"crypto/subtle"
	"net/http"
)

// BasicAuth gates a handler behind HTTP basic authentication. The event
// source is configured with static credentials, so this is a plain
// constant-time credential compare, not a user database. With an empty
// username the gate is disabled and every request passes.
func BasicAuth(username, password string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if username == "" {
				next.ServeHTTP(w, r)
				return
			}

			user, pass, ok := r.BasicAuth()
			if !ok || !constantTimeEqual(user, username) || !constantTimeEqual(pass, password) {
				w.Header().Set("WWW-Authenticate", `Basic realm="rtc-telemetry collector"`)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
