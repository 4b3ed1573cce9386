package middleware

import (
	"net/http"
	"strings"
)

// CORS applies the permissive cross-origin policy the dashboard frontend
// expects and answers preflight OPTIONS requests directly.
func CORS(next http.Handler) http.Handler {
	allowedMethods := strings.Join([]string{http.MethodGet, http.MethodPost, http.MethodOptions}, ", ")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", allowedMethods)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
