package middleware

import (
	"net/http"
)

// NoStore marks every response as uncacheable. Mounted on routes that return
// tokens or per-user data, so shared caches never keep them.
func NoStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Pragma", "no-cache")
		next.ServeHTTP(w, r)
	})
}
