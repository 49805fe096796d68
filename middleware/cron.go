package middleware

import (
	"crypto/subtle"
	"net/http"
	"os"
	"strings"
)

// CronAuthMiddleware gates the cron endpoints behind the shared secret the
// scheduler sends in X-Cron-Secret. These routes carry no user identity.
func CronAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secret := strings.TrimSpace(os.Getenv("CRON_SECRET"))
		if secret == "" {
			http.Error(w, "Cron endpoints are not configured", http.StatusServiceUnavailable)
			return
		}
		got := r.Header.Get("X-Cron-Secret")
		if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
