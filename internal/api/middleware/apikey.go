package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
)

// APIKeyAuth enforces §6.1's apikey check on every route it wraps: the key
// is read from the apikey query parameter and, when that is absent, from
// the X-Api-Key header, so the dashboard doesn't have to leak the key into
// every URL. A mismatch or missing key yields a
// 400 (matching the scrape endpoint's documented status), not a 401.
func APIKeyAuth(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.URL.Query().Get("apikey")
			if got == "" {
				got = r.Header.Get("X-Api-Key")
			}
			if subtle.ConstantTimeCompare([]byte(got), []byte(expected)) != 1 {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusBadRequest)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"error": "invalid or missing apikey",
					"code":  "invalid_api_key",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
