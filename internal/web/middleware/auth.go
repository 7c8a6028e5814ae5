package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/JonMunkholm/phantom/internal/config"
	"github.com/JonMunkholm/phantom/internal/logging"
)

// APIKeyAuth checks the X-API-Key header against cfg.APIKeys when
// cfg.RequireAPIKey is set. A missing key answers 401, a wrong one 403.
func APIKeyAuth(cfg config.SecurityConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.RequireAPIKey {
				next.ServeHTTP(w, r)
				return
			}

			logger := logging.FromContext(r.Context())

			key := r.Header.Get("X-API-Key")
			if key == "" {
				logger.Warn("auth: missing API key", "path", r.URL.Path, "ip", clientIP(r))
				writeAuthError(w, http.StatusUnauthorized, "Missing API key", "AUTH001")
				return
			}

			if !validAPIKey(key, cfg.APIKeys) {
				logger.Warn("auth: invalid API key", "path", r.URL.Path, "ip", clientIP(r))
				writeAuthError(w, http.StatusForbidden, "Invalid API key", "AUTH002")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// validAPIKey compares key against every configured key in constant time.
func validAPIKey(key string, keys []string) bool {
	valid := 0
	for _, k := range keys {
		valid |= subtle.ConstantTimeCompare([]byte(key), []byte(k))
	}
	return valid == 1
}

func writeAuthError(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error":   message,
		"message": message,
		"code":    code,
	})
}
