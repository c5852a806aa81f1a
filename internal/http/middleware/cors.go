package middleware

import (
	"net/http"
	"strings"
)

// CORS allows browser frontends on the configured origins to call the API.
// The server binds to loopback, so this is about local UIs on other ports,
// not remote access.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && originAllowed(origin, allowedOrigins) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, "+CorrelationIDHeader)
				w.Header().Set("Access-Control-Expose-Headers", CorrelationIDHeader)
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// originAllowed matches an origin against the allow list. A trailing "*"
// in an entry matches any port, e.g. "http://localhost:*".
func originAllowed(origin string, allowed []string) bool {
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
		if strings.HasSuffix(a, "*") && strings.HasPrefix(origin, strings.TrimSuffix(a, "*")) {
			return true
		}
	}
	return false
}
