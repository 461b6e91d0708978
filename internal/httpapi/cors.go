package httpapi

import (
	"net/http"
	"strings"
)

// allowOrigin grants CORS access to exactly one origin and answers preflight
// requests itself.
func allowOrigin(origin string) func(http.Handler) http.Handler {
	origin = strings.TrimRight(strings.TrimSpace(origin), "/")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqOrigin := r.Header.Get("Origin")
			allowed := origin != "" && reqOrigin != "" && strings.EqualFold(reqOrigin, origin)
			if reqOrigin != "" {
				w.Header().Add("Vary", "Origin")
			}
			if allowed {
				w.Header().Set("Access-Control-Allow-Origin", reqOrigin)
				w.Header().Set("Access-Control-Expose-Headers", "Content-Disposition, X-Session-Id, X-Detection-Count")
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				if allowed {
					w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
					if h := r.Header.Get("Access-Control-Request-Headers"); h != "" {
						w.Header().Set("Access-Control-Allow-Headers", h)
					}
					w.Header().Set("Access-Control-Max-Age", "600")
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
