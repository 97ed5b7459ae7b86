package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Browsers send the session cookie with credentials, and CLI or mobile
// clients send an ID token as a Bearer Authorization header.
var (
	corsAllowedMethods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions}
	corsAllowedHeaders = []string{"Authorization", "Content-Type", HeaderRequestID}
)

const corsPreflightMaxAge = 10 * time.Minute

func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	allowed := originSet(allowedOrigins)
	methods := strings.Join(corsAllowedMethods, ", ")
	headers := strings.Join(corsAllowedHeaders, ", ")
	maxAge := strconv.Itoa(int(corsPreflightMaxAge.Seconds()))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			_, ok := allowed[origin]
			preflight := r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""

			h := w.Header()
			if origin != "" {
				h.Add("Vary", "Origin")
			}
			if origin != "" && ok {
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Credentials", "true")
				h.Set("Access-Control-Expose-Headers", HeaderRequestID)
			}

			if !preflight {
				next.ServeHTTP(w, r)
				return
			}
			h.Add("Vary", "Access-Control-Request-Method")
			h.Add("Vary", "Access-Control-Request-Headers")
			if !ok {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			h.Set("Access-Control-Allow-Methods", methods)
			h.Set("Access-Control-Allow-Headers", headers)
			h.Set("Access-Control-Max-Age", maxAge)
			w.WriteHeader(http.StatusNoContent)
		})
	}
}
