package middleware

import (
	"net/http"
	"strings"
)

// BodyLimit raises the default request body cap for one route prefix, such
// as the master-data upload.
type BodyLimit struct {
	PathPrefix string
	MaxBytes   int64
}

func LimitBody(defaultMax int64, overrides ...BodyLimit) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			maxBytes := limitFor(r.URL.Path, defaultMax, overrides)
			if maxBytes > 0 && r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func limitFor(path string, defaultMax int64, overrides []BodyLimit) int64 {
	trimmed := strings.TrimPrefix(path, "/api")
	for _, o := range overrides {
		if o.PathPrefix == "" || o.MaxBytes <= 0 {
			continue
		}
		if strings.HasPrefix(path, o.PathPrefix) || strings.HasPrefix(trimmed, o.PathPrefix) {
			return o.MaxBytes
		}
	}
	return defaultMax
}
