package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
)

const (
	HeaderRequestID = "X-Request-Id"
	// headerCloudTrace is set by Cloud Run and the Firebase Hosting rewrite
	// as "TRACE_ID/SPAN_ID;o=OPTIONS".
	headerCloudTrace = "X-Cloud-Trace-Context"

	maxRequestIDLength = 128
)

// RequestID tags each request with an ID that appears in logs, error
// envelopes and the audit trail. A caller's X-Request-Id wins, then the
// Cloud Run trace ID, then a fresh UUID.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(HeaderRequestID)
		if !validRequestID(requestID) {
			requestID = traceID(r.Header.Get(headerCloudTrace))
		}
		if !validRequestID(requestID) {
			requestID = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, requestID)
		next.ServeHTTP(w, r.WithContext(WithRequestID(r.Context(), requestID)))
	})
}

func traceID(header string) string {
	id, _, _ := strings.Cut(header, "/")
	return id
}

// validRequestID accepts IDs that are safe to echo into headers and log
// lines unquoted.
func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLength {
		return false
	}
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-', c == '_', c == '.', c == ':':
		default:
			return false
		}
	}
	return true
}
