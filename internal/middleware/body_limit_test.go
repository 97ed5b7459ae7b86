package middleware

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestLimitBody(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, err := io.ReadAll(r.Body)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	upload := BodyLimit{PathPrefix: "/masters/import", MaxBytes: 10}
	router := LimitBody(2, upload, BodyLimit{PathPrefix: "/export", MaxBytes: 0})(handler)

	cases := []struct {
		name string
		path string
		body string
		want int
	}{
		{"upload under /api uses the override", "/api/masters/import", "12345", http.StatusOK},
		{"upload without prefix uses the override", "/masters/import", "12345", http.StatusOK},
		{"upload above the override", "/api/masters/import", strings.Repeat("x", 11), http.StatusRequestEntityTooLarge},
		{"json route keeps the default", "/api/masters/accounts", "12345", http.StatusRequestEntityTooLarge},
		{"zero override is ignored", "/api/export/jobs", "12345", http.StatusRequestEntityTooLarge},
		{"body at the default", "/api/users", "12", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, tc.path, strings.NewReader(tc.body))
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)
			if rr.Code != tc.want {
				t.Fatalf("expected status %d, got %d", tc.want, rr.Code)
			}
		})
	}
}
