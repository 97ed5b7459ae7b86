package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Seen-Request-Id", RequestIDFromContext(r.Context()))
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequestIDSources(t *testing.T) {
	cases := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"caller id is kept", map[string]string{HeaderRequestID: "import-42"}, "import-42"},
		{"cloud trace id is used", map[string]string{headerCloudTrace: "105445aa7843bc8bf206b12000100000/1;o=1"}, "105445aa7843bc8bf206b12000100000"},
		{"caller id wins over trace", map[string]string{HeaderRequestID: "abc", headerCloudTrace: "def/1"}, "abc"},
		{"unsafe caller id falls back to trace", map[string]string{HeaderRequestID: "a b\nlevel=ERROR", headerCloudTrace: "def/1"}, "def"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			rr := httptest.NewRecorder()
			RequestID(okHandler()).ServeHTTP(rr, req)
			if got := rr.Header().Get(HeaderRequestID); got != tc.want {
				t.Fatalf("expected response id %q, got %q", tc.want, got)
			}
			if got := rr.Header().Get("X-Seen-Request-Id"); got != tc.want {
				t.Fatalf("expected context id %q, got %q", tc.want, got)
			}
		})
	}

	t.Run("oversized id is replaced", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		req.Header.Set(HeaderRequestID, strings.Repeat("a", maxRequestIDLength+1))
		rr := httptest.NewRecorder()
		RequestID(okHandler()).ServeHTTP(rr, req)
		got := rr.Header().Get(HeaderRequestID)
		if got == "" || len(got) > maxRequestIDLength {
			t.Fatalf("expected a generated id, got %q", got)
		}
	})
}

func TestCORSPreflight(t *testing.T) {
	handler := CORS([]string{"http://localhost:5173"})(okHandler())

	t.Run("allowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/masters/import", nil)
		req.Header.Set("Origin", "http://localhost:5173")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusNoContent {
			t.Fatalf("expected 204, got %d", rr.Code)
		}
		h := rr.Header()
		if h.Get("Access-Control-Allow-Origin") != "http://localhost:5173" || h.Get("Access-Control-Allow-Credentials") != "true" {
			t.Fatalf("missing credentialed allow headers: %v", h)
		}
		if !strings.Contains(h.Get("Access-Control-Allow-Headers"), "Authorization") {
			t.Fatalf("bearer tokens must be allowed: %q", h.Get("Access-Control-Allow-Headers"))
		}
		if strings.Contains(h.Get("Access-Control-Allow-Methods"), http.MethodDelete) {
			t.Fatalf("unexpected method list: %q", h.Get("Access-Control-Allow-Methods"))
		}
		if h.Get("Access-Control-Max-Age") != "600" {
			t.Fatalf("expected preflight max age 600, got %q", h.Get("Access-Control-Max-Age"))
		}
	})

	t.Run("foreign origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/masters/import", nil)
		req.Header.Set("Origin", "https://evil.example")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", rr.Code)
		}
		if rr.Header().Get("Access-Control-Allow-Origin") != "" {
			t.Fatalf("foreign origin must not be echoed")
		}
	})

	t.Run("simple request exposes request id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/masters/accounts", nil)
		req.Header.Set("Origin", "http://localhost:5173")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected the handler to run, got %d", rr.Code)
		}
		if rr.Header().Get("Access-Control-Expose-Headers") != HeaderRequestID {
			t.Fatalf("expected %s to be exposed", HeaderRequestID)
		}
	})
}

func TestSecurityHeaders(t *testing.T) {
	for _, hsts := range []bool{false, true} {
		rr := httptest.NewRecorder()
		SecurityHeaders(hsts)(okHandler()).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/health", nil))

		h := rr.Header()
		if h.Get("Cache-Control") != "no-store" || h.Get("X-Content-Type-Options") != "nosniff" {
			t.Fatalf("missing JSON API headers: %v", h)
		}
		if got := h.Get("Strict-Transport-Security") != ""; got != hsts {
			t.Fatalf("hsts=%v but header present=%v", hsts, got)
		}
	}
}
