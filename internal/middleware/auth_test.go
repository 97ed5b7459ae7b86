package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/keihi-platform/api/internal/session"
)

type resolverFunc func(r *http.Request) *session.Principal

func (f resolverFunc) Resolve(r *http.Request) *session.Principal { return f(r) }

func TestRequireAuthAndRole(t *testing.T) {
	principals := map[string]*session.Principal{
		"staff":   {UID: "s", Role: session.RoleStaff, CompanyID: "C1"},
		"finance": {UID: "f", Role: session.RoleFinance, CompanyID: "C1"},
	}
	resolver := resolverFunc(func(r *http.Request) *session.Principal {
		return principals[r.Header.Get("X-Test-User")]
	})

	var seen *session.Principal
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	handler := RequestID(RequireAuth(resolver)(RequireOperation(session.OpImportMasters)(final)))

	cases := []struct {
		user string
		want int
		code string
	}{
		{"", http.StatusUnauthorized, `"code":"unauthorized"`},
		{"staff", http.StatusForbidden, `"code":"forbidden"`},
		{"finance", http.StatusOK, ""},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/api/masters/import", nil)
		req.Header.Set("X-Test-User", tc.user)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != tc.want {
			t.Fatalf("user %q: expected status %d, got %d", tc.user, tc.want, rr.Code)
		}
		if tc.code != "" && !strings.Contains(rr.Body.String(), tc.code) {
			t.Fatalf("user %q: expected %s in body, got %s", tc.user, tc.code, rr.Body.String())
		}
		if tc.code != "" && !strings.Contains(rr.Body.String(), `"requestId":"`) {
			t.Fatalf("user %q: expected requestId in envelope", tc.user)
		}
	}
	if seen == nil || seen.UID != "f" {
		t.Fatalf("expected finance principal in context, got %+v", seen)
	}
}

func TestCheckOrigin(t *testing.T) {
	handler := CheckOrigin(true, []string{"https://app.example.jp"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := []struct {
		method, origin string
		want           int
	}{
		{http.MethodPost, "https://evil.example.com", http.StatusForbidden},
		{http.MethodPost, "https://app.example.jp", http.StatusNoContent},
		{http.MethodPost, "", http.StatusNoContent},
		{http.MethodGet, "https://evil.example.com", http.StatusNoContent},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, "/api/users", nil)
		if tc.origin != "" {
			req.Header.Set("Origin", tc.origin)
		}
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != tc.want {
			t.Fatalf("%s from %q: expected %d, got %d", tc.method, tc.origin, tc.want, rr.Code)
		}
	}
}

func TestRecoverWritesEnvelope(t *testing.T) {
	handler := Recover(discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	if strings.Contains(rr.Body.String(), "boom") {
		t.Fatalf("panic value leaked into response: %s", rr.Body.String())
	}
}
