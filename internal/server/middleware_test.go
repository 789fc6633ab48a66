package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestChain_order(t *testing.T) {
	var calls []string
	mw := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls = append(calls, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Chain(okHandler(), mw("outer"), mw("inner"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if len(calls) != 2 || calls[0] != "outer" || calls[1] != "inner" {
		t.Errorf("middleware call order = %v, want [outer inner]", calls)
	}
}

func TestRequestIDMiddleware_generates(t *testing.T) {
	var gotID string
	h := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = RequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if gotID == "" {
		t.Error("expected request ID in context")
	}
	if rec.Header().Get("X-Request-ID") != gotID {
		t.Errorf("response header %q != context ID %q", rec.Header().Get("X-Request-ID"), gotID)
	}
}

func TestRequestIDMiddleware_propagates(t *testing.T) {
	var gotID string
	h := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = RequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "client-supplied-id")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if gotID != "client-supplied-id" {
		t.Errorf("request ID = %q, want client-supplied-id", gotID)
	}
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	h := SecurityHeadersMiddleware(okHandler())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	want := map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Referrer-Policy":        "strict-origin-when-cross-origin",
	}
	for header, value := range want {
		if got := rec.Header().Get(header); got != value {
			t.Errorf("%s = %q, want %q", header, got, value)
		}
	}
	if rec.Header().Get("Content-Security-Policy") == "" {
		t.Error("missing Content-Security-Policy header")
	}
}

func TestVersionHeaderMiddleware(t *testing.T) {
	h := VersionHeaderMiddleware(okHandler())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Header().Get("X-RouteFleet-Version") == "" {
		t.Error("missing X-RouteFleet-Version header")
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	h := RecoveryMiddleware(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("handler exploded")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/devices", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Errorf("Content-Type = %q, want application/problem+json", ct)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	// 1 rps with burst 2: the third immediate request must be limited.
	h := RateLimitMiddleware(1, 2, nil)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/devices", nil)
	req.RemoteAddr = "10.1.1.1:55000"

	var last int
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		last = rec.Code
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("third request status = %d, want 429", last)
	}
}

func TestRateLimitMiddleware_skipPaths(t *testing.T) {
	h := RateLimitMiddleware(1, 1, []string{"/healthz"})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.RemoteAddr = "10.1.1.2:55000"

	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d to skipped path: status = %d, want 200", i, rec.Code)
		}
	}
}

func TestRateLimitMiddleware_perIP(t *testing.T) {
	h := RateLimitMiddleware(1, 1, nil)(okHandler())

	first := httptest.NewRequest(http.MethodGet, "/api/v1/devices", nil)
	first.RemoteAddr = "10.2.0.1:44000"
	second := httptest.NewRequest(http.MethodGet, "/api/v1/devices", nil)
	second.RemoteAddr = "10.2.0.2:44000"

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, first)
	if rec.Code != http.StatusOK {
		t.Fatalf("first IP: status = %d", rec.Code)
	}

	// Exhausting one IP's bucket must not affect another IP.
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, first)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("first IP second request: status = %d, want 429", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, second)
	if rec.Code != http.StatusOK {
		t.Errorf("second IP: status = %d, want 200", rec.Code)
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		want       string
	}{
		{"remote addr", "192.168.1.10:5000", "", "192.168.1.10"},
		{"x-forwarded-for", "10.0.0.1:5000", "203.0.113.7", "203.0.113.7"},
		{"x-forwarded-for chain", "10.0.0.1:5000", "203.0.113.7, 10.0.0.1", "203.0.113.7"},
		{"no port", "192.168.1.10", "", "192.168.1.10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if got := clientIP(req); got != tt.want {
				t.Errorf("clientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
