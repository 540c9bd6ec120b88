package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func doRequest(handler http.Handler, remoteAddr string) int {
	req := httptest.NewRequest(http.MethodPost, "/rpc", nil)
	req.RemoteAddr = remoteAddr
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec.Code
}

func TestRateLimiterEnforcesBurst(t *testing.T) {
	limiter := NewRateLimiter(RateLimit{RequestsPerMinute: 60, Burst: 2})
	handler := limiter.Middleware()(okHandler())

	for i := 0; i < 2; i++ {
		if code := doRequest(handler, "10.0.0.1:1234"); code != http.StatusOK {
			t.Fatalf("request %d rejected: %d", i, code)
		}
	}
	if code := doRequest(handler, "10.0.0.1:1234"); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", code)
	}
}

func TestRateLimiterIsPerClient(t *testing.T) {
	limiter := NewRateLimiter(RateLimit{RequestsPerMinute: 60, Burst: 1})
	handler := limiter.Middleware()(okHandler())

	if code := doRequest(handler, "10.0.0.1:1234"); code != http.StatusOK {
		t.Fatalf("first client rejected: %d", code)
	}
	if code := doRequest(handler, "10.0.0.1:9999"); code != http.StatusTooManyRequests {
		t.Fatalf("same host with new port must share the bucket, got %d", code)
	}
	if code := doRequest(handler, "10.0.0.2:1234"); code != http.StatusOK {
		t.Fatalf("distinct client rejected: %d", code)
	}
}

func TestRateLimiterDisabledByZeroRate(t *testing.T) {
	limiter := NewRateLimiter(RateLimit{})
	handler := limiter.Middleware()(okHandler())

	for i := 0; i < 10; i++ {
		if code := doRequest(handler, "10.0.0.1:1234"); code != http.StatusOK {
			t.Fatalf("request %d rejected with limiting disabled: %d", i, code)
		}
	}
}
