package rpc

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMutatingMethodsRequireBearerToken(t *testing.T) {
	env := newRPCTestEnv(t)

	_, rpcErr, status := env.call(t, "escrow_create", map[string]string{
		"buyer":   bech32Addr(env.buyer),
		"seller":  bech32Addr(env.seller),
		"orderId": "order-auth",
		"amount":  "1",
	}, false)
	if rpcErr == nil || rpcErr.Code != codeUnauthorized {
		t.Fatalf("expected unauthorized, got %+v", rpcErr)
	}
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", status)
	}

	// Read-only methods stay open.
	_, rpcErr, _ = env.call(t, "registry_total", nil, false)
	if rpcErr != nil {
		t.Fatalf("read-only method rejected: %+v", rpcErr)
	}
}

func TestWrongBearerTokenRejected(t *testing.T) {
	env := newRPCTestEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/rpc", strings.NewReader(
		`{"jsonrpc":"2.0","id":1,"method":"escrow_create","params":[{}]}`))
	req.Header.Set("Authorization", "Bearer wrong-token")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestEmptyTokenDisablesMutations(t *testing.T) {
	env := newRPCTestEnv(t)
	env.server.authToken = ""

	_, rpcErr, status := env.call(t, "registry_mint", map[string]string{
		"caller":       bech32Addr(env.seller),
		"serialNumber": "SN-X",
		"productName":  "Thing",
	}, true)
	if rpcErr == nil || rpcErr.Code != codeUnauthorized {
		t.Fatalf("expected unauthorized, got %+v", rpcErr)
	}
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", status)
	}
}

func TestMethodNotFound(t *testing.T) {
	env := newRPCTestEnv(t)
	_, rpcErr, status := env.call(t, "escrow_unknown", map[string]string{}, false)
	if rpcErr == nil || rpcErr.Code != codeMethodNotFound {
		t.Fatalf("expected method not found, got %+v", rpcErr)
	}
	if status != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", status)
	}
}

func TestMalformedJSONRejected(t *testing.T) {
	env := newRPCTestEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/rpc", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "-32700") {
		t.Fatalf("expected parse error code in body: %s", rec.Body.String())
	}
}

func TestUnsupportedJSONRPCVersion(t *testing.T) {
	env := newRPCTestEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/rpc", strings.NewReader(
		`{"jsonrpc":"1.0","id":1,"method":"registry_total"}`))
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestOversizedRequestRejected(t *testing.T) {
	env := newRPCTestEnv(t)
	huge := strings.Repeat("a", maxRequestBytes+10)
	req := httptest.NewRequest(http.MethodPost, "/rpc", strings.NewReader(huge))
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
}

func TestHealthAndMetricsStayOpen(t *testing.T) {
	env := newRPCTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("healthz = %d %q", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics = %d", rec.Code)
	}
}

func TestExtractBearerToken(t *testing.T) {
	cases := []struct {
		header string
		want   string
	}{
		{"", ""},
		{"Bearer abc", "abc"},
		{"bearer abc", "abc"},
		{"Basic abc", ""},
		{"Bearer  padded ", "padded"},
		{"abc", ""},
	}
	for _, tc := range cases {
		if got := extractBearerToken(tc.header); got != tc.want {
			t.Fatalf("extractBearerToken(%q) = %q, want %q", tc.header, got, tc.want)
		}
	}
}
