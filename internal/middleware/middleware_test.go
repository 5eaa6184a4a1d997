package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/paiban/loadplan/internal/config"
	"github.com/paiban/loadplan/internal/security"
	"github.com/paiban/loadplan/pkg/logger"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestAuthMiddleware(t *testing.T) {
	auth := AuthMiddleware(&AuthConfig{
		APIKeyManager: security.NewStaticKeyManager([]string{"secret"}),
		SkipPaths:     []string{"/health"},
	})
	h := auth(okHandler)

	tests := []struct {
		name     string
		method   string
		path     string
		key      string
		expected int
	}{
		{"只读请求免认证", http.MethodGet, "/api/v1/events", "", http.StatusOK},
		{"建议请求免认证", http.MethodPost, "/api/v1/plans/suggest", "", http.StatusOK},
		{"应用方案缺少密钥", http.MethodPost, "/api/v1/plans/apply", "", http.StatusUnauthorized},
		{"应用方案错误密钥", http.MethodPost, "/api/v1/plans/apply", "wrong", http.StatusUnauthorized},
		{"应用方案正确密钥", http.MethodPost, "/api/v1/plans/apply", "secret", http.StatusOK},
		{"导入需要密钥", http.MethodPost, "/api/v1/loads/import", "", http.StatusUnauthorized},
		{"跳过路径", http.MethodPost, "/health", "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.key != "" {
				req.Header.Set("X-API-Key", tt.key)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.expected {
				t.Errorf("status = %d, expected %d", rec.Code, tt.expected)
			}
		})
	}
}

func TestAuthMiddleware_Scope(t *testing.T) {
	keys := security.NewAPIKeyManager()
	keys.Register(&security.APIKey{Key: "ro", Scopes: []string{security.ScopeLoadWrite}, Enabled: true})
	h := AuthMiddleware(&AuthConfig{APIKeyManager: keys})(okHandler)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/plans/reject", nil)
	req.Header.Set("Authorization", "Bearer ro")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, expected %d", rec.Code, http.StatusForbidden)
	}
}

func TestAuthMiddleware_NoKeys(t *testing.T) {
	h := AuthMiddleware(&AuthConfig{APIKeyManager: security.NewStaticKeyManager(nil)})(okHandler)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/plans/apply", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("未配置密钥时应放行, status = %d", rec.Code)
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	h := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logger.RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if seen != "req-1" {
		t.Errorf("context request id = %q, expected req-1", seen)
	}
	if got := rec.Header().Get("X-Request-ID"); got != "req-1" {
		t.Errorf("header = %q, expected req-1", got)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Header().Get("X-Request-ID") == "" || seen == "" {
		t.Error("应自动生成请求ID")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	h := RateLimitMiddleware(security.NewRateLimiter(0.001, 2))(okHandler)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.9:1234"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusOK {
		t.Errorf("前两次应允许, got %v", codes)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Errorf("第三次应限流, got %d", codes[2])
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	h := RecoveryMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, expected 500", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("响应不是JSON: %v", err)
	}
	if body["code"] != "INTERNAL_ERROR" {
		t.Errorf("code = %v, expected INTERNAL_ERROR", body["code"])
	}
}

func TestCORSMiddleware(t *testing.T) {
	h := CORSMiddleware(config.CORSConfig{Enabled: true, Origins: []string{"https://ops.example.com"}})(okHandler)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/context", nil)
	req.Header.Set("Origin", "https://ops.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("预检 status = %d, expected 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://ops.example.com" {
		t.Errorf("Allow-Origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/context", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("未允许的来源不应返回Allow-Origin")
	}
}

func TestChainOrder(t *testing.T) {
	var order []string
	mk := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Chain(okHandler, mk("a"), mk("b"), mk("c"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if got := strings.Join(order, ","); got != "a,b,c" {
		t.Errorf("order = %s, expected a,b,c", got)
	}
}
