package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/readlater/internal/middleware"
	"github.com/hitoshi/readlater/internal/model"
)

func TestRouter_Health(t *testing.T) {
	tests := []struct {
		name       string
		db         mockPinger
		wantStatus int
		wantBody   string
	}{
		{name: "正常", wantStatus: http.StatusOK, wantBody: "ok"},
		{name: "DB停止", db: mockPinger{err: errors.New("connection refused")}, wantStatus: http.StatusServiceUnavailable, wantBody: "unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(t, testDeps{db: tt.db})

			w := serve(router, httptest.NewRequest(http.MethodGet, "/health", nil))
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			var body map[string]string
			json.NewDecoder(w.Body).Decode(&body)
			if body["status"] != tt.wantBody {
				t.Errorf("status field = %q, want %q", body["status"], tt.wantBody)
			}
		})
	}
}

func TestRouter_PublicEndpoints(t *testing.T) {
	router := newTestRouter(t, testDeps{})

	w := serve(router, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "# metrics") {
		t.Errorf("metrics: status = %d, body = %q", w.Code, w.Body.String())
	}

	w = serve(router, httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil))
	if w.Code != http.StatusOK {
		t.Errorf("csrf-token: status = %d, want 200", w.Code)
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers should be applied to public routes")
	}
	var token map[string]string
	json.NewDecoder(w.Body).Decode(&token)
	if token["token"] == "" {
		t.Error("csrf-token should return a token")
	}
}

func TestRouter_RequiresSession(t *testing.T) {
	router := newTestRouter(t, testDeps{})

	req := httptest.NewRequest(http.MethodPost, "/api/entries", strings.NewReader(`{"url":"https://a.test"}`))
	w := serve(router, req)
	if w.Code != http.StatusUnauthorized || decodeErrorCode(t, w) != model.ErrCodeUnauthorized {
		t.Errorf("status = %d, want 401 UNAUTHORIZED", w.Code)
	}
}

func TestRouter_RequiresCSRFToken(t *testing.T) {
	router := newTestRouter(t, testDeps{})

	req := newAuthedRequest(http.MethodPost, "/api/entries", strings.NewReader(`{"url":"https://a.test"}`))
	req.Header.Del("X-CSRF-Token")
	w := serve(router, req)
	if w.Code != http.StatusForbidden || decodeErrorCode(t, w) != model.ErrCodeCSRFInvalid {
		t.Errorf("status = %d, want 403 CSRF_INVALID", w.Code)
	}

	// GETはトークン不要
	w = serve(router, newAuthedRequest(http.MethodGet, "/api/entries/export", nil))
	if w.Code != http.StatusOK {
		t.Errorf("export: status = %d, want 200", w.Code)
	}
}

func TestRouter_IngestRateLimitIsSeparate(t *testing.T) {
	limits := middleware.NewRateLimiterConfig(100, 1)
	router := newTestRouter(t, testDeps{limits: &limits})

	add := func() int {
		req := newAuthedRequest(http.MethodPost, "/api/entries", strings.NewReader(`{"url":"https://a.test"}`))
		return serve(router, req).Code
	}

	if code := add(); code != http.StatusCreated {
		t.Fatalf("first add: status = %d, want 201", code)
	}
	if code := add(); code != http.StatusTooManyRequests {
		t.Errorf("second add: status = %d, want 429", code)
	}

	// 記事追加の制限は他のAPIに影響しない
	w := serve(router, newAuthedRequest(http.MethodPost, "/api/entries/1/favorite", nil))
	if w.Code != http.StatusOK {
		t.Errorf("favorite: status = %d, want 200", w.Code)
	}
}

func TestRouter_UnknownRoute(t *testing.T) {
	router := newTestRouter(t, testDeps{})

	w := serve(router, newAuthedRequest(http.MethodGet, "/api/nothing", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}
