package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var ok = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestAuth(t *testing.T) {
	h := Auth("secret", "/api/health")(ok)

	tests := []struct {
		name   string
		path   string
		header map[string]string
		want   int
	}{
		{"public path", "/api/health", nil, http.StatusOK},
		{"missing token", "/api/bot/status", nil, http.StatusUnauthorized},
		{"bearer", "/api/bot/status", map[string]string{"Authorization": "Bearer secret"}, http.StatusOK},
		{"api key header", "/api/bot/status", map[string]string{"X-API-Key": "secret"}, http.StatusOK},
		{"wrong key", "/api/bot/status", map[string]string{"X-API-Key": "nope"}, http.StatusUnauthorized},
		{"ws query token", "/ws?token=secret", nil, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}

	rec := httptest.NewRecorder()
	Auth("")(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/trades", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCORS(t *testing.T) {
	h := CORS([]string{"https://dash.example"})(ok)

	req := httptest.NewRequest(http.MethodOptions, "/api/bot/start", nil)
	req.Header.Set("Origin", "https://dash.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://dash.example", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/prices", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestLogging_RequestID(t *testing.T) {
	h := Logging(discard())(ok)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Len(t, rec.Header().Get(RequestIDHeader), 36)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc", rec.Header().Get(RequestIDHeader))
}

type MockLimiter struct {
	mock.Mock
}

func (m *MockLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	args := m.Called(ctx, key, limit, window)
	return args.Bool(0), args.Error(1)
}

func TestRateLimit(t *testing.T) {
	lim := new(MockLimiter)
	lim.On("Allow", mock.Anything, "api:10.0.0.1", 5, time.Minute).Return(true, nil).Once()
	lim.On("Allow", mock.Anything, "api:10.0.0.1", 5, time.Minute).Return(false, nil).Once()
	lim.On("Allow", mock.Anything, "api:10.0.0.2", 5, time.Minute).Return(false, errors.New("redis down"))
	h := RateLimit(lim, 5, time.Minute, discard())(ok)

	call := func(xff string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/prices", nil)
		req.Header.Set("X-Forwarded-For", xff)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, call("10.0.0.1, 172.16.0.1").Code)
	limited := call("10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Equal(t, "60", limited.Header().Get("Retry-After"))
	assert.Equal(t, http.StatusOK, call("10.0.0.2").Code, "fails open")
	lim.AssertExpectations(t)
}
