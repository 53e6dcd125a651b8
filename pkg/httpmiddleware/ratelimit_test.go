package httpmiddleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func get(h http.Handler, remote string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/products", nil)
	req.RemoteAddr = remote
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestMemoryLimiter_Window(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLimiter(2, time.Minute)
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	d, err := l.Allow(ctx, "a", start)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Remaining)
	assert.Equal(t, start.Add(time.Minute), d.Reset)

	d, _ = l.Allow(ctx, "a", start.Add(time.Second))
	assert.True(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)

	d, _ = l.Allow(ctx, "a", start.Add(2*time.Second))
	assert.False(t, d.Allowed)

	// Early in the next window the previous bucket still weighs in.
	d, _ = l.Allow(ctx, "a", start.Add(61*time.Second))
	assert.False(t, d.Allowed)

	// Two windows later the key starts fresh.
	d, _ = l.Allow(ctx, "a", start.Add(3*time.Minute))
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Remaining)
}

func TestMemoryLimiter_Evict(t *testing.T) {
	l := NewMemoryLimiter(1, time.Minute)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	_, _ = l.Allow(context.Background(), "a", now)
	_, _ = l.Allow(context.Background(), "b", now.Add(2*time.Minute))

	l.evict(now.Add(2 * time.Minute))

	assert.NotContains(t, l.buckets, "a")
	assert.Contains(t, l.buckets, "b")
}

func TestRateLimit_OverLimit(t *testing.T) {
	h := RateLimit(RateLimitConfig{Limiter: NewMemoryLimiter(2, time.Minute)})(okHandler())

	for range 2 {
		w := get(h, "10.0.0.1:9999")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	}

	w := get(h, "10.0.0.1:9999")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, float64(429), body["code"])
	assert.Equal(t, "rate limit exceeded", body["message"])

	// Another client has its own budget.
	assert.Equal(t, http.StatusOK, get(h, "10.0.0.2:1234").Code)
}

func TestRateLimit_CustomKeyFunc(t *testing.T) {
	h := RateLimit(RateLimitConfig{
		Limiter: NewMemoryLimiter(1, time.Minute),
		KeyFunc: func(r *http.Request) string { return r.Header.Get("api_key") },
	})(okHandler())

	assert.Equal(t, http.StatusOK, get(h, "10.0.0.1:1", "api_key", "key-a").Code)
	assert.Equal(t, http.StatusTooManyRequests, get(h, "10.0.0.2:1", "api_key", "key-a").Code)
	assert.Equal(t, http.StatusOK, get(h, "10.0.0.1:1", "api_key", "key-b").Code)
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string, time.Time) (Decision, error) {
	return Decision{}, errors.New("redis down")
}

func TestRateLimit_LimiterFailurePasses(t *testing.T) {
	h := RateLimit(RateLimitConfig{Limiter: failingLimiter{}})(okHandler())

	w := get(h, "10.0.0.1:1")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
}

func TestClientIP(t *testing.T) {
	for _, tt := range []struct {
		name      string
		remote    string
		header    []string
		direct    string
		forwarded string
	}{
		{"RemoteAddr", "192.168.1.1:4444", nil, "192.168.1.1", "192.168.1.1"},
		{"NoPort", "192.168.1.1", nil, "192.168.1.1", "192.168.1.1"},
		{"ForwardedFor", "192.168.1.1:4444", []string{"X-Forwarded-For", "203.0.113.50, 70.41.3.18"}, "192.168.1.1", "203.0.113.50"},
		{"RealIP", "192.168.1.1:4444", []string{"X-Real-IP", "198.51.100.7"}, "192.168.1.1", "198.51.100.7"},
		{"EmptyForwardedFor", "192.168.1.1:4444", []string{"X-Forwarded-For", " , 70.41.3.18"}, "192.168.1.1", "192.168.1.1"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for i := 0; i+1 < len(tt.header); i += 2 {
				req.Header.Set(tt.header[i], tt.header[i+1])
			}
			assert.Equal(t, tt.direct, ClientIP(req))
			assert.Equal(t, tt.forwarded, ForwardedClientIP(req))
		})
	}
}

func TestRateLimit_IgnoresForwardedForByDefault(t *testing.T) {
	h := RateLimit(RateLimitConfig{Limiter: NewMemoryLimiter(1, time.Minute)})(okHandler())

	assert.Equal(t, http.StatusOK, get(h, "10.0.0.1:1", "X-Forwarded-For", "203.0.113.1").Code)
	assert.Equal(t, http.StatusTooManyRequests, get(h, "10.0.0.1:1", "X-Forwarded-For", "203.0.113.2").Code,
		"rotating the header must not reset the budget")
}

func TestRateLimit_TrustProxy(t *testing.T) {
	h := RateLimit(RateLimitConfig{Limiter: NewMemoryLimiter(1, time.Minute), TrustProxy: true})(okHandler())

	assert.Equal(t, http.StatusOK, get(h, "10.0.0.1:1", "X-Forwarded-For", "203.0.113.1").Code)
	assert.Equal(t, http.StatusOK, get(h, "10.0.0.1:1", "X-Forwarded-For", "203.0.113.2").Code)
	assert.Equal(t, http.StatusTooManyRequests, get(h, "10.0.0.1:1", "X-Forwarded-For", "203.0.113.1").Code)
}
