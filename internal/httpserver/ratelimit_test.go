package httpserver

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIPRateLimiter_PerKeyBuckets(t *testing.T) {
	l := newIPRateLimiter(1, 1)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.nowFunc = func() time.Time { return now }

	assert.True(t, l.Allow("10.0.0.1"))
	assert.False(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.2"))

	now = now.Add(time.Second)
	assert.True(t, l.Allow("10.0.0.1"))
}

func TestIPRateLimiter_DropsIdleVisitors(t *testing.T) {
	l := newIPRateLimiter(1, 1)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.nowFunc = func() time.Time { return now }

	l.Allow("10.0.0.1")
	require.Len(t, l.visitors, 1)

	now = now.Add(visitorIdleTTL + visitorSweepInterval)
	l.Allow("10.0.0.2")
	assert.Len(t, l.visitors, 1)
	assert.Contains(t, l.visitors, "10.0.0.2")
}

func TestNewIPRateLimiter_Disabled(t *testing.T) {
	assert.Nil(t, newIPRateLimiter(0, 10))
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "203.0.113.7:4242"
	req.Header.Set("X-Forwarded-For", "1.2.3.4")
	assert.Equal(t, "203.0.113.7", clientIP(req))

	req.RemoteAddr = "::1"
	assert.Equal(t, "::1", clientIP(req))

	req.RemoteAddr = "@"
	assert.Equal(t, "@", clientIP(req))

	req.RemoteAddr = ""
	assert.Equal(t, "unknown", clientIP(req))
}

func TestRateLimit_NonIPPeerIsServed(t *testing.T) {
	s := &Server{limiter: newIPRateLimiter(0.001, 1)}
	h := s.rateLimit(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	serve := func(remote string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusNoContent, serve("/run/accounts.sock"))
	assert.Equal(t, http.StatusTooManyRequests, serve("/run/accounts.sock"))
	assert.Equal(t, http.StatusNoContent, serve("198.51.100.1:80"))
}
