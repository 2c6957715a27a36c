package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testIP = "192.168.1.100"
)

func newRateLimitedEcho(limit, burst int) *echo.Echo {
	cfg := testConfig()
	e := echo.New()
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		customErrorHandler(err, c, cfg)
	}
	e.Use(TenantMiddleware(HeaderXTenantID))
	e.Use(RateLimit(limit, burst))
	e.GET("/test", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	return e
}

func countResponses(e *echo.Echo, n int, setup func(*http.Request)) (allowed, blocked int) {
	for range n {
		req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
		req.RemoteAddr = testIP + ":12345"
		if setup != nil {
			setup(req)
		}
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		switch rec.Code {
		case http.StatusOK:
			allowed++
		case http.StatusTooManyRequests:
			blocked++
		}
	}
	return allowed, blocked
}

func TestRateLimit(t *testing.T) {
	tests := []struct {
		name          string
		limit         int
		burst         int
		requestCount  int
		expectAllowed int
		expectBlocked int
	}{
		{name: "requests_within_limit", limit: 10, requestCount: 5, expectAllowed: 5},
		{name: "requests_exceed_default_burst", limit: 2, requestCount: 10, expectAllowed: 4, expectBlocked: 6},
		{name: "explicit_burst", limit: 1, burst: 3, requestCount: 5, expectAllowed: 3, expectBlocked: 2},
		{name: "disabled", limit: 0, requestCount: 50, expectAllowed: 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newRateLimitedEcho(tt.limit, tt.burst)
			allowed, blocked := countResponses(e, tt.requestCount, nil)
			assert.Equal(t, tt.expectAllowed, allowed, "Unexpected number of allowed requests")
			assert.Equal(t, tt.expectBlocked, blocked, "Unexpected number of blocked requests")
		})
	}
}

func TestRateLimitSeparatesClients(t *testing.T) {
	e := newRateLimitedEcho(1, 2)

	for _, ip := range []string{"203.0.113.1", "203.0.113.2"} {
		allowed, blocked := countResponses(e, 3, func(req *http.Request) {
			req.RemoteAddr = ip + ":8080"
		})
		assert.Equal(t, 2, allowed, ip)
		assert.Equal(t, 1, blocked, ip)
	}
}

func TestRateLimitIgnoresTenantHeader(t *testing.T) {
	e := newRateLimitedEcho(1, 2)

	// Same client address with a new tenant header on every request: one bucket.
	var allowed, blocked int
	for _, tenant := range []string{"2", "3", "4", "5"} {
		a, b := countResponses(e, 1, func(req *http.Request) {
			req.Header.Set(HeaderXTenantID, tenant)
		})
		allowed += a
		blocked += b
	}
	assert.Equal(t, 2, allowed)
	assert.Equal(t, 2, blocked)
}

func TestRateLimitErrorEnvelope(t *testing.T) {
	e := newRateLimitedEcho(1, 1)

	var blocked *httptest.ResponseRecorder
	for range 3 {
		req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
		req.RemoteAddr = testIP + ":12345"
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		if rec.Code == http.StatusTooManyRequests {
			blocked = rec
			break
		}
	}

	require.NotNil(t, blocked, "Should have received a rate limited response")
	resp := decodeResponse(t, blocked)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "TOO_MANY_REQUESTS", resp.Error.Code)
	assert.Equal(t, "Too many requests", resp.Error.Message)
}

func TestRateLimitRefills(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping rate limit refill test in short mode")
	}

	e := newRateLimitedEcho(2, 2)
	_, blocked := countResponses(e, 3, nil)
	require.Equal(t, 1, blocked)

	time.Sleep(1100 * time.Millisecond)

	allowed, _ := countResponses(e, 1, nil)
	assert.Equal(t, 1, allowed)
}
