package server

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

const (
	BurstMultiplier  = 2
	RateLimitCleanup = time.Minute * 3
)

// RateLimit returns a middleware limiting requests per second for each client
// IP. The host tenant header is client supplied and never selects a bucket.
// A limit of zero or less disables limiting; a burst of zero or less defaults
// to BurstMultiplier times the limit.
func RateLimit(requestsPerSecond, burst int) echo.MiddlewareFunc {
	if requestsPerSecond <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return next
		}
	}
	if burst <= 0 {
		burst = requestsPerSecond * BurstMultiplier
	}

	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Skipper: middleware.DefaultSkipper,
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(requestsPerSecond),
				Burst:     burst,
				ExpiresIn: RateLimitCleanup,
			},
		),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(_ echo.Context, _ error) error {
			return NewBadRequestError("Unable to identify client")
		},
		DenyHandler: func(_ echo.Context, _ string, _ error) error {
			return NewTooManyRequestsError("Too many requests")
		},
	})
}
