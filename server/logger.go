package server

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/gaborage/go-sitesettings/logger"
	"github.com/gaborage/go-sitesettings/multitenant"
)

// LoggerConfig configures the request logging middleware.
type LoggerConfig struct {
	// HealthPath specifies the health probe endpoint to exclude from logging
	HealthPath string

	// ReadyPath specifies the readiness probe endpoint to exclude from logging
	ReadyPath string

	// SlowRequestThreshold marks requests slower than this with result_code="WARN"
	SlowRequestThreshold time.Duration
}

// Logger returns a middleware that emits one summary log per request. The
// summary carries the environment the request resolved to, when it resolved.
func Logger(log logger.Logger, cfg LoggerConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Request().URL.Path
			if path == cfg.HealthPath || path == cfg.ReadyPath {
				return next(c)
			}

			start := time.Now()
			err := next(c)
			latency := time.Since(start)
			status := c.Response().Status

			logLevel, resultCode := determineSeverity(status, latency, cfg.SlowRequestThreshold, err)
			ctx := c.Request().Context()
			event := createLogEvent(logger.FromContext(ctx, log), logLevel)
			if err != nil {
				event = event.Err(err)
			}
			if tenantID, ok := multitenant.GetTenant(ctx); ok {
				event = event.Int("tenant", tenantID)
			}

			method := c.Request().Method
			event.
				Str("request_id", c.Response().Header().Get(echo.HeaderXRequestID)).
				Str("http.request.method", method).
				Int("http.response.status_code", status).
				Int64("http.server.request.duration", latency.Nanoseconds()).
				Int64("http.response.body.size", c.Response().Size).
				Str("url.path", path).
				Str("client.address", c.RealIP()).
				Str("result_code", resultCode).
				Msg(method + " " + path + " completed in " + latency.String() + " with status " + strconv.Itoa(status))

			return err
		}
	}
}

// determineSeverity calculates log severity and result_code based on HTTP status, latency, and errors.
func determineSeverity(status int, latency, threshold time.Duration, err error) (logLevel, resultCode string) {
	switch {
	case status >= 500 || (err != nil && status == 0):
		return "error", "ERROR"
	case status >= 400:
		return "warn", "WARN"
	case threshold > 0 && latency > threshold:
		// Slow requests keep INFO severity but are flagged for filtering
		return "info", "WARN"
	default:
		return "info", "INFO"
	}
}

func createLogEvent(log logger.Logger, level string) logger.LogEvent {
	switch level {
	case "error":
		return log.Error()
	case "warn":
		return log.Warn()
	default:
		return log.Info()
	}
}
