package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/trace"

	"github.com/gaborage/go-sitesettings/config"
)

const envAliasDev = "dev"

// IAPIError is an error that knows how it is presented to API clients.
type IAPIError interface {
	ErrorCode() string
	Message() string
	HTTPStatus() int
	Details() map[string]any
}

// APIResponse represents the standardized API response format.
type APIResponse struct {
	Data  any               `json:"data,omitempty"`
	Error *APIErrorResponse `json:"error,omitempty"`
	Meta  map[string]any    `json:"meta"`
}

// APIErrorResponse represents the error portion of an API response.
type APIErrorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func isDevelopmentEnv(env string) bool {
	return env == config.EnvDevelopment || env == envAliasDev
}

func formatSuccessResponse(c echo.Context, status int, data any) error {
	return c.JSON(status, APIResponse{
		Data: data,
		Meta: responseMeta(c),
	})
}

func formatErrorResponse(c echo.Context, apiErr IAPIError, cfg *config.Config) error {
	errorResp := &APIErrorResponse{
		Code:    apiErr.ErrorCode(),
		Message: apiErr.Message(),
	}

	// Include details only in development environment
	if isDevelopmentEnv(cfg.App.Env) {
		if details := apiErr.Details(); len(details) > 0 {
			errorResp.Details = details
		}
	}

	return c.JSON(apiErr.HTTPStatus(), APIResponse{
		Error: errorResp,
		Meta:  responseMeta(c),
	})
}

func responseMeta(c echo.Context) map[string]any {
	meta := map[string]any{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if id := c.Response().Header().Get(echo.HeaderXRequestID); id != "" {
		meta["requestId"] = id
	}
	if sc := trace.SpanContextFromContext(c.Request().Context()); sc.HasTraceID() {
		meta["traceId"] = sc.TraceID().String()
	}
	return meta
}

func customErrorHandler(err error, c echo.Context, cfg *config.Config) {
	if c.Response().Committed {
		return
	}

	// If this is a structured API error, reuse its fields
	var apiErr IAPIError
	if errors.As(err, &apiErr) {
		_ = formatErrorResponse(c, apiErr, cfg)
		return
	}

	status := http.StatusInternalServerError
	msg := "Internal server error"
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		switch m := he.Message.(type) {
		case string:
			msg = m
		case error:
			msg = m.Error()
		}
	}

	// Hide internal details for 500s outside development
	if !isDevelopmentEnv(cfg.App.Env) && status == http.StatusInternalServerError {
		msg = "An error occurred while processing your request"
	}

	base := NewBaseAPIError(statusToErrorCode(status), msg, status)
	if isDevelopmentEnv(cfg.App.Env) {
		_ = base.WithDetails("error", err.Error())
	}

	_ = formatErrorResponse(c, base, cfg)
}

func statusToErrorCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "BAD_REQUEST"
	case http.StatusUnauthorized:
		return "UNAUTHORIZED"
	case http.StatusForbidden:
		return "FORBIDDEN"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	case http.StatusConflict:
		return "CONFLICT"
	case http.StatusMisdirectedRequest:
		return "MISDIRECTED_REQUEST"
	case http.StatusTooManyRequests:
		return "TOO_MANY_REQUESTS"
	case http.StatusBadGateway:
		return "BAD_GATEWAY"
	case http.StatusServiceUnavailable:
		return "SERVICE_UNAVAILABLE"
	default:
		return "INTERNAL_ERROR"
	}
}
