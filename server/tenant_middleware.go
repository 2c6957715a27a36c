package server

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/gaborage/go-sitesettings/multitenant"
)

// TenantMiddleware reads the host's current tenant ID from header and injects it
// into the request context. Missing or malformed values leave the context alone
// so the canonical tenant applies.
func TenantMiddleware(header string) echo.MiddlewareFunc {
	if header == "" {
		header = HeaderXTenantID
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := c.Request().Header.Get(header)
			if raw == "" {
				return next(c)
			}
			tenantID, err := strconv.Atoi(raw)
			if err != nil {
				return next(c)
			}
			ctx := multitenant.SetTenant(c.Request().Context(), tenantID)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}
