package server

import (
	"net/url"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/gaborage/go-sitesettings/config"
	"github.com/gaborage/go-sitesettings/environment"
	"github.com/gaborage/go-sitesettings/logger"
)

const slowRequestThreshold = time.Second

// SetupMiddlewares registers the middleware chain. Compression sits outside the
// environment capture so the capture always sees plain bytes, and the admin
// watcher and upstream proxy sit inside it so their output is rewritten.
func SetupMiddlewares(e *echo.Echo, log logger.Logger, cfg *config.Config, engine *environment.Engine, upstream *url.URL) {
	ownRoute := ownRouteSkipper(cfg)

	// Request ID
	e.Use(middleware.RequestID())

	// Tracing
	e.Use(otelecho.Middleware(cfg.App.Name))

	// Logger middleware with zerolog
	e.Use(Logger(log, LoggerConfig{
		HealthPath:           cfg.Server.Path.Health,
		ReadyPath:            cfg.Server.Path.Ready,
		SlowRequestThreshold: slowRequestThreshold,
	}))

	// Recovery
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			log.Error().
				Err(err).
				Str("request_id", c.Response().Header().Get(echo.HeaderXRequestID)).
				Bytes("stack", stack).
				Msg("Panic recovered")
			return err
		},
	}))

	// Host tenant, needed by the rate limiter and the bridge
	e.Use(TenantMiddleware(cfg.Admin.TenantHeader))

	// Rate limit
	e.Use(RateLimit(cfg.App.Rate.Limit, cfg.App.Rate.Burst))

	// Gzip
	e.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		Level: 5,
	}))

	// Environment binding, capture and rewrite
	e.Use(EnvironmentMiddleware(engine, log, EnvironmentConfig{
		Skipper:      ownRoute,
		TrustProxies: cfg.SiteSettings.TrustProxies,
	}))

	// Administrative events
	if cfg.Admin.Enabled {
		e.Use(AdminMiddleware(engine, log, cfg.Admin))
	}

	// Host runtime
	if upstream != nil {
		e.Use(middleware.ProxyWithConfig(middleware.ProxyConfig{
			Skipper:  ownRoute,
			Balancer: middleware.NewRoundRobinBalancer([]*middleware.ProxyTarget{{URL: upstream}}),
		}))
	}
}

// ownRouteSkipper matches the service's own routes, which are neither bound to
// an environment nor forwarded upstream.
func ownRouteSkipper(cfg *config.Config) middleware.Skipper {
	bridge := strings.TrimRight(cfg.Server.Path.Bridge, "/")
	return func(c echo.Context) bool {
		path := c.Request().URL.Path
		switch {
		case path == cfg.Server.Path.Health, path == cfg.Server.Path.Ready:
			return true
		case bridge != "" && (path == bridge || strings.HasPrefix(path, bridge+"/")):
			return true
		}
		return false
	}
}
