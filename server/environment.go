package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/gaborage/go-sitesettings/environment"
	"github.com/gaborage/go-sitesettings/logger"
	"github.com/gaborage/go-sitesettings/multitenant"
)

// EnvironmentConfig configures EnvironmentMiddleware.
type EnvironmentConfig struct {
	// Skipper bypasses binding and capture, e.g. for the service's own routes.
	Skipper middleware.Skipper
	// TrustProxies is passed to request URL reconstruction in miss reports.
	TrustProxies bool
}

// EnvironmentMiddleware binds each request to its declared environment and
// rewrites the response for it. The resolution, a request-scoped logger and, in
// multisite mode, the environment travel in the request context and as X-Site-*
// headers. The response is captured and emitted once, after rewriting. On a miss
// the request passes through untouched unless the engine is strict.
func EnvironmentMiddleware(engine *environment.Engine, log logger.Logger, cfg EnvironmentConfig) echo.MiddlewareFunc {
	if cfg.Skipper == nil {
		cfg.Skipper = middleware.DefaultSkipper
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Skipper(c) {
				return next(c)
			}

			req := c.Request()
			ctx, res, err := engine.Bind(req)
			if err != nil {
				requestURL := multitenant.RequestURL(req, cfg.TrustProxies)
				if engine.Strict() {
					log.Warn().Str("url", requestURL).Msg("Request matched no declared site")
					return NewMisdirectedRequestError(requestURL)
				}
				log.Debug().Str("url", requestURL).Msg("Request matched no declared site, using host defaults")
				return next(c)
			}

			reqLog := log.WithFields(map[string]any{
				"server":    res.ServerIndex,
				"tenant_id": res.TenantID,
				"base_url":  res.BaseURL,
			})
			ctx = logger.WithLogger(ctx, reqLog)

			req = req.WithContext(ctx)
			setSiteHeaders(req, res)
			// The capture rewrites plain bytes; ask the upstream for an unencoded body.
			req.Header.Del(echo.HeaderAcceptEncoding)
			c.SetRequest(req)

			capture := newCapture(c)
			defer func() {
				if r := recover(); r != nil {
					capture.Discard()
					panic(r)
				}
			}()

			if err := next(c); err != nil {
				c.Error(err)
			}

			if ctxErr := ctx.Err(); ctxErr != nil {
				capture.Discard()
				reqLog.Debug().Err(ctxErr).Msg("Request ended before output was finalized, discarding")
				return nil
			}

			if err := capture.Finalize(func(body []byte) []byte {
				return engine.Rewrite(ctx, body)
			}); err != nil {
				reqLog.Warn().Err(err).Msg("Failed to write finalized response")
			}
			return nil
		}
	}
}

func setSiteHeaders(req *http.Request, res *multitenant.Resolution) {
	for name := range req.Header {
		if strings.HasPrefix(http.CanonicalHeaderKey(name), headerSitePrefix) {
			req.Header.Del(name)
		}
	}

	req.Header.Set(HeaderXSiteBaseURL, res.BaseURL)
	req.Header.Set(HeaderXSiteTenantID, strconv.Itoa(res.TenantID))
	req.Header.Set(HeaderXSiteServer, strconv.Itoa(res.ServerIndex))

	env, ok := multitenant.EnvironmentFrom(req.Context())
	if !ok {
		return
	}
	req.Header.Set(HeaderXSiteMultisite, strconv.FormatBool(env.Multisite))
	req.Header.Set(HeaderXSiteSubdomainInstall, strconv.FormatBool(env.SubdomainInstall))
	req.Header.Set(HeaderXSiteDomain, env.DomainCurrentSite)
	req.Header.Set(HeaderXSitePath, env.PathCurrentSite)
	req.Header.Set(HeaderXSiteID, strconv.Itoa(env.SiteID))
}
