// Package server is the HTTP shell around the environment engine. It binds each
// request to its declared environment, forwards it to the host runtime, rewrites
// the captured response and watches the host's admin pages for patch events.
package server

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/gaborage/go-sitesettings/config"
	"github.com/gaborage/go-sitesettings/environment"
	"github.com/gaborage/go-sitesettings/host"
	"github.com/gaborage/go-sitesettings/logger"
)

// Server represents the HTTP server instance.
type Server struct {
	echo   *echo.Echo
	cfg    *config.Config
	engine *environment.Engine
	logger logger.Logger
}

// normalizeRoutePath ensures a route path starts with "/" and falls back to
// defaultRoute when empty.
func normalizeRoutePath(route, defaultRoute string) string {
	if route == "" {
		route = defaultRoute
	}
	if !strings.HasPrefix(route, "/") {
		route = "/" + route
	}
	if len(route) > 1 {
		route = strings.TrimRight(route, "/")
	}
	return route
}

// New creates the server: middleware chain, health endpoints and bridge routes.
// An unparsable upstream URL is an error.
func New(cfg *config.Config, engine *environment.Engine, registry *host.Registry, log logger.Logger) (*Server, error) {
	var upstream *url.URL
	if cfg.Upstream.URL != "" {
		u, err := url.Parse(cfg.Upstream.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, config.NewInvalidFieldError("upstream.url", "must be an absolute URL", []string{"http", "https"})
		}
		upstream = u
	}

	cfg.Server.Path.Health = normalizeRoutePath(cfg.Server.Path.Health, "/health")
	cfg.Server.Path.Ready = normalizeRoutePath(cfg.Server.Path.Ready, "/ready")
	cfg.Server.Path.Bridge = normalizeRoutePath(cfg.Server.Path.Bridge, "/_sitesettings")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		customErrorHandler(err, c, cfg)
	}
	if v := NewValidator(); v != nil {
		e.Validator = v
	} else {
		return nil, fmt.Errorf("failed to initialize request validator")
	}

	SetupMiddlewares(e, log, cfg, engine, upstream)

	s := &Server{
		echo:   e,
		cfg:    cfg,
		engine: engine,
		logger: log,
	}

	e.GET(cfg.Server.Path.Health, s.healthCheck)
	e.GET(cfg.Server.Path.Ready, s.readyCheck)
	registerBridgeRoutes(e.Group(cfg.Server.Path.Bridge), &bridgeHandler{
		engine:   engine,
		registry: registry,
		log:      log,
	})

	log.Debug().
		Str("health_path", cfg.Server.Path.Health).
		Str("ready_path", cfg.Server.Path.Ready).
		Str("bridge_path", cfg.Server.Path.Bridge).
		Str("upstream", cfg.Upstream.URL).
		Msg("Server paths configured")

	return s, nil
}

// Echo returns the underlying Echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Start starts the HTTP server and blocks until it is shut down or fails.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)

	s.logger.Info().
		Str("service", s.cfg.App.Name).
		Str("version", s.cfg.App.Version).
		Str("env", s.cfg.App.Env).
		Str("address", addr).
		Msg("Starting server...")

	// Echo's Shutdown stops e.Server, so configure that one rather than a fresh
	// http.Server.
	server := s.echo.Server
	server.Addr = addr
	server.ReadTimeout = s.cfg.Server.Timeout.Read
	server.WriteTimeout = s.cfg.Server.Timeout.Write
	server.IdleTimeout = s.cfg.Server.Timeout.Idle

	return s.echo.StartServer(server)
}

// Shutdown gracefully shuts down the HTTP server with the given context.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

func (s *Server) readyCheck(c echo.Context) error {
	model := s.engine.Model()
	writable := s.engine.CheckWritable() == nil
	return c.JSON(http.StatusOK, map[string]any{
		"status":    "ready",
		"time":      time.Now().Unix(),
		"servers":   len(model.Servers),
		"multisite": model.Multisite,
		"writable":  writable,
	})
}
