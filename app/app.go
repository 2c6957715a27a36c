// Package app wires configuration, logging, the tenant store, the environment
// engine and the HTTP server into one process and runs it.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gaborage/go-sitesettings/config"
	"github.com/gaborage/go-sitesettings/environment"
	"github.com/gaborage/go-sitesettings/host"
	"github.com/gaborage/go-sitesettings/logger"
	"github.com/gaborage/go-sitesettings/server"
)

const defaultShutdownTimeout = 10 * time.Second

// App represents the main application instance.
type App struct {
	cfg      *config.Config
	logger   logger.Logger
	store    *host.SQLStore
	registry *host.Registry
	engine   *environment.Engine
	server   *server.Server

	watcher io.Closer
}

// New builds the application. A site settings file that cannot be loaded is
// returned as is so the caller can report its remediation and halt.
func New(cfg *config.Config, log logger.Logger) (*App, error) {
	log.Info().
		Str("app", cfg.App.Name).
		Str("env", cfg.App.Env).
		Str("version", cfg.App.Version).
		Msg("Starting application")

	store := host.NewSQLStore(host.StoreConfig{
		Driver:          cfg.TenantStore.Driver,
		TablePrefix:     cfg.TenantStore.TablePrefix,
		MaxOpenConns:    cfg.TenantStore.MaxOpenConns,
		ConnMaxLifetime: cfg.TenantStore.ConnMaxLifetime,
	}, log)
	registry := host.NewRegistry(store)

	engine, err := environment.New(environment.Options{
		Path:         cfg.SiteSettings.Path,
		Strict:       cfg.SiteSettings.Strict,
		TrustProxies: cfg.SiteSettings.TrustProxies,
	}, registry, log)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	srv, err := server.New(cfg, engine, registry, log)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create server: %w", err)
	}

	return &App{
		cfg:      cfg,
		logger:   log,
		store:    store,
		registry: registry,
		engine:   engine,
		server:   srv,
	}, nil
}

// Engine returns the environment engine.
func (a *App) Engine() *environment.Engine {
	return a.engine
}

// Server returns the HTTP server.
func (a *App) Server() *server.Server {
	return a.server
}

// Run serves requests until ctx is cancelled or the server fails, then shuts
// down gracefully.
func (a *App) Run(ctx context.Context) error {
	if a.cfg.SiteSettings.AutoReload.Enabled {
		watcher, err := watchSiteSettings(a.cfg.SiteSettings.Path, a.cfg.SiteSettings.AutoReload.Debounce, a.engine.Reload, a.logger)
		if err != nil {
			a.logger.Warn().Err(err).Msg("Site settings auto-reload unavailable")
		} else {
			a.watcher = watcher
		}
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.server.Start()
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		a.logger.Info().Msg("Shutdown requested")
	case serverErr = <-errCh:
		if errors.Is(serverErr, http.ErrServerClosed) {
			serverErr = nil
		} else {
			a.logger.Error().Err(serverErr).Msg("Server stopped unexpectedly")
		}
	}

	timeout := a.cfg.Server.Timeout.Shutdown
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	return errors.Join(serverErr, a.Shutdown(shutdownCtx))
}

// Shutdown stops the server, the file watcher and the tenant store pools.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info().Msg("Shutting down application")

	var errs []error
	if err := a.server.Shutdown(ctx); err != nil {
		a.logger.Error().Err(err).Msg("Failed to shutdown server")
		errs = append(errs, err)
	}
	if a.watcher != nil {
		if err := a.watcher.Close(); err != nil {
			errs = append(errs, err)
		}
		a.watcher = nil
	}
	if err := a.store.Close(); err != nil {
		a.logger.Error().Err(err).Msg("Failed to close tenant store")
		errs = append(errs, err)
	}

	a.logger.Info().Msg("Application shutdown complete")
	return errors.Join(errs...)
}
